// Package state holds the latest device snapshots, per-device traffic
// history and the merged host inventory.
package state

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/pkg/models"
)

var (
	// ErrUnknownDevice is returned for snapshots of unregistered devices.
	ErrUnknownDevice = errors.New("unknown device")
	// ErrOutOfOrder is returned for a snapshot older than the stored one.
	ErrOutOfOrder = errors.New("out-of-order snapshot")
)

// Options configures a Store.
type Options struct {
	// TrafficHistory is the ring buffer capacity per device.
	TrafficHistory int
	// HostInactivity is how long a host may go unreported before it is
	// shown offline.
	HostInactivity time.Duration
	// StaleAfterFactor multiplies a device's interval to get the age after
	// which its snapshot is stale.
	StaleAfterFactor float64
	Now              func() time.Time
	Logger           *zap.Logger
}

// DeviceStatus is a consistent read of one device's state.
type DeviceStatus struct {
	Device      models.Device
	Snapshot    *models.DeviceSnapshot
	Initialized bool
	Stale       bool
	LastUpdate  time.Time
	LastSuccess time.Time
	LastError   string
	Health      models.DeviceHealth
}

type deviceState struct {
	dev  models.Device
	snap atomic.Pointer[models.DeviceSnapshot]

	mu          sync.RWMutex
	merged      bool
	lastSeq     uint64
	failed      bool
	lastUpdate  time.Time
	lastSuccess time.Time
	lastErr     string
	health      models.DeviceHealth
	traffic     *Ring[models.TrafficSample]
}

// Store is the single owner of device state. Each device has one writer
// (its poll loop); readers never block on adapter I/O.
type Store struct {
	opts    Options
	logger  *zap.Logger
	order   []string
	devices map[string]*deviceState

	hostsMu sync.RWMutex
	hosts   map[string]*HostEntry

	subsMu sync.Mutex
	subs   map[int]chan struct{}
	nextID int
}

// NewStore returns a store with the given devices registered.
func NewStore(devices []models.Device, opts Options) (*Store, error) {
	if opts.TrafficHistory < 1 {
		opts.TrafficHistory = 300
	}
	if opts.HostInactivity <= 0 {
		opts.HostInactivity = 5 * time.Minute
	}
	if opts.StaleAfterFactor <= 0 {
		opts.StaleAfterFactor = 2
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Store{
		opts:    opts,
		logger:  opts.Logger,
		devices: make(map[string]*deviceState, len(devices)),
		hosts:   make(map[string]*HostEntry),
		subs:    make(map[int]chan struct{}),
	}
	for _, d := range devices {
		if _, dup := s.devices[d.Name]; dup {
			return nil, fmt.Errorf("duplicate device %q", d.Name)
		}
		s.devices[d.Name] = &deviceState{
			dev:     d,
			traffic: NewRing[models.TrafficSample](opts.TrafficHistory),
			health:  models.DeviceHealth{Status: models.HealthHealthy, Since: opts.Now()},
		}
		s.order = append(s.order, d.Name)
	}
	return s, nil
}

// Devices returns the registered devices in registration order.
func (s *Store) Devices() []models.Device {
	out := make([]models.Device, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.devices[name].dev)
	}
	return out
}

// Merge stores snap as the device's latest snapshot. A snapshot with the
// already stored sequence is ignored.
func (s *Store) Merge(snap *models.DeviceSnapshot) error {
	if snap == nil {
		return errors.New("nil snapshot")
	}
	st, ok := s.devices[snap.Device]
	if !ok {
		return fmt.Errorf("merge %q: %w", snap.Device, ErrUnknownDevice)
	}

	st.mu.Lock()
	if st.merged && snap.Sequence == st.lastSeq {
		st.mu.Unlock()
		return nil
	}
	if st.merged && snap.Sequence < st.lastSeq {
		last := st.lastSeq
		st.mu.Unlock()
		return fmt.Errorf("merge %q: sequence %d after %d: %w", snap.Device, snap.Sequence, last, ErrOutOfOrder)
	}
	st.merged = true
	st.lastSeq = snap.Sequence
	st.snap.Store(snap)
	st.failed = false
	st.lastErr = ""
	st.lastUpdate = snap.Timestamp
	st.lastSuccess = snap.Timestamp
	if snap.Traffic != nil {
		st.traffic.Push(*snap.Traffic)
	}
	st.mu.Unlock()

	if len(snap.Hosts) > 0 {
		s.mergeHosts(snap.Device, snap.Hosts, snap.Timestamp)
	}
	s.notify()
	return nil
}

func (s *Store) mergeHosts(device string, hosts []models.Host, at time.Time) {
	s.hostsMu.Lock()
	defer s.hostsMu.Unlock()
	for _, h := range hosts {
		key := hostKey(h)
		if key == "" {
			continue
		}
		e, ok := s.hosts[key]
		if !ok {
			e = &HostEntry{Key: key, IP: h.IP}
			s.hosts[key] = e
		}
		wasConflict := e.Conflict
		e.upsert(h, device, at)
		if e.Conflict && !wasConflict {
			s.logger.Warn("conflicting MAC addresses for IP",
				zap.String("ip", e.IP),
				zap.Strings("macs", e.MACs),
				zap.String("device", device),
			)
		}
	}
}

// MarkFailed flags the retained snapshot stale and records err. The
// snapshot data is left untouched.
func (s *Store) MarkFailed(device string, err error, at time.Time) error {
	st, ok := s.devices[device]
	if !ok {
		return fmt.Errorf("mark failed %q: %w", device, ErrUnknownDevice)
	}
	st.mu.Lock()
	st.failed = true
	st.lastUpdate = at
	if err != nil {
		st.lastErr = err.Error()
	}
	st.mu.Unlock()
	s.notify()
	return nil
}

// SetHealth publishes the health of a device.
func (s *Store) SetHealth(device string, h models.DeviceHealth) error {
	st, ok := s.devices[device]
	if !ok {
		return fmt.Errorf("set health %q: %w", device, ErrUnknownDevice)
	}
	st.mu.Lock()
	changed := st.health.Status != h.Status
	st.health = h
	st.mu.Unlock()
	if changed {
		s.notify()
	}
	return nil
}

// Status returns the state of one device.
func (s *Store) Status(device string) (DeviceStatus, bool) {
	st, ok := s.devices[device]
	if !ok {
		return DeviceStatus{}, false
	}
	return s.status(st), true
}

// Statuses returns the state of every device in registration order.
func (s *Store) Statuses() []DeviceStatus {
	out := make([]DeviceStatus, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.status(s.devices[name]))
	}
	return out
}

func (s *Store) status(st *deviceState) DeviceStatus {
	st.mu.RLock()
	defer st.mu.RUnlock()
	snap := st.snap.Load()
	ds := DeviceStatus{
		Device:      st.dev,
		Snapshot:    snap,
		Initialized: snap != nil,
		LastUpdate:  st.lastUpdate,
		LastSuccess: st.lastSuccess,
		LastError:   st.lastErr,
		Health:      st.health,
	}
	if snap != nil {
		ds.Stale = st.failed || s.expired(st.dev, st.lastSuccess)
	}
	return ds
}

func (s *Store) expired(dev models.Device, last time.Time) bool {
	if dev.Interval <= 0 {
		return false
	}
	limit := time.Duration(float64(dev.Interval) * s.opts.StaleAfterFactor)
	return s.opts.Now().Sub(last) > limit
}

// Traffic returns the retained samples for device, oldest first.
func (s *Store) Traffic(device string) ([]models.TrafficSample, bool) {
	st, ok := s.devices[device]
	if !ok {
		return nil, false
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.traffic.Items(), true
}

// Hosts returns the merged host inventory sorted by key, with Online
// computed against the inactivity window.
func (s *Store) Hosts() []HostEntry {
	now := s.opts.Now()
	s.hostsMu.RLock()
	out := make([]HostEntry, 0, len(s.hosts))
	for _, e := range s.hosts {
		c := e.clone()
		c.Online = now.Sub(c.LastSeen) <= s.opts.HostInactivity
		out = append(out, c)
	}
	s.hostsMu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Host returns one inventory entry by key.
func (s *Store) Host(key string) (HostEntry, bool) {
	s.hostsMu.RLock()
	e, ok := s.hosts[key]
	var c HostEntry
	if ok {
		c = e.clone()
	}
	s.hostsMu.RUnlock()
	if ok {
		c.Online = s.opts.Now().Sub(c.LastSeen) <= s.opts.HostInactivity
	}
	return c, ok
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications are coalesced; a slow reader sees one pending signal, never
// a blocked writer. Call cancel to release the subscription.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	s.subsMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

func (s *Store) notify() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
