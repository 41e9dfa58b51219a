// Package query is the read-only view layer over the state store. Views
// report what was observed and how fresh it is; nothing is filled in.
package query

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/health"
	"github.com/HerbHall/switchyard/internal/state"
	"github.com/HerbHall/switchyard/pkg/catalog"
	"github.com/HerbHall/switchyard/pkg/models"
)

// Source describes where one device's data came from and how fresh it is.
type Source struct {
	DataSource           *models.DataSource  `json:"data_source"`
	Stale                bool                `json:"stale"`
	Initialized          bool                `json:"initialized"`
	LastUpdate           *time.Time          `json:"last_update"`
	LastSuccessfulUpdate *time.Time          `json:"last_successful_update"`
	Health               models.HealthStatus `json:"health"`
}

// Envelope is embedded in every view.
type Envelope struct {
	Timestamp   time.Time         `json:"timestamp"`
	Initialized bool              `json:"initialized"`
	Sources     map[string]Source `json:"sources"`
}

// Summary is the aggregate view.
type Summary struct {
	Envelope
	Devices            int                  `json:"devices"`
	DevicesInitialized int                  `json:"devices_initialized"`
	DevicesConnected   int                  `json:"devices_connected"`
	Health             *models.HealthStatus `json:"health"`
	Ports              *int                 `json:"ports"`
	PortsUp            *int                 `json:"ports_up"`
	PortsWithErrors    *int                 `json:"ports_with_errors"`
	Hosts              *int                 `json:"hosts"`
	HostsOnline        *int                 `json:"hosts_online"`
	HostConflicts      *int                 `json:"host_conflicts"`
	InBytes            *uint64              `json:"in_bytes"`
	OutBytes           *uint64              `json:"out_bytes"`
}

// HostsView lists the merged host inventory.
type HostsView struct {
	Envelope
	Hosts []state.HostEntry `json:"hosts"`
}

// PortView is one port with its owning device.
type PortView struct {
	Device string `json:"device"`
	models.Port
	HasErrors bool `json:"has_errors"`
}

// PortsView maps "device:port" to port state.
type PortsView struct {
	Envelope
	Ports map[string]PortView `json:"ports"`
}

// DeviceTraffic is the traffic history of one device.
type DeviceTraffic struct {
	Latest  *models.TrafficSample  `json:"latest"`
	History []models.TrafficSample `json:"history"`
}

// TrafficView maps device name to its traffic. Devices without a snapshot
// map to null.
type TrafficView struct {
	Envelope
	Devices map[string]*DeviceTraffic `json:"devices"`
}

// HealthView reports per-device and global health.
type HealthView struct {
	Envelope
	Global  *models.HealthStatus           `json:"global"`
	Devices map[string]models.DeviceHealth `json:"devices"`
}

// ModelInfo is the configured identity of a device plus catalog metadata
// when its model is known.
type ModelInfo struct {
	Device  string              `json:"device"`
	Vendor  string              `json:"vendor"`
	Model   string              `json:"model"`
	Adapter models.AdapterType  `json:"adapter"`
	Address string              `json:"address"`
	Catalog *catalog.ModelEntry `json:"catalog"`
}

// ModelsView lists model information per device.
type ModelsView struct {
	Envelope
	Models []ModelInfo `json:"models"`
}

// DeviceView is the detail of one device.
type DeviceView struct {
	Envelope
	Device   ModelInfo              `json:"device"`
	Health   models.DeviceHealth    `json:"health"`
	Snapshot *models.DeviceSnapshot `json:"snapshot"`
	Traffic  *DeviceTraffic         `json:"traffic"`
	Error    string                 `json:"error,omitempty"`
}

// Options configures a Service.
type Options struct {
	Catalog *catalog.Catalog
	Logger  *zap.Logger
	Now     func() time.Time
}

// Service builds views from the state store. It holds no state of its own.
type Service struct {
	store   *state.Store
	catalog *catalog.Catalog
	oui     *catalog.OUITable
	logger  *zap.Logger
	now     func() time.Time
}

// NewService returns a query service over store.
func NewService(store *state.Store, opts Options) *Service {
	if opts.Catalog == nil {
		opts.Catalog = catalog.NewCatalog()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{store: store, catalog: opts.Catalog, oui: catalog.NewOUITable(), logger: opts.Logger, now: opts.Now}
}

func (s *Service) envelope(statuses []state.DeviceStatus) Envelope {
	env := Envelope{Timestamp: s.now(), Sources: make(map[string]Source, len(statuses))}
	for _, st := range statuses {
		env.Sources[st.Device.Name] = sourceOf(st)
		if st.Initialized {
			env.Initialized = true
		}
	}
	return env
}

func sourceOf(st state.DeviceStatus) Source {
	src := Source{
		Stale:       st.Stale,
		Initialized: st.Initialized,
		Health:      st.Health.Status,
	}
	if st.Snapshot != nil {
		ds := st.Snapshot.DataSource
		src.DataSource = &ds
	}
	if !st.LastUpdate.IsZero() {
		t := st.LastUpdate
		src.LastUpdate = &t
	}
	if !st.LastSuccess.IsZero() {
		t := st.LastSuccess
		src.LastSuccessfulUpdate = &t
	}
	return src
}

// Summary returns the aggregate view. Counters are null until at least
// one device has reported.
func (s *Service) Summary() Summary {
	statuses := s.store.Statuses()
	sum := Summary{Envelope: s.envelope(statuses), Devices: len(statuses)}

	var ports, up, withErrors int
	var in, out uint64
	var anyPorts, anyTraffic bool
	healths := make([]models.HealthStatus, 0, len(statuses))
	for _, st := range statuses {
		healths = append(healths, st.Health.Status)
		if !st.Initialized {
			continue
		}
		sum.DevicesInitialized++
		snap := st.Snapshot
		if snap.Connected && !st.Stale {
			sum.DevicesConnected++
		}
		if snap.Ports != nil {
			anyPorts = true
			for _, p := range snap.Ports {
				ports++
				if p.OperStatus == "up" {
					up++
				}
				if p.HasErrors() {
					withErrors++
				}
			}
		}
		if snap.Traffic != nil {
			anyTraffic = true
			in += snap.Traffic.InBytes
			out += snap.Traffic.OutBytes
		}
	}
	if len(statuses) > 0 {
		g := health.Global(healths...)
		sum.Health = &g
	}
	if anyPorts {
		sum.Ports, sum.PortsUp, sum.PortsWithErrors = &ports, &up, &withErrors
	}
	if anyTraffic {
		sum.InBytes, sum.OutBytes = &in, &out
	}
	if sum.Initialized {
		hosts := s.store.Hosts()
		var online, conflicts int
		for _, h := range hosts {
			if h.Online {
				online++
			}
			if h.Conflict {
				conflicts++
			}
		}
		n := len(hosts)
		sum.Hosts, sum.HostsOnline, sum.HostConflicts = &n, &online, &conflicts
	}
	return sum
}

// Hosts returns the merged host inventory with the manufacturer of each
// host's first MAC.
func (s *Service) Hosts() HostsView {
	v := HostsView{Envelope: s.envelope(s.store.Statuses())}
	if !v.Initialized {
		return v
	}
	v.Hosts = s.store.Hosts()
	for i := range v.Hosts {
		if len(v.Hosts[i].MACs) > 0 {
			v.Hosts[i].Vendor = s.oui.Lookup(v.Hosts[i].MACs[0])
		}
	}
	return v
}

// Ports returns every reported port keyed by "device:port".
func (s *Service) Ports() PortsView {
	statuses := s.store.Statuses()
	v := PortsView{Envelope: s.envelope(statuses)}
	if !v.Initialized {
		return v
	}
	v.Ports = make(map[string]PortView)
	for _, st := range statuses {
		if st.Snapshot == nil {
			continue
		}
		for _, p := range st.Snapshot.Ports {
			v.Ports[st.Device.Name+":"+p.Name] = PortView{Device: st.Device.Name, Port: p, HasErrors: p.HasErrors()}
		}
	}
	return v
}

// Traffic returns the traffic history per device.
func (s *Service) Traffic() TrafficView {
	statuses := s.store.Statuses()
	v := TrafficView{Envelope: s.envelope(statuses), Devices: make(map[string]*DeviceTraffic, len(statuses))}
	for _, st := range statuses {
		v.Devices[st.Device.Name] = s.trafficOf(st)
	}
	return v
}

func (s *Service) trafficOf(st state.DeviceStatus) *DeviceTraffic {
	if !st.Initialized {
		return nil
	}
	history, _ := s.store.Traffic(st.Device.Name)
	dt := &DeviceTraffic{History: history}
	if n := len(history); n > 0 {
		last := history[n-1]
		dt.Latest = &last
	}
	return dt
}

// Health returns per-device and global health.
func (s *Service) Health() HealthView {
	statuses := s.store.Statuses()
	v := HealthView{Envelope: s.envelope(statuses), Devices: make(map[string]models.DeviceHealth, len(statuses))}
	healths := make([]models.HealthStatus, 0, len(statuses))
	for _, st := range statuses {
		v.Devices[st.Device.Name] = st.Health
		healths = append(healths, st.Health.Status)
	}
	if len(statuses) > 0 {
		g := health.Global(healths...)
		v.Global = &g
	}
	return v
}

// Models returns model information for every device.
func (s *Service) Models() ModelsView {
	statuses := s.store.Statuses()
	v := ModelsView{Envelope: s.envelope(statuses), Models: make([]ModelInfo, 0, len(statuses))}
	for _, st := range statuses {
		v.Models = append(v.Models, s.modelOf(st.Device))
	}
	sort.Slice(v.Models, func(i, j int) bool { return v.Models[i].Device < v.Models[j].Device })
	return v
}

func (s *Service) modelOf(d models.Device) ModelInfo {
	mi := ModelInfo{Device: d.Name, Vendor: d.Vendor, Model: d.Model, Adapter: d.Adapter, Address: d.Address}
	if e, ok := s.catalog.Lookup(d.Model); ok {
		mi.Catalog = &e
	}
	return mi
}

// Device returns the detail view of one device.
func (s *Service) Device(name string) (DeviceView, bool) {
	st, ok := s.store.Status(name)
	if !ok {
		return DeviceView{}, false
	}
	return DeviceView{
		Envelope: s.envelope([]state.DeviceStatus{st}),
		Device:   s.modelOf(st.Device),
		Health:   st.Health,
		Snapshot: st.Snapshot,
		Traffic:  s.trafficOf(st),
		Error:    st.LastError,
	}, true
}
