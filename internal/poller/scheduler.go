// Package poller runs one polling loop per device and feeds the state store.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/adapter"
	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/internal/health"
	"github.com/HerbHall/switchyard/internal/state"
	"github.com/HerbHall/switchyard/pkg/models"
)

// ErrUnknownDevice is returned by Reset for a device without a loop.
var ErrUnknownDevice = errors.New("unknown device")

// Poll results used as metric labels.
const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Target pairs a device with the adapter that polls it.
type Target struct {
	Device  models.Device
	Adapter adapter.Adapter
}

// Options configures a Scheduler.
type Options struct {
	Backoff    config.BackoffSettings
	Thresholds health.Thresholds
	Metrics    *Metrics
	Logger     *zap.Logger
	Now        func() time.Time
	// Rand returns a value in [0, 1) for backoff jitter; nil uses math/rand.
	Rand func() float64
}

type loop struct {
	dev       models.Device
	ad        adapter.Adapter
	tracker   *health.Tracker
	reset     chan struct{}
	seq       uint64
	connected bool
	logger    *zap.Logger
}

// Scheduler owns the per-device poll loops. Devices share no scheduling
// state; each loop owns its adapter session and health tracker.
type Scheduler struct {
	store  *state.Store
	opts   Options
	logger *zap.Logger
	loops  map[string]*loop
	order  []string

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New returns a scheduler for targets. Every target's device must be
// registered with store.
func New(store *state.Store, targets []Target, opts Options) (*Scheduler, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Scheduler{
		store:  store,
		opts:   opts,
		logger: opts.Logger,
		loops:  make(map[string]*loop, len(targets)),
	}
	for _, t := range targets {
		name := t.Device.Name
		if _, dup := s.loops[name]; dup {
			return nil, fmt.Errorf("duplicate target %q", name)
		}
		if _, ok := store.Status(name); !ok {
			return nil, fmt.Errorf("target %q: %w", name, state.ErrUnknownDevice)
		}
		if t.Adapter == nil {
			return nil, fmt.Errorf("target %q: nil adapter", name)
		}
		s.loops[name] = &loop{
			dev:     t.Device,
			ad:      t.Adapter,
			tracker: health.NewTracker(opts.Thresholds, opts.Now),
			reset:   make(chan struct{}, 1),
			logger:  opts.Logger.With(zap.String("device", name)),
		}
		s.order = append(s.order, name)
	}
	return s, nil
}

// Start launches one goroutine per device. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	for _, name := range s.order {
		l := s.loops[name]
		s.wg.Add(1)
		go s.run(ctx, l)
	}
	s.logger.Info("poll loops started", zap.Int("devices", len(s.order)))
}

// Stop cancels every loop and waits for them to disconnect.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()
	s.wg.Wait()
	s.logger.Info("poll loops stopped")
}

// Reset wakes the loop of a device. A device parked in error is retried
// immediately; any other device polls now instead of waiting.
func (s *Scheduler) Reset(name string) error {
	l, ok := s.loops[name]
	if !ok {
		return fmt.Errorf("reset %q: %w", name, ErrUnknownDevice)
	}
	select {
	case l.reset <- struct{}{}:
	default:
	}
	return nil
}

// ResetAll resets every device.
func (s *Scheduler) ResetAll() {
	for _, name := range s.order {
		_ = s.Reset(name)
	}
}

func (s *Scheduler) run(ctx context.Context, l *loop) {
	defer s.wg.Done()
	defer s.disconnect(l)

	for {
		wait := l.dev.Interval
		if err := s.cycle(ctx, l); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = Backoff(s.opts.Backoff.For(l.ad.Family()), s.opts.Backoff.Ceiling, l.tracker.Failures(), s.opts.Rand)
			l.logger.Warn("poll failed",
				zap.String("kind", adapter.KindOf(err).String()),
				zap.Int("failures", l.tracker.Failures()),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
		}
		s.publish(l)

		if l.tracker.Terminal() {
			s.disconnect(l)
			l.logger.Error("device parked in error state until reset",
				zap.String("last_error", l.tracker.Snapshot().LastError),
			)
			select {
			case <-ctx.Done():
				return
			case <-l.reset:
				l.tracker.Reset()
				l.logger.Info("device reset")
				s.publish(l)
				continue
			}
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-l.reset:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// cycle runs one probe and poll. A panic in the adapter is reported as a
// connectivity failure of this device.
func (s *Scheduler) cycle(ctx context.Context, l *loop) (err error) {
	start := s.opts.Now()
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("adapter panic recovered", zap.Any("panic", r))
			err = &adapter.Error{Kind: adapter.KindConnectivity, Device: l.dev.Name, Op: "poll", Err: fmt.Errorf("panic: %v", r)}
			l.tracker.PollFailed(err)
			s.failed(l, err)
		}
		result := resultSuccess
		if err != nil {
			result = resultFailure
		}
		s.opts.Metrics.observe(l.dev.Name, result, s.opts.Now().Sub(start).Seconds())
	}()

	// A passive listener has nothing to probe until it is bound.
	if adapter.Passive(l.ad.Family()) {
		if err := s.connect(ctx, l); err != nil {
			l.tracker.PollFailed(err)
			s.failed(l, err)
			return err
		}
	}

	if err := call(ctx, l.dev.Timeout, l.ad.HealthCheck); err != nil {
		l.tracker.ProbeFailed(err)
		s.failed(l, err)
		return err
	}
	l.tracker.ProbeSucceeded()

	snap, err := s.poll(ctx, l)
	if err != nil {
		l.tracker.PollFailed(err)
		s.failed(l, err)
		return err
	}
	if err := s.store.Merge(snap); err != nil {
		l.logger.Error("merging snapshot", zap.Uint64("sequence", snap.Sequence), zap.Error(err))
		return nil
	}
	l.tracker.PollSucceeded()
	l.logger.Debug("poll complete",
		zap.Uint64("sequence", snap.Sequence),
		zap.Int("ports", len(snap.Ports)),
		zap.Int("hosts", len(snap.Hosts)),
	)
	return nil
}

func (s *Scheduler) poll(ctx context.Context, l *loop) (*models.DeviceSnapshot, error) {
	if err := s.connect(ctx, l); err != nil {
		return nil, err
	}

	snap := &models.DeviceSnapshot{
		Device:     l.dev.Name,
		Timestamp:  s.opts.Now(),
		Connected:  true,
		DataSource: l.ad.DataSource(),
	}

	if l.dev.Has(models.CapInterfaces) {
		cctx, cancel := withTimeout(ctx, l.dev.Timeout)
		res, err := l.ad.QueryInterfaces(cctx)
		cancel()
		if err != nil {
			return nil, err
		}
		snap.Ports = res.Ports
		if snap.Ports == nil {
			snap.Ports = []models.Port{}
		}
		snap.Partial = res.Partial
	}
	if l.dev.Has(models.CapHosts) {
		cctx, cancel := withTimeout(ctx, l.dev.Timeout)
		hosts, err := l.ad.QueryHosts(cctx)
		cancel()
		if err != nil {
			return nil, err
		}
		if hosts == nil {
			hosts = []models.Host{}
		}
		snap.Hosts = hosts
	}
	if l.dev.Has(models.CapTraffic) {
		cctx, cancel := withTimeout(ctx, l.dev.Timeout)
		sample, err := l.ad.QueryTraffic(cctx)
		cancel()
		if err != nil {
			return nil, err
		}
		snap.Traffic = sample
	}

	l.seq++
	snap.Sequence = l.seq
	return snap, nil
}

func (s *Scheduler) connect(ctx context.Context, l *loop) error {
	if l.connected {
		return nil
	}
	if err := call(ctx, l.dev.Timeout, l.ad.Connect); err != nil {
		return err
	}
	l.connected = true
	l.logger.Info("session established", zap.String("source", string(l.ad.DataSource())))
	return nil
}

// failed records a failure in the store and drops the session when it can
// no longer be trusted. Passive listeners keep their socket bound.
func (s *Scheduler) failed(l *loop, err error) {
	if serr := s.store.MarkFailed(l.dev.Name, err, s.opts.Now()); serr != nil {
		l.logger.Error("marking device failed", zap.Error(serr))
	}
	switch adapter.KindOf(err) {
	case adapter.KindConnectivity, adapter.KindAuth:
		if l.connected && adapter.Passive(l.ad.Family()) {
			return
		}
		s.disconnect(l)
	}
}

func (s *Scheduler) publish(l *loop) {
	h := l.tracker.Snapshot()
	if err := s.store.SetHealth(l.dev.Name, h); err != nil {
		l.logger.Error("publishing health", zap.Error(err))
	}
	s.opts.Metrics.setHealth(l.dev.Name, h.Status)
}

// disconnect releases the adapter session. Adapters tolerate Disconnect
// without a session, so it also runs after a failed Connect.
func (s *Scheduler) disconnect(l *loop) {
	l.connected = false
	if err := l.ad.Disconnect(); err != nil {
		l.logger.Debug("disconnect", zap.Error(err))
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func call(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	cctx, cancel := withTimeout(ctx, d)
	defer cancel()
	return fn(cctx)
}
