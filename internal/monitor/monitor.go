// Package monitor wires the device adapters, poll scheduler, state store
// and query service into one plugin.
package monitor

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/adapter"
	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/internal/health"
	"github.com/HerbHall/switchyard/internal/plugin"
	"github.com/HerbHall/switchyard/internal/poller"
	"github.com/HerbHall/switchyard/internal/query"
	"github.com/HerbHall/switchyard/internal/state"
	"github.com/HerbHall/switchyard/pkg/catalog"
	"github.com/HerbHall/switchyard/pkg/models"
)

const (
	pluginName    = "monitor"
	pluginVersion = "0.1.0"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin        = (*Module)(nil)
	_ plugin.HTTPProvider  = (*Module)(nil)
	_ plugin.HealthChecker = (*Module)(nil)
	_ plugin.Reloadable    = (*Module)(nil)
	_ plugin.Validator     = (*Module)(nil)
)

// AdapterFactory builds the adapter for one device.
type AdapterFactory func(dev models.Device, creds config.Credentials, opts adapter.Options) (adapter.Adapter, error)

// Option customizes a Module.
type Option func(*Module)

// WithAdapterFactory replaces adapter.New.
func WithAdapterFactory(f AdapterFactory) Option {
	return func(m *Module) { m.newAdapter = f }
}

// WithCredentialResolver replaces config.ResolveCredentials.
func WithCredentialResolver(f func(ref string) config.Credentials) Option {
	return func(m *Module) { m.resolve = f }
}

// Module is the monitor plugin. All state lives in the store it owns; the
// scheduler writes it and the query service reads it.
type Module struct {
	logger     *zap.Logger
	registerer prometheus.Registerer
	catalog    *catalog.Catalog
	newAdapter AdapterFactory
	resolve    func(ref string) config.Credentials

	settings config.MonitorSettings
	store    *state.Store
	sched    *poller.Scheduler
	query    *query.Service
}

// New creates the monitor plugin. Poll metrics are registered with reg.
func New(reg prometheus.Registerer, opts ...Option) *Module {
	m := &Module{
		registerer: reg,
		catalog:    catalog.NewCatalog(),
		newAdapter: adapter.New,
		resolve:    config.ResolveCredentials,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Module) Name() string    { return pluginName }
func (m *Module) Version() string { return pluginVersion }

// Init decodes the settings, builds one adapter per device and assembles
// the store, scheduler and query service.
func (m *Module) Init(cfg *config.Config, logger *zap.Logger) error {
	m.logger = logger

	settings, err := config.LoadMonitor(cfg)
	if err != nil {
		return fmt.Errorf("monitor config: %w", err)
	}
	m.settings = settings

	devices := settings.DeviceModels()
	if len(devices) == 0 {
		m.logger.Warn("no devices configured")
	}

	m.store, err = state.NewStore(devices, state.Options{
		TrafficHistory:   settings.TrafficHistory,
		HostInactivity:   settings.HostInactivity,
		StaleAfterFactor: settings.StaleAfterFactor,
		Logger:           logger.Named("state"),
	})
	if err != nil {
		return err
	}

	targets := make([]poller.Target, 0, len(devices))
	for _, dev := range devices {
		creds := m.resolve(dev.CredentialRef)
		if dev.CredentialRef != "" && creds.Empty() {
			m.logger.Warn("credential reference resolved to nothing",
				zap.String("device", dev.Name),
				zap.String("credential_ref", dev.CredentialRef),
			)
		}
		ad, err := m.newAdapter(dev, creds, adapter.Options{Logger: logger.Named("adapter")})
		if err != nil {
			return err
		}
		if _, ok := m.catalog.Lookup(dev.Model); !ok && dev.Model != "" {
			m.logger.Debug("model not in catalog", zap.String("device", dev.Name), zap.String("model", dev.Model))
		}
		targets = append(targets, poller.Target{Device: dev, Adapter: ad})
		m.logger.Info("device configured",
			zap.String("device", dev.Name),
			zap.String("adapter", string(dev.Adapter)),
			zap.String("address", dev.Address),
			zap.Duration("interval", dev.Interval),
		)
	}

	h := settings.Health
	m.sched, err = poller.New(m.store, targets, poller.Options{
		Backoff: settings.Backoff,
		Thresholds: health.Thresholds{
			DegradedAfter:       h.DegradedAfter,
			ErrorAfter:          h.ErrorAfter,
			ParseErrorThreshold: h.ParseErrorThreshold,
			SettleWindow:        h.SettleWindow,
		},
		Metrics: poller.NewMetrics(m.registerer),
		Logger:  logger.Named("poller"),
	})
	if err != nil {
		return err
	}

	m.query = query.NewService(m.store, query.Options{Catalog: m.catalog, Logger: logger.Named("query")})
	return nil
}

// ValidateConfig checks that the embedded model catalog is usable.
func (m *Module) ValidateConfig() error {
	if _, err := m.catalog.Entries(); err != nil {
		return fmt.Errorf("model catalog: %w", err)
	}
	return nil
}

// Start launches the poll loops.
func (m *Module) Start(ctx context.Context) error {
	m.sched.Start(ctx)
	return nil
}

// Stop waits for every poll loop to exit and disconnect.
func (m *Module) Stop() error {
	if m.sched != nil {
		m.sched.Stop()
	}
	return nil
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return m.query.Routes()
}

// Reload resets every device, releasing those parked in error.
func (m *Module) Reload(_ context.Context) error {
	m.logger.Info("resetting all devices")
	m.sched.ResetAll()
	return nil
}

// Reset resets a single device.
func (m *Module) Reset(name string) error {
	return m.sched.Reset(name)
}

// Health implements plugin.HealthChecker. It is the worst device health.
func (m *Module) Health(_ context.Context) models.HealthStatus {
	statuses := m.store.Statuses()
	hs := make([]models.HealthStatus, 0, len(statuses))
	for _, st := range statuses {
		hs = append(hs, st.Health.Status)
	}
	return health.Global(hs...)
}

// Store exposes the state store.
func (m *Module) Store() *state.Store { return m.store }

// Query exposes the query service.
func (m *Module) Query() *query.Service { return m.query }
