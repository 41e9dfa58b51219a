package plugin

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/pkg/models"
)

// Registry manages the lifecycle of all registered plugins.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
	order   []string
	enabled map[string]bool
	logger  *zap.Logger
}

// NewRegistry creates a new plugin registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		plugins: make(map[string]Plugin),
		enabled: make(map[string]bool),
		logger:  logger,
	}
}

// Register adds a plugin to the registry.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := p.Name()
	if name == "" {
		return fmt.Errorf("plugin name must not be empty")
	}
	if _, exists := r.plugins[name]; exists {
		return fmt.Errorf("plugin %q already registered", name)
	}

	r.plugins[name] = p
	r.order = append(r.order, name)
	r.logger.Info("plugin registered", zap.String("name", name), zap.String("version", p.Version()))
	return nil
}

// InitAll initializes every enabled plugin with the top-level config
// section named after it. A plugin is enabled by plugins.<name>.enabled.
func (r *Registry) InitAll(cfg *config.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		p := r.plugins[name]

		if enabled := cfg.GetBool("plugins." + name + ".enabled"); !enabled {
			r.logger.Info("plugin disabled, skipping", zap.String("name", name))
			continue
		}

		r.logger.Info("initializing plugin", zap.String("name", name))
		if err := p.Init(cfg.Sub(name), r.logger.Named(name)); err != nil {
			return fmt.Errorf("failed to initialize plugin %q: %w", name, err)
		}
		if v, ok := p.(Validator); ok {
			if err := v.ValidateConfig(); err != nil {
				return fmt.Errorf("invalid config for plugin %q: %w", name, err)
			}
		}
		r.enabled[name] = true
	}
	return nil
}

// StartAll starts all initialized plugins.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		if !r.enabled[name] {
			continue
		}
		r.logger.Info("starting plugin", zap.String("name", name))
		if err := r.plugins[name].Start(ctx); err != nil {
			return fmt.Errorf("failed to start plugin %q: %w", name, err)
		}
	}
	return nil
}

// StopAll stops all initialized plugins in reverse order.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		if !r.enabled[name] {
			continue
		}
		r.logger.Info("stopping plugin", zap.String("name", name))
		if err := r.plugins[name].Stop(); err != nil {
			r.logger.Error("failed to stop plugin", zap.String("name", name), zap.Error(err))
		}
	}
}

// ReloadAll asks every initialized Reloadable plugin to reload.
func (r *Registry) ReloadAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, name := range r.order {
		rl, ok := r.plugins[name].(Reloadable)
		if !ok || !r.enabled[name] {
			continue
		}
		r.logger.Info("reloading plugin", zap.String("name", name))
		if err := rl.Reload(ctx); err != nil {
			r.logger.Error("failed to reload plugin", zap.String("name", name), zap.Error(err))
		}
	}
}

// Health returns the health of every initialized HealthChecker plugin.
func (r *Registry) Health(ctx context.Context) map[string]models.HealthStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]models.HealthStatus)
	for _, name := range r.order {
		hc, ok := r.plugins[name].(HealthChecker)
		if !ok || !r.enabled[name] {
			continue
		}
		out[name] = hc.Health(ctx)
	}
	return out
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// All returns all registered plugins in registration order.
func (r *Registry) All() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.plugins[name])
	}
	return result
}

// AllRoutes returns the routes of every initialized HTTPProvider plugin.
func (r *Registry) AllRoutes() map[string][]Route {
	r.mu.RLock()
	defer r.mu.RUnlock()

	routes := make(map[string][]Route)
	for _, name := range r.order {
		hp, ok := r.plugins[name].(HTTPProvider)
		if !ok || !r.enabled[name] {
			continue
		}
		if pr := hp.Routes(); len(pr) > 0 {
			routes[name] = pr
		}
	}
	return routes
}
