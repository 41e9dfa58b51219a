package plugin

import (
	"context"

	"github.com/HerbHall/switchyard/pkg/models"
)

// HTTPProvider is implemented by plugins that expose REST API routes.
type HTTPProvider interface {
	Routes() []Route
}

// HealthChecker is implemented by plugins that report their health status.
type HealthChecker interface {
	Health(ctx context.Context) models.HealthStatus
}

// Validator is implemented by plugins that validate their config post-init.
type Validator interface {
	ValidateConfig() error
}

// Reloadable is implemented by plugins that react to an operator reload
// request (SIGHUP).
type Reloadable interface {
	Reload(ctx context.Context) error
}
