// Package plugin defines the module lifecycle used by the server.
package plugin

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/config"
)

// Route represents an HTTP route exposed by a plugin.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Plugin defines the interface that all switchyard modules must implement.
type Plugin interface {
	// Name returns the plugin's unique identifier (e.g., "monitor").
	Name() string

	// Version returns the plugin's semantic version.
	Version() string

	// Init initializes the plugin with its configuration section and logger.
	Init(cfg *config.Config, logger *zap.Logger) error

	// Start begins the plugin's background operations.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the plugin.
	Stop() error
}
