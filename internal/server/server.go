package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/plugin"
	"github.com/HerbHall/switchyard/internal/version"
	"github.com/HerbHall/switchyard/pkg/models"
)

// Options configures the HTTP server.
type Options struct {
	// RateLimit is the sustained API requests per second per client. Zero
	// disables rate limiting.
	RateLimit float64
	RateBurst int
	// Gatherer backs GET /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// Server is the main switchyard HTTP server.
type Server struct {
	httpServer *http.Server
	registry   *plugin.Registry
	logger     *zap.Logger
	mux        *http.ServeMux
	gatherer   prometheus.Gatherer
}

// New creates a new Server instance.
func New(addr string, reg *plugin.Registry, logger *zap.Logger, opts Options) *Server {
	mux := http.NewServeMux()
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		registry: reg,
		logger:   logger,
		mux:      mux,
		gatherer: opts.Gatherer,
	}

	s.registerCoreRoutes()
	s.mountPluginRoutes()

	var rl *rateLimiter
	if opts.RateLimit > 0 {
		rl = newRateLimiter(opts.RateLimit, opts.RateBurst)
	}
	var h http.Handler = mux
	h = withRateLimit(rl, h)
	h = withVersion(h)
	h = withLogging(logger, h)
	h = withRecovery(logger, h)
	h = withRequestID(h)

	// No WriteTimeout: /api/stream holds the connection open.
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the fully wrapped root handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// registerCoreRoutes sets up routes that are always available.
func (s *Server) registerCoreRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /version", s.handleVersion)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
}

// mountPluginRoutes registers all plugin routes under /api.
func (s *Server) mountPluginRoutes() {
	for pluginName, routes := range s.registry.AllRoutes() {
		for _, route := range routes {
			pattern := fmt.Sprintf("%s /api%s", route.Method, route.Path)
			s.mux.HandleFunc(pattern, route.Handler)
			s.logger.Debug("mounted route",
				zap.String("plugin", pluginName),
				zap.String("pattern", pattern),
			)
		}
	}
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// handleHealthz is the process liveness check. Device health is served by
// the monitor routes; here it is only summarized.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	plugins := s.registry.Health(r.Context())
	statuses := make([]models.HealthStatus, 0, len(plugins))
	for _, st := range plugins {
		statuses = append(statuses, st)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"service": "switchyard",
		"devices": models.Worst(statuses...),
		"plugins": plugins,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(version.Get())
}
