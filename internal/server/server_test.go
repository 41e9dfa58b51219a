package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/internal/plugin"
)

type routePlugin struct{}

func (routePlugin) Name() string                           { return "monitor" }
func (routePlugin) Version() string                        { return "test" }
func (routePlugin) Init(*config.Config, *zap.Logger) error { return nil }
func (routePlugin) Start(context.Context) error            { return nil }
func (routePlugin) Stop() error                            { return nil }
func (routePlugin) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "GET", Path: "/summary", Handler: func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}},
		{Method: "GET", Path: "/boom", Handler: func(http.ResponseWriter, *http.Request) {
			panic("handler bug")
		}},
	}
}

func newTestServer(t *testing.T, opts Options) http.Handler {
	t.Helper()
	reg := plugin.NewRegistry(zap.NewNop())
	if err := reg.Register(routePlugin{}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	v := viper.New()
	v.Set("plugins.monitor.enabled", true)
	if err := reg.InitAll(config.New(v)); err != nil {
		t.Fatalf("InitAll() error = %v", err)
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.NewRegistry()
	}
	return New(":0", reg, zap.NewNop(), opts).Handler()
}

func get(h http.Handler, path string, hdr ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	h := newTestServer(t, Options{})
	rr := get(h, "/healthz")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if rr.Header().Get("X-Switchyard-Version") == "" {
		t.Error("missing X-Switchyard-Version header")
	}
}

func TestVersion(t *testing.T) {
	h := newTestServer(t, Options{})
	rr := get(h, "/version")
	var body map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["version"] == "" {
		t.Error("version missing from /version")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "switchyard_test_total", Help: "test"})
	reg.MustRegister(c)
	c.Inc()

	h := newTestServer(t, Options{Gatherer: reg})
	rr := get(h, "/metrics")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
	if !strings.Contains(rr.Body.String(), "switchyard_test_total 1") {
		t.Errorf("metrics body missing counter:\n%s", rr.Body.String())
	}
}

func TestPluginRoutesMountedUnderAPI(t *testing.T) {
	h := newTestServer(t, Options{})
	if rr := get(h, "/api/summary"); rr.Code != http.StatusOK {
		t.Errorf("GET /api/summary status = %d, want %d", rr.Code, http.StatusOK)
	}
	if rr := get(h, "/api/monitor/summary"); rr.Code != http.StatusNotFound {
		t.Errorf("GET /api/monitor/summary status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestRequestID(t *testing.T) {
	h := newTestServer(t, Options{})

	rr := get(h, "/healthz")
	if id := rr.Header().Get(RequestIDHeader); len(id) != 36 {
		t.Errorf("generated request ID = %q, want a UUID", id)
	}

	rr = get(h, "/healthz", RequestIDHeader, "abc-123")
	if id := rr.Header().Get(RequestIDHeader); id != "abc-123" {
		t.Errorf("request ID = %q, want client value", id)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, Options{RateLimit: 0.001, RateBurst: 2})

	for i := 0; i < 2; i++ {
		if rr := get(h, "/api/summary"); rr.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want %d", i, rr.Code, http.StatusOK)
		}
	}
	rr := get(h, "/api/summary")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusTooManyRequests)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content-type = %q, want problem+json", ct)
	}

	// Core routes are not limited.
	if rr := get(h, "/healthz"); rr.Code != http.StatusOK {
		t.Errorf("/healthz status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRecoverPanic(t *testing.T) {
	h := newTestServer(t, Options{})
	rr := get(h, "/api/boom")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusInternalServerError)
	}
	var p Problem
	if err := json.NewDecoder(rr.Body).Decode(&p); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if p.Type != ProblemTypeInternal {
		t.Errorf("type = %q, want %q", p.Type, ProblemTypeInternal)
	}
}
