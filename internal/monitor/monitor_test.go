package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HerbHall/switchyard/internal/adapter"
	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/internal/testutil"
	"github.com/HerbHall/switchyard/pkg/models"
)

func monitorConfig() *config.Config {
	v := viper.New()
	v.Set("default_interval", "20ms")
	v.Set("backoff", map[string]any{
		"ceiling": "50ms",
		"cli":     map[string]any{"base": "10ms", "multiplier": 1.0, "jitter": 0.0},
	})
	v.Set("health", map[string]any{"degraded_after": 2, "error_after": 100000, "parse_error_threshold": 3})
	v.Set("devices", []any{
		map[string]any{"name": "core", "vendor": "cisco", "model": "catalyst-9300-24ux", "address": "192.168.1.1", "adapter": "cli", "dialect": "ios", "credential_ref": "CORE"},
		map[string]any{"name": "edge", "vendor": "cisco", "model": "unknown-box", "address": "192.168.1.2", "adapter": "cli", "dialect": "ios"},
	})
	return config.New(v)
}

type harness struct {
	mod      *Module
	adapters map[string]*testutil.FakeAdapter
	refs     []string
	srv      *httptest.Server
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{adapters: make(map[string]*testutil.FakeAdapter)}

	factory := func(dev models.Device, _ config.Credentials, _ adapter.Options) (adapter.Adapter, error) {
		fa := testutil.NewFakeAdapter(dev.Adapter, models.SourceSSHCLI)
		h.adapters[dev.Name] = fa
		return fa, nil
	}
	resolver := func(ref string) config.Credentials {
		h.refs = append(h.refs, ref)
		return config.Credentials{Username: "admin"}
	}
	h.mod = New(prometheus.NewRegistry(), WithAdapterFactory(factory), WithCredentialResolver(resolver))
	require.NoError(t, h.mod.Init(monitorConfig(), testutil.Logger()))
	require.NoError(t, h.mod.ValidateConfig())

	core := h.adapters["core"]
	core.SetPorts([]models.Port{
		{Name: "Gi1/0/1", OperStatus: "up", Counters: models.Counters{InErrors: 3}},
		{Name: "Gi1/0/2", OperStatus: "down"},
	}, false)
	core.SetHosts([]models.Host{{IP: "10.0.0.5", MAC: "aa:aa:aa:aa:aa:aa"}})
	core.QueueTraffic(nil, &models.TrafficSample{InBytes: 500, OutBytes: 300})
	h.adapters["edge"].SetError(testutil.OpHealthCheck, &adapter.Error{
		Kind: adapter.KindConnectivity, Device: "edge", Op: "health_check", Err: errors.New("connection refused"),
	})

	mux := http.NewServeMux()
	for _, r := range h.mod.Routes() {
		mux.HandleFunc(r.Method+" /api"+r.Path, r.Handler)
	}
	h.srv = httptest.NewServer(mux)
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.mod.Start(context.Background()))
	t.Cleanup(func() { _ = h.mod.Stop() })
}

func (h *harness) getJSON(t *testing.T, path string, out any) int {
	t.Helper()
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp.StatusCode
}

func TestInit_InvalidConfig(t *testing.T) {
	v := viper.New()
	v.Set("devices", []any{map[string]any{"name": "x", "adapter": "telnet", "address": "1.2.3.4"}})
	m := New(nil)
	err := m.Init(config.New(v), testutil.Logger())
	assert.Error(t, err)
}

func TestInit_AdapterFactoryError(t *testing.T) {
	boom := errors.New("boom")
	m := New(nil, WithAdapterFactory(func(models.Device, config.Credentials, adapter.Options) (adapter.Adapter, error) {
		return nil, boom
	}))
	err := m.Init(monitorConfig(), testutil.Logger())
	assert.True(t, errors.Is(err, boom))
}

func TestInit_ResolvesCredentialRefs(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, []string{"CORE", ""}, h.refs)
	assert.Len(t, h.mod.Store().Devices(), 2)
}

func TestBeforeFirstPoll_NothingFabricated(t *testing.T) {
	h := newHarness(t)

	var sum map[string]any
	require.Equal(t, http.StatusOK, h.getJSON(t, "/api/summary", &sum))
	assert.Equal(t, false, sum["initialized"])
	assert.Nil(t, sum["ports"])
	assert.Nil(t, sum["hosts"])
	assert.EqualValues(t, 2, sum["devices"])

	var hosts map[string]any
	h.getJSON(t, "/api/hosts", &hosts)
	assert.Nil(t, hosts["hosts"])
}

func TestEndToEnd(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	require.Eventually(t, func() bool {
		st, _ := h.mod.Store().Status("core")
		edge, _ := h.mod.Store().Status("edge")
		samples, _ := h.mod.Store().Traffic("core")
		return st.Initialized && len(samples) > 0 && edge.Health.Status == models.HealthDegraded
	}, 3*time.Second, 5*time.Millisecond)

	var sum struct {
		Initialized bool   `json:"initialized"`
		Devices     int    `json:"devices"`
		Health      string `json:"health"`
		Ports       *int   `json:"ports"`
		PortsErrors *int   `json:"ports_with_errors"`
		Sources     map[string]struct {
			DataSource  *string `json:"data_source"`
			Initialized bool    `json:"initialized"`
		} `json:"sources"`
	}
	require.Equal(t, http.StatusOK, h.getJSON(t, "/api/summary", &sum))
	assert.True(t, sum.Initialized)
	assert.Equal(t, 2, sum.Devices)
	assert.Equal(t, "degraded", sum.Health)
	require.NotNil(t, sum.Ports)
	assert.Equal(t, 2, *sum.Ports)
	assert.Equal(t, 1, *sum.PortsErrors)
	require.NotNil(t, sum.Sources["core"].DataSource)
	assert.Equal(t, "ssh-cli", *sum.Sources["core"].DataSource)
	assert.False(t, sum.Sources["edge"].Initialized)
	assert.Nil(t, sum.Sources["edge"].DataSource)

	var ports struct {
		Ports map[string]struct {
			Device    string `json:"device"`
			HasErrors bool   `json:"has_errors"`
		} `json:"ports"`
	}
	h.getJSON(t, "/api/ports", &ports)
	require.Contains(t, ports.Ports, "core:Gi1/0/1")
	assert.True(t, ports.Ports["core:Gi1/0/1"].HasErrors)
	assert.False(t, ports.Ports["core:Gi1/0/2"].HasErrors)

	var traffic struct {
		Devices map[string]*struct {
			Latest *models.TrafficSample `json:"latest"`
		} `json:"devices"`
	}
	h.getJSON(t, "/api/traffic", &traffic)
	require.NotNil(t, traffic.Devices["core"])
	require.NotNil(t, traffic.Devices["core"].Latest)
	assert.Equal(t, uint64(500), traffic.Devices["core"].Latest.InBytes)
	assert.Equal(t, uint64(300), traffic.Devices["core"].Latest.OutBytes)
	assert.Nil(t, traffic.Devices["edge"])

	var hv struct {
		Global  string                         `json:"global"`
		Devices map[string]models.DeviceHealth `json:"devices"`
	}
	h.getJSON(t, "/api/health", &hv)
	assert.Equal(t, "degraded", hv.Global)
	assert.Equal(t, models.HealthHealthy, hv.Devices["core"].Status)
	assert.Equal(t, "connectivity", hv.Devices["edge"].LastErrorKind)

	var mv struct {
		Models []struct {
			Device  string         `json:"device"`
			Catalog map[string]any `json:"catalog"`
		} `json:"models"`
	}
	h.getJSON(t, "/api/models", &mv)
	require.Len(t, mv.Models, 2)
	assert.Equal(t, "core", mv.Models[0].Device)
	assert.NotNil(t, mv.Models[0].Catalog)
	assert.Nil(t, mv.Models[1].Catalog)

	var dv map[string]any
	require.Equal(t, http.StatusOK, h.getJSON(t, "/api/device/edge", &dv))
	assert.Nil(t, dv["snapshot"])
	assert.Nil(t, dv["traffic"])

	var prob map[string]any
	require.Equal(t, http.StatusNotFound, h.getJSON(t, "/api/device/nope", &prob))
	assert.EqualValues(t, 404, prob["status"])

	assert.Equal(t, models.HealthDegraded, h.mod.Health(context.Background()))
}

func TestReloadReleasesParkedDevice(t *testing.T) {
	h := newHarness(t)
	h.adapters["core"].SetError(testutil.OpConnect, &adapter.Error{
		Kind: adapter.KindAuth, Device: "core", Op: "connect", Err: errors.New("bad password"),
	})
	h.start(t)

	require.Eventually(t, func() bool {
		st, _ := h.mod.Store().Status("core")
		return st.Health.Terminal
	}, 3*time.Second, 5*time.Millisecond)

	h.adapters["core"].SetError(testutil.OpConnect, nil)
	require.NoError(t, h.mod.Reload(context.Background()))

	require.Eventually(t, func() bool {
		st, _ := h.mod.Store().Status("core")
		return st.Initialized && !st.Health.Terminal
	}, 3*time.Second, 5*time.Millisecond)
	assert.Error(t, h.mod.Reset("nope"))
}

func TestStream(t *testing.T) {
	h := newHarness(t)
	h.start(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(ctx, "ws"+h.srv.URL[len("http"):]+"/api/stream", nil)
	require.NoError(t, err)
	defer c.CloseNow()

	for {
		var sum struct {
			Initialized bool `json:"initialized"`
		}
		require.NoError(t, wsjson.Read(ctx, c, &sum))
		if sum.Initialized {
			break
		}
	}
	require.NoError(t, c.Close(websocket.StatusNormalClosure, ""))
}
