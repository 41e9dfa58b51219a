package testutil

import (
	"context"
	"sync"

	"github.com/HerbHall/switchyard/internal/adapter"
	"github.com/HerbHall/switchyard/pkg/models"
)

// Compile-time interface check.
var _ adapter.Adapter = (*FakeAdapter)(nil)

// Adapter operation names recorded by FakeAdapter.
const (
	OpConnect         = "connect"
	OpDisconnect      = "disconnect"
	OpQueryInterfaces = "query_interfaces"
	OpQueryHosts      = "query_hosts"
	OpQueryTraffic    = "query_traffic"
	OpHealthCheck     = "health_check"
)

// FakeAdapter is a thread-safe scriptable adapter that records every call
// for later inspection.
type FakeAdapter struct {
	mu      sync.Mutex
	family  models.AdapterType
	source  models.DataSource
	ports   []models.Port
	partial bool
	hosts   []models.Host
	traffic []*models.TrafficSample
	errs    map[string]error
	calls   []string
	hook    func(op string)
}

// NewFakeAdapter returns a FakeAdapter reporting the given family and source.
func NewFakeAdapter(family models.AdapterType, source models.DataSource) *FakeAdapter {
	return &FakeAdapter{family: family, source: source, errs: make(map[string]error)}
}

// SetPorts sets the QueryInterfaces result.
func (f *FakeAdapter) SetPorts(ports []models.Port, partial bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports, f.partial = ports, partial
}

// SetHosts sets the QueryHosts result.
func (f *FakeAdapter) SetHosts(hosts []models.Host) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hosts = hosts
}

// QueueTraffic appends samples returned by successive QueryTraffic calls.
// A nil entry yields a nil sample. When the queue is empty QueryTraffic
// returns nil.
func (f *FakeAdapter) QueueTraffic(samples ...*models.TrafficSample) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.traffic = append(f.traffic, samples...)
}

// SetError makes op fail with err until cleared with a nil err.
func (f *FakeAdapter) SetError(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// OnCall registers a function run (without the lock held) on every call.
func (f *FakeAdapter) OnCall(fn func(op string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = fn
}

// Calls returns a copy of the recorded operation names.
func (f *FakeAdapter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// Count returns how many times op was called.
func (f *FakeAdapter) Count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *FakeAdapter) record(op string) error {
	f.mu.Lock()
	f.calls = append(f.calls, op)
	err := f.errs[op]
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		hook(op)
	}
	return err
}

func (f *FakeAdapter) Connect(context.Context) error { return f.record(OpConnect) }

func (f *FakeAdapter) Disconnect() error { return f.record(OpDisconnect) }

func (f *FakeAdapter) QueryInterfaces(context.Context) (adapter.InterfaceResult, error) {
	if err := f.record(OpQueryInterfaces); err != nil {
		return adapter.InterfaceResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	ports := make([]models.Port, len(f.ports))
	copy(ports, f.ports)
	return adapter.InterfaceResult{Ports: ports, Partial: f.partial}, nil
}

func (f *FakeAdapter) QueryHosts(context.Context) ([]models.Host, error) {
	if err := f.record(OpQueryHosts); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	hosts := make([]models.Host, len(f.hosts))
	copy(hosts, f.hosts)
	return hosts, nil
}

func (f *FakeAdapter) QueryTraffic(context.Context) (*models.TrafficSample, error) {
	if err := f.record(OpQueryTraffic); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.traffic) == 0 {
		return nil, nil
	}
	s := f.traffic[0]
	f.traffic = f.traffic[1:]
	return s, nil
}

func (f *FakeAdapter) HealthCheck(context.Context) error { return f.record(OpHealthCheck) }

func (f *FakeAdapter) DataSource() models.DataSource { return f.source }
func (f *FakeAdapter) Family() models.AdapterType    { return f.family }
