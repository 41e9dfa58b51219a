// Package adapter implements the uniform device query contract and its
// protocol variants: SSH command sessions, REST APIs, SNMP polling and a
// passive NetFlow listener.
package adapter

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/internal/pulse"
	"github.com/HerbHall/switchyard/pkg/models"
)

// InterfaceResult is the outcome of QueryInterfaces. Partial is set when
// some ports could not be interpreted but others could.
type InterfaceResult struct {
	Ports   []models.Port
	Partial bool
}

// Adapter is the vendor-neutral contract every device variant implements.
// Implementations are used by a single poll loop and need not be safe for
// concurrent use, except where a variant documents otherwise.
type Adapter interface {
	// Connect establishes or validates the management session.
	Connect(ctx context.Context) error

	// Disconnect releases the session. It is safe to call when not connected.
	Disconnect() error

	// QueryInterfaces returns the current ports and their counters.
	QueryInterfaces(ctx context.Context) (InterfaceResult, error)

	// QueryHosts returns the hosts the device currently knows about.
	// An empty slice is a valid answer.
	QueryHosts(ctx context.Context) ([]models.Host, error)

	// QueryTraffic returns the traffic since the previous call, or nil
	// when there is no baseline yet.
	QueryTraffic(ctx context.Context) (*models.TrafficSample, error)

	// HealthCheck is a lightweight reachability probe.
	HealthCheck(ctx context.Context) error

	// DataSource names the protocol that produces this adapter's data.
	DataSource() models.DataSource

	// Family is the adapter type, used to pick a backoff curve.
	Family() models.AdapterType
}

// Options carries collaborators shared by all adapters.
type Options struct {
	Logger *zap.Logger
	// Checkers overrides the probe implementation per probe kind.
	Checkers map[models.ProbeKind]pulse.Checker
}

// Passive reports whether adapters of type t receive data pushed by the
// device instead of polling it. A passive session stays open across
// failures so exports are not lost while the device is retried.
func Passive(t models.AdapterType) bool {
	return t == models.AdapterNetFlow
}

// Constructor builds an adapter for one device.
type Constructor func(dev models.Device, creds config.Credentials, opts Options) (Adapter, error)

var (
	constructorsMu sync.RWMutex
	constructors   = make(map[models.AdapterType]Constructor)
)

// Register adds a constructor for an adapter type. It is called from init
// functions and panics on duplicates.
func Register(t models.AdapterType, c Constructor) {
	constructorsMu.Lock()
	defer constructorsMu.Unlock()
	if _, exists := constructors[t]; exists {
		panic(fmt.Sprintf("adapter: constructor for %q already registered", t))
	}
	constructors[t] = c
}

// Registered returns the adapter types with a constructor, sorted.
func Registered() []models.AdapterType {
	constructorsMu.RLock()
	defer constructorsMu.RUnlock()
	out := make([]models.AdapterType, 0, len(constructors))
	for t := range constructors {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New builds the adapter for dev, wrapping it with the configured probe.
func New(dev models.Device, creds config.Credentials, opts Options) (Adapter, error) {
	constructorsMu.RLock()
	c, ok := constructors[dev.Adapter]
	constructorsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("adapter: no constructor for type %q", dev.Adapter)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Logger = opts.Logger.With(zap.String("device", dev.Name))

	a, err := c(dev, creds, opts)
	if err != nil {
		return nil, fmt.Errorf("adapter: build %s: %w", dev.Name, err)
	}
	return withProbe(a, dev, opts), nil
}
