package testutil

import (
	"time"

	"github.com/HerbHall/switchyard/pkg/models"
)

// NewDevice returns a Device with sensible defaults, suitable for test fixtures.
// Override individual fields with options.
func NewDevice(opts ...func(*models.Device)) models.Device {
	d := models.Device{
		Name:         "test-switch",
		Vendor:       "cisco",
		Model:        "catalyst-9300-24ux",
		Address:      "192.168.1.1",
		Adapter:      models.AdapterCLI,
		Dialect:      "ios",
		Capabilities: append([]models.Capability(nil), models.AllCapabilities...),
		Interval:     5 * time.Second,
		Timeout:      time.Second,
		Probe:        models.ProbeNative,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithName sets the device name.
func WithName(name string) func(*models.Device) {
	return func(d *models.Device) { d.Name = name }
}

// WithAdapter sets the adapter type.
func WithAdapter(t models.AdapterType) func(*models.Device) {
	return func(d *models.Device) { d.Adapter = t }
}

// WithCapabilities replaces the capability set.
func WithCapabilities(caps ...models.Capability) func(*models.Device) {
	return func(d *models.Device) { d.Capabilities = caps }
}

// WithInterval sets the poll interval.
func WithInterval(iv time.Duration) func(*models.Device) {
	return func(d *models.Device) { d.Interval = iv }
}

// NewSnapshot returns a snapshot for device with the given sequence.
func NewSnapshot(device string, seq uint64, at time.Time, opts ...func(*models.DeviceSnapshot)) *models.DeviceSnapshot {
	s := &models.DeviceSnapshot{
		Device:     device,
		Sequence:   seq,
		Timestamp:  at,
		Connected:  true,
		Ports:      []models.Port{},
		Hosts:      []models.Host{},
		DataSource: models.SourceSSHCLI,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// WithHosts sets the snapshot's hosts.
func WithHosts(hosts ...models.Host) func(*models.DeviceSnapshot) {
	return func(s *models.DeviceSnapshot) { s.Hosts = hosts }
}

// WithPorts sets the snapshot's ports.
func WithPorts(ports ...models.Port) func(*models.DeviceSnapshot) {
	return func(s *models.DeviceSnapshot) { s.Ports = ports }
}

// WithTraffic sets the snapshot's traffic sample.
func WithTraffic(in, out uint64) func(*models.DeviceSnapshot) {
	return func(s *models.DeviceSnapshot) {
		s.Traffic = &models.TrafficSample{Timestamp: s.Timestamp, InBytes: in, OutBytes: out}
	}
}

// WithSource sets the snapshot's data source.
func WithSource(src models.DataSource) func(*models.DeviceSnapshot) {
	return func(s *models.DeviceSnapshot) { s.DataSource = src }
}

// NewHost returns a host record seen at at.
func NewHost(device, ip, mac string, at time.Time) models.Host {
	return models.Host{IP: ip, MAC: mac, Device: device, FirstSeen: at, LastSeen: at}
}
