package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/HerbHall/switchyard/pkg/models"
)

// HealthSettings configures the per-device health state machine.
type HealthSettings struct {
	DegradedAfter       int           `mapstructure:"degraded_after"`
	ErrorAfter          int           `mapstructure:"error_after"`
	ParseErrorThreshold int           `mapstructure:"parse_error_threshold"`
	SettleWindow        time.Duration `mapstructure:"settle_window"`
}

// BackoffPolicy is the retry curve for one adapter family.
type BackoffPolicy struct {
	Base       time.Duration `mapstructure:"base"`
	Multiplier float64       `mapstructure:"multiplier"`
	Jitter     float64       `mapstructure:"jitter"`
}

// BackoffSettings holds the retry curves per adapter family.
type BackoffSettings struct {
	Ceiling time.Duration `mapstructure:"ceiling"`
	CLI     BackoffPolicy `mapstructure:"cli"`
	REST    BackoffPolicy `mapstructure:"rest"`
	SNMP    BackoffPolicy `mapstructure:"snmp"`
	NetFlow BackoffPolicy `mapstructure:"netflow"`
}

// For returns the policy for the given adapter type.
func (b BackoffSettings) For(t models.AdapterType) BackoffPolicy {
	switch t {
	case models.AdapterCLI:
		return b.CLI
	case models.AdapterREST:
		return b.REST
	case models.AdapterSNMP:
		return b.SNMP
	case models.AdapterNetFlow:
		return b.NetFlow
	}
	return b.REST
}

// DeviceSettings is one entry of monitor.devices.
type DeviceSettings struct {
	Name          string        `mapstructure:"name"`
	Vendor        string        `mapstructure:"vendor"`
	Model         string        `mapstructure:"model"`
	Address       string        `mapstructure:"address"`
	Port          int           `mapstructure:"port"`
	Adapter       string        `mapstructure:"adapter"`
	Dialect       string        `mapstructure:"dialect"`
	CredentialRef string        `mapstructure:"credential_ref"`
	Capabilities  []string      `mapstructure:"capabilities"`
	Interval      time.Duration `mapstructure:"interval"`
	Timeout       time.Duration `mapstructure:"timeout"`
	Probe         string        `mapstructure:"probe"`
	Insecure      bool          `mapstructure:"insecure"`
	Site          string        `mapstructure:"site"`
	Listen        string        `mapstructure:"listen"`
}

// MonitorSettings is the decoded monitor plugin configuration.
type MonitorSettings struct {
	TrafficHistory   int              `mapstructure:"traffic_history"`
	HostInactivity   time.Duration    `mapstructure:"host_inactivity"`
	StaleAfterFactor float64          `mapstructure:"stale_after_factor"`
	DefaultInterval  time.Duration    `mapstructure:"default_interval"`
	Health           HealthSettings   `mapstructure:"health"`
	Backoff          BackoffSettings  `mapstructure:"backoff"`
	Devices          []DeviceSettings `mapstructure:"devices"`
}

// DefaultMonitorSettings returns the conservative defaults.
func DefaultMonitorSettings() MonitorSettings {
	return MonitorSettings{
		TrafficHistory:   300,
		HostInactivity:   5 * time.Minute,
		StaleAfterFactor: 2,
		DefaultInterval:  10 * time.Second,
		Health: HealthSettings{
			DegradedAfter:       2,
			ErrorAfter:          5,
			ParseErrorThreshold: 3,
			SettleWindow:        15 * time.Second,
		},
		Backoff: BackoffSettings{
			Ceiling: 5 * time.Minute,
			CLI:     BackoffPolicy{Base: 10 * time.Second, Multiplier: 2.0, Jitter: 0.2},
			REST:    BackoffPolicy{Base: 5 * time.Second, Multiplier: 1.5, Jitter: 0.2},
			SNMP:    BackoffPolicy{Base: 5 * time.Second, Multiplier: 2.0, Jitter: 0.1},
			NetFlow: BackoffPolicy{Base: 2 * time.Second, Multiplier: 1.5, Jitter: 0.1},
		},
	}
}

// defaultTimeouts are the per-family call timeouts when a device sets none.
var defaultTimeouts = map[models.AdapterType]time.Duration{
	models.AdapterCLI:     15 * time.Second,
	models.AdapterREST:    10 * time.Second,
	models.AdapterSNMP:    5 * time.Second,
	models.AdapterNetFlow: 2 * time.Second,
}

var defaultDataPorts = map[models.AdapterType]int{
	models.AdapterCLI:  22,
	models.AdapterSNMP: 161,
}

// LoadMonitor decodes the monitor settings from c, fills defaults and validates.
func LoadMonitor(c *Config) (MonitorSettings, error) {
	s := DefaultMonitorSettings()
	if err := c.Unmarshal(&s); err != nil {
		return MonitorSettings{}, fmt.Errorf("decode monitor settings: %w", err)
	}
	s.fillDefaults()
	if err := s.Validate(); err != nil {
		return MonitorSettings{}, err
	}
	return s, nil
}

func (s *MonitorSettings) fillDefaults() {
	d := DefaultMonitorSettings()
	if s.TrafficHistory <= 0 {
		s.TrafficHistory = d.TrafficHistory
	}
	if s.HostInactivity <= 0 {
		s.HostInactivity = d.HostInactivity
	}
	if s.StaleAfterFactor <= 0 {
		s.StaleAfterFactor = d.StaleAfterFactor
	}
	if s.DefaultInterval <= 0 {
		s.DefaultInterval = d.DefaultInterval
	}
	if s.Backoff.Ceiling <= 0 {
		s.Backoff.Ceiling = d.Backoff.Ceiling
	}
	fillPolicy(&s.Backoff.CLI, d.Backoff.CLI)
	fillPolicy(&s.Backoff.REST, d.Backoff.REST)
	fillPolicy(&s.Backoff.SNMP, d.Backoff.SNMP)
	fillPolicy(&s.Backoff.NetFlow, d.Backoff.NetFlow)

	for i := range s.Devices {
		dev := &s.Devices[i]
		dev.Adapter = strings.ToLower(dev.Adapter)
		if dev.Interval <= 0 {
			dev.Interval = s.DefaultInterval
		}
		if dev.Timeout <= 0 {
			dev.Timeout = defaultTimeouts[models.AdapterType(dev.Adapter)]
		}
		if dev.Port == 0 {
			dev.Port = defaultDataPorts[models.AdapterType(dev.Adapter)]
		}
		if dev.Probe == "" {
			dev.Probe = string(models.ProbeNative)
		}
		if len(dev.Capabilities) == 0 {
			for _, c := range models.AllCapabilities {
				dev.Capabilities = append(dev.Capabilities, string(c))
			}
		}
	}
}

func fillPolicy(p *BackoffPolicy, d BackoffPolicy) {
	if p.Base <= 0 {
		p.Base = d.Base
	}
	if p.Multiplier < 1 {
		p.Multiplier = d.Multiplier
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		p.Jitter = d.Jitter
	}
}

// Validate checks cross-field constraints.
func (s MonitorSettings) Validate() error {
	var errs []error
	h := s.Health
	if h.DegradedAfter < 1 {
		errs = append(errs, errors.New("health.degraded_after must be >= 1"))
	}
	if h.ErrorAfter <= h.DegradedAfter {
		errs = append(errs, fmt.Errorf("health.error_after (%d) must be greater than degraded_after (%d)", h.ErrorAfter, h.DegradedAfter))
	}
	if h.ParseErrorThreshold < 1 {
		errs = append(errs, errors.New("health.parse_error_threshold must be >= 1"))
	}
	if h.SettleWindow < 0 {
		errs = append(errs, errors.New("health.settle_window must not be negative"))
	}

	seen := make(map[string]bool, len(s.Devices))
	for i, d := range s.Devices {
		if d.Name == "" {
			errs = append(errs, fmt.Errorf("devices[%d]: name is required", i))
			continue
		}
		if seen[d.Name] {
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate name %q", i, d.Name))
		}
		seen[d.Name] = true

		at := models.AdapterType(d.Adapter)
		if !at.Valid() {
			errs = append(errs, fmt.Errorf("device %q: unknown adapter %q", d.Name, d.Adapter))
		}
		if d.Address == "" {
			errs = append(errs, fmt.Errorf("device %q: address is required", d.Name))
		}
		if at == models.AdapterNetFlow && d.Listen == "" {
			errs = append(errs, fmt.Errorf("device %q: netflow adapter needs listen", d.Name))
		}
		switch models.ProbeKind(d.Probe) {
		case models.ProbeNative, models.ProbeICMP:
		case models.ProbeTCP:
			if at == models.AdapterSNMP || at == models.AdapterNetFlow {
				errs = append(errs, fmt.Errorf("device %q: tcp probe not supported for %s over udp", d.Name, d.Adapter))
			}
		default:
			errs = append(errs, fmt.Errorf("device %q: unknown probe %q", d.Name, d.Probe))
		}
		for _, c := range d.Capabilities {
			switch models.Capability(c) {
			case models.CapInterfaces, models.CapHosts, models.CapTraffic:
			default:
				errs = append(errs, fmt.Errorf("device %q: unknown capability %q", d.Name, c))
			}
		}
	}
	return errors.Join(errs...)
}

// DeviceModels converts the device settings into immutable model values.
func (s MonitorSettings) DeviceModels() []models.Device {
	out := make([]models.Device, 0, len(s.Devices))
	for _, d := range s.Devices {
		caps := make([]models.Capability, 0, len(d.Capabilities))
		for _, c := range d.Capabilities {
			caps = append(caps, models.Capability(c))
		}
		out = append(out, models.Device{
			Name:          d.Name,
			Vendor:        d.Vendor,
			Model:         d.Model,
			Address:       d.Address,
			Port:          d.Port,
			CredentialRef: d.CredentialRef,
			Adapter:       models.AdapterType(d.Adapter),
			Dialect:       strings.ToLower(d.Dialect),
			Capabilities:  caps,
			Interval:      d.Interval,
			Timeout:       d.Timeout,
			Probe:         models.ProbeKind(d.Probe),
			Insecure:      d.Insecure,
			Site:          d.Site,
			Listen:        d.Listen,
		})
	}
	return out
}
