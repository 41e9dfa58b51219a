package models

import (
	"slices"
	"time"
)

// AdapterType selects the management protocol used to talk to a device.
type AdapterType string

const (
	AdapterCLI     AdapterType = "cli"
	AdapterREST    AdapterType = "rest"
	AdapterSNMP    AdapterType = "snmp"
	AdapterNetFlow AdapterType = "netflow"
)

// Valid reports whether t is a known adapter type.
func (t AdapterType) Valid() bool {
	switch t {
	case AdapterCLI, AdapterREST, AdapterSNMP, AdapterNetFlow:
		return true
	}
	return false
}

// Capability names one class of data a device can report.
type Capability string

const (
	CapInterfaces Capability = "interfaces"
	CapHosts      Capability = "hosts"
	CapTraffic    Capability = "traffic"
)

// AllCapabilities is the default capability set when none is configured.
var AllCapabilities = []Capability{CapInterfaces, CapHosts, CapTraffic}

// ProbeKind selects how a device's reachability is checked before a poll.
type ProbeKind string

const (
	ProbeNative ProbeKind = "native"
	ProbeICMP   ProbeKind = "icmp"
	ProbeTCP    ProbeKind = "tcp"
)

// DataSource identifies the live protocol that produced a snapshot.
type DataSource string

const (
	SourceSSHCLI  DataSource = "ssh-cli"
	SourceRESTAPI DataSource = "rest-api"
	SourceSNMP    DataSource = "snmp"
	SourceNetFlow DataSource = "netflow"
)

// Device is the static identity of a monitored network device.
// Devices are built once from configuration and never mutated.
type Device struct {
	Name          string        `json:"name"`
	Vendor        string        `json:"vendor"`
	Model         string        `json:"model,omitempty"`
	Address       string        `json:"address"`
	Port          int           `json:"port,omitempty"`
	CredentialRef string        `json:"-"`
	Adapter       AdapterType   `json:"adapter"`
	Dialect       string        `json:"dialect,omitempty"`
	Capabilities  []Capability  `json:"capabilities"`
	Interval      time.Duration `json:"-"`
	Timeout       time.Duration `json:"-"`
	Probe         ProbeKind     `json:"probe"`
	Insecure      bool          `json:"-"`
	Site          string        `json:"site,omitempty"`
	// Listen is the local bind address of a passive listener (netflow only).
	Listen string `json:"-"`
}

// Has reports whether the device advertises capability c.
func (d Device) Has(c Capability) bool {
	return slices.Contains(d.Capabilities, c)
}
