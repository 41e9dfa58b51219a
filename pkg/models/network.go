package models

import "time"

// Counters holds the cumulative interface counters reported by a device.
type Counters struct {
	InOctets    uint64 `json:"in_octets"`
	OutOctets   uint64 `json:"out_octets"`
	InErrors    uint64 `json:"in_errors"`
	OutErrors   uint64 `json:"out_errors"`
	InDiscards  uint64 `json:"in_discards"`
	OutDiscards uint64 `json:"out_discards"`
	// Wide is true when the octet counters are 64-bit (ifHCInOctets and friends).
	Wide bool `json:"-"`
}

// Port is one physical or logical interface on a device.
type Port struct {
	Name        string    `json:"name"`
	Index       int       `json:"index"`
	Description string    `json:"description,omitempty"`
	AdminStatus string    `json:"admin_status"`
	OperStatus  string    `json:"oper_status"`
	SpeedMbps   uint64    `json:"speed_mbps"`
	Counters    Counters  `json:"counters"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// HasErrors reports whether any error counter on the port is non-zero.
func (p Port) HasErrors() bool {
	return p.Counters.InErrors > 0 || p.Counters.OutErrors > 0
}

// Host is an end station observed by a device, identified by IP and MAC.
type Host struct {
	IP        string    `json:"ip"`
	MAC       string    `json:"mac"`
	Hostname  string    `json:"hostname,omitempty"`
	Device    string    `json:"device"`
	Port      string    `json:"port,omitempty"`
	VLAN      int       `json:"vlan,omitempty"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// TrafficSample is the traffic observed on a device between two polls.
type TrafficSample struct {
	Timestamp   time.Time `json:"timestamp"`
	InBytes     uint64    `json:"in_bytes"`
	OutBytes    uint64    `json:"out_bytes"`
	ActivePorts int       `json:"active_ports"`
	Interval    float64   `json:"interval_seconds"`
	Resets      int       `json:"counter_resets,omitempty"`
}

// DeviceSnapshot is the immutable result of one poll cycle for one device.
//
// A nil Ports or Hosts slice means the collection was not queried. An empty,
// non-nil slice means the device reported nothing.
type DeviceSnapshot struct {
	Device     string         `json:"device"`
	Sequence   uint64         `json:"sequence"`
	Timestamp  time.Time      `json:"timestamp"`
	Connected  bool           `json:"connected"`
	Ports      []Port         `json:"ports"`
	Hosts      []Host         `json:"hosts"`
	Traffic    *TrafficSample `json:"traffic"`
	DataSource DataSource     `json:"data_source"`
	Partial    bool           `json:"partial,omitempty"`
	Error      string         `json:"error,omitempty"`
}

// HealthStatus is the health of a device or of the whole system.
type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthError    HealthStatus = "error"
)

// Severity orders health states so that a larger value is worse.
func (h HealthStatus) Severity() int {
	switch h {
	case HealthHealthy:
		return 0
	case HealthDegraded:
		return 1
	case HealthError:
		return 2
	}
	return -1
}

// Worst returns the most severe of the given states, or healthy when empty.
func Worst(states ...HealthStatus) HealthStatus {
	worst := HealthHealthy
	for _, s := range states {
		if s.Severity() > worst.Severity() {
			worst = s
		}
	}
	return worst
}

// DeviceHealth is the published health of one device.
type DeviceHealth struct {
	Status              HealthStatus `json:"status"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	Terminal            bool         `json:"terminal,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
	LastErrorKind       string       `json:"last_error_kind,omitempty"`
	Since               time.Time    `json:"since"`
}
