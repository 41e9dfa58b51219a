package state

import (
	"sort"
	"strings"
	"time"

	"github.com/HerbHall/switchyard/pkg/models"
)

// HostEntry is one merged inventory record. Entries are keyed by IP; hosts
// reported without an IP are keyed by MAC.
type HostEntry struct {
	Key       string    `json:"key"`
	IP        string    `json:"ip,omitempty"`
	MACs      []string  `json:"macs"`
	Conflict  bool      `json:"conflict"`
	Hostname  string    `json:"hostname,omitempty"`
	Vendor    string    `json:"vendor,omitempty"`
	Device    string    `json:"device"`
	Port      string    `json:"port,omitempty"`
	VLAN      int       `json:"vlan,omitempty"`
	Devices   []string  `json:"devices"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	Online    bool      `json:"online"`
}

func hostKey(h models.Host) string {
	if h.IP != "" {
		return h.IP
	}
	if h.MAC != "" {
		return "mac:" + strings.ToLower(h.MAC)
	}
	return ""
}

// upsert folds one reported host into e. at is used when the host carries
// no LastSeen of its own.
func (e *HostEntry) upsert(h models.Host, device string, at time.Time) {
	seen := h.LastSeen
	if seen.IsZero() {
		seen = at
	}
	first := h.FirstSeen
	if first.IsZero() {
		first = seen
	}
	if e.FirstSeen.IsZero() || first.Before(e.FirstSeen) {
		e.FirstSeen = first
	}

	if mac := strings.ToLower(h.MAC); mac != "" && !contains(e.MACs, mac) {
		e.MACs = append(e.MACs, mac)
		sort.Strings(e.MACs)
	}
	if e.IP != "" {
		e.Conflict = len(e.MACs) > 1
	}
	if !contains(e.Devices, device) {
		e.Devices = append(e.Devices, device)
		sort.Strings(e.Devices)
	}

	if !seen.Before(e.LastSeen) {
		e.LastSeen = seen
		e.Device = device
		e.Port = h.Port
		e.VLAN = h.VLAN
		if h.Hostname != "" {
			e.Hostname = h.Hostname
		}
	} else if e.Hostname == "" && h.Hostname != "" {
		e.Hostname = h.Hostname
	}
}

func (e HostEntry) clone() HostEntry {
	e.MACs = append([]string(nil), e.MACs...)
	e.Devices = append([]string(nil), e.Devices...)
	return e
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
