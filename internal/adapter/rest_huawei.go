package adapter

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/switchyard/pkg/models"
)

type huaweiPort struct {
	PortID      int    `json:"portId"`
	PortName    string `json:"portName"`
	Description string `json:"description"`
	AdminStatus string `json:"adminStatus"`
	OperStatus  string `json:"operStatus"`
	Speed       uint64 `json:"speed"`
	Statistics  struct {
		InOctets    uint64 `json:"inOctets"`
		OutOctets   uint64 `json:"outOctets"`
		InErrors    uint64 `json:"inErrors"`
		OutErrors   uint64 `json:"outErrors"`
		InDiscards  uint64 `json:"inDiscards"`
		OutDiscards uint64 `json:"outDiscards"`
	} `json:"statistics"`
}

type huaweiPorts struct {
	Ports []huaweiPort `json:"ports"`
}

type huaweiFDB struct {
	FDB []struct {
		MAC  string `json:"mac"`
		VLAN int    `json:"vlan"`
		Port string `json:"port"`
		IP   string `json:"ip"`
	} `json:"fdb"`
}

type huaweiLLDP struct {
	Neighbors []struct {
		DeviceName   string `json:"deviceName"`
		LocalPort    string `json:"localPort"`
		RemotePort   string `json:"remotePort"`
		ManagementIP string `json:"managementIp"`
		ChassisID    string `json:"chassisId"`
	} `json:"neighbors"`
}

// huaweiDialect speaks the basic-auth JSON API of Huawei access gear.
type huaweiDialect struct{}

func (huaweiDialect) healthPath() string { return "/api/system/info" }

// login validates the credentials; the API itself is stateless.
func (huaweiDialect) login(ctx context.Context, c *restClient) error {
	return c.getJSON(ctx, "connect", "/api/system/info", nil)
}

func (huaweiDialect) logout(context.Context, *restClient) error { return nil }

func (huaweiDialect) ports(ctx context.Context, c *restClient, at time.Time) ([]models.Port, bool, error) {
	var body huaweiPorts
	if err := c.getJSON(ctx, "query_interfaces", "/api/ports", &body); err != nil {
		return nil, false, err
	}
	ports := make([]models.Port, 0, len(body.Ports))
	partial := false
	for _, p := range body.Ports {
		name := p.PortName
		if name == "" {
			if p.PortID == 0 {
				partial = true
				continue
			}
			name = "port" + strconv.Itoa(p.PortID)
		}
		ports = append(ports, models.Port{
			Name:        name,
			Index:       p.PortID,
			Description: p.Description,
			AdminStatus: strings.ToLower(p.AdminStatus),
			OperStatus:  strings.ToLower(p.OperStatus),
			SpeedMbps:   p.Speed,
			Counters: models.Counters{
				InOctets:    p.Statistics.InOctets,
				OutOctets:   p.Statistics.OutOctets,
				InErrors:    p.Statistics.InErrors,
				OutErrors:   p.Statistics.OutErrors,
				InDiscards:  p.Statistics.InDiscards,
				OutDiscards: p.Statistics.OutDiscards,
				Wide:        true,
			},
			UpdatedAt: at,
		})
	}
	return ports, partial, nil
}

// hosts merges the forwarding table with LLDP neighbours that advertise a
// management address. LLDP is best effort.
func (huaweiDialect) hosts(ctx context.Context, c *restClient, at time.Time) ([]models.Host, error) {
	var fdb huaweiFDB
	if err := c.getJSON(ctx, "query_hosts", "/api/fdb", &fdb); err != nil {
		return nil, err
	}
	hosts := make([]models.Host, 0, len(fdb.FDB))
	for _, e := range fdb.FDB {
		if e.MAC == "" {
			continue
		}
		hosts = append(hosts, models.Host{
			IP:        e.IP,
			MAC:       normalizeMAC(e.MAC),
			Device:    c.device,
			Port:      e.Port,
			VLAN:      e.VLAN,
			FirstSeen: at,
			LastSeen:  at,
		})
	}

	var lldp huaweiLLDP
	if err := c.getJSON(ctx, "query_hosts", "/api/lldp/neighbors", &lldp); err != nil {
		if KindOf(err) == KindAuth {
			return nil, err
		}
		return hosts, nil
	}
	for _, n := range lldp.Neighbors {
		if n.ManagementIP == "" {
			continue
		}
		hosts = append(hosts, models.Host{
			IP:        n.ManagementIP,
			MAC:       normalizeMAC(n.ChassisID),
			Hostname:  n.DeviceName,
			Device:    c.device,
			Port:      n.LocalPort,
			FirstSeen: at,
			LastSeen:  at,
		})
	}
	return hosts, nil
}

// normalizeMAC lower-cases a MAC and converts dotted or dashed forms to
// colon form. Strings that are not MACs come back empty.
func normalizeMAC(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	raw := strings.NewReplacer(":", "", "-", "", ".", "").Replace(s)
	if len(raw) != 12 {
		return ""
	}
	for _, r := range raw {
		if !strings.ContainsRune("0123456789abcdef", r) {
			return ""
		}
	}
	return dottedToColon(raw)
}
