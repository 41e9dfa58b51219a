package adapter

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/HerbHall/switchyard/pkg/models"
)

type unifiLogin struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type unifiPort struct {
	PortIdx   int    `json:"port_idx"`
	Name      string `json:"name"`
	Up        bool   `json:"up"`
	Enable    *bool  `json:"enable"`
	Speed     uint64 `json:"speed"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	RxErrors  uint64 `json:"rx_errors"`
	TxErrors  uint64 `json:"tx_errors"`
	RxDropped uint64 `json:"rx_dropped"`
	TxDropped uint64 `json:"tx_dropped"`
}

type unifiDevices struct {
	Data []struct {
		Name      string      `json:"name"`
		IP        string      `json:"ip"`
		MAC       string      `json:"mac"`
		PortTable []unifiPort `json:"port_table"`
	} `json:"data"`
}

type unifiClients struct {
	Data []struct {
		IP       string `json:"ip"`
		MAC      string `json:"mac"`
		Name     string `json:"name"`
		Hostname string `json:"hostname"`
		SwPort   int    `json:"sw_port"`
		VLAN     int    `json:"vlan"`
	} `json:"data"`
}

// unifiDialect speaks the UniFi OS controller API: cookie login with a
// CSRF token echoed on every request.
type unifiDialect struct {
	site string
}

func (d *unifiDialect) healthPath() string { return "/api/v2/system/info" }

func (d *unifiDialect) login(ctx context.Context, c *restClient) error {
	c.header.Del("X-CSRF-Token")
	resp, err := c.do(ctx, "connect", http.MethodPost, "/api/users/login",
		unifiLogin{Username: c.creds.Username, Password: c.creds.Password}, nil)
	if err != nil {
		return err
	}
	token := resp.Header.Get("X-CSRF-Token")
	for _, ck := range resp.Cookies() {
		if ck.Name == "csrf_token" {
			token = ck.Value
		}
	}
	if token != "" {
		c.header.Set("X-CSRF-Token", token)
	}
	return nil
}

func (d *unifiDialect) logout(ctx context.Context, c *restClient) error {
	_, err := c.do(ctx, "disconnect", http.MethodPost, "/api/users/logout", nil, nil)
	c.header.Del("X-CSRF-Token")
	return err
}

func (d *unifiDialect) ports(ctx context.Context, c *restClient, at time.Time) ([]models.Port, bool, error) {
	var body unifiDevices
	if err := c.getJSON(ctx, "query_interfaces", "/api/v2/sites/"+d.site+"/devices", &body); err != nil {
		return nil, false, err
	}

	ports := []models.Port{}
	prefix := len(body.Data) > 1
	for _, dev := range body.Data {
		for _, p := range dev.PortTable {
			name := p.Name
			if name == "" {
				name = "Port " + strconv.Itoa(p.PortIdx)
			}
			if prefix {
				name = dev.Name + "/" + name
			}
			admin := "up"
			if p.Enable != nil && !*p.Enable {
				admin = "down"
			}
			oper := "down"
			if p.Up {
				oper = "up"
			}
			ports = append(ports, models.Port{
				Name:        name,
				Index:       p.PortIdx,
				AdminStatus: admin,
				OperStatus:  oper,
				SpeedMbps:   p.Speed,
				Counters: models.Counters{
					InOctets:    p.RxBytes,
					OutOctets:   p.TxBytes,
					InErrors:    p.RxErrors,
					OutErrors:   p.TxErrors,
					InDiscards:  p.RxDropped,
					OutDiscards: p.TxDropped,
					Wide:        true,
				},
				UpdatedAt: at,
			})
		}
	}
	return ports, false, nil
}

func (d *unifiDialect) hosts(ctx context.Context, c *restClient, at time.Time) ([]models.Host, error) {
	var body unifiClients
	if err := c.getJSON(ctx, "query_hosts", "/api/v2/sites/"+d.site+"/clients", &body); err != nil {
		return nil, err
	}
	hosts := make([]models.Host, 0, len(body.Data))
	for _, cl := range body.Data {
		if cl.IP == "" || cl.MAC == "" {
			continue
		}
		name := cl.Name
		if name == "" {
			name = cl.Hostname
		}
		h := models.Host{
			IP:        cl.IP,
			MAC:       normalizeMAC(cl.MAC),
			Hostname:  name,
			Device:    c.device,
			VLAN:      cl.VLAN,
			FirstSeen: at,
			LastSeen:  at,
		}
		if cl.SwPort > 0 {
			h.Port = "Port " + strconv.Itoa(cl.SwPort)
		}
		hosts = append(hosts, h)
	}
	return hosts, nil
}
