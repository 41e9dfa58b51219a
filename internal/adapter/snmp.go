package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"
	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/pkg/models"
)

// IF-MIB and IP-MIB objects.
const (
	oidSysUpTime       = ".1.3.6.1.2.1.1.3.0"
	oidIfEntry         = ".1.3.6.1.2.1.2.2.1"
	oidIfXEntry        = ".1.3.6.1.2.1.31.1.1.1"
	oidIpNetToMediaMAC = ".1.3.6.1.2.1.4.22.1.2"
)

// ifEntry columns.
const (
	colIfDescr       = 2
	colIfSpeed       = 5
	colIfAdminStatus = 7
	colIfOperStatus  = 8
	colIfInOctets    = 10
	colIfInDiscards  = 13
	colIfInErrors    = 14
	colIfOutOctets   = 16
	colIfOutDiscards = 19
	colIfOutErrors   = 20
)

// ifXEntry columns.
const (
	colIfName        = 1
	colIfHCInOctets  = 6
	colIfHCOutOctets = 10
	colIfHighSpeed   = 15
	colIfAlias       = 18
)

func init() {
	Register(models.AdapterSNMP, NewSNMP)
}

// snmpSession is the subset of gosnmp used by the adapter.
type snmpSession interface {
	Connect(ctx context.Context) error
	Close() error
	BulkWalkAll(ctx context.Context, oid string) ([]gosnmp.SnmpPDU, error)
	Get(ctx context.Context, oids []string) (*gosnmp.SnmpPacket, error)
}

type goSNMPSession struct {
	g *gosnmp.GoSNMP
}

func (s *goSNMPSession) Connect(ctx context.Context) error {
	s.g.Context = ctx
	return s.g.Connect()
}

func (s *goSNMPSession) Close() error {
	if s.g.Conn == nil {
		return nil
	}
	return s.g.Conn.Close()
}

func (s *goSNMPSession) BulkWalkAll(ctx context.Context, oid string) ([]gosnmp.SnmpPDU, error) {
	s.g.Context = ctx
	return s.g.BulkWalkAll(oid)
}

func (s *goSNMPSession) Get(ctx context.Context, oids []string) (*gosnmp.SnmpPacket, error) {
	s.g.Context = ctx
	return s.g.Get(oids)
}

// SNMPAdapter polls IF-MIB and the ARP table over SNMP v2c or v3.
type SNMPAdapter struct {
	dev     models.Device
	logger  *zap.Logger
	newSess func() snmpSession
	now     func() time.Time

	sess    snmpSession
	ports   portCache
	traffic trafficTracker
}

// NewSNMP builds an SNMP adapter. A username in the credentials selects
// SNMPv3, otherwise v2c with the community (default "public").
func NewSNMP(dev models.Device, creds config.Credentials, opts Options) (Adapter, error) {
	timeout := dev.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	port := dev.Port
	if port == 0 {
		port = 161
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("snmp: port %d out of range", port)
	}

	build := func() snmpSession {
		g := &gosnmp.GoSNMP{
			Target:         dev.Address,
			Port:           uint16(port),
			Transport:      "udp",
			Timeout:        timeout,
			Retries:        1,
			MaxRepetitions: 25,
			Version:        gosnmp.Version2c,
			Community:      creds.Community,
		}
		if g.Community == "" {
			g.Community = "public"
		}
		if creds.Username != "" {
			g.Version = gosnmp.Version3
			g.SecurityModel = gosnmp.UserSecurityModel
			usm := &gosnmp.UsmSecurityParameters{
				UserName:                 creds.Username,
				AuthenticationProtocol:   authProtocol(creds.AuthProtocol),
				AuthenticationPassphrase: creds.AuthPassphrase,
				PrivacyProtocol:          privProtocol(creds.PrivProtocol),
				PrivacyPassphrase:        creds.PrivPassphrase,
			}
			switch {
			case creds.PrivPassphrase != "":
				g.MsgFlags = gosnmp.AuthPriv
			case creds.AuthPassphrase != "":
				g.MsgFlags = gosnmp.AuthNoPriv
				usm.PrivacyProtocol = gosnmp.NoPriv
			default:
				g.MsgFlags = gosnmp.NoAuthNoPriv
				usm.AuthenticationProtocol = gosnmp.NoAuth
				usm.PrivacyProtocol = gosnmp.NoPriv
			}
			g.SecurityParameters = usm
		}
		return &goSNMPSession{g: g}
	}

	return &SNMPAdapter{
		dev:     dev,
		logger:  opts.Logger,
		newSess: build,
		now:     time.Now,
	}, nil
}

func authProtocol(s string) gosnmp.SnmpV3AuthProtocol {
	switch strings.ToUpper(s) {
	case "MD5":
		return gosnmp.MD5
	case "SHA256":
		return gosnmp.SHA256
	case "SHA512":
		return gosnmp.SHA512
	}
	return gosnmp.SHA
}

func privProtocol(s string) gosnmp.SnmpV3PrivProtocol {
	switch strings.ToUpper(s) {
	case "DES":
		return gosnmp.DES
	case "AES256":
		return gosnmp.AES256
	}
	return gosnmp.AES
}

// Connect opens the UDP socket and confirms the agent answers.
func (a *SNMPAdapter) Connect(ctx context.Context) error {
	if a.sess != nil {
		return nil
	}
	s := a.newSess()
	if err := s.Connect(ctx); err != nil {
		return classify(a.dev.Name, "connect", err)
	}
	if err := a.uptime(ctx, s, "connect"); err != nil {
		_ = s.Close()
		return err
	}
	a.sess = s
	return nil
}

func (a *SNMPAdapter) Disconnect() error {
	if a.sess == nil {
		return nil
	}
	err := a.sess.Close()
	a.sess = nil
	return err
}

func (a *SNMPAdapter) uptime(ctx context.Context, s snmpSession, op string) error {
	pkt, err := s.Get(ctx, []string{oidSysUpTime})
	if err != nil {
		return classify(a.dev.Name, op, err)
	}
	if pkt.Error != gosnmp.NoError {
		if pkt.Error == gosnmp.AuthorizationError {
			return newError(KindAuth, a.dev.Name, op, fmt.Errorf("agent returned %s", pkt.Error))
		}
		return newError(KindConnectivity, a.dev.Name, op, fmt.Errorf("agent returned %s", pkt.Error))
	}
	return nil
}

func (a *SNMPAdapter) session(op string) (snmpSession, error) {
	if a.sess == nil {
		return nil, newError(KindConnectivity, a.dev.Name, op, errors.New("not connected"))
	}
	return a.sess, nil
}

func (a *SNMPAdapter) readPorts(ctx context.Context, op string) (InterfaceResult, time.Time, error) {
	s, err := a.session(op)
	if err != nil {
		return InterfaceResult{}, time.Time{}, err
	}
	ifTable, err := s.BulkWalkAll(ctx, oidIfEntry)
	if err != nil {
		return InterfaceResult{}, time.Time{}, classify(a.dev.Name, op, err)
	}
	// ifXTable is optional on older agents.
	ifXTable, err := s.BulkWalkAll(ctx, oidIfXEntry)
	if err != nil {
		a.logger.Debug("ifXTable walk failed", zap.Error(err))
		ifXTable = nil
	}

	at := a.now()
	ports, partial := buildPorts(ifTable, ifXTable, at)
	if len(ports) == 0 && len(ifTable) > 0 {
		return InterfaceResult{}, at, newError(KindParse, a.dev.Name, op,
			fmt.Errorf("no usable rows in %d ifTable varbinds", len(ifTable)))
	}
	return InterfaceResult{Ports: ports, Partial: partial}, at, nil
}

func (a *SNMPAdapter) QueryInterfaces(ctx context.Context) (InterfaceResult, error) {
	res, at, err := a.readPorts(ctx, "query_interfaces")
	if err != nil {
		return InterfaceResult{}, err
	}
	a.ports.store(res.Ports, at)
	return res, nil
}

func (a *SNMPAdapter) QueryHosts(ctx context.Context) ([]models.Host, error) {
	s, err := a.session("query_hosts")
	if err != nil {
		return nil, err
	}
	pdus, err := s.BulkWalkAll(ctx, oidIpNetToMediaMAC)
	if err != nil {
		return nil, classify(a.dev.Name, "query_hosts", err)
	}
	return buildARPHosts(pdus, a.dev.Name, a.now()), nil
}

func (a *SNMPAdapter) QueryTraffic(ctx context.Context) (*models.TrafficSample, error) {
	ports, at, ok := a.ports.take()
	if !ok {
		res, readAt, err := a.readPorts(ctx, "query_traffic")
		if err != nil {
			return nil, err
		}
		ports, at = res.Ports, readAt
	}
	return a.traffic.observe(ports, at), nil
}

// HealthCheck reads sysUpTime, reusing the session when one is open.
func (a *SNMPAdapter) HealthCheck(ctx context.Context) error {
	if a.sess != nil {
		return a.uptime(ctx, a.sess, "health_check")
	}
	s := a.newSess()
	if err := s.Connect(ctx); err != nil {
		return classify(a.dev.Name, "health_check", err)
	}
	defer s.Close()
	return a.uptime(ctx, s, "health_check")
}

func (a *SNMPAdapter) DataSource() models.DataSource { return models.SourceSNMP }
func (a *SNMPAdapter) Family() models.AdapterType    { return models.AdapterSNMP }

var _ Adapter = (*SNMPAdapter)(nil)

// splitColumn splits ".<entry>.<col>.<index...>" into column and index suffix.
func splitColumn(name, entry string) (int, string, bool) {
	if !strings.HasPrefix(name, ".") {
		name = "." + name
	}
	rest, ok := strings.CutPrefix(name, entry+".")
	if !ok {
		return 0, "", false
	}
	colStr, idx, ok := strings.Cut(rest, ".")
	if !ok {
		return 0, "", false
	}
	col, err := strconv.Atoi(colStr)
	if err != nil {
		return 0, "", false
	}
	return col, idx, true
}

func pduUint(pdu gosnmp.SnmpPDU) (uint64, bool) {
	switch pdu.Type {
	case gosnmp.Counter32, gosnmp.Gauge32, gosnmp.Counter64, gosnmp.Integer,
		gosnmp.Uinteger32, gosnmp.TimeTicks:
		return gosnmp.ToBigInt(pdu.Value).Uint64(), true
	}
	return 0, false
}

func pduString(pdu gosnmp.SnmpPDU) string {
	if pdu.Type != gosnmp.OctetString {
		return ""
	}
	switch v := pdu.Value.(type) {
	case []byte:
		return string(v)
	case string:
		return v
	}
	return ""
}

func ifStatus(v uint64) string {
	switch v {
	case 1:
		return "up"
	case 2:
		return "down"
	case 3:
		return "testing"
	case 5:
		return "dormant"
	case 6:
		return "notPresent"
	case 7:
		return "lowerLayerDown"
	}
	return "unknown"
}

// buildPorts assembles ports from ifTable and ifXTable varbinds. HC
// counters replace the 32-bit ones when present.
func buildPorts(ifTable, ifXTable []gosnmp.SnmpPDU, at time.Time) ([]models.Port, bool) {
	byIndex := make(map[int]*models.Port)
	var order []int
	partial := false

	get := func(idx string) *models.Port {
		i, err := strconv.Atoi(idx)
		if err != nil {
			partial = true
			return nil
		}
		p, ok := byIndex[i]
		if !ok {
			p = &models.Port{Index: i, AdminStatus: "unknown", OperStatus: "unknown", UpdatedAt: at}
			byIndex[i] = p
			order = append(order, i)
		}
		return p
	}

	for _, pdu := range ifTable {
		if pdu.Type == gosnmp.NoSuchObject || pdu.Type == gosnmp.NoSuchInstance || pdu.Type == gosnmp.EndOfMibView {
			continue
		}
		col, idx, ok := splitColumn(pdu.Name, oidIfEntry)
		if !ok {
			partial = true
			continue
		}
		p := get(idx)
		if p == nil {
			continue
		}
		if col == colIfDescr {
			if p.Name == "" {
				p.Name = pduString(pdu)
			}
			continue
		}
		v, isNum := pduUint(pdu)
		if !isNum {
			continue
		}
		switch col {
		case colIfSpeed:
			if p.SpeedMbps == 0 {
				p.SpeedMbps = v / 1_000_000
			}
		case colIfAdminStatus:
			p.AdminStatus = ifStatus(v)
		case colIfOperStatus:
			p.OperStatus = ifStatus(v)
		case colIfInOctets:
			if !p.Counters.Wide {
				p.Counters.InOctets = v
			}
		case colIfOutOctets:
			if !p.Counters.Wide {
				p.Counters.OutOctets = v
			}
		case colIfInErrors:
			p.Counters.InErrors = v
		case colIfOutErrors:
			p.Counters.OutErrors = v
		case colIfInDiscards:
			p.Counters.InDiscards = v
		case colIfOutDiscards:
			p.Counters.OutDiscards = v
		}
	}

	hcIn := make(map[int]uint64)
	hcOut := make(map[int]uint64)
	for _, pdu := range ifXTable {
		col, idx, ok := splitColumn(pdu.Name, oidIfXEntry)
		if !ok {
			continue
		}
		i, err := strconv.Atoi(idx)
		if err != nil {
			continue
		}
		p, known := byIndex[i]
		if !known {
			continue
		}
		switch col {
		case colIfName:
			if n := pduString(pdu); n != "" {
				p.Name = n
			}
		case colIfAlias:
			p.Description = pduString(pdu)
		case colIfHighSpeed:
			if v, ok := pduUint(pdu); ok && v > 0 {
				p.SpeedMbps = v
			}
		case colIfHCInOctets:
			if v, ok := pduUint(pdu); ok {
				hcIn[i] = v
			}
		case colIfHCOutOctets:
			if v, ok := pduUint(pdu); ok {
				hcOut[i] = v
			}
		}
	}
	for i, p := range byIndex {
		in, okIn := hcIn[i]
		out, okOut := hcOut[i]
		if okIn && okOut {
			p.Counters.InOctets, p.Counters.OutOctets, p.Counters.Wide = in, out, true
		}
	}

	ports := make([]models.Port, 0, len(order))
	for _, i := range order {
		p := byIndex[i]
		if p.Name == "" {
			p.Name = "if" + strconv.Itoa(i)
		}
		ports = append(ports, *p)
	}
	return ports, partial
}

// buildARPHosts reads ipNetToMediaPhysAddress rows, indexed by
// <ifIndex>.<a>.<b>.<c>.<d>.
func buildARPHosts(pdus []gosnmp.SnmpPDU, device string, at time.Time) []models.Host {
	hosts := []models.Host{}
	for _, pdu := range pdus {
		name := pdu.Name
		if !strings.HasPrefix(name, ".") {
			name = "." + name
		}
		suffix, ok := strings.CutPrefix(name, oidIpNetToMediaMAC+".")
		if !ok {
			continue
		}
		parts := strings.Split(suffix, ".")
		if len(parts) != 5 {
			continue
		}
		ip := net.ParseIP(strings.Join(parts[1:], "."))
		if ip == nil {
			continue
		}
		raw, ok := pdu.Value.([]byte)
		if !ok || len(raw) != 6 {
			continue
		}
		hosts = append(hosts, models.Host{
			IP:        ip.String(),
			MAC:       net.HardwareAddr(raw).String(),
			Device:    device,
			Port:      "if" + parts[0],
			FirstSeen: at,
			LastSeen:  at,
		})
	}
	return hosts
}
