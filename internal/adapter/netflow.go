package adapter

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/switchyard/internal/config"
	"github.com/HerbHall/switchyard/pkg/models"
)

const (
	nfv5HeaderLen = 24
	nfv5RecordLen = 48
	nfv5MaxCount  = 30
	// Endpoints retained between QueryHosts calls.
	maxFlowHosts = 4096
)

func init() {
	Register(models.AdapterNetFlow, NewNetFlow)
}

// flowRecord is the part of a NetFlow v5 record we aggregate.
type flowRecord struct {
	Src      net.IP
	Dst      net.IP
	InputIf  uint16
	OutputIf uint16
	Packets  uint32
	Octets   uint32
}

// parseNetFlowV5 decodes a v5 export packet.
func parseNetFlowV5(b []byte) ([]flowRecord, error) {
	if len(b) < nfv5HeaderLen {
		return nil, fmt.Errorf("packet too short: %d bytes", len(b))
	}
	if v := binary.BigEndian.Uint16(b[0:2]); v != 5 {
		return nil, fmt.Errorf("unsupported netflow version %d", v)
	}
	count := int(binary.BigEndian.Uint16(b[2:4]))
	if count == 0 || count > nfv5MaxCount {
		return nil, fmt.Errorf("invalid record count %d", count)
	}
	if len(b) < nfv5HeaderLen+count*nfv5RecordLen {
		return nil, fmt.Errorf("truncated packet: %d records need %d bytes, have %d",
			count, nfv5HeaderLen+count*nfv5RecordLen, len(b))
	}

	recs := make([]flowRecord, 0, count)
	for i := 0; i < count; i++ {
		r := b[nfv5HeaderLen+i*nfv5RecordLen:]
		recs = append(recs, flowRecord{
			Src:      net.IP(append([]byte(nil), r[0:4]...)),
			Dst:      net.IP(append([]byte(nil), r[4:8]...)),
			InputIf:  binary.BigEndian.Uint16(r[12:14]),
			OutputIf: binary.BigEndian.Uint16(r[14:16]),
			Packets:  binary.BigEndian.Uint32(r[16:20]),
			Octets:   binary.BigEndian.Uint32(r[20:24]),
		})
	}
	return recs, nil
}

// NetFlowAdapter is a passive listener for NetFlow v5 exports. It keeps
// running totals per interface and the flow endpoints seen since the last
// host query. Its methods are safe for concurrent use with the listener.
type NetFlowAdapter struct {
	dev    models.Device
	logger *zap.Logger
	now    func() time.Time
	silent time.Duration

	mu        sync.Mutex
	conn      net.PacketConn
	done      chan struct{}
	started   time.Time
	lastPkt   time.Time
	ifaces    map[uint16]*models.Counters
	endpoints map[string]time.Time
	rejected  uint64
	malformed uint64

	traffic trafficTracker
}

// NewNetFlow builds a passive NetFlow v5 listener bound to dev.Listen.
// Only packets whose source is dev.Address are accepted, unless the
// address is "*".
func NewNetFlow(dev models.Device, _ config.Credentials, opts Options) (Adapter, error) {
	if dev.Listen == "" {
		return nil, errors.New("netflow: listen address required")
	}
	silent := 3 * dev.Interval
	if silent < 30*time.Second {
		silent = 30 * time.Second
	}
	return &NetFlowAdapter{
		dev:       dev,
		logger:    opts.Logger,
		now:       time.Now,
		silent:    silent,
		ifaces:    make(map[uint16]*models.Counters),
		endpoints: make(map[string]time.Time),
	}, nil
}

// Connect binds the UDP socket and starts the receive loop.
func (a *NetFlowAdapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn != nil {
		return nil
	}
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp", a.dev.Listen)
	if err != nil {
		return newError(KindConnectivity, a.dev.Name, "connect", fmt.Errorf("listen %s: %w", a.dev.Listen, err))
	}
	a.conn = conn
	a.done = make(chan struct{})
	a.started = a.now()
	go a.receive(conn, a.done)
	a.logger.Info("netflow listener started", zap.String("listen", conn.LocalAddr().String()))
	return nil
}

// Disconnect stops the listener. Aggregates survive so traffic deltas
// continue across a restart.
func (a *NetFlowAdapter) Disconnect() error {
	a.mu.Lock()
	conn, done := a.conn, a.done
	a.conn, a.done = nil, nil
	a.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-done
	return err
}

// LocalAddr returns the bound address, or nil when not listening.
func (a *NetFlowAdapter) LocalAddr() net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	return a.conn.LocalAddr()
}

func (a *NetFlowAdapter) receive(conn net.PacketConn, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 65535)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			a.logger.Warn("netflow read failed", zap.Error(err))
			continue
		}
		a.ingest(buf[:n], from)
	}
}

func (a *NetFlowAdapter) acceptFrom(from net.Addr) bool {
	if a.dev.Address == "*" || a.dev.Address == "" {
		return true
	}
	udp, ok := from.(*net.UDPAddr)
	if !ok {
		return false
	}
	want := net.ParseIP(a.dev.Address)
	return want != nil && want.Equal(udp.IP)
}

func (a *NetFlowAdapter) ingest(pkt []byte, from net.Addr) {
	if !a.acceptFrom(from) {
		a.mu.Lock()
		a.rejected++
		a.mu.Unlock()
		return
	}
	recs, err := parseNetFlowV5(pkt)
	now := a.now()

	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.malformed++
		a.logger.Debug("dropped netflow packet", zap.Error(err))
		return
	}
	a.lastPkt = now
	for _, r := range recs {
		a.iface(r.InputIf).InOctets += uint64(r.Octets)
		a.iface(r.OutputIf).OutOctets += uint64(r.Octets)
		if len(a.endpoints) < maxFlowHosts {
			a.endpoints[r.Src.String()] = now
			a.endpoints[r.Dst.String()] = now
		}
	}
}

// iface must be called with mu held.
func (a *NetFlowAdapter) iface(idx uint16) *models.Counters {
	c, ok := a.ifaces[idx]
	if !ok {
		c = &models.Counters{Wide: true}
		a.ifaces[idx] = c
	}
	return c
}

func (a *NetFlowAdapter) snapshotPorts(at time.Time) []models.Port {
	a.mu.Lock()
	defer a.mu.Unlock()
	ports := make([]models.Port, 0, len(a.ifaces))
	for idx, c := range a.ifaces {
		ports = append(ports, models.Port{
			Name:        "if" + strconv.Itoa(int(idx)),
			Index:       int(idx),
			AdminStatus: "up",
			OperStatus:  "up",
			Counters:    *c,
			UpdatedAt:   at,
		})
	}
	sortPorts(ports)
	return ports
}

// QueryInterfaces reports the interfaces seen in flow records with their
// accumulated byte totals.
func (a *NetFlowAdapter) QueryInterfaces(context.Context) (InterfaceResult, error) {
	if err := a.listening("query_interfaces"); err != nil {
		return InterfaceResult{}, err
	}
	return InterfaceResult{Ports: a.snapshotPorts(a.now())}, nil
}

// QueryHosts returns flow endpoints seen since the previous call.
func (a *NetFlowAdapter) QueryHosts(context.Context) ([]models.Host, error) {
	if err := a.listening("query_hosts"); err != nil {
		return nil, err
	}
	a.mu.Lock()
	seen := a.endpoints
	a.endpoints = make(map[string]time.Time)
	a.mu.Unlock()

	hosts := make([]models.Host, 0, len(seen))
	for ip, at := range seen {
		hosts = append(hosts, models.Host{IP: ip, Device: a.dev.Name, FirstSeen: at, LastSeen: at})
	}
	return hosts, nil
}

// QueryTraffic returns the bytes exported since the previous call.
func (a *NetFlowAdapter) QueryTraffic(context.Context) (*models.TrafficSample, error) {
	if err := a.listening("query_traffic"); err != nil {
		return nil, err
	}
	at := a.now()
	return a.traffic.observe(a.snapshotPorts(at), at), nil
}

// HealthCheck reports the listener healthy while it is bound and has
// received a packet recently. A fresh listener gets a grace period.
func (a *NetFlowAdapter) HealthCheck(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return newError(KindConnectivity, a.dev.Name, "health_check", errors.New("listener not running"))
	}
	now := a.now()
	last := a.lastPkt
	if last.IsZero() {
		last = a.started
	}
	if now.Sub(last) > a.silent {
		return newError(KindConnectivity, a.dev.Name, "health_check",
			fmt.Errorf("no flow export for %s", now.Sub(last).Truncate(time.Second)))
	}
	return nil
}

func (a *NetFlowAdapter) listening(op string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return newError(KindConnectivity, a.dev.Name, op, errors.New("listener not running"))
	}
	return nil
}

func (a *NetFlowAdapter) DataSource() models.DataSource { return models.SourceNetFlow }
func (a *NetFlowAdapter) Family() models.AdapterType    { return models.AdapterNetFlow }

var _ Adapter = (*NetFlowAdapter)(nil)
