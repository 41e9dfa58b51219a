package adapter

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/HerbHall/switchyard/internal/pulse"
	"github.com/HerbHall/switchyard/pkg/models"
)

// probed replaces an adapter's native HealthCheck with an ICMP or TCP probe.
type probed struct {
	Adapter
	device  models.Device
	checker pulse.Checker
	target  string
}

func withProbe(a Adapter, dev models.Device, opts Options) Adapter {
	if dev.Probe == "" || dev.Probe == models.ProbeNative {
		return a
	}
	checker := opts.Checkers[dev.Probe]
	if checker == nil {
		timeout := dev.Timeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		switch dev.Probe {
		case models.ProbeICMP:
			checker = pulse.NewICMPChecker(timeout, 2)
		case models.ProbeTCP:
			checker = pulse.NewTCPChecker(timeout)
		default:
			return a
		}
	}

	target := hostOnly(dev.Address)
	if dev.Probe == models.ProbeTCP {
		port := dev.Port
		if port == 0 {
			port = defaultProbePort(dev.Adapter)
		}
		target = net.JoinHostPort(target, strconv.Itoa(port))
	}
	return &probed{Adapter: a, device: dev, checker: checker, target: target}
}

func (p *probed) HealthCheck(ctx context.Context) error {
	res, err := p.checker.Check(ctx, p.target)
	if err != nil {
		return newError(KindConnectivity, p.device.Name, "health_check", err)
	}
	if !res.Success {
		msg := res.ErrorMessage
		if msg == "" {
			msg = "probe failed"
		}
		return newError(KindConnectivity, p.device.Name, "health_check", errors.New(msg))
	}
	return nil
}

// defaultProbePort is the TCP port a connect probe dials. SNMP and NetFlow
// run over UDP and are rejected for tcp probes at config validation.
func defaultProbePort(t models.AdapterType) int {
	if t == models.AdapterCLI {
		return 22
	}
	return 443
}

// hostOnly strips a scheme, path and port from an address like https://10.0.0.1:8443/x.
func hostOnly(addr string) string {
	for _, prefix := range []string{"https://", "http://"} {
		if rest, ok := strings.CutPrefix(addr, prefix); ok {
			addr, _, _ = strings.Cut(rest, "/")
			break
		}
	}
	if h, _, err := net.SplitHostPort(addr); err == nil {
		return h
	}
	return addr
}
