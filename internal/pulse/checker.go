// Package pulse provides reachability probes used as device health checks.
package pulse

import (
	"context"
	"fmt"
	"net"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// CheckResult is the outcome of one reachability probe.
type CheckResult struct {
	Target       string    `json:"target"`
	Success      bool      `json:"success"`
	LatencyMs    float64   `json:"latency_ms"`
	PacketLoss   float64   `json:"packet_loss"`
	ErrorMessage string    `json:"error_message,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

// Checker executes a reachability check against a target and returns the result.
// An unreachable target is reported through CheckResult.Success, not an error.
type Checker interface {
	Check(ctx context.Context, target string) (*CheckResult, error)
}

// ICMPChecker pings targets using ICMP via pro-bing.
type ICMPChecker struct {
	timeout time.Duration
	count   int
}

// NewICMPChecker creates a new ICMP checker with the given timeout and ping count.
func NewICMPChecker(timeout time.Duration, count int) *ICMPChecker {
	return &ICMPChecker{
		timeout: timeout,
		count:   count,
	}
}

// Check pings the target and returns the result.
func (c *ICMPChecker) Check(ctx context.Context, target string) (*CheckResult, error) {
	pinger, err := probing.NewPinger(target)
	if err != nil {
		return nil, fmt.Errorf("create pinger: %w", err)
	}

	pinger.Count = c.count
	pinger.Timeout = c.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		stats := pinger.Statistics()
		result := &CheckResult{
			Target:    target,
			CheckedAt: time.Now().UTC(),
		}

		if runErr != nil {
			result.ErrorMessage = runErr.Error()
			result.PacketLoss = 1.0
			return result, nil
		}

		result.LatencyMs = float64(stats.AvgRtt) / float64(time.Millisecond)
		result.PacketLoss = stats.PacketLoss / 100.0 // pro-bing returns 0-100
		result.Success = stats.PacketsRecv > 0
		if !result.Success {
			result.ErrorMessage = "all packets lost"
		}
		return result, nil

	case <-ctx.Done():
		pinger.Stop()
		return cancelled(target), nil
	}
}

// TCPChecker checks that a TCP port accepts connections.
type TCPChecker struct {
	timeout time.Duration
	dialer  net.Dialer
}

// NewTCPChecker creates a TCP connect checker. Target is host:port.
func NewTCPChecker(timeout time.Duration) *TCPChecker {
	return &TCPChecker{timeout: timeout, dialer: net.Dialer{Timeout: timeout}}
}

// Check dials target and closes the connection immediately.
func (c *TCPChecker) Check(ctx context.Context, target string) (*CheckResult, error) {
	if _, _, err := net.SplitHostPort(target); err != nil {
		return nil, fmt.Errorf("tcp check target %q: %w", target, err)
	}

	start := time.Now()
	conn, err := c.dialer.DialContext(ctx, "tcp", target)
	if ctx.Err() != nil {
		return cancelled(target), nil
	}
	result := &CheckResult{Target: target, CheckedAt: time.Now().UTC()}
	if err != nil {
		result.ErrorMessage = err.Error()
		result.PacketLoss = 1.0
		return result, nil
	}
	_ = conn.Close()

	result.Success = true
	result.LatencyMs = float64(time.Since(start)) / float64(time.Millisecond)
	return result, nil
}

func cancelled(target string) *CheckResult {
	return &CheckResult{
		Target:       target,
		Success:      false,
		PacketLoss:   1.0,
		ErrorMessage: "check cancelled",
		CheckedAt:    time.Now().UTC(),
	}
}

// Compile-time interface guards.
var (
	_ Checker = (*ICMPChecker)(nil)
	_ Checker = (*TCPChecker)(nil)
)
