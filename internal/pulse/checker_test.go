package pulse

import (
	"context"
	"net"
	"testing"
	"time"
)

// ICMPChecker.Check needs raw socket permissions and is not exercised here.
// TCPChecker is tested against an in-process listener.

func TestNewICMPChecker(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		count   int
	}{
		{name: "default values", timeout: 5 * time.Second, count: 3},
		{name: "short timeout", timeout: 1 * time.Second, count: 1},
		{name: "zero values", timeout: 0, count: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewICMPChecker(tt.timeout, tt.count)
			if c.timeout != tt.timeout {
				t.Errorf("timeout = %v, want %v", c.timeout, tt.timeout)
			}
			if c.count != tt.count {
				t.Errorf("count = %d, want %d", c.count, tt.count)
			}
		})
	}
}

func TestTCPChecker_Success(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	got, err := NewTCPChecker(time.Second).Check(context.Background(), ln.Addr().String())
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !got.Success {
		t.Errorf("Success = false, want true (msg %q)", got.ErrorMessage)
	}
	if got.Target != ln.Addr().String() {
		t.Errorf("Target = %q, want %q", got.Target, ln.Addr().String())
	}
}

func TestTCPChecker_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	got, err := NewTCPChecker(time.Second).Check(context.Background(), addr)
	if err != nil {
		t.Fatalf("Check() error = %v, want nil (failure is reported in result)", err)
	}
	if got.Success {
		t.Error("Success = true, want false")
	}
	if got.PacketLoss != 1.0 {
		t.Errorf("PacketLoss = %v, want 1.0", got.PacketLoss)
	}
	if got.ErrorMessage == "" {
		t.Error("ErrorMessage is empty")
	}
}

func TestTCPChecker_BadTarget(t *testing.T) {
	if _, err := NewTCPChecker(time.Second).Check(context.Background(), "no-port"); err == nil {
		t.Error("Check() error = nil, want error for target without port")
	}
}

func TestTCPChecker_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got, err := NewTCPChecker(time.Second).Check(ctx, "192.0.2.1:22")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if got.Success {
		t.Error("Success = true, want false")
	}
	if got.ErrorMessage != "check cancelled" {
		t.Errorf("ErrorMessage = %q, want %q", got.ErrorMessage, "check cancelled")
	}
}

func TestCheckerInterfaceCompliance(t *testing.T) {
	var checkers = []Checker{NewICMPChecker(time.Second, 1), NewTCPChecker(time.Second)}
	for _, c := range checkers {
		if c == nil {
			t.Fatal("constructor returned nil")
		}
	}
}
