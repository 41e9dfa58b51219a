package adapter

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"typed", newError(KindParse, "d", "op", errors.New("x")), KindParse},
		{"wrapped typed", fmt.Errorf("ctx: %w", newError(KindAuth, "d", "op", errors.New("x"))), KindAuth},
		{"net error", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindConnectivity},
		{"deadline", context.DeadlineExceeded, KindConnectivity},
		{"plain", errors.New("something odd"), KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"ssh auth", errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password]"), KindAuth},
		{"snmp v3 user", errors.New("unknown user name"), KindAuth},
		{"refused", errors.New("dial tcp 10.0.0.1:22: connect: connection refused"), KindConnectivity},
		{"other", errors.New("weird"), KindConnectivity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(classify("core", "connect", tt.err)); got != tt.want {
				t.Errorf("classify(%q) kind = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	orig := newError(KindParse, "core", "q", errors.New("x"))
	if got := classify("core", "other", orig); got != error(orig) {
		t.Errorf("classify() rewrapped an *Error")
	}
}

func TestErrorMessage(t *testing.T) {
	err := newError(KindAuth, "core", "connect", errors.New("denied"))
	want := "core connect: auth error: denied"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, err.Err) {
		t.Error("errors.Is(err, inner) = false")
	}
}
