package poller

import (
	"testing"
	"time"

	"github.com/HerbHall/switchyard/internal/config"
)

func TestBackoff_Curve(t *testing.T) {
	p := config.BackoffPolicy{Base: 10 * time.Second, Multiplier: 2}
	ceiling := 5 * time.Minute

	tests := []struct {
		failures int
		want     time.Duration
	}{
		{failures: 0, want: 10 * time.Second},
		{failures: 1, want: 10 * time.Second},
		{failures: 2, want: 20 * time.Second},
		{failures: 3, want: 40 * time.Second},
		{failures: 5, want: 160 * time.Second},
		{failures: 6, want: 5 * time.Minute},
		{failures: 40, want: 5 * time.Minute},
	}
	for _, tt := range tests {
		if got := Backoff(p, ceiling, tt.failures, nil); got != tt.want {
			t.Errorf("Backoff(failures=%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestBackoff_JitterBounds(t *testing.T) {
	p := config.BackoffPolicy{Base: 10 * time.Second, Multiplier: 1.5, Jitter: 0.2}

	low := Backoff(p, time.Hour, 1, func() float64 { return 0 })
	if low != 8*time.Second {
		t.Errorf("Backoff(rnd=0) = %v, want 8s", low)
	}
	mid := Backoff(p, time.Hour, 1, func() float64 { return 0.5 })
	if mid != 10*time.Second {
		t.Errorf("Backoff(rnd=0.5) = %v, want 10s", mid)
	}
	for i := 0; i < 200; i++ {
		got := Backoff(p, time.Hour, 2, nil)
		if got < 12*time.Second || got > 18*time.Second {
			t.Fatalf("Backoff(failures=2) = %v, outside [12s, 18s]", got)
		}
	}
}

func TestBackoff_JitterNeverExceedsCeiling(t *testing.T) {
	p := config.BackoffPolicy{Base: time.Minute, Multiplier: 2, Jitter: 0.5}
	got := Backoff(p, 2*time.Minute, 10, func() float64 { return 0.999 })
	if got > 2*time.Minute {
		t.Errorf("Backoff = %v, exceeds ceiling 2m", got)
	}
}
