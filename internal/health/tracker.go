// Package health implements the per-device health state machine.
package health

import (
	"time"

	"github.com/HerbHall/switchyard/internal/adapter"
	"github.com/HerbHall/switchyard/pkg/models"
)

// Thresholds configures escalation.
type Thresholds struct {
	// DegradedAfter consecutive failures move a healthy device to degraded.
	DegradedAfter int
	// ErrorAfter consecutive failures move a device to error. Must exceed DegradedAfter.
	ErrorAfter int
	// ParseErrorThreshold consecutive parse failures before they count as failures.
	ParseErrorThreshold int
	// SettleWindow is the minimum time a device revalidated after a reset
	// stays degraded before a successful poll restores healthy.
	SettleWindow time.Duration
}

// DefaultThresholds returns the conservative defaults.
func DefaultThresholds() Thresholds {
	return Thresholds{DegradedAfter: 2, ErrorAfter: 5, ParseErrorThreshold: 3, SettleWindow: 15 * time.Second}
}

// Tracker is the health state machine for one device. It is owned by the
// device's poll loop and is not safe for concurrent use.
type Tracker struct {
	th  Thresholds
	now func() time.Time

	status      models.HealthStatus
	since       time.Time
	failures    int
	parseErrors int
	terminal    bool
	settleUntil time.Time
	lastErr     string
	lastKind    adapter.Kind
}

// NewTracker returns a tracker in the healthy state.
func NewTracker(th Thresholds, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	if th.DegradedAfter < 1 {
		th.DegradedAfter = 1
	}
	if th.ErrorAfter <= th.DegradedAfter {
		th.ErrorAfter = th.DegradedAfter + 1
	}
	if th.ParseErrorThreshold < 1 {
		th.ParseErrorThreshold = 1
	}
	return &Tracker{th: th, now: now, status: models.HealthHealthy, since: now()}
}

// Status returns the current state.
func (t *Tracker) Status() models.HealthStatus { return t.status }

// Terminal reports whether the device is parked in error until Reset.
func (t *Tracker) Terminal() bool { return t.terminal }

// Failures returns the consecutive failure count.
func (t *Tracker) Failures() int { return t.failures }

// Snapshot returns the publishable health record.
func (t *Tracker) Snapshot() models.DeviceHealth {
	h := models.DeviceHealth{
		Status:              t.status,
		ConsecutiveFailures: t.failures,
		Terminal:            t.terminal,
		LastError:           t.lastErr,
		Since:               t.since,
	}
	if t.lastErr != "" {
		h.LastErrorKind = t.lastKind.String()
	}
	return h
}

func (t *Tracker) set(s models.HealthStatus) {
	if s != t.status {
		t.status = s
		t.since = t.now()
	}
}

// PollSucceeded records a complete successful poll cycle.
func (t *Tracker) PollSucceeded() {
	if t.terminal {
		return
	}
	t.failures = 0
	t.parseErrors = 0
	t.lastErr = ""
	if !t.settleUntil.IsZero() && t.now().Before(t.settleUntil) {
		return
	}
	t.settleUntil = time.Time{}
	t.set(models.HealthHealthy)
}

// PollFailed records a failed poll cycle.
func (t *Tracker) PollFailed(err error) {
	if t.terminal {
		return
	}
	kind := adapter.KindOf(err)
	t.lastKind = kind
	if err != nil {
		t.lastErr = err.Error()
	}

	switch kind {
	case adapter.KindAuth:
		t.failures++
		t.park()
		return
	case adapter.KindParse:
		t.parseErrors++
		if t.parseErrors < t.th.ParseErrorThreshold {
			return
		}
	default:
		t.parseErrors = 0
	}
	t.failures++
	t.escalate()
}

func (t *Tracker) escalate() {
	switch {
	case t.failures >= t.th.ErrorAfter:
		t.park()
	case t.failures >= t.th.DegradedAfter:
		t.set(models.HealthDegraded)
	}
}

func (t *Tracker) park() {
	t.terminal = true
	t.settleUntil = time.Time{}
	t.set(models.HealthError)
}

// ProbeSucceeded records a successful health check. A degraded device
// becomes healthy; an error device that has been reset becomes degraded
// and must complete a poll after the settle window to become healthy.
// The failure streak is kept: only a complete poll clears it, so a device
// that answers probes but keeps failing polls still reaches error.
func (t *Tracker) ProbeSucceeded() {
	if t.terminal {
		return
	}
	switch t.status {
	case models.HealthDegraded:
		if t.settleUntil.IsZero() {
			t.set(models.HealthHealthy)
		}
	case models.HealthError:
		t.failures = 0
		t.settleUntil = t.now().Add(t.th.SettleWindow)
		t.set(models.HealthDegraded)
	}
}

// ProbeFailed records a failed health check. It counts as a connectivity failure.
func (t *Tracker) ProbeFailed(err error) {
	if t.terminal {
		return
	}
	if err != nil {
		t.lastErr = err.Error()
	}
	t.lastKind = adapter.KindConnectivity
	t.parseErrors = 0
	t.failures++
	t.escalate()
}

// Reset clears the terminal flag and the counters. The status stays
// error until the next successful probe.
func (t *Tracker) Reset() {
	t.terminal = false
	t.failures = 0
	t.parseErrors = 0
}

// Global returns the worst status across devices.
func Global(statuses ...models.HealthStatus) models.HealthStatus {
	return models.Worst(statuses...)
}
