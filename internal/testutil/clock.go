package testutil

import (
	"sync/atomic"
	"time"
)

// Epoch is the default start of a test Clock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// Clock is a manually driven time source. Its Now method value can be
// passed wherever a func() time.Time is expected, and it is safe to read
// from poll goroutines while a test advances it.
type Clock struct {
	ns atomic.Int64
}

// NewClock returns a Clock at start, or at Epoch when start is omitted.
func NewClock(start ...time.Time) *Clock {
	c := &Clock{}
	if len(start) > 0 {
		c.Set(start[0])
	} else {
		c.Set(Epoch)
	}
	return c
}

func (c *Clock) Now() time.Time { return time.Unix(0, c.ns.Load()).UTC() }

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	return time.Unix(0, c.ns.Add(int64(d))).UTC()
}

func (c *Clock) Set(t time.Time) { c.ns.Store(t.UnixNano()) }
