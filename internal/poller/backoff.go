package poller

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/HerbHall/switchyard/internal/config"
)

// Backoff returns the delay before the next attempt after failures
// consecutive failures: Base * Multiplier^(failures-1), capped at ceiling
// and spread by ±Jitter. rnd returns a value in [0, 1); nil uses math/rand.
func Backoff(p config.BackoffPolicy, ceiling time.Duration, failures int, rnd func() float64) time.Duration {
	if failures < 1 {
		failures = 1
	}
	if rnd == nil {
		rnd = rand.Float64
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}

	d := float64(p.Base) * math.Pow(mult, float64(failures-1))
	if ceiling > 0 && d > float64(ceiling) {
		d = float64(ceiling)
	}
	if p.Jitter > 0 {
		d *= 1 + p.Jitter*(2*rnd()-1)
	}
	if ceiling > 0 && d > float64(ceiling) {
		d = float64(ceiling)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}
