package adapter

import (
	"sort"
	"strconv"
	"time"

	"github.com/HerbHall/switchyard/pkg/models"
)

const (
	counter32Max = uint64(1) << 32
	// A 32-bit counter that drops from above this mark is taken to have
	// wrapped. A drop from lower down is a reset.
	wrapThreshold = counter32Max / 4 * 3
)

// counterDelta returns cur-prev for a monotonic counter. A 32-bit counter
// that drops from near its maximum is treated as a wrap. Any other
// decrease is a reset and yields zero.
func counterDelta(prev, cur uint64, wide bool) (delta uint64, reset bool) {
	if cur >= prev {
		return cur - prev, false
	}
	if !wide && prev >= wrapThreshold && prev < counter32Max {
		return counter32Max - prev + cur, false
	}
	return 0, true
}

// trafficTracker turns successive port counter readings into traffic samples.
type trafficTracker struct {
	prev   map[string]models.Counters
	prevAt time.Time
}

// observe records ports read at time at and returns the traffic since the
// previous observation. The first observation establishes the baseline and
// returns nil.
func (t *trafficTracker) observe(ports []models.Port, at time.Time) *models.TrafficSample {
	cur := make(map[string]models.Counters, len(ports))
	for _, p := range ports {
		cur[portKey(p)] = p.Counters
	}

	if t.prev == nil {
		t.prev, t.prevAt = cur, at
		return nil
	}

	sample := &models.TrafficSample{
		Timestamp: at,
		Interval:  at.Sub(t.prevAt).Seconds(),
	}
	for key, c := range cur {
		p, ok := t.prev[key]
		if !ok {
			continue
		}
		if p.Wide != c.Wide {
			// 32-bit and 64-bit readings of the same port are not comparable.
			sample.Resets++
			continue
		}
		in, inReset := counterDelta(p.InOctets, c.InOctets, c.Wide)
		out, outReset := counterDelta(p.OutOctets, c.OutOctets, c.Wide)
		if inReset || outReset {
			sample.Resets++
		}
		sample.InBytes += in
		sample.OutBytes += out
		if in > 0 || out > 0 {
			sample.ActivePorts++
		}
	}

	t.prev, t.prevAt = cur, at
	return sample
}

func portKey(p models.Port) string {
	if p.Name != "" {
		return p.Name
	}
	return "#" + strconv.Itoa(p.Index)
}

// portCache hands the ports read by QueryInterfaces to QueryTraffic in the
// same poll cycle so counters are fetched once.
type portCache struct {
	ports []models.Port
	at    time.Time
	fresh bool
}

func (c *portCache) store(ports []models.Port, at time.Time) {
	c.ports, c.at, c.fresh = ports, at, true
}

// take returns the cached ports once.
func (c *portCache) take() ([]models.Port, time.Time, bool) {
	if !c.fresh {
		return nil, time.Time{}, false
	}
	c.fresh = false
	return c.ports, c.at, true
}

func sortPorts(ports []models.Port) {
	sort.Slice(ports, func(i, j int) bool { return ports[i].Index < ports[j].Index })
}
