package poller

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/HerbHall/switchyard/pkg/models"
)

// Metrics holds the per-device poll instruments.
type Metrics struct {
	polls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
	health   *prometheus.GaugeVec
}

// NewMetrics creates the poll instruments and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "switchyard_polls_total",
			Help: "Poll cycles per device by result.",
		}, []string{"device", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "switchyard_poll_duration_seconds",
			Help:    "Duration of poll cycles per device.",
			Buckets: prometheus.DefBuckets,
		}, []string{"device"}),
		health: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "switchyard_device_health",
			Help: "Device health: 0 healthy, 1 degraded, 2 error.",
		}, []string{"device"}),
	}
	if reg != nil {
		reg.MustRegister(m.polls, m.duration, m.health)
	}
	return m
}

func (m *Metrics) observe(device, result string, seconds float64) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(device, result).Inc()
	m.duration.WithLabelValues(device).Observe(seconds)
}

func (m *Metrics) setHealth(device string, s models.HealthStatus) {
	if m == nil {
		return
	}
	m.health.WithLabelValues(device).Set(float64(s.Severity()))
}
