package relay

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	messages *prometheus.CounterVec
	ticks    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the relay collectors on reg, or on the default
// registerer when reg is nil. One Metrics serves any number of relays.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_messages_total",
			Help: "Messages dispatched by relay ticks, by outcome.",
		}, []string{"relay", "outcome"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_ticks_total",
			Help: "Relay ticks, by result.",
		}, []string{"relay", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_tick_duration_seconds",
			Help:    "Duration of relay ticks.",
			Buckets: prometheus.DefBuckets,
		}, []string{"relay"}),
	}
	reg.MustRegister(m.messages, m.ticks, m.duration)
	return m
}

func (m *Metrics) observe(relay string, result Result, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	if errors.Is(err, ErrTickInProgress) {
		m.ticks.WithLabelValues(relay, "skipped").Inc()
		return
	}
	m.duration.WithLabelValues(relay).Observe(elapsed.Seconds())
	if err != nil {
		m.ticks.WithLabelValues(relay, "error").Inc()
		return
	}
	m.ticks.WithLabelValues(relay, "ok").Inc()
	m.messages.WithLabelValues(relay, "succeeded").Add(float64(result.Succeeded))
	m.messages.WithLabelValues(relay, "failed").Add(float64(result.Failed))
	m.messages.WithLabelValues(relay, "deserialization").Add(float64(result.Undecodable))
}
