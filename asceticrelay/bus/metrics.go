package bus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
)

type Metrics struct {
	published  *prometheus.CounterVec
	deliveries *prometheus.CounterVec
	breaker    *prometheus.GaugeVec
}

// NewMetrics registers the bus collectors on reg, or on the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_published_total",
			Help: "Integration events handed to the broker, by outcome.",
		}, []string{"outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bus_deliveries_total",
			Help: "Inbound deliveries, by outcome.",
		}, []string{"outcome"}),
		breaker: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bus_circuit_breaker_state",
			Help: "0 closed, 1 half-open, 2 open.",
		}, []string{"breaker"}),
	}
	reg.MustRegister(m.published, m.deliveries, m.breaker)
	return m
}

func (m *Metrics) publishedInc(outcome string) {
	if m != nil {
		m.published.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) deliveredInc(outcome string) {
	if m != nil {
		m.deliveries.WithLabelValues(outcome).Inc()
	}
}

func (m *Metrics) breakerState(name string, state gobreaker.State) {
	if m != nil {
		m.breaker.WithLabelValues(name).Set(float64(state))
	}
}
