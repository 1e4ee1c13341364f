package relay

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize = 20
	DefaultInterval  = 10 * time.Second

	tracerName = "github.com/krew-solutions/ascetic-relay-go/asceticrelay/relay"
)

type Option func(*Relay)

func WithBatchSize(size int) Option {
	return func(r *Relay) {
		if size > 0 {
			r.batchSize = size
		}
	}
}

func WithInterval(interval time.Duration) Option {
	return func(r *Relay) {
		if interval > 0 {
			r.interval = interval
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(r *Relay) {
		r.tracer = tracer
	}
}

func WithMetrics(m *Metrics) Option {
	return func(r *Relay) {
		r.metrics = m
	}
}

func WithClock(clock func() time.Time) Option {
	return func(r *Relay) {
		r.clock = clock
	}
}

func defaultTracer() trace.Tracer {
	return otel.Tracer(tracerName)
}
