package bus

import (
	"time"

	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/codec"
)

type settings struct {
	name       string
	codec      codec.Codec
	logger     *zap.Logger
	metrics    *Metrics
	retry      RetryPolicy
	redelivery RedeliveryPolicy
	breaker    BreakerPolicy
	scheduler  Scheduler
}

type Option func(*settings)

func WithName(name string) Option {
	return func(s *settings) {
		s.name = name
	}
}

func WithCodec(c codec.Codec) Option {
	return func(s *settings) {
		s.codec = c
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *settings) {
		s.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(s *settings) {
		s.metrics = m
	}
}

func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *settings) {
		s.retry = p
	}
}

func WithRedeliveryPolicy(p RedeliveryPolicy) Option {
	return func(s *settings) {
		s.redelivery = p
	}
}

func WithBreakerPolicy(p BreakerPolicy) Option {
	return func(s *settings) {
		s.breaker = p
	}
}

// WithScheduler sets where exhausted deliveries are parked. Without it the
// pipeline reports ErrDeliveryExhausted right after immediate retries.
func WithScheduler(sch Scheduler) Option {
	return func(s *settings) {
		s.scheduler = sch
	}
}

func newSettings(name string, retry RetryPolicy, opts []Option) *settings {
	s := &settings{
		name:       name,
		codec:      codec.JsonCodec{},
		logger:     zap.NewNop(),
		retry:      retry,
		redelivery: DefaultRedeliveryPolicy(),
		breaker:    DefaultBreakerPolicy(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// publishRetryPolicy keeps a relay tick short; the relay itself is the
// outer retry loop for publishing.
func publishRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:      2,
		MinInterval:   200 * time.Millisecond,
		MaxInterval:   2 * time.Second,
		IntervalDelta: 200 * time.Millisecond,
	}
}
