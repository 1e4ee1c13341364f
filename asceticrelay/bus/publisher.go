package bus

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/codec"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
)

// Publisher sends integration events through a transport. It must only be
// called once the originating transaction has committed, which holds when
// it runs from an outbox relay handler (see ForwardHandler).
type Publisher struct {
	transport Transport
	codec     codec.Codec
	retry     RetryPolicy
	breaker   *gobreaker.CircuitBreaker
	logger    *zap.Logger
	metrics   *Metrics
}

func NewPublisher(transport Transport, opts ...Option) *Publisher {
	s := newSettings("bus-publisher", publishRetryPolicy(), opts)
	return &Publisher{
		transport: transport,
		codec:     s.codec,
		retry:     s.retry,
		breaker:   newBreaker(s.name, s.breaker, s.logger, s.metrics),
		logger:    s.logger,
		metrics:   s.metrics,
	}
}

// Publish returns ErrUnavailable without touching the broker while the
// breaker is open.
func (p *Publisher) Publish(ctx context.Context, event messaging.Event) error {
	payload, err := p.codec.Encode(event)
	if err != nil {
		p.metrics.publishedInc("encode_error")
		return err
	}
	env := Envelope{
		ID:         event.EventID(),
		Type:       event.EventType(),
		OccurredAt: event.OccurredAt(),
		Payload:    payload,
		Headers:    InjectContext(ctx),
	}

	err = p.retry.run(ctx, func() error {
		if err := guard(p.breaker, func() error { return p.transport.Send(ctx, env) }); err != nil {
			if errors.Is(err, ErrUnavailable) {
				return permanent(err)
			}
			return err
		}
		return nil
	}, func(err error, next time.Duration) {
		p.logger.Warn("publish failed, retrying",
			zap.String("event_id", env.ID.String()),
			zap.String("event_type", env.Type),
			zap.Duration("next", next),
			zap.Error(err),
		)
	})

	switch {
	case err == nil:
		p.metrics.publishedInc("sent")
	case errors.Is(err, ErrUnavailable):
		p.metrics.publishedInc("unavailable")
		return ErrUnavailable
	default:
		p.metrics.publishedInc("failed")
	}
	return err
}

// EventPublisher is what handlers depend on.
type EventPublisher interface {
	Publish(ctx context.Context, event messaging.Event) error
}
