package bus

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/hashicorp/go-multierror"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Pipeline is the receiving side of the bus. Deliver applies immediate
// retries, then scheduled redelivery, all behind a circuit breaker.
type Pipeline struct {
	consume    ConsumeFunc
	retry      RetryPolicy
	redelivery RedeliveryPolicy
	breaker    *gobreaker.CircuitBreaker
	scheduler  Scheduler
	logger     *zap.Logger
	metrics    *Metrics
}

// binder is implemented by schedulers that deliver back in process.
type binder interface {
	Bind(deliver ConsumeFunc)
}

func NewPipeline(consume ConsumeFunc, opts ...Option) *Pipeline {
	s := newSettings("bus-consumer", DefaultRetryPolicy(), opts)
	p := &Pipeline{
		consume:    consume,
		retry:      s.retry,
		redelivery: s.redelivery,
		breaker:    newBreaker(s.name, s.breaker, s.logger, s.metrics),
		scheduler:  s.scheduler,
		logger:     s.logger,
		metrics:    s.metrics,
	}
	if b, ok := s.scheduler.(binder); ok {
		b.Bind(p.Deliver)
	}
	return p
}

// Deliver returns nil when env was consumed or parked for redelivery,
// ErrUnavailable when it was shed by the open breaker, and an error
// matching ErrDeliveryExhausted when nothing is left to try.
func (p *Pipeline) Deliver(ctx context.Context, env Envelope) error {
	ctx = ExtractContext(ctx, env)
	logger := p.logger.With(
		zap.String("event_id", env.ID.String()),
		zap.String("event_type", env.Type),
		zap.Int("redeliveries", env.Redeliveries),
	)

	if p.breaker.State() == gobreaker.StateOpen {
		p.metrics.deliveredInc("shed")
		return ErrUnavailable
	}

	err := p.retry.run(ctx, func() error {
		err := guard(p.breaker, func() error { return p.consume(ctx, env) })
		if errors.Is(err, ErrUnavailable) {
			return permanent(err)
		}
		return err
	}, func(err error, next time.Duration) {
		logger.Debug("delivery failed, retrying", zap.Duration("next", next), zap.Error(err))
	})

	if err == nil {
		p.metrics.deliveredInc("consumed")
		return nil
	}
	if errors.Is(err, ErrUnavailable) {
		p.metrics.deliveredInc("shed")
		return ErrUnavailable
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	delay, ok := p.redelivery.Next(env.Redeliveries)
	if ok && p.scheduler != nil {
		next := env
		next.Redeliveries++
		if schedErr := p.scheduler.Schedule(ctx, next, delay); schedErr != nil {
			logger.Error("redelivery scheduling failed", zap.Error(schedErr))
			return multierror.Append(err, schedErr)
		}
		logger.Warn("delivery failed, redelivery scheduled", zap.Duration("delay", delay), zap.Error(err))
		p.metrics.deliveredInc("redelivery_scheduled")
		return nil
	}

	logger.Error("delivery exhausted", zap.Error(err))
	p.metrics.deliveredInc("exhausted")
	return multierror.Append(ErrDeliveryExhausted, err)
}

func permanent(err error) error {
	return backoff.Permanent(err)
}
