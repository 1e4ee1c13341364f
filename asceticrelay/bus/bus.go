package bus

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

var (
	// ErrUnavailable is returned while a circuit breaker is open.
	ErrUnavailable = errors.New("bus: broker unavailable")
	// ErrDeliveryExhausted means retries and scheduled redeliveries are used up.
	ErrDeliveryExhausted = errors.New("bus: delivery attempts exhausted")
)

// Envelope is an integration event on the wire. The ID is the event id, so
// receivers can deduplicate on it.
type Envelope struct {
	ID           uuid.UUID
	Type         string
	OccurredAt   time.Time
	Payload      []byte
	Redeliveries int
	Headers      map[string]string
}

type ConsumeFunc func(ctx context.Context, env Envelope) error

type Transport interface {
	Send(ctx context.Context, env Envelope) error
}

// Scheduler hands env back to the delivery pipeline after delay.
type Scheduler interface {
	Schedule(ctx context.Context, env Envelope, delay time.Duration) error
}

// InjectContext returns the trace headers of ctx.
func InjectContext(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

// ExtractContext restores the trace context carried by env.
func ExtractContext(ctx context.Context, env Envelope) context.Context {
	if len(env.Headers) == 0 {
		return ctx
	}
	return otel.GetTextMapPropagator().Extract(ctx, propagation.MapCarrier(env.Headers))
}
