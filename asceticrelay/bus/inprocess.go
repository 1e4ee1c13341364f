package bus

import (
	"context"
	"errors"
	"sync"
)

var ErrNoConsumer = errors.New("bus: no consumer attached")

// InProcessTransport hands envelopes to the consumer of the same process.
// It serves single-binary deployments where publisher and inbox share a
// database.
type InProcessTransport struct {
	mu      sync.RWMutex
	bound   ConsumeFunc
	deliver ConsumeFunc
}

func NewInProcessTransport() *InProcessTransport {
	return &InProcessTransport{}
}

// Bind attaches deliver for the lifetime of the transport, so Send works
// before Consume runs and after it returns.
func (t *InProcessTransport) Bind(deliver ConsumeFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bound = deliver
	t.deliver = deliver
}

func (t *InProcessTransport) Send(ctx context.Context, env Envelope) error {
	t.mu.RLock()
	deliver := t.deliver
	t.mu.RUnlock()
	if deliver == nil {
		return ErrNoConsumer
	}
	return deliver(ctx, env)
}

// Consume attaches deliver until ctx is done, then falls back to the bound
// consumer, if any.
func (t *InProcessTransport) Consume(ctx context.Context, deliver ConsumeFunc) error {
	t.mu.Lock()
	t.deliver = deliver
	t.mu.Unlock()

	<-ctx.Done()

	t.mu.Lock()
	t.deliver = t.bound
	t.mu.Unlock()
	return nil
}
