package bus

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
)

func TestInProcessTransport(t *testing.T) {
	transport := NewInProcessTransport()
	env := Envelope{ID: uuid.New(), Type: "users.integration.user_created"}

	assert.ErrorIs(t, transport.Send(context.Background(), env), ErrNoConsumer)

	received := make(chan Envelope, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- transport.Consume(ctx, func(_ context.Context, e Envelope) error {
			received <- e
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		return transport.Send(context.Background(), env) == nil
	}, time.Second, time.Millisecond)
	assert.Equal(t, env, <-received)

	cancel()
	require.NoError(t, <-done)
	assert.ErrorIs(t, transport.Send(context.Background(), env), ErrNoConsumer)
}

func TestInProcessTransport_BoundWithoutConsume(t *testing.T) {
	transport := NewInProcessTransport()
	var received []Envelope
	transport.Bind(func(_ context.Context, e Envelope) error {
		received = append(received, e)
		return nil
	})
	publisher := NewPublisher(transport, WithRetryPolicy(fastRetry(0)))
	event := &accountOpened{DomainEventBase: aggregate.NewDomainEventBase(), Owner: "bob"}

	require.NoError(t, publisher.Publish(context.Background(), event))
	require.Len(t, received, 1)
	assert.Equal(t, event.ID, received[0].ID)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, transport.Consume(ctx, func(context.Context, Envelope) error { return nil }))

	// The bound consumer survives a finished Consume.
	require.NoError(t, publisher.Publish(context.Background(), event))
	assert.Len(t, received, 2)
}
