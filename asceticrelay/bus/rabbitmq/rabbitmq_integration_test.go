//go:build integration

package rabbitmq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcrabbit "github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	tcwait "github.com/testcontainers/testcontainers-go/wait"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/bus"
)

func startRabbit(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcrabbit.Run(ctx,
		"rabbitmq:3-management-alpine",
		testcontainers.WithWaitStrategy(
			tcwait.ForLog("Server startup complete").WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = container.Terminate(context.Background())
	})
	url, err := container.AmqpURL(ctx)
	require.NoError(t, err)
	return url
}

func TestSendScheduleConsume(t *testing.T) {
	cfg := Config{URL: startRabbit(t), Exchange: "users", Queue: "notifications", Delays: []time.Duration{200 * time.Millisecond}}
	transport, err := Dial(cfg, nil)
	require.NoError(t, err)
	defer transport.Close()

	received := make(chan bus.Envelope, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = transport.Consume(ctx, func(_ context.Context, env bus.Envelope) error {
			if env.Redeliveries == 0 && env.Type == "users.redeliver_me" {
				return transport.Schedule(ctx, bus.Envelope{
					ID: env.ID, Type: env.Type, OccurredAt: env.OccurredAt,
					Payload: env.Payload, Redeliveries: 1,
				}, 200*time.Millisecond)
			}
			received <- env
			return nil
		})
	}()

	direct := bus.Envelope{ID: uuid.New(), Type: "users.user_created", OccurredAt: time.Now().UTC(), Payload: []byte(`{}`)}
	require.NoError(t, transport.Send(ctx, direct))

	select {
	case env := <-received:
		assert.Equal(t, direct.ID, env.ID)
		assert.Equal(t, direct.Type, env.Type)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	delayed := bus.Envelope{ID: uuid.New(), Type: "users.redeliver_me", OccurredAt: time.Now().UTC(), Payload: []byte(`{}`)}
	require.NoError(t, transport.Send(ctx, delayed))

	select {
	case env := <-received:
		assert.Equal(t, delayed.ID, env.ID)
		assert.Equal(t, 1, env.Redeliveries)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for redelivery")
	}
}

func TestShortDelayIsNotHeldBehindLongerOne(t *testing.T) {
	cfg := Config{
		URL:      startRabbit(t),
		Exchange: "users",
		Queue:    "notifications",
		Delays:   []time.Duration{300 * time.Millisecond, time.Minute},
	}
	transport, err := Dial(cfg, nil)
	require.NoError(t, err)
	defer transport.Close()

	received := make(chan bus.Envelope, 2)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = transport.Consume(ctx, func(_ context.Context, env bus.Envelope) error {
			received <- env
			return nil
		})
	}()

	long := bus.Envelope{ID: uuid.New(), Type: "users.user_created", OccurredAt: time.Now().UTC(), Payload: []byte(`{}`), Redeliveries: 2}
	short := bus.Envelope{ID: uuid.New(), Type: "users.user_created", OccurredAt: time.Now().UTC(), Payload: []byte(`{}`), Redeliveries: 1}
	require.NoError(t, transport.Schedule(ctx, long, time.Minute))
	require.NoError(t, transport.Schedule(ctx, short, 300*time.Millisecond))
	assert.ErrorIs(t, transport.Schedule(ctx, short, time.Second), ErrNoDelayQueue)

	select {
	case env := <-received:
		assert.Equal(t, short.ID, env.ID)
		assert.Equal(t, 1, env.Redeliveries)
	case <-time.After(10 * time.Second):
		t.Fatal("short delay was held behind the longer one")
	}
}

func TestConsumeDeadLettersExhaustedDeliveries(t *testing.T) {
	cfg := Config{URL: startRabbit(t), Exchange: "users", Queue: "notifications"}
	transport, err := Dial(cfg, nil)
	require.NoError(t, err)
	defer transport.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = transport.Consume(ctx, func(context.Context, bus.Envelope) error {
			return errors.Join(bus.ErrDeliveryExhausted, errors.New("boom"))
		})
	}()

	env := bus.Envelope{ID: uuid.New(), Type: "users.user_created", OccurredAt: time.Now().UTC(), Payload: []byte(`{}`)}
	require.NoError(t, transport.Send(ctx, env))

	ch, err := transport.conn.Channel()
	require.NoError(t, err)
	defer ch.Close()
	require.Eventually(t, func() bool {
		q, err := ch.QueueDeclarePassive(cfg.deadLetterQueue(), true, false, false, false, nil)
		return err == nil && q.Messages == 1
	}, 10*time.Second, 100*time.Millisecond)
}
