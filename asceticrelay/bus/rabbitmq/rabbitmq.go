// Package rabbitmq carries bus envelopes over an AMQP 0-9-1 broker.
//
// Topology: a durable topic exchange, one queue bound with "#", one delay
// queue per redelivery interval whose expired messages are dead-lettered
// back into that queue, and a dead-letter exchange and queue for deliveries
// the pipeline gave up on. The TTL is set per queue: RabbitMQ expires
// per-message TTLs only at the head of a queue, so mixed delays in one queue
// would wait for the longest one ahead of them.
package rabbitmq

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	pkgerrors "github.com/pkg/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/bus"
)

const (
	headerRedeliveries = "x-redeliveries"
	headerOccurredAt   = "x-occurred-at"
	contentType        = "application/octet-stream"
)

var (
	ErrMalformedDelivery = errors.New("rabbitmq: malformed delivery")
	ErrNoDelayQueue      = errors.New("rabbitmq: no delay queue for interval")
)

type Config struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
	// Delays are the redelivery intervals; each gets its own delay queue.
	Delays []time.Duration
	// ShedWait is how long a delivery shed by an open breaker is held
	// before it is requeued.
	ShedWait time.Duration
}

func (c Config) delayQueue(delay time.Duration) string {
	return c.Queue + ".delay." + strconv.FormatInt(ttl(delay), 10) + "ms"
}

// delayQueueFor returns the delay queue declared for exactly delay.
func (c Config) delayQueueFor(delay time.Duration) (string, error) {
	for _, d := range c.Delays {
		if ttl(d) == ttl(delay) {
			return c.delayQueue(d), nil
		}
	}
	return "", pkgerrors.Wrap(ErrNoDelayQueue, delay.String())
}

func ttl(d time.Duration) int64 {
	return max(d.Milliseconds(), 1)
}

func (c Config) deadLetterExchange() string {
	return c.Exchange + ".dlx"
}

func (c Config) deadLetterQueue() string {
	return c.Queue + ".dlq"
}

// Channel is the subset of *amqp.Channel needed to declare the topology.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology is idempotent; every process declares it on start.
func DeclareTopology(ch Channel, cfg Config) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return pkgerrors.Wrap(err, "declare exchange")
	}
	if err := ch.ExchangeDeclare(cfg.deadLetterExchange(), amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return pkgerrors.Wrap(err, "declare dead-letter exchange")
	}
	if _, err := ch.QueueDeclare(cfg.deadLetterQueue(), true, false, false, false, nil); err != nil {
		return pkgerrors.Wrap(err, "declare dead-letter queue")
	}
	if err := ch.QueueBind(cfg.deadLetterQueue(), "#", cfg.deadLetterExchange(), false, nil); err != nil {
		return pkgerrors.Wrap(err, "bind dead-letter queue")
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange": cfg.deadLetterExchange(),
	}); err != nil {
		return pkgerrors.Wrap(err, "declare queue")
	}
	if err := ch.QueueBind(cfg.Queue, "#", cfg.Exchange, false, nil); err != nil {
		return pkgerrors.Wrap(err, "bind queue")
	}
	declared := make(map[int64]bool, len(cfg.Delays))
	for _, d := range cfg.Delays {
		if declared[ttl(d)] {
			continue
		}
		declared[ttl(d)] = true
		if _, err := ch.QueueDeclare(cfg.delayQueue(d), true, false, false, false, amqp.Table{
			"x-message-ttl":             ttl(d),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": cfg.Queue,
		}); err != nil {
			return pkgerrors.Wrapf(err, "declare delay queue %s", d)
		}
	}
	return nil
}

// Transport implements bus.Transport and bus.Scheduler. Publishing shares
// one channel guarded by a mutex; Consume opens its own.
type Transport struct {
	cfg    Config
	conn   *amqp.Connection
	mu     sync.Mutex
	ch     *amqp.Channel
	logger *zap.Logger
}

func Dial(cfg Config, logger *zap.Logger) (*Transport, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 10
	}
	if cfg.ShedWait <= 0 {
		cfg.ShedWait = 5 * time.Second
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "rabbitmq dial")
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, pkgerrors.Wrap(err, "rabbitmq channel")
	}
	if err := DeclareTopology(ch, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Transport{
		cfg:    cfg,
		conn:   conn,
		ch:     ch,
		logger: logger.With(zap.String("transport", "rabbitmq"), zap.String("queue", cfg.Queue)),
	}, nil
}

func (t *Transport) Send(ctx context.Context, env bus.Envelope) error {
	return t.publish(ctx, t.cfg.Exchange, env.Type, toPublishing(env))
}

// Schedule parks env in the delay queue declared for delay. Only the
// configured Delays are accepted.
func (t *Transport) Schedule(ctx context.Context, env bus.Envelope, delay time.Duration) error {
	queue, err := t.cfg.delayQueueFor(delay)
	if err != nil {
		return err
	}
	return t.publish(ctx, "", queue, toPublishing(env))
}

func (t *Transport) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.ch.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return pkgerrors.Wrapf(err, "publish to %q", exchange+"/"+key)
	}
	return nil
}

// Consume feeds deliveries to deliver until ctx is done or the channel
// closes. An envelope shed with bus.ErrUnavailable is held for ShedWait,
// which pauses the loop, and then requeued; any other failure is
// dead-lettered.
func (t *Transport) Consume(ctx context.Context, deliver bus.ConsumeFunc) error {
	ch, err := t.conn.Channel()
	if err != nil {
		return pkgerrors.Wrap(err, "rabbitmq consumer channel")
	}
	defer ch.Close()
	if err := ch.Qos(t.cfg.Prefetch, 0, false); err != nil {
		return pkgerrors.Wrap(err, "rabbitmq qos")
	}
	tag := "relayd-" + ulid.Make().String()
	deliveries, err := ch.Consume(t.cfg.Queue, tag, false, false, false, false, nil)
	if err != nil {
		return pkgerrors.Wrap(err, "rabbitmq consume")
	}
	t.logger.Info("consumer started", zap.String("consumer_tag", tag))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return pkgerrors.New("rabbitmq: delivery channel closed")
			}
			t.handle(ctx, d, deliver)
		}
	}
}

func (t *Transport) handle(ctx context.Context, d amqp.Delivery, deliver bus.ConsumeFunc) {
	env, err := fromDelivery(d)
	if err != nil {
		t.logger.Error("dropping malformed delivery", zap.String("message_id", d.MessageId), zap.Error(err))
		_ = d.Nack(false, false)
		return
	}
	var ackErr error
	switch err := deliver(ctx, env); {
	case err == nil:
		ackErr = d.Ack(false)
	case requeue(ctx, err):
		if errors.Is(err, bus.ErrUnavailable) {
			t.logger.Debug("delivery shed", zap.String("event_id", env.ID.String()), zap.Duration("wait", t.cfg.ShedWait))
			wait(ctx, t.cfg.ShedWait)
		}
		ackErr = d.Nack(false, true)
	default:
		t.logger.Error("delivery dead-lettered", zap.String("event_id", env.ID.String()), zap.Error(err))
		ackErr = d.Nack(false, false)
	}
	if ackErr != nil {
		t.logger.Warn("acknowledgement failed", zap.String("event_id", env.ID.String()), zap.Error(ackErr))
	}
}

func requeue(ctx context.Context, err error) bool {
	return errors.Is(err, bus.ErrUnavailable) || ctx.Err() != nil
}

func wait(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn.Close()
}

func toPublishing(env bus.Envelope) amqp.Publishing {
	headers := amqp.Table{
		headerRedeliveries: int32(env.Redeliveries),
		headerOccurredAt:   env.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range env.Headers {
		headers[k] = v
	}
	return amqp.Publishing{
		MessageId:    env.ID.String(),
		Type:         env.Type,
		Timestamp:    env.OccurredAt,
		ContentType:  contentType,
		DeliveryMode: amqp.Persistent,
		Headers:      headers,
		Body:         env.Payload,
	}
}

func fromDelivery(d amqp.Delivery) (bus.Envelope, error) {
	id, err := uuid.Parse(d.MessageId)
	if err != nil {
		return bus.Envelope{}, pkgerrors.Wrapf(ErrMalformedDelivery, "message id %q", d.MessageId)
	}
	if d.Type == "" {
		return bus.Envelope{}, pkgerrors.Wrap(ErrMalformedDelivery, "missing type")
	}
	env := bus.Envelope{
		ID:         id,
		Type:       d.Type,
		OccurredAt: d.Timestamp,
		Payload:    d.Body,
		Headers:    make(map[string]string),
	}
	for k, v := range d.Headers {
		switch k {
		case headerRedeliveries:
			env.Redeliveries = toInt(v)
		case headerOccurredAt:
			if s, ok := v.(string); ok {
				if at, err := time.Parse(time.RFC3339Nano, s); err == nil {
					env.OccurredAt = at
				}
			}
		default:
			if s, ok := v.(string); ok {
				env.Headers[k] = s
			}
		}
	}
	return env, nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	default:
		return 0
	}
}
