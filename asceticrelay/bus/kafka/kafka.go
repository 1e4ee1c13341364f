// Package kafka carries bus envelopes over Kafka. The broker has no delayed
// delivery, so scheduled redelivery is left to bus.TimerScheduler.
package kafka

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	pkgerrors "github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/bus"
)

const (
	headerEventID      = "event_id"
	headerEventType    = "event_type"
	headerOccurredAt   = "occurred_at"
	headerRedeliveries = "redeliveries"
)

var ErrMalformedMessage = errors.New("kafka: malformed message")

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// ShedWait is how long Consume waits before offering a shed message again.
	ShedWait time.Duration
}

func (c Config) deadLetterTopic() string {
	return c.Topic + ".dlq"
}

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// writer is the part of *kafka.Writer the transport uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Transport implements bus.Transport. Messages are keyed by event id.
type Transport struct {
	cfg        Config
	instanceID string
	writer     writer
	logger     *zap.Logger
}

func New(cfg Config, logger *zap.Logger) *Transport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ShedWait <= 0 {
		cfg.ShedWait = 5 * time.Second
	}
	instanceID := "relayd-" + ulid.Make().String()
	return &Transport{
		cfg:        cfg,
		instanceID: instanceID,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Transport:    &kafka.Transport{ClientID: instanceID},
		},
		logger: logger.With(zap.String("transport", "kafka"), zap.String("instance_id", instanceID)),
	}
}

func (t *Transport) Send(ctx context.Context, env bus.Envelope) error {
	msg := toMessage(env)
	msg.Topic = t.cfg.Topic
	if err := t.writer.WriteMessages(ctx, msg); err != nil {
		return pkgerrors.Wrapf(err, "write to %s", t.cfg.Topic)
	}
	return nil
}

// Consume reads the group's partitions until ctx is done. Offsets are
// committed once deliver consumed, parked or gave up on the message; a
// message shed with bus.ErrUnavailable is offered again after ShedWait.
func (t *Transport) Consume(ctx context.Context, deliver bus.ConsumeFunc) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  t.cfg.Brokers,
		GroupID:  t.cfg.GroupID,
		Topic:    t.cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		Dialer:   &kafka.Dialer{ClientID: t.instanceID, Timeout: 10 * time.Second, DualStack: true},
	})
	defer reader.Close()
	t.logger.Info("consumer started", zap.String("topic", t.cfg.Topic), zap.String("group_id", t.cfg.GroupID))

	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			t.logger.Error("kafka fetch failed", zap.Error(err))
			if !sleep(ctx, time.Second) {
				return nil
			}
			continue
		}
		if !t.handle(ctx, msg, deliver) {
			return nil
		}
		if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			t.logger.Warn("offset commit failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		}
	}
}

// handle returns false when ctx ended before msg was settled; its offset
// must not be committed then.
func (t *Transport) handle(ctx context.Context, msg kafka.Message, deliver bus.ConsumeFunc) bool {
	env, err := fromMessage(msg)
	if err != nil {
		t.logger.Error("dead-lettering malformed message", zap.Int64("offset", msg.Offset), zap.Error(err))
		return t.deadLetter(ctx, msg)
	}
	for {
		err := deliver(ctx, env)
		switch {
		case err == nil:
			return true
		case ctx.Err() != nil:
			return false
		case errors.Is(err, bus.ErrUnavailable):
			if !sleep(ctx, t.cfg.ShedWait) {
				return false
			}
		default:
			t.logger.Error("delivery dead-lettered", zap.String("event_id", env.ID.String()), zap.Error(err))
			return t.deadLetter(ctx, msg)
		}
	}
}

// deadLetter writes msg to the dead-letter topic, retrying every ShedWait.
// A later commit would cover this offset too, so the partition does not
// move on until the write succeeds or ctx ends.
func (t *Transport) deadLetter(ctx context.Context, msg kafka.Message) bool {
	dlq := kafka.Message{
		Topic:   t.cfg.deadLetterTopic(),
		Key:     msg.Key,
		Value:   msg.Value,
		Headers: msg.Headers,
	}
	for {
		err := t.writer.WriteMessages(ctx, dlq)
		if err == nil {
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		t.logger.Error("dead-letter write failed", zap.Int64("offset", msg.Offset), zap.Error(err))
		if !sleep(ctx, t.cfg.ShedWait) {
			return false
		}
	}
}

func (t *Transport) Close() error {
	return t.writer.Close()
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func toMessage(env bus.Envelope) kafka.Message {
	headers := []kafka.Header{
		{Key: headerEventID, Value: []byte(env.ID.String())},
		{Key: headerEventType, Value: []byte(env.Type)},
		{Key: headerOccurredAt, Value: []byte(env.OccurredAt.UTC().Format(time.RFC3339Nano))},
		{Key: headerRedeliveries, Value: []byte(strconv.Itoa(env.Redeliveries))},
	}
	for k, v := range env.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Key:     []byte(env.ID.String()),
		Value:   env.Payload,
		Headers: headers,
		Time:    env.OccurredAt,
	}
}

func fromMessage(msg kafka.Message) (bus.Envelope, error) {
	env := bus.Envelope{
		Payload:    msg.Value,
		OccurredAt: msg.Time,
		Headers:    make(map[string]string),
	}
	rawID := string(msg.Key)
	for _, h := range msg.Headers {
		value := string(h.Value)
		switch h.Key {
		case headerEventID:
			rawID = value
		case headerEventType:
			env.Type = value
		case headerOccurredAt:
			if at, err := time.Parse(time.RFC3339Nano, value); err == nil {
				env.OccurredAt = at
			}
		case headerRedeliveries:
			env.Redeliveries, _ = strconv.Atoi(value)
		default:
			env.Headers[h.Key] = value
		}
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return bus.Envelope{}, pkgerrors.Wrapf(ErrMalformedMessage, "event id %q", rawID)
	}
	env.ID = id
	if env.Type == "" {
		return bus.Envelope{}, pkgerrors.Wrap(ErrMalformedMessage, "missing event type")
	}
	return env, nil
}
