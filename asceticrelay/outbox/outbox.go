package outbox

import (
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/codec"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/idempotency"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messagestore"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

const (
	DefaultTable          = "outbox_messages"
	DefaultConsumersTable = "outbox_message_consumers"
)

// PgOutbox records events in the same transaction as the business write
// and serves them to the relay.
type PgOutbox struct {
	*messagestore.PgStore
	codec  codec.Codec
	ledger *idempotency.PgLedger
}

func NewOutbox(outboxTable string, consumersTable string, c codec.Codec) *PgOutbox {
	if outboxTable == "" {
		outboxTable = DefaultTable
	}
	if consumersTable == "" {
		consumersTable = DefaultConsumersTable
	}
	if c == nil {
		c = codec.JsonCodec{}
	}
	return &PgOutbox{
		PgStore: messagestore.NewPgStore(outboxTable),
		codec:   c,
		ledger:  idempotency.NewPgLedger(consumersTable),
	}
}

// Ledger is the consumer ledger of handlers fed by this outbox.
func (o *PgOutbox) Ledger() *idempotency.PgLedger {
	return o.ledger
}

// Append inserts one row per event, in order, using s. s must be the
// transaction of the business write.
func (o *PgOutbox) Append(s session.DbSession, events ...messaging.Event) error {
	for _, event := range events {
		payload, err := o.codec.Encode(event)
		if err != nil {
			return errors.Wrapf(err, "unable to encode %s", event.EventType())
		}
		msg := &messaging.Message{
			ID:         event.EventID(),
			Type:       event.EventType(),
			Payload:    payload,
			OccurredAt: event.OccurredAt(),
		}
		if err := o.Insert(s, msg); err != nil {
			return errors.Wrapf(err, "unable to append %s %s", msg.Type, msg.ID)
		}
	}
	return nil
}

func (o *PgOutbox) Setup(s session.DbSession) error {
	if err := o.PgStore.Setup(s); err != nil {
		return err
	}
	return o.ledger.Setup(s)
}
