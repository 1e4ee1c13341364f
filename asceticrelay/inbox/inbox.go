package inbox

import (
	"context"

	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/bus"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/idempotency"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messagestore"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

const (
	DefaultTable          = "inbox_messages"
	DefaultConsumersTable = "inbox_message_consumers"
)

// PgInbox records inbound integration events once per event id. An inbox
// relay then dispatches them like outbox rows.
type PgInbox struct {
	*messagestore.PgStore
	ledger *idempotency.PgLedger
}

func NewInbox(inboxTable string, consumersTable string) *PgInbox {
	if inboxTable == "" {
		inboxTable = DefaultTable
	}
	if consumersTable == "" {
		consumersTable = DefaultConsumersTable
	}
	return &PgInbox{
		PgStore: messagestore.NewPgStore(inboxTable),
		ledger:  idempotency.NewPgLedger(consumersTable),
	}
}

func (i *PgInbox) Ledger() *idempotency.PgLedger {
	return i.ledger
}

// Receive stores env unless an event with the same id was received before.
// It returns true when the row is new.
func (i *PgInbox) Receive(s session.DbSession, env bus.Envelope) (bool, error) {
	return i.InsertIfAbsent(s, &messaging.Message{
		ID:         env.ID,
		Type:       env.Type,
		Payload:    env.Payload,
		OccurredAt: env.OccurredAt,
	})
}

// Receiver adapts Receive to a bus delivery pipeline.
func (i *PgInbox) Receiver(pool session.SessionPool, logger *zap.Logger) bus.ConsumeFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, env bus.Envelope) error {
		return pool.Session(ctx, func(s session.Session) error {
			return s.Atomic(func(txSession session.Session) error {
				inserted, err := i.Receive(txSession.(session.DbSession), env)
				if err != nil {
					return err
				}
				if !inserted {
					logger.Debug("duplicate inbound event ignored",
						zap.String("event_id", env.ID.String()),
						zap.String("event_type", env.Type),
					)
				}
				return nil
			})
		})
	}
}

func (i *PgInbox) Setup(s session.DbSession) error {
	if err := i.PgStore.Setup(s); err != nil {
		return err
	}
	return i.ledger.Setup(s)
}
