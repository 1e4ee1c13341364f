package relay

import (
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

// Store is the relay's view of an outbox or inbox table.
type Store interface {
	// SelectBatch locks up to limit unprocessed rows ordered by occurred_at.
	SelectBatch(s session.DbSession, limit int) ([]*messaging.Message, error)
	// MarkProcessed writes every outcome in one statement.
	MarkProcessed(s session.DbSession, outcomes []messaging.Outcome) error
}

// FailedStore lets Reprocess find processed rows that carry an error.
type FailedStore interface {
	SelectFailed(s session.DbSession, limit int) ([]*messaging.Message, error)
	UpdateErrors(s session.DbSession, outcomes []messaging.Outcome) error
}

// Dispatcher is satisfied by *registry.Registry.
type Dispatcher interface {
	Resolve(eventType string) []messaging.Handler
	Decode(eventType string, payload []byte) (messaging.Event, error)
}
