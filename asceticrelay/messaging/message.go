package messaging

import (
	"time"

	"github.com/google/uuid"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/option"
)

// Message is a stored outbox or inbox row.
type Message struct {
	ID          uuid.UUID
	Type        string
	Payload     []byte
	OccurredAt  time.Time
	ProcessedAt option.Option[time.Time]
	Error       option.Option[string]
}

func (m Message) IsProcessed() bool {
	return m.ProcessedAt.IsSome()
}

// Outcome is the status a relay tick writes back for one Message.
type Outcome struct {
	ID          uuid.UUID
	ProcessedAt time.Time
	Error       option.Option[string]
}

func (o Outcome) Failed() bool {
	return o.Error.IsSome()
}
