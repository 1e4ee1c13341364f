package aggregate

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate. EventType is the stable type
// tag used to persist and later decode the event.
type DomainEvent interface {
	EventID() uuid.UUID
	OccurredAt() time.Time
	EventType() string
}

// DomainEventBase carries the identity and occurrence time every event needs.
// Embed it by value in concrete events.
type DomainEventBase struct {
	ID         uuid.UUID `json:"id"`
	OccurredOn time.Time `json:"occurred_on"`
}

func NewDomainEventBase() DomainEventBase {
	return DomainEventBase{
		ID:         uuid.New(),
		OccurredOn: time.Now().UTC(),
	}
}

func (e DomainEventBase) EventID() uuid.UUID {
	return e.ID
}

func (e DomainEventBase) OccurredAt() time.Time {
	return e.OccurredOn
}
