package messaging

import (
	"time"

	"github.com/google/uuid"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

// Event is anything that can travel through an outbox or an inbox: a domain
// event or an integration event. EventType is its persisted type tag.
type Event interface {
	EventID() uuid.UUID
	OccurredAt() time.Time
	EventType() string
}

// Handler reacts to one event. Name must be stable across releases, it is
// part of the idempotency key.
type Handler interface {
	Name() string
	Handle(s session.Session, event Event) error
}

type HandlerFunc func(s session.Session, event Event) error

func NewHandler(name string, fn HandlerFunc) Handler {
	return &funcHandler{name: name, fn: fn}
}

type funcHandler struct {
	name string
	fn   HandlerFunc
}

func (h *funcHandler) Name() string {
	return h.name
}

func (h *funcHandler) Handle(s session.Session, event Event) error {
	return h.fn(s, event)
}

// Decorator composes a handler into another one with the same Name.
type Decorator func(Handler) Handler
