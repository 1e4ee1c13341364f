package aggregate

type DomainEventAdder interface {
	AddDomainEvent(DomainEvent)
}

type DomainEventAccessor interface {
	PendingDomainEvents() []DomainEvent
	ClearPendingDomainEvents()
}

// EventiveEntity keeps the ordered list of events raised by an aggregate and
// not yet captured. It does no I/O.
type EventiveEntity struct {
	pendingDomainEvents []DomainEvent
}

func (e *EventiveEntity) AddDomainEvent(event DomainEvent) {
	e.pendingDomainEvents = append(e.pendingDomainEvents, event)
}

// PendingDomainEvents returns a copy; callers cannot alter the entity's list.
func (e *EventiveEntity) PendingDomainEvents() []DomainEvent {
	events := make([]DomainEvent, len(e.pendingDomainEvents))
	copy(events, e.pendingDomainEvents)
	return events
}

func (e *EventiveEntity) ClearPendingDomainEvents() {
	e.pendingDomainEvents = nil
}
