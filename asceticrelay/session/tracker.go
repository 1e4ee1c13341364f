package session

import (
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
)

// Tracker collects the aggregates touched by one root transaction.
// Savepoint scopes share the tracker of their root. It is not safe for
// concurrent use, like the transaction it belongs to.
type Tracker struct {
	aggregates []aggregate.DomainEventAccessor
}

func NewTracker() *Tracker {
	return &Tracker{}
}

func (t *Tracker) Track(agg aggregate.DomainEventAccessor) {
	for _, a := range t.aggregates {
		if a == agg {
			return
		}
	}
	t.aggregates = append(t.aggregates, agg)
}

// Mark returns a position that Rewind can return to.
func (t *Tracker) Mark() int {
	return len(t.aggregates)
}

// Rewind forgets the aggregates tracked after mark.
func (t *Tracker) Rewind(mark int) {
	if mark < len(t.aggregates) {
		t.aggregates = t.aggregates[:mark]
	}
}

func (t *Tracker) Aggregates() []aggregate.DomainEventAccessor {
	result := make([]aggregate.DomainEventAccessor, len(t.aggregates))
	copy(result, t.aggregates)
	return result
}
