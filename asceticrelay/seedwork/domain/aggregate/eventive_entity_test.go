package aggregate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type somethingHappened struct {
	DomainEventBase
	Value int
}

func (somethingHappened) EventType() string {
	return "test.something_happened"
}

type sampleAggregate struct {
	EventiveEntity
}

func TestEventiveEntity_KeepsOrder(t *testing.T) {
	agg := &sampleAggregate{}
	first := &somethingHappened{DomainEventBase: NewDomainEventBase(), Value: 1}
	second := &somethingHappened{DomainEventBase: NewDomainEventBase(), Value: 2}

	agg.AddDomainEvent(first)
	agg.AddDomainEvent(second)

	events := agg.PendingDomainEvents()
	require.Len(t, events, 2)
	assert.Same(t, first, events[0])
	assert.Same(t, second, events[1])
}

func TestEventiveEntity_PendingIsACopy(t *testing.T) {
	agg := &sampleAggregate{}
	agg.AddDomainEvent(&somethingHappened{DomainEventBase: NewDomainEventBase()})

	events := agg.PendingDomainEvents()
	events[0] = nil

	assert.NotNil(t, agg.PendingDomainEvents()[0])
}

func TestEventiveEntity_Clear(t *testing.T) {
	agg := &sampleAggregate{}
	agg.AddDomainEvent(&somethingHappened{DomainEventBase: NewDomainEventBase()})

	agg.ClearPendingDomainEvents()

	assert.Empty(t, agg.PendingDomainEvents())
}

func TestDomainEventBase_Identity(t *testing.T) {
	base := NewDomainEventBase()
	assert.NotEqual(t, base.ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.Equal(t, base.ID, base.EventID())
	assert.Equal(t, base.OccurredOn, base.OccurredAt())
}
