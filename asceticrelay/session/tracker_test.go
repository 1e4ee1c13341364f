package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
)

type trackedAggregate struct {
	aggregate.EventiveEntity
}

func TestTracker_DeduplicatesByIdentity(t *testing.T) {
	tracker := NewTracker()
	a := &trackedAggregate{}
	b := &trackedAggregate{}

	tracker.Track(a)
	tracker.Track(b)
	tracker.Track(a)

	assert.Len(t, tracker.Aggregates(), 2)
}

func TestTracker_Rewind(t *testing.T) {
	tracker := NewTracker()
	a := &trackedAggregate{}
	tracker.Track(a)
	mark := tracker.Mark()
	tracker.Track(&trackedAggregate{})

	tracker.Rewind(mark)

	aggs := tracker.Aggregates()
	assert.Len(t, aggs, 1)
	assert.Same(t, a, aggs[0])
}

func TestPostCommitError_IsCommitted(t *testing.T) {
	err := &PostCommitError{Err: ErrNoRows}
	assert.True(t, IsCommitted(err))
	assert.ErrorIs(t, err, ErrNoRows)
	assert.False(t, IsCommitted(ErrNoRows))
}
