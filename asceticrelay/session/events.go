package session

import (
	"context"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
)

// TransactionCommittingEvent is emitted inside the root transaction, after
// the unit of work succeeded and before COMMIT. Observer errors roll back.
type TransactionCommittingEvent struct {
	Session    DbSession
	Aggregates []aggregate.DomainEventAccessor
}

// TransactionCommittedEvent is emitted after COMMIT succeeded.
type TransactionCommittedEvent struct {
	Context    context.Context
	Aggregates []aggregate.DomainEventAccessor
}
