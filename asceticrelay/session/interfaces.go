package session

import (
	"context"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/signals"
)

type SessionCallback func(Session) error

type Session interface {
	Context() context.Context
	Atomic(SessionCallback) error
}

type SessionPoolCallback func(Session) error

type SessionPool interface {
	Session(context.Context, SessionPoolCallback) error
}

// AggregateTracker is implemented by transactional sessions. A tracked
// aggregate takes part in the commit signals of the root transaction.
type AggregateTracker interface {
	Track(agg aggregate.DomainEventAccessor)
}

// CommitObservable exposes the unit-of-work boundary of a pool.
type CommitObservable interface {
	OnTransactionCommitting() signals.Signal[TransactionCommittingEvent]
	OnTransactionCommitted() signals.Signal[TransactionCommittedEvent]
}

// DbSession is a session bound to a database transaction or connection.
// Stores and ledgers take it so their writes join the caller's unit of work.
type DbSession interface {
	Session
	Connection() DbConnection
}

// DbConnection runs statements with positional ($1, $2) arguments.
type DbConnection interface {
	Exec(query string, args ...any) (Result, error)
	Query(query string, args ...any) (Rows, error)
	// QueryRow defers its error to Scan; no rows scans as ErrNoRows.
	QueryRow(query string, args ...any) Row
}

type Result interface {
	RowsAffected() (int64, error)
}

type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type Row interface {
	Scan(dest ...any) error
	Err() error
}
