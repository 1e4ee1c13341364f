package pg

import (
	"context"

	"github.com/hashicorp/go-multierror"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session/result"
)

// Session represents a database session without transaction
type Session struct {
	ctx  context.Context
	conn *pgxpool.Conn
	pool *SessionPool
}

func NewSession(ctx context.Context, conn *pgxpool.Conn, pool *SessionPool) *Session {
	return &Session{
		ctx:  ctx,
		conn: conn,
		pool: pool,
	}
}

func (s *Session) Context() context.Context {
	return s.ctx
}

func (s *Session) Connection() session.DbConnection {
	return &connection{ctx: s.ctx, exec: s.conn}
}

// Atomic runs callback in a root transaction. Before COMMIT the pool's
// committing signal is notified with the tracked aggregates; after COMMIT
// the committed signal is. Errors of the latter come back as
// *session.PostCommitError.
func (s *Session) Atomic(callback session.SessionCallback) error {
	tx, err := s.conn.Begin(s.ctx)
	if err != nil {
		return errors.Wrap(err, "unable to start transaction")
	}

	tracker := session.NewTracker()
	atomicSession := NewAtomicSession(s.ctx, tx, tracker, s)

	err = callback(atomicSession)
	if err == nil {
		err = s.pool.onCommitting.Notify(session.TransactionCommittingEvent{
			Session:    atomicSession,
			Aggregates: tracker.Aggregates(),
		})
	}

	if err != nil {
		if txErr := tx.Rollback(s.ctx); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}

	if txErr := tx.Commit(s.ctx); txErr != nil {
		return errors.Wrap(txErr, "failed to commit transaction")
	}

	if err := s.pool.onCommitted.Notify(session.TransactionCommittedEvent{
		Context:    s.ctx,
		Aggregates: tracker.Aggregates(),
	}); err != nil {
		return &session.PostCommitError{Err: err}
	}

	return nil
}

// AtomicSession represents a session inside transaction
type AtomicSession struct {
	ctx     context.Context
	tx      pgx.Tx
	tracker *session.Tracker
	parent  session.Session
}

func NewAtomicSession(ctx context.Context, tx pgx.Tx, tracker *session.Tracker, parent session.Session) *AtomicSession {
	return &AtomicSession{
		ctx:     ctx,
		tx:      tx,
		tracker: tracker,
		parent:  parent,
	}
}

func (s *AtomicSession) Context() context.Context {
	return s.ctx
}

func (s *AtomicSession) Connection() session.DbConnection {
	return &connection{ctx: s.ctx, exec: s.tx}
}

func (s *AtomicSession) Track(agg aggregate.DomainEventAccessor) {
	s.tracker.Track(agg)
}

// Atomic opens a savepoint. Aggregates tracked inside a rolled back
// savepoint are forgotten.
func (s *AtomicSession) Atomic(callback session.SessionCallback) error {
	nestedTx, err := s.tx.Begin(s.ctx)
	if err != nil {
		return errors.Wrap(err, "unable to start savepoint")
	}

	mark := s.tracker.Mark()
	atomicSession := NewAtomicSession(s.ctx, nestedTx, s.tracker, s)

	err = callback(atomicSession)
	if err != nil {
		s.tracker.Rewind(mark)
		if txErr := nestedTx.Rollback(s.ctx); txErr != nil {
			return multierror.Append(err, txErr)
		}
		return err
	}

	if txErr := nestedTx.Commit(s.ctx); txErr != nil {
		return errors.Wrap(txErr, "failed to release savepoint")
	}

	return nil
}

// executor interface for both *pgxpool.Conn and pgx.Tx
type executor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
}

// connection implements session.DbConnection
type connection struct {
	ctx  context.Context
	exec executor
}

func (c *connection) Exec(query string, args ...any) (session.Result, error) {
	tag, err := c.exec.Exec(c.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return result.NewResult(tag.RowsAffected()), nil
}

func (c *connection) Query(query string, args ...any) (session.Rows, error) {
	r, err := c.exec.Query(c.ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows{r}, nil
}

func (c *connection) QueryRow(query string, args ...any) session.Row {
	return &row{Row: c.exec.QueryRow(c.ctx, query, args...)}
}
