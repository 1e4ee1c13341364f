package testutils

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session/result"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/signals"
)

type ExecutedQuery struct {
	Query  string
	Params []any
}

// NewDbSessionStub returns a session whose queries are recorded and answered
// with rows. When Responder is set it decides the rows per query instead.
func NewDbSessionStub(rows *RowsStub) *DbSessionStub {
	stub := &DbSessionStub{
		Rows:         rows,
		onCommitting: signals.NewSignal[session.TransactionCommittingEvent](),
		onCommitted:  signals.NewSignal[session.TransactionCommittedEvent](),
	}
	stub.conn = &connectionStub{session: stub}
	return stub
}

type DbSessionStub struct {
	Rows         *RowsStub
	Responder    func(query string, params []any) (*RowsStub, error)
	ExecErr      error
	ActualQuery  string
	ActualParams []any
	Queries      []ExecutedQuery
	Commits      int
	Rollbacks    int
	conn         *connectionStub
	tracker      *session.Tracker
	onCommitting signals.Signal[session.TransactionCommittingEvent]
	onCommitted  signals.Signal[session.TransactionCommittedEvent]
}

func (s *DbSessionStub) Context() context.Context {
	return context.Background()
}

// Atomic emulates the root transaction of session/pg: committing and
// committed signals fire around a fake COMMIT. Nested calls behave as
// savepoints sharing the root tracker.
func (s *DbSessionStub) Atomic(callback session.SessionCallback) error {
	if s.tracker != nil {
		mark := s.tracker.Mark()
		if err := callback(s); err != nil {
			s.tracker.Rewind(mark)
			s.Rollbacks++
			return err
		}
		return nil
	}

	s.tracker = session.NewTracker()
	tracker := s.tracker
	err := callback(s)
	if err == nil {
		err = s.onCommitting.Notify(session.TransactionCommittingEvent{
			Session:    s,
			Aggregates: tracker.Aggregates(),
		})
	}
	s.tracker = nil
	if err != nil {
		s.Rollbacks++
		return err
	}
	s.Commits++
	if err := s.onCommitted.Notify(session.TransactionCommittedEvent{
		Context:    s.Context(),
		Aggregates: tracker.Aggregates(),
	}); err != nil {
		return &session.PostCommitError{Err: err}
	}
	return nil
}

func (s *DbSessionStub) Track(agg aggregate.DomainEventAccessor) {
	if s.tracker != nil {
		s.tracker.Track(agg)
	}
}

func (s *DbSessionStub) Connection() session.DbConnection {
	return s.conn
}

func (s *DbSessionStub) OnTransactionCommitting() signals.Signal[session.TransactionCommittingEvent] {
	return s.onCommitting
}

func (s *DbSessionStub) OnTransactionCommitted() signals.Signal[session.TransactionCommittedEvent] {
	return s.onCommitted
}

func (s *DbSessionStub) record(query string, args []any) {
	s.ActualQuery = query
	s.ActualParams = args
	s.Queries = append(s.Queries, ExecutedQuery{Query: query, Params: args})
}

func (s *DbSessionStub) rowsFor(query string, args []any) (*RowsStub, error) {
	if s.Responder != nil {
		return s.Responder(query, args)
	}
	if s.Rows == nil {
		return NewRowsStub(), nil
	}
	return s.Rows, nil
}

// SessionPoolStub hands out the same DbSessionStub to every callback.
type SessionPoolStub struct {
	Stub *DbSessionStub
}

func NewSessionPoolStub(stub *DbSessionStub) *SessionPoolStub {
	return &SessionPoolStub{Stub: stub}
}

func (p *SessionPoolStub) Session(ctx context.Context, callback session.SessionPoolCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return callback(p.Stub)
}

func (p *SessionPoolStub) OnTransactionCommitting() signals.Signal[session.TransactionCommittingEvent] {
	return p.Stub.onCommitting
}

func (p *SessionPoolStub) OnTransactionCommitted() signals.Signal[session.TransactionCommittedEvent] {
	return p.Stub.onCommitted
}

type connectionStub struct {
	session *DbSessionStub
}

func (c *connectionStub) Exec(query string, args ...any) (session.Result, error) {
	c.session.record(query, args)
	if c.session.ExecErr != nil {
		return nil, c.session.ExecErr
	}
	return result.NewResult(1), nil
}

func (c *connectionStub) Query(query string, args ...any) (session.Rows, error) {
	c.session.record(query, args)
	rows, err := c.session.rowsFor(query, args)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *connectionStub) QueryRow(query string, args ...any) session.Row {
	c.session.record(query, args)
	rows, err := c.session.rowsFor(query, args)
	if err != nil {
		return &RowStub{err: err}
	}
	return &RowStub{rows: rows}
}

func NewRowsStub(rows ...[]any) *RowsStub {
	return &RowsStub{
		rows:   rows,
		idx:    -1,
		Closed: false,
	}
}

type RowsStub struct {
	rows   [][]any
	idx    int
	Closed bool
}

func (r *RowsStub) Close() error {
	r.Closed = true
	return nil
}

func (r *RowsStub) Err() error {
	return nil
}

func (r *RowsStub) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}

func (r *RowsStub) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.rows) {
		return errors.New("no current row")
	}

	row := r.rows[r.idx]
	for i, val := range row {
		if i >= len(dest) {
			break
		}

		switch d := dest[i].(type) {
		case *int:
			*d = toInt(val)
		case *int64:
			*d = toInt64(val)
		case *string:
			*d = val.(string)
		case **string:
			if val == nil {
				*d = nil
			} else {
				v := val.(string)
				*d = &v
			}
		case *bool:
			*d = val.(bool)
		case *[]byte:
			*d = val.([]byte)
		case *uuid.UUID:
			*d = val.(uuid.UUID)
		case *time.Time:
			*d = val.(time.Time)
		case **time.Time:
			if val == nil {
				*d = nil
			} else {
				v := val.(time.Time)
				*d = &v
			}
		case sql.Scanner:
			if err := d.Scan(val); err != nil {
				return err
			}
		default:
			return errors.New("unsupported scan type")
		}
	}
	return nil
}

func toInt(val any) int {
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case int32:
		return int(v)
	default:
		panic("cannot convert to int")
	}
}

func toInt64(val any) int64 {
	switch v := val.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case int32:
		return int64(v)
	default:
		panic("cannot convert to int64")
	}
}

// RowStub reads the first row of its RowsStub, or reports session.ErrNoRows.
type RowStub struct {
	rows *RowsStub
	err  error
}

func (r *RowStub) Err() error {
	return r.err
}

func (r *RowStub) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if !r.rows.Next() {
		r.err = session.ErrNoRows
		return r.err
	}
	return r.rows.Scan(dest...)
}
