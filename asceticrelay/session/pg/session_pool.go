package pg

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/signals"
)

type SessionPool struct {
	pool         *pgxpool.Pool
	onCommitting signals.Signal[session.TransactionCommittingEvent]
	onCommitted  signals.Signal[session.TransactionCommittedEvent]
}

func NewSessionPool(pool *pgxpool.Pool) *SessionPool {
	return &SessionPool{
		pool:         pool,
		onCommitting: signals.NewSignal[session.TransactionCommittingEvent](),
		onCommitted:  signals.NewSignal[session.TransactionCommittedEvent](),
	}
}

func (p *SessionPool) OnTransactionCommitting() signals.Signal[session.TransactionCommittingEvent] {
	return p.onCommitting
}

func (p *SessionPool) OnTransactionCommitted() signals.Signal[session.TransactionCommittedEvent] {
	return p.onCommitted
}

func (p *SessionPool) Session(ctx context.Context, callback session.SessionPoolCallback) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return callback(NewSession(ctx, conn, p))
}
