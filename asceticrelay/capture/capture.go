// Package capture turns the domain events of aggregates touched by a unit of
// work into outbox rows or direct handler calls at commit time.
package capture

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/disposable"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

// Hook observes the unit-of-work boundary of a pool.
type Hook interface {
	Attach(pool session.CommitObservable) disposable.Composite
}

// Appender is satisfied by *outbox.PgOutbox.
type Appender interface {
	Append(s session.DbSession, events ...messaging.Event) error
}

// Resolver is satisfied by *registry.Registry.
type Resolver interface {
	Resolve(eventType string) []messaging.Handler
}

// DispatchError collects the handler failures of the direct path. The
// business transaction is committed when it is reported.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string {
	return "direct dispatch: " + e.Err.Error()
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

func pending(aggregates []aggregate.DomainEventAccessor) []messaging.Event {
	var events []messaging.Event
	for _, agg := range aggregates {
		for _, event := range agg.PendingDomainEvents() {
			events = append(events, event)
		}
	}
	return events
}

func clearPending(aggregates []aggregate.DomainEventAccessor) {
	for _, agg := range aggregates {
		agg.ClearPendingDomainEvents()
	}
}

// OutboxHook appends pending events to the outbox inside the committing
// transaction.
type OutboxHook struct {
	appender Appender
	logger   *zap.Logger
}

func NewOutboxHook(appender Appender, logger *zap.Logger) *OutboxHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OutboxHook{appender: appender, logger: logger}
}

func (h *OutboxHook) Attach(pool session.CommitObservable) disposable.Composite {
	return disposable.Composite{
		pool.OnTransactionCommitting().Attach(h.onCommitting, h),
		pool.OnTransactionCommitted().Attach(h.onCommitted, h),
	}
}

func (h *OutboxHook) onCommitting(e session.TransactionCommittingEvent) error {
	events := pending(e.Aggregates)
	if len(events) == 0 {
		return nil
	}
	if err := h.appender.Append(e.Session, events...); err != nil {
		return errors.Wrap(err, "unable to capture domain events")
	}
	h.logger.Debug("domain events captured", zap.Int("count", len(events)))
	return nil
}

func (h *OutboxHook) onCommitted(e session.TransactionCommittedEvent) error {
	clearPending(e.Aggregates)
	return nil
}

// DirectHook runs handlers right after COMMIT, each in its own transaction
// of a fresh session. Failures are logged and never retried.
type DirectHook struct {
	pool     session.SessionPool
	resolver Resolver
	logger   *zap.Logger
}

func NewDirectHook(pool session.SessionPool, resolver Resolver, logger *zap.Logger) *DirectHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectHook{pool: pool, resolver: resolver, logger: logger}
}

func (h *DirectHook) Attach(pool session.CommitObservable) disposable.Composite {
	return disposable.Composite{
		pool.OnTransactionCommitted().Attach(h.onCommitted, h),
	}
}

func (h *DirectHook) onCommitted(e session.TransactionCommittedEvent) error {
	events := pending(e.Aggregates)
	clearPending(e.Aggregates)
	if len(events) == 0 {
		return nil
	}

	var failures *multierror.Error
	err := h.pool.Session(e.Context, func(s session.Session) error {
		for _, event := range events {
			for _, handler := range h.resolver.Resolve(event.EventType()) {
				if err := invoke(s, handler, event); err != nil {
					h.logger.Error("direct handler failed",
						zap.String("handler", handler.Name()),
						zap.String("event_id", event.EventID().String()),
						zap.String("event_type", event.EventType()),
						zap.Error(err),
					)
					failures = multierror.Append(failures, errors.Wrapf(err, "handler %s", handler.Name()))
				}
			}
		}
		return nil
	})
	if err != nil {
		failures = multierror.Append(failures, err)
	}
	if err := failures.ErrorOrNil(); err != nil {
		return &DispatchError{Err: err}
	}
	return nil
}

func invoke(s session.Session, handler messaging.Handler, event messaging.Event) error {
	return s.Atomic(func(tx session.Session) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = errors.Errorf("panic: %v", p)
			}
		}()
		return handler.Handle(tx, event)
	})
}
