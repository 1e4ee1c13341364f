package idempotency

import (
	"errors"

	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

var (
	ErrDbSessionRequired = errors.New("idempotency: handler session has no db connection")
	errDuplicate         = errors.New("idempotency: duplicate")
)

type Option func(*consumer)

func WithLogger(logger *zap.Logger) Option {
	return func(c *consumer) {
		c.logger = logger
	}
}

// Wrap returns a handler that runs inner at most once per event id. The
// check, the handler and the record share one atomic scope, a savepoint when
// s is already transactional, so a rejected record also undoes the
// handler's database writes.
func Wrap(ledger Ledger, inner messaging.Handler, opts ...Option) messaging.Handler {
	c := &consumer{ledger: ledger, inner: inner, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Decorator adapts Wrap for registry.Builder.Use.
func Decorator(ledger Ledger, opts ...Option) messaging.Decorator {
	return func(inner messaging.Handler) messaging.Handler {
		return Wrap(ledger, inner, opts...)
	}
}

type consumer struct {
	ledger Ledger
	inner  messaging.Handler
	logger *zap.Logger
}

func (c *consumer) Name() string {
	return c.inner.Name()
}

func (c *consumer) Handle(s session.Session, event messaging.Event) error {
	key := Key{EventID: event.EventID(), Consumer: c.inner.Name()}

	err := s.Atomic(func(txSession session.Session) error {
		db, ok := txSession.(session.DbSession)
		if !ok {
			return ErrDbSessionRequired
		}
		exists, err := c.ledger.Exists(db, key)
		if err != nil {
			return err
		}
		if exists {
			return errDuplicate
		}
		if err := c.inner.Handle(txSession, event); err != nil {
			return err
		}
		return c.ledger.Record(db, key)
	})

	if errors.Is(err, errDuplicate) || errors.Is(err, ErrAlreadyRecorded) {
		c.logger.Debug("duplicate suppressed",
			zap.String("event_id", key.EventID.String()),
			zap.String("consumer", key.Consumer),
		)
		return nil
	}
	return err
}
