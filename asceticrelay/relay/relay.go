package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/oklog/ulid/v2"
	pkgerrors "github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/option"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/registry"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

// Result counts what one tick did. It is zero when the tick rolled back.
type Result struct {
	Selected    int
	Succeeded   int
	Failed      int
	Undecodable int
}

// Relay periodically moves pending rows of a Store through the handlers
// of a Dispatcher. A tick is one transaction: select and lock a batch,
// dispatch row by row, write all statuses, commit.
type Relay struct {
	name       string
	pool       session.SessionPool
	store      Store
	dispatcher Dispatcher
	batchSize  int
	interval   time.Duration
	logger     *zap.Logger
	tracer     trace.Tracer
	metrics    *Metrics
	clock      func() time.Time

	ticking   atomic.Bool
	mu        sync.Mutex
	scheduler gocron.Scheduler
}

func New(name string, pool session.SessionPool, store Store, dispatcher Dispatcher, opts ...Option) *Relay {
	r := &Relay{
		name:       name,
		pool:       pool,
		store:      store,
		dispatcher: dispatcher,
		batchSize:  DefaultBatchSize,
		interval:   DefaultInterval,
		logger:     zap.NewNop(),
		tracer:     defaultTracer(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("relay", name))
	return r
}

func (r *Relay) Name() string {
	return r.name
}

// Tick processes one batch. Rows whose handlers fail are still marked
// processed, with the failure as error text; Reprocess retries them.
// A store failure rolls the whole tick back.
func (r *Relay) Tick(ctx context.Context) (Result, error) {
	return r.run(ctx, "tick", r.store.SelectBatch, r.store.MarkProcessed)
}

// Reprocess dispatches again up to limit processed rows that carry an
// error. Only the error column is rewritten: it is cleared when every
// handler succeeds now. Handlers that succeeded before are skipped by
// their idempotency ledger.
func (r *Relay) Reprocess(ctx context.Context, limit int) (Result, error) {
	fs, ok := r.store.(FailedStore)
	if !ok {
		return Result{}, ErrReprocessUnsupported
	}
	if limit <= 0 {
		limit = r.batchSize
	}
	selectFailed := func(s session.DbSession, _ int) ([]*messaging.Message, error) {
		return fs.SelectFailed(s, limit)
	}
	return r.run(ctx, "reprocess", selectFailed, fs.UpdateErrors)
}

type selectFunc func(s session.DbSession, limit int) ([]*messaging.Message, error)
type writeFunc func(s session.DbSession, outcomes []messaging.Outcome) error

func (r *Relay) run(ctx context.Context, kind string, selectRows selectFunc, writeOutcomes writeFunc) (result Result, err error) {
	started := time.Now()
	defer func() {
		r.metrics.observe(r.name, result, err, time.Since(started))
	}()

	if !r.ticking.CompareAndSwap(false, true) {
		return Result{}, ErrTickInProgress
	}
	defer r.ticking.Store(false)

	tickID := ulid.Make().String()
	logger := r.logger.With(zap.String("tick_id", tickID), zap.String("kind", kind))
	ctx, span := r.tracer.Start(ctx, "relay."+kind, trace.WithAttributes(
		attribute.String("relay.name", r.name),
		attribute.String("relay.tick_id", tickID),
	))
	defer span.End()

	err = r.pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(txSession session.Session) error {
			tx, ok := txSession.(session.DbSession)
			if !ok {
				return session.ErrNotInTransaction
			}
			rows, err := selectRows(tx, r.batchSize)
			if err != nil {
				return pkgerrors.Wrap(err, "unable to select batch")
			}
			result = Result{Selected: len(rows)}
			if len(rows) == 0 {
				return nil
			}

			outcomes := make([]messaging.Outcome, 0, len(rows))
			for _, row := range rows {
				outcome := r.dispatch(ctx, tx, row, logger)
				switch {
				case outcome.Error.IsNothing():
					result.Succeeded++
				case strings.HasPrefix(outcome.Error.Unwrap(), deserializationPrefix):
					result.Undecodable++
				default:
					result.Failed++
				}
				outcomes = append(outcomes, outcome)
			}
			if err := writeOutcomes(tx, outcomes); err != nil {
				return pkgerrors.Wrap(err, "unable to update statuses")
			}
			return nil
		})
	})

	span.SetAttributes(
		attribute.Int("relay.selected", result.Selected),
		attribute.Int("relay.failed", result.Failed+result.Undecodable),
	)
	if err != nil {
		result = Result{}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("relay tick aborted", zap.Error(err))
		return result, err
	}
	if result.Selected > 0 {
		logger.Info("relay tick completed",
			zap.Int("selected", result.Selected),
			zap.Int("succeeded", result.Succeeded),
			zap.Int("failed", result.Failed),
			zap.Int("undecodable", result.Undecodable),
		)
	}
	return result, nil
}

const deserializationPrefix = "deserialization:"

// dispatch never fails: every problem with the row ends up in its outcome.
// A type without handlers is processed without being decoded.
func (r *Relay) dispatch(ctx context.Context, tx session.DbSession, row *messaging.Message, logger *zap.Logger) messaging.Outcome {
	_, span := r.tracer.Start(ctx, "relay.dispatch", trace.WithAttributes(
		attribute.String("message.id", row.ID.String()),
		attribute.String("message.type", row.Type),
	))
	defer span.End()

	outcome := messaging.Outcome{ID: row.ID, ProcessedAt: r.clock().UTC()}
	logger = logger.With(zap.String("message_id", row.ID.String()), zap.String("message_type", row.Type))

	handlers := r.dispatcher.Resolve(row.Type)
	if len(handlers) == 0 {
		return outcome
	}

	event, err := r.dispatcher.Decode(row.Type, row.Payload)
	if err != nil {
		var de *registry.DeserializationError
		if !errors.As(err, &de) {
			err = &registry.DeserializationError{EventType: row.Type, Err: err}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "deserialization")
		logger.Error("message payload cannot be decoded", zap.Error(err))
		outcome.Error = option.Some(err.Error())
		return outcome
	}

	var failures *multierror.Error
	for _, handler := range handlers {
		if err := r.invoke(tx, handler, event); err != nil {
			logger.Warn("handler failed", zap.String("handler", handler.Name()), zap.Error(err))
			failures = multierror.Append(failures, pkgerrors.Wrapf(err, "handler %s", handler.Name()))
			failures.ErrorFormat = joinErrors
		}
	}
	if err := failures.ErrorOrNil(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "handler failure")
		outcome.Error = option.Some(err.Error())
	}
	return outcome
}

// invoke isolates a handler in a savepoint so its failure cannot poison
// the tick transaction. Panics become errors.
func (r *Relay) invoke(tx session.DbSession, handler messaging.Handler, event messaging.Event) error {
	return tx.Atomic(func(sp session.Session) (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = pkgerrors.Errorf("panic: %v", p)
			}
		}()
		return handler.Handle(sp, event)
	})
}

func joinErrors(errs []error) string {
	parts := make([]string, len(errs))
	for i, err := range errs {
		parts[i] = err.Error()
	}
	return strings.Join(parts, "; ")
}

// Start schedules Tick every interval until Shutdown. A tick that is still
// running when the next one is due delays it.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler != nil {
		return ErrAlreadyStarted
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() { r.scheduledTick(ctx) }),
		gocron.WithName(r.name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = scheduler.Shutdown()
		return err
	}
	scheduler.Start()
	r.scheduler = scheduler
	r.logger.Info("relay started", zap.Duration("interval", r.interval), zap.Int("batch_size", r.batchSize))
	return nil
}

// scheduledTick lets a started tick finish even when ctx is cancelled
// meanwhile; Shutdown waits for it.
func (r *Relay) scheduledTick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if _, err := r.Tick(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrTickInProgress) {
		r.logger.Warn("scheduled tick failed", zap.Error(err))
	}
}

// Shutdown stops scheduling and waits for the running tick.
func (r *Relay) Shutdown() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.scheduler == nil {
		return nil
	}
	err := r.scheduler.Shutdown()
	r.scheduler = nil
	r.logger.Info("relay stopped")
	return err
}
