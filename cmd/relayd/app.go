package main

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/bus"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/bus/kafka"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/bus/rabbitmq"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/capture"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/codec"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/disposable"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/idempotency"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/inbox"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/outbox"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/registry"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/relay"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
	pgsession "github.com/krew-solutions/ascetic-relay-go/asceticrelay/session/pg"
	"github.com/krew-solutions/ascetic-relay-go/config"
	"github.com/krew-solutions/ascetic-relay-go/modules/notifications"
	"github.com/krew-solutions/ascetic-relay-go/modules/users"
)

// consumer is implemented by every transport that can feed a pipeline.
type consumer interface {
	Consume(ctx context.Context, deliver bus.ConsumeFunc) error
}

type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	pool      *pgsession.SessionPool
	outbox    *outbox.PgOutbox
	inbox     *inbox.PgInbox
	users     *users.PgRepository
	transport bus.Transport
	consumer  consumer
	scheduler bus.Scheduler
	publisher *bus.Publisher
	pipeline  *bus.Pipeline
	outboxReg *registry.Registry
	inboxReg  *registry.Registry
	metrics   *prometheus.Registry
	relayM    *relay.Metrics
	hooks     disposable.Composite
	closers   []func() error
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger, metrics: prometheus.NewRegistry()}
	if err := a.init(ctx); err != nil {
		a.close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context) error {
	key, err := a.cfg.Codec.Key()
	if err != nil {
		return err
	}
	payloadCodec, err := codec.New(a.cfg.Codec.Compress, key)
	if err != nil {
		return err
	}

	a.db, err = pgxpool.New(ctx, a.cfg.Database.DSN)
	if err != nil {
		return pkgerrors.Wrap(err, "connect database")
	}
	a.closers = append(a.closers, func() error { a.db.Close(); return nil })
	a.pool = pgsession.NewSessionPool(a.db)

	a.outbox = outbox.NewOutbox(a.cfg.Outbox.Table, a.cfg.Outbox.ConsumersTable, payloadCodec)
	a.inbox = inbox.NewInbox(a.cfg.Inbox.Table, a.cfg.Inbox.ConsumersTable)
	a.users = users.NewPgRepository("")
	a.relayM = relay.NewMetrics(a.metrics)

	if err := a.initBus(payloadCodec); err != nil {
		return err
	}

	outboxB := registry.NewBuilder(payloadCodec)
	if err := outboxB.Use(idempotency.Decorator(a.outbox.Ledger(), idempotency.WithLogger(a.logger))); err != nil {
		return err
	}
	if err := users.RegisterOutboxHandlers(outboxB, a.users, a.publisher); err != nil {
		return err
	}
	if a.outboxReg, err = outboxB.Build(); err != nil {
		return err
	}

	inboxB := registry.NewBuilder(payloadCodec)
	if err := inboxB.Use(idempotency.Decorator(a.inbox.Ledger(), idempotency.WithLogger(a.logger))); err != nil {
		return err
	}
	if err := notifications.RegisterInboxHandlers(inboxB, notifications.NewLogEmailSender(a.logger)); err != nil {
		return err
	}
	if a.inboxReg, err = inboxB.Build(); err != nil {
		return err
	}

	a.hooks = capture.NewOutboxHook(a.outbox, a.logger).Attach(a.pool)
	return nil
}

func (a *app) initBus(payloadCodec codec.Codec) error {
	broker := a.cfg.Broker
	busMetrics := bus.NewMetrics(a.metrics)
	var inProcess *bus.InProcessTransport

	switch broker.Kind {
	case config.BrokerRabbitMQ:
		t, err := rabbitmq.Dial(rabbitmq.Config{
			URL:      broker.RabbitMQ.URL,
			Exchange: broker.RabbitMQ.Exchange,
			Queue:    broker.RabbitMQ.Queue,
			Prefetch: broker.RabbitMQ.Prefetch,
			Delays:   broker.RedeliveryPolicy().Intervals,
			ShedWait: broker.ShedWait,
		}, a.logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, t.Close)
		a.transport, a.consumer, a.scheduler = t, t, t
	case config.BrokerKafka:
		t := kafka.New(kafka.Config{
			Brokers:  kafka.SplitBrokers(broker.Kafka.Brokers),
			Topic:    broker.Kafka.Topic,
			GroupID:  broker.Kafka.GroupID,
			ShedWait: broker.ShedWait,
		}, a.logger)
		a.closers = append(a.closers, t.Close)
		a.transport, a.consumer = t, t
	default:
		inProcess = bus.NewInProcessTransport()
		a.transport, a.consumer = inProcess, inProcess
	}
	if a.scheduler == nil {
		timers := bus.NewTimerScheduler(a.logger)
		a.closers = append(a.closers, func() error { timers.Close(); return nil })
		a.scheduler = timers
	}

	a.publisher = bus.NewPublisher(a.transport,
		bus.WithName("publisher"),
		bus.WithCodec(payloadCodec),
		bus.WithLogger(a.logger),
		bus.WithMetrics(busMetrics),
		bus.WithBreakerPolicy(broker.BreakerPolicy()),
	)
	a.pipeline = bus.NewPipeline(a.inbox.Receiver(a.pool, a.logger),
		bus.WithName("consumer"),
		bus.WithLogger(a.logger),
		bus.WithMetrics(busMetrics),
		bus.WithRetryPolicy(broker.RetryPolicy()),
		bus.WithRedeliveryPolicy(broker.RedeliveryPolicy()),
		bus.WithBreakerPolicy(broker.BreakerPolicy()),
		bus.WithScheduler(a.scheduler),
	)
	// Bound up front so relays and reprocess can publish without serve's consumer.
	if inProcess != nil {
		inProcess.Bind(a.pipeline.Deliver)
	}
	return nil
}

func (a *app) outboxRelay() *relay.Relay {
	return relay.New("outbox", a.pool, a.outbox, a.outboxReg,
		relay.WithBatchSize(a.cfg.Outbox.BatchSize),
		relay.WithInterval(a.cfg.Outbox.Interval()),
		relay.WithLogger(a.logger),
		relay.WithMetrics(a.relayM),
	)
}

func (a *app) inboxRelay() *relay.Relay {
	return relay.New("inbox", a.pool, a.inbox, a.inboxReg,
		relay.WithBatchSize(a.cfg.Inbox.BatchSize),
		relay.WithInterval(a.cfg.Inbox.Interval()),
		relay.WithLogger(a.logger),
		relay.WithMetrics(a.relayM),
	)
}

// migrate creates every table relayd owns in one transaction.
func (a *app) migrate(ctx context.Context) error {
	return a.pool.Session(ctx, func(s session.Session) error {
		return s.Atomic(func(tx session.Session) error {
			db := tx.(session.DbSession)
			if err := a.users.Setup(db); err != nil {
				return err
			}
			if err := a.outbox.Setup(db); err != nil {
				return err
			}
			return a.inbox.Setup(db)
		})
	})
}

func (a *app) close() {
	if a.hooks != nil {
		a.hooks.Dispose()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn("shutdown incomplete", zap.Error(err))
	}
	_ = a.logger.Sync()
}
