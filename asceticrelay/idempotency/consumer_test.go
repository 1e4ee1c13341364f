package idempotency

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/seedwork/domain/aggregate"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/utils/testutils"
)

type memLedger struct {
	mu      sync.Mutex
	records map[Key]bool
	// raceOn makes Record behave as if a concurrent consumer won.
	raceOn bool
}

func newMemLedger() *memLedger {
	return &memLedger{records: make(map[Key]bool)}
}

func (l *memLedger) Exists(_ session.DbSession, key Key) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.records[key], nil
}

func (l *memLedger) Record(_ session.DbSession, key Key) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.raceOn || l.records[key] {
		return ErrAlreadyRecorded
	}
	l.records[key] = true
	return nil
}

type pinged struct {
	aggregate.DomainEventBase
}

func (pinged) EventType() string {
	return "test.pinged"
}

func countingHandler(name string, calls *int, err error) messaging.Handler {
	return messaging.NewHandler(name, func(session.Session, messaging.Event) error {
		*calls++
		return err
	})
}

func TestWrap_RunsOncePerEvent(t *testing.T) {
	ledger := newMemLedger()
	calls := 0
	h := Wrap(ledger, countingHandler("H", &calls, nil))
	s := testutils.NewDbSessionStub(nil)
	event := &pinged{DomainEventBase: aggregate.NewDomainEventBase()}

	require.NoError(t, h.Handle(s, event))
	require.NoError(t, h.Handle(s, event))

	assert.Equal(t, 1, calls)
	assert.True(t, ledger.records[Key{EventID: event.ID, Consumer: "H"}])
}

func TestWrap_KeyIncludesHandlerName(t *testing.T) {
	ledger := newMemLedger()
	callsA, callsB := 0, 0
	a := Wrap(ledger, countingHandler("A", &callsA, nil))
	b := Wrap(ledger, countingHandler("B", &callsB, nil))
	s := testutils.NewDbSessionStub(nil)
	event := &pinged{DomainEventBase: aggregate.NewDomainEventBase()}

	require.NoError(t, a.Handle(s, event))
	require.NoError(t, b.Handle(s, event))

	assert.Equal(t, 1, callsA)
	assert.Equal(t, 1, callsB)
}

func TestWrap_FailureIsNotRecorded(t *testing.T) {
	ledger := newMemLedger()
	calls := 0
	boom := errors.New("boom")
	h := Wrap(ledger, countingHandler("H", &calls, boom))
	s := testutils.NewDbSessionStub(nil)
	event := &pinged{DomainEventBase: aggregate.NewDomainEventBase()}

	assert.ErrorIs(t, h.Handle(s, event), boom)
	assert.ErrorIs(t, h.Handle(s, event), boom)

	assert.Equal(t, 2, calls)
	assert.Empty(t, ledger.records)
	assert.Equal(t, 2, s.Rollbacks)
}

func TestWrap_LostRaceIsSuccess(t *testing.T) {
	ledger := newMemLedger()
	ledger.raceOn = true
	calls := 0
	h := Wrap(ledger, countingHandler("H", &calls, nil))
	s := testutils.NewDbSessionStub(nil)

	err := h.Handle(s, &pinged{DomainEventBase: aggregate.NewDomainEventBase()})

	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, s.Rollbacks)
}

func TestWrap_KeepsName(t *testing.T) {
	calls := 0
	h := Decorator(newMemLedger())(countingHandler("send-welcome-email", &calls, nil))
	assert.Equal(t, "send-welcome-email", h.Name())
}

func TestPgLedger_Record(t *testing.T) {
	s := testutils.NewDbSessionStub(nil)
	ledger := NewPgLedger("outbox_message_consumers")
	key := Key{EventID: uuid.New(), Consumer: "H"}

	require.NoError(t, ledger.Record(s, key))
	assert.Contains(t, s.ActualQuery, "INSERT INTO outbox_message_consumers")
	assert.Equal(t, []any{key.EventID, "H"}, s.ActualParams)
}

func TestPgLedger_RecordUniqueViolation(t *testing.T) {
	s := testutils.NewDbSessionStub(nil)
	s.ExecErr = &pgconn.PgError{Code: "23505"}
	ledger := NewPgLedger("outbox_message_consumers")

	err := ledger.Record(s, Key{EventID: uuid.New(), Consumer: "H"})

	assert.ErrorIs(t, err, ErrAlreadyRecorded)
}

func TestPgLedger_RecordOtherError(t *testing.T) {
	s := testutils.NewDbSessionStub(nil)
	s.ExecErr = &pgconn.PgError{Code: "40001"}
	ledger := NewPgLedger("outbox_message_consumers")

	err := ledger.Record(s, Key{EventID: uuid.New(), Consumer: "H"})

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrAlreadyRecorded)
}

func TestPgLedger_Exists(t *testing.T) {
	s := testutils.NewDbSessionStub(testutils.NewRowsStub([]any{true}))
	ledger := NewPgLedger("inbox_message_consumers")
	key := Key{EventID: uuid.New(), Consumer: "H"}

	exists, err := ledger.Exists(s, key)

	require.NoError(t, err)
	assert.True(t, exists)
	assert.Contains(t, s.ActualQuery, "FROM inbox_message_consumers")
}
