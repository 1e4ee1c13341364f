package idempotency

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

const uniqueViolation = "23505"

var ErrAlreadyRecorded = errors.New("idempotency: consumer record already exists")

// Key identifies one (event, handler) execution.
type Key struct {
	EventID  uuid.UUID
	Consumer string
}

type Ledger interface {
	Exists(s session.DbSession, key Key) (bool, error)
	// Record fails with ErrAlreadyRecorded when the key is taken.
	Record(s session.DbSession, key Key) error
}

// PgLedger stores consumer records in a table unique on
// (message_id, consumer_name).
type PgLedger struct {
	table string
}

func NewPgLedger(table string) *PgLedger {
	return &PgLedger{table: table}
}

func (l *PgLedger) Table() string {
	return l.table
}

func (l *PgLedger) Exists(s session.DbSession, key Key) (bool, error) {
	sql := fmt.Sprintf(`
		SELECT EXISTS (
			SELECT 1 FROM %s WHERE message_id = $1 AND consumer_name = $2
		)
	`, l.table)

	var exists bool
	if err := s.Connection().QueryRow(sql, key.EventID, key.Consumer).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (l *PgLedger) Record(s session.DbSession, key Key) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (message_id, consumer_name)
		VALUES ($1, $2)
	`, l.table)

	_, err := s.Connection().Exec(sql, key.EventID, key.Consumer)
	if isUniqueViolation(err) {
		return ErrAlreadyRecorded
	}
	return err
}

func (l *PgLedger) Setup(s session.DbSession) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			message_id UUID NOT NULL,
			consumer_name VARCHAR(500) NOT NULL,
			PRIMARY KEY (message_id, consumer_name)
		)
	`, l.table)

	_, err := s.Connection().Exec(sql)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
