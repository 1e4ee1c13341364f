package messagestore

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/messaging"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/option"
	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

// PgStore is the table layout shared by the outbox and the inbox:
// id, type, payload, occurred_at, processed_at, error.
type PgStore struct {
	table string
}

func NewPgStore(table string) *PgStore {
	return &PgStore{table: table}
}

func (p *PgStore) Table() string {
	return p.table
}

// Insert writes a pending row in the caller's session.
func (p *PgStore) Insert(s session.DbSession, msg *messaging.Message) error {
	sql := fmt.Sprintf(`
		INSERT INTO %s (id, type, payload, occurred_at)
		VALUES ($1, $2, $3, $4)
	`, p.table)

	_, err := s.Connection().Exec(sql, msg.ID, msg.Type, msg.Payload, msg.OccurredAt)
	return err
}

// InsertIfAbsent writes a pending row unless its id exists. It reports
// whether a row was written.
func (p *PgStore) InsertIfAbsent(s session.DbSession, msg *messaging.Message) (bool, error) {
	sql := fmt.Sprintf(`
		INSERT INTO %s (id, type, payload, occurred_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, p.table)

	res, err := s.Connection().Exec(sql, msg.ID, msg.Type, msg.Payload, msg.OccurredAt)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SelectBatch locks up to limit pending rows, oldest first. Rows locked by
// another transaction are skipped; the locks live until s ends.
func (p *PgStore) SelectBatch(s session.DbSession, limit int) ([]*messaging.Message, error) {
	sql := fmt.Sprintf(`
		SELECT id, type, payload, occurred_at, processed_at, error
		FROM %s
		WHERE processed_at IS NULL
		ORDER BY occurred_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, p.table)

	return p.query(s, sql, limit)
}

// MarkProcessed sets processed_at and error of every outcome in one
// statement. Rows already processed are left untouched.
func (p *PgStore) MarkProcessed(s session.DbSession, outcomes []messaging.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	ids, processedAt, errs := columns(outcomes)

	sql := fmt.Sprintf(`
		UPDATE %s AS t
		SET processed_at = v.processed_at, error = v.error
		FROM unnest($1::uuid[], $2::timestamptz[], $3::text[]) AS v(id, processed_at, error)
		WHERE t.id = v.id AND t.processed_at IS NULL
	`, p.table)

	_, err := s.Connection().Exec(sql, ids, processedAt, errs)
	return err
}

// SelectFailed locks up to limit processed rows that carry an error.
func (p *PgStore) SelectFailed(s session.DbSession, limit int) ([]*messaging.Message, error) {
	sql := fmt.Sprintf(`
		SELECT id, type, payload, occurred_at, processed_at, error
		FROM %s
		WHERE processed_at IS NOT NULL AND error IS NOT NULL
		ORDER BY occurred_at, id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, p.table)

	return p.query(s, sql, limit)
}

// UpdateErrors rewrites the error column only; processed_at never changes.
func (p *PgStore) UpdateErrors(s session.DbSession, outcomes []messaging.Outcome) error {
	if len(outcomes) == 0 {
		return nil
	}
	ids, _, errs := columns(outcomes)

	sql := fmt.Sprintf(`
		UPDATE %s AS t
		SET error = v.error
		FROM unnest($1::uuid[], $2::text[]) AS v(id, error)
		WHERE t.id = v.id AND t.processed_at IS NOT NULL
	`, p.table)

	_, err := s.Connection().Exec(sql, ids, errs)
	return err
}

// Pending counts rows not processed yet.
func (p *PgStore) Pending(s session.DbSession) (int64, error) {
	sql := fmt.Sprintf(`SELECT count(*) FROM %s WHERE processed_at IS NULL`, p.table)

	var count int64
	if err := s.Connection().QueryRow(sql).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (p *PgStore) Setup(s session.DbSession) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id UUID PRIMARY KEY,
			type VARCHAR(500) NOT NULL,
			payload BYTEA NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			processed_at TIMESTAMPTZ NULL,
			error TEXT NULL
		);
		CREATE INDEX IF NOT EXISTS %[1]s_pending_idx
			ON %[1]s (occurred_at, id)
			WHERE processed_at IS NULL;
		CREATE INDEX IF NOT EXISTS %[1]s_failed_idx
			ON %[1]s (occurred_at, id)
			WHERE processed_at IS NOT NULL AND error IS NOT NULL
	`, p.table)

	_, err := s.Connection().Exec(sql)
	return err
}

func (p *PgStore) query(s session.DbSession, sql string, args ...any) ([]*messaging.Message, error) {
	rows, err := s.Connection().Query(sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*messaging.Message
	for rows.Next() {
		var (
			msg         messaging.Message
			processedAt *time.Time
			errText     *string
		)
		if err := rows.Scan(&msg.ID, &msg.Type, &msg.Payload, &msg.OccurredAt, &processedAt, &errText); err != nil {
			return nil, err
		}
		msg.ProcessedAt = option.FromPtr(processedAt)
		msg.Error = option.FromPtr(errText)
		result = append(result, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func columns(outcomes []messaging.Outcome) ([]uuid.UUID, []time.Time, []*string) {
	ids := make([]uuid.UUID, len(outcomes))
	processedAt := make([]time.Time, len(outcomes))
	errs := make([]*string, len(outcomes))
	for i, o := range outcomes {
		ids[i] = o.ID
		processedAt[i] = o.ProcessedAt
		errs[i] = o.Error.Ptr()
	}
	return ids, processedAt, errs
}
