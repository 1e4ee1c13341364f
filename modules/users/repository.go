package users

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	pkgerrors "github.com/pkg/errors"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

const DefaultTable = "users"

const uniqueViolation = "23505"

// PgRepository persists users. Add and Update must run in a transaction:
// the saved user is tracked so its events are captured at commit.
type PgRepository struct {
	table string
}

func NewPgRepository(table string) *PgRepository {
	if table == "" {
		table = DefaultTable
	}
	return &PgRepository{table: table}
}

func (r *PgRepository) Add(s session.DbSession, u *User) error {
	tracker, ok := s.(session.AggregateTracker)
	if !ok {
		return session.ErrNotInTransaction
	}
	sql := fmt.Sprintf(
		`INSERT INTO %s (id, first_name, last_name, email, role) VALUES ($1, $2, $3, $4, $5)`,
		r.table,
	)
	if _, err := s.Connection().Exec(sql, u.id, u.firstName, u.lastName, u.email, u.role); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return pkgerrors.Wrapf(err, "unable to insert user %s", u.id)
	}
	tracker.Track(u)
	return nil
}

func (r *PgRepository) Update(s session.DbSession, u *User) error {
	tracker, ok := s.(session.AggregateTracker)
	if !ok {
		return session.ErrNotInTransaction
	}
	sql := fmt.Sprintf(
		`UPDATE %s SET first_name = $2, last_name = $3, email = $4, role = $5 WHERE id = $1`,
		r.table,
	)
	result, err := s.Connection().Exec(sql, u.id, u.firstName, u.lastName, u.email, u.role)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrEmailTaken
		}
		return pkgerrors.Wrapf(err, "unable to update user %s", u.id)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrUserNotFound
	}
	tracker.Track(u)
	return nil
}

func (r *PgRepository) Get(s session.DbSession, id uuid.UUID) (*User, error) {
	return r.getBy(s, "id", id)
}

func (r *PgRepository) GetByEmail(s session.DbSession, email string) (*User, error) {
	return r.getBy(s, "email", normalizeEmail(email))
}

func (r *PgRepository) getBy(s session.DbSession, column string, value any) (*User, error) {
	sql := fmt.Sprintf(
		`SELECT id, first_name, last_name, email, role FROM %s WHERE %s = $1`,
		r.table, column,
	)
	var (
		id                               uuid.UUID
		firstName, lastName, email, role string
	)
	err := s.Connection().QueryRow(sql, value).Scan(&id, &firstName, &lastName, &email, &role)
	if errors.Is(err, session.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "unable to load user by %s", column)
	}
	return Restore(id, firstName, lastName, email, role), nil
}

func (r *PgRepository) Setup(s session.DbSession) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id uuid PRIMARY KEY,
			first_name text NOT NULL,
			last_name text NOT NULL,
			email text NOT NULL UNIQUE,
			role text NOT NULL
		)`, r.table)
	if _, err := s.Connection().Exec(sql); err != nil {
		return pkgerrors.Wrapf(err, "unable to create %s", r.table)
	}
	return nil
}
