package pg

import (
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/krew-solutions/ascetic-relay-go/asceticrelay/session"
)

type rows struct {
	pgx.Rows
}

func (r rows) Close() error {
	r.Rows.Close()
	return r.Rows.Err()
}

type row struct {
	pgx.Row
	err error
}

func (r *row) Scan(dest ...any) error {
	err := r.Row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		err = session.ErrNoRows
	}
	if r.err == nil {
		r.err = err
	}
	return err
}

func (r *row) Err() error {
	return r.err
}
