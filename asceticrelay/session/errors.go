package session

import (
	"errors"
)

var (
	ErrNoRows           = errors.New("no rows in result set")
	ErrNotInTransaction = errors.New("session is not transactional")
)

// PostCommitError reports failures of TransactionCommitted observers.
// The transaction itself has been committed.
type PostCommitError struct {
	Err error
}

func (e *PostCommitError) Error() string {
	return "post-commit: " + e.Err.Error()
}

func (e *PostCommitError) Unwrap() error {
	return e.Err
}

// IsCommitted tells whether err was raised after a successful COMMIT.
func IsCommitted(err error) bool {
	var pce *PostCommitError
	return errors.As(err, &pce)
}
