package sqlutil

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// SQLSTATE codes that mean the transaction lost a race and can be replayed.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Run executes fn inside a transaction, committing on success and rolling
// back on error.
func Run[T any](ctx context.Context, db *sql.DB, newQueries func(*sql.Tx) *T, fn func(q *T) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	q := newQueries(tx)
	if err := fn(q); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// RunWithRetry is Run, replayed up to attempts times while the database
// reports a serialization failure or deadlock. fn must be safe to repeat.
func RunWithRetry[T any](ctx context.Context, db *sql.DB, attempts int, newQueries func(*sql.Tx) *T, fn func(q *T) error) error {
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = Run(ctx, db, newQueries, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		log.Warn().
			Err(err).
			Int("attempt", attempt).
			Msg("transaction conflict, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 10 * time.Millisecond):
		}
	}
	return err
}

// IsRetryable reports whether err is a transient transaction conflict.
func IsRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return true
	}
	return false
}
