package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultMaxAttempts bounds how many times a transaction is replayed on transient failure.
const DefaultMaxAttempts = 3

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// Beginner is satisfied by *pgxpool.Pool and pgx.Conn.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxRunner executes callbacks inside RepeatableRead transactions and replays
// the whole transaction when Postgres reports a serialization failure or deadlock.
type TxRunner struct {
	db          Beginner
	maxAttempts int
	backoff     time.Duration
}

// NewTxRunner constructs a TxRunner. maxAttempts <= 0 falls back to DefaultMaxAttempts.
func NewTxRunner(db Beginner, maxAttempts int) *TxRunner {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &TxRunner{db: db, maxAttempts: maxAttempts, backoff: 25 * time.Millisecond}
}

// WithTx runs fn inside a transaction, retrying transient failures.
func (r *TxRunner) WithTx(ctx context.Context, fn func(pgx.Tx) error) error {
	if r == nil || r.db == nil {
		return errors.New("platform/db: tx runner not initialised")
	}
	var err error
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		err = WithTx(ctx, r.db, fn)
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == r.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * r.backoff):
		}
	}
	return fmt.Errorf("platform/db: giving up after %d attempts: %w", r.maxAttempts, err)
}

// WithTx executes a function within a transaction using the RepeatableRead isolation level.
func WithTx(ctx context.Context, db Beginner, fn func(pgx.Tx) error) error {
	tx, err := db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// IsRetryable reports whether err is a transient concurrency failure worth replaying.
func IsRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
}

// IsUniqueViolation reports whether err is a unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
