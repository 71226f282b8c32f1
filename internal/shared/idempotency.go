package shared

import (
	"context"
	"errors"
	"time"

	"github.com/odyssey-erp/stockflow/internal/platform/db"
)

// IdempotencyStore persists processed keys.
type IdempotencyStore struct {
	db DBTX
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(db DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: db}
}

// ErrIdempotencyConflict indicates a duplicate key.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// CheckAndInsert ensures key uniqueness per module.
func (s *IdempotencyStore) CheckAndInsert(ctx context.Context, key, module string) error {
	if s == nil {
		return errors.New("idempotency store not initialised")
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	if module == "" {
		return errors.New("idempotency module required")
	}
	_, err := s.db.Exec(ctx, `INSERT INTO idempotency_keys (key, module, created_at) VALUES ($1, $2, $3)`, key, module, time.Now())
	if err != nil {
		if db.IsUniqueViolation(err) {
			return ErrIdempotencyConflict
		}
		return err
	}
	return nil
}

// Delete removes a key, typically used to roll back failed processing.
func (s *IdempotencyStore) Delete(ctx context.Context, key string) error {
	if s == nil {
		return nil
	}
	if key == "" {
		return errors.New("idempotency key required")
	}
	_, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE key=$1`, key)
	return err
}
