package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakeBeginner struct {
	txs []*fakeTx
}

func (b *fakeBeginner) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

func TestTxRunnerRetriesSerializationFailure(t *testing.T) {
	beginner := &fakeBeginner{}
	runner := NewTxRunner(beginner, 3)
	runner.backoff = 0

	calls := 0
	err := runner.WithTx(context.Background(), func(tx pgx.Tx) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("update: %w", &pgconn.PgError{Code: "40001"})
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
	require.Len(t, beginner.txs, 3)
	require.True(t, beginner.txs[0].rolledBack)
	require.True(t, beginner.txs[2].committed)
}

func TestTxRunnerDoesNotRetryDomainErrors(t *testing.T) {
	beginner := &fakeBeginner{}
	runner := NewTxRunner(beginner, 3)
	domainErr := errors.New("insufficient stock")

	calls := 0
	err := runner.WithTx(context.Background(), func(tx pgx.Tx) error {
		calls++
		return domainErr
	})
	require.ErrorIs(t, err, domainErr)
	require.Equal(t, 1, calls)
}

func TestTxRunnerGivesUp(t *testing.T) {
	beginner := &fakeBeginner{}
	runner := NewTxRunner(beginner, 2)
	runner.backoff = 0

	err := runner.WithTx(context.Background(), func(tx pgx.Tx) error {
		return &pgconn.PgError{Code: "40P01"}
	})
	require.Error(t, err)
	require.True(t, IsRetryable(err))
	require.Len(t, beginner.txs, 2)
}
