package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

func TestReservationExclusivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetBalance(21, itemWidget, 10)
	loc := inventory.Storage(21)

	_, err := f.svc.ReserveStock(ctx, 1, lines(itemWidget, 6), loc, 5)
	require.NoError(t, err)

	_, err = f.svc.ReserveStock(ctx, 2, lines(itemWidget, 6), loc, 5)
	var short *inventory.InsufficientAvailableStockError
	require.ErrorAs(t, err, &short)
	require.ErrorIs(t, err, inventory.ErrInsufficientAvailableStock)
	require.Equal(t, itemWidget, short.ItemID)
	require.Equal(t, int64(4), short.Available)
	require.Equal(t, int64(6), short.Requested)
	require.Equal(t, int64(6), short.Reserved)
	require.Contains(t, err.Error(), "item #42")

	_, err = f.svc.ReserveStock(ctx, 2, lines(itemWidget, 4), loc, 5)
	require.NoError(t, err)

	require.Equal(t, int64(10), f.reserved(t, itemWidget, loc))
	require.Zero(t, f.available(t, itemWidget, loc))
	require.Equal(t, int64(10), f.store.PieceCount(21, itemWidget), "reservations never touch the ledger")
}

func TestReserveIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetBalance(21, itemWidget, 10)
	f.store.SetBalance(21, itemBolt, 1)

	_, err := f.svc.ReserveStock(ctx, 7, lines(itemWidget, 5, itemBolt, 2), inventory.Storage(21), 5)
	require.ErrorIs(t, err, inventory.ErrInsufficientAvailableStock)
	require.Empty(t, f.store.Reservations())
}

func TestReserveCountsEarlierLinesOfSameCall(t *testing.T) {
	f := newFixture(t)
	f.store.SetBalance(21, itemWidget, 10)

	_, err := f.svc.ReserveStock(context.Background(), 7, lines(itemWidget, 6, itemWidget, 6), inventory.Storage(21), 5)
	require.ErrorIs(t, err, inventory.ErrInsufficientAvailableStock)
	require.Empty(t, f.store.Reservations())
}

func TestReservationsAreKeyedOnExactLocation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetBalance(11, itemWidget, 4)
	f.store.SetBalance(12, itemWidget, 6)

	_, err := f.svc.ReserveStock(ctx, 1, lines(itemWidget, 10), inventory.Branch(1), 5)
	require.NoError(t, err)

	require.Equal(t, int64(10), f.reserved(t, itemWidget, inventory.Branch(1)))
	require.Zero(t, f.available(t, itemWidget, inventory.Branch(1)))
	require.Zero(t, f.reserved(t, itemWidget, inventory.Storage(11)))
	require.Equal(t, int64(4), f.available(t, itemWidget, inventory.Storage(11)))
}

func TestReserveCreatesDefaultLocationForEmptyBranch(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ReserveStock(context.Background(), 1, lines(itemWidget, 1), inventory.Branch(3), 5)
	require.ErrorIs(t, err, inventory.ErrInsufficientAvailableStock)

	_, err = f.svc.ReserveStock(context.Background(), 1, lines(itemWidget, 1), inventory.Branch(404), 5)
	require.ErrorIs(t, err, inventory.ErrLocationNotFound)
}

func TestReleaseIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetBalance(21, itemWidget, 10)
	_, err := f.svc.ReserveStock(ctx, 1, lines(itemWidget, 3, itemBolt, 0), inventory.Storage(21), 5)
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)
	_, err = f.svc.ReserveStock(ctx, 1, lines(itemWidget, 3), inventory.Storage(21), 5)
	require.NoError(t, err)
	_, err = f.svc.ReserveStock(ctx, 2, lines(itemWidget, 2), inventory.Storage(21), 5)
	require.NoError(t, err)

	n, err := f.svc.ReleaseReservedStock(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	n, err = f.svc.ReleaseReservedStock(ctx, 1)
	require.NoError(t, err)
	require.Zero(t, n)

	require.Equal(t, int64(2), f.reserved(t, itemWidget, inventory.Storage(21)))
	require.Len(t, f.store.Reservations(), 1)
}

func TestExpiredReservationsAreIgnoredThenSwept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.store.SetBalance(21, itemWidget, 10)

	held, err := f.svc.ReserveStock(ctx, 1, lines(itemWidget, 8), inventory.Storage(21), 5)
	require.NoError(t, err)
	require.Len(t, held, 1)
	require.Equal(t, f.clock.Now().Add(inventory.DefaultReservationTTL), held[0].ExpiresAt)

	f.clock.Advance(23 * time.Hour)
	require.Equal(t, int64(2), f.available(t, itemWidget, inventory.Storage(21)))

	f.clock.Advance(time.Hour)
	require.Equal(t, int64(10), f.available(t, itemWidget, inventory.Storage(21)))
	require.Zero(t, f.reserved(t, itemWidget, inventory.Storage(21)))
	require.Len(t, f.store.Reservations(), 1, "expiry is lazy until swept")

	_, err = f.svc.ReserveStock(ctx, 2, lines(itemWidget, 1), inventory.Storage(21), 5)
	require.NoError(t, err)

	n, err := f.svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	require.Len(t, f.store.Reservations(), 1)
}

func TestReservationTTLIsConfigurable(t *testing.T) {
	m := inventory.NewReservationManager(2*time.Hour, nil)
	require.Equal(t, 2*time.Hour, m.TTL())
	require.Equal(t, inventory.DefaultReservationTTL, inventory.NewReservationManager(0, nil).TTL())
}
