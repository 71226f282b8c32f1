package inventory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

func move(t *testing.T, f *fixture, in inventory.MovementInput) ([]inventory.MovementRecord, error) {
	t.Helper()
	var records []inventory.MovementRecord
	err := f.tx(t, func(ctx context.Context, tx inventory.TxRepository) error {
		var err error
		records, err = f.svc.Movements().ExecuteTx(ctx, tx, in)
		return err
	})
	return records, err
}

func TestMovementConservesStock(t *testing.T) {
	f := newFixture(t)
	f.store.SetBalance(11, itemWidget, 10)
	ref := inventory.Reference{Kind: inventory.RefTransfer, ID: 1}

	records, err := move(t, f, inventory.MovementInput{
		Lines:       lines(itemWidget, 7),
		Source:      inventory.Storage(11),
		Destination: inventory.Storage(21),
		Reference:   ref,
		ActorID:     3,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(3), f.store.PieceCount(11, itemWidget))
	require.Equal(t, int64(7), f.store.PieceCount(21, itemWidget))

	var sum int64
	for _, rec := range f.store.Movements(ref) {
		sum += rec.QuantityChange
		require.Equal(t, int64(3), rec.UserID)
	}
	require.Zero(t, sum)
}

func TestBranchSourceDrainsLargestFirst(t *testing.T) {
	f := newFixture(t)
	f.store.SetBalance(11, itemWidget, 3)
	f.store.SetBalance(12, itemWidget, 5)

	records, err := move(t, f, inventory.MovementInput{
		Lines:       lines(itemWidget, 6),
		Source:      inventory.Branch(1),
		Destination: inventory.Branch(2),
		Reference:   inventory.Reference{Kind: inventory.RefTransfer, ID: 9},
	})
	require.NoError(t, err)
	require.Len(t, records, 3)

	require.Equal(t, int64(12), records[0].LocationID)
	require.Equal(t, int64(-5), records[0].QuantityChange)
	require.Equal(t, int64(11), records[1].LocationID)
	require.Equal(t, int64(-1), records[1].QuantityChange)
	require.Equal(t, int64(21), records[2].LocationID)
	require.Equal(t, int64(6), records[2].QuantityChange)

	require.Equal(t, int64(2), f.store.PieceCount(11, itemWidget))
	require.Zero(t, f.store.PieceCount(12, itemWidget))
}

func TestBranchSourceTiesBreakByLocationID(t *testing.T) {
	f := newFixture(t)
	f.store.SetBalance(12, itemWidget, 4)
	f.store.SetBalance(11, itemWidget, 4)

	records, err := move(t, f, inventory.MovementInput{
		Lines:       lines(itemWidget, 5),
		Source:      inventory.Branch(1),
		Destination: inventory.Storage(21),
		Reference:   inventory.Reference{Kind: inventory.RefTransfer, ID: 9},
	})
	require.NoError(t, err)
	require.Equal(t, int64(11), records[0].LocationID)
	require.Equal(t, int64(-4), records[0].QuantityChange)
	require.Equal(t, int64(12), records[1].LocationID)
	require.Equal(t, int64(-1), records[1].QuantityChange)
}

func TestMovementFailureLeavesNoPartialState(t *testing.T) {
	f := newFixture(t)
	f.store.SetBalance(11, itemWidget, 3)
	f.store.SetBalance(12, itemWidget, 2)
	f.store.SetBalance(11, itemBolt, 100)
	ref := inventory.Reference{Kind: inventory.RefTransfer, ID: 2}

	_, err := move(t, f, inventory.MovementInput{
		Lines:       lines(itemBolt, 50, itemWidget, 6),
		Source:      inventory.Branch(1),
		Destination: inventory.Branch(2),
		Reference:   ref,
	})
	var short *inventory.InsufficientStockError
	require.ErrorAs(t, err, &short)
	require.Equal(t, inventory.Branch(1), short.Location)
	require.Equal(t, int64(5), short.Available)
	require.Equal(t, int64(6), short.Requested)

	require.Equal(t, int64(100), f.store.PieceCount(11, itemBolt))
	require.Equal(t, int64(3), f.store.PieceCount(11, itemWidget))
	require.Zero(t, f.store.PieceCount(21, itemBolt))
	require.Empty(t, f.store.Movements(ref))
}

func TestBranchDestinationPrefersStockedLocation(t *testing.T) {
	f := newFixture(t)
	f.store.SetBalance(21, itemWidget, 10)
	f.store.SetBalance(12, itemWidget, 1)

	_, err := move(t, f, inventory.MovementInput{
		Lines:       lines(itemWidget, 4, itemBolt, 0),
		Source:      inventory.Storage(21),
		Destination: inventory.Branch(1),
		Reference:   inventory.Reference{Kind: inventory.RefTransfer, ID: 3},
	})
	require.ErrorIs(t, err, inventory.ErrInvalidQuantity)

	_, err = move(t, f, inventory.MovementInput{
		Lines:       lines(itemWidget, 4),
		Source:      inventory.Storage(21),
		Destination: inventory.Branch(1),
		Reference:   inventory.Reference{Kind: inventory.RefTransfer, ID: 3},
	})
	require.NoError(t, err)
	require.Equal(t, int64(5), f.store.PieceCount(12, itemWidget))
	_, ok := f.store.BalanceOf(11, itemWidget)
	require.False(t, ok)
}

func TestBranchDestinationWithoutStockUsesFirstLocation(t *testing.T) {
	f := newFixture(t)
	f.store.SetBalance(21, itemBolt, 10)

	_, err := move(t, f, inventory.MovementInput{
		Lines:       lines(itemBolt, 4),
		Source:      inventory.Branch(2),
		Destination: inventory.Branch(1),
		Reference:   inventory.Reference{Kind: inventory.RefTransfer, ID: 4},
	})
	require.NoError(t, err)
	require.Equal(t, int64(4), f.store.PieceCount(11, itemBolt))
}

func TestMovementCreatesDefaultLocationForEmptyBranch(t *testing.T) {
	f := newFixture(t)
	f.store.SetBalance(21, itemBolt, 10)

	_, err := move(t, f, inventory.MovementInput{
		Lines:       lines(itemBolt, 4),
		Source:      inventory.Storage(21),
		Destination: inventory.Branch(3),
		Reference:   inventory.Reference{Kind: inventory.RefTransfer, ID: 5},
	})
	require.NoError(t, err)
	locs := f.store.LocationsOf(3)
	require.Len(t, locs, 1)
	require.Equal(t, int64(4), f.store.PieceCount(locs[0].ID, itemBolt))
}

func TestMovementValidation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		in   inventory.MovementInput
		want error
	}{
		{
			name: "same location",
			in:   inventory.MovementInput{Lines: lines(itemBolt, 1), Source: inventory.Branch(1), Destination: inventory.Branch(1), Reference: inventory.Reference{Kind: inventory.RefTransfer, ID: 1}},
			want: inventory.ErrSameLocation,
		},
		{
			name: "no lines",
			in:   inventory.MovementInput{Source: inventory.Branch(1), Destination: inventory.Branch(2), Reference: inventory.Reference{Kind: inventory.RefTransfer, ID: 1}},
			want: inventory.ErrInvalidQuantity,
		},
		{
			name: "bad location kind",
			in:   inventory.MovementInput{Lines: lines(itemBolt, 1), Source: inventory.LocationRef{Kind: "shelf", ID: 1}, Destination: inventory.Branch(2), Reference: inventory.Reference{Kind: inventory.RefTransfer, ID: 1}},
			want: inventory.ErrInvalidLocation,
		},
		{
			name: "missing reference",
			in:   inventory.MovementInput{Lines: lines(itemBolt, 1), Source: inventory.Branch(1), Destination: inventory.Branch(2)},
			want: inventory.ErrInvalidReference,
		},
		{
			name: "unknown storage",
			in:   inventory.MovementInput{Lines: lines(itemBolt, 1), Source: inventory.Storage(77), Destination: inventory.Branch(2), Reference: inventory.Reference{Kind: inventory.RefTransfer, ID: 1}},
			want: inventory.ErrLocationNotFound,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := move(t, f, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
}
