package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/stockflow/internal/inventory"
	"github.com/odyssey-erp/stockflow/internal/inventory/inventorytest"
)

const (
	itemWidget = int64(42)
	itemBolt   = int64(7)
)

type fixture struct {
	store *inventorytest.Store
	clock *inventorytest.Clock
	svc   *inventory.Service
}

// newFixture seeds branch 1 (locations 11, 12), branch 2 (location 21) and
// branch 3 without any location.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := inventorytest.NewClock(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	store := inventorytest.NewStore(clock.Now)
	store.AddBranch(1, "Jakarta")
	store.AddBranch(2, "Bandung")
	store.AddBranch(3, "Surabaya")
	store.AddLocation(11, 1, "Jakarta North")
	store.AddLocation(12, 1, "Jakarta South")
	store.AddLocation(21, 2, "Bandung Main")
	store.AddItem(itemWidget, "Widget", 12)
	store.AddItem(itemBolt, "Bolt", 1)
	svc := inventory.NewService(store, nil, nil, inventory.ServiceConfig{Now: clock.Now}, nil)
	return &fixture{store: store, clock: clock, svc: svc}
}

func (f *fixture) tx(t *testing.T, fn func(context.Context, inventory.TxRepository) error) error {
	t.Helper()
	return f.store.WithTx(context.Background(), fn)
}

func (f *fixture) available(t *testing.T, itemID int64, ref inventory.LocationRef) int64 {
	t.Helper()
	n, err := f.svc.AvailableStock(context.Background(), itemID, ref)
	require.NoError(t, err)
	return n
}

func (f *fixture) reserved(t *testing.T, itemID int64, ref inventory.LocationRef) int64 {
	t.Helper()
	n, err := f.svc.ReservedStock(context.Background(), itemID, ref)
	require.NoError(t, err)
	return n
}

func lines(pairs ...int64) []inventory.LineItem {
	out := make([]inventory.LineItem, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, inventory.LineItem{ItemID: pairs[i], Quantity: pairs[i+1]})
	}
	return out
}
