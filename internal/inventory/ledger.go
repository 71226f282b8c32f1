package inventory

import (
	"context"
	"errors"
	"time"
)

// Ledger owns balances per (location, item) and appends the movement history.
type Ledger struct {
	now func() time.Time
}

// NewLedger constructs a Ledger. A nil clock falls back to time.Now in UTC.
func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Ledger{now: now}
}

// Delta is one signed change to a single balance.
type Delta struct {
	LocationID  int64
	ItemID      int64
	Change      int64
	Reference   Reference
	Description string
	ActorID     int64
}

// DeltaResult reports the balance before and after a delta and the record written for it.
type DeltaResult struct {
	Before int64
	After  int64
	Record MovementRecord
}

// Balance returns the piece count of item at ref, summed over a branch's locations.
// Missing balance rows count as zero.
func (l *Ledger) Balance(ctx context.Context, tx TxRepository, itemID int64, ref LocationRef) (int64, error) {
	locs, err := ResolveLocations(ctx, tx, ref, false)
	if err != nil {
		return 0, err
	}
	return tx.SumPieceCount(ctx, itemID, locationIDs(locs))
}

// EnsureRow creates a zero balance row when absent. Calling it again is a no-op.
func (l *Ledger) EnsureRow(ctx context.Context, tx TxRepository, itemID, locationID, defaultUnitCapacity int64) error {
	if defaultUnitCapacity <= 0 {
		defaultUnitCapacity = 1
	}
	return tx.EnsureBalance(ctx, Balance{LocationID: locationID, ItemID: itemID, CurrentPieceUnits: defaultUnitCapacity})
}

// ApplyDelta locks the balance row, applies the change and appends a movement record.
// A result below zero fails with *InsufficientStockError and nothing is written.
func (l *Ledger) ApplyDelta(ctx context.Context, tx TxRepository, d Delta) (DeltaResult, error) {
	if d.Change == 0 {
		return DeltaResult{}, ErrInvalidQuantity
	}
	if !d.Reference.valid() {
		return DeltaResult{}, ErrInvalidReference
	}
	balance, err := tx.GetBalanceForUpdate(ctx, d.LocationID, d.ItemID)
	if errors.Is(err, ErrBalanceNotFound) {
		if d.Change < 0 {
			return DeltaResult{}, &InsufficientStockError{ItemID: d.ItemID, Location: Storage(d.LocationID), Available: 0, Requested: -d.Change}
		}
		item, err := tx.GetItem(ctx, d.ItemID)
		if err != nil {
			return DeltaResult{}, err
		}
		if err := l.EnsureRow(ctx, tx, d.ItemID, d.LocationID, item.UnitCapacity); err != nil {
			return DeltaResult{}, err
		}
		balance, err = tx.GetBalanceForUpdate(ctx, d.LocationID, d.ItemID)
		if err != nil {
			return DeltaResult{}, err
		}
	} else if err != nil {
		return DeltaResult{}, err
	}

	before := balance.PieceCount
	after := before + d.Change
	if after < 0 {
		return DeltaResult{}, &InsufficientStockError{ItemID: d.ItemID, Location: Storage(d.LocationID), Available: before, Requested: -d.Change}
	}
	if balance.CurrentPieceUnits <= 0 {
		balance.CurrentPieceUnits = 1
	}
	balance.PieceCount = after
	balance.Quantity = after
	balance.TotalUnits = after * balance.CurrentPieceUnits
	if err := tx.UpdateBalance(ctx, balance); err != nil {
		return DeltaResult{}, err
	}

	rec := MovementRecord{
		LocationID:     d.LocationID,
		ItemID:         d.ItemID,
		QuantityBefore: before,
		QuantityAfter:  after,
		QuantityChange: d.Change,
		Reference:      d.Reference,
		Description:    d.Description,
		UserID:         d.ActorID,
		CreatedAt:      l.now(),
	}
	id, err := tx.InsertMovement(ctx, rec)
	if err != nil {
		return DeltaResult{}, err
	}
	rec.ID = id
	return DeltaResult{Before: before, After: after, Record: rec}, nil
}
