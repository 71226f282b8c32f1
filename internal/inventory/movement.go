package inventory

import (
	"context"
	"fmt"
)

// MovementEngine moves physical stock between locations. It is the only writer
// of negative deltas outside manual adjustments.
type MovementEngine struct {
	ledger *Ledger
}

// NewMovementEngine constructs a MovementEngine over ledger.
func NewMovementEngine(ledger *Ledger) *MovementEngine {
	return &MovementEngine{ledger: ledger}
}

// ExecuteTx applies every line of in inside tx and returns the records written,
// deductions before additions per line. Any error means the caller must roll tx back.
func (e *MovementEngine) ExecuteTx(ctx context.Context, tx TxRepository, in MovementInput) ([]MovementRecord, error) {
	if err := validateMovement(in); err != nil {
		return nil, err
	}
	srcLocs, err := ResolveLocations(ctx, tx, in.Source, true)
	if err != nil {
		return nil, err
	}
	dstLocs, err := ResolveLocations(ctx, tx, in.Destination, true)
	if err != nil {
		return nil, err
	}

	var records []MovementRecord
	for _, line := range in.Lines {
		out, err := e.deduct(ctx, tx, in, line, srcLocs)
		if err != nil {
			return nil, err
		}
		records = append(records, out...)
		rec, err := e.add(ctx, tx, in, line, dstLocs)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func validateMovement(in MovementInput) error {
	if len(in.Lines) == 0 {
		return ErrInvalidQuantity
	}
	for _, line := range in.Lines {
		if line.ItemID <= 0 {
			return fmt.Errorf("%w: #%d", ErrItemNotFound, line.ItemID)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("%w: item #%d", ErrInvalidQuantity, line.ItemID)
		}
	}
	if err := in.Source.Validate(); err != nil {
		return err
	}
	if err := in.Destination.Validate(); err != nil {
		return err
	}
	if in.Source == in.Destination {
		return ErrSameLocation
	}
	if !in.Reference.valid() {
		return ErrInvalidReference
	}
	return nil
}

// deduct removes line.Quantity from the source. A branch source is drained
// largest balance first, ties broken by location id, one record per location drawn from.
func (e *MovementEngine) deduct(ctx context.Context, tx TxRepository, in MovementInput, line LineItem, locs []Location) ([]MovementRecord, error) {
	desc := describe("out to", in.Destination, in.Note)
	if !in.Source.IsBranch() {
		res, err := e.ledger.ApplyDelta(ctx, tx, Delta{
			LocationID:  locs[0].ID,
			ItemID:      line.ItemID,
			Change:      -line.Quantity,
			Reference:   in.Reference,
			Description: desc,
			ActorID:     in.ActorID,
		})
		if err != nil {
			return nil, err
		}
		return []MovementRecord{res.Record}, nil
	}

	balances, err := tx.LockBalances(ctx, line.ItemID, locationIDs(locs))
	if err != nil {
		return nil, err
	}
	var total int64
	for _, b := range balances {
		total += b.PieceCount
	}
	if total < line.Quantity {
		return nil, &InsufficientStockError{ItemID: line.ItemID, Location: in.Source, Available: total, Requested: line.Quantity}
	}
	remaining := line.Quantity
	var records []MovementRecord
	for _, b := range balances {
		if remaining == 0 {
			break
		}
		if b.PieceCount <= 0 {
			continue
		}
		take := min(remaining, b.PieceCount)
		res, err := e.ledger.ApplyDelta(ctx, tx, Delta{
			LocationID:  b.LocationID,
			ItemID:      line.ItemID,
			Change:      -take,
			Reference:   in.Reference,
			Description: desc,
			ActorID:     in.ActorID,
		})
		if err != nil {
			return nil, err
		}
		records = append(records, res.Record)
		remaining -= take
	}
	return records, nil
}

// add credits line.Quantity at the destination. A branch destination prefers a
// location already stocking the item, otherwise its first location.
func (e *MovementEngine) add(ctx context.Context, tx TxRepository, in MovementInput, line LineItem, locs []Location) (MovementRecord, error) {
	target := locs[0].ID
	if in.Destination.IsBranch() && len(locs) > 1 {
		balances, err := tx.LockBalances(ctx, line.ItemID, locationIDs(locs))
		if err != nil {
			return MovementRecord{}, err
		}
		for _, b := range balances {
			if b.PieceCount > 0 {
				target = b.LocationID
				break
			}
		}
	}
	res, err := e.ledger.ApplyDelta(ctx, tx, Delta{
		LocationID:  target,
		ItemID:      line.ItemID,
		Change:      line.Quantity,
		Reference:   in.Reference,
		Description: describe("in from", in.Source, in.Note),
		ActorID:     in.ActorID,
	})
	if err != nil {
		return MovementRecord{}, err
	}
	return res.Record, nil
}

func describe(direction string, other LocationRef, note string) string {
	desc := fmt.Sprintf("Transfer %s %s", direction, other)
	if note != "" {
		desc += ": " + note
	}
	return desc
}
