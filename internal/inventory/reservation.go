package inventory

import (
	"context"
	"time"
)

// DefaultReservationTTL is how long a hold counts against availability.
const DefaultReservationTTL = 24 * time.Hour

// ReservationManager tracks provisional holds that reduce availability without touching the ledger.
type ReservationManager struct {
	ttl time.Duration
	now func() time.Time
}

// NewReservationManager constructs a ReservationManager.
func NewReservationManager(ttl time.Duration, now func() time.Time) *ReservationManager {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ReservationManager{ttl: ttl, now: now}
}

// TTL returns the hold duration applied to new reservations.
func (m *ReservationManager) TTL() time.Duration { return m.ttl }

// Reserved sums active holds for item at exactly ref.
func (m *ReservationManager) Reserved(ctx context.Context, tx TxRepository, itemID int64, ref LocationRef) (int64, error) {
	if err := ref.Validate(); err != nil {
		return 0, err
	}
	return tx.SumActiveReservations(ctx, itemID, ref, m.now())
}

// Available is the ledger total under ref minus active holds at ref.
func (m *ReservationManager) Available(ctx context.Context, tx TxRepository, itemID int64, ref LocationRef) (int64, error) {
	locs, err := ResolveLocations(ctx, tx, ref, false)
	if err != nil {
		return 0, err
	}
	total, err := tx.SumPieceCount(ctx, itemID, locationIDs(locs))
	if err != nil {
		return 0, err
	}
	reserved, err := m.Reserved(ctx, tx, itemID, ref)
	if err != nil {
		return 0, err
	}
	return total - reserved, nil
}

// Reserve places one hold per line. Balance rows under ref are write-locked
// before availability is computed, so a concurrent hold on the same rows either
// waits or fails with a serialization error the transaction runner retries. Callers run it inside
// one transaction; any failure leaves no hold behind once that transaction rolls back.
func (m *ReservationManager) Reserve(ctx context.Context, tx TxRepository, in ReserveInput) ([]Reservation, error) {
	if !in.Reference.valid() {
		return nil, ErrInvalidReference
	}
	if len(in.Lines) == 0 {
		return nil, ErrInvalidQuantity
	}
	locs, err := ResolveLocations(ctx, tx, in.Location, true)
	if err != nil {
		return nil, err
	}
	ids := locationIDs(locs)
	now := m.now()
	out := make([]Reservation, 0, len(in.Lines))
	for _, line := range in.Lines {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
		balances, err := tx.LockBalances(ctx, line.ItemID, ids)
		if err != nil {
			return nil, err
		}
		var total int64
		for _, b := range balances {
			total += b.PieceCount
		}
		reserved, err := tx.SumActiveReservations(ctx, line.ItemID, in.Location, now)
		if err != nil {
			return nil, err
		}
		// earlier lines of this call for the same item are already inserted and counted in reserved
		available := total - reserved
		if line.Quantity > available {
			return nil, &InsufficientAvailableStockError{
				ItemID:    line.ItemID,
				Location:  in.Location,
				Available: available,
				Requested: line.Quantity,
				Reserved:  reserved,
			}
		}
		res := Reservation{
			ItemID:    line.ItemID,
			Location:  in.Location,
			Quantity:  line.Quantity,
			Reference: in.Reference,
			ExpiresAt: now.Add(m.ttl),
			CreatedBy: in.ActorID,
			CreatedAt: now,
		}
		id, err := tx.InsertReservation(ctx, res)
		if err != nil {
			return nil, err
		}
		res.ID = id
		out = append(out, res)
	}
	return out, nil
}

// Release deletes every hold tagged with ref. Releasing twice is a no-op.
func (m *ReservationManager) Release(ctx context.Context, tx TxRepository, ref Reference) (int64, error) {
	if !ref.valid() {
		return 0, ErrInvalidReference
	}
	return tx.DeleteReservations(ctx, ref)
}

// SweepExpired physically deletes holds whose expiry has passed.
func (m *ReservationManager) SweepExpired(ctx context.Context, tx TxRepository) (int64, error) {
	return tx.DeleteExpiredReservations(ctx, m.now())
}
