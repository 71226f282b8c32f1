package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// Reference kinds used to tag movements and reservations.
const (
	RefTransfer   = "transfer"
	RefAdjustment = "adjustment"
	RefPurchase   = "purchase"
	RefSale       = "sale"
)

// Reference identifies the business document behind a movement or reservation.
type Reference struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

func (r Reference) valid() bool { return r.Kind != "" && r.ID != 0 }

// Location is a physical stock-holding unit owned by exactly one branch.
type Location struct {
	ID       int64  `json:"id"`
	BranchID int64  `json:"branch_id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
}

// Item is the read-only catalogue view the core needs.
type Item struct {
	ID           int64
	Name         string
	UnitCapacity int64
	UnitCost     decimal.Decimal
}

// Balance is the stock of one item at one storage location.
type Balance struct {
	LocationID        int64     `json:"location_id"`
	ItemID            int64     `json:"item_id"`
	PieceCount        int64     `json:"piece_count"`
	Quantity          int64     `json:"quantity"`
	TotalUnits        int64     `json:"total_units"`
	CurrentPieceUnits int64     `json:"current_piece_units"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// MovementRecord is an immutable stock history entry.
type MovementRecord struct {
	ID             int64     `json:"id"`
	LocationID     int64     `json:"location_id"`
	ItemID         int64     `json:"item_id"`
	QuantityBefore int64     `json:"quantity_before"`
	QuantityAfter  int64     `json:"quantity_after"`
	QuantityChange int64     `json:"quantity_change"`
	Reference      Reference `json:"reference"`
	Description    string    `json:"description"`
	UserID         int64     `json:"user_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Reservation holds stock against a location without touching the ledger.
type Reservation struct {
	ID        int64       `json:"id"`
	ItemID    int64       `json:"item_id"`
	Location  LocationRef `json:"location"`
	Quantity  int64       `json:"quantity"`
	Reference Reference   `json:"reference"`
	ExpiresAt time.Time   `json:"expires_at"`
	CreatedBy int64       `json:"created_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// Active reports whether the reservation still counts against availability at now.
func (r Reservation) Active(now time.Time) bool { return r.ExpiresAt.After(now) }

// LineItem is one requested quantity of an item.
type LineItem struct {
	ItemID   int64 `json:"item_id"`
	Quantity int64 `json:"quantity"`
}

// StockSummary aggregates ledger and reservation state for one item at a location.
type StockSummary struct {
	ItemID    int64       `json:"item_id"`
	Location  LocationRef `json:"location"`
	Total     int64       `json:"total"`
	Reserved  int64       `json:"reserved"`
	Available int64       `json:"available"`
}

// HistoryFilter narrows the movement history query.
type HistoryFilter struct {
	ItemID     int64
	LocationID int64
	From       time.Time
	To         time.Time
	Limit      int
}

// AdjustmentInput describes a direct change to one balance (purchase, sale, correction).
type AdjustmentInput struct {
	LocationID  int64  `validate:"required,gt=0"`
	ItemID      int64  `validate:"required,gt=0"`
	Change      int64  `validate:"required,ne=0"`
	RefKind     string `validate:"omitempty,oneof=adjustment purchase sale"`
	RefID       int64
	Description string `validate:"max=500"`
	ActorID     int64
}

// MovementInput describes a multi-line move between two locations.
type MovementInput struct {
	Lines       []LineItem
	Source      LocationRef
	Destination LocationRef
	Reference   Reference
	ActorID     int64
	Note        string
}

// ReserveInput describes holds to place for a reference.
type ReserveInput struct {
	Lines     []LineItem
	Location  LocationRef
	Reference Reference
	ActorID   int64
}
