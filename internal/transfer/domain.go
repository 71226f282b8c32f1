package transfer

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

// Status is the lifecycle state of a transfer.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusInTransit Status = "in_transit"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further action is accepted.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusCancelled
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusInTransit, StatusCompleted, StatusRejected, StatusCancelled:
		return true
	}
	return false
}

// Action drives a transition.
type Action string

const (
	ActionApprove       Action = "approve"
	ActionReject        Action = "reject"
	ActionMarkInTransit Action = "mark_in_transit"
	ActionComplete      Action = "complete"
	ActionCancel        Action = "cancel"
)

// Transfer moves stock from one location reference to another.
type Transfer struct {
	ID            int64                 `json:"id"`
	ReferenceCode string                `json:"reference_code"`
	Source        inventory.LocationRef `json:"source"`
	Destination   inventory.LocationRef `json:"destination"`
	Status        Status                `json:"status"`
	InitiatedBy   int64                 `json:"initiated_by"`
	ApprovedBy    int64                 `json:"approved_by,omitempty"`
	ApprovedAt    *time.Time            `json:"approved_at,omitempty"`
	InitiatedAt   time.Time             `json:"date_initiated"`
	Note          string                `json:"note,omitempty"`
	Lines         []LineItem            `json:"lines"`
}

// LineItem is one item of a transfer with the unit cost captured at creation.
type LineItem struct {
	ID         int64           `json:"id"`
	TransferID int64           `json:"transfer_id"`
	ItemID     int64           `json:"item_id"`
	Quantity   int64           `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// Value is quantity times unit cost.
func (l LineItem) Value() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(l.Quantity))
}

// TotalValue sums the line values.
func (t Transfer) TotalValue() decimal.Decimal {
	total := decimal.Zero
	for _, l := range t.Lines {
		total = total.Add(l.Value())
	}
	return total
}

func (t Transfer) inventoryLines() []inventory.LineItem {
	out := make([]inventory.LineItem, 0, len(t.Lines))
	for _, l := range t.Lines {
		out = append(out, inventory.LineItem{ItemID: l.ItemID, Quantity: l.Quantity})
	}
	return out
}

func (t Transfer) reference() inventory.Reference {
	return inventory.Reference{Kind: inventory.RefTransfer, ID: t.ID}
}

// CreateInput describes a transfer request.
type CreateInput struct {
	Source      inventory.LocationRef
	Destination inventory.LocationRef
	Lines       []LineInput `validate:"required,min=1,dive"`
	ActorID     int64       `validate:"required,gt=0"`
	Note        string      `validate:"max=1000"`
}

// LineInput is one requested item quantity.
type LineInput struct {
	ItemID   int64 `json:"item_id" validate:"required,gt=0"`
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

// ListFilter narrows transfer listings.
type ListFilter struct {
	Status      Status
	Source      *inventory.LocationRef
	Destination *inventory.LocationRef
	Page        int
	PerPage     int
}
