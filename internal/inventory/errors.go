package inventory

import (
	"errors"
	"fmt"
)

var (
	// ErrInsufficientStock signals a deduction larger than the physical balance.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInsufficientAvailableStock signals a hold larger than ledger minus active reservations.
	ErrInsufficientAvailableStock = errors.New("inventory: insufficient available stock")
	// ErrBalanceNotFound indicates missing balance row.
	ErrBalanceNotFound = errors.New("inventory balance not found")
	// ErrLocationNotFound indicates an unknown storage location or branch.
	ErrLocationNotFound = errors.New("inventory: location not found")
	// ErrBranchNotFound indicates an unknown branch.
	ErrBranchNotFound = errors.New("inventory: branch not found")
	// ErrItemNotFound indicates an unknown item.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrInvalidQuantity indicates invalid qty.
	ErrInvalidQuantity = errors.New("inventory: quantity must be greater than zero")
	// ErrInvalidLocation indicates a malformed location reference.
	ErrInvalidLocation = errors.New("inventory: invalid location reference")
	// ErrSameLocation indicates source and destination are identical.
	ErrSameLocation = errors.New("inventory: source and destination must differ")
	// ErrInvalidReference indicates a missing reference kind or id.
	ErrInvalidReference = errors.New("inventory: reference kind and id required")
	// ErrInvalidFilter indicates a malformed history query.
	ErrInvalidFilter = errors.New("inventory: invalid history filter")
)

// InsufficientStockError carries the diagnostics of a failed deduction.
type InsufficientStockError struct {
	ItemID    int64
	Location  LocationRef
	Available int64
	Requested int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item #%d at %s: available %d, requested %d",
		e.ItemID, e.Location, e.Available, e.Requested)
}

// Is makes errors.Is(err, ErrInsufficientStock) match.
func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// InsufficientAvailableStockError carries the diagnostics of a failed reservation.
type InsufficientAvailableStockError struct {
	ItemID    int64
	Location  LocationRef
	Available int64
	Requested int64
	Reserved  int64
}

func (e *InsufficientAvailableStockError) Error() string {
	return fmt.Sprintf("insufficient available stock for item #%d at %s: available %d, requested %d (%d already reserved)",
		e.ItemID, e.Location, e.Available, e.Requested, e.Reserved)
}

// Is makes errors.Is(err, ErrInsufficientAvailableStock) match.
func (e *InsufficientAvailableStockError) Is(target error) bool {
	return target == ErrInsufficientAvailableStock
}
