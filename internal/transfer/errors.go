package transfer

import (
	"errors"
	"fmt"

	"github.com/odyssey-erp/stockflow/internal/inventory"
)

var (
	// ErrNotFound indicates an unknown transfer.
	ErrNotFound = errors.New("transfer: not found")
	// ErrInvalidRequest indicates a malformed or unresolvable transfer request.
	ErrInvalidRequest = errors.New("transfer: invalid request")
	// ErrUnauthorized indicates the actor has no rights on the location involved.
	ErrUnauthorized = errors.New("transfer: unauthorized action")
	// ErrInvalidTransition indicates the action is not allowed from the current status.
	ErrInvalidTransition = errors.New("transfer: invalid state transition")
)

// InvalidRequestError explains why a request was rejected before any mutation.
type InvalidRequestError struct {
	Reason string
	Err    error
}

func (e *InvalidRequestError) Error() string {
	return "invalid transfer request: " + e.Reason
}

// Is makes errors.Is(err, ErrInvalidRequest) match.
func (e *InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }

func (e *InvalidRequestError) Unwrap() error { return e.Err }

func invalid(err error, format string, args ...any) error {
	return &InvalidRequestError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// UnauthorizedError names the actor and location an action was refused for.
type UnauthorizedError struct {
	ActorID  int64
	Location inventory.LocationRef
	Action   string
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("user #%d may not %s transfers for %s", e.ActorID, e.Action, e.Location)
}

// Is makes errors.Is(err, ErrUnauthorized) match.
func (e *UnauthorizedError) Is(target error) bool { return target == ErrUnauthorized }

// InvalidTransitionError names the refused action and the status it was attempted from.
type InvalidTransitionError struct {
	From   Status
	Action Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a transfer that is %s", e.Action, e.From)
}

// Is makes errors.Is(err, ErrInvalidTransition) match.
func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }
