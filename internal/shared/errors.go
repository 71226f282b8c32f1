package shared

import "errors"

var (
	// ErrLockNotObtained indicates another worker holds the critical section.
	ErrLockNotObtained = errors.New("lock held by another request")
)
