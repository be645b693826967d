package store

import "errors"

var (
	ErrConflict = errors.New("conflict")
	ErrNotFound = errors.New("not found")
	// ErrStale is returned when a compare-and-swap update finds the row no
	// longer in the expected state.
	ErrStale = errors.New("stale state")
)
