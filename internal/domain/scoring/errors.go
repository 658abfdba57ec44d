package scoring

import "errors"

// Sentinel errors returned by threshold table validation.
var (
	ErrInvalidTable  = errors.New("invalid threshold table")
	ErrEmptyTable    = errors.New("threshold table is empty")
	ErrTableOrdering = errors.New("threshold minimums must be strictly descending")
	ErrMissingFloor  = errors.New("threshold table must end with a zero floor")
	ErrEmptyLabel    = errors.New("threshold label must not be empty")
)
