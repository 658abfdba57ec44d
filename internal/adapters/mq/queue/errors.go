package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull   = errors.New("verification queue full")
	ErrClosed = errors.New("verification queue closed")
)
