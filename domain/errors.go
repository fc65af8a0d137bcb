package domain

import "errors"

// Error taxonomy shared by services and handlers. NotFound and
// InvalidState surface to the caller unretried; ConflictExhausted is
// returned only after bounded internal retries on a concurrent
// duplicate insert.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidState      = errors.New("invalid state")
	ErrConflictExhausted = errors.New("assignment conflict retries exhausted")
)
