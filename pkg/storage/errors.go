package storage

import "errors"

// Storage errors. Callers compare with errors.Is.
var (
	// ErrNotFound is returned when a node, edge, label or relation type does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidID is returned for ids outside the graph's allocated range.
	ErrInvalidID = errors.New("invalid id")

	// ErrInvalidData is returned when a required argument is missing or malformed.
	ErrInvalidData = errors.New("invalid data")

	// ErrAlreadyExists is returned when restoring an entity over a live one.
	ErrAlreadyExists = errors.New("already exists")

	// ErrDimensionMismatch is returned when an iterator range is empty or falls
	// outside the matrix it is attached to.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIteratorExhausted signals the end of the iterator's range.
	// It is a normal control signal, not a failure.
	ErrIteratorExhausted = errors.New("iterator exhausted")

	// ErrIteratorDetached is returned by Next on an iterator that was never
	// attached (or was detached). Callers usually treat it as "attach first".
	ErrIteratorDetached = errors.New("iterator not attached")
)
