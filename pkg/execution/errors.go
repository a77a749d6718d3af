package execution

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRoot is returned when running a plan without a root operation.
	ErrNoRoot = errors.New("execution plan has no root operation")

	// ErrMissingChild is returned by operations that need a child and have none.
	ErrMissingChild = errors.New("operation requires a child")
)

// QueryError is a user-facing failure. It aborts the current plan only; the
// graph and the process are left intact.
type QueryError struct {
	Op  string // operation that raised the error
	Msg string
	Err error // optional cause
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

func (e *QueryError) Unwrap() error { return e.Err }

func queryError(op, format string, args ...any) *QueryError {
	return &QueryError{Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IsQueryError reports whether err carries a QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
