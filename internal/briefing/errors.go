package briefing

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidDate    = errors.New("invalid date (expected YYYY-MM-DD)")
	ErrInvalidLimit   = errors.New("invalid limit (must be at least 1)")
	ErrNoSources      = errors.New("no sources requested")
	ErrNoUsableSource = errors.New("none of the requested sources is registered")
)

// ValidationError reports a request rejected before any I/O.
type ValidationError struct {
	Field string
	Value string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, value string, err error) error {
	return &ValidationError{Field: field, Value: value, Err: err}
}
