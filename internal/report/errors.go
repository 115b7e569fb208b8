// File path: internal/report/errors.go
package report

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the referenced program, period, or submission
	// does not exist (or is soft-deleted).
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied indicates the actor's effective role does not
	// cover the attempted operation.
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError reports a missing or malformed input field. It is returned
// as a structured value at the operation boundary, never raised as a panic.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Invalid constructs a ValidationError for the named field.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
