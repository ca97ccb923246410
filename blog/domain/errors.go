package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no record matches the requested id, slug or key.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is returned when an operation requires an authenticated principal.
	ErrUnauthorized = errors.New("unauthorized")
)

// ValidationError reports invalid caller input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a ValidationError for the given field.
func NewValidationError(field, format string, args ...any) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
	}
}

// InternalError wraps an unexpected failure of the backing store.
// Its message is meant for logs, never for API responses.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("failed to %s: %v", e.Op, e.Err)
}

func (e *InternalError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is, or wraps, a ValidationError.
func IsValidation(err error) bool {
	var vErr *ValidationError
	return errors.As(err, &vErr)
}
