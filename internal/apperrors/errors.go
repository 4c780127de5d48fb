// Package apperrors defines the error taxonomy shared by every layer of the
// forum backend. Services return these (possibly wrapped) and the HTTP layer
// maps them to status codes.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when there is no session.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a session exists but lacks the role or
	// category access. It matches ErrUnauthorized under errors.Is.
	ErrForbidden = fmt.Errorf("%w: insufficient permissions", ErrUnauthorized)
	// ErrConflict is returned on a uniqueness violation, such as a duplicate
	// vote for the same (user, complaint) pair.
	ErrConflict = errors.New("conflict")
	// ErrTransient wraps storage and network failures. Nothing is retried.
	ErrTransient = errors.New("temporary storage failure")
	// ErrNotFound is returned when a referenced row does not exist.
	ErrNotFound = errors.New("not found")
)

// ValidationError reports a rejected input field. Nothing is mutated when it
// is returned.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// Invalid builds a *ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Transient marks err as a temporary storage failure for operation op.
// A nil err stays nil.
func Transient(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransient, err)
}
