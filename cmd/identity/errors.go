package identity

import (
	"context"
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// - Kind MUST be one of the sentinel kinds when applicable (ErrInvalidInput, ErrInvalidToken, ...).
// - Msg may include human-readable context; do not include secrets.
type OpError struct {
	Op   string
	Kind error
	Msg  string
}

func (e OpError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, e.Kind, e.Msg)
}

func (e OpError) Unwrap() error { return e.Kind }

// ConflictError reports a uniqueness/constraint conflict for a specific logical field.
// Field should be a stable logical name: "username", "email", "node_id", ...
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrConflict)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrConflict, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing referenced resource (e.g., FK violation) or missing row.
type NotFoundError struct {
	Op       string
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrNotFound)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrNotFound, e.Resource)
}

func (e NotFoundError) Unwrap() error { return ErrNotFound }

// UnexpectedError wraps an infrastructure failure (storage, hashing, entropy).
// It matches both ErrUnexpected and the underlying cause.
type UnexpectedError struct {
	Op  string
	Err error
}

func (e UnexpectedError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, ErrUnexpected)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e UnexpectedError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnexpected}
	}
	return []error{ErrUnexpected, e.Err}
}

// unexpected wraps err unless it already carries a domain kind or is a context error.
func unexpected(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomain(err) || IsUnexpected(err) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return UnexpectedError{Op: op, Err: err}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err represents ErrNotFound (including NotFoundError).
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }

// IsInvalidCredentials reports whether err represents ErrInvalidCredentials.
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }

// IsInvalidToken reports whether err represents ErrInvalidToken.
func IsInvalidToken(err error) bool { return errors.Is(err, ErrInvalidToken) }

// IsExpiredToken reports whether err represents ErrExpiredToken.
func IsExpiredToken(err error) bool { return errors.Is(err, ErrExpiredToken) }

// IsEmailNotVerified reports whether err represents ErrEmailNotVerified.
func IsEmailNotVerified(err error) bool { return errors.Is(err, ErrEmailNotVerified) }

// IsUnexpected reports whether err represents ErrUnexpected.
func IsUnexpected(err error) bool { return errors.Is(err, ErrUnexpected) }

// IsDomain reports whether err carries one of the client-facing kinds.
// The HTTP layer maps these to 400 and everything else to 500.
func IsDomain(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrExpiredToken),
		errors.Is(err, ErrEmailNotVerified):
		return true
	default:
		return false
	}
}
