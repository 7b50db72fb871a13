package model

import (
	"errors"
	"fmt"
)

var (
	// Session related errors
	ErrNoSession          = errors.New("no active session")
	ErrInFlight           = errors.New("request already in flight")
	ErrFirstAccessPending = errors.New("password change required")
	ErrMalformedRecord    = errors.New("malformed stored session")
	ErrPartialSession     = errors.New("partial stored session")

	// Upstream auth service errors
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrUpstreamUnavailable = errors.New("auth service unavailable")
	ErrUpstreamRejected    = errors.New("auth service rejected request")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)

type ValidationReason string

const (
	ReasonRequired ValidationReason = "required"
	ReasonMismatch ValidationReason = "mismatch"
	ReasonTooShort ValidationReason = "tooShort"
)

// ValidationError is raised before any network call is made.
type ValidationError struct {
	Field  string
	Reason ValidationReason
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s (%s)", e.Reason, e.Field)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// RestoreError describes why a stored session was discarded at startup. It is
// logged and never surfaced to the operator.
type RestoreError struct {
	Key string
	Err error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore %q: %v", e.Key, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned by a failed login exchange. Status is zero
// when the auth service could not be reached.
type AuthenticationError struct {
	Status int
	Err    error
}

func (e *AuthenticationError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("authentication failed: %v", e.Err)
	}
	return fmt.Sprintf("authentication failed (status %d): %v", e.Status, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// PasswordChangeError is returned when the change-password exchange fails.
type PasswordChangeError struct {
	Status int
	Err    error
}

func (e *PasswordChangeError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("password change failed: %v", e.Err)
	}
	return fmt.Sprintf("password change failed (status %d): %v", e.Status, e.Err)
}

func (e *PasswordChangeError) Unwrap() error {
	return e.Err
}
