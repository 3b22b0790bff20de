package core

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by the workflow wraps exactly one of
// these so callers can branch with errors.Is.
var (
	ErrValidation       = errors.New("validation error")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrInvalidState     = errors.New("invalid state")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
)

// Conflict specializations.
var (
	ErrConcurrentUpdate = fmt.Errorf("%w: concurrent update", ErrConflict)
	ErrAlreadyExists    = fmt.Errorf("%w: already exists", ErrConflict)
)

// Validation specializations.
var (
	ErrDuplicateValue      = fmt.Errorf("%w: duplicate denomination value", ErrValidation)
	ErrInvalidValue        = fmt.Errorf("%w: denomination value must be positive", ErrValidation)
	ErrNegativeCount       = fmt.Errorf("%w: count must not be negative", ErrValidation)
	ErrInvalidAttendance   = fmt.Errorf("%w: attendance must not be negative", ErrValidation)
	ErrUnknownDenomination = fmt.Errorf("%w: unknown denomination value", ErrValidation)
	ErrEmptyFund           = fmt.Errorf("%w: empty fund name", ErrValidation)
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrValidation
}

// NewValidationError builds a ValidationError wrapping ErrValidation.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// TransitionError reports a transition attempted from a state that forbids it.
type TransitionError struct {
	Op   string
	From Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s record", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidState }

// AuthorizationError reports an actor whose role lacks a capability.
type AuthorizationError struct {
	Op   string
	Role Role
}

func (e *AuthorizationError) Error() string {
	if e.Role == "" {
		return fmt.Sprintf("%s requires a role", e.Op)
	}
	return fmt.Sprintf("role %q may not %s", e.Role, e.Op)
}

func (e *AuthorizationError) Unwrap() error { return ErrNotAuthorized }

// Unavailable wraps a backend failure as ErrStoreUnavailable while keeping
// the cause in the chain.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
