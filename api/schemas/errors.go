package schemas

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared across the engine, store and API layers.
var (
	// ErrNotFound indicates the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrValidation is matched by every *ValidationError.
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates the operation lost against the current state.
	ErrConflict = errors.New("state conflict")

	// ErrAlreadyCompleted indicates the run is already in its terminal state.
	ErrAlreadyCompleted = fmt.Errorf("run already completed: %w", ErrConflict)

	// ErrAlreadyResolved indicates the escalation was resolved earlier.
	ErrAlreadyResolved = fmt.Errorf("escalation already resolved: %w", ErrConflict)

	// ErrInvalidTransition indicates a status change the state machine does not allow.
	ErrInvalidTransition = fmt.Errorf("invalid state transition: %w", ErrConflict)

	// ErrUnavailable indicates a dependency failure the caller may retry.
	ErrUnavailable = errors.New("dependency unavailable")

	// ErrRateLimited indicates an on-demand request was throttled.
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError rejects input before anything is written.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed: %s", e.Reason)
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsRetryable reports whether err is a dependency failure worth retrying.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded)
}
