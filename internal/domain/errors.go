package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when the backend no longer knows the job id
	ErrJobNotFound = errors.New("job not found")

	// ErrInsufficientBalance is returned when the user lacks credits for the result
	ErrInsufficientBalance = errors.New("insufficient credits")

	// ErrSessionExpired is returned on 401; callers must re-authenticate
	ErrSessionExpired = errors.New("session expired")

	// ErrTimedOut is returned when polling gives up after repeated transport failures
	ErrTimedOut = errors.New("timed out")

	// ErrSubmitFailed is the generic message shown when a job could not be submitted
	ErrSubmitFailed = errors.New("failed to submit job")
)

// TransportError wraps network-level failures that are safe to retry
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new transport error for the given operation
func NewTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

// IsTransient reports whether err should be retried on the next poll tick
func IsTransient(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// JobFailedError carries the backend's message for a job that ended in error
type JobFailedError struct {
	Message string
}

func (e *JobFailedError) Error() string {
	if e.Message == "" {
		return "job failed"
	}
	return e.Message
}

// ValidationError is returned before any network call when input is unusable
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NewValidationError creates a new validation error
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
