package model

import (
	"errors"
	"fmt"
)

// Error kinds are typed so callers can branch on them with errors.As.
// The propagation rules: validation and not-found errors are never retried
// and surface to the immediate caller; transient errors are retried locally
// and only surface after exhaustion; rate-limit and cost-cap errors degrade
// enrichment to a fallback instead of failing the pipeline.

// ValidationError indicates malformed input: a bad device token, a
// non-positive threshold, an oversized payload.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Reason
}

// NewValidationError creates a ValidationError with the given reason.
func NewValidationError(reason string) error {
	return &ValidationError{Reason: reason}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// NotFoundError indicates an operation referenced a registration or
// endpoint that does not exist.
type NotFoundError struct {
	Kind string
	Ref  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.Ref)
}

// NewNotFoundError creates a NotFoundError for the given kind and reference.
func NewNotFoundError(kind, ref string) error {
	return &NotFoundError{Kind: kind, Ref: ref}
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// TransientBackendError indicates a network failure, timeout, or 5xx from
// an external backend. Eligible for retry.
type TransientBackendError struct {
	Backend string
	Err     error
}

func (e *TransientBackendError) Error() string {
	return fmt.Sprintf("transient %s error: %v", e.Backend, e.Err)
}

func (e *TransientBackendError) Unwrap() error { return e.Err }

// NewTransientError wraps err as a transient failure of the named backend.
func NewTransientError(backend string, err error) error {
	return &TransientBackendError{Backend: backend, Err: err}
}

// IsTransient reports whether err is (or wraps) a TransientBackendError.
func IsTransient(err error) bool {
	var te *TransientBackendError
	return errors.As(err, &te)
}

// ErrRateLimitExceeded is returned when an enrichment call could not
// acquire a rate-limiter slot before the caller's deadline.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrCostCapExceeded is returned when the enrichment cost circuit breaker
// is open for the current billing period.
var ErrCostCapExceeded = errors.New("enrichment cost cap exceeded")
