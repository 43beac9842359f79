package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals a caller-fixable input defect (draft fund, malformed weights).
	ErrValidation = errors.New("validation failed")
	// ErrDataQuality signals a single unusable LP record. Never aborts a run.
	ErrDataQuality = errors.New("data quality defect")
	// ErrDependencyUnavailable signals an embedding or narrative provider outage.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrCircuitOpen signals a short-circuited provider call.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrTimeout signals an exceeded deadline. No partial results are published.
	ErrTimeout = errors.New("timeout")
	// ErrConflict signals an optimistic version mismatch.
	ErrConflict = errors.New("version conflict")
	// ErrRateLimited signals a rejected submission.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrNotReady signals a job that has not completed (yet).
	ErrNotReady = errors.New("job not completed")
	// ErrGenerationFailed signals a narrative generation failure. Recoverable.
	ErrGenerationFailed = errors.New("explanation generation failed")
	// ErrInvalidTransition signals an illegal job state change.
	ErrInvalidTransition = errors.New("invalid job state transition")
	// ErrEmbeddingProviderError signals a failed or malformed embedding response.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)

// ConflictError wraps ErrConflict with the currently stored version.
type ConflictError struct {
	CurrentVersion int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: current version is %d", ErrConflict.Error(), e.CurrentVersion)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NewConflict creates a version conflict error.
func NewConflict(currentVersion int) error {
	return &ConflictError{CurrentVersion: currentVersion}
}

// RateLimitError wraps ErrRateLimited with a retry-after hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: retry after %s", ErrRateLimited.Error(), e.RetryAfter.Round(time.Millisecond))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// NewRateLimited creates a rate limit error.
func NewRateLimited(retryAfter time.Duration) error {
	return &RateLimitError{RetryAfter: retryAfter}
}

// Validationf formats a validation error wrapping ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
