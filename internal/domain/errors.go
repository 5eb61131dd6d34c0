package domain

import (
	"errors"
	"fmt"
)

// FailureCategory classifies a failure for retry decisions.
type FailureCategory string

const (
	// FailureTransient covers network errors, timeouts, throttling and upstream 5xx.
	FailureTransient FailureCategory = "TRANSIENT"
	// FailurePermanent covers bad requests and malformed payloads.
	FailurePermanent FailureCategory = "PERMANENT"
)

// FetchError wraps an acquisition failure with its category.
type FetchError struct {
	Category   FailureCategory
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s fetch failure (status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s fetch failure: %v", e.Category, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable failure.
func Transient(err error) error {
	return &FetchError{Category: FailureTransient, Err: err}
}

// Permanent wraps err as a non-retryable failure.
func Permanent(err error) error {
	return &FetchError{Category: FailurePermanent, Err: err}
}

// IsTransient reports whether err, or anything it wraps, is a transient FetchError.
// Unclassified errors are treated as permanent.
func IsTransient(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Category == FailureTransient
	}
	return false
}
