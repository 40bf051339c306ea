// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Storage errors.
	ErrNotFound          = errors.New("not found")
	ErrDatabaseCorrupted = errors.New("database corrupted")
	ErrConflict          = errors.New("record changed concurrently")

	// Reconciliation errors.
	ErrPayerNotResolved    = errors.New("payer name could not be resolved")
	ErrSnapshotFetchFailed = errors.New("account snapshot fetch failed")
	ErrSettlementFailed    = errors.New("settlement action failed")
	ErrExtractionMalformed = errors.New("extraction returned malformed output")

	// Run supervision errors.
	ErrRunActive = errors.New("a run is already active")

	// Statement errors.
	ErrUnsupportedFormat = errors.New("unsupported statement format")
	ErrHeaderNotFound    = errors.New("statement header row not found")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// UserMessage returns the plain-text message suitable for a messaging
// channel. Internal error text is bounded to maxLen runes.
func UserMessage(err error, maxLen int) string {
	if err == nil {
		return ""
	}
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMessage
	}
	return Truncate(err.Error(), maxLen)
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrRateLimit) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}
