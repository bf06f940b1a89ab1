package crawler

import (
	"context"
	"errors"
	"net"
)

var (
	// ErrAlreadyKnown is returned by stores on a duplicate key.
	ErrAlreadyKnown = errors.New("already known")
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrProfileMissing is returned when no usable profile is stored.
	ErrProfileMissing = errors.New("user profile not set")
	// ErrChallengePage is returned when a fetch yields a bot-challenge page
	// instead of the requested content.
	ErrChallengePage = errors.New("bot challenge page served")
)

// Retryable marks an error as a transient failure worth another attempt.
type Retryable interface {
	Retryable() bool
}

// IsRetryable classifies transport failures and errors that opt in via Retryable.
// Cancellation of the caller's context is never retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var r Retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
