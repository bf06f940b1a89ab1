// Package pacing produces the randomized delays that keep request timing
// irregular, plus the exponential backoff used between retries.
package pacing

import (
	"context"
	"crypto/rand"
	"math"
	"math/big"
	"time"
)

// Range is an inclusive interval of delays.
type Range struct {
	Min time.Duration
	Max time.Duration
}

// Next returns a uniformly distributed delay in [Min, Max].
func (r Range) Next() time.Duration {
	return Jitter(r.Min, r.Max)
}

// Jitter returns a uniformly distributed delay in [lo, hi]. Bounds are
// swapped when given in the wrong order and negative values clamp to zero.
func Jitter(lo, hi time.Duration) time.Duration {
	if lo < 0 {
		lo = 0
	}
	if hi < 0 {
		hi = 0
	}
	if hi < lo {
		lo, hi = hi, lo
	}
	span := hi - lo
	if span == 0 {
		return lo
	}
	return lo + randomDuration(span+1)
}

// Backoff computes min(Base * 2^attempt, Max) plus up to JitterFraction of
// that delay on top.
type Backoff struct {
	Base           time.Duration
	Max            time.Duration
	JitterFraction float64
}

// DefaultBackoff is 5s doubling to a 120s cap with 20% jitter.
func DefaultBackoff() Backoff {
	return Backoff{
		Base:           5 * time.Second,
		Max:            120 * time.Second,
		JitterFraction: 0.2,
	}
}

// Ceiling returns the un-jittered delay for attempt (0-based).
func (b Backoff) Ceiling(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(b.Base) * math.Pow(2, float64(attempt))
	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	return time.Duration(delay)
}

// Delay returns the wait before retry number attempt (0-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Ceiling(attempt)
	if b.JitterFraction <= 0 || base <= 0 {
		return base
	}
	limit := time.Duration(float64(base) * b.JitterFraction)
	return base + randomDuration(limit)
}

// Pause blocks for d or until ctx is done, whichever comes first.
func Pause(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// randomDuration returns a value in [0, limit).
func randomDuration(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
