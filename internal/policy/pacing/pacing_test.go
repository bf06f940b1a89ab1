package pacing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestJitterStaysInRange(t *testing.T) {
	t.Parallel()

	lo, hi := 3*time.Second, 6*time.Second
	for i := 0; i < 500; i++ {
		d := Jitter(lo, hi)
		require.GreaterOrEqual(t, d, lo)
		require.LessOrEqual(t, d, hi)
	}
}

func TestJitterDegenerateBounds(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2*time.Second, Jitter(2*time.Second, 2*time.Second))
	require.Equal(t, time.Duration(0), Jitter(-time.Second, -time.Second))

	d := Jitter(6*time.Second, 3*time.Second)
	require.GreaterOrEqual(t, d, 3*time.Second)
	require.LessOrEqual(t, d, 6*time.Second)
}

func TestRangeNext(t *testing.T) {
	t.Parallel()

	r := Range{Min: 10 * time.Second, Max: 20 * time.Second}
	for i := 0; i < 100; i++ {
		d := r.Next()
		require.GreaterOrEqual(t, d, r.Min)
		require.LessOrEqual(t, d, r.Max)
	}
}

func TestBackoffCeiling(t *testing.T) {
	t.Parallel()

	b := DefaultBackoff()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: -1, want: 5 * time.Second},
		{attempt: 0, want: 5 * time.Second},
		{attempt: 1, want: 10 * time.Second},
		{attempt: 2, want: 20 * time.Second},
		{attempt: 4, want: 80 * time.Second},
		{attempt: 5, want: 120 * time.Second},
		{attempt: 30, want: 120 * time.Second},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, b.Ceiling(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffDelayAddsBoundedJitter(t *testing.T) {
	t.Parallel()

	b := DefaultBackoff()
	for attempt := 0; attempt < 8; attempt++ {
		base := b.Ceiling(attempt)
		for i := 0; i < 50; i++ {
			d := b.Delay(attempt)
			require.GreaterOrEqual(t, d, base)
			require.LessOrEqual(t, d, base+time.Duration(float64(base)*0.2))
		}
	}
}

func TestBackoffWithoutJitter(t *testing.T) {
	t.Parallel()

	b := Backoff{Base: time.Second, Max: 4 * time.Second}
	require.Equal(t, 2*time.Second, b.Delay(1))
	require.Equal(t, 4*time.Second, b.Delay(3))
}

func TestPauseHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	Pause(ctx, 5*time.Second)
	require.Less(t, time.Since(start), time.Second, "pause should exit immediately when context is done")
}

func TestPauseZeroReturnsImmediately(t *testing.T) {
	t.Parallel()

	start := time.Now()
	Pause(context.Background(), 0)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}
