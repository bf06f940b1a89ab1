// Package scoring computes how well a posting fits the user's profile.
package scoring

import (
	"errors"
	"fmt"
	"math"
)

// ErrLengthMismatch is returned when vectors of different lengths are compared.
var ErrLengthMismatch = errors.New("vector length mismatch")

// Similarity returns the cosine similarity of a and b clamped to [0, 1] and
// scaled to 0-100. A zero-magnitude vector yields 0.
func Similarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrLengthMismatch, len(a), len(b))
	}
	var dot, magA, magB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		magA += x * x
		magB += y * y
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	sim := dot / (math.Sqrt(magA) * math.Sqrt(magB))
	return math.Max(0, math.Min(1, sim)) * 100, nil
}
