package scoring

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{name: "identical", a: []float32{0.3, 0.4, 0.5}, b: []float32{0.3, 0.4, 0.5}, want: 100},
		{name: "scaled copy", a: []float32{1, 2}, b: []float32{2, 4}, want: 100},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite clamps to zero", a: []float32{1, 1}, b: []float32{-1, -1}, want: 0},
		{name: "zero vector", a: []float32{1, 2, 3}, b: []float32{0, 0, 0}, want: 0},
		{name: "empty", a: []float32{}, b: []float32{}, want: 0},
		{name: "partial", a: []float32{1, 0}, b: []float32{1, 1}, want: 70.71067811865476},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Similarity(tt.a, tt.b)
			require.NoError(t, err)
			require.InDelta(t, tt.want, got, 1e-4)
		})
	}
}

func TestSimilarityLengthMismatch(t *testing.T) {
	t.Parallel()

	_, err := Similarity([]float32{1, 2}, []float32{1})
	require.ErrorIs(t, err, ErrLengthMismatch)
}
