package similarity

import (
	"errors"

	"gonum.org/v1/gonum/floats"
)

var (
	// ErrDimensionMismatch is returned when the two vectors cannot be
	// compared because their lengths differ or are zero.
	ErrDimensionMismatch = errors.New("similarity: embedding dimensions do not match")

	// ErrZeroVector is returned for degenerate (zero-norm) input instead of
	// letting a division by zero propagate as NaN.
	ErrZeroVector = errors.New("similarity: zero-norm embedding")
)

// Score returns the cosine similarity of two embedding vectors in [-1, 1].
// Both vectors are L2-normalized internally, so callers may pass raw
// (non-unit) embeddings. The function is symmetric.
func Score(a, b []float32) (float64, error) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	av := toFloat64(a)
	bv := toFloat64(b)

	normA := floats.Norm(av, 2)
	normB := floats.Norm(bv, 2)
	if normA == 0 || normB == 0 {
		return 0, ErrZeroVector
	}

	return floats.Dot(av, bv) / (normA * normB), nil
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
