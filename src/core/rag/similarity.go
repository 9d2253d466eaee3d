package rag

import "math"

// CosineSimilarity returns the cosine of the angle between a and b in [-1, 1].
// Empty vectors, mismatched lengths, and zero-norm vectors all score 0.0; the
// function never panics and never divides by zero.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0.0
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
