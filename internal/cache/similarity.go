package cache

import "math"

// CosineSimilarity returns dot(a,b) / (|a|*|b|).
// It returns 0 when the vectors differ in length or either norm is zero.
// The function is symmetric and self-similarity is 1 within float tolerance.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
