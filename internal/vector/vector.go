// Package vector holds the embedding math shared by search and the store
// backends that rank in process.
package vector

import "math"

// Cosine returns dot(a,b)/(|a|*|b|) accumulated in float64. It is 0 when
// either norm is 0 or the lengths differ.
func Cosine(a, b []float32) float64 {
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

// Mean returns the weighted element-wise mean of vecs. A nil weights slice
// weighs every vector equally. Empty vectors are skipped; vectors whose
// dimension differs from the first non-empty one are skipped as well.
func Mean(vecs [][]float32, weights []float64) []float32 {
	var dim int
	for _, v := range vecs {
		if len(v) > 0 {
			dim = len(v)
			break
		}
	}
	if dim == 0 {
		return nil
	}

	sum := make([]float64, dim)
	var total float64
	for i, v := range vecs {
		if len(v) != dim {
			continue
		}
		w := 1.0
		if weights != nil && i < len(weights) {
			w = weights[i]
		}
		if w <= 0 {
			continue
		}
		for j, x := range v {
			sum[j] += w * float64(x)
		}
		total += w
	}
	if total == 0 {
		return nil
	}

	out := make([]float32, dim)
	for j := range sum {
		out[j] = float32(sum[j] / total)
	}
	return out
}

// Normalize returns a unit-length copy of v, or v unchanged when its norm is 0.
func Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
