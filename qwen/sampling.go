package qwen

import (
	"math"
	"math/rand/v2"
)

// Greedy returns the arg-max index of logits, ties broken by lowest index
// (spec.md §4.7). Idempotent: repeated calls on the same slice return the
// same result.
func Greedy(logits []float32) (int, error) {
	if len(logits) == 0 {
		return 0, newErr(KindSampling, "greedy: empty logits")
	}
	best := 0
	bestVal := logits[0]
	for i := 1; i < len(logits); i++ {
		if logits[i] > bestVal {
			bestVal = logits[i]
			best = i
		}
	}
	return best, nil
}

// Temperature samples an index from logits scaled by T and passed through
// softmax, drawing from rng (spec.md §4.7). T <= 0 is equivalent to greedy.
// On cumulative-probability underflow, returns the last index.
func Temperature(logits []float32, t float64, rng *rand.Rand) (int, error) {
	if len(logits) == 0 {
		return 0, newErr(KindSampling, "temperature: empty logits")
	}
	if t <= 0 {
		return Greedy(logits)
	}

	probs := softmax(logits, t)

	draw := rng.Float64()
	var cumulative float64
	for i, p := range probs {
		cumulative += p
		if draw < cumulative {
			return i, nil
		}
	}
	return len(probs) - 1, nil
}

// TopK masks all but the k highest logits to -inf, then samples via
// Temperature (spec.md §4.7). k = 1 collapses to greedy regardless of T.
func TopK(logits []float32, k int, t float64, rng *rand.Rand) (int, error) {
	if len(logits) == 0 {
		return 0, newErr(KindSampling, "top_k: empty logits")
	}
	if k <= 0 {
		return 0, newErr(KindSampling, "top_k: invalid k=%d", k)
	}
	if k == 1 {
		return Greedy(logits)
	}
	if k >= len(logits) {
		return Temperature(logits, t, rng)
	}

	threshold := kthLargest(logits, k)
	masked := make([]float32, len(logits))
	for i, v := range logits {
		if v >= threshold {
			masked[i] = v
		} else {
			masked[i] = float32(math.Inf(-1))
		}
	}
	return Temperature(masked, t, rng)
}

func softmax(logits []float32, t float64) []float64 {
	scaled := make([]float64, len(logits))
	maxVal := math.Inf(-1)
	for i, v := range logits {
		scaled[i] = float64(v) / t
		if scaled[i] > maxVal {
			maxVal = scaled[i]
		}
	}
	sum := 0.0
	for i, v := range scaled {
		e := math.Exp(v - maxVal)
		scaled[i] = e
		sum += e
	}
	if sum == 0 {
		return scaled
	}
	for i := range scaled {
		scaled[i] /= sum
	}
	return scaled
}

// kthLargest returns the value of the k-th largest element (1-indexed), used
// as TopK's inclusion threshold.
func kthLargest(logits []float32, k int) float32 {
	sorted := append([]float32(nil), logits...)
	// Simple selection is fine at vocab scale (tens of thousands); avoids a
	// sort.Sort-with-interface allocation for a one-shot per-token call.
	for i := 0; i < k; i++ {
		maxIdx := i
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j] > sorted[maxIdx] {
				maxIdx = j
			}
		}
		sorted[i], sorted[maxIdx] = sorted[maxIdx], sorted[i]
	}
	return sorted[k-1]
}
