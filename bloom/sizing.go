package bloom

import "math"

// OptimalM returns the bit count that yields the target false-positive
// rate for n expected elements.
func OptimalM(n int, fpRate float64) int {
	if n <= 0 || fpRate <= 0 || fpRate >= 1 {
		return 0
	}
	return int(math.Ceil(-float64(n) * math.Log(fpRate) / (math.Ln2 * math.Ln2)))
}

// OptimalK returns the hash-function count for m bits and n elements,
// clamped to [1, 10].
func OptimalK(m, n int) int {
	if m <= 0 || n <= 0 {
		return 1
	}
	k := int(math.Ceil(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	if k > 10 {
		k = 10
	}
	return k
}
