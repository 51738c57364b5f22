package protocol

import (
	"fmt"
	"math"
)

// Advisory is a non-fatal accuracy note attached to a successful estimate.
type Advisory string

const (
	// AdvisoryLowConfidence marks an estimate that had to be clamped into
	// [0, min(nA, nB)] — usually a sign of an undersized filter.
	AdvisoryLowConfidence Advisory = "low_confidence"
	// AdvisoryDegenerateInput marks estimates over empty inputs.
	AdvisoryDegenerateInput Advisory = "degenerate_input"
)

// Estimate is the protocol's terminal output: aggregate statistics only,
// never raw set contents.
type Estimate struct {
	Intersection     float64    `json:"estimated_intersection_count"`
	SetASize         int        `json:"set_a_size"`
	SetBSize         int        `json:"set_b_size"`
	Union            float64    `json:"estimated_union_count"`
	Jaccard          float64    `json:"jaccard_similarity"`
	IntersectionBits int        `json:"intersection_bits"`
	UnionBits        int        `json:"union_bits"`
	Advisories       []Advisory `json:"advisories,omitempty"`
}

// HasAdvisory reports whether a was attached.
func (e *Estimate) HasAdvisory(a Advisory) bool {
	for _, x := range e.Advisories {
		if x == a {
			return true
		}
	}
	return false
}

// EstimateInput carries the aggregate counts the estimator works from.
// CountA/CountB are each filter's set-bit counts; InsertedA/InsertedB
// are each party's exact element counts, shared as scalars.
type EstimateInput struct {
	CountA           int
	CountB           int
	IntersectionBits int
	UnionBits        int
	M                int
	K                int
	InsertedA        int
	InsertedB        int
}

// EstimateOverlap converts bit counts into an intersection estimate.
//
// Bitwise AND of two Bloom filters systematically overestimates the true
// intersection (unrelated elements collide), so instead of inverting the
// AND count directly the estimator inverts the union count and applies
// inclusion-exclusion with the exact per-party set sizes:
//
//	n̂(x) = -(m/k) · ln(1 - x/m)
//	intersection = nA + nB - n̂(unionBits)
//
// The result is clamped to [0, min(nA, nB)]; a triggered clamp attaches
// AdvisoryLowConfidence rather than failing. Pure function.
func EstimateOverlap(in EstimateInput) (Estimate, error) {
	if in.M <= 0 || in.K <= 0 {
		return Estimate{}, fmt.Errorf("%w: m=%d k=%d", ErrInvalidParameter, in.M, in.K)
	}
	for _, c := range []int{in.CountA, in.CountB, in.IntersectionBits, in.UnionBits} {
		if c < 0 || c > in.M {
			return Estimate{}, fmt.Errorf("%w: bit count %d outside [0, %d]", ErrInvalidParameter, c, in.M)
		}
	}
	if in.InsertedA < 0 || in.InsertedB < 0 {
		return Estimate{}, fmt.Errorf("%w: negative inserted count", ErrInvalidParameter)
	}

	est := Estimate{
		SetASize:         in.InsertedA,
		SetBSize:         in.InsertedB,
		IntersectionBits: in.IntersectionBits,
		UnionBits:        in.UnionBits,
	}

	est.Union = invertCardinality(in.UnionBits, in.M, in.K)

	if in.InsertedA == 0 || in.InsertedB == 0 {
		est.Intersection = 0
		est.Advisories = append(est.Advisories, AdvisoryDegenerateInput)
		if est.Union > 0 {
			est.Jaccard = 0
		}
		return est, nil
	}

	raw := float64(in.InsertedA) + float64(in.InsertedB) - est.Union
	limit := math.Min(float64(in.InsertedA), float64(in.InsertedB))
	est.Intersection = raw
	if raw < 0 {
		est.Intersection = 0
		est.Advisories = append(est.Advisories, AdvisoryLowConfidence)
	} else if raw > limit {
		est.Intersection = limit
		est.Advisories = append(est.Advisories, AdvisoryLowConfidence)
	}

	if est.Union <= 0 {
		est.Jaccard = 0
		est.Advisories = append(est.Advisories, AdvisoryDegenerateInput)
	} else {
		est.Jaccard = est.Intersection / est.Union
	}
	return est, nil
}

// invertCardinality estimates how many distinct elements produced x set
// bits in an (m, k) filter: -(m/k) · ln(1 - x/m).
func invertCardinality(x, m, k int) float64 {
	if x <= 0 {
		return 0
	}
	ratio := float64(x) / float64(m)
	if ratio >= 1 {
		ratio = 0.999 // saturated filter; keep the logarithm finite
	}
	return -(float64(m) / float64(k)) * math.Log(1-ratio)
}
