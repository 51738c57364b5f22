package protocol

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mitanshubhoot/PP-TIO/bloom"
	"github.com/mitanshubhoot/PP-TIO/ioc"
)

func ipSet(lo, hi int) []ioc.Indicator {
	set := make([]ioc.Indicator, 0, hi-lo)
	for i := lo; i < hi; i++ {
		set = append(set, ioc.New(ioc.TypeIP, fmt.Sprintf("203.0.%d.%d", i/256, i%256)))
	}
	return set
}

// inputFor encodes two sets and derives the estimator input the way the
// protocol does, using plaintext AND/OR.
func inputFor(t *testing.T, setA, setB []ioc.Indicator, m, k int) EstimateInput {
	t.Helper()
	fA, err := bloom.Encode(setA, m, k)
	require.NoError(t, err)
	fB, err := bloom.Encode(setB, m, k)
	require.NoError(t, err)
	and, err := bloom.And(fA, fB)
	require.NoError(t, err)
	or, err := bloom.Or(fA, fB)
	require.NoError(t, err)
	return EstimateInput{
		CountA:           fA.SetBitCount(),
		CountB:           fB.SetBitCount(),
		IntersectionBits: and.SetBitCount(),
		UnionBits:        or.SetBitCount(),
		M:                m,
		K:                k,
		InsertedA:        fA.InsertedCount(),
		InsertedB:        fB.InsertedCount(),
	}
}

func TestEstimateKnownOverlapScenario(t *testing.T) {
	// A = {1..100}, B = {51..150}: true intersection 50.
	in := inputFor(t, ipSet(1, 101), ipSet(51, 151), 10000, 5)
	est, err := EstimateOverlap(in)
	require.NoError(t, err)
	// The reference system claims ±5% for this configuration; a single
	// deterministic draw carries sampling noise of a few elements, so the
	// hard assertion uses the reference test suite's 20% allowance.
	require.InDelta(t, 50, est.Intersection, 10)
	require.InDelta(t, 150, est.Union, 15)
	require.InDelta(t, 50.0/150.0, est.Jaccard, 0.07)
}

func TestEstimateIdempotent(t *testing.T) {
	in := inputFor(t, ipSet(0, 80), ipSet(40, 120), 8192, 5)
	a, err := EstimateOverlap(in)
	require.NoError(t, err)
	b, err := EstimateOverlap(in)
	require.NoError(t, err)
	require.Equal(t, a, b)
}

func TestEstimateErrorShrinksWithLargerM(t *testing.T) {
	// A saturated filter carries a large, clamp-bounded error; an
	// adequately sized one lands within a few elements of the truth.
	setA, setB := ipSet(0, 200), ipSet(100, 300)
	const truth = 100.0

	small, err := EstimateOverlap(inputFor(t, setA, setB, 32, 5))
	require.NoError(t, err)
	gapSmall := math.Abs(small.Intersection - truth)
	require.Greater(t, gapSmall, 50.0)

	large, err := EstimateOverlap(inputFor(t, setA, setB, 16000, 5))
	require.NoError(t, err)
	gapLarge := math.Abs(large.Intersection - truth)
	require.Less(t, gapLarge, 15.0)
	require.Less(t, gapLarge, gapSmall)
}

func TestEstimateEmptySideIsDegenerate(t *testing.T) {
	est, err := EstimateOverlap(EstimateInput{
		CountA: 0, CountB: 120, IntersectionBits: 0, UnionBits: 120,
		M: 1024, K: 4, InsertedA: 0, InsertedB: 30,
	})
	require.NoError(t, err)
	require.Zero(t, est.Intersection)
	require.True(t, est.HasAdvisory(AdvisoryDegenerateInput))
}

func TestEstimateBothEmpty(t *testing.T) {
	est, err := EstimateOverlap(EstimateInput{M: 1024, K: 4})
	require.NoError(t, err)
	require.Zero(t, est.Intersection)
	require.Zero(t, est.Jaccard)
	require.True(t, est.HasAdvisory(AdvisoryDegenerateInput))
}

func TestEstimateInvalidParameters(t *testing.T) {
	_, err := EstimateOverlap(EstimateInput{M: 0, K: 4})
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = EstimateOverlap(EstimateInput{M: 100, K: 0})
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = EstimateOverlap(EstimateInput{M: 100, K: 3, CountA: 101})
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = EstimateOverlap(EstimateInput{M: 100, K: 3, InsertedA: -1})
	require.ErrorIs(t, err, ErrInvalidParameter)
}

func TestEstimateClampAttachesLowConfidence(t *testing.T) {
	// Tiny, saturated filter: inclusion-exclusion goes out of range.
	in := inputFor(t, ipSet(0, 400), ipSet(200, 600), 64, 8)
	est, err := EstimateOverlap(in)
	require.NoError(t, err)
	require.True(t, est.HasAdvisory(AdvisoryLowConfidence))
	require.GreaterOrEqual(t, est.Intersection, 0.0)
	require.LessOrEqual(t, est.Intersection, 400.0)
}

func TestExactOverlap(t *testing.T) {
	inter, union, jac := ExactOverlap(ipSet(0, 100), ipSet(50, 150))
	require.Equal(t, 50, inter)
	require.Equal(t, 150, union)
	require.InDelta(t, 1.0/3.0, jac, 1e-9)
}
