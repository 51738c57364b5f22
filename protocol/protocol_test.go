package protocol

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mitanshubhoot/PP-TIO/he"
)

// countingCapability tallies homomorphic multiplications so tests can
// assert that a rejected offer never reaches the substrate.
type countingCapability struct {
	he.Capability
	mu         sync.Mutex
	multiplies int
}

func (c *countingCapability) MultiplyPlain(ct he.Ciphertext, bits []uint64) (he.Ciphertext, error) {
	c.mu.Lock()
	c.multiplies++
	c.mu.Unlock()
	return c.Capability.MultiplyPlain(ct, bits)
}

func (c *countingCapability) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplies
}

func TestExchangeCompletesAndMatchesTruth(t *testing.T) {
	ex := NewExchange(he.NewPlain(8192), 8192, 5)
	setA, setB := ipSet(1, 101), ipSet(51, 151)

	est, err := ex.Run(context.Background(), setA, setB)
	require.NoError(t, err)
	require.Equal(t, PhaseCompleted, ex.Session().Phase())

	inter, union, _ := ExactOverlap(setA, setB)
	require.InDelta(t, float64(inter), est.Intersection, 10)
	require.InDelta(t, float64(union), est.Union, 15)

	got, ok := ex.Session().Result()
	require.True(t, ok)
	require.Equal(t, est, got)
}

func TestExchangeEventStreamFiniteAndOrdered(t *testing.T) {
	ex := NewExchange(he.NewPlain(4096), 4096, 4)
	_, err := ex.Run(context.Background(), ipSet(0, 50), ipSet(25, 75))
	require.NoError(t, err)

	// The stream is closed at the terminal phase; draining it after Run
	// terminates and yields every transition exactly once, in order.
	var events []Event
	for ev := range ex.Session().Events() {
		events = append(events, ev)
	}
	require.Len(t, events, 5)
	for i, ev := range events {
		require.Equal(t, i+1, ev.Seq)
	}
	last := events[len(events)-1]
	require.Equal(t, PhaseCompleted.String(), last.Phase)
	require.Equal(t, 100, last.Percent)
}

func TestExchangeParameterMismatchFailsBeforeMultiply(t *testing.T) {
	capability := &countingCapability{Capability: he.NewPlain(8192)}
	ex := &Exchange{
		initiator: NewInitiator(capability, 2048, 4),
		responder: NewResponder(capability, 4096, 4),
	}

	_, err := ex.Run(context.Background(), ipSet(0, 50), ipSet(25, 75))
	require.ErrorIs(t, err, ErrParameterMismatch)
	require.Zero(t, capability.count(), "mismatch must be detected before any homomorphic work")

	reason, ferr, failed := ex.Session().Failure()
	require.True(t, failed)
	require.Equal(t, FailParameterMismatch, reason)
	require.ErrorIs(t, ferr, ErrParameterMismatch)
}

func TestExchangeNoiseBudgetExhausted(t *testing.T) {
	ex := NewExchange(he.NewPlainWithBudget(4096, 0), 4096, 4)
	_, err := ex.Run(context.Background(), ipSet(0, 50), ipSet(25, 75))
	require.ErrorIs(t, err, he.ErrNoiseBudgetExhausted)

	reason, _, failed := ex.Session().Failure()
	require.True(t, failed)
	require.Equal(t, FailNoiseBudget, reason)
}

func TestCompletedSessionRejectsFurtherCalls(t *testing.T) {
	ex := NewExchange(he.NewPlain(4096), 4096, 4)
	est, err := ex.Run(context.Background(), ipSet(0, 50), ipSet(25, 75))
	require.NoError(t, err)

	require.ErrorIs(t, ex.initiator.GenerateKeys(context.Background()), ErrSessionClosed)
	_, err = ex.initiator.EncryptFilter(context.Background(), ipSet(0, 10))
	require.ErrorIs(t, err, ErrSessionClosed)
	_, err = ex.Run(context.Background(), ipSet(0, 10), ipSet(5, 15))
	require.ErrorIs(t, err, ErrSessionClosed)

	// The recorded outcome is untouched.
	got, ok := ex.Session().Result()
	require.True(t, ok)
	require.Equal(t, est, got)
}

func TestExchangeCancellation(t *testing.T) {
	ex := NewExchange(he.NewPlain(4096), 4096, 4)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ex.Run(ctx, ipSet(0, 50), ipSet(25, 75))
	require.ErrorIs(t, err, context.Canceled)

	reason, _, failed := ex.Session().Failure()
	require.True(t, failed)
	require.Equal(t, FailCancelled, reason)
}

func TestInitiatorPhaseOrder(t *testing.T) {
	in := NewInitiator(he.NewPlain(4096), 4096, 4)

	_, err := in.EncryptFilter(context.Background(), ipSet(0, 10))
	require.ErrorIs(t, err, ErrPhaseOrder)
	_, err = in.Finalize(context.Background(), Reply{}, -1)
	require.ErrorIs(t, err, ErrPhaseOrder)
	require.Equal(t, PhaseCreated, in.Session().Phase())
}

func TestInitiatorCancelReleasesSession(t *testing.T) {
	in := NewInitiator(he.NewPlain(4096), 4096, 4)
	require.NoError(t, in.GenerateKeys(context.Background()))

	err := in.Cancel(context.Background())
	require.ErrorIs(t, err, context.Canceled)
	reason, _, failed := in.Session().Failure()
	require.True(t, failed)
	require.Equal(t, FailCancelled, reason)

	// Key material is gone with the session.
	require.Nil(t, in.priv)
}

func TestFinalizeDerivesUnionFromScalarCounts(t *testing.T) {
	capability := he.NewPlain(8192)
	in := NewInitiator(capability, 8192, 5)
	rsp := NewResponder(capability, 8192, 5)
	setA, setB := ipSet(1, 101), ipSet(51, 151)

	ctx := context.Background()
	require.NoError(t, in.GenerateKeys(ctx))
	offer, err := in.EncryptFilter(ctx, setA)
	require.NoError(t, err)
	reply, err := rsp.Respond(ctx, offer, setB)
	require.NoError(t, err)

	// Negative unionBits asks Finalize to apply inclusion-exclusion on
	// the exchanged counts; the result must match the plaintext path.
	est, err := in.Finalize(ctx, reply, -1)
	require.NoError(t, err)

	ex := NewExchange(he.NewPlain(8192), 8192, 5)
	ref, err := ex.Run(ctx, setA, setB)
	require.NoError(t, err)
	require.Equal(t, ref.UnionBits, est.UnionBits)
	require.Equal(t, ref.Intersection, est.Intersection)
}

func TestConcurrentSessionsAreIndependent(t *testing.T) {
	const n = 8
	var wg sync.WaitGroup
	ids := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ex := NewExchange(he.NewPlain(4096), 4096, 4)
			ids[i] = ex.Session().ID()
			_, errs[i] = ex.Run(context.Background(), ipSet(i*10, i*10+60), ipSet(i*10+30, i*10+90))
		}(i)
	}
	wg.Wait()

	seen := map[string]struct{}{}
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		_, dup := seen[ids[i]]
		require.False(t, dup, "session ids must be unique")
		seen[ids[i]] = struct{}{}
	}
}
