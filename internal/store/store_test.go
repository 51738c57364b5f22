package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mitanshubhoot/PP-TIO/protocol"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	rec := &Record{
		SessionID: "sess-1",
		M:         8192,
		K:         5,
		Phase:     "completed",
		Estimate:  &protocol.Estimate{Intersection: 50, Union: 150, Jaccard: 1.0 / 3.0},
	}
	require.NoError(t, s.Save(ctx, rec))

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, rec.SessionID, got.SessionID)
	require.InDelta(t, 50.0, got.Estimate.Intersection, 1e-9)
}

func TestGetMissing(t *testing.T) {
	s := openTemp(t)
	_, err := s.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSaveIsIdempotent(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	first := &Record{SessionID: "sess-1", Phase: "completed",
		Estimate: &protocol.Estimate{Intersection: 10}}
	require.NoError(t, s.Save(ctx, first))
	require.NoError(t, s.Save(ctx, &Record{SessionID: "sess-1", Phase: "failed"}))

	got, err := s.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, "completed", got.Phase, "first write wins")
}

func TestRecentNewestFirst(t *testing.T) {
	s := openTemp(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, &Record{
			SessionID: id,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Phase:     "completed",
		}))
	}
	recs, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "c", recs[0].SessionID)
	require.Equal(t, "b", recs[1].SessionID)
}
