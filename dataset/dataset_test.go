package dataset

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mitanshubhoot/PP-TIO/ioc"
)

func TestGeneratorDeterministicBySeed(t *testing.T) {
	a := NewGenerator(7).Set(ioc.TypeDomain, 50)
	b := NewGenerator(7).Set(ioc.TypeDomain, 50)
	require.Equal(t, a, b)
	c := NewGenerator(8).Set(ioc.TypeDomain, 50)
	require.NotEqual(t, a, c)
}

func TestGeneratorSetDistinct(t *testing.T) {
	set := NewGenerator(1).Set(ioc.TypeIP, 500)
	require.Len(t, ioc.Dedupe(set), 500)
}

func TestPairExactOverlap(t *testing.T) {
	setA, setB := NewGenerator(42).Pair(ioc.TypeHash, 120, 80, 30)
	require.Len(t, setA, 120)
	require.Len(t, setB, 80)

	inA := map[ioc.Indicator]struct{}{}
	for _, ind := range setA {
		inA[ind] = struct{}{}
	}
	shared := 0
	for _, ind := range setB {
		if _, ok := inA[ind]; ok {
			shared++
		}
	}
	require.Equal(t, 30, shared)
}

func TestPairOverlapCapped(t *testing.T) {
	setA, setB := NewGenerator(1).Pair(ioc.TypeIP, 10, 5, 50)
	require.Len(t, setA, 10)
	require.Len(t, setB, 5)
	inA := map[ioc.Indicator]struct{}{}
	for _, ind := range setA {
		inA[ind] = struct{}{}
	}
	for _, ind := range setB {
		_, ok := inA[ind]
		require.True(t, ok, "capped overlap makes B a subset of A")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.txt")
	content := "# comment\n203.0.113.7\n\nip,203.0.113.7\ndomain,EVIL.Example.COM.\nhash,ABCDEF0123\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	set, err := LoadFile(path, ioc.TypeIP)
	require.NoError(t, err)
	require.Equal(t, []ioc.Indicator{
		{Type: ioc.TypeIP, Value: "203.0.113.7"},
		{Type: ioc.TypeDomain, Value: "evil.example.com"},
		{Type: ioc.TypeHash, Value: "abcdef0123"},
	}, set)
}

func TestLoadFileRejectsUnknownType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feed.txt")
	require.NoError(t, os.WriteFile(path, []byte("asn,64500\n"), 0o644))
	_, err := LoadFile(path, ioc.TypeIP)
	require.Error(t, err)
}

func TestFetchFeedRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("198.51.100.1\n198.51.100.2\n"))
	}))
	defer srv.Close()

	set, err := FetchFeed(context.Background(), srv.Client(), srv.URL, ioc.TypeIP)
	require.NoError(t, err)
	require.Len(t, set, 2)
	require.GreaterOrEqual(t, calls.Load(), int32(2))
}
