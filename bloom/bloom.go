// Package bloom implements the fixed-parameter Bloom filters the overlap
// protocol exchanges. A filter is an m-bit vector with k hash functions
// and a count of distinct elements inserted; m and k are fixed for the
// filter's lifetime and must match between the two parties' filters.
package bloom

import (
	"errors"
	"math"
	"math/bits"

	"github.com/spaolacci/murmur3"

	"github.com/mitanshubhoot/PP-TIO/ioc"
)

var (
	// ErrInvalidParameter covers non-positive m/k and empty input sets.
	ErrInvalidParameter = errors.New("bloom: invalid filter parameter")
	// ErrParameterMismatch is returned when combining filters whose m or k disagree.
	ErrParameterMismatch = errors.New("bloom: filters have mismatched m/k")
)

// Filter is an m-bit Bloom filter with k hash functions.
type Filter struct {
	m     int
	k     int
	n     int // distinct elements inserted
	words []uint64
}

// New returns an empty filter. m and k must be positive.
func New(m, k int) (*Filter, error) {
	if m <= 0 || k <= 0 {
		return nil, ErrInvalidParameter
	}
	return &Filter{m: m, k: k, words: make([]uint64, (m+63)/64)}, nil
}

// Encode maps a set of indicators into a fresh filter. The input is
// deduplicated by canonical form so InsertedCount reports true set size.
// Encoding is deterministic: the same set and parameters always produce
// a bit-identical filter.
func Encode(set []ioc.Indicator, m, k int) (*Filter, error) {
	if len(set) == 0 {
		return nil, ErrInvalidParameter
	}
	f, err := New(m, k)
	if err != nil {
		return nil, err
	}
	for _, ind := range ioc.Dedupe(set) {
		f.add(ind.Bytes())
	}
	return f, nil
}

// EncodeBytes is Encode for callers holding raw element bytes. Elements
// are deduplicated by exact byte equality.
func EncodeBytes(set [][]byte, m, k int) (*Filter, error) {
	if len(set) == 0 {
		return nil, ErrInvalidParameter
	}
	f, err := New(m, k)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(set))
	for _, elem := range set {
		if _, ok := seen[string(elem)]; ok {
			continue
		}
		seen[string(elem)] = struct{}{}
		f.add(elem)
	}
	return f, nil
}

// add sets the k bit positions for elem using murmur3 double hashing:
// position i is (h1 + i*h2) mod m.
func (f *Filter) add(elem []byte) {
	h1, h2 := murmur3.Sum128(elem)
	h2 |= 1 // keep the stride odd so positions do not collapse
	for i := 0; i < f.k; i++ {
		idx := (h1 + uint64(i)*h2) % uint64(f.m)
		f.words[idx/64] |= 1 << (idx % 64)
	}
	f.n++
}

// MayContain reports whether elem possibly was inserted. False positives
// are possible, false negatives are not.
func (f *Filter) MayContain(elem []byte) bool {
	h1, h2 := murmur3.Sum128(elem)
	h2 |= 1
	for i := 0; i < f.k; i++ {
		idx := (h1 + uint64(i)*h2) % uint64(f.m)
		if f.words[idx/64]&(1<<(idx%64)) == 0 {
			return false
		}
	}
	return true
}

// M returns the bit-vector length.
func (f *Filter) M() int { return f.m }

// K returns the hash-function count.
func (f *Filter) K() int { return f.k }

// InsertedCount returns the number of distinct elements encoded.
func (f *Filter) InsertedCount() int { return f.n }

// SetBitCount returns the population count of the bit vector.
func (f *Filter) SetBitCount() int {
	c := 0
	for _, w := range f.words {
		c += bits.OnesCount64(w)
	}
	return c
}

// Bits expands the filter into an m-slot {0,1} vector, the layout the
// homomorphic capability encrypts.
func (f *Filter) Bits() []uint64 {
	out := make([]uint64, f.m)
	for i := 0; i < f.m; i++ {
		if f.words[i/64]&(1<<(i%64)) != 0 {
			out[i] = 1
		}
	}
	return out
}

// FromBits rebuilds a filter from an m-slot {0,1} vector, e.g. a
// decrypted intersection result. InsertedCount of the result is zero:
// it represents a bit pattern, not an encoded set.
func FromBits(slots []uint64, k int) (*Filter, error) {
	f, err := New(len(slots), k)
	if err != nil {
		return nil, err
	}
	for i, v := range slots {
		if v != 0 {
			f.words[i/64] |= 1 << (i % 64)
		}
	}
	return f, nil
}

// FillRatio returns the fraction of set bits.
func (f *Filter) FillRatio() float64 {
	return float64(f.SetBitCount()) / float64(f.m)
}

// FalsePositiveRate estimates the current false-positive probability,
// (1 - e^(-k*n/m))^k.
func (f *Filter) FalsePositiveRate() float64 {
	if f.n == 0 {
		return 0
	}
	exp := -float64(f.k) * float64(f.n) / float64(f.m)
	return math.Pow(1-math.Exp(exp), float64(f.k))
}

// And returns the bitwise intersection of two parameter-matched filters.
func And(a, b *Filter) (*Filter, error) {
	if a.m != b.m || a.k != b.k {
		return nil, ErrParameterMismatch
	}
	out, _ := New(a.m, a.k)
	for i := range a.words {
		out.words[i] = a.words[i] & b.words[i]
	}
	return out, nil
}

// Or returns the bitwise union of two parameter-matched filters.
func Or(a, b *Filter) (*Filter, error) {
	if a.m != b.m || a.k != b.k {
		return nil, ErrParameterMismatch
	}
	out, _ := New(a.m, a.k)
	for i := range a.words {
		out.words[i] = a.words[i] | b.words[i]
	}
	return out, nil
}
