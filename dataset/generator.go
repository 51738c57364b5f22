// Package dataset produces and loads indicator sets: seeded synthetic
// generation with exact controlled overlap for simulations, plus file
// and HTTP feed loaders for real data.
package dataset

import (
	"fmt"
	"math/rand"

	"github.com/mitanshubhoot/PP-TIO/ioc"
)

// Generator emits synthetic indicators from a seeded source, so a
// simulation run is reproducible from its seed.
type Generator struct {
	rng *rand.Rand
}

func NewGenerator(seed int64) *Generator {
	return &Generator{rng: rand.New(rand.NewSource(seed))}
}

const hexDigits = "0123456789abcdef"

var domainWords = []string{
	"update", "cdn", "login", "mail", "static", "api", "portal", "files",
	"secure", "edge", "sync", "auth", "img", "data", "proxy", "relay",
}

var tlds = []string{"com", "net", "org", "io", "info", "biz"}

// Random returns one random indicator of the given type.
func (g *Generator) Random(t ioc.Type) ioc.Indicator {
	switch t {
	case ioc.TypeIP:
		return ioc.New(t, g.randomIP())
	case ioc.TypeDomain:
		return ioc.New(t, g.randomDomain())
	case ioc.TypeURL:
		return ioc.New(t, "http://"+g.randomDomain()+"/"+g.randomHex(8))
	case ioc.TypeHash:
		return ioc.New(t, g.randomHex(64))
	}
	return ioc.New(t, g.randomHex(16))
}

func (g *Generator) randomIP() string {
	// public-looking /8s only, avoids normalizer surprises
	return fmt.Sprintf("%d.%d.%d.%d", 1+g.rng.Intn(222), g.rng.Intn(256), g.rng.Intn(256), g.rng.Intn(256))
}

func (g *Generator) randomDomain() string {
	w1 := domainWords[g.rng.Intn(len(domainWords))]
	w2 := domainWords[g.rng.Intn(len(domainWords))]
	return fmt.Sprintf("%s-%s-%s.%s", w1, w2, g.randomHex(4), tlds[g.rng.Intn(len(tlds))])
}

func (g *Generator) randomHex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = hexDigits[g.rng.Intn(16)]
	}
	return string(b)
}

// Set returns n distinct indicators of the given type.
func (g *Generator) Set(t ioc.Type, n int) []ioc.Indicator {
	seen := make(map[ioc.Indicator]struct{}, n)
	out := make([]ioc.Indicator, 0, n)
	for len(out) < n {
		ind := g.Random(t)
		if _, ok := seen[ind]; ok {
			continue
		}
		seen[ind] = struct{}{}
		out = append(out, ind)
	}
	return out
}

// Pair returns two sets with exactly overlap shared elements: setA has
// sizeA elements, setB has sizeB, and their intersection is the first
// overlap generated elements. overlap is capped at min(sizeA, sizeB).
func (g *Generator) Pair(t ioc.Type, sizeA, sizeB, overlap int) (setA, setB []ioc.Indicator) {
	if overlap > sizeA {
		overlap = sizeA
	}
	if overlap > sizeB {
		overlap = sizeB
	}
	if overlap < 0 {
		overlap = 0
	}
	pool := g.Set(t, sizeA+sizeB-overlap)
	shared := pool[:overlap]
	onlyA := pool[overlap : overlap+(sizeA-overlap)]
	onlyB := pool[overlap+(sizeA-overlap):]

	setA = append(append([]ioc.Indicator(nil), shared...), onlyA...)
	setB = append(append([]ioc.Indicator(nil), shared...), onlyB...)
	return setA, setB
}
