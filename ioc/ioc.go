// Package ioc models Indicators of Compromise: typed identifiers with a
// canonical representation used as hash input by the Bloom encoder.
// Indicators are value types; the protocol core never retains them past
// encoding.
package ioc

import (
	"net/netip"
	"regexp"
	"strings"
)

// Type enumerates supported IoC categories.
type Type string

const (
	TypeIP     Type = "ip"
	TypeDomain Type = "domain"
	TypeURL    Type = "url"
	TypeHash   Type = "hash"
)

// ParseType validates a type string from config or API payloads.
func ParseType(s string) (Type, bool) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case TypeIP:
		return TypeIP, true
	case TypeDomain:
		return TypeDomain, true
	case TypeURL:
		return TypeURL, true
	case TypeHash:
		return TypeHash, true
	}
	return "", false
}

// Indicator is a normalized IoC. Value holds the canonical form; two
// indicators are the same element iff their canonical forms are equal.
type Indicator struct {
	Type  Type   `json:"type"`
	Value string `json:"value"`
}

// New normalizes raw into an Indicator of the given type.
func New(t Type, raw string) Indicator {
	return Indicator{Type: t, Value: Normalize(t, raw)}
}

// Canonical returns the string fed to the set encoder's hash functions.
func (i Indicator) Canonical() string { return i.Value }

// Bytes returns the canonical form as hash input.
func (i Indicator) Bytes() []byte { return []byte(i.Value) }

var schemeRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9+.-]*://`)

// Normalize canonicalizes raw according to the indicator type so both
// parties hash identical bytes for the same logical IoC.
func Normalize(t Type, raw string) string {
	switch t {
	case TypeIP:
		return normalizeIP(raw)
	case TypeDomain:
		return normalizeDomain(raw)
	case TypeURL:
		return normalizeURL(raw)
	case TypeHash:
		return strings.ToLower(strings.TrimSpace(raw))
	}
	return strings.TrimSpace(raw)
}

func normalizeIP(raw string) string {
	v := strings.TrimSpace(raw)
	if addr, err := netip.ParseAddr(v); err == nil {
		return addr.String()
	}
	// Not a parseable address; keep the trimmed literal so encoding stays
	// deterministic for upstream-supplied values.
	return v
}

func normalizeDomain(raw string) string {
	v := strings.ToLower(strings.TrimSpace(raw))
	v = schemeRe.ReplaceAllString(v, "")
	if i := strings.IndexByte(v, '/'); i >= 0 {
		v = v[:i]
	}
	v = strings.TrimSuffix(v, ".")
	return v
}

func normalizeURL(raw string) string {
	v := strings.TrimSpace(raw)
	if !schemeRe.MatchString(v) {
		v = "http://" + v
	}
	// Lowercase scheme and host, preserve path and query casing.
	rest := v[strings.Index(v, "://")+3:]
	scheme := strings.ToLower(v[:strings.Index(v, "://")])
	host := rest
	path := ""
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		host, path = rest[:i], rest[i:]
	}
	return scheme + "://" + strings.ToLower(host) + path
}

// Dedupe returns the distinct indicators of set, preserving first-seen
// order. Encoders rely on this for exact n_inserted accounting.
func Dedupe(set []Indicator) []Indicator {
	seen := make(map[Indicator]struct{}, len(set))
	out := make([]Indicator, 0, len(set))
	for _, ind := range set {
		if _, ok := seen[ind]; ok {
			continue
		}
		seen[ind] = struct{}{}
		out = append(out, ind)
	}
	return out
}
