package ioc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeIP(t *testing.T) {
	require.Equal(t, "192.168.1.1", Normalize(TypeIP, "  192.168.1.1 "))
	require.Equal(t, "2001:db8::1", Normalize(TypeIP, "2001:DB8::1"))
	// Unparseable values pass through trimmed.
	require.Equal(t, "999.1.2.3", Normalize(TypeIP, " 999.1.2.3"))
}

func TestNormalizeDomain(t *testing.T) {
	require.Equal(t, "evil.com", Normalize(TypeDomain, "EVIL.COM."))
	require.Equal(t, "evil.com", Normalize(TypeDomain, "https://evil.com/path"))
	require.Equal(t, "evil.com", Normalize(TypeDomain, " evil.com "))
}

func TestNormalizeURL(t *testing.T) {
	require.Equal(t, "http://evil.com/Path", Normalize(TypeURL, "evil.com/Path"))
	require.Equal(t, "https://evil.com/x", Normalize(TypeURL, "HTTPS://EVIL.COM/x"))
}

func TestNormalizeHash(t *testing.T) {
	require.Equal(t, "abcdef01", Normalize(TypeHash, " ABCDEF01 "))
}

func TestDedupe(t *testing.T) {
	set := []Indicator{
		New(TypeIP, "1.2.3.4"),
		New(TypeIP, " 1.2.3.4"),
		New(TypeIP, "5.6.7.8"),
	}
	out := Dedupe(set)
	require.Len(t, out, 2)
	require.Equal(t, "1.2.3.4", out[0].Value)
	require.Equal(t, "5.6.7.8", out[1].Value)
}

func TestParseType(t *testing.T) {
	typ, ok := ParseType(" Domain ")
	require.True(t, ok)
	require.Equal(t, TypeDomain, typ)
	_, ok = ParseType("asn")
	require.False(t, ok)
}
