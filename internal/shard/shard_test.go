package shard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

func entry(name string) symbol.Entry {
	return symbol.NewEntry(name, symbol.KindClass, symbol.Target{LocationURL: name + ".html"})
}

func keys(entries []symbol.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key
	}
	return out
}

func TestIDRoundTrip(t *testing.T) {
	id := ID{Category: "functions", Bucket: 16}
	assert.Equal(t, "functions_10", id.String())

	parsed, err := ParseID("functions_10")
	require.NoError(t, err)
	assert.Equal(t, id, parsed)

	parsed, err = ParseID("enum_values_1f")
	require.NoError(t, err)
	assert.Equal(t, ID{Category: "enum_values", Bucket: 31}, parsed)

	for _, bad := range []string{"", "functions", "_10", "functions_", "functions_zz"} {
		_, err := ParseID(bad)
		assert.ErrorIs(t, err, apperrors.ErrInvalidInput, bad)
	}
}

func TestNewRejectsUnsorted(t *testing.T) {
	_, err := New(ID{Category: "classes"}, []symbol.Entry{entry("Vector"), entry("Array")})
	assert.ErrorIs(t, err, apperrors.ErrInvalidShard)
}

func TestNewCopiesEntries(t *testing.T) {
	entries := []symbol.Entry{entry("Array"), entry("Vector")}
	s, err := New(ID{Category: "classes"}, entries)
	require.NoError(t, err)
	entries[0] = entry("Zeta")
	assert.Equal(t, "array", s.Entry(0).Key)
}

func TestLookupPrefix(t *testing.T) {
	s, err := New(ID{Category: "classes", Bucket: 0x15}, []symbol.Entry{
		entry("Value"),
		entry("Vec"),
		entry("Vector"),
		entry("VectorIterator"),
		entry("Vertex"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"vec", "vector", "vectoriterator"}, keys(s.LookupPrefix("vec")))
	assert.Equal(t, []string{"vector", "vectoriterator"}, keys(s.LookupPrefix("vecto")))
	assert.Empty(t, s.LookupPrefix("w"))
	assert.Empty(t, s.LookupPrefix("a"))
	assert.Len(t, s.LookupPrefix(""), 5)
}

func TestLookupSubstring(t *testing.T) {
	s, err := New(ID{Category: "classes"}, []symbol.Entry{
		entry("Iterator"),
		entry("Vector"),
		entry("VectorIterator"),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"iterator", "vector", "vectoriterator"}, keys(s.LookupSubstring("tor")))
	assert.Equal(t, []string{"iterator", "vectoriterator"}, keys(s.LookupSubstring("iter")))
	assert.Empty(t, s.LookupSubstring("xyz"))
}
