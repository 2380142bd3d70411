// Package shard provides the immutable, key-sorted bucket of search entries
// that is the unit of lazy loading, and the identifier type naming it.
package shard

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// ID names a shard by category and bucket. Its string form is
// "<category>_<hex bucket>", e.g. "functions_10".
type ID struct {
	Category string
	Bucket   int
}

func (id ID) String() string {
	return fmt.Sprintf("%s_%x", id.Category, id.Bucket)
}

// MarshalText implements encoding.TextMarshaler so IDs serialize as strings.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	parsed, err := ParseID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseID parses the canonical string form of an ID.
func ParseID(s string) (ID, error) {
	i := strings.LastIndexByte(s, '_')
	if i <= 0 || i == len(s)-1 {
		return ID{}, fmt.Errorf("%w: malformed shard id %q", apperrors.ErrInvalidInput, s)
	}
	bucket, err := strconv.ParseInt(s[i+1:], 16, 32)
	if err != nil || bucket < 0 {
		return ID{}, fmt.Errorf("%w: malformed shard bucket in %q", apperrors.ErrInvalidInput, s)
	}
	return ID{Category: s[:i], Bucket: int(bucket)}, nil
}

// Shard is an immutable sequence of entries sorted by key.
type Shard struct {
	id      ID
	entries []symbol.Entry
}

// New validates entries and returns a Shard owning a copy of them. Entries
// must already be sorted by key.
func New(id ID, entries []symbol.Entry) (*Shard, error) {
	for i := range entries {
		if err := entries[i].Validate(); err != nil {
			return nil, fmt.Errorf("shard %s entry %d: %w", id, i, err)
		}
		if i > 0 && entries[i-1].Key > entries[i].Key {
			return nil, fmt.Errorf("%w: shard %s is not sorted at entry %d (%q > %q)",
				apperrors.ErrInvalidShard, id, i, entries[i-1].Key, entries[i].Key)
		}
	}
	owned := make([]symbol.Entry, len(entries))
	copy(owned, entries)
	return &Shard{id: id, entries: owned}, nil
}

func (s *Shard) ID() ID {
	return s.id
}

func (s *Shard) Len() int {
	return len(s.entries)
}

// Entry returns the i-th entry in shard order.
func (s *Shard) Entry(i int) symbol.Entry {
	return s.entries[i]
}

// LookupPrefix returns, in shard order, every entry whose key starts with
// the normalized prefix: a lower-bound binary search followed by a scan
// that stops at the first non-matching key.
func (s *Shard) LookupPrefix(prefix string) []symbol.Entry {
	start := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Key >= prefix
	})
	var out []symbol.Entry
	for i := start; i < len(s.entries); i++ {
		if !strings.HasPrefix(s.entries[i].Key, prefix) {
			break
		}
		out = append(out, s.entries[i])
	}
	return out
}

// LookupSubstring returns, in shard order, every entry whose key contains
// the normalized text anywhere.
func (s *Shard) LookupSubstring(text string) []symbol.Entry {
	var out []symbol.Entry
	for i := range s.entries {
		if strings.Contains(s.entries[i].Key, text) {
			out = append(out, s.entries[i])
		}
	}
	return out
}
