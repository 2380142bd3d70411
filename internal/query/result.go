package query

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
)

// MatchType says how an entry matched the query.
type MatchType int

const (
	PrefixMatch MatchType = iota
	SubstringMatch
)

func (t MatchType) String() string {
	switch t {
	case PrefixMatch:
		return "prefix"
	case SubstringMatch:
		return "substring"
	default:
		return fmt.Sprintf("MatchType(%d)", int(t))
	}
}

func (t MatchType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *MatchType) UnmarshalText(b []byte) error {
	switch string(b) {
	case "prefix":
		*t = PrefixMatch
	case "substring":
		*t = SubstringMatch
	default:
		return fmt.Errorf("unknown match type %q", b)
	}
	return nil
}

// Match is one ResultSet row. Span is the byte range of the display name to
// highlight.
type Match struct {
	Entry symbol.Entry `json:"entry"`
	Span  symbol.Span  `json:"span"`
	Score float64      `json:"score"`
	Type  MatchType    `json:"type"`
	Shard shard.ID     `json:"shard"`
}

// ResultSet is the answer to one search. Partial is set when some candidate
// shards failed to load; their IDs are in FailedShards and the matches come
// from the shards that did load.
type ResultSet struct {
	Query        string     `json:"query"`
	Normalized   string     `json:"normalized"`
	Generation   uint64     `json:"generation"`
	Matches      []Match    `json:"matches"`
	Partial      bool       `json:"partial"`
	FailedShards []shard.ID `json:"failed_shards,omitempty"`
	Truncated    bool       `json:"truncated,omitempty"`
}

// Empty returns a ResultSet with no matches for generation.
func Empty(text string, generation uint64) *ResultSet {
	return &ResultSet{
		Query:      text,
		Normalized: symbol.Normalize(text),
		Generation: generation,
		Matches:    []Match{},
	}
}

func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Matches)
}
