package query

import (
	"sort"
	"unicode/utf8"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
)

// score puts every prefix match above every substring match; within a tier
// shorter display names (in runes) score higher. Both terms stay in (0, 1] so the tiers
// never overlap.
func score(t MatchType, displayName string) float64 {
	closeness := 1 / float64(1+utf8.RuneCountInString(displayName))
	if t == PrefixMatch {
		return 1 + closeness
	}
	return closeness
}

// rank orders matches by descending score, keeping collection order for
// ties, then drops later rows whose (key, kind) was already seen.
func rank(matches []Match) []Match {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	seen := make(map[symbol.Identity]struct{}, len(matches))
	out := matches[:0]
	for _, m := range matches {
		id := m.Entry.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, m)
	}
	return out
}
