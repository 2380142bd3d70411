package symbol

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Normalize case-folds s and strips every rune that is not an identifier
// character (letter, digit or underscore).
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if isIdentRune(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// FirstRune returns the first rune of an already normalized string.
func FirstRune(normalized string) (rune, bool) {
	if normalized == "" {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(normalized)
	return r, true
}

// Span is a half-open byte range [Start, End) into a display name.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Empty reports whether the span covers nothing.
func (s Span) Empty() bool {
	return s.End <= s.Start
}

// MatchSpan locates the normalized query inside displayName and returns the
// byte range of displayName that produced the match. Stripped punctuation
// inside the match is covered by the span. ok is false when the normalized
// display name does not contain the query.
func MatchSpan(displayName, normalizedQuery string) (Span, bool) {
	if normalizedQuery == "" {
		return Span{}, false
	}
	var norm strings.Builder
	// starts[i] and ends[i] are the display byte range of the rune that
	// produced normalized byte i.
	starts := make([]int, 0, len(displayName))
	ends := make([]int, 0, len(displayName))
	for i, r := range displayName {
		if !isIdentRune(r) {
			continue
		}
		lower := unicode.ToLower(r)
		n := utf8.RuneLen(lower)
		end := i + utf8.RuneLen(r)
		for j := 0; j < n; j++ {
			starts = append(starts, i)
			ends = append(ends, end)
		}
		norm.WriteRune(lower)
	}
	at := strings.Index(norm.String(), normalizedQuery)
	if at < 0 {
		return Span{}, false
	}
	last := at + len(normalizedQuery) - 1
	return Span{Start: starts[at], End: ends[last]}, true
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
