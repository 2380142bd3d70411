package query

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
)

func sortEntries(entries []symbol.Entry) {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
}
