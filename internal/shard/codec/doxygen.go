package codec

import (
	"fmt"
	"html"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// DecodeDoxygen parses a Doxygen search shard:
//
//	var searchData=
//	[
//	  ['rawassign',['RawAssign',['../class_generic_value.html#abb8e...',1,'GenericValue']]],
//	  ...
//	];
//
// Each row is [escapedKey, [displayName, target...]] and each target is
// [url, local, scopeLabel]. Keys are re-derived from the display name, rows
// that normalize to the same key are merged, and the result is sorted by key.
func DecodeDoxygen(data []byte, kind symbol.Kind) ([]symbol.Entry, error) {
	v, err := ParseJSVar(data, "searchData")
	if err != nil {
		return nil, err
	}
	rows, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: searchData is not an array", apperrors.ErrInvalidShard)
	}

	entries := make([]symbol.Entry, 0, len(rows))
	byKey := make(map[string]int, len(rows))
	for i, raw := range rows {
		e, err := doxygenRow(raw, kind)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		if e.Key == "" {
			continue
		}
		if at, dup := byKey[e.Key]; dup {
			entries[at].Targets = append(entries[at].Targets, e.Targets...)
			continue
		}
		byKey[e.Key] = len(entries)
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})
	return entries, nil
}

func doxygenRow(raw any, kind symbol.Kind) (symbol.Entry, error) {
	row, ok := raw.([]any)
	if !ok || len(row) < 2 {
		return symbol.Entry{}, fmt.Errorf("%w: row is not [key, item]", apperrors.ErrInvalidShard)
	}
	item, ok := row[1].([]any)
	if !ok || len(item) < 2 {
		return symbol.Entry{}, fmt.Errorf("%w: item is not [name, target...]", apperrors.ErrInvalidShard)
	}
	name, ok := item[0].(string)
	if !ok {
		return symbol.Entry{}, fmt.Errorf("%w: display name is not a string", apperrors.ErrInvalidShard)
	}
	name = html.UnescapeString(name)

	targets := make([]symbol.Target, 0, len(item)-1)
	for _, t := range item[1:] {
		target, err := doxygenTarget(t)
		if err != nil {
			return symbol.Entry{}, fmt.Errorf("%q: %w", name, err)
		}
		targets = append(targets, target)
	}
	return symbol.NewEntry(name, kind, targets...), nil
}

func doxygenTarget(raw any) (symbol.Target, error) {
	t, ok := raw.([]any)
	if !ok || len(t) == 0 {
		return symbol.Target{}, fmt.Errorf("%w: target is not an array", apperrors.ErrInvalidShard)
	}
	url, ok := t[0].(string)
	if !ok || url == "" {
		return symbol.Target{}, fmt.Errorf("%w: target url missing", apperrors.ErrInvalidShard)
	}
	target := symbol.Target{LocationURL: url}
	if len(t) > 1 {
		if local, ok := t[1].(int64); ok && local == 0 {
			target.External = true
		}
	}
	if len(t) > 2 {
		if label, ok := t[2].(string); ok {
			target.ContainerLabel = html.UnescapeString(label)
		}
	}
	return target, nil
}
