package index

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard/codec"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Route declares which leading characters a shard can hold. A route with Any
// set is consulted for every non-empty query; Doxygen uses such buckets for
// keys that start with punctuation (destructors, operators).
type Route struct {
	ID    shard.ID
	Kind  symbol.Kind
	Chars string
	Any   bool
}

// Manifest is the read-only mapping from a query's first normalized rune to
// the shards that can contain matches. Several routes may cover the same
// rune and one route may cover many.
type Manifest struct {
	format codec.Format
	routes []Route
	byRune map[rune][]int
	any    []int
	byID   map[shard.ID]int
}

// NewManifest indexes routes. Route order is preserved and decides the order
// in which resolved shards are searched.
func NewManifest(format codec.Format, routes []Route) (*Manifest, error) {
	m := &Manifest{
		format: format,
		routes: make([]Route, len(routes)),
		byRune: make(map[rune][]int),
		byID:   make(map[shard.ID]int, len(routes)),
	}
	copy(m.routes, routes)
	for i, r := range m.routes {
		if _, dup := m.byID[r.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate shard %s in manifest", apperrors.ErrInvalidInput, r.ID)
		}
		m.byID[r.ID] = i
		if r.Any {
			m.any = append(m.any, i)
			continue
		}
		seen := make(map[rune]bool)
		for _, c := range symbol.Normalize(r.Chars) {
			if seen[c] {
				continue
			}
			seen[c] = true
			m.byRune[c] = append(m.byRune[c], i)
		}
	}
	return m, nil
}

// Format is the payload encoding of every shard in the manifest.
func (m *Manifest) Format() codec.Format {
	return m.format
}

// Routes returns a copy of the manifest routes in order.
func (m *Manifest) Routes() []Route {
	out := make([]Route, len(m.routes))
	copy(out, m.routes)
	return out
}

// Route looks up the route for a shard.
func (m *Manifest) Route(id shard.ID) (Route, bool) {
	i, ok := m.byID[id]
	if !ok {
		return Route{}, false
	}
	return m.routes[i], true
}

// ResolveShardsFor returns, in manifest order, every shard that can contain
// a key starting with the normalized prefix.
func (m *Manifest) ResolveShardsFor(prefix string) []shard.ID {
	first, ok := symbol.FirstRune(symbol.Normalize(prefix))
	if !ok {
		return nil
	}
	idx := append(append([]int(nil), m.byRune[first]...), m.any...)
	sort.Ints(idx)
	out := make([]shard.ID, len(idx))
	for i, r := range idx {
		out[i] = m.routes[r].ID
	}
	return out
}

// ParseManifest picks the manifest decoder from the file name: Doxygen
// searchdata.js or a YAML manifest.
func ParseManifest(name string, data []byte) (*Manifest, error) {
	if strings.HasSuffix(name, ".js") {
		return ParseDoxygenManifest(data)
	}
	return ParseYAMLManifest(data)
}

// ParseDoxygenManifest reads indexSectionsWithContent and indexSectionNames
// from a Doxygen searchdata.js. Shard <name>_<hex i> holds keys starting with
// the i-th character of the section's content string. The "all" section is
// skipped: it repeats every other section without a kind.
func ParseDoxygenManifest(data []byte) (*Manifest, error) {
	contents, err := jsStringMap(data, "indexSectionsWithContent")
	if err != nil {
		return nil, err
	}
	names, err := jsStringMap(data, "indexSectionNames")
	if err != nil {
		return nil, err
	}

	sections := make([]int, 0, len(names))
	for k := range names {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("%w: section key %q is not a number", apperrors.ErrInvalidShard, k)
		}
		sections = append(sections, n)
	}
	sort.Ints(sections)

	var routes []Route
	for _, n := range sections {
		key := strconv.Itoa(n)
		name := names[key]
		if name == "all" {
			continue
		}
		kind := symbol.KindForCategory(name)
		for bucket, c := range []rune(contents[key]) {
			route := Route{ID: shard.ID{Category: name, Bucket: bucket}, Kind: kind}
			if c == '_' || unicode.IsLetter(c) || unicode.IsDigit(c) {
				route.Chars = string(unicode.ToLower(c))
			} else {
				route.Any = true
			}
			routes = append(routes, route)
		}
	}
	return NewManifest(codec.FormatDoxygen, routes)
}

func jsStringMap(data []byte, name string) (map[string]string, error) {
	v, err := codec.ParseJSVar(data, name)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s is not an object", apperrors.ErrInvalidShard, name)
	}
	out := make(map[string]string, len(obj))
	for k, val := range obj {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s[%s] is not a string", apperrors.ErrInvalidShard, name, k)
		}
		out[k] = s
	}
	return out, nil
}

// ManifestFile is the YAML form of a manifest.
type ManifestFile struct {
	Format string       `yaml:"format"`
	Shards []RouteEntry `yaml:"shards"`
}

// RouteEntry is one route in a ManifestFile.
type RouteEntry struct {
	ID    string `yaml:"id"`
	Kind  string `yaml:"kind"`
	Chars string `yaml:"chars,omitempty"`
	Any   bool   `yaml:"any,omitempty"`
}

// ParseYAMLManifest decodes a ManifestFile.
func ParseYAMLManifest(data []byte) (*Manifest, error) {
	var f ManifestFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: parsing manifest: %v", apperrors.ErrInvalidInput, err)
	}
	format, err := codec.ParseFormat(f.Format)
	if err != nil {
		return nil, err
	}
	routes := make([]Route, 0, len(f.Shards))
	for _, s := range f.Shards {
		id, err := shard.ParseID(s.ID)
		if err != nil {
			return nil, err
		}
		routes = append(routes, Route{ID: id, Kind: symbol.Kind(s.Kind), Chars: s.Chars, Any: s.Any})
	}
	return NewManifest(format, routes)
}

// File converts the manifest to its YAML form.
func (m *Manifest) File() ManifestFile {
	f := ManifestFile{Format: string(m.format), Shards: make([]RouteEntry, len(m.routes))}
	for i, r := range m.routes {
		f.Shards[i] = RouteEntry{ID: r.ID.String(), Kind: string(r.Kind), Chars: r.Chars, Any: r.Any}
	}
	return f
}

// MarshalYAML encodes the manifest as a ManifestFile.
func (m *Manifest) MarshalYAML() (any, error) {
	return m.File(), nil
}
