// Package symbol defines the indexed unit of the documentation search index
// and the key normalization shared by entries and queries.
package symbol

import (
	"fmt"

	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Kind is the category of an indexed symbol, used for grouping and icon
// selection by renderers.
type Kind string

const (
	KindClass     Kind = "class"
	KindStruct    Kind = "struct"
	KindUnion     Kind = "union"
	KindNamespace Kind = "namespace"
	KindFile      Kind = "file"
	KindFunction  Kind = "function"
	KindVariable  Kind = "variable"
	KindTypedef   Kind = "typedef"
	KindEnum      Kind = "enum"
	KindEnumValue Kind = "enumvalue"
	KindDefine    Kind = "define"
	KindRelated   Kind = "related"
	KindGroup     Kind = "group"
	KindPage      Kind = "page"
	KindUnknown   Kind = "unknown"
)

// categoryKinds maps Doxygen search section names to kinds.
var categoryKinds = map[string]Kind{
	"classes":      KindClass,
	"structs":      KindStruct,
	"unions":       KindUnion,
	"namespaces":   KindNamespace,
	"files":        KindFile,
	"functions":    KindFunction,
	"variables":    KindVariable,
	"typedefs":     KindTypedef,
	"enums":        KindEnum,
	"enumvalues":   KindEnumValue,
	"defines":      KindDefine,
	"related":      KindRelated,
	"groups":       KindGroup,
	"pages":        KindPage,
	"properties":   KindVariable,
	"events":       KindFunction,
	"concepts":     KindClass,
	"modules":      KindGroup,
	"interfaces":   KindClass,
	"exceptions":   KindClass,
	"dictionaries": KindClass,
}

// KindForCategory returns the kind for a shard category name.
func KindForCategory(category string) Kind {
	if k, ok := categoryKinds[category]; ok {
		return k
	}
	return KindUnknown
}

// Target is one navigable location of a symbol: one per overload or
// occurrence of the same name.
type Target struct {
	LocationURL    string `json:"location_url" yaml:"locationUrl"`
	ContainerLabel string `json:"container_label" yaml:"containerLabel"`
	// External targets live outside the manual and open in a new window.
	External bool `json:"external,omitempty" yaml:"external,omitempty"`
}

// Entry is one indexed symbol. Entries sharing a key and kind are merged
// into one Entry with several targets by the index producer.
type Entry struct {
	Key         string   `json:"key"`
	DisplayName string   `json:"display_name"`
	Targets     []Target `json:"targets"`
	Kind        Kind     `json:"kind"`
}

// NewEntry builds an entry whose key is derived from displayName.
func NewEntry(displayName string, kind Kind, targets ...Target) Entry {
	return Entry{
		Key:         Normalize(displayName),
		DisplayName: displayName,
		Targets:     targets,
		Kind:        kind,
	}
}

// Identity is the (key, kind) pair that identifies an entry across shards.
type Identity struct {
	Key  string
	Kind Kind
}

func (e Entry) Identity() Identity {
	return Identity{Key: e.Key, Kind: e.Kind}
}

// Validate checks the entry invariants.
func (e Entry) Validate() error {
	if e.Key == "" {
		return fmt.Errorf("%w: entry %q has an empty key", apperrors.ErrInvalidShard, e.DisplayName)
	}
	if want := Normalize(e.DisplayName); e.Key != want {
		return fmt.Errorf("%w: entry key %q does not match display name %q (want %q)",
			apperrors.ErrInvalidShard, e.Key, e.DisplayName, want)
	}
	if len(e.Targets) == 0 {
		return fmt.Errorf("%w: entry %q has no targets", apperrors.ErrInvalidShard, e.Key)
	}
	return nil
}
