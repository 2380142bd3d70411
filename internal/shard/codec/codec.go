// Package codec decodes shard payloads fetched from an index source into
// shard.Shard values. Two encodings are supported: the Doxygen searchData
// JavaScript files emitted next to generated HTML manuals, and the binary
// segment format written by shardpack.
package codec

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/shard"
	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// Format identifies a shard payload encoding.
type Format string

const (
	FormatDoxygen Format = "doxygen"
	FormatSegment Format = "segment"
)

// Extension returns the file extension used for the format.
func (f Format) Extension() string {
	switch f {
	case FormatSegment:
		return ".seg"
	default:
		return ".js"
	}
}

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatDoxygen, FormatSegment:
		return Format(s), nil
	}
	return "", fmt.Errorf("%w: unknown shard format %q", apperrors.ErrInvalidInput, s)
}

// Decode parses data in the given format into a Shard. kind is applied to
// entries whose encoding does not carry one.
func Decode(format Format, id shard.ID, kind symbol.Kind, data []byte) (*shard.Shard, error) {
	var (
		entries []symbol.Entry
		err     error
	)
	switch format {
	case FormatDoxygen:
		entries, err = DecodeDoxygen(data, kind)
	case FormatSegment:
		entries, err = DecodeSegment(data)
	default:
		return nil, fmt.Errorf("%w: unknown shard format %q", apperrors.ErrInvalidInput, format)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding shard %s: %w", id, err)
	}
	return shard.New(id, entries)
}
