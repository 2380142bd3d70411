package codec

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/docsearch/internal/symbol"
	apperrors "github.com/Adithya-Monish-Kumar-K/docsearch/pkg/errors"
)

// MagicBytes identifies a valid .seg shard file.
const (
	MagicBytes    uint32 = 0x44535347
	FormatVersion uint32 = 1
	HeaderSize    int    = 32
	FooterSize    int    = 8
)

// SegmentHeader is the 32-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic      uint32
	Version    uint32
	EntryCount uint32
	Reserved   uint32
	CreatedAt  int64
	BodySize   int64
}

// EncodeSegment writes entries as a segment: header, JSON entry table and a
// footer holding the CRC32 of the table and the entry count again.
func EncodeSegment(w io.Writer, entries []symbol.Entry) error {
	body, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshaling entries: %w", err)
	}
	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(entries)))
	binary.LittleEndian.PutUint64(header[16:24], uint64(time.Now().Unix()))
	binary.LittleEndian.PutUint64(header[24:32], uint64(len(body)))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(body))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(entries)))

	for _, part := range [][]byte{header, body, footer} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("writing segment: %w", err)
		}
	}
	return nil
}

// WriteSegmentFile atomically creates path containing the encoded entries.
// It writes to a .tmp file first and renames on success.
func WriteSegmentFile(path string, entries []symbol.Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating segment directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	if err := EncodeSegment(f, entries); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming segment file: %w", err)
	}
	return nil
}

// ReadHeader parses and checks the segment header.
func ReadHeader(data []byte) (SegmentHeader, error) {
	if len(data) < HeaderSize+FooterSize {
		return SegmentHeader{}, fmt.Errorf("%w: segment too short (%d bytes)", apperrors.ErrInvalidShard, len(data))
	}
	h := SegmentHeader{
		Magic:      binary.LittleEndian.Uint32(data[0:4]),
		Version:    binary.LittleEndian.Uint32(data[4:8]),
		EntryCount: binary.LittleEndian.Uint32(data[8:12]),
		Reserved:   binary.LittleEndian.Uint32(data[12:16]),
		CreatedAt:  int64(binary.LittleEndian.Uint64(data[16:24])),
		BodySize:   int64(binary.LittleEndian.Uint64(data[24:32])),
	}
	if h.Magic != MagicBytes {
		return h, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrInvalidShard, h.Magic)
	}
	if h.Version != FormatVersion {
		return h, fmt.Errorf("%w: unsupported segment version %d", apperrors.ErrInvalidShard, h.Version)
	}
	if h.BodySize != int64(len(data)-HeaderSize-FooterSize) {
		return h, fmt.Errorf("%w: body size %d does not match payload", apperrors.ErrInvalidShard, h.BodySize)
	}
	return h, nil
}

// DecodeSegment parses a segment payload and verifies its checksum.
func DecodeSegment(data []byte) ([]symbol.Entry, error) {
	h, err := ReadHeader(data)
	if err != nil {
		return nil, err
	}
	body := data[HeaderSize : HeaderSize+int(h.BodySize)]
	footer := data[HeaderSize+int(h.BodySize):]
	if sum := binary.LittleEndian.Uint32(footer[0:4]); sum != crc32.ChecksumIEEE(body) {
		return nil, fmt.Errorf("%w: checksum mismatch", apperrors.ErrInvalidShard)
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	var entries []symbol.Entry
	if err := dec.Decode(&entries); err != nil {
		return nil, fmt.Errorf("%w: parsing entry table: %v", apperrors.ErrInvalidShard, err)
	}
	if uint32(len(entries)) != h.EntryCount {
		return nil, fmt.Errorf("%w: header says %d entries, table has %d",
			apperrors.ErrInvalidShard, h.EntryCount, len(entries))
	}
	return entries, nil
}
