// Package format defines the .csa container layout: the fixed header,
// the trailing JSON index, and the read-only index parser.
//
// Layout:
//
//	offset 0, 3 bytes  magic "CSA"
//	offset 3, 4 bytes  index size, uint32 little-endian
//	offset 7           concatenated compressed blobs
//	size - index size  JSON index (path -> entry)
//
// The integer encoding is little-endian everywhere and never varies per
// archive. An archive is parseable only once the index size field has
// been patched with the real index length; until then the field holds
// zero.
package format

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"csa/pkg/codec"
)

const (
	// Magic identifies a .csa archive. Three bytes, always at offset 0.
	Magic = "CSA"

	// HeaderSize is the byte length of magic plus the index size field.
	// Blob offsets are always >= HeaderSize.
	HeaderSize = 7
)

// Entry locates one stored file inside an archive. Offsets are absolute
// file offsets; sizes are exact byte counts. The JSON field names are
// protocol constants.
type Entry struct {
	Start    int64        `json:"start"`
	CompSize uint64       `json:"comp_size"`
	OrigSize uint64       `json:"orig_size"`
	Method   codec.Method `json:"method"`

	// Sum is the hex blake3-256 digest of the original file bytes.
	// Optional: archives written by older tools omit it, and extraction
	// then falls back to the length check alone.
	Sum string `json:"sum,omitempty"`
}

// Index maps normalized relative paths (forward slashes) to entries.
// Keys are unique within one archive.
type Index map[string]Entry

// WriteHeader writes the placeholder header: magic bytes followed by a
// zero index size. The size field is patched during finalize.
func WriteHeader(w io.Writer) error {
	if _, err := w.Write([]byte(Magic)); err != nil {
		return fmt.Errorf("write magic: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(0)); err != nil {
		return fmt.Errorf("write index size placeholder: %w", err)
	}
	return nil
}

// PatchIndexSize seeks back to the header's size field and writes the
// final index length, then restores nothing: callers are done writing
// once they patch.
func PatchIndexSize(ws io.WriteSeeker, indexSize uint32) error {
	if _, err := ws.Seek(3, io.SeekStart); err != nil {
		return fmt.Errorf("seek index size field: %w", err)
	}
	if err := binary.Write(ws, binary.LittleEndian, indexSize); err != nil {
		return fmt.Errorf("patch index size: %w", err)
	}
	return nil
}

// EncodeIndex serializes the index as compact JSON. encoding/json
// marshals map keys in sorted order, so the encoding is deterministic
// for a given index.
func EncodeIndex(idx Index) ([]byte, error) {
	b, err := json.Marshal(idx)
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	return b, nil
}
