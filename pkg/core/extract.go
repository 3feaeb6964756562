package core

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"csa/pkg/codec"
	"csa/pkg/format"
)

// Browse parses the archive's trailing index and projects it into a
// virtual directory tree. No blob byte is read or decoded; the tree
// carries names, sizes, and ratios straight from the index.
func Browse(archive string) (*format.Node, error) {
	idx, _, _, err := format.ReadIndex(archive)
	if err != nil {
		return nil, err
	}
	return format.BuildTree(idx), nil
}

// ExtractOne decodes a single entry and returns the original bytes.
// Only that entry's blob is read; no other entry is touched. The
// decoded length must equal the recorded original size, and when the
// entry carries a content digest it must match too — otherwise the
// extraction fails with *IntegrityError.
func ExtractOne(archive, rel string) ([]byte, error) {
	idx, _, _, err := format.ReadIndex(archive)
	if err != nil {
		return nil, err
	}
	entry, ok := idx[rel]
	if !ok {
		return nil, fmt.Errorf("%s: %w", rel, ErrNotFound)
	}

	f, err := os.Open(archive)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	blob := make([]byte, entry.CompSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, entry.Start, int64(entry.CompSize)), blob); err != nil {
		return nil, fmt.Errorf("read blob for %s: %w", rel, err)
	}

	decoded, err := codec.Decode(entry.Method, blob, int(entry.OrigSize))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", rel, err)
	}
	if uint64(len(decoded)) != entry.OrigSize {
		return nil, &IntegrityError{
			Path:   rel,
			Reason: fmt.Sprintf("decoded %d bytes, index records %d", len(decoded), entry.OrigSize),
		}
	}
	if entry.Sum != "" {
		sum := blake3.Sum256(decoded)
		if hex.EncodeToString(sum[:]) != entry.Sum {
			return nil, &IntegrityError{Path: rel, Reason: "content digest mismatch"}
		}
	}
	return decoded, nil
}
