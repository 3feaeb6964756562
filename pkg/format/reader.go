package format

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// CorruptArchiveError reports a structurally unusable archive: bad
// magic, an index size inconsistent with the file size, an index that
// does not parse, or entries pointing outside the blob region. The
// index is required to locate any blob, so these are never partially
// recovered.
type CorruptArchiveError struct {
	Path   string
	Reason string
}

func (e *CorruptArchiveError) Error() string {
	return fmt.Sprintf("corrupt archive %s: %s", e.Path, e.Reason)
}

// ReadIndex opens the archive, validates the header, and parses the
// trailing index. Blob bytes are never touched. The returned file size
// and index size let callers compute the blob-region end
// (fileSize - indexSize), which the appender truncates at.
func ReadIndex(path string) (Index, int64, uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("stat archive: %w", err)
	}
	fileSize := info.Size()
	if fileSize < HeaderSize {
		return nil, 0, 0, &CorruptArchiveError{Path: path, Reason: "file shorter than header"}
	}

	var header [HeaderSize]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return nil, 0, 0, fmt.Errorf("read header: %w", err)
	}
	if string(header[:3]) != Magic {
		return nil, 0, 0, &CorruptArchiveError{
			Path:   path,
			Reason: fmt.Sprintf("bad magic %q", header[:3]),
		}
	}
	indexSize := binary.LittleEndian.Uint32(header[3:])
	if indexSize == 0 {
		return nil, 0, 0, &CorruptArchiveError{Path: path, Reason: "archive was never finalized (index size is zero)"}
	}
	if int64(indexSize) > fileSize-HeaderSize {
		return nil, 0, 0, &CorruptArchiveError{
			Path:   path,
			Reason: fmt.Sprintf("index size %d exceeds file size %d", indexSize, fileSize),
		}
	}

	indexStart := fileSize - int64(indexSize)
	raw := make([]byte, indexSize)
	if _, err := f.ReadAt(raw, indexStart); err != nil {
		return nil, 0, 0, fmt.Errorf("read index: %w", err)
	}

	var idx Index
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, 0, 0, &CorruptArchiveError{
			Path:   path,
			Reason: fmt.Sprintf("index does not parse: %v", err),
		}
	}

	for rel, entry := range idx {
		if entry.Start < HeaderSize || entry.Start > indexStart {
			return nil, 0, 0, &CorruptArchiveError{
				Path:   path,
				Reason: fmt.Sprintf("entry %q starts outside the blob region (offset %d)", rel, entry.Start),
			}
		}
		// Compare in unsigned space: comp_size comes straight from the
		// JSON and a value past 2^63 would wrap negative under int64,
		// slipping through a signed bound.
		if entry.CompSize > uint64(indexStart-entry.Start) {
			return nil, 0, 0, &CorruptArchiveError{
				Path:   path,
				Reason: fmt.Sprintf("entry %q overlaps the trailing index", rel),
			}
		}
	}

	return idx, fileSize, indexSize, nil
}
