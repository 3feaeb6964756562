package core

import (
	"fmt"
	"io"
	"os"

	"csa/pkg/codec"
	"csa/pkg/format"
)

// archiveWriter is the single sink for one write or append session. It
// is the only code that touches the output handle and the in-memory
// index, so offset bookkeeping and index mutation need no locks: the
// orchestrator runs it on exactly one goroutine.
type archiveWriter struct {
	f      *os.File
	offset int64
	index  format.Index
}

// newArchiveWriter creates the output file and writes the placeholder
// header (magic plus a zero index size). The archive only becomes
// parseable at finalize, when the real size is patched in.
func newArchiveWriter(path string) (*archiveWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	if err := format.WriteHeader(f); err != nil {
		f.Close()
		return nil, err
	}
	return &archiveWriter{
		f:      f,
		offset: format.HeaderSize,
		index:  format.Index{},
	}, nil
}

// resumeArchiveWriter continues writing an archive whose trailing
// index has been truncated away. offset is the blob-region end of the
// old file; prior holds the loaded old index, which new entries merge
// into with newest-wins semantics.
func resumeArchiveWriter(f *os.File, offset int64, prior format.Index) (*archiveWriter, error) {
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek blob region end: %w", err)
	}
	index := format.Index{}
	for rel, entry := range prior {
		index[rel] = entry
	}
	return &archiveWriter{f: f, offset: offset, index: index}, nil
}

// add appends one blob and records its entry. Entries whose path is
// already present are overwritten (append sessions: newest wins; the
// superseded blob becomes unreachable dead space and is not reclaimed).
func (w *archiveWriter) add(rel string, blob []byte, origSize uint64, method codec.Method, sum string) error {
	if _, err := w.f.Write(blob); err != nil {
		return fmt.Errorf("write blob for %s: %w", rel, err)
	}
	w.index[rel] = format.Entry{
		Start:    w.offset,
		CompSize: uint64(len(blob)),
		OrigSize: origSize,
		Method:   method,
		Sum:      sum,
	}
	w.offset += int64(len(blob))
	return nil
}

// finalize serializes the index after the last blob, patches the
// header's index size field, and syncs. After finalize the invariant
// holds: index_size equals the exact trailing index length and
// file_size - index_size is the index start offset.
func (w *archiveWriter) finalize() error {
	raw, err := format.EncodeIndex(w.index)
	if err != nil {
		return err
	}
	if _, err := w.f.Write(raw); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	if err := format.PatchIndexSize(w.f, uint32(len(raw))); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("sync archive: %w", err)
	}
	return nil
}

// close releases the handle. Safe on every exit path; finalize must
// have been called first for the archive to be parseable.
func (w *archiveWriter) close() error {
	return w.f.Close()
}
