package core

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"csa/pkg/format"
)

// Append adds the files under root to an existing archive. The
// mutation is staged: the archive is copied to a temp file in the same
// directory, the copy's trailing index is truncated away, new blobs
// are appended there, and only after a successful finalize does the
// copy atomically replace the original. Any failure, at any point,
// leaves the original byte-for-byte untouched.
//
// A path already present in the archive is overwritten in the index
// (newest wins); its old blob bytes remain in the file as unreferenced
// dead space.
func Append(archive, root string, opts Options) (*Session, error) {
	opts.withDefaults()

	tasks, err := ScanRoot(root)
	if err != nil {
		return nil, err
	}

	prior, fileSize, indexSize, err := format.ReadIndex(archive)
	if err != nil {
		return nil, err
	}
	blobEnd := fileSize - int64(indexSize)

	tmp, err := stageCopy(archive)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(tmp, os.O_RDWR, 0o644)
	if err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("open staged copy: %w", err)
	}

	// Discard the obsolete trailing index and zero the size field: a
	// leaked staging file must never parse as a valid archive.
	if err := f.Truncate(blobEnd); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, fmt.Errorf("truncate staged copy: %w", err)
	}
	if err := format.PatchIndexSize(f, 0); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, err
	}

	w, err := resumeArchiveWriter(f, blobEnd, prior)
	if err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, err
	}

	s := newSession(len(tasks))
	go func() {
		summary, err := s.run(tasks, w, opts)
		if err != nil {
			os.Remove(tmp)
			s.finish(summary, err)
			return
		}
		if err := os.Rename(tmp, archive); err != nil {
			os.Remove(tmp)
			s.finish(summary, fmt.Errorf("replace archive: %w", err))
			return
		}
		summary.Archive = archive
		s.finish(summary, nil)
	}()
	return s, nil
}

// stageCopy copies the archive into a temp file in the same directory,
// so the final rename stays on one filesystem.
func stageCopy(archive string) (string, error) {
	src, err := os.Open(archive)
	if err != nil {
		return "", fmt.Errorf("open archive: %w", err)
	}
	defer src.Close()

	dst, err := os.CreateTemp(filepath.Dir(archive), ".csa-append-*")
	if err != nil {
		return "", fmt.Errorf("create staging file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(dst.Name())
		return "", fmt.Errorf("stage archive copy: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(dst.Name())
		return "", fmt.Errorf("close staging file: %w", err)
	}
	Logger.Println("staged", archive, "at", dst.Name())
	return dst.Name(), nil
}
