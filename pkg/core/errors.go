package core

import (
	"fmt"
)

// ScanError reports an unusable root path. It aborts a session before
// any worker is spawned; no partial archive is started.
type ScanError struct {
	Root string
	Err  error
}

func (e *ScanError) Error() string { return fmt.Sprintf("scan %s: %v", e.Root, e.Err) }

func (e *ScanError) Unwrap() error { return e.Err }

// CompressionError reports a single failed file. The batch continues;
// the path ends up in the session summary, never silently dropped.
type CompressionError struct {
	Path string
	Err  error
}

func (e *CompressionError) Error() string { return fmt.Sprintf("compress %s: %v", e.Path, e.Err) }

func (e *CompressionError) Unwrap() error { return e.Err }

// IntegrityError reports an extraction whose decoded bytes do not
// match the index entry (wrong length or wrong content digest).
type IntegrityError struct {
	Path   string
	Reason string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity check failed for %s: %s", e.Path, e.Reason)
}

// ErrNotFound is returned when a requested path has no index entry.
var ErrNotFound = fmt.Errorf("path not present in archive")
