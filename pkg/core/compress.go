package core

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"github.com/zeebo/blake3"

	"csa/pkg/codec"
)

// result is what one worker hands the writer for one task: either a
// ready-to-write blob with its metadata, or the error that sank it.
type result struct {
	task     Task
	blob     []byte
	origSize uint64
	method   codec.Method
	sum      string
	err      error
}

// compressOne reads the whole file, asks the selector for a method,
// and encodes. When the chosen codec does not actually shrink the data
// (or reports it incompressible), the blob falls back to store and the
// persisted method id is store — the id always names the codec that
// really produced the bytes.
func compressOne(task Task, selector codec.Selector) result {
	raw, err := os.ReadFile(task.AbsPath)
	if err != nil {
		return result{task: task, err: &CompressionError{Path: task.RelPath, Err: err}}
	}

	sum := blake3.Sum256(raw)

	method := selector(task.AbsPath, raw)
	blob, err := codec.Encode(method, raw)
	switch {
	case errors.Is(err, codec.ErrIncompressible):
		method, blob = codec.MethodStore, raw
	case err != nil:
		return result{task: task, err: &CompressionError{
			Path: task.RelPath,
			Err:  fmt.Errorf("%s: %w", method, err),
		}}
	case len(blob) >= len(raw) && method != codec.MethodStore:
		method, blob = codec.MethodStore, raw
	}

	if Verbose {
		Logger.Printf("%s: %s %d -> %d bytes", task.RelPath, method, len(raw), len(blob))
	}
	return result{
		task:     task,
		blob:     blob,
		origSize: uint64(len(raw)),
		method:   method,
		sum:      hex.EncodeToString(sum[:]),
	}
}
