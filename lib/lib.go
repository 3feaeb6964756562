// Package lib is the stable embedding surface for the CSA archive
// engine. GUI front ends and other hosts should depend on this package
// rather than reaching into pkg/core directly.
package lib

import (
	"csa/pkg/codec"
	"csa/pkg/core"
	"csa/pkg/format"
)

// Archive format constants re-exported from format.
const (
	Magic      = format.Magic
	HeaderSize = format.HeaderSize
)

// Engine types re-exported for hosts.
type (
	Session       = core.Session
	Options       = core.Options
	Summary       = core.Summary
	FailedFile    = core.FailedFile
	ProgressEvent = core.ProgressEvent
	Node          = format.Node
	Entry         = format.Entry
	Index         = format.Index
	Method        = codec.Method
	Selector      = codec.Selector
)

// Create packs the tree under root into a new archive at output.
func Create(root, output string, opts Options) (*Session, error) {
	return core.Create(root, output, opts)
}

// Append adds the tree under root to an existing archive, atomically.
func Append(archive, root string, opts Options) (*Session, error) {
	return core.Append(archive, root, opts)
}

// Browse returns the archive's virtual directory tree without
// decompressing anything.
func Browse(archive string) (*Node, error) {
	return core.Browse(archive)
}

// ExtractOne returns the original bytes of a single stored file.
func ExtractOne(archive, rel string) ([]byte, error) {
	return core.ExtractOne(archive, rel)
}
