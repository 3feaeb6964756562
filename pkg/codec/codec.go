// Package codec provides the per-file compression codecs and the
// registry that maps persisted method ids to encode/decode pairs.
//
// Method ids are stored in the archive index, so a reader can decode
// any blob without knowing the selection policy that chose the codec.
// The ids are protocol constants; renumbering them breaks every
// existing archive.
package codec

import (
	"fmt"
)

// Method identifies the codec that produced (and must decode) a blob.
type Method uint8

const (
	// MethodRaster is the domain-specific transform for 16-bit
	// grayscale raster data (DICOM pixel payloads): context-adaptive
	// predictor, zigzag-mapped residuals, zlib.
	MethodRaster Method = 1

	// MethodLZMA is xz/LZMA2, the text default. Slow, best ratio.
	MethodLZMA Method = 2

	// MethodZlib is zlib level 9, the generic default.
	MethodZlib Method = 3

	// MethodStore is the identity codec. Always registered, so the
	// archive can hold any file even when every other codec fails or
	// is inappropriate.
	MethodStore Method = 4

	// MethodFold is the block-mean folding transform: coarse
	// delta-of-means stream plus per-block residuals, each snappy
	// compressed.
	MethodFold Method = 5

	// MethodLZ4 is LZ4 block compression, the fast default for large
	// binary payloads.
	MethodLZ4 Method = 6

	// MethodZstd is zstd at the default level, used for large text
	// where LZMA is too slow.
	MethodZstd Method = 7
)

// String returns the codec's short name.
func (m Method) String() string {
	switch m {
	case MethodRaster:
		return "raster"
	case MethodLZMA:
		return "lzma"
	case MethodZlib:
		return "zlib"
	case MethodStore:
		return "store"
	case MethodFold:
		return "fold"
	case MethodLZ4:
		return "lz4"
	case MethodZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// Codec is one encode/decode pair. Implementations are pure and
// stateless: Encode is deterministic, and Decode(Encode(x), len(x))
// returns x for every byte sequence, including the empty one.
// originalSize is the exact decoded length; codecs that cannot infer
// the output length from the blob alone rely on it.
type Codec interface {
	Method() Method
	Encode(data []byte) ([]byte, error)
	Decode(blob []byte, originalSize int) ([]byte, error)
}

// ErrIncompressible is returned by Encode when the codec determines
// the output would not be smaller than the input. Callers fall back to
// MethodStore and persist that id instead.
var ErrIncompressible = fmt.Errorf("codec: data is incompressible")

var registry = map[Method]Codec{}

func register(c Codec) {
	if _, dup := registry[c.Method()]; dup {
		panic(fmt.Sprintf("codec: duplicate registration for method %d", c.Method()))
	}
	registry[c.Method()] = c
}

// Lookup returns the codec registered for a method id.
func Lookup(m Method) (Codec, error) {
	c, ok := registry[m]
	if !ok {
		return nil, fmt.Errorf("codec: no codec registered for method %d", uint8(m))
	}
	return c, nil
}

// Encode compresses data with the named method.
func Encode(m Method, data []byte) ([]byte, error) {
	c, err := Lookup(m)
	if err != nil {
		return nil, err
	}
	return c.Encode(data)
}

// Decode decompresses a blob produced by the named method and verifies
// nothing beyond what the codec itself embeds; length verification
// against the index is the caller's job.
func Decode(m Method, blob []byte, originalSize int) ([]byte, error) {
	c, err := Lookup(m)
	if err != nil {
		return nil, err
	}
	return c.Decode(blob, originalSize)
}

// Methods returns all registered method ids in ascending order.
func Methods() []Method {
	out := make([]Method, 0, len(registry))
	for m := Method(0); m < 32; m++ {
		if _, ok := registry[m]; ok {
			out = append(out, m)
		}
	}
	return out
}
