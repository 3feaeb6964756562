package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/ulikunitz/xz"
)

func init() {
	register(storeCodec{})
	register(zlibCodec{})
	register(lzmaCodec{})
	register(lz4Codec{})
	register(zstdCodec{})
}

// storeCodec is the identity transform. It never fails and never
// shrinks anything.
type storeCodec struct{}

func (storeCodec) Method() Method { return MethodStore }

func (storeCodec) Encode(data []byte) ([]byte, error) { return data, nil }

func (storeCodec) Decode(blob []byte, originalSize int) ([]byte, error) {
	if len(blob) != originalSize {
		return nil, fmt.Errorf("store: blob is %d bytes, expected %d", len(blob), originalSize)
	}
	return blob, nil
}

// zlibCodec deflates at level 9, matching the archives written by the
// original tooling.
type zlibCodec struct{}

func (zlibCodec) Method() Method { return MethodZlib }

func (zlibCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := zlib.NewWriterLevel(&buf, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("zlib writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("zlib compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib close: %w", err)
	}
	return buf.Bytes(), nil
}

func (zlibCodec) Decode(blob []byte, originalSize int) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("zlib reader: %w", err)
	}
	defer zr.Close()
	out := bytes.NewBuffer(make([]byte, 0, originalSize))
	if _, err := io.Copy(out, zr); err != nil {
		return nil, fmt.Errorf("zlib decompress: %w", err)
	}
	return out.Bytes(), nil
}

// lzmaCodec wraps the payload in an xz container. Used for text, where
// the large dictionary pays off.
type lzmaCodec struct{}

func (lzmaCodec) Method() Method { return MethodLZMA }

func (lzmaCodec) Encode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	xw, err := xz.NewWriter(&buf)
	if err != nil {
		return nil, fmt.Errorf("xz writer: %w", err)
	}
	if _, err := xw.Write(data); err != nil {
		return nil, fmt.Errorf("xz compress: %w", err)
	}
	if err := xw.Close(); err != nil {
		return nil, fmt.Errorf("xz close: %w", err)
	}
	return buf.Bytes(), nil
}

func (lzmaCodec) Decode(blob []byte, originalSize int) ([]byte, error) {
	xr, err := xz.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("xz reader: %w", err)
	}
	out := bytes.NewBuffer(make([]byte, 0, originalSize))
	if _, err := io.Copy(out, xr); err != nil {
		return nil, fmt.Errorf("xz decompress: %w", err)
	}
	return out.Bytes(), nil
}

// lz4Codec uses block-mode LZ4. The decoded size comes from the index
// entry, so the blob carries no frame header.
type lz4Codec struct{}

func (lz4Codec) Method() Method { return MethodLZ4 }

func (lz4Codec) Encode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrIncompressible
	}
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 when the input is incompressible.
	if n == 0 || n >= len(data) {
		return nil, ErrIncompressible
	}
	return dst[:n], nil
}

func (lz4Codec) Decode(blob []byte, originalSize int) ([]byte, error) {
	if originalSize == 0 {
		return []byte{}, nil
	}
	dst := make([]byte, originalSize)
	n, err := lz4.UncompressBlock(blob, dst)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if n != originalSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, originalSize)
	}
	return dst, nil
}

// zstdCodec: shared encoder/decoder, both safe for concurrent use, so
// worker threads can all funnel through the same pair.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

type zstdCodec struct{}

func (zstdCodec) Method() Method { return MethodZstd }

func (zstdCodec) Encode(data []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(data, nil), nil
}

func (zstdCodec) Decode(blob []byte, originalSize int) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(blob, make([]byte, 0, originalSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return out, nil
}
