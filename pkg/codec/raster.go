package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// rasterStride is the assumed row length, in samples, for the 2-D
// predictor context. DICOM pixel payloads are row-major uint16 grids;
// for data that is not actually a grid the stride neighbors simply
// contribute nothing useful and the codec degrades to a 1-D delta,
// still perfectly invertible.
const rasterStride = 256

// rasterMarker prefixes every raster blob so a decoder can reject
// blobs that were not produced by this codec.
var rasterMarker = []byte("DCM0")

func init() {
	register(rasterCodec{})
}

// rasterCodec implements the domain-specific transform: interpret the
// payload as little-endian uint16 samples, predict each sample from
// its left/up/up-left neighbors (Paeth-style selection), zigzag-map
// the signed residuals, and deflate the mapped words. A trailing odd
// byte is carried verbatim.
//
// Blob layout: "DCM0", uint32 sample count, uint8 tail flag,
// [tail byte], zlib(residual words, uint32 little-endian each).
type rasterCodec struct{}

func (rasterCodec) Method() Method { return MethodRaster }

func (rasterCodec) Encode(data []byte) ([]byte, error) {
	samples := len(data) / 2
	hasTail := len(data)%2 == 1

	residuals := make([]byte, samples*4)
	for i := 0; i < samples; i++ {
		s := int32(binary.LittleEndian.Uint16(data[i*2:]))
		pred := predictAt(data, i)
		mapped := zigzag(s - pred)
		binary.LittleEndian.PutUint32(residuals[i*4:], mapped)
	}

	var payload bytes.Buffer
	zw, err := zlib.NewWriterLevel(&payload, zlib.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("raster zlib writer: %w", err)
	}
	if _, err := zw.Write(residuals); err != nil {
		return nil, fmt.Errorf("raster compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("raster close: %w", err)
	}

	blob := bytes.NewBuffer(make([]byte, 0, len(rasterMarker)+6+payload.Len()))
	blob.Write(rasterMarker)
	binary.Write(blob, binary.LittleEndian, uint32(samples))
	if hasTail {
		blob.WriteByte(1)
		blob.WriteByte(data[len(data)-1])
	} else {
		blob.WriteByte(0)
	}
	blob.Write(payload.Bytes())
	return blob.Bytes(), nil
}

func (rasterCodec) Decode(blob []byte, originalSize int) ([]byte, error) {
	r := bytes.NewReader(blob)
	marker := make([]byte, len(rasterMarker))
	if _, err := io.ReadFull(r, marker); err != nil || !bytes.Equal(marker, rasterMarker) {
		return nil, fmt.Errorf("raster: blob marker missing")
	}
	var samples uint32
	if err := binary.Read(r, binary.LittleEndian, &samples); err != nil {
		return nil, fmt.Errorf("raster: read sample count: %w", err)
	}
	tailFlag, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("raster: read tail flag: %w", err)
	}
	var tail byte
	if tailFlag == 1 {
		if tail, err = r.ReadByte(); err != nil {
			return nil, fmt.Errorf("raster: read tail byte: %w", err)
		}
	}

	if int(samples) != originalSize/2 {
		return nil, fmt.Errorf("raster: %d samples inconsistent with original size %d", samples, originalSize)
	}

	zr, err := zlib.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("raster zlib reader: %w", err)
	}
	defer zr.Close()
	residuals := make([]byte, int(samples)*4)
	if _, err := io.ReadFull(zr, residuals); err != nil {
		return nil, fmt.Errorf("raster decompress: %w", err)
	}

	out := make([]byte, int(samples)*2)
	for i := 0; i < int(samples); i++ {
		mapped := binary.LittleEndian.Uint32(residuals[i*4:])
		pred := predictAt(out, i)
		val := pred + unzigzag(mapped)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(val))
	}
	if tailFlag == 1 {
		out = append(out, tail)
	}
	if len(out) != originalSize {
		return nil, fmt.Errorf("raster: decoded %d bytes, expected %d", len(out), originalSize)
	}
	return out, nil
}

// predictAt computes the predictor for sample i from already-known
// samples in buf (encoded-from or reconstructed-into; both sides see
// identical neighbor values, which is what makes the transform
// invertible). Out-of-range neighbors are zero.
func predictAt(buf []byte, i int) int32 {
	sample := func(j int) int32 {
		if j < 0 {
			return 0
		}
		return int32(binary.LittleEndian.Uint16(buf[j*2:]))
	}
	a := sample(i - 1)
	b := sample(i - rasterStride)
	c := sample(i - rasterStride - 1)
	switch {
	case c >= max32(a, b):
		return min32(a, b)
	case c <= min32(a, b):
		return max32(a, b)
	default:
		return a + b - c
	}
}

func zigzag(n int32) uint32 { return uint32((n << 1) ^ (n >> 31)) }

func unzigzag(u uint32) int32 { return int32(u>>1) ^ -int32(u&1) }

func max32(a, b int32) int32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b int32) int32 {
	if a < b {
		return a
	}
	return b
}
