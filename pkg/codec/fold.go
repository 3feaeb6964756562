package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
)

// foldBlock is the folding block size in bytes.
const foldBlock = 256

// foldMarker prefixes every fold blob.
var foldMarker = []byte("RSF0")

func init() {
	register(foldCodec{})
}

// foldCodec implements the custom folding transform: the payload is
// split into fixed-size blocks, each block is reduced to its rounded
// mean plus per-byte residuals, the means are delta-encoded into a
// coarse stream and the residuals into a main stream, and both streams
// are snappy compressed. Smooth data collapses into near-zero
// residuals; anything else round-trips unchanged at a small size cost.
//
// Blob layout: "RSF0", uint64 original length, uint32 coarse length,
// uint32 main length, snappy(coarse: int32 deltas, little-endian),
// snappy(main: int16 residuals, little-endian).
type foldCodec struct{}

func (foldCodec) Method() Method { return MethodFold }

func (foldCodec) Encode(data []byte) ([]byte, error) {
	blocks := (len(data) + foldBlock - 1) / foldBlock

	coarse := make([]byte, blocks*4)
	main := make([]byte, len(data)*2)
	prevMean := int32(0)
	for b := 0; b < blocks; b++ {
		start := b * foldBlock
		end := start + foldBlock
		if end > len(data) {
			end = len(data)
		}
		chunk := data[start:end]

		sum := 0
		for _, v := range chunk {
			sum += int(v)
		}
		mean := int32((sum + len(chunk)/2) / len(chunk))

		binary.LittleEndian.PutUint32(coarse[b*4:], uint32(mean-prevMean))
		prevMean = mean
		for i, v := range chunk {
			binary.LittleEndian.PutUint16(main[(start+i)*2:], uint16(int16(int32(v)-mean)))
		}
	}

	coarseComp := snappy.Encode(nil, coarse)
	mainComp := snappy.Encode(nil, main)

	blob := bytes.NewBuffer(make([]byte, 0, len(foldMarker)+16+len(coarseComp)+len(mainComp)))
	blob.Write(foldMarker)
	binary.Write(blob, binary.LittleEndian, uint64(len(data)))
	binary.Write(blob, binary.LittleEndian, uint32(len(coarseComp)))
	binary.Write(blob, binary.LittleEndian, uint32(len(mainComp)))
	blob.Write(coarseComp)
	blob.Write(mainComp)
	return blob.Bytes(), nil
}

func (foldCodec) Decode(blob []byte, originalSize int) ([]byte, error) {
	if len(blob) < len(foldMarker)+16 || !bytes.Equal(blob[:len(foldMarker)], foldMarker) {
		return nil, fmt.Errorf("fold: blob marker missing")
	}
	rest := blob[len(foldMarker):]
	origLen := binary.LittleEndian.Uint64(rest)
	coarseLen := binary.LittleEndian.Uint32(rest[8:])
	mainLen := binary.LittleEndian.Uint32(rest[12:])
	rest = rest[16:]
	if uint64(len(rest)) != uint64(coarseLen)+uint64(mainLen) {
		return nil, fmt.Errorf("fold: stream lengths inconsistent with blob size")
	}

	coarse, err := snappy.Decode(nil, rest[:coarseLen])
	if err != nil {
		return nil, fmt.Errorf("fold: coarse stream: %w", err)
	}
	main, err := snappy.Decode(nil, rest[coarseLen:])
	if err != nil {
		return nil, fmt.Errorf("fold: main stream: %w", err)
	}
	if uint64(len(main)) != origLen*2 {
		return nil, fmt.Errorf("fold: main stream is %d bytes, expected %d", len(main), origLen*2)
	}

	out := make([]byte, origLen)
	blocks := (len(out) + foldBlock - 1) / foldBlock
	if len(coarse) != blocks*4 {
		return nil, fmt.Errorf("fold: coarse stream is %d bytes, expected %d", len(coarse), blocks*4)
	}
	mean := int32(0)
	for b := 0; b*foldBlock < len(out); b++ {
		mean += int32(binary.LittleEndian.Uint32(coarse[b*4:]))
		start := b * foldBlock
		end := start + foldBlock
		if end > len(out) {
			end = len(out)
		}
		for i := start; i < end; i++ {
			residual := int32(int16(binary.LittleEndian.Uint16(main[i*2:])))
			out[i] = byte(mean + residual)
		}
	}
	if len(out) != originalSize {
		return nil, fmt.Errorf("fold: decoded %d bytes, expected %d", len(out), originalSize)
	}
	return out, nil
}
