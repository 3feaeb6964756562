package codec

import (
	"path/filepath"
	"strings"
)

// Selector chooses a method for one file. It receives the file path
// and the first bytes of its content; selection is pure policy and the
// engine persists whatever id the compressor ends up using, so a
// custom selector can never make an archive undecodable.
type Selector func(path string, sniff []byte) Method

var textExts = map[string]bool{
	".txt": true, ".log": true, ".csv": true, ".sql": true,
	".py": true, ".json": true, ".xml": true, ".md": true,
}

var storedExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".mp4": true, ".zip": true, ".gz": true, ".zst": true,
	".lz4": true, ".7z": true, ".xz": true,
}

var rasterExts = map[string]bool{
	".dcm": true, ".dicom": true,
}

const (
	// Above this size, xz gets too slow for text and zstd takes over.
	largeTextThreshold = 8 << 20
	// Above this size, generic binaries go to lz4 instead of zlib.
	largeBinaryThreshold = 1 << 20
)

// DefaultSelector picks a method from the file extension, with size
// cutoffs for the slow codecs. Already-compressed formats are stored
// as-is. DICOM payloads get the raster transform. The engine hands the
// whole file content as sniff, so its length is the real file size.
func DefaultSelector(path string, sniff []byte) Method {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case rasterExts[ext]:
		return MethodRaster
	case textExts[ext]:
		if len(sniff) >= largeTextThreshold {
			return MethodZstd
		}
		return MethodLZMA
	case storedExts[ext]:
		return MethodStore
	default:
		if len(sniff) >= largeBinaryThreshold {
			return MethodLZ4
		}
		return MethodZlib
	}
}
