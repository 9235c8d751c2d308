// Package compression provides the pluggable block compression capability
// used by the write engine. A compressor is chosen by name when the storage
// engine instance is configured; "none" disables compression entirely.
package compression

import (
	"strings"

	"github.com/pkg/errors"
)

// ErrDestinationTooSmall is returned when the destination buffer cannot hold
// the codec output. On the write path this means the block is not worth
// compressing and the caller falls back to the uncompressed encoding.
var ErrDestinationTooSmall = errors.New("compression: destination buffer too small")

// Compressor is the capability interface implemented by every codec.
// Implementations must never write beyond the destination slice and must
// reproduce, on Decompress, exactly the bytes originally given to Compress.
type Compressor interface {
	// Name returns the codec name as used in configuration.
	Name() string
	// CompressBound returns the worst-case compressed size for srcLen bytes.
	CompressBound(srcLen int) int
	// Compress compresses src into dst and returns the number of bytes
	// written. It fails when dst is too small for the compressed output.
	Compress(dst, src []byte) (int, error)
	// Decompress decompresses src into dst and returns the number of bytes
	// written. dst must be sized to the original uncompressed length.
	Decompress(dst, src []byte) (int, error)
}

// NewCompressor returns the compressor registered under the given name, or
// nil if the name is unknown. The empty string and "none" both mean no
// compression.
func NewCompressor(name string) Compressor {
	switch strings.ToLower(name) {
	case "zstd":
		return &zstdCompressor{level: 3}
	case "lz4":
		return &lz4Compressor{}
	case "none", "":
		return nil
	default:
		return nil
	}
}

// Supported reports whether the given name maps to a known configuration
// value, including "none".
func Supported(name string) bool {
	switch strings.ToLower(name) {
	case "zstd", "lz4", "none", "":
		return true
	}
	return false
}
