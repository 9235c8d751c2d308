package compression

import (
	"github.com/DataDog/zstd"
	"github.com/pkg/errors"
)

// zstdCompressor wraps the DataDog libzstd binding.
type zstdCompressor struct {
	level int
}

func (c *zstdCompressor) Name() string { return "zstd" }

func (c *zstdCompressor) CompressBound(srcLen int) int {
	return zstd.CompressBound(srcLen)
}

func (c *zstdCompressor) Compress(dst, src []byte) (int, error) {
	out, err := zstd.CompressLevel(dst[:0], src, c.level)
	if err != nil {
		return 0, errors.Wrap(err, "zstd compress")
	}
	if len(out) > len(dst) {
		// libzstd grew a fresh buffer because dst was too small; the
		// compressed form is not usable by the caller.
		return 0, ErrDestinationTooSmall
	}
	if len(out) > 0 && &out[0] != &dst[0] {
		copy(dst, out)
	}
	return len(out), nil
}

func (c *zstdCompressor) Decompress(dst, src []byte) (int, error) {
	out, err := zstd.Decompress(dst, src)
	if err != nil {
		return 0, errors.Wrap(err, "zstd decompress")
	}
	if len(out) > len(dst) {
		return 0, ErrDestinationTooSmall
	}
	if len(out) > 0 && &out[0] != &dst[0] {
		copy(dst, out)
	}
	return len(out), nil
}
