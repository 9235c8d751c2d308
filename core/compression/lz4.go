package compression

import (
	lz4 "github.com/hungys/go-lz4"
	"github.com/pkg/errors"
)

// lz4Compressor wraps the liblz4 binding. lz4 fails the compress call
// itself when the destination is too small, which maps directly onto the
// not-worth-compressing fallback.
type lz4Compressor struct{}

func (c *lz4Compressor) Name() string { return "lz4" }

func (c *lz4Compressor) CompressBound(srcLen int) int {
	return lz4.CompressBound(srcLen)
}

func (c *lz4Compressor) Compress(dst, src []byte) (int, error) {
	n, err := lz4.CompressDefault(src, dst)
	if err != nil {
		return 0, errors.Wrap(err, "lz4 compress")
	}
	return n, nil
}

func (c *lz4Compressor) Decompress(dst, src []byte) (int, error) {
	n, err := lz4.DecompressSafe(src, dst)
	if err != nil {
		return 0, errors.Wrap(err, "lz4 decompress")
	}
	return n, nil
}
