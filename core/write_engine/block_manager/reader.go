package blockmanager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pagemanager "github.com/kitsune-db/kitsunedb/core/write_engine/page_manager"
)

// ReadBlock reads the block at (addr, size) into buf, verifies its
// checksum, and decompresses the payload when the block was stored
// compressed. On success buf holds the fully decompressed page image and
// its logical size equals the header's memsize. On any failure buf's
// content is unchanged from the caller's perspective and no partially
// decompressed state is exposed.
//
// buf's capacity must be at least size bytes; (addr, size) must denote a
// previously written extent.
func (m *BlockManager) ReadBlock(buf *pagemanager.Buffer, addr, size uint32) error {
	if size < pagemanager.PageHeaderSize {
		return fmt.Errorf("%w: addr/size %d/%d: block smaller than the page header",
			ErrInvalidPageData, addr, size)
	}
	if buf.Cap() < int(size) {
		return fmt.Errorf("%w: capacity %d, block size %d", ErrBufferTooSmall, buf.Cap(), size)
	}

	image := buf.Data()[:size]
	if err := m.file.ReadExtent(addr, image); err != nil {
		return err
	}

	// Verify the self-referential checksum: the stored value was computed
	// with the checksum field zeroed, so zero it, recompute, then restore
	// the field so callers see the persisted bytes.
	stored := pagemanager.HeaderChecksum(image)
	pagemanager.SetHeaderChecksum(image, 0)
	if stored != BlockChecksum(image) {
		return fmt.Errorf("%w: addr/size %d/%d", ErrChecksumMismatch, addr, size)
	}
	pagemanager.SetHeaderChecksum(image, stored)
	buf.SetSize(int(size))

	hdr, err := pagemanager.DecodePageHeader(image)
	if err != nil {
		return fmt.Errorf("%w: addr/size %d/%d: %v", ErrInvalidPageData, addr, size, err)
	}

	m.metrics.RecordRead(context.Background(), int64(size))
	m.logger.Debug("read block",
		zap.Uint32("addr", addr),
		zap.Uint32("size", size),
		zap.String("page_type", hdr.Type.String()),
		zap.Bool("compressed", hdr.Compressed()),
	)

	// Matching on-disk and in-memory sizes mark the block uncompressed.
	if !hdr.Compressed() {
		return nil
	}
	if m.compressor == nil {
		return fmt.Errorf("%w: addr/size %d/%d: block is compressed but no compressor is configured",
			ErrDecompression, addr, size)
	}

	tmp := m.scratch.Acquire(int(hdr.MemSize))
	defer m.scratch.Release(tmp)

	// The leading header bytes are stored uncompressed; copy them over
	// verbatim and decompress only the payload.
	copy(tmp.Data()[:pagemanager.PageHeaderSize], image[:pagemanager.PageHeaderSize])
	dst := tmp.Data()[pagemanager.PageHeaderSize:hdr.MemSize:hdr.MemSize]
	n, err := m.compressor.Decompress(dst, image[pagemanager.PageHeaderSize:size])
	if err != nil {
		return fmt.Errorf("%w: addr/size %d/%d: %v", ErrDecompression, addr, size, err)
	}
	if n != int(hdr.MemSize)-pagemanager.PageHeaderSize {
		return fmt.Errorf("%w: addr/size %d/%d: decompressed %d bytes, header expects %d",
			ErrDecompression, addr, size, n, int(hdr.MemSize)-pagemanager.PageHeaderSize)
	}
	tmp.SetSize(int(hdr.MemSize))

	// The decompressed image becomes the caller's buffer; the old memory
	// goes back to the pool and the deferred Release of tmp is a no-op.
	m.scratch.Move(buf, tmp)
	return nil
}
