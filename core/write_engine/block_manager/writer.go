package blockmanager

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	pagemanager "github.com/kitsune-db/kitsunedb/core/write_engine/page_manager"
)

// WriteBlock persists the page image held in buf and returns the (addr,
// size) pair of the written extent. The image is aligned to the allocation
// unit, compressed when the configured codec actually saves at least one
// unit, stamped with the next LSN and checksummed before hitting disk.
//
// buf's logical size must be the current uncompressed page-image length,
// and its capacity must include slack up to the next allocation-unit
// boundary; that slack is the caller's contract and is not guarded here.
// On failure nothing is persisted, though an extent allocated before a
// failed disk write is not reclaimed (see the package comment).
func (m *BlockManager) WriteBlock(buf *pagemanager.Buffer) (uint32, uint32, error) {
	origSize := uint32(buf.Size())
	if origSize < pagemanager.PageHeaderSize {
		return 0, 0, fmt.Errorf("%w: page image of %d bytes is smaller than the page header",
			ErrInvalidPageData, origSize)
	}

	image := buf.Data()
	pagemanager.SetHeaderSizes(image, origSize, origSize)
	origType := pagemanager.HeaderType(image)

	if m.cfg.DebugChecks {
		if err := verifyImage(buf.Bytes()); err != nil {
			return 0, 0, fmt.Errorf("%w: %v", ErrInvalidPageData, err)
		}
	}

	alignSize := alignUp(origSize, m.cfg.AllocationUnit)

	var tmp *pagemanager.Buffer
	defer func() { m.scratch.Release(tmp) }()

	// Try compression unless there is no codec or the block is already as
	// small as it can get. A failing codec is not fatal: the uncompressed
	// encoding is as good as it gets.
	persist := buf
	compressed := false
	if m.compressor != nil && alignSize != m.cfg.AllocationUnit {
		// The scratch buffer only holds a copy of the original: any
		// compressed form bigger than the original is useless anyway.
		tmp = m.scratch.Acquire(int(origSize))
		copy(tmp.Data()[:pagemanager.PageHeaderSize], image[:pagemanager.PageHeaderSize])

		dst := tmp.Data()[pagemanager.PageHeaderSize:origSize:origSize]
		n, err := m.compressor.Compress(dst, image[pagemanager.PageHeaderSize:origSize])
		if err == nil {
			total := uint32(n) + pagemanager.PageHeaderSize
			candidate := alignUp(total, m.cfg.AllocationUnit)
			// Adopt the compressed form only if it saves at least one
			// allocation unit; otherwise the uncompressed block reads
			// back faster.
			if candidate < alignSize {
				alignSize = candidate
				zeroRange(tmp.Data()[total:alignSize])
				tmp.SetSize(int(alignSize))
				// memsize keeps the original uncompressed length; the
				// divergence from size is what marks the block compressed.
				pagemanager.SetHeaderDiskSize(tmp.Data(), alignSize)
				persist = tmp
				compressed = true
			}
		} else {
			m.logger.Debug("compression declined, storing uncompressed",
				zap.Uint32("size", origSize), zap.Error(err))
		}
	}

	if !compressed {
		// Zero the slack up to the alignment boundary and mark the block
		// uncompressed by storing matching sizes.
		zeroRange(image[origSize:alignSize])
		buf.SetSize(int(alignSize))
		pagemanager.SetHeaderSizes(image, alignSize, alignSize)
		persist = buf
	}

	addr, err := m.alloc.Allocate(alignSize)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %d bytes: %v", ErrAllocationFailed, alignSize, err)
	}

	out := persist.Data()[:alignSize]

	// Stamp the recency marker so salvage can tell which of two internally
	// consistent copies of a page is newer.
	lsn := m.lsn.Next()
	pagemanager.SetHeaderLSN(out, lsn)

	// Checksum the exact bytes going to disk, with the field zeroed to
	// exclude self-reference.
	pagemanager.SetHeaderChecksum(out, 0)
	pagemanager.SetHeaderChecksum(out, BlockChecksum(out))

	if err := m.file.WriteExtent(addr, out); err != nil {
		// The allocated extent leaks here; compaction reclaims it later.
		return 0, 0, err
	}

	m.metrics.RecordWrite(context.Background(), int64(alignSize), compressed)
	m.logger.Debug("write block",
		zap.Uint32("orig_size", origSize),
		zap.Uint32("addr", addr),
		zap.Uint32("size", alignSize),
		zap.Bool("compressed", compressed),
		zap.Uint64("lsn", uint64(lsn)),
		zap.String("page_type", origType.String()),
	)
	return addr, alignSize, nil
}
