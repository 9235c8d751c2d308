// Package blockmanager moves fixed-format page images between memory and
// the block-addressed file backing one btree instance. Every persisted
// block carries a 32-byte header that is never compressed, so its checksum
// and sizes stay readable even when the payload is compressed or the rest
// of the file is damaged.
//
// Known limitation: if the disk write fails after an extent has been
// allocated, the extent is not reclaimed. Reclaiming leaked extents is left
// to an offline compaction pass.
package blockmanager

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kitsune-db/kitsunedb/core/compression"
	pagemanager "github.com/kitsune-db/kitsunedb/core/write_engine/page_manager"
	internaltelemetry "github.com/kitsune-db/kitsunedb/internal/telemetry"
)

// BlockManager is the block-level page I/O layer of one btree instance.
// Reads verify checksums and transparently decompress; writes align,
// optionally compress, allocate, stamp an LSN and persist. Multiple
// goroutines may read and write disjoint blocks concurrently.
type BlockManager struct {
	cfg        Config
	file       *FileManager
	alloc      BlockAllocator
	compressor compression.Compressor
	scratch    *pagemanager.ScratchPool
	lsn        *pagemanager.LSNCounter
	metrics    *internaltelemetry.StorageMetrics
	logger     *zap.Logger
}

// NewBlockManager opens the block file described by cfg and wires the I/O
// layer for it.
//
// The LSN counter is owned by the btree instance and shared with every
// writer of that instance; passing nil creates a fresh counter starting at
// zero. When reopening an existing file the caller must Reset the counter
// to the highest LSN it recovered (from its checkpoint, or from the page
// headers it knows about), otherwise new writes would stamp LSNs below
// those already persisted and salvage could mistake stale pages for newer
// ones. The block manager cannot recover that high-water mark itself: it
// has no record of which extents hold live pages.
//
// metrics may be nil to disable the storage counters. Unit 0 of a new file
// is reserved for the file descriptor block, so block addresses handed out
// by the allocator are always nonzero.
func NewBlockManager(cfg Config, lsn *pagemanager.LSNCounter, metrics *internaltelemetry.StorageMetrics, logger *zap.Logger) (*BlockManager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if lsn == nil {
		lsn = &pagemanager.LSNCounter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	file, err := OpenFileManager(cfg.Path, cfg.AllocationUnit, cfg.Create, cfg.ThrottleBytesPerSec)
	if err != nil {
		return nil, err
	}

	startUnit, err := file.SizeUnits()
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if startUnit == 0 {
		startUnit = 1
	}

	return &BlockManager{
		cfg:        cfg,
		file:       file,
		alloc:      NewFileAllocator(cfg.AllocationUnit, startUnit),
		compressor: compression.NewCompressor(cfg.Compression),
		scratch:    pagemanager.NewScratchPool(),
		lsn:        lsn,
		metrics:    metrics,
		logger: logger.With(
			zap.String("component", "block_manager"),
			zap.String("storage_id", uuid.NewString()),
			zap.String("file", cfg.Path),
		),
	}, nil
}

// SetAllocator replaces the block allocator, letting the btree's free-space
// bookkeeping take over extent placement from the default end-of-file
// allocator.
func (m *BlockManager) SetAllocator(alloc BlockAllocator) {
	m.alloc = alloc
}

// SetCompressor replaces the block codec. The replacement must be able to
// decompress every block already written with the previous codec.
func (m *BlockManager) SetCompressor(c compression.Compressor) {
	m.compressor = c
}

// AllocationUnit returns the byte granularity of all extents in this file.
func (m *BlockManager) AllocationUnit() uint32 {
	return m.cfg.AllocationUnit
}

// LastLSN returns the most recently stamped LSN.
func (m *BlockManager) LastLSN() pagemanager.LSN {
	return m.lsn.Current()
}

// ReadHeader fetches only the 32-byte header of a block without verifying
// its checksum. The salvage scanner uses this to locate pages in a damaged
// file, where full blocks may no longer verify.
func (m *BlockManager) ReadHeader(addr uint32) (pagemanager.PageHeader, error) {
	var raw [pagemanager.PageHeaderSize]byte
	if err := m.file.ReadExtent(addr, raw[:]); err != nil {
		return pagemanager.PageHeader{}, err
	}
	return pagemanager.DecodePageHeader(raw[:])
}

// Sync flushes all persisted blocks to stable storage.
func (m *BlockManager) Sync() error {
	return m.file.Sync()
}

// Close syncs and closes the block file.
func (m *BlockManager) Close() error {
	return m.file.Close()
}

// alignUp rounds n up to the next multiple of unit. unit is a power of two.
func alignUp(n, unit uint32) uint32 {
	return (n + unit - 1) &^ (unit - 1)
}

func zeroRange(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
