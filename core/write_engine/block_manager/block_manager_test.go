package blockmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kitsune-db/kitsunedb/core/compression"
	pagemanager "github.com/kitsune-db/kitsunedb/core/write_engine/page_manager"
)

const testAllocUnit = 512

// --- Test Helpers ---

// setupBlockManager creates a BlockManager over a fresh file in a temporary
// directory for isolated testing.
func setupBlockManager(t *testing.T) (*BlockManager, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blocks.kdb")
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	bm, err := NewBlockManager(Config{
		Path:           path,
		AllocationUnit: testAllocUnit,
		Compression:    "none",
		Create:         true,
		DebugChecks:    true,
	}, nil, nil, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = bm.Close() })

	return bm, path
}

// newPageImage builds a leaf page image of the given logical length. The
// buffer capacity includes slack up to the next allocation-unit boundary,
// which is the caller contract WriteBlock relies on. fill generates the
// payload byte at each offset.
func newPageImage(t *testing.T, logicalLen int, fill func(i int) byte) *pagemanager.Buffer {
	t.Helper()
	require.GreaterOrEqual(t, logicalLen, pagemanager.PageHeaderSize)

	capacity := (logicalLen + testAllocUnit - 1) / testAllocUnit * testAllocUnit
	buf := pagemanager.NewBuffer(capacity)
	hdr := pagemanager.PageHeader{Type: pagemanager.PageTypeLeaf}
	hdr.EncodeInto(buf.Data())
	for i := pagemanager.PageHeaderSize; i < logicalLen; i++ {
		buf.Data()[i] = fill(i)
	}
	buf.SetSize(logicalLen)
	return buf
}

func repetitiveFill(i int) byte { return 0xAB }

func variedFill(i int) byte { return byte(i*31 + i>>8) }

// rleCodec is a deliberately simple but correct run-length codec so the
// compression paths can be tested deterministically, without depending on
// the native zstd/lz4 libraries.
type rleCodec struct{}

func (rleCodec) Name() string            { return "rle" }
func (rleCodec) CompressBound(n int) int { return 2 * n }
func (rleCodec) Compress(dst, src []byte) (int, error) {
	n := 0
	for i := 0; i < len(src); {
		run := 1
		for i+run < len(src) && src[i+run] == src[i] && run < 255 {
			run++
		}
		if n+2 > len(dst) {
			return 0, compression.ErrDestinationTooSmall
		}
		dst[n] = byte(run)
		dst[n+1] = src[i]
		n += 2
		i += run
	}
	return n, nil
}
func (rleCodec) Decompress(dst, src []byte) (int, error) {
	if len(src)%2 != 0 {
		return 0, fmt.Errorf("corrupt rle stream of %d bytes", len(src))
	}
	n := 0
	for i := 0; i < len(src); i += 2 {
		run := int(src[i])
		if n+run > len(dst) {
			return 0, compression.ErrDestinationTooSmall
		}
		for j := 0; j < run; j++ {
			dst[n+j] = src[i+1]
		}
		n += run
	}
	return n, nil
}

// failCodec always declines to compress, exercising the uncompressed
// fallback path.
type failCodec struct{}

func (failCodec) Name() string            { return "fail" }
func (failCodec) CompressBound(n int) int { return n }
func (failCodec) Compress(dst, src []byte) (int, error) {
	return 0, fmt.Errorf("codec declined")
}
func (failCodec) Decompress(dst, src []byte) (int, error) {
	return 0, fmt.Errorf("codec declined")
}

// failAllocator refuses every extent request.
type failAllocator struct{}

func (failAllocator) Allocate(size uint32) (uint32, error) {
	return 0, fmt.Errorf("no space left")
}

// --- Test Cases ---

// TestWriteRead_RoundTripUncompressed verifies the basic write/read cycle
// without a codec, including the alignment example: a 600-byte page on a
// 512-byte allocation unit becomes a 1024-byte block with zero padding and
// matching header sizes.
func TestWriteRead_RoundTripUncompressed(t *testing.T) {
	bm, _ := setupBlockManager(t)

	const logicalLen = 600
	buf := newPageImage(t, logicalLen, variedFill)
	original := make([]byte, logicalLen)
	copy(original, buf.Bytes())

	addr, size, err := bm.WriteBlock(buf)
	require.NoError(t, err)
	require.EqualValues(t, 1024, size)
	require.NotZero(t, addr)

	hdr, err := bm.ReadHeader(addr)
	require.NoError(t, err)
	require.EqualValues(t, 1024, hdr.Size)
	require.EqualValues(t, 1024, hdr.MemSize)
	require.False(t, hdr.Compressed())
	require.Equal(t, pagemanager.PageTypeLeaf, hdr.Type)

	out := pagemanager.NewBuffer(int(size))
	require.NoError(t, bm.ReadBlock(out, addr, size))
	require.EqualValues(t, size, out.Size())

	// The payload region must round-trip untouched; the padding beyond the
	// logical length must be zero.
	require.Equal(t, original[pagemanager.PageHeaderSize:], out.Bytes()[pagemanager.PageHeaderSize:logicalLen])
	for i := logicalLen; i < int(size); i++ {
		require.Zero(t, out.Bytes()[i], "padding byte %d must be zero", i)
	}
}

// TestWriteRead_RoundTripCompressed verifies the full compressed cycle: a
// highly repetitive 600-byte page collapses into a single 512-byte block,
// the header marks it compressed by diverging size and memsize, and the
// read side hands back the original image via the scratch buffer swap.
func TestWriteRead_RoundTripCompressed(t *testing.T) {
	bm, _ := setupBlockManager(t)
	bm.SetCompressor(rleCodec{})

	const logicalLen = 600
	buf := newPageImage(t, logicalLen, repetitiveFill)
	original := make([]byte, logicalLen)
	copy(original, buf.Bytes())

	addr, size, err := bm.WriteBlock(buf)
	require.NoError(t, err)
	require.EqualValues(t, 512, size, "compressed block should fit a single allocation unit")

	hdr, err := bm.ReadHeader(addr)
	require.NoError(t, err)
	require.EqualValues(t, 512, hdr.Size)
	require.EqualValues(t, logicalLen, hdr.MemSize, "memsize must keep the uncompressed length")
	require.True(t, hdr.Compressed())

	out := pagemanager.NewBuffer(int(size))
	require.NoError(t, bm.ReadBlock(out, addr, size))
	require.EqualValues(t, logicalLen, out.Size(), "read must yield the decompressed length")
	require.Equal(t, original[pagemanager.PageHeaderSize:], out.Bytes()[pagemanager.PageHeaderSize:])
}

// TestReadBlock_DecompressionFailed verifies the read-side codec error
// path: a persisted compressed block must fail the read, not hand back
// garbage, when the codec cannot reproduce the original bytes or when no
// codec is configured at all.
func TestReadBlock_DecompressionFailed(t *testing.T) {
	bm, _ := setupBlockManager(t)
	bm.SetCompressor(rleCodec{})

	buf := newPageImage(t, 600, repetitiveFill)
	addr, size, err := bm.WriteBlock(buf)
	require.NoError(t, err)

	hdr, err := bm.ReadHeader(addr)
	require.NoError(t, err)
	require.True(t, hdr.Compressed(), "test needs a compressed block on disk")

	// A codec that fails on decompress surfaces the error and aborts.
	bm.SetCompressor(failCodec{})
	out := pagemanager.NewBuffer(int(size))
	err = bm.ReadBlock(out, addr, size)
	require.ErrorIs(t, err, ErrDecompression)

	// Reading a compressed block with no codec configured at all must
	// fail the same way rather than return the compressed bytes.
	bm.SetCompressor(nil)
	out = pagemanager.NewBuffer(int(size))
	err = bm.ReadBlock(out, addr, size)
	require.ErrorIs(t, err, ErrDecompression)

	// The block itself is intact: restoring the right codec reads it.
	bm.SetCompressor(rleCodec{})
	out = pagemanager.NewBuffer(int(size))
	require.NoError(t, bm.ReadBlock(out, addr, size))
	require.EqualValues(t, 600, out.Size())
}

// TestWriteBlock_CompressionFallback verifies that a codec which always
// fails never fails the write: every block falls back to the uncompressed
// encoding with matching header sizes.
func TestWriteBlock_CompressionFallback(t *testing.T) {
	bm, _ := setupBlockManager(t)
	bm.SetCompressor(failCodec{})

	for _, logicalLen := range []int{50, 600, 1500, 4000} {
		buf := newPageImage(t, logicalLen, variedFill)
		addr, size, err := bm.WriteBlock(buf)
		require.NoError(t, err, "write of %d bytes must succeed despite codec failure", logicalLen)

		hdr, err := bm.ReadHeader(addr)
		require.NoError(t, err)
		require.Equal(t, hdr.Size, hdr.MemSize)
		require.EqualValues(t, size, hdr.Size)
	}
}

// TestWriteBlock_AdoptionRule verifies that a compressed form which does
// not save at least one full allocation unit is discarded: an incompressible
// payload makes the rle codec overflow its destination, and the block is
// stored uncompressed.
func TestWriteBlock_AdoptionRule(t *testing.T) {
	bm, _ := setupBlockManager(t)
	bm.SetCompressor(rleCodec{})

	// Every byte differs from its neighbor, so rle doubles the payload.
	buf := newPageImage(t, 600, func(i int) byte { return byte(i) })
	addr, size, err := bm.WriteBlock(buf)
	require.NoError(t, err)
	require.EqualValues(t, 1024, size)

	hdr, err := bm.ReadHeader(addr)
	require.NoError(t, err)
	require.False(t, hdr.Compressed())
}

// TestWriteBlock_SingleUnitSkipsCompression verifies that blocks already at
// the minimum size are never handed to the codec: there is nothing to save.
func TestWriteBlock_SingleUnitSkipsCompression(t *testing.T) {
	bm, _ := setupBlockManager(t)
	bm.SetCompressor(rleCodec{})

	buf := newPageImage(t, 100, repetitiveFill)
	addr, size, err := bm.WriteBlock(buf)
	require.NoError(t, err)
	require.EqualValues(t, testAllocUnit, size)

	hdr, err := bm.ReadHeader(addr)
	require.NoError(t, err)
	require.False(t, hdr.Compressed())
}

// TestWriteBlock_AlignmentInvariant verifies that every successful write
// returns a nonzero multiple of the allocation unit.
func TestWriteBlock_AlignmentInvariant(t *testing.T) {
	bm, _ := setupBlockManager(t)

	for _, logicalLen := range []int{32, 33, 511, 512, 513, 600, 1024, 2000, 4096, 5000} {
		buf := newPageImage(t, logicalLen, variedFill)
		_, size, err := bm.WriteBlock(buf)
		require.NoError(t, err)
		require.NotZero(t, size)
		require.Zero(t, size%testAllocUnit, "size %d for logical length %d", size, logicalLen)
	}
}

// TestReadBlock_ChecksumMismatch verifies corruption detection: flipping a
// single bit anywhere in the persisted block, whether in the stored
// checksum itself, the header, the payload or the zero padding, must fail
// the read with a checksum mismatch.
func TestReadBlock_ChecksumMismatch(t *testing.T) {
	bm, path := setupBlockManager(t)

	const logicalLen = 600
	buf := newPageImage(t, logicalLen, variedFill)
	addr, size, err := bm.WriteBlock(buf)
	require.NoError(t, err)
	require.NoError(t, bm.Sync())

	file, err := os.OpenFile(path, os.O_RDWR, 0666)
	require.NoError(t, err)
	defer file.Close()

	flipBit := func(blockOffset int64) {
		t.Helper()
		var b [1]byte
		offset := int64(addr)*testAllocUnit + blockOffset
		_, err := file.ReadAt(b[:], offset)
		require.NoError(t, err)
		b[0] ^= 0x04
		_, err = file.WriteAt(b[:], offset)
		require.NoError(t, err)
	}

	offsets := map[string]int64{
		"checksum field": 0,
		"header sizes":   8,
		"payload":        100,
		"padding":        int64(size) - 1,
	}
	for region, blockOffset := range offsets {
		flipBit(blockOffset)

		out := pagemanager.NewBuffer(int(size))
		err = bm.ReadBlock(out, addr, size)
		require.ErrorIs(t, err, ErrChecksumMismatch, "flip in %s must be detected", region)

		// Undo the flip; the block must verify again.
		flipBit(blockOffset)
	}

	out := pagemanager.NewBuffer(int(size))
	require.NoError(t, bm.ReadBlock(out, addr, size))
}

// TestReadBlock_BufferTooSmall verifies the read precondition on buffer
// capacity.
func TestReadBlock_BufferTooSmall(t *testing.T) {
	bm, _ := setupBlockManager(t)

	buf := newPageImage(t, 600, variedFill)
	addr, size, err := bm.WriteBlock(buf)
	require.NoError(t, err)

	out := pagemanager.NewBuffer(int(size) - 1)
	err = bm.ReadBlock(out, addr, size)
	require.ErrorIs(t, err, ErrBufferTooSmall)
}

// TestWriteBlock_LSNMonotonicity verifies that each successful write stamps
// a strictly greater LSN than the previous one.
func TestWriteBlock_LSNMonotonicity(t *testing.T) {
	bm, _ := setupBlockManager(t)

	var last uint64
	for i := 0; i < 20; i++ {
		buf := newPageImage(t, 600, variedFill)
		addr, _, err := bm.WriteBlock(buf)
		require.NoError(t, err)

		hdr, err := bm.ReadHeader(addr)
		require.NoError(t, err)
		require.Greater(t, uint64(hdr.LSN), last)
		last = uint64(hdr.LSN)
	}
	require.EqualValues(t, last, bm.LastLSN())
}

// TestWriteBlock_AllocationFailure verifies that an allocator failure
// aborts the write before any bytes reach the file.
func TestWriteBlock_AllocationFailure(t *testing.T) {
	bm, path := setupBlockManager(t)
	require.NoError(t, bm.Sync())
	before, err := os.Stat(path)
	require.NoError(t, err)

	bm.SetAllocator(failAllocator{})
	buf := newPageImage(t, 600, variedFill)
	_, _, err = bm.WriteBlock(buf)
	require.ErrorIs(t, err, ErrAllocationFailed)

	require.NoError(t, bm.Sync())
	after, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, before.Size(), after.Size(), "nothing may be persisted on allocation failure")
}

// TestWriteBlock_DebugChecks verifies the write-time structural self-check:
// an image with an invalid page type is a caller bug and must be rejected
// before anything is allocated or written.
func TestWriteBlock_DebugChecks(t *testing.T) {
	bm, _ := setupBlockManager(t)

	buf := pagemanager.NewBuffer(testAllocUnit)
	hdr := pagemanager.PageHeader{Type: pagemanager.PageTypeInvalid}
	hdr.EncodeInto(buf.Data())
	buf.SetSize(100)

	_, _, err := bm.WriteBlock(buf)
	require.ErrorIs(t, err, ErrInvalidPageData)
}

// TestBlockManager_ReopenExisting verifies that reopening a file resumes
// allocation after the existing data, that previously written blocks still
// verify, and that a caller resetting the shared LSN counter to the
// recovered high-water mark keeps new LSNs above the persisted ones.
func TestBlockManager_ReopenExisting(t *testing.T) {
	bm, path := setupBlockManager(t)

	buf := newPageImage(t, 600, variedFill)
	original := make([]byte, 600)
	copy(original, buf.Bytes())
	addr1, size1, err := bm.WriteBlock(buf)
	require.NoError(t, err)
	require.NoError(t, bm.Close())

	logger := zap.NewNop()
	var counter pagemanager.LSNCounter
	bm2, err := NewBlockManager(Config{
		Path:           path,
		AllocationUnit: testAllocUnit,
		Compression:    "none",
	}, &counter, nil, logger)
	require.NoError(t, err)
	defer bm2.Close()

	// Recover the high-water LSN from the page we know about and hand it
	// to the shared counter, as the owning btree instance would.
	oldHdr, err := bm2.ReadHeader(addr1)
	require.NoError(t, err)
	counter.Reset(oldHdr.LSN)

	addr2, _, err := bm2.WriteBlock(newPageImage(t, 600, variedFill))
	require.NoError(t, err)
	require.Greater(t, addr2, addr1, "reopened allocator must not overlap existing extents")

	newHdr, err := bm2.ReadHeader(addr2)
	require.NoError(t, err)
	require.Greater(t, uint64(newHdr.LSN), uint64(oldHdr.LSN),
		"writes after reopen must stamp LSNs above the persisted ones")

	out := pagemanager.NewBuffer(int(size1))
	require.NoError(t, bm2.ReadBlock(out, addr1, size1))
	require.Equal(t, original[pagemanager.PageHeaderSize:], out.Bytes()[pagemanager.PageHeaderSize:600])
}

// TestNewBlockManager_ConfigValidation covers the configuration edge cases:
// bad allocation units, unknown codecs, and the create/exists contract.
func TestNewBlockManager_ConfigValidation(t *testing.T) {
	dir := t.TempDir()
	logger := zap.NewNop()

	_, err := NewBlockManager(Config{Path: filepath.Join(dir, "a.kdb"), AllocationUnit: 300, Create: true}, nil, nil, logger)
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewBlockManager(Config{Path: filepath.Join(dir, "a.kdb"), AllocationUnit: 768, Create: true}, nil, nil, logger)
	require.ErrorIs(t, err, ErrInvalidConfig, "non power of two unit")

	_, err = NewBlockManager(Config{Path: filepath.Join(dir, "a.kdb"), Compression: "snappy", Create: true}, nil, nil, logger)
	require.ErrorIs(t, err, ErrInvalidConfig, "unknown codec")

	_, err = NewBlockManager(Config{Path: filepath.Join(dir, "missing.kdb")}, nil, nil, logger)
	require.ErrorIs(t, err, ErrDBFileNotFound)

	cfg := Config{Path: filepath.Join(dir, "b.kdb"), Create: true}
	bm, err := NewBlockManager(cfg, nil, nil, logger)
	require.NoError(t, err)
	require.NoError(t, bm.Close())

	_, err = NewBlockManager(cfg, nil, nil, logger)
	require.ErrorIs(t, err, ErrDBFileExists)
}
