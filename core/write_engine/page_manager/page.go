package pagemanager

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"
)

// --- Page Header ---

// PageHeaderSize is the fixed size of the on-disk page header. The header
// is never compressed: the checksum and the on-disk/in-memory sizes must be
// readable without running the codec, both for normal reads and for the
// salvage scanner walking a damaged file.
const PageHeaderSize = 32

// Byte offsets of the header fields within a block image.
const (
	checksumOffset = 0  // uint32
	sizeOffset     = 4  // uint32
	memSizeOffset  = 8  // uint32
	lsnOffset      = 12 // uint64
	typeOffset     = 20 // uint8, rest of the header is reserved
)

type LSN uint64 // Log Sequence Number

const InvalidLSN LSN = 0

// LSNCounter issues strictly increasing LSNs for one storage engine
// instance. Safe for concurrent writers.
type LSNCounter struct {
	v atomic.Uint64
}

// Next returns the next LSN. No two calls observe the same value.
func (c *LSNCounter) Next() LSN {
	return LSN(c.v.Add(1))
}

// Current returns the most recently issued LSN without consuming one.
func (c *LSNCounter) Current() LSN {
	return LSN(c.v.Load())
}

// Reset moves the counter forward to at least lsn, used when reopening a
// file whose pages already carry LSNs. It never moves the counter backwards.
func (c *LSNCounter) Reset(lsn LSN) {
	for {
		cur := c.v.Load()
		if cur >= uint64(lsn) || c.v.CompareAndSwap(cur, uint64(lsn)) {
			return
		}
	}
}

// PageType identifies the kind of btree page stored in a block.
type PageType uint8

const (
	PageTypeInvalid PageType = iota
	PageTypeInternal
	PageTypeLeaf
	PageTypeOverflow
	PageTypeFreelist
)

func (t PageType) String() string {
	switch t {
	case PageTypeInternal:
		return "internal"
	case PageTypeLeaf:
		return "leaf"
	case PageTypeOverflow:
		return "overflow"
	case PageTypeFreelist:
		return "freelist"
	default:
		return "invalid"
	}
}

// Valid reports whether t is a known page type.
func (t PageType) Valid() bool {
	return t > PageTypeInvalid && t <= PageTypeFreelist
}

// PageHeader is the decoded form of the fixed 32-byte header at the start
// of every block.
//
// Invariant: Size <= MemSize, and Size == MemSize iff the block payload is
// stored uncompressed.
type PageHeader struct {
	Checksum uint32 // checksum of the full block, computed with this field zeroed
	Size     uint32 // on-disk block length, allocation-unit aligned
	MemSize  uint32 // block length once decompressed in memory
	LSN      LSN    // recency marker, monotonically increasing per instance
	Type     PageType
}

// DecodePageHeader reads the header from the leading bytes of a block image.
func DecodePageHeader(image []byte) (PageHeader, error) {
	if len(image) < PageHeaderSize {
		return PageHeader{}, fmt.Errorf("block image too small for page header: %d bytes", len(image))
	}
	return PageHeader{
		Checksum: binary.LittleEndian.Uint32(image[checksumOffset:]),
		Size:     binary.LittleEndian.Uint32(image[sizeOffset:]),
		MemSize:  binary.LittleEndian.Uint32(image[memSizeOffset:]),
		LSN:      LSN(binary.LittleEndian.Uint64(image[lsnOffset:])),
		Type:     PageType(image[typeOffset]),
	}, nil
}

// EncodeInto writes the header into the leading bytes of a block image.
// The reserved tail of the header region is left untouched.
func (h *PageHeader) EncodeInto(image []byte) {
	binary.LittleEndian.PutUint32(image[checksumOffset:], h.Checksum)
	binary.LittleEndian.PutUint32(image[sizeOffset:], h.Size)
	binary.LittleEndian.PutUint32(image[memSizeOffset:], h.MemSize)
	binary.LittleEndian.PutUint64(image[lsnOffset:], uint64(h.LSN))
	image[typeOffset] = byte(h.Type)
}

// Compressed reports whether the header describes a compressed payload.
func (h *PageHeader) Compressed() bool {
	return h.Size != h.MemSize
}

// --- Direct field access on a raw block image ---
//
// The I/O paths patch individual header fields in place rather than
// round-tripping the whole header through the struct form.

// HeaderChecksum returns the stored checksum field of a block image.
func HeaderChecksum(image []byte) uint32 {
	return binary.LittleEndian.Uint32(image[checksumOffset:])
}

// SetHeaderChecksum stores sum into the checksum field of a block image.
// Both I/O sides zero this field before computing the block checksum, so
// the stored value never covers itself.
func SetHeaderChecksum(image []byte, sum uint32) {
	binary.LittleEndian.PutUint32(image[checksumOffset:], sum)
}

// SetHeaderSizes stores the on-disk and in-memory lengths of a block image.
func SetHeaderSizes(image []byte, size, memSize uint32) {
	binary.LittleEndian.PutUint32(image[sizeOffset:], size)
	binary.LittleEndian.PutUint32(image[memSizeOffset:], memSize)
}

// SetHeaderDiskSize stores only the on-disk length, leaving the in-memory
// length alone. Used when adopting a compressed image whose memsize must
// keep the original uncompressed length.
func SetHeaderDiskSize(image []byte, size uint32) {
	binary.LittleEndian.PutUint32(image[sizeOffset:], size)
}

// HeaderType returns the page type field of a block image.
func HeaderType(image []byte) PageType {
	return PageType(image[typeOffset])
}

// SetHeaderLSN stamps the recency marker into a block image.
func SetHeaderLSN(image []byte, lsn LSN) {
	binary.LittleEndian.PutUint64(image[lsnOffset:], uint64(lsn))
}
