package blockmanager

import (
	"fmt"
	"math"
	"sync"
)

// BlockAllocator allocates on-disk extents. Addresses are counts of
// allocation units, not byte offsets. Implementations must be safe for
// concurrent writers: no two concurrent allocations may yield overlapping
// extents.
type BlockAllocator interface {
	// Allocate reserves an extent of size bytes (a multiple of the
	// allocation unit) and returns its address.
	Allocate(size uint32) (uint32, error)
}

// FileAllocator hands out extents by extending a high-water mark at the end
// of the file. Freed extents are not recycled; reclaiming them is left to
// an offline compaction pass.
type FileAllocator struct {
	mu        sync.Mutex
	allocUnit uint32
	nextUnit  uint32 // high-water mark, in allocation units
}

// NewFileAllocator creates an allocator whose next extent starts at
// startUnit allocation units into the file.
func NewFileAllocator(allocUnit, startUnit uint32) *FileAllocator {
	return &FileAllocator{allocUnit: allocUnit, nextUnit: startUnit}
}

// Allocate implements BlockAllocator.
func (a *FileAllocator) Allocate(size uint32) (uint32, error) {
	if size == 0 || size%a.allocUnit != 0 {
		return 0, fmt.Errorf("extent size %d is not a multiple of allocation unit %d", size, a.allocUnit)
	}
	units := size / a.allocUnit

	a.mu.Lock()
	defer a.mu.Unlock()
	if uint64(a.nextUnit)+uint64(units) > math.MaxUint32 {
		return 0, fmt.Errorf("file address space exhausted at unit %d", a.nextUnit)
	}
	addr := a.nextUnit
	a.nextUnit += units
	return addr, nil
}

// HighWater returns the current end of the allocated region, in allocation
// units.
func (a *FileAllocator) HighWater() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.nextUnit
}
