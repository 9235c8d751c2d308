package pagemanager

import "sync"

// ScratchPool issues short-lived temporary buffers for the (de)compression
// paths. A scratch buffer never outlives a single read or write call:
// callers defer Release so the buffer is returned on every exit path,
// success, fallback or error. Release after an ownership transfer is a
// no-op, so the defer is always safe.
type ScratchPool struct {
	pool sync.Pool
}

// NewScratchPool creates an empty pool.
func NewScratchPool() *ScratchPool {
	return &ScratchPool{
		pool: sync.Pool{
			New: func() interface{} { return []byte(nil) },
		},
	}
}

// Acquire returns an owned buffer with capacity of at least minSize and a
// logical size of minSize. The underlying memory may be recycled from an
// earlier Release and is not zeroed.
func (p *ScratchPool) Acquire(minSize int) *Buffer {
	data, _ := p.pool.Get().([]byte)
	if cap(data) < minSize {
		data = make([]byte, minSize)
	}
	data = data[:cap(data)]
	return &Buffer{data: data, size: minSize}
}

// Release returns a buffer's memory to the pool and retires the handle.
// Safe to call on a nil or already-retired buffer.
func (p *ScratchPool) Release(b *Buffer) {
	if b == nil || b.data == nil {
		return
	}
	p.pool.Put(b.data)
	b.data = nil
	b.size = 0
}

// Move transfers ownership of src's memory into dst: dst adopts src's
// content and logical size, dst's old memory is recycled, and src is
// retired. This is how a decompressed or compressed scratch image replaces
// the caller's primary buffer without copying.
func (p *ScratchPool) Move(dst, src *Buffer) {
	if dst.data != nil {
		p.pool.Put(dst.data)
	}
	dst.data = src.data
	dst.size = src.size
	src.data = nil
	src.size = 0
}
