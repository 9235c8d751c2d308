package pagemanager

// Buffer is an owned, resizable page image region with a capacity and a
// logical-use length. The read and write paths may exchange a caller's
// primary buffer with a scratch buffer during (de)compression; after the
// exchange the retired handle no longer owns any memory.
type Buffer struct {
	data []byte
	size int
}

// NewBuffer creates a buffer with the given capacity and a logical size of
// zero.
func NewBuffer(capacity int) *Buffer {
	return &Buffer{data: make([]byte, capacity)}
}

// NewBufferFrom wraps an existing byte slice as a buffer whose logical size
// is the slice length.
func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{data: data, size: len(data)}
}

// Data returns the full backing region up to capacity. Nil once the buffer
// has been retired by an ownership transfer or released to a pool.
func (b *Buffer) Data() []byte { return b.data }

// Bytes returns the logical content, the leading Size bytes of the region.
func (b *Buffer) Bytes() []byte { return b.data[:b.size] }

// Size returns the logical-use length.
func (b *Buffer) Size() int { return b.size }

// SetSize adjusts the logical-use length. Panics if it exceeds capacity;
// callers are contractually required to allocate enough slack up front.
func (b *Buffer) SetSize(n int) {
	if n > len(b.data) {
		panic("pagemanager: buffer logical size exceeds capacity")
	}
	b.size = n
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return len(b.data) }

// Retired reports whether the buffer's memory has been taken by an
// ownership transfer or a pool release.
func (b *Buffer) Retired() bool { return b.data == nil }
