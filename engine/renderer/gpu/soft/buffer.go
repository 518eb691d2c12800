package soft

import "unsafe"

// Buffer keeps its bytes in a uint64 backing array so typed views of the
// contents are always 8-byte aligned.
type Buffer struct {
	id      uint32
	label   string
	size    int
	backing []uint64
}

func newBuffer(id uint32, label string, size int) *Buffer {
	b := &Buffer{id: id, label: label}
	b.Resize(size)
	return b
}

func (b *Buffer) ID() uint32    { return b.id }
func (b *Buffer) Label() string { return b.label }
func (b *Buffer) Size() int     { return b.size }

// Resize keeps the common prefix of the old contents and zeroes the rest.
func (b *Buffer) Resize(size int) {
	if size < 0 {
		size = 0
	}
	backing := make([]uint64, (size+7)/8)
	copy(backing, b.backing)
	b.backing = backing
	b.size = size
}

// SetData copies data at offset, growing the buffer when needed.
func (b *Buffer) SetData(offset int, data []byte) {
	if offset+len(data) > b.size {
		b.Resize(offset + len(data))
	}
	copy(b.Bytes()[offset:], data)
}

func (b *Buffer) Bytes() []byte {
	if len(b.backing) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(b.backing))), len(b.backing)*8)[:b.size]
}

// Zero clears the contents without reallocating.
func (b *Buffer) Zero() {
	clear(b.backing)
}
