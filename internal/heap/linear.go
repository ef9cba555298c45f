package heap

import (
	"math"

	"github.com/tetratelabs/wazero/experimental"
)

// linearAlign is the alignment of guest linear memory blocks.
const linearAlign = 16

// LinearMemory is a guest linear memory whose backing bytes live in the heap.
// The first allocation reserves the memory's maximum size when the heap has
// room for it, so later memory.grow calls never move or fragment the block.
// Growth that the heap cannot satisfy returns nil, which the interpreter
// reports to the guest as a failed memory.grow.
type LinearMemory struct {
	heap     *Heap
	addr     Addr
	size     uint32 // bytes visible to the guest
	reserved uint32 // bytes held in the heap, never less than size
	max      uint64
	live     bool
}

var _ experimental.LinearMemory = (*LinearMemory)(nil)

// Allocator returns a wazero memory allocator serving every guest memory
// from h. Install it with experimental.WithMemoryAllocator.
func (h *Heap) Allocator() experimental.MemoryAllocator {
	return experimental.MemoryAllocatorFunc(func(_, max uint64) experimental.LinearMemory {
		return &LinearMemory{heap: h, max: max}
	})
}

// Reallocate resizes the memory to size bytes, preserving its contents.
// Newly exposed bytes are zero.
func (m *LinearMemory) Reallocate(size uint64) []byte {
	if size > m.max || size > math.MaxUint32 {
		return nil
	}
	n := uint32(size)
	switch {
	case m.live && n <= m.size:
		return m.heap.Bytes(m.addr, n)
	case m.live && n <= m.reserved:
	case m.live && m.heap.extend(m.addr, n):
		m.reserved = n
	case m.live:
		if !m.relocate(n) {
			return nil
		}
	case n == 0:
		return []byte{}
	default:
		if !m.reserve(n) {
			return nil
		}
	}

	buf := m.heap.Bytes(m.addr, n)
	clear(buf[m.size:])
	m.size = n
	return buf
}

// reserve takes the first block, sized to the maximum when it fits and to n
// otherwise.
func (m *LinearMemory) reserve(n uint32) bool {
	if m.max > uint64(n) && m.max <= math.MaxUint32 {
		if addr, ok := m.heap.tryAllocate(uint32(m.max), linearAlign); ok {
			m.addr, m.reserved, m.live = addr, uint32(m.max), true
			return true
		}
	}
	addr, err := m.heap.Allocate(n, linearAlign)
	if err != nil {
		return false
	}
	m.addr, m.reserved, m.live = addr, n, true
	return true
}

// relocate moves the contents into a new block of n bytes.
func (m *LinearMemory) relocate(n uint32) bool {
	addr, err := m.heap.Allocate(n, linearAlign)
	if err != nil {
		return false
	}
	copy(m.heap.Bytes(addr, n), m.heap.Bytes(m.addr, m.size))
	m.heap.Deallocate(m.addr, m.reserved, linearAlign)
	m.addr, m.reserved = addr, n
	return true
}

// Free returns the backing block to the heap.
func (m *LinearMemory) Free() {
	if !m.live {
		return
	}
	m.heap.Deallocate(m.addr, m.reserved, linearAlign)
	m.live = false
	m.size, m.reserved = 0, 0
}
