package heap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wasmPage = 65536

func TestLinearMemory_GrowPreservesAndZeroes(t *testing.T) {
	h, _ := newTestHeap(t, 1024)

	// Dirty the region so the growth path has to clear reused bytes.
	scratch, err := h.Allocate(1024, 1)
	require.NoError(t, err)
	dirty := h.Bytes(scratch, 1024)
	for i := range dirty {
		dirty[i] = 0xAA
	}
	h.Deallocate(scratch, 1024, 1)

	mem := h.Allocator().Allocate(0, 512)
	buf := mem.Reallocate(128)
	require.Len(t, buf, 128)
	assert.Equal(t, make([]byte, 128), buf)
	assert.Equal(t, uint32(512), h.Stats().Used, "maximum reserved up front")
	copy(buf, "hello")

	grown := mem.Reallocate(256)
	require.Len(t, grown, 256)
	assert.Equal(t, "hello", string(grown[:5]))
	assert.Equal(t, make([]byte, 251), grown[5:])
	assert.Equal(t, uint32(512), h.Stats().Used)
	assert.Equal(t, uint64(2), h.Stats().Allocs, "scratch and the reservation")

	mem.Free()
	assert.Equal(t, uint32(0), h.Stats().Used)
}

func TestLinearMemory_GrowsToLimitOnDefaultHeap(t *testing.T) {
	h, _ := newTestHeap(t, 470*1024)

	mem := h.Allocator().Allocate(wasmPage, 4*wasmPage)
	for pages := uint64(1); pages <= 4; pages++ {
		buf := mem.Reallocate(pages * wasmPage)
		require.NotNil(t, buf, "grow to %d pages", pages)
		buf[len(buf)-1] = byte(pages)

		// Handles opened between grows sit after the memory block.
		_, err := h.Allocate(32, 4)
		require.NoError(t, err)
	}
	assert.Zero(t, h.Stats().Failures)
}

func TestLinearMemory_FallsBackWhenMaximumDoesNotFit(t *testing.T) {
	h, logs := newTestHeap(t, 4096)

	mem := h.Allocator().Allocate(0, 1<<20)
	require.Len(t, mem.Reallocate(1024), 1024)
	assert.Equal(t, uint32(1024), h.Stats().Used)
	assert.Zero(t, h.Stats().Failures, "oversized reservation is not a failure")
	assert.Zero(t, logs.Len())

	buf := mem.Reallocate(2048)
	require.Len(t, buf, 2048)
	assert.Equal(t, uint32(2048), h.Stats().Used, "extended in place")
	assert.Equal(t, uint64(1), h.Stats().Allocs)
}

func TestLinearMemory_RelocatesWhenBlocked(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	mem := h.Allocator().Allocate(0, 1<<20)
	buf := mem.Reallocate(512)
	require.NotNil(t, buf)
	copy(buf, "kept")
	_, err := h.Allocate(16, 16)
	require.NoError(t, err)

	grown := mem.Reallocate(1024)
	require.Len(t, grown, 1024)
	assert.Equal(t, "kept", string(grown[:4]))
	assert.Equal(t, make([]byte, 1020), grown[4:])
	assert.Equal(t, uint32(1024+16), h.Stats().Used)
}

func TestLinearMemory_GrowBeyondHeapFails(t *testing.T) {
	h, _ := newTestHeap(t, 256)

	mem := h.Allocator().Allocate(0, 4096)
	require.NotNil(t, mem.Reallocate(128))

	assert.Nil(t, mem.Reallocate(512))
	assert.Equal(t, uint32(128), h.Stats().Used, "failed growth keeps the old block")
	assert.Equal(t, uint64(1), h.Stats().Failures)
}

func TestLinearMemory_GrowBeyondMaxFails(t *testing.T) {
	h, _ := newTestHeap(t, 4096)

	mem := h.Allocator().Allocate(0, 64)
	assert.Nil(t, mem.Reallocate(128))
	assert.Zero(t, h.Stats().Failures)
}

func TestLinearMemory_ShrinkAndDoubleFree(t *testing.T) {
	h, _ := newTestHeap(t, 512)

	mem := h.Allocator().Allocate(0, 512)
	require.Len(t, mem.Reallocate(256), 256)
	assert.Len(t, mem.Reallocate(64), 64)
	assert.Equal(t, uint32(512), h.Stats().Used)

	mem.Free()
	mem.Free()
	assert.Equal(t, uint32(0), h.Stats().Used)
	assert.Equal(t, uint64(1), h.Stats().Frees)
}
