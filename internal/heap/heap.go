// Package heap implements the bounded heap: one fixed-size arena that serves
// every dynamic allocation made on behalf of the guest (bus buffers, handle
// records and the guest's own linear memory).
//
// The arena is created once and never grows. When a request cannot be
// satisfied the heap reports an *errors.OutOfMemoryError, logs the requested
// size, alignment and free byte count, and leaves its free list untouched.
package heap

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dustin/go-humanize"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"go.uber.org/zap"
)

// Addr is an offset into the heap region.
type Addr uint32

// MaxAlign is the largest alignment a caller may request.
const MaxAlign = 4096

// Stats is a snapshot of the allocation ledger.
type Stats struct {
	Size     uint32 // Region size
	Used     uint32 // Bytes currently allocated
	Peak     uint32 // Highest Used ever observed
	Free     uint32 // Size - Used
	Largest  uint32 // Largest contiguous free span
	Allocs   uint64 // Successful allocations
	Frees    uint64 // Successful deallocations
	Failures uint64 // Failed allocations
}

// span is a free extent [off, end).
type span struct {
	off uint32
	end uint32
}

// Heap is a first-fit allocator over a single fixed region.
type Heap struct {
	logger   *zap.Logger
	live     map[Addr]uint32 // addr -> requested size
	region   []byte
	free     []span // sorted by off, never adjacent
	used     uint32
	peak     uint32
	allocs   uint64
	frees    uint64
	failures uint64
	mu       sync.Mutex
}

// Option configures a Heap.
type Option func(*Heap)

// WithLogger sets the logger used for out-of-memory reports and usage lines.
func WithLogger(l *zap.Logger) Option {
	return func(h *Heap) {
		if l != nil {
			h.logger = l
		}
	}
}

// New initializes a heap region of size bytes.
func New(size uint32, opts ...Option) (*Heap, error) {
	if size == 0 {
		return nil, fmt.Errorf("heap: region size must be positive")
	}
	h := &Heap{
		logger: zap.NewNop(),
		region: make([]byte, size),
		free:   []span{{off: 0, end: size}},
		live:   make(map[Addr]uint32),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Allocate reserves size bytes aligned to align (a power of two, 0 means 1).
// On exhaustion it returns an error matching errors.ErrOutOfMemory and the
// ledger is unchanged except for the failure counter.
func (h *Heap) Allocate(size, align uint32) (Addr, error) {
	if size == 0 {
		return 0, fmt.Errorf("heap: zero-size allocation")
	}
	if align == 0 {
		align = 1
	}
	if align&(align-1) != 0 || align > MaxAlign {
		return 0, fmt.Errorf("heap: invalid alignment %d", align)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if addr, ok := h.allocateLocked(size, align); ok {
		return addr, nil
	}

	h.failures++
	total := uint32(len(h.region))
	oom := &domainerrors.OutOfMemoryError{
		Size:      size,
		Align:     align,
		Free:      total - h.used,
		Largest:   h.largestLocked(),
		HeapTotal: total,
	}
	h.logger.Error("OOM intercepted",
		zap.Uint32("size", size),
		zap.Uint32("align", align),
		zap.Uint32("free", oom.Free),
		zap.Uint32("largest", oom.Largest),
		zap.Uint32("total", total),
	)
	return 0, oom
}

// tryAllocate is Allocate without the failure report. size must be positive
// and align a valid power of two.
func (h *Heap) tryAllocate(size, align uint32) (Addr, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.allocateLocked(size, align)
}

func (h *Heap) allocateLocked(size, align uint32) (Addr, bool) {
	for i, s := range h.free {
		start := alignUp(uint64(s.off), uint64(align))
		end := start + uint64(size)
		if end > uint64(s.end) {
			continue
		}
		h.carve(i, uint32(start), uint32(end))
		addr := Addr(start)
		h.live[addr] = size
		h.charge(size)
		h.allocs++
		return addr, true
	}
	return 0, false
}

// extend grows the live block at addr to size without moving it. It
// succeeds only when the free span directly after the block is large enough.
func (h *Heap) extend(addr Addr, size uint32) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	recorded, ok := h.live[addr]
	if !ok || size <= recorded {
		return false
	}
	end := uint32(addr) + recorded
	want := uint64(addr) + uint64(size)
	i := sort.Search(len(h.free), func(j int) bool { return h.free[j].off >= end })
	if i == len(h.free) || h.free[i].off != end || uint64(h.free[i].end) < want {
		return false
	}
	h.carve(i, end, uint32(want))
	h.live[addr] = size
	h.charge(size - recorded)
	return true
}

func (h *Heap) charge(n uint32) {
	h.used += n
	if h.used > h.peak {
		h.peak = h.used
	}
}

// Deallocate releases a block returned by Allocate. size must be the size
// originally requested; the ledger is decremented by the recorded size so a
// mismatched argument cannot corrupt the accounting. Unknown addresses are ignored.
func (h *Heap) Deallocate(addr Addr, size, align uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	recorded, ok := h.live[addr]
	if !ok {
		h.logger.Warn("deallocate of untracked address", zap.Uint32("addr", uint32(addr)), zap.Uint32("size", size))
		return
	}
	if recorded != size {
		h.logger.Warn("deallocate size mismatch",
			zap.Uint32("addr", uint32(addr)),
			zap.Uint32("size", size),
			zap.Uint32("recorded", recorded),
			zap.Uint32("align", align),
		)
	}

	delete(h.live, addr)
	h.used -= recorded
	h.frees++
	h.release(uint32(addr), uint32(addr)+recorded)
}

// Bytes returns the region view of a live block. The slice capacity is
// clipped so appends never spill into neighbouring blocks.
func (h *Heap) Bytes(addr Addr, size uint32) []byte {
	end := uint32(addr) + size
	return h.region[addr:end:end]
}

// Size returns the region size.
func (h *Heap) Size() uint32 {
	return uint32(len(h.region))
}

// Stats returns a snapshot of the ledger.
func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()

	size := uint32(len(h.region))
	return Stats{
		Size:     size,
		Used:     h.used,
		Peak:     h.peak,
		Free:     size - h.used,
		Largest:  h.largestLocked(),
		Allocs:   h.allocs,
		Frees:    h.frees,
		Failures: h.failures,
	}
}

// LogUsage writes one usage line tagged with stage.
func (h *Heap) LogUsage(stage string) {
	st := h.Stats()
	h.logger.Info(fmt.Sprintf("[%s] Mem Used: %s | Free: %s | Peak: %s",
		stage,
		humanize.IBytes(uint64(st.Used)),
		humanize.IBytes(uint64(st.Free)),
		humanize.IBytes(uint64(st.Peak)),
	),
		zap.String("stage", stage),
		zap.Uint32("used", st.Used),
		zap.Uint32("free", st.Free),
		zap.Uint32("peak", st.Peak),
	)
}

// carve removes [start, end) from free span i, keeping the leftovers.
func (h *Heap) carve(i int, start, end uint32) {
	s := h.free[i]
	pieces := make([]span, 0, 2)
	if start > s.off {
		pieces = append(pieces, span{off: s.off, end: start})
	}
	if end < s.end {
		pieces = append(pieces, span{off: end, end: s.end})
	}
	h.free = slices.Replace(h.free, i, i+1, pieces...)
}

// release returns [off, end) to the free list, coalescing with neighbours.
func (h *Heap) release(off, end uint32) {
	i := sort.Search(len(h.free), func(j int) bool { return h.free[j].off >= off })

	mergePrev := i > 0 && h.free[i-1].end == off
	mergeNext := i < len(h.free) && h.free[i].off == end

	switch {
	case mergePrev && mergeNext:
		h.free[i-1].end = h.free[i].end
		h.free = slices.Delete(h.free, i, i+1)
	case mergePrev:
		h.free[i-1].end = end
	case mergeNext:
		h.free[i].off = off
	default:
		h.free = slices.Insert(h.free, i, span{off: off, end: end})
	}
}

func (h *Heap) largestLocked() uint32 {
	var largest uint32
	for _, s := range h.free {
		if n := s.end - s.off; n > largest {
			largest = n
		}
	}
	return largest
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
