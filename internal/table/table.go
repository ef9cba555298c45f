// Package table maps opaque guest handles to host-side records.
//
// A handle packs a 1-based slot index in its low 16 bits and the slot's
// generation in its high 16 bits. Removing an entry bumps the generation, so
// a handle that was dropped never resolves again even after its slot is
// reused. Every live entry is charged against the bounded heap.
package table

import (
	"fmt"

	"github.com/wasmpico/picohost/domain/entities"
	domainerrors "github.com/wasmpico/picohost/domain/errors"
	"github.com/wasmpico/picohost/internal/heap"
)

// MaxEntries is the largest number of simultaneously live handles.
const MaxEntries = 1<<16 - 1

// DefaultRecordSize is the heap charge of one live entry.
const DefaultRecordSize = 32

const recordAlign = 4

type slot[T any] struct {
	value T
	addr  heap.Addr
	gen   uint16
	live  bool
}

// Table is a generational handle table. It is not safe for concurrent use.
type Table[T any] struct {
	heap       *heap.Heap
	slots      []slot[T]
	free       []int
	recordSize uint32
	live       int
}

// Option configures a Table.
type Option func(*config)

type config struct {
	recordSize uint32
}

// WithRecordSize sets the heap charge per live entry.
func WithRecordSize(n uint32) Option {
	return func(c *config) {
		if n > 0 {
			c.recordSize = n
		}
	}
}

// New creates a table whose entries are charged to h.
func New[T any](h *heap.Heap, opts ...Option) *Table[T] {
	cfg := config{recordSize: DefaultRecordSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Table[T]{heap: h, recordSize: cfg.recordSize}
}

// Insert stores v and returns its handle. It fails with an out-of-memory
// error when the heap cannot hold another record.
func (t *Table[T]) Insert(v T) (entities.Handle, error) {
	var idx int
	if n := len(t.free); n > 0 {
		idx = t.free[n-1]
	} else {
		if len(t.slots) >= MaxEntries {
			return 0, fmt.Errorf("handle table full: %d entries", MaxEntries)
		}
		idx = len(t.slots)
	}

	addr, err := t.heap.Allocate(t.recordSize, recordAlign)
	if err != nil {
		return 0, err
	}

	if idx == len(t.slots) {
		t.slots = append(t.slots, slot[T]{})
	} else {
		t.free = t.free[:len(t.free)-1]
	}

	s := &t.slots[idx]
	s.value = v
	s.addr = addr
	s.live = true
	t.live++
	return handleOf(idx, s.gen), nil
}

// Get resolves h.
func (t *Table[T]) Get(h entities.Handle) (T, error) {
	s, err := t.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	return s.value, nil
}

// Set replaces the record behind a live handle.
func (t *Table[T]) Set(h entities.Handle, v T) error {
	s, err := t.lookup(h)
	if err != nil {
		return err
	}
	s.value = v
	return nil
}

// Remove disposes h and returns its record. A second Remove of the same
// handle fails with *errors.InvalidHandleError.
func (t *Table[T]) Remove(h entities.Handle) (T, error) {
	s, err := t.lookup(h)
	if err != nil {
		var zero T
		return zero, err
	}
	v := s.value
	t.release(int(uint32(h)&0xFFFF) - 1)
	return v, nil
}

// Each calls fn for every live handle in slot order.
func (t *Table[T]) Each(fn func(entities.Handle, T)) {
	for i := range t.slots {
		if s := &t.slots[i]; s.live {
			fn(handleOf(i, s.gen), s.value)
		}
	}
}

// Clear disposes every live handle.
func (t *Table[T]) Clear() {
	for i := range t.slots {
		if t.slots[i].live {
			t.release(i)
		}
	}
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	return t.live
}

func (t *Table[T]) lookup(h entities.Handle) (*slot[T], error) {
	idx := int(uint32(h)&0xFFFF) - 1
	gen := uint16(uint32(h) >> 16)
	if idx < 0 || idx >= len(t.slots) {
		return nil, &domainerrors.InvalidHandleError{Handle: h}
	}
	s := &t.slots[idx]
	if !s.live || s.gen != gen {
		return nil, &domainerrors.InvalidHandleError{Handle: h}
	}
	return s, nil
}

func (t *Table[T]) release(idx int) {
	s := &t.slots[idx]
	t.heap.Deallocate(s.addr, t.recordSize, recordAlign)

	var zero T
	s.value = zero
	s.live = false
	s.gen++
	t.live--
	t.free = append(t.free, idx)
}

func handleOf(idx int, gen uint16) entities.Handle {
	return entities.Handle(uint32(gen)<<16 | uint32(idx+1)) //nolint:gosec // G115: idx < MaxEntries
}
