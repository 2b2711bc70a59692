package arena

import (
	"errors"
	"fmt"
	"sync"
)

// Arena errors.
var (
	// ErrExhausted indicates that every slot is in use.
	ErrExhausted = errors.New("arena exhausted")

	// ErrInvalidIndex indicates an index outside the arena.
	ErrInvalidIndex = errors.New("invalid arena index")

	// ErrDoubleFree indicates a slot was freed while already free.
	ErrDoubleFree = errors.New("arena slot already free")
)

// Index identifies a slot. It stays stable for the lifetime of the allocation.
type Index uint32

// Arena is a pre-allocated pool of fixed-size byte slots.
// All slot buffers point into a single backing array.
// It is safe for concurrent use.
type Arena struct {
	buf      []byte
	slotSize int
	slots    int

	mu    sync.Mutex
	free  []Index // LIFO free list
	inUse []bool
}

// New creates an arena with the given number of slots and bytes per slot.
func New(slots, slotSize int) *Arena {
	if slots < 0 {
		slots = 0
	}
	if slotSize < 0 {
		slotSize = 0
	}
	a := &Arena{
		buf:      make([]byte, slots*slotSize),
		slotSize: slotSize,
		slots:    slots,
		free:     make([]Index, 0, slots),
		inUse:    make([]bool, slots),
	}
	// Lowest index is handed out first.
	for i := slots - 1; i >= 0; i-- {
		a.free = append(a.free, Index(i))
	}
	return a
}

// Alloc reserves a free slot and returns its index and zeroed buffer.
func (a *Arena) Alloc() (Index, []byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.free)
	if n == 0 {
		return 0, nil, fmt.Errorf("%w: %d of %d slots in use", ErrExhausted, a.slots, a.slots)
	}
	idx := a.free[n-1]
	a.free = a.free[:n-1]
	a.inUse[idx] = true

	slot := a.slot(idx)
	clear(slot)
	return idx, slot, nil
}

// Get returns the buffer of an allocated slot.
func (a *Arena) Get(idx Index) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(idx) >= a.slots {
		return nil, fmt.Errorf("%w: %d", ErrInvalidIndex, idx)
	}
	if !a.inUse[idx] {
		return nil, fmt.Errorf("%w: slot %d is free", ErrInvalidIndex, idx)
	}
	return a.slot(idx), nil
}

// Free returns a slot to the pool. Freeing a slot twice is reported as
// ErrDoubleFree and leaves the pool unchanged.
func (a *Arena) Free(idx Index) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if int(idx) >= a.slots {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, idx)
	}
	if !a.inUse[idx] {
		return fmt.Errorf("%w: %d", ErrDoubleFree, idx)
	}
	a.inUse[idx] = false
	a.free = append(a.free, idx)
	return nil
}

// Available returns the number of free slots.
func (a *Arena) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.free)
}

// Cap returns the total number of slots.
func (a *Arena) Cap() int {
	return a.slots
}

// SlotSize returns the size of each slot in bytes.
func (a *Arena) SlotSize() int {
	return a.slotSize
}

func (a *Arena) slot(idx Index) []byte {
	off := int(idx) * a.slotSize
	return a.buf[off : off+a.slotSize : off+a.slotSize]
}
