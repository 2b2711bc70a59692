package arena

import (
	"errors"
	"testing"
)

// TestArenaAllocUntilExhausted verifies that exhaustion is reported after
// every slot is taken and that earlier slots remain usable.
func TestArenaAllocUntilExhausted(t *testing.T) {
	a := New(2, 16)

	i0, b0, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc 0: %v", err)
	}
	i1, b1, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc 1: %v", err)
	}
	if i0 == i1 {
		t.Fatalf("expected distinct indices, got %d twice", i0)
	}

	if _, _, err := a.Alloc(); !errors.Is(err, ErrExhausted) {
		t.Fatalf("third Alloc: got %v, want ErrExhausted", err)
	}

	copy(b0, "first")
	copy(b1, "second")
	got, err := a.Get(i0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got[:5]) != "first" {
		t.Errorf("slot %d: got %q", i0, got[:5])
	}
}

// TestArenaFreeReuse verifies that a freed slot is handed out again.
func TestArenaFreeReuse(t *testing.T) {
	a := New(1, 8)

	idx, buf, err := a.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	copy(buf, "dirty")

	if err := a.Free(idx); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if a.Available() != 1 {
		t.Fatalf("Available = %d, want 1", a.Available())
	}

	idx2, buf2, err := a.Alloc()
	if err != nil {
		t.Fatalf("second Alloc: %v", err)
	}
	if idx2 != idx {
		t.Errorf("got index %d, want %d", idx2, idx)
	}
	for i, b := range buf2 {
		if b != 0 {
			t.Fatalf("slot not zeroed at %d: %x", i, b)
		}
	}
}

// TestArenaDoubleFree verifies that freeing twice is detected.
func TestArenaDoubleFree(t *testing.T) {
	a := New(2, 4)
	idx, _, _ := a.Alloc()

	if err := a.Free(idx); err != nil {
		t.Fatalf("Free: %v", err)
	}
	if err := a.Free(idx); !errors.Is(err, ErrDoubleFree) {
		t.Fatalf("second Free: got %v, want ErrDoubleFree", err)
	}
	if a.Available() != 2 {
		t.Errorf("Available = %d, want 2", a.Available())
	}
}

// TestArenaInvalidIndex verifies bounds checking.
func TestArenaInvalidIndex(t *testing.T) {
	a := New(1, 4)

	if _, err := a.Get(5); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("Get(5): got %v", err)
	}
	if err := a.Free(5); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("Free(5): got %v", err)
	}
	if _, err := a.Get(0); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("Get on free slot: got %v", err)
	}
}

// TestArenaSlotsDoNotOverlap verifies that writes to one slot cannot spill
// into the next.
func TestArenaSlotsDoNotOverlap(t *testing.T) {
	a := New(2, 4)
	_, b0, _ := a.Alloc()
	_, b1, _ := a.Alloc()

	b0 = append(b0, 0xff) // capacity is clamped, so this reallocates
	_ = b0
	for _, b := range b1 {
		if b != 0 {
			t.Fatal("append on slot 0 wrote into slot 1")
		}
	}
}
