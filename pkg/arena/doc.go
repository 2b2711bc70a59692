// Package arena provides fixed-capacity slot pools.
//
// An Arena is sized once at construction and never grows. Callers reserve a
// slot with Alloc and get back a stable Index plus the slot's byte buffer;
// the index stays valid until it is handed back with Free. Exhaustion is
// reported as ErrExhausted, never by silently dropping or reallocating.
//
// The engine uses one arena for UDP socket receive buffers and one for SRP
// service records:
//
//	sockets := arena.New(2, 1280)
//	idx, buf, err := sockets.Alloc()
//	if errors.Is(err, arena.ErrExhausted) {
//	    // back off or free a slot
//	}
//	defer sockets.Free(idx)
package arena
