package thread

import (
	"context"
	"fmt"
	"iter"
	"net/netip"

	"github.com/threadkit/threadkit-go/pkg/dataset"
)

// Handle is a small shareable reference to an Engine. Every operation holds
// exclusive access to the engine only for its own duration.
//
// Copies of a Handle share its change cursor; use Clone to get a handle that
// observes changes independently.
type Handle struct {
	e   *Engine
	cur *cursor
}

// Clone returns a handle to the same engine with its own change cursor,
// starting at the current generation.
func (h Handle) Clone() Handle {
	return h.e.Handle()
}

// Engine returns the engine behind h.
func (h Handle) Engine() *Engine {
	return h.e
}

// WaitChanged blocks until the engine has published a change this handle
// has not observed yet. Each cursor gets its own edge: concurrent waiters on
// different handles all wake on the same change.
func (h Handle) WaitChanged(ctx context.Context) error {
	return h.e.notify.wait(ctx, h.cur, h.e.done)
}

// SetActiveDataset overlays ds onto the active dataset. Absent fields keep
// the engine's current values.
func (h Handle) SetActiveDataset(ctx context.Context, ds *dataset.Dataset) error {
	if ds == nil {
		return fmt.Errorf("set active dataset: %w: nil dataset", ErrInvalidConfig)
	}
	if err := ds.Validate(); err != nil {
		return fmt.Errorf("set active dataset: %w", err)
	}
	c := ds.Clone()
	return h.e.exec(ctx, func() error {
		if err := h.e.native.SetActiveDataset(c); err != nil {
			return rejected("set active dataset", err)
		}
		h.e.pending |= ChangedDataset
		return nil
	})
}

// EnableIPv6 brings the IPv6 interface up or down.
func (h Handle) EnableIPv6(ctx context.Context, enable bool) error {
	return h.e.exec(ctx, func() error {
		return rejected("enable ipv6", h.e.native.EnableIPv6(enable))
	})
}

// EnableThread starts or stops Thread networking. Starting requires a
// resolved active dataset and fails with ErrInvalidState otherwise.
func (h Handle) EnableThread(ctx context.Context, enable bool) error {
	return h.e.exec(ctx, func() error {
		if enable {
			ds, ok := h.e.native.ActiveDataset()
			if !ok {
				return fmt.Errorf("enable thread: %w: no active dataset", ErrInvalidState)
			}
			if err := ds.Resolved(); err != nil {
				return fmt.Errorf("enable thread: %w: %w", ErrInvalidState, err)
			}
		}
		return rejected("enable thread", h.e.native.EnableThread(enable))
	})
}

// Role returns the current device role.
func (h Handle) Role() Role {
	return h.e.snapshot().role
}

// ExtAddress returns the current extended MAC address.
func (h Handle) ExtAddress() [8]byte {
	return h.e.snapshot().extAddr
}

// Eui64 returns the factory identifier.
func (h Handle) Eui64() EUI64 {
	return h.e.cfg.EUI64
}

// ActiveDataset returns a copy of the active dataset, if one is set.
func (h Handle) ActiveDataset() (*dataset.Dataset, bool) {
	s := h.e.snapshot()
	if s.dataset == nil {
		return nil, false
	}
	return s.dataset.Clone(), true
}

// IPv6Addrs iterates the unicast addresses of the last published state. The
// sequence reads an immutable snapshot; it may be restarted and never
// enters the engine.
func (h Handle) IPv6Addrs() iter.Seq[netip.Prefix] {
	addrs := h.e.snapshot().addrs
	return func(yield func(netip.Prefix) bool) {
		for _, a := range addrs {
			if !yield(a) {
				return
			}
		}
	}
}

// LinkLocal returns the first link-local unicast address.
func (h Handle) LinkLocal() (netip.Prefix, bool) {
	for p := range h.IPv6Addrs() {
		if p.Addr().IsLinkLocalUnicast() {
			return p, true
		}
	}
	return netip.Prefix{}, false
}

// SetIPv6Receive installs sink as the receiver of packets no native socket
// consumed, or removes it when sink is nil. sink runs on the engine's
// goroutine and must not block or call back into the handle.
func (h Handle) SetIPv6Receive(ctx context.Context, sink func(pkt []byte)) error {
	return h.e.exec(ctx, func() error {
		h.e.ipv6Sink = sink
		h.e.native.SetIPv6Receive(sink != nil)
		return nil
	})
}

// SendIPv6 injects a complete IPv6 packet into the mesh.
func (h Handle) SendIPv6(ctx context.Context, pkt []byte) error {
	return h.e.exec(ctx, func() error {
		return rejected("send ipv6", h.e.native.SendIPv6(pkt))
	})
}
