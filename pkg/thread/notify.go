package thread

import (
	"context"
	"sync"
	"sync/atomic"
)

// notifier is a broadcast signal with a generation counter. Each signal
// closes the current channel and replaces it, waking every waiter.
type notifier struct {
	mu  sync.Mutex
	gen uint64
	ch  chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

func (n *notifier) signal() {
	n.mu.Lock()
	n.gen++
	close(n.ch)
	n.ch = make(chan struct{})
	n.mu.Unlock()
}

func (n *notifier) current() (uint64, <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.gen, n.ch
}

// cursor is the last generation one observer has seen.
type cursor struct {
	seen atomic.Uint64
}

// wait returns once the generation differs from what c last saw, recording
// the new generation. done aborts the wait with ErrStopped.
func (n *notifier) wait(ctx context.Context, c *cursor, done <-chan struct{}) error {
	for {
		gen, ch := n.current()
		if old := c.seen.Load(); gen != old {
			if c.seen.CompareAndSwap(old, gen) {
				return nil
			}
			continue
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
			if gen, _ := n.current(); gen != c.seen.Load() {
				continue
			}
			return ErrStopped
		}
	}
}
