package enet

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/threadkit/threadkit-go/pkg/radio"
	"github.com/threadkit/threadkit-go/pkg/thread"
)

// Runner drives the engine and the packet pumps between it and the driver.
type Runner struct {
	engine *thread.Engine
	state  *State

	txDropped atomic.Uint64
}

// Run installs the IPv6 receive path, runs the engine with r and pumps
// packets written to the driver into the mesh. It returns when the engine
// stops; the driver then reports ErrClosed.
func (r *Runner) Run(ctx context.Context, rad radio.Radio) error {
	if err := r.state.claim(); err != nil {
		return err
	}
	defer r.state.closed.Store(true)

	h := r.engine.Handle()
	if err := h.SetIPv6Receive(ctx, r.state.push); err != nil {
		return fmt.Errorf("install receive path: %w", err)
	}

	pctx, cancel := context.WithCancel(ctx)
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		r.pumpTx(pctx, h)
	}()

	err := r.engine.Run(ctx, rad)
	r.state.closed.Store(true)
	cancel()
	<-pumpDone
	return err
}

// pumpTx hands driver packets to the engine until ctx ends.
func (r *Runner) pumpTx(ctx context.Context, h thread.Handle) {
	for {
		p, err := pop(&r.state.tx, ctx.Err)
		if err != nil {
			return
		}
		if err := h.SendIPv6(ctx, p.buf[:p.n]); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.txDropped.Add(1)
		}
	}
}

// TxDropped returns the number of driver packets the engine refused.
func (r *Runner) TxDropped() uint64 {
	return r.txDropped.Load()
}
