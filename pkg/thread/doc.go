// Package thread is a concurrency façade over a single-threaded,
// non-reentrant Thread protocol engine.
//
// The engine behind the façade is reached only through the Native
// interface. It is never entered concurrently: an Engine owns it, and every
// other goroutine talks to it through a Handle.
//
// # Lifecycle
//
//	res, _ := thread.NewResources(thread.DefaultResourcesConfig())
//	eng, err := thread.New(cfg, res, mesh.New(meshCfg))
//	h := eng.Handle()
//
//	h.SetActiveDataset(ctx, ds)     // runs inline: Run has not started yet
//	h.EnableIPv6(ctx, true)
//	h.EnableThread(ctx, true)
//
//	go eng.Run(ctx, radio)          // from now on, commands are queued
//
// Run drives the engine: each iteration processes queued commands, then
// received frames, then timers, then hands the next outgoing frame to the
// radio pump. It then publishes an immutable snapshot of the observable
// state and wakes WaitChanged callers if anything changed. Calling Run twice
// panics.
//
// # Observing Changes
//
// Reads such as IPv6Addrs, Role and SrpServices return data from the last
// published snapshot. WaitChanged is edge-triggered per handle: it returns
// once a change has been published that this handle has not seen. Handles
// created with Clone observe changes independently.
//
//	for {
//	    for addr := range h.IPv6Addrs() { ... }
//	    if err := h.WaitChanged(ctx); err != nil { return err }
//	}
//
// # Resources
//
// Sockets and SRP service records live in fixed pools sized by
// ResourcesConfig. Exhaustion fails with ErrResourceExhausted. Nothing grows.
// A Resources value backs exactly one engine.
//
// # Contract Violations
//
// A second Run and a second concurrent Recv on one socket panic. Callbacks
// and iterators never run on the engine's goroutine, except the sink given
// to SetIPv6Receive, which must not call back into the handle.
package thread
