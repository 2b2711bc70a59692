// Package radio defines the IEEE 802.15.4 radio capability used by the
// protocol engine, and the Proxy Split that lets a timing-sensitive PHY
// driver run on its own scheduling context.
//
// # Radio
//
// A Radio transmits and receives frames:
//
//	caps := r.Caps()
//	res, err := r.Transmit(ctx, frame)   // TxAck, TxNoAck or TxChannelBusy
//	meta, err := r.Receive(ctx, frame)   // ErrRxWindow when the window elapses
//
// Frames are fixed-capacity buffers passed by pointer. A frame handed to
// Transmit or Receive belongs to the radio until the call returns; the
// caller must not touch it in between.
//
// # Proxy Split
//
// NewProxy splits one radio into two halves:
//
//	proxy, phy := radio.NewProxy(hw.Caps(), &radio.ProxyResources{}, radio.DefaultProxyConfig())
//	go phy.Run(ctx, hw)     // high-priority context, sole owner of hw
//	engine.Run(ctx, proxy)  // engine context
//
// The ProxyRadio forwards every operation to the PhyRunner over two bounded
// single-producer single-consumer queues and waits for the result with an
// adaptive backoff. Every forwarded call is bounded by ProxyConfig.Timeout;
// a stalled PHY context surfaces as ErrProxyTimeout instead of hanging the
// engine.
package radio
