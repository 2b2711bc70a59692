package radio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"
)

// proxySlots is the number of frame buffers shared across the split.
// A timed-out request keeps its slot lent to the PHY until the late
// response arrives, so more than one slot is needed.
const proxySlots = 4

// queueCapacity bounds both SPSC queues.
const queueCapacity = 8

// Proxy errors.
var (
	// ErrCapsMismatch indicates the PHY radio does not match the proxy.
	ErrCapsMismatch = errors.New("radio capabilities do not match proxy")

	// ErrPhyRunning indicates PhyRunner.Run was entered twice.
	ErrPhyRunning = errors.New("phy runner already running")

	// ErrNoFrameSlot indicates every shared frame slot is held by a stalled PHY.
	ErrNoFrameSlot = errors.New("no free proxy frame slot")
)

// ProxyConfig configures the proxy timeout policy.
type ProxyConfig struct {
	// Timeout bounds every forwarded operation. Receive calls are bounded by
	// Timeout plus RxWindow.
	Timeout time.Duration

	// RxWindow is the receive window the PHY runner uses per Receive.
	RxWindow time.Duration
}

// DefaultProxyConfig returns the default proxy configuration.
func DefaultProxyConfig() ProxyConfig {
	return ProxyConfig{
		Timeout:  100 * time.Millisecond,
		RxWindow: 10 * time.Millisecond,
	}
}

type opKind uint8

const (
	opSet opKind = iota
	opTransmit
	opReceive
)

type request struct {
	seq      uint32
	kind     opKind
	slot     int8
	cfg      Config
	deadline time.Time
}

type response struct {
	seq  uint32
	slot int8
	tx   TxResult
	meta RxMeta
	err  error
}

// ProxyResources holds the memory shared by a ProxyRadio and its PhyRunner.
// The zero value is ready to use; a ProxyResources may back only one proxy.
type ProxyResources struct {
	req   lfq.SPSC[request]
	resp  lfq.SPSC[response]
	slots [proxySlots]Frame
	used  atomic.Bool
}

// ProxyRadio is the engine-side half of a Proxy Split. It implements Radio
// by forwarding every call to a PhyRunner. Like any Radio it must be driven
// by one goroutine at a time.
type ProxyRadio struct {
	caps Caps
	cfg  ProxyConfig
	res  *ProxyResources
	seq  atomix.Uint32
	lent [proxySlots]bool
}

// PhyRunner is the PHY-side half of a Proxy Split. Run it on its own
// goroutine; it becomes the only user of the underlying radio.
type PhyRunner struct {
	caps    Caps
	cfg     ProxyConfig
	res     *ProxyResources
	running atomic.Bool
}

// NewProxy splits a radio with the given capabilities into a ProxyRadio and
// a PhyRunner sharing res. caps must be read from the underlying radio before
// it is handed to the runner. Reusing res panics.
func NewProxy(caps Caps, res *ProxyResources, cfg ProxyConfig) (*ProxyRadio, *PhyRunner) {
	if !res.used.CompareAndSwap(false, true) {
		panic("radio: " + ErrProxyInUse.Error())
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultProxyConfig().Timeout
	}
	if cfg.RxWindow <= 0 {
		cfg.RxWindow = DefaultProxyConfig().RxWindow
	}
	res.req.Init(queueCapacity)
	res.resp.Init(queueCapacity)

	return &ProxyRadio{caps: caps, cfg: cfg, res: res},
		&PhyRunner{caps: caps, cfg: cfg, res: res}
}

// Caps returns the capabilities captured at construction.
func (p *ProxyRadio) Caps() Caps {
	return p.caps
}

// Set forwards a configuration to the PHY.
func (p *ProxyRadio) Set(ctx context.Context, cfg Config) error {
	resp, err := p.call(ctx, request{kind: opSet, slot: -1, cfg: cfg}, p.cfg.Timeout)
	if err != nil {
		return err
	}
	return resp.err
}

// Transmit copies f into a shared slot and forwards it to the PHY.
// f is never visible to the PHY context.
func (p *ProxyRadio) Transmit(ctx context.Context, f *Frame) (TxResult, error) {
	slot, err := p.takeSlot()
	if err != nil {
		return TxNoAck, err
	}
	p.res.slots[slot].CopyFrom(f)

	resp, err := p.call(ctx, request{kind: opTransmit, slot: slot}, p.cfg.Timeout)
	if err != nil {
		return TxNoAck, err
	}
	return resp.tx, resp.err
}

// Receive forwards a receive window to the PHY and copies the frame out of
// the shared slot into f.
func (p *ProxyRadio) Receive(ctx context.Context, f *Frame) (RxMeta, error) {
	slot, err := p.takeSlot()
	if err != nil {
		return RxMeta{}, err
	}
	p.res.slots[slot].Reset()

	resp, err := p.call(ctx, request{kind: opReceive, slot: slot}, p.cfg.Timeout+p.cfg.RxWindow)
	if err != nil {
		return RxMeta{}, err
	}
	if resp.err != nil {
		return RxMeta{}, resp.err
	}
	f.CopyFrom(&p.res.slots[slot])
	return resp.meta, nil
}

func (p *ProxyRadio) takeSlot() (int8, error) {
	p.drainLate()
	for i := range p.lent {
		if !p.lent[i] {
			return int8(i), nil
		}
	}
	return -1, ErrNoFrameSlot
}

// call enqueues req and waits for its response. On timeout the request's
// slot stays lent until the late response is drained.
func (p *ProxyRadio) call(ctx context.Context, req request, timeout time.Duration) (response, error) {
	req.seq = p.seq.Add(1)
	req.deadline = time.Now().Add(timeout)
	if req.slot >= 0 {
		p.lent[req.slot] = true
	}

	var bo iox.Backoff
	for {
		err := p.res.req.Enqueue(&req)
		if err == nil {
			break
		}
		if !iox.IsWouldBlock(err) {
			p.release(req.slot)
			return response{}, fmt.Errorf("radio proxy enqueue: %w", err)
		}
		if err := p.expired(ctx, req.deadline); err != nil {
			p.release(req.slot)
			return response{}, err
		}
		bo.Wait()
	}

	bo.Reset()
	for {
		resp, err := p.res.resp.Dequeue()
		if err == nil {
			if resp.slot >= 0 {
				p.lent[resp.slot] = false
			}
			if resp.seq == req.seq {
				return resp, nil
			}
			// Late answer to an earlier, timed-out request.
			bo.Reset()
			continue
		}
		if err := p.expired(ctx, req.deadline); err != nil {
			return response{}, err
		}
		bo.Wait()
	}
}

// drainLate reclaims slots from late responses without blocking.
func (p *ProxyRadio) drainLate() {
	for {
		resp, err := p.res.resp.Dequeue()
		if err != nil {
			return
		}
		if resp.slot >= 0 {
			p.lent[resp.slot] = false
		}
	}
}

func (p *ProxyRadio) release(slot int8) {
	if slot >= 0 {
		p.lent[slot] = false
	}
}

func (p *ProxyRadio) expired(ctx context.Context, deadline time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if time.Now().After(deadline) {
		return ErrProxyTimeout
	}
	return nil
}

// Run services proxy requests against r until ctx is cancelled. The calling
// goroutine is locked to its OS thread for the duration. r must report the
// capabilities the proxy was built with.
func (p *PhyRunner) Run(ctx context.Context, r Radio) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrPhyRunning
	}
	defer p.running.Store(false)

	if got := r.Caps(); got != p.caps {
		return fmt.Errorf("%w: radio %s, proxy %s", ErrCapsMismatch, got, p.caps)
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var bo iox.Backoff
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		req, err := p.res.req.Dequeue()
		if err != nil {
			bo.Wait()
			continue
		}
		bo.Reset()

		resp := p.serve(ctx, r, req)
		for {
			err := p.res.resp.Enqueue(&resp)
			if err == nil {
				break
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			bo.Wait()
		}
		bo.Reset()
	}
}

func (p *PhyRunner) serve(ctx context.Context, r Radio, req request) response {
	resp := response{seq: req.seq, slot: req.slot}

	opCtx, cancel := context.WithDeadline(ctx, req.deadline)
	defer cancel()

	switch req.kind {
	case opSet:
		resp.err = r.Set(opCtx, req.cfg)
	case opTransmit:
		resp.tx, resp.err = r.Transmit(opCtx, &p.res.slots[req.slot])
	case opReceive:
		rxCtx, rxCancel := context.WithTimeout(opCtx, p.cfg.RxWindow)
		resp.meta, resp.err = r.Receive(rxCtx, &p.res.slots[req.slot])
		rxCancel()
		if errors.Is(resp.err, context.DeadlineExceeded) && ctx.Err() == nil {
			resp.err = ErrRxWindow
		}
	}
	return resp
}

// Compile-time interface satisfaction check.
var _ Radio = (*ProxyRadio)(nil)
