package thread

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/threadkit/threadkit-go/pkg/arena"
	"github.com/threadkit/threadkit-go/pkg/log"
	"github.com/threadkit/threadkit-go/pkg/radio"
)

// command is a closure run by the engine owner. Its result is sent on reply
// after the snapshot reflecting it has been published.
type command struct {
	fn    func() error
	reply chan error
}

type pendingReply struct {
	reply chan error
	err   error
}

// Engine owns a native protocol engine and serializes every access to it.
//
// Before Run starts, handle operations execute synchronously under an owner
// lock. Once Run is running, they are queued as commands and executed by the
// run loop between radio and timer work. After Run returns, mutating
// operations fail with ErrStopped while reads keep returning the last
// published state.
type Engine struct {
	cfg        Config
	res        *Resources
	native     Native
	logger     *slog.Logger
	plog       log.Logger
	capture    bool
	instanceID string

	owner   sync.Mutex
	entered atomic.Bool
	running atomic.Bool
	stopped atomic.Bool
	done    chan struct{}
	cmds    chan command

	snap   atomic.Pointer[snapshot]
	notify *notifier

	// Owned by whoever owns native.
	pending   Changes
	dirty     bool
	replies   []pendingReply
	sockets   map[uint32]*UDPSocket
	services  map[SrpServiceID]arena.Index
	srpConf   SrpConf
	lastRole  Role
	lastHost  SrpState
	lastSvc   map[SrpServiceID]SrpState
	ipv6Sink  func(pkt []byte)
	radioCfg  radio.Config
	radioSent bool
}

// New creates an engine over native, lending it res for its lifetime.
// It fails with ErrResourcesInUse if res already backs an engine, and with
// a wrapped ErrEngineRejected if the native engine cannot initialize.
func New(cfg Config, res *Resources, native Native) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if res == nil || native == nil {
		return nil, fmt.Errorf("%w: resources and native engine are required", ErrInvalidConfig)
	}
	cfg.applyDefaults()
	if err := res.claim(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		res:        res,
		native:     native,
		logger:     cfg.Logger,
		plog:       cfg.ProtocolLogger,
		instanceID: uuid.New().String(),
		done:       make(chan struct{}),
		cmds:       make(chan command, cfg.CommandQueue),
		notify:     newNotifier(),
		sockets:    make(map[uint32]*UDPSocket),
		services:   make(map[SrpServiceID]arena.Index),
		lastSvc:    make(map[SrpServiceID]SrpState),
	}
	e.capture = log.Enabled(cfg.ProtocolLogger)

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	err := native.Init(NativeConfig{
		EUI64:          cfg.EUI64,
		Entropy:        cfg.Entropy,
		Logger:         logger,
		ProtocolLogger: cfg.ProtocolLogger,
		InstanceID:     e.instanceID,
		Settings:       cfg.Settings,
	}, engineHost{e})
	if err != nil {
		res.release()
		return nil, rejected("init", err)
	}

	e.lastRole = native.Role()
	e.lastHost = native.SrpHostState()
	e.snap.Store(e.buildSnapshot())
	e.debugLog("engine created", "eui64", cfg.EUI64, "instance", e.instanceID)
	return e, nil
}

// InstanceID returns the identifier used in protocol capture events.
func (e *Engine) InstanceID() string {
	return e.instanceID
}

// Handle returns a new handle with its own change cursor.
func (e *Engine) Handle() Handle {
	c := &cursor{}
	gen, _ := e.notify.current()
	c.seen.Store(gen)
	return Handle{e: e, cur: c}
}

// Run drives the engine with r until ctx is cancelled, or until the radio
// reports it is closed. It must be called exactly once; a second call
// panics. r is used only by the radio pump goroutine Run starts.
func (e *Engine) Run(ctx context.Context, r radio.Radio) error {
	if !e.entered.CompareAndSwap(false, true) {
		panic("thread: non-reentrant engine entered twice")
	}

	e.owner.Lock()
	e.running.Store(true)
	e.owner.Unlock()
	defer e.shutdown()

	p := newPump(r, e.cfg.RxWindow, e.logger)
	pctx, cancel := context.WithCancel(ctx)
	go p.run(pctx)
	defer func() {
		cancel()
		<-p.done
	}()

	e.logState(log.StateEntityEngine, "STOPPED", "RUNNING", "run")
	defer e.logState(log.StateEntityEngine, "RUNNING", "STOPPED", "run")

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()
	txBusy := false

	for {
		// Priority order: commands, received frames, timers.
		e.drainCommands()
		e.drainReceived(p)
		next := e.native.Process(time.Now())

		e.pushRadioConfig(p)
		if !txBusy && e.native.NextTransmit(&p.tx) {
			p.txReq <- struct{}{}
			txBusy = true
		}
		e.publish()

		resetTimer(timer, next)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-p.failed:
			return fmt.Errorf("radio: %w", err)
		case cmd := <-e.cmds:
			e.runCommand(cmd)
		case rx := <-p.rx:
			e.receive(p, rx)
		case done := <-p.txDone:
			txBusy = false
			if done.err != nil {
				e.debugLog("transmit failed", "error", done.err)
			}
			e.logFrame(log.DirectionOut, &p.tx, done.result.String(), 0)
			e.native.TransmitDone(&p.tx, done.result, done.err)
		case <-timer.C:
		}
	}
}

func resetTimer(t *time.Timer, next time.Time) {
	t.Stop()
	if next.IsZero() {
		return
	}
	d := time.Until(next)
	if d < 0 {
		d = 0
	}
	t.Reset(d)
}

func (e *Engine) drainCommands() {
	for {
		select {
		case cmd := <-e.cmds:
			e.runCommand(cmd)
		default:
			return
		}
	}
}

func (e *Engine) drainReceived(p *pump) {
	for {
		select {
		case rx := <-p.rx:
			e.receive(p, rx)
		default:
			return
		}
	}
}

func (e *Engine) runCommand(cmd command) {
	err := cmd.fn()
	e.replies = append(e.replies, pendingReply{reply: cmd.reply, err: err})
}

func (e *Engine) receive(p *pump, rx received) {
	e.logFrame(log.DirectionIn, rx.f, "", rx.meta.RSSI)
	e.native.Receive(rx.f, rx.meta)
	p.rxFree <- rx.f
}

func (e *Engine) pushRadioConfig(p *pump) {
	cfg := e.native.RadioConfig()
	if e.radioSent && cfg == e.radioCfg {
		return
	}
	e.radioCfg, e.radioSent = cfg, true
	select {
	case <-p.cfg:
	default:
	}
	p.cfg <- cfg
}

// exec runs fn as the engine owner. Before Run it runs inline under the
// owner lock; while Run is running it is queued. ctx bounds only the wait
// for a free queue slot: once queued, a command always runs.
func (e *Engine) exec(ctx context.Context, fn func() error) error {
	e.owner.Lock()
	if !e.running.Load() {
		defer e.owner.Unlock()
		if e.stopped.Load() {
			return ErrStopped
		}
		err := fn()
		e.publish()
		return err
	}
	e.owner.Unlock()

	cmd := command{fn: fn, reply: make(chan error, 1)}
	select {
	case e.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrStopped
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-e.done:
		select {
		case err := <-cmd.reply:
			return err
		default:
			return ErrStopped
		}
	}
}

// publish reconciles released services, rebuilds the snapshot when anything
// observable changed, signals waiters, and then answers deferred commands.
func (e *Engine) publish() {
	e.reconcileServices()
	if e.pending != 0 || e.dirty {
		changes := e.pending
		e.pending, e.dirty = 0, false

		if role := e.native.Role(); role != e.lastRole {
			e.logState(log.StateEntityRole, e.lastRole.String(), role.String(), "")
			e.lastRole = role
		}
		if host := e.native.SrpHostState(); host != e.lastHost {
			e.logState(log.StateEntitySrpClient, e.lastHost.String(), host.String(), e.srpConf.HostName)
			e.lastHost = host
		}

		snap := e.buildSnapshot()
		e.logServiceStates(snap)
		e.snap.Store(snap)
		e.notify.signal()
		e.debugLog("state changed", "changes", changes)
	}

	for _, r := range e.replies {
		r.reply <- r.err
	}
	clear(e.replies)
	e.replies = e.replies[:0]
}

func (e *Engine) shutdown() {
	e.owner.Lock()
	e.stopped.Store(true)
	e.running.Store(false)
	e.owner.Unlock()
	close(e.done)

	for {
		select {
		case cmd := <-e.cmds:
			cmd.reply <- ErrStopped
		default:
			return
		}
	}
}

// engineHost receives native callbacks. It is a separate type so that the
// callbacks are not part of Engine's API.
type engineHost struct {
	e *Engine
}

func (h engineHost) Notify(changes Changes) {
	h.e.pending |= changes
}

func (h engineHost) DeliverUDP(id uint32, payload []byte, local, remote netip.AddrPort) {
	s, ok := h.e.sockets[id]
	if !ok {
		h.e.debugLog("datagram for unknown socket", "id", id)
		return
	}
	s.deliver(payload, local, remote)
}

func (h engineHost) DeliverIPv6(pkt []byte) {
	if h.e.ipv6Sink != nil {
		h.e.ipv6Sink(pkt)
	}
}

func (e *Engine) debugLog(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

func (e *Engine) logState(entity log.StateEntity, from, to, name string) {
	if !e.capture {
		return
	}
	e.plog.Log(e.origin().Stamp(log.Event{
		Layer:    layerFor(entity),
		Category: log.CategoryState,
		StateChange: &log.StateChangeEvent{
			Entity:   entity,
			OldState: from,
			NewState: to,
			Name:     name,
		},
	}))
}

func (e *Engine) logServiceStates(snap *snapshot) {
	seen := make(map[SrpServiceID]bool, len(snap.services))
	for _, svc := range snap.services {
		seen[svc.ID] = true
		old, ok := e.lastSvc[svc.ID]
		if ok && old == svc.State {
			continue
		}
		from := ""
		if ok {
			from = old.String()
		}
		e.logState(log.StateEntitySrpService, from, svc.State.String(), svc.Service.InstanceName+"."+svc.Service.Name)
		e.lastSvc[svc.ID] = svc.State
	}
	for id := range e.lastSvc {
		if !seen[id] {
			delete(e.lastSvc, id)
		}
	}
}

func layerFor(entity log.StateEntity) log.Layer {
	switch entity {
	case log.StateEntitySrpClient, log.StateEntitySrpService:
		return log.LayerService
	case log.StateEntitySocket:
		return log.LayerSocket
	default:
		return log.LayerMesh
	}
}

func (e *Engine) logFrame(dir log.Direction, f *radio.Frame, result string, rssi int8) {
	if !e.capture {
		return
	}
	fe := log.NewFrameEvent(f.Bytes())
	fe.Channel = f.Channel
	fe.RSSI = rssi
	fe.TxResult = result
	e.plog.Log(e.origin().Stamp(log.Event{
		Direction: dir,
		Layer:     log.LayerRadio,
		Category:  log.CategoryMessage,
		Frame:     fe,
	}))
}

// origin identifies this engine in capture events.
func (e *Engine) origin() log.Origin {
	return log.Origin{InstanceID: e.instanceID, ExtAddress: e.native.ExtAddress()}
}

// isStopped reports whether err means the engine is gone.
func isStopped(err error) bool {
	return errors.Is(err, ErrStopped)
}
