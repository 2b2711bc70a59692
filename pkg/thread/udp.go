package thread

import (
	"context"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/threadkit/threadkit-go/pkg/arena"
	"github.com/threadkit/threadkit-go/pkg/log"
)

// UDPSocket is a UDP socket on the engine's native IPv6 stack. Its receive
// queue is the single arena slot it owns: one datagram is buffered at a
// time, and datagrams arriving while it is full are dropped.
type UDPSocket struct {
	e     *Engine
	id    uint32
	local netip.AddrPort

	mu      sync.Mutex
	buf     []byte
	n       int
	full    bool
	dLocal  netip.AddrPort
	dRemote netip.AddrPort
	closed  bool

	ready    chan struct{}
	closedCh chan struct{}
	inRecv   atomic.Bool
	dropped  atomic.Uint64
}

// BindUDP opens a socket on local. The port must be non-zero. It fails with
// ErrAddressInUse if an open socket already covers local, and with
// ErrResourceExhausted if every socket slot is taken.
func (h Handle) BindUDP(ctx context.Context, local netip.AddrPort) (*UDPSocket, error) {
	if local.Port() == 0 || (local.Addr().IsValid() && !local.Addr().Is6()) {
		return nil, fmt.Errorf("bind %s: %w: need an IPv6 address and a port", local, ErrInvalidConfig)
	}
	e := h.e
	var s *UDPSocket
	err := e.exec(ctx, func() error {
		for _, other := range e.sockets {
			if overlaps(other.local, local) {
				return ErrAddressInUse
			}
		}
		idx, buf, err := e.res.udp.Alloc()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
		}
		sock := &UDPSocket{
			e:        e,
			id:       uint32(idx),
			local:    local,
			buf:      buf,
			ready:    make(chan struct{}, 1),
			closedCh: make(chan struct{}),
		}
		if err := e.native.UDPOpen(sock.id, local); err != nil {
			_ = e.res.udp.Free(idx)
			return rejected("udp open", err)
		}
		e.sockets[sock.id] = sock
		s = sock
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("bind %s: %w", local, err)
	}
	e.logSocket(local, "BOUND")
	return s, nil
}

func overlaps(a, b netip.AddrPort) bool {
	if a.Port() != b.Port() {
		return false
	}
	if !a.Addr().IsValid() || !b.Addr().IsValid() || a.Addr().IsUnspecified() || b.Addr().IsUnspecified() {
		return true
	}
	return a.Addr() == b.Addr()
}

// LocalAddr returns the endpoint the socket was bound to.
func (s *UDPSocket) LocalAddr() netip.AddrPort {
	return s.local
}

// Dropped returns the number of datagrams dropped because the receive slot
// was full or too small.
func (s *UDPSocket) Dropped() uint64 {
	return s.dropped.Load()
}

// Send transmits data to dst. An invalid src lets the engine pick the
// source address. Payloads larger than the socket buffer fail with
// ErrPayloadTooLarge; a closed socket fails with ErrNotBound.
func (s *UDPSocket) Send(ctx context.Context, data []byte, src netip.Addr, dst netip.AddrPort) error {
	if len(data) > len(s.buf) {
		return fmt.Errorf("send to %s: %w: %d > %d", dst, ErrPayloadTooLarge, len(data), len(s.buf))
	}
	err := s.e.exec(ctx, func() error {
		if s.isClosed() {
			return ErrNotBound
		}
		return rejected("udp send", s.e.native.UDPSend(s.id, data, src, dst))
	})
	if err != nil {
		return fmt.Errorf("send to %s: %w", dst, err)
	}
	s.e.logDatagram(log.DirectionOut, s.local, dst, data)
	return nil
}

// Recv waits for a datagram, copies it into buf and returns its length with
// the local and remote endpoints. A datagram longer than buf is truncated.
//
// At most one Recv may be pending per socket; a concurrent second call
// panics. Recv returns ErrNotBound once the socket is closed.
func (s *UDPSocket) Recv(ctx context.Context, buf []byte) (n int, local, remote netip.AddrPort, err error) {
	if !s.inRecv.CompareAndSwap(false, true) {
		panic("thread: concurrent Recv on one UDP socket")
	}
	defer s.inRecv.Store(false)

	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return 0, local, remote, ErrNotBound
		}
		if s.full {
			n = copy(buf, s.buf[:s.n])
			local, remote = s.dLocal, s.dRemote
			s.full = false
			s.mu.Unlock()
			return n, local, remote, nil
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-s.closedCh:
		case <-ctx.Done():
			return 0, local, remote, ctx.Err()
		case <-s.e.done:
			return 0, local, remote, ErrStopped
		}
	}
}

// deliver stores a datagram in the receive slot. Called by the engine owner.
func (s *UDPSocket) deliver(payload []byte, local, remote netip.AddrPort) {
	s.mu.Lock()
	if s.closed || s.full || len(payload) > len(s.buf) {
		s.mu.Unlock()
		s.dropped.Add(1)
		s.e.debugLog("udp datagram dropped", "local", s.local, "remote", remote, "len", len(payload))
		return
	}
	s.n = copy(s.buf, payload)
	s.dLocal, s.dRemote = local, remote
	s.full = true
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	s.e.logDatagram(log.DirectionIn, local, remote, payload)
}

func (s *UDPSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close unbinds the socket and returns its slot to the pool. It is safe to
// call more than once; only the first call releases the slot.
func (s *UDPSocket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.closedCh)
	s.mu.Unlock()

	e := s.e
	err := e.exec(context.Background(), func() error {
		delete(e.sockets, s.id)
		e.native.UDPClose(s.id)
		return e.res.udp.Free(arena.Index(s.id))
	})
	if isStopped(err) {
		// Nobody owns the native engine any more; only the slot remains.
		err = e.res.udp.Free(arena.Index(s.id))
	}
	if err != nil {
		return fmt.Errorf("close %s: %w", s.local, err)
	}
	e.logSocket(s.local, "CLOSED")
	return nil
}

func (e *Engine) logSocket(local netip.AddrPort, state string) {
	if !e.capture {
		return
	}
	e.plog.Log(e.origin().Stamp(log.Event{
		Layer:       log.LayerSocket,
		Category:    log.CategoryState,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntitySocket, NewState: state, Name: local.String()},
	}))
}

func (e *Engine) logDatagram(dir log.Direction, local, remote netip.AddrPort, payload []byte) {
	if !e.capture {
		return
	}
	e.plog.Log(e.origin().Stamp(log.Event{
		Direction: dir,
		Layer:     log.LayerSocket,
		Category:  log.CategoryMessage,
		Peer:      remote.String(),
		Datagram:  log.NewDatagramEvent(local.String(), remote.String(), payload),
	}))
}
