package enet

import (
	"errors"
	"fmt"
	"sync/atomic"

	"code.hybscloud.com/iox"
	"code.hybscloud.com/lfq"

	"github.com/threadkit/threadkit-go/pkg/ip6"
)

// MTU is the link MTU of the driver.
const MTU = ip6.MinMTU

// Adapter errors.
var (
	// ErrInvalidConfig indicates a bad StateConfig.
	ErrInvalidConfig = errors.New("invalid enet config")

	// ErrStateInUse indicates a State backs a second Runner.
	ErrStateInUse = errors.New("enet state already in use")

	// ErrClosed indicates the runner has stopped.
	ErrClosed = errors.New("enet driver closed")

	// ErrInvalidPacket indicates a packet that is not a well-formed IPv6 packet.
	ErrInvalidPacket = errors.New("invalid ipv6 packet")
)

// StateConfig sizes the packet queues. Depths are rounded up to a power of
// two.
type StateConfig struct {
	// RxDepth is the number of packets buffered from engine to stack.
	RxDepth int

	// TxDepth is the number of packets buffered from stack to engine.
	TxDepth int
}

// DefaultStateConfig returns queues of eight packets each way.
func DefaultStateConfig() StateConfig {
	return StateConfig{RxDepth: 8, TxDepth: 8}
}

// Validate checks the configuration.
func (c *StateConfig) Validate() error {
	if c.RxDepth <= 0 || c.TxDepth <= 0 {
		return fmt.Errorf("%w: queue depths %d/%d", ErrInvalidConfig, c.RxDepth, c.TxDepth)
	}
	return nil
}

type packet struct {
	n   int
	buf [MTU]byte
}

// State holds the packet queues shared by a Runner and its Driver. A State
// backs exactly one Runner.
type State struct {
	rx   lfq.SPSC[packet]
	tx   lfq.SPSC[packet]
	used atomic.Bool

	closed    atomic.Bool
	rxDropped atomic.Uint64
}

// NewState allocates the queues described by cfg.
func NewState(cfg StateConfig) (*State, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &State{}
	s.rx.Init(pow2(cfg.RxDepth))
	s.tx.Init(pow2(cfg.TxDepth))
	return s, nil
}

func pow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

func (s *State) claim() error {
	if !s.used.CompareAndSwap(false, true) {
		return ErrStateInUse
	}
	return nil
}

// push queues a packet for the stack. It runs on the engine goroutine and
// drops the packet when the stack falls behind.
func (s *State) push(pkt []byte) {
	if len(pkt) > MTU {
		s.rxDropped.Add(1)
		return
	}
	var p packet
	p.n = copy(p.buf[:], pkt)
	if err := s.rx.Enqueue(&p); err != nil {
		s.rxDropped.Add(1)
	}
}

// pop waits for the next packet from q with an adaptive backoff.
func pop(q *lfq.SPSC[packet], done func() error) (packet, error) {
	var bo iox.Backoff
	for {
		p, err := q.Dequeue()
		if err == nil {
			return p, nil
		}
		if !iox.IsWouldBlock(err) {
			return packet{}, err
		}
		if err := done(); err != nil {
			return packet{}, err
		}
		bo.Wait()
	}
}
