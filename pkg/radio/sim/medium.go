package sim

import (
	"context"
	"sync"
	"time"

	"github.com/threadkit/threadkit-go/pkg/mac"
	"github.com/threadkit/threadkit-go/pkg/radio"
)

// inboxDepth bounds frames queued at a receiver before they are dropped.
const inboxDepth = 16

// Caps is the capability set of every simulated radio.
const Caps = radio.CapsAckTimeout | radio.CapsCSMABackoff | radio.CapsTransmitRetries |
	radio.CapsRxOnWhenIdle | radio.CapsPromiscuous

// Medium is a shared simulated channel set.
type Medium struct {
	mu     sync.Mutex
	radios []*Radio

	// Drop, when set, decides whether a frame from one radio is lost on its
	// way to another.
	Drop func(from, to *Radio, psdu []byte) bool

	// Busy, when set, decides whether clear channel assessment fails for a
	// transmission.
	Busy func(from *Radio) bool
}

// NewMedium creates an empty medium.
func NewMedium() *Medium {
	return &Medium{}
}

// NewRadio attaches a new radio to the medium.
func (m *Medium) NewRadio() *Radio {
	r := &Radio{
		medium: m,
		inbox:  make(chan received, inboxDepth),
		done:   make(chan struct{}),
	}
	m.mu.Lock()
	m.radios = append(m.radios, r)
	m.mu.Unlock()
	return r
}

func (m *Medium) detach(r *Radio) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, other := range m.radios {
		if other == r {
			m.radios = append(m.radios[:i], m.radios[i+1:]...)
			return
		}
	}
}

// deliver hands psdu to every other radio on channel and reports whether any
// of them accepted it.
func (m *Medium) deliver(from *Radio, channel uint8, psdu []byte) bool {
	h, _, parseErr := mac.Parse(psdu)

	m.mu.Lock()
	peers := append([]*Radio(nil), m.radios...)
	m.mu.Unlock()

	accepted := false
	for _, to := range peers {
		if to == from {
			continue
		}
		cfg := to.config()
		if cfg.Channel != channel {
			continue
		}
		if !cfg.Promiscuous && (parseErr != nil || !h.Accepts(cfg.PanID, cfg.ShortAddress, cfg.ExtAddress)) {
			continue
		}
		if m.Drop != nil && m.Drop(from, to, psdu) {
			continue
		}
		if to.enqueue(channel, psdu) {
			accepted = true
		}
	}
	return accepted
}

type received struct {
	psdu    []byte
	channel uint8
	at      time.Time
}

// Radio is a simulated radio attached to a Medium.
type Radio struct {
	medium *Medium
	inbox  chan received

	mu     sync.Mutex
	cfg    radio.Config
	closed bool
	done   chan struct{}

	txCount, rxCount, dropCount int
}

// Caps returns the simulated capability set.
func (r *Radio) Caps() radio.Caps {
	return Caps
}

// Set applies a configuration.
func (r *Radio) Set(ctx context.Context, cfg radio.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return radio.ErrRadioClosed
	}
	r.cfg = cfg
	return nil
}

func (r *Radio) config() radio.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

// Transmit broadcasts f on its channel, or on the configured channel when
// f.Channel is zero.
func (r *Radio) Transmit(ctx context.Context, f *radio.Frame) (radio.TxResult, error) {
	if err := ctx.Err(); err != nil {
		return radio.TxNoAck, err
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return radio.TxNoAck, radio.ErrRadioClosed
	}
	channel := f.Channel
	if channel == 0 {
		channel = r.cfg.Channel
	}
	r.txCount++
	r.mu.Unlock()

	if r.medium.Busy != nil && r.medium.Busy(r) {
		return radio.TxChannelBusy, nil
	}

	psdu := f.Bytes()
	accepted := r.medium.deliver(r, channel, psdu)

	h, _, err := mac.Parse(psdu)
	if err != nil || !h.AckRequest || h.Dst.IsBroadcast() {
		return radio.TxAck, nil
	}
	if !accepted {
		return radio.TxNoAck, nil
	}
	return radio.TxAck, nil
}

// Receive waits for the next accepted frame or until ctx is done.
func (r *Radio) Receive(ctx context.Context, f *radio.Frame) (radio.RxMeta, error) {
	select {
	case rx := <-r.inbox:
		if err := f.SetBytes(rx.psdu); err != nil {
			return radio.RxMeta{}, err
		}
		f.Channel = rx.channel
		return radio.RxMeta{RSSI: -50, LQI: 255, Timestamp: rx.at}, nil
	case <-r.done:
		return radio.RxMeta{}, radio.ErrRadioClosed
	case <-ctx.Done():
		return radio.RxMeta{}, ctx.Err()
	}
}

func (r *Radio) enqueue(channel uint8, psdu []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false
	}
	select {
	case r.inbox <- received{psdu: append([]byte(nil), psdu...), channel: channel, at: time.Now()}:
		r.rxCount++
		return true
	default:
		r.dropCount++
		return false
	}
}

// Close detaches the radio from its medium. Pending and future calls return
// radio.ErrRadioClosed.
func (r *Radio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()
	r.medium.detach(r)
	return nil
}

// Stats reports frames transmitted, frames queued for reception, and frames
// dropped because the inbox was full.
func (r *Radio) Stats() (tx, rx, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.txCount, r.rxCount, r.dropCount
}

var _ radio.Radio = (*Radio)(nil)
