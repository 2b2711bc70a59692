package rcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	"github.com/threadkit/threadkit-go/pkg/log"
	"github.com/threadkit/threadkit-go/pkg/radio"
)

// Host errors.
var (
	// ErrProtocol indicates a message the host cannot interpret.
	ErrProtocol = errors.New("rcp protocol error")

	// ErrTimeout indicates the co-processor did not answer in time.
	ErrTimeout = errors.New("rcp response timeout")

	// ErrRemote indicates the co-processor reported a failure.
	ErrRemote = errors.New("rcp request failed")
)

// Config configures the host side of the link.
type Config struct {
	// BaudRate of the serial line. Ignored by New.
	BaudRate int

	// ResponseTimeout bounds the wait for each answer.
	ResponseTimeout time.Duration

	// RxQueue is the number of received frames buffered before the
	// co-processor's frames are dropped.
	RxQueue int

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger

	// ProtocolLogger captures every host-link frame. Nil disables capture.
	ProtocolLogger log.Logger
}

// DefaultConfig returns the settings of a typical USB co-processor.
func DefaultConfig() Config {
	return Config{
		BaudRate:        460800,
		ResponseTimeout: 500 * time.Millisecond,
		RxQueue:         16,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.BaudRate <= 0 {
		c.BaudRate = d.BaudRate
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = d.ResponseTimeout
	}
	if c.RxQueue <= 0 {
		c.RxQueue = d.RxQueue
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

type rxFrame struct {
	psdu    []byte
	channel uint8
	meta    radio.RxMeta
}

// RCP is a radio.Radio backed by a co-processor.
type RCP struct {
	cfg    Config
	conn   io.ReadWriteCloser
	framer *Framer
	logger *slog.Logger

	seq   uint8
	caps  atomic.Uint32
	resp  chan *message
	rx    chan rxFrame
	done  chan struct{}
	once  sync.Once
	err   error
	errMu sync.Mutex
}

// Open opens the serial device at port and queries the co-processor's
// capabilities.
func Open(ctx context.Context, port string, cfg Config) (*RCP, error) {
	cfg.applyDefaults()
	p, err := serial.Open(port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}
	r := newRCP(p, cfg, port)
	if err := r.Probe(ctx); err != nil {
		_ = r.Close()
		return nil, err
	}
	return r, nil
}

// New runs the host side of the protocol over conn. Capabilities read as
// none until Probe succeeds.
func New(conn io.ReadWriteCloser, cfg Config) *RCP {
	cfg.applyDefaults()
	return newRCP(conn, cfg, "rcp")
}

func newRCP(conn io.ReadWriteCloser, cfg Config, peer string) *RCP {
	r := &RCP{
		cfg:    cfg,
		conn:   conn,
		framer: NewFramer(conn),
		logger: cfg.Logger,
		resp:   make(chan *message, 1),
		rx:     make(chan rxFrame, cfg.RxQueue),
		done:   make(chan struct{}),
	}
	if cfg.ProtocolLogger != nil {
		r.framer.SetLogger(cfg.ProtocolLogger, peer)
	}
	go r.readLoop()
	return r
}

func (r *RCP) readLoop() {
	for {
		m, err := readMessage(r.framer.FrameReader)
		if err != nil {
			if errors.Is(err, ErrProtocol) {
				r.logger.Debug("dropping undecodable message", "error", err)
				continue
			}
			r.fail(err)
			return
		}
		switch m.Type {
		case msgReceived:
			f := rxFrame{
				psdu:    m.PSDU,
				channel: m.Chan,
				meta:    radio.RxMeta{RSSI: m.RSSI, LQI: m.LQI, Timestamp: time.Unix(0, m.Time)},
			}
			select {
			case r.rx <- f:
			default:
				r.logger.Debug("receive queue full, dropping frame", "len", len(m.PSDU))
			}
		case msgCaps, msgConfigDone, msgTransmitDone, msgError:
			// Replace a stale answer nobody waited for.
			select {
			case <-r.resp:
			default:
			}
			r.resp <- m
		default:
			r.logger.Debug("unexpected message", "type", m.Type)
		}
	}
}

func (r *RCP) fail(err error) {
	r.once.Do(func() {
		r.errMu.Lock()
		r.err = err
		r.errMu.Unlock()
		close(r.done)
	})
}

func (r *RCP) closedErr() error {
	r.errMu.Lock()
	defer r.errMu.Unlock()
	if r.err == nil || errors.Is(r.err, io.EOF) || errors.Is(r.err, errClosed) {
		return radio.ErrRadioClosed
	}
	return fmt.Errorf("%w: %v", radio.ErrRadioClosed, r.err)
}

var errClosed = errors.New("closed by host")

// request sends m and waits for the answer carrying the same sequence number.
func (r *RCP) request(ctx context.Context, m *message, want msgType) (*message, error) {
	r.seq++
	m.Seq = r.seq
	if err := writeMessage(r.framer.FrameWriter, m); err != nil {
		select {
		case <-r.done:
			return nil, r.closedErr()
		default:
		}
		return nil, err
	}

	timer := time.NewTimer(r.cfg.ResponseTimeout)
	defer timer.Stop()
	for {
		select {
		case resp := <-r.resp:
			if resp.Seq != m.Seq {
				r.logger.Debug("discarding late answer", "seq", resp.Seq, "want", m.Seq)
				continue
			}
			if resp.Type == msgError {
				return nil, fmt.Errorf("%w: %s: %s", ErrRemote, m.Type, resp.Error)
			}
			if resp.Type != want {
				return nil, fmt.Errorf("%w: %s answered with %s", ErrProtocol, m.Type, resp.Type)
			}
			return resp, nil
		case <-timer.C:
			return nil, fmt.Errorf("%w: %s", ErrTimeout, m.Type)
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-r.done:
			return nil, r.closedErr()
		}
	}
}

// Probe queries and caches the co-processor's capabilities.
func (r *RCP) Probe(ctx context.Context) error {
	resp, err := r.request(ctx, &message{Type: msgCapsRequest}, msgCaps)
	if err != nil {
		return err
	}
	r.caps.Store(uint32(resp.Caps))
	return nil
}

// Caps returns the capabilities reported by the last Probe.
func (r *RCP) Caps() radio.Caps {
	return radio.Caps(r.caps.Load())
}

// Set applies a configuration.
func (r *RCP) Set(ctx context.Context, cfg radio.Config) error {
	_, err := r.request(ctx, &message{Type: msgSetConfig, Config: toWireConfig(cfg)}, msgConfigDone)
	return err
}

// Transmit sends f through the co-processor.
func (r *RCP) Transmit(ctx context.Context, f *radio.Frame) (radio.TxResult, error) {
	resp, err := r.request(ctx, &message{Type: msgTransmit, PSDU: f.Bytes(), Chan: f.Channel}, msgTransmitDone)
	if err != nil {
		return radio.TxNoAck, err
	}
	return radio.TxResult(resp.Result), nil
}

// Receive waits for a frame pushed by the co-processor or until ctx is done.
func (r *RCP) Receive(ctx context.Context, f *radio.Frame) (radio.RxMeta, error) {
	select {
	case rx := <-r.rx:
		if err := f.SetBytes(rx.psdu); err != nil {
			return radio.RxMeta{}, err
		}
		f.Channel = rx.channel
		return rx.meta, nil
	case <-r.done:
		return radio.RxMeta{}, r.closedErr()
	case <-ctx.Done():
		return radio.RxMeta{}, ctx.Err()
	}
}

// Close closes the link. Pending and later calls fail with
// radio.ErrRadioClosed.
func (r *RCP) Close() error {
	r.fail(errClosed)
	return r.conn.Close()
}

var _ radio.Radio = (*RCP)(nil)
