package thread

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/threadkit/threadkit-go/pkg/radio"
)

// rxBuffers is the number of receive frames cycling between pump and engine.
const rxBuffers = 2

type received struct {
	f    *radio.Frame
	meta radio.RxMeta
}

type transmitted struct {
	result radio.TxResult
	err    error
}

// pump is the only user of the radio. It alternates transmissions of the
// engine's tx frame with receive windows into two recycled rx frames.
//
// Ownership: tx belongs to the pump between a txReq and the matching txDone.
// An rx frame belongs to the pump while it is in rxFree or being received
// into, and to the engine after it is sent on rx until it is returned.
type pump struct {
	r      radio.Radio
	window time.Duration
	logger *slog.Logger

	tx     radio.Frame
	txReq  chan struct{}
	txDone chan transmitted

	rxBufs [rxBuffers]radio.Frame
	rxFree chan *radio.Frame
	rx     chan received

	cfg    chan radio.Config
	failed chan error
	done   chan struct{}
}

func newPump(r radio.Radio, window time.Duration, logger *slog.Logger) *pump {
	p := &pump{
		r:      r,
		window: window,
		logger: logger,
		txReq:  make(chan struct{}, 1),
		txDone: make(chan transmitted, 1),
		rxFree: make(chan *radio.Frame, rxBuffers),
		rx:     make(chan received, rxBuffers),
		cfg:    make(chan radio.Config, 1),
		failed: make(chan error, 1),
		done:   make(chan struct{}),
	}
	for i := range p.rxBufs {
		p.rxFree <- &p.rxBufs[i]
	}
	return p
}

func (p *pump) run(ctx context.Context) {
	defer close(p.done)
	for {
		// Configuration and transmissions take precedence over listening.
		select {
		case <-ctx.Done():
			return
		case cfg := <-p.cfg:
			p.set(ctx, cfg)
			continue
		case <-p.txReq:
			p.transmit(ctx)
			continue
		default:
		}

		var err error
		select {
		case <-ctx.Done():
			return
		case cfg := <-p.cfg:
			p.set(ctx, cfg)
		case <-p.txReq:
			p.transmit(ctx)
		case f := <-p.rxFree:
			err = p.receive(ctx, f)
		}
		if errors.Is(err, radio.ErrRadioClosed) {
			p.failed <- err
			return
		}
	}
}

func (p *pump) set(ctx context.Context, cfg radio.Config) {
	if err := p.r.Set(ctx, cfg); err != nil {
		p.debugLog("radio configuration failed", "channel", cfg.Channel, "error", err)
	}
}

func (p *pump) transmit(ctx context.Context) {
	result, err := p.r.Transmit(ctx, &p.tx)
	p.txDone <- transmitted{result: result, err: err}
}

func (p *pump) receive(ctx context.Context, f *radio.Frame) error {
	wctx, cancel := context.WithTimeout(ctx, p.window)
	meta, err := p.r.Receive(wctx, f)
	cancel()

	switch {
	case err == nil:
		p.rx <- received{f: f, meta: meta}
		return nil
	case errors.Is(err, radio.ErrRxWindow), errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		p.rxFree <- f
		return nil
	case errors.Is(err, radio.ErrRadioClosed):
		p.rxFree <- f
		return err
	default:
		p.rxFree <- f
		p.debugLog("radio receive failed", "error", err)
		// Keep a failing radio from spinning the pump.
		select {
		case <-time.After(p.window):
		case <-ctx.Done():
		}
		return nil
	}
}

func (p *pump) debugLog(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
