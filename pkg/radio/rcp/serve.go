package rcp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/threadkit/threadkit-go/pkg/radio"
)

// serveWindow bounds each listen between two host requests.
const serveWindow = 5 * time.Millisecond

// Serve runs the co-processor side of the protocol over conn, backed by r.
// It returns when ctx is done, the host closes the link, or r is closed.
// Serve is the only user of r while it runs.
func Serve(ctx context.Context, conn io.ReadWriter, r radio.Radio, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	framer := NewFramer(conn)

	reqs := make(chan *message, 4)
	readErr := make(chan error, 1)
	go func() {
		for {
			m, err := readMessage(framer.FrameReader)
			if errors.Is(err, ErrProtocol) {
				logger.Debug("dropping undecodable request", "error", err)
				continue
			}
			if err != nil {
				readErr <- err
				return
			}
			select {
			case reqs <- m:
			case <-ctx.Done():
				return
			}
		}
	}()

	var f radio.Frame
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case m := <-reqs:
			if err := serveRequest(ctx, framer.FrameWriter, r, m); err != nil {
				return err
			}
			continue
		default:
		}

		wctx, cancel := context.WithTimeout(ctx, serveWindow)
		meta, err := r.Receive(wctx, &f)
		cancel()
		switch {
		case err == nil:
			err = writeMessage(framer.FrameWriter, &message{
				Type: msgReceived,
				PSDU: f.Bytes(),
				Chan: f.Channel,
				RSSI: meta.RSSI,
				LQI:  meta.LQI,
				Time: meta.Timestamp.UnixNano(),
			})
			if err != nil {
				return err
			}
		case errors.Is(err, radio.ErrRadioClosed):
			return err
		case errors.Is(err, radio.ErrRxWindow), errors.Is(err, context.DeadlineExceeded):
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logger.Debug("radio receive failed", "error", err)
		}
	}
}

func serveRequest(ctx context.Context, fw *FrameWriter, r radio.Radio, m *message) error {
	resp := &message{Seq: m.Seq}
	switch m.Type {
	case msgCapsRequest:
		resp.Type = msgCaps
		resp.Caps = uint16(r.Caps())
	case msgSetConfig:
		if m.Config == nil {
			resp.Type, resp.Error = msgError, "missing config"
			break
		}
		if err := r.Set(ctx, m.Config.radio()); err != nil {
			resp.Type, resp.Error = msgError, err.Error()
			break
		}
		resp.Type = msgConfigDone
	case msgTransmit:
		var f radio.Frame
		if err := f.SetBytes(m.PSDU); err != nil {
			resp.Type, resp.Error = msgError, err.Error()
			break
		}
		f.Channel = m.Chan
		result, err := r.Transmit(ctx, &f)
		if err != nil {
			resp.Type, resp.Error = msgError, err.Error()
			break
		}
		resp.Type, resp.Result = msgTransmitDone, uint8(result)
	default:
		resp.Type, resp.Error = msgError, fmt.Sprintf("unsupported request %s", m.Type)
	}
	return writeMessage(fw, resp)
}
