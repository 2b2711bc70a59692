package rcp

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadkit/threadkit-go/pkg/radio"
	"github.com/threadkit/threadkit-go/pkg/radio/sim"
)

// serveSim connects a host to a co-processor backed by a radio on medium.
func serveSim(t *testing.T, medium *sim.Medium) *RCP {
	t.Helper()
	hostEnd, devEnd := net.Pipe()
	dev := medium.NewRadio()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, devEnd, dev, nil) }()

	host := New(hostEnd, Config{ResponseTimeout: time.Second})
	t.Cleanup(func() {
		_ = host.Close()
		cancel()
		<-done
		_ = devEnd.Close()
		_ = dev.Close()
	})
	return host
}

func promiscuous(channel uint8) radio.Config {
	return radio.Config{Channel: channel, PanID: 0x1234, Promiscuous: true}
}

func frame(t *testing.T, payload string) *radio.Frame {
	t.Helper()
	var f radio.Frame
	require.NoError(t, f.SetBytes([]byte(payload)))
	return &f
}

func TestProbeReportsCaps(t *testing.T) {
	host := serveSim(t, sim.NewMedium())
	assert.Equal(t, radio.Caps(0), host.Caps())
	require.NoError(t, host.Probe(context.Background()))
	assert.Equal(t, sim.Caps, host.Caps())
}

func TestTransmitReachesMedium(t *testing.T) {
	medium := sim.NewMedium()
	host := serveSim(t, medium)
	peer := medium.NewRadio()
	defer peer.Close()
	ctx := context.Background()
	require.NoError(t, peer.Set(ctx, promiscuous(15)))
	require.NoError(t, host.Set(ctx, promiscuous(15)))

	res, err := host.Transmit(ctx, frame(t, "from host"))
	require.NoError(t, err)
	assert.Equal(t, radio.TxAck, res)

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var f radio.Frame
	_, err = peer.Receive(rctx, &f)
	require.NoError(t, err)
	assert.Equal(t, "from host", string(f.Bytes()))
	assert.Equal(t, uint8(15), f.Channel)
}

func TestReceiveFromMedium(t *testing.T) {
	medium := sim.NewMedium()
	host := serveSim(t, medium)
	peer := medium.NewRadio()
	defer peer.Close()
	ctx := context.Background()
	require.NoError(t, peer.Set(ctx, promiscuous(20)))
	require.NoError(t, host.Set(ctx, promiscuous(20)))

	_, err := peer.Transmit(ctx, frame(t, "to host"))
	require.NoError(t, err)

	rctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	var f radio.Frame
	meta, err := host.Receive(rctx, &f)
	require.NoError(t, err)
	assert.Equal(t, "to host", string(f.Bytes()))
	assert.Equal(t, uint8(20), f.Channel)
	assert.Equal(t, int8(-50), meta.RSSI)
	assert.False(t, meta.Timestamp.IsZero())
}

func TestReceiveHonoursContext(t *testing.T) {
	host := serveSim(t, sim.NewMedium())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	var f radio.Frame
	_, err := host.Receive(ctx, &f)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedHost(t *testing.T) {
	host := serveSim(t, sim.NewMedium())
	require.NoError(t, host.Close())

	var f radio.Frame
	_, err := host.Receive(context.Background(), &f)
	assert.ErrorIs(t, err, radio.ErrRadioClosed)
	assert.ErrorIs(t, host.Set(context.Background(), promiscuous(11)), radio.ErrRadioClosed)
}

// fakeDevice answers host requests with reply, which may return nil to stay
// silent.
func fakeDevice(t *testing.T, reply func(m *message) []*message) *RCP {
	t.Helper()
	hostEnd, devEnd := net.Pipe()
	go func() {
		f := NewFramer(devEnd)
		for {
			m, err := readMessage(f.FrameReader)
			if err != nil {
				return
			}
			for _, r := range reply(m) {
				if err := writeMessage(f.FrameWriter, r); err != nil {
					return
				}
			}
		}
	}()
	host := New(hostEnd, Config{ResponseTimeout: 100 * time.Millisecond})
	t.Cleanup(func() {
		_ = host.Close()
		_ = devEnd.Close()
	})
	return host
}

func TestRequestTimeout(t *testing.T) {
	host := fakeDevice(t, func(*message) []*message { return nil })
	err := host.Probe(context.Background())
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestLateAnswerIsDiscarded(t *testing.T) {
	host := fakeDevice(t, func(m *message) []*message {
		return []*message{
			{Type: msgCaps, Seq: m.Seq - 1, Caps: 1},
			{Type: msgCaps, Seq: m.Seq, Caps: uint16(radio.CapsPromiscuous)},
		}
	})
	require.NoError(t, host.Probe(context.Background()))
	assert.Equal(t, radio.CapsPromiscuous, host.Caps())
}

func TestRemoteError(t *testing.T) {
	host := fakeDevice(t, func(m *message) []*message {
		return []*message{{Type: msgError, Seq: m.Seq, Error: "channel not supported"}}
	})
	err := host.Set(context.Background(), promiscuous(99))
	require.ErrorIs(t, err, ErrRemote)
	assert.Contains(t, err.Error(), "channel not supported")
}

func TestServeRejectsUnknownRequest(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	defer hostEnd.Close()
	dev := sim.NewMedium().NewRadio()
	defer dev.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, devEnd, dev, nil) }()

	f := NewFramer(hostEnd)
	require.NoError(t, writeMessage(f.FrameWriter, &message{Type: msgReceived, Seq: 9}))
	resp, err := readMessage(f.FrameReader)
	require.NoError(t, err)
	assert.Equal(t, msgError, resp.Type)
	assert.Equal(t, uint8(9), resp.Seq)

	// Closing the host end ends Serve cleanly.
	require.NoError(t, hostEnd.Close())
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, net.ErrClosed) {
			t.Errorf("Serve: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Serve did not return")
	}
}
