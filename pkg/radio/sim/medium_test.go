package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/threadkit/threadkit-go/pkg/mac"
	"github.com/threadkit/threadkit-go/pkg/radio"
)

const testPAN = 0x58d1

func configure(t *testing.T, r *Radio, short uint16, ext mac.ExtAddr) {
	t.Helper()
	err := r.Set(context.Background(), radio.Config{Channel: 11, PanID: testPAN, ShortAddress: short, ExtAddress: ext})
	if err != nil {
		t.Fatalf("Set: %v", err)
	}
}

func dataFrame(t *testing.T, dst mac.Address, ack bool, payload string) *radio.Frame {
	t.Helper()
	h := mac.Header{
		Type:             mac.FrameData,
		AckRequest:       ack,
		PanIDCompression: true,
		DstPAN:           testPAN,
		Dst:              dst,
		Src:              mac.ShortAddress(0x0001),
	}
	var f radio.Frame
	if err := f.SetBytes(append(h.Append(nil), payload...)); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	return &f
}

func receive(t *testing.T, r *Radio) (*radio.Frame, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	var f radio.Frame
	_, err := r.Receive(ctx, &f)
	return &f, err
}

// TestBroadcastDelivery verifies every radio on the channel hears a broadcast.
func TestBroadcastDelivery(t *testing.T) {
	m := NewMedium()
	a, b, c := m.NewRadio(), m.NewRadio(), m.NewRadio()
	configure(t, a, 0x0001, mac.ExtAddr{1})
	configure(t, b, 0x0002, mac.ExtAddr{2})
	configure(t, c, 0x0003, mac.ExtAddr{3})

	res, err := a.Transmit(context.Background(), dataFrame(t, mac.ShortAddress(mac.BroadcastShort), false, "hi"))
	if err != nil || res != radio.TxAck {
		t.Fatalf("Transmit = %s, %v", res, err)
	}
	for _, r := range []*Radio{b, c} {
		f, err := receive(t, r)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if f.Channel != 11 {
			t.Errorf("channel = %d, want 11", f.Channel)
		}
	}
	if _, err := receive(t, a); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("sender heard itself: %v", err)
	}
}

// TestUnicastAck verifies acks follow the destination filter.
func TestUnicastAck(t *testing.T) {
	m := NewMedium()
	a, b := m.NewRadio(), m.NewRadio()
	configure(t, a, 0x0001, mac.ExtAddr{1})
	configure(t, b, 0x0002, mac.ExtAddr{2})

	res, err := a.Transmit(context.Background(), dataFrame(t, mac.ExtAddress(mac.ExtAddr{2}), true, "x"))
	if err != nil || res != radio.TxAck {
		t.Fatalf("Transmit to b = %s, %v", res, err)
	}
	res, err = a.Transmit(context.Background(), dataFrame(t, mac.ShortAddress(0x0009), true, "x"))
	if err != nil || res != radio.TxNoAck {
		t.Fatalf("Transmit to nobody = %s, %v", res, err)
	}
	if _, _, dropped := b.Stats(); dropped != 0 {
		t.Errorf("dropped = %d", dropped)
	}
}

// TestChannelIsolation verifies frames stay on their channel.
func TestChannelIsolation(t *testing.T) {
	m := NewMedium()
	a, b := m.NewRadio(), m.NewRadio()
	configure(t, a, 1, mac.ExtAddr{1})
	if err := b.Set(context.Background(), radio.Config{Channel: 12, PanID: testPAN}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	if _, err := a.Transmit(context.Background(), dataFrame(t, mac.ShortAddress(mac.BroadcastShort), false, "x")); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if _, err := receive(t, b); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Receive on other channel: %v", err)
	}
}

// TestBusyAndDropHooks verifies the medium hooks.
func TestBusyAndDropHooks(t *testing.T) {
	m := NewMedium()
	a, b := m.NewRadio(), m.NewRadio()
	configure(t, a, 1, mac.ExtAddr{1})
	configure(t, b, 2, mac.ExtAddr{2})

	m.Busy = func(*Radio) bool { return true }
	res, err := a.Transmit(context.Background(), dataFrame(t, mac.ShortAddress(2), true, "x"))
	if err != nil || res != radio.TxChannelBusy {
		t.Fatalf("Transmit busy = %s, %v", res, err)
	}

	m.Busy = nil
	m.Drop = func(from, to *Radio, _ []byte) bool { return to == b }
	res, err = a.Transmit(context.Background(), dataFrame(t, mac.ShortAddress(2), true, "x"))
	if err != nil || res != radio.TxNoAck {
		t.Fatalf("Transmit dropped = %s, %v", res, err)
	}
}

// TestClose verifies a closed radio unblocks receivers and leaves the medium.
func TestClose(t *testing.T) {
	m := NewMedium()
	a := m.NewRadio()

	errc := make(chan error, 1)
	go func() {
		var f radio.Frame
		_, err := a.Receive(context.Background(), &f)
		errc <- err
	}()
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case err := <-errc:
		if !errors.Is(err, radio.ErrRadioClosed) {
			t.Fatalf("Receive error = %v, want ErrRadioClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}
	if _, err := a.Transmit(context.Background(), &radio.Frame{}); !errors.Is(err, radio.ErrRadioClosed) {
		t.Fatalf("Transmit error = %v, want ErrRadioClosed", err)
	}
}
