package radio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Frame sizes.
const (
	// MaxPSDU is the largest 802.15.4 PHY payload, including the FCS.
	MaxPSDU = 127

	// FCSSize is the size of the frame check sequence appended by the PHY.
	FCSSize = 2
)

// Radio errors.
var (
	// ErrRxWindow indicates that a receive window elapsed without a frame.
	ErrRxWindow = errors.New("receive window elapsed")

	// ErrFrameTooLarge indicates a PSDU larger than MaxPSDU.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrRadioClosed indicates the radio has been shut down.
	ErrRadioClosed = errors.New("radio closed")

	// ErrProxyTimeout indicates the PHY context did not answer in time.
	ErrProxyTimeout = errors.New("radio proxy timeout")

	// ErrProxyInUse indicates ProxyResources were used twice.
	ErrProxyInUse = errors.New("proxy resources already in use")
)

// Caps describes optional radio capabilities.
type Caps uint16

const (
	// CapsAckTimeout means the radio waits for acks itself.
	CapsAckTimeout Caps = 1 << iota
	// CapsEnergyScan means the radio can run energy scans.
	CapsEnergyScan
	// CapsTransmitRetries means the radio retransmits on missing acks.
	CapsTransmitRetries
	// CapsCSMABackoff means the radio performs CSMA-CA itself.
	CapsCSMABackoff
	// CapsSleepToTx means the radio can go from sleep to transmit directly.
	CapsSleepToTx
	// CapsPromiscuous means the radio can receive frames for any address.
	CapsPromiscuous
	// CapsRxOnWhenIdle means the radio keeps its receiver on between calls.
	CapsRxOnWhenIdle
)

// Has reports whether all bits in c are set.
func (c Caps) Has(flags Caps) bool {
	return c&flags == flags
}

// String returns a compact flag list.
func (c Caps) String() string {
	names := []struct {
		flag Caps
		name string
	}{
		{CapsAckTimeout, "ACK_TIMEOUT"},
		{CapsEnergyScan, "ENERGY_SCAN"},
		{CapsTransmitRetries, "TX_RETRIES"},
		{CapsCSMABackoff, "CSMA"},
		{CapsSleepToTx, "SLEEP_TO_TX"},
		{CapsPromiscuous, "PROMISCUOUS"},
		{CapsRxOnWhenIdle, "RX_ON_WHEN_IDLE"},
	}
	s := ""
	for _, n := range names {
		if c&n.flag != 0 {
			if s != "" {
				s += "|"
			}
			s += n.name
		}
	}
	if s == "" {
		return "NONE"
	}
	return s
}

// Config is the radio configuration pushed by the engine.
type Config struct {
	Channel      uint8
	PanID        uint16
	ShortAddress uint16
	ExtAddress   [8]byte
	TxPower      int8
	RxWhenIdle   bool
	Promiscuous  bool
}

// TxResult is the outcome of a transmission.
type TxResult uint8

const (
	// TxAck means the frame was sent and acknowledged (or needed no ack).
	TxAck TxResult = iota
	// TxNoAck means the frame was sent but no ack arrived.
	TxNoAck
	// TxChannelBusy means CSMA failed and the frame was not sent.
	TxChannelBusy
)

// String returns the result name.
func (r TxResult) String() string {
	switch r {
	case TxAck:
		return "ACK"
	case TxNoAck:
		return "NO_ACK"
	case TxChannelBusy:
		return "CHANNEL_BUSY"
	default:
		return "UNKNOWN"
	}
}

// RxMeta describes a received frame.
type RxMeta struct {
	RSSI      int8
	LQI       uint8
	Timestamp time.Time
	// AckedWithFramePending is set when the radio acked with the frame
	// pending bit.
	AckedWithFramePending bool
}

// Frame is a fixed-capacity PSDU buffer.
type Frame struct {
	psdu    [MaxPSDU]byte
	n       int
	Channel uint8
}

// Bytes returns the PSDU contents (without FCS).
func (f *Frame) Bytes() []byte {
	return f.psdu[:f.n]
}

// Len returns the PSDU length.
func (f *Frame) Len() int {
	return f.n
}

// SetBytes copies b into the frame.
func (f *Frame) SetBytes(b []byte) error {
	if len(b) > MaxPSDU-FCSSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(b), MaxPSDU-FCSSize)
	}
	f.n = copy(f.psdu[:], b)
	return nil
}

// Buffer returns the whole backing array for in-place decoding; call
// SetLen afterwards.
func (f *Frame) Buffer() []byte {
	return f.psdu[:MaxPSDU-FCSSize]
}

// SetLen sets the PSDU length after writing into Buffer.
func (f *Frame) SetLen(n int) error {
	if n < 0 || n > MaxPSDU-FCSSize {
		return fmt.Errorf("%w: %d", ErrFrameTooLarge, n)
	}
	f.n = n
	return nil
}

// Reset empties the frame.
func (f *Frame) Reset() {
	f.n = 0
	f.Channel = 0
}

// CopyFrom copies another frame's contents.
func (f *Frame) CopyFrom(o *Frame) {
	f.psdu = o.psdu
	f.n = o.n
	f.Channel = o.Channel
}

// Radio is an IEEE 802.15.4 radio.
//
// Implementations are driven by exactly one goroutine at a time.
type Radio interface {
	// Caps returns the radio capabilities.
	Caps() Caps

	// Set applies a configuration.
	Set(ctx context.Context, cfg Config) error

	// Transmit sends a frame on f.Channel and reports the outcome.
	Transmit(ctx context.Context, f *Frame) (TxResult, error)

	// Receive waits for a frame, writing it into f. It returns ErrRxWindow
	// when the radio's receive window elapses without a frame.
	Receive(ctx context.Context, f *Frame) (RxMeta, error)
}
