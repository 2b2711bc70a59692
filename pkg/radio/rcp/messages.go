package rcp

import (
	"fmt"

	"github.com/threadkit/threadkit-go/pkg/radio"
	"github.com/threadkit/threadkit-go/pkg/wire"
)

// msgType identifies a host-link message.
type msgType uint8

const (
	msgUnknown msgType = iota
	// Host to co-processor.
	msgCapsRequest
	msgSetConfig
	msgTransmit
	// Co-processor to host.
	msgCaps
	msgConfigDone
	msgTransmitDone
	msgReceived
	msgError
)

func (t msgType) String() string {
	switch t {
	case msgCapsRequest:
		return "CAPS_REQUEST"
	case msgSetConfig:
		return "SET_CONFIG"
	case msgTransmit:
		return "TRANSMIT"
	case msgCaps:
		return "CAPS"
	case msgConfigDone:
		return "CONFIG_DONE"
	case msgTransmitDone:
		return "TRANSMIT_DONE"
	case msgReceived:
		return "RECEIVED"
	case msgError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// message is the host-link envelope. Only the fields of its type are set.
type message struct {
	Type msgType `cbor:"1,keyasint"`
	Seq  uint8   `cbor:"2,keyasint,omitempty"`

	Caps   uint16       `cbor:"3,keyasint,omitempty"`
	Config *radioConfig `cbor:"4,keyasint,omitempty"`
	PSDU   []byte       `cbor:"5,keyasint,omitempty"`
	Chan   uint8        `cbor:"6,keyasint,omitempty"`
	Result uint8        `cbor:"7,keyasint,omitempty"`
	RSSI   int8         `cbor:"8,keyasint,omitempty"`
	LQI    uint8        `cbor:"9,keyasint,omitempty"`
	Time   int64        `cbor:"10,keyasint,omitempty"`
	Error  string       `cbor:"11,keyasint,omitempty"`
}

type radioConfig struct {
	Channel      uint8   `cbor:"1,keyasint"`
	PanID        uint16  `cbor:"2,keyasint"`
	ShortAddress uint16  `cbor:"3,keyasint"`
	ExtAddress   [8]byte `cbor:"4,keyasint"`
	TxPower      int8    `cbor:"5,keyasint,omitempty"`
	RxWhenIdle   bool    `cbor:"6,keyasint,omitempty"`
	Promiscuous  bool    `cbor:"7,keyasint,omitempty"`
}

func toWireConfig(c radio.Config) *radioConfig {
	return &radioConfig{
		Channel:      c.Channel,
		PanID:        c.PanID,
		ShortAddress: c.ShortAddress,
		ExtAddress:   c.ExtAddress,
		TxPower:      c.TxPower,
		RxWhenIdle:   c.RxWhenIdle,
		Promiscuous:  c.Promiscuous,
	}
}

func (c *radioConfig) radio() radio.Config {
	return radio.Config{
		Channel:      c.Channel,
		PanID:        c.PanID,
		ShortAddress: c.ShortAddress,
		ExtAddress:   c.ExtAddress,
		TxPower:      c.TxPower,
		RxWhenIdle:   c.RxWhenIdle,
		Promiscuous:  c.Promiscuous,
	}
}

func writeMessage(fw *FrameWriter, m *message) error {
	b, err := wire.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode %s: %w", m.Type, err)
	}
	return fw.WriteFrame(b)
}

func readMessage(fr *FrameReader) (*message, error) {
	b, err := fr.ReadFrame()
	if err != nil {
		return nil, err
	}
	m := &message{}
	if err := wire.Unmarshal(b, m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return m, nil
}
