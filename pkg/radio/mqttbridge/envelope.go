package mqttbridge

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrBadEnvelope indicates a payload that is not a frame envelope.
var ErrBadEnvelope = errors.New("malformed frame envelope")

const (
	fieldSender  protowire.Number = 1
	fieldChannel protowire.Number = 2
	fieldPSDU    protowire.Number = 3
	fieldRSSI    protowire.Number = 4
)

// envelope carries one frame across the broker.
type envelope struct {
	Sender  []byte
	Channel uint8
	PSDU    []byte
	RSSI    int8
}

func (e *envelope) marshal() []byte {
	b := make([]byte, 0, 16+len(e.Sender)+len(e.PSDU))
	b = protowire.AppendTag(b, fieldSender, protowire.BytesType)
	b = protowire.AppendBytes(b, e.Sender)
	b = protowire.AppendTag(b, fieldChannel, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(e.Channel))
	b = protowire.AppendTag(b, fieldPSDU, protowire.BytesType)
	b = protowire.AppendBytes(b, e.PSDU)
	if e.RSSI != 0 {
		b = protowire.AppendTag(b, fieldRSSI, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(e.RSSI)))
	}
	return b
}

// unmarshal decodes b, skipping unknown fields. Byte fields alias b.
func (e *envelope) unmarshal(b []byte) error {
	*e = envelope{}
	var seenPSDU bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrBadEnvelope, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldSender && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: sender: %v", ErrBadEnvelope, protowire.ParseError(n))
			}
			e.Sender, b = v, b[n:]
		case num == fieldChannel && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: channel: %v", ErrBadEnvelope, protowire.ParseError(n))
			}
			if v > 0xff {
				return fmt.Errorf("%w: channel %d", ErrBadEnvelope, v)
			}
			e.Channel, b = uint8(v), b[n:]
		case num == fieldPSDU && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: psdu: %v", ErrBadEnvelope, protowire.ParseError(n))
			}
			e.PSDU, b, seenPSDU = v, b[n:], true
		case num == fieldRSSI && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: rssi: %v", ErrBadEnvelope, protowire.ParseError(n))
			}
			e.RSSI, b = int8(protowire.DecodeZigZag(v)), b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrBadEnvelope, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if !seenPSDU {
		return fmt.Errorf("%w: no psdu", ErrBadEnvelope)
	}
	return nil
}
