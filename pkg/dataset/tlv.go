package dataset

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

// MeshCoP TLV types used by the Operational Dataset.
const (
	TLVChannel         uint8 = 0
	TLVPanID           uint8 = 1
	TLVExtendedPanID   uint8 = 2
	TLVNetworkName     uint8 = 3
	TLVNetworkKey      uint8 = 5
	TLVActiveTimestamp uint8 = 14
	TLVChannelMask     uint8 = 53

	// extendedLength marks a TLV with a 16-bit length field.
	extendedLength = 0xff

	channelPage0 = 0
)

// ErrMalformedTLV indicates a TLV stream could not be decoded.
var ErrMalformedTLV = errors.New("malformed dataset TLV")

// MarshalTLV encodes the present fields as MeshCoP TLVs in ascending type order.
func (d *Dataset) MarshalTLV() ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	out := make([]byte, 0, 96)
	put := func(typ uint8, value []byte) {
		out = append(out, typ, uint8(len(value)))
		out = append(out, value...)
	}

	if d.Channel != nil {
		put(TLVChannel, []byte{channelPage0, 0, *d.Channel})
	}
	if d.PanID != nil {
		put(TLVPanID, binary.BigEndian.AppendUint16(nil, *d.PanID))
	}
	if d.ExtendedPanID != nil {
		put(TLVExtendedPanID, d.ExtendedPanID[:])
	}
	if d.NetworkName != nil {
		put(TLVNetworkName, []byte(*d.NetworkName))
	}
	if d.NetworkKey != nil {
		put(TLVNetworkKey, d.NetworkKey[:])
	}
	if d.ActiveTimestamp != nil {
		put(TLVActiveTimestamp, encodeTimestamp(*d.ActiveTimestamp))
	}
	if d.ChannelMask != nil {
		// One page-0 entry; the mask is bit-reversed so channel 0 is the
		// most significant bit of the first byte.
		entry := []byte{channelPage0, 4}
		entry = binary.BigEndian.AppendUint32(entry, bits.Reverse32(*d.ChannelMask))
		put(TLVChannelMask, entry)
	}
	return out, nil
}

// UnmarshalTLV decodes a MeshCoP TLV stream. Unknown TLV types are skipped.
func UnmarshalTLV(data []byte) (*Dataset, error) {
	d := &Dataset{}
	for len(data) > 0 {
		if len(data) < 2 {
			return nil, fmt.Errorf("%w: truncated header", ErrMalformedTLV)
		}
		typ := data[0]
		n := int(data[1])
		hdr := 2
		if n == extendedLength {
			if len(data) < 4 {
				return nil, fmt.Errorf("%w: truncated extended header", ErrMalformedTLV)
			}
			n = int(binary.BigEndian.Uint16(data[2:4]))
			hdr = 4
		}
		if len(data) < hdr+n {
			return nil, fmt.Errorf("%w: type %d length %d exceeds %d bytes", ErrMalformedTLV, typ, n, len(data)-hdr)
		}
		value := data[hdr : hdr+n]
		data = data[hdr+n:]

		if err := d.decodeField(typ, value); err != nil {
			return nil, err
		}
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dataset) decodeField(typ uint8, v []byte) error {
	wantLen := func(n int) error {
		if len(v) != n {
			return fmt.Errorf("%w: type %d length %d, want %d", ErrMalformedTLV, typ, len(v), n)
		}
		return nil
	}

	switch typ {
	case TLVChannel:
		if err := wantLen(3); err != nil {
			return err
		}
		if v[0] != channelPage0 || v[1] != 0 {
			return fmt.Errorf("%w: unsupported channel page %d", ErrMalformedTLV, v[0])
		}
		d.Channel = Ptr(v[2])
	case TLVPanID:
		if err := wantLen(2); err != nil {
			return err
		}
		d.PanID = Ptr(binary.BigEndian.Uint16(v))
	case TLVExtendedPanID:
		if err := wantLen(ExtendedPanIDSize); err != nil {
			return err
		}
		var e ExtendedPanID
		copy(e[:], v)
		d.ExtendedPanID = &e
	case TLVNetworkName:
		if len(v) > MaxNetworkNameLen {
			return fmt.Errorf("%w: network name %d bytes", ErrMalformedTLV, len(v))
		}
		d.NetworkName = Ptr(string(v))
	case TLVNetworkKey:
		if err := wantLen(NetworkKeySize); err != nil {
			return err
		}
		var k NetworkKey
		copy(k[:], v)
		d.NetworkKey = &k
	case TLVActiveTimestamp:
		if err := wantLen(8); err != nil {
			return err
		}
		ts := decodeTimestamp(v)
		d.ActiveTimestamp = &ts
	case TLVChannelMask:
		mask, ok := decodeChannelMask(v)
		if !ok {
			return fmt.Errorf("%w: channel mask", ErrMalformedTLV)
		}
		d.ChannelMask = &mask
	}
	return nil
}

// encodeTimestamp packs seconds (48 bits), ticks (15 bits) and the
// authoritative flag (1 bit) big-endian.
func encodeTimestamp(t Timestamp) []byte {
	v := t.Seconds<<16 | uint64(t.Ticks&MaxTimestampTicks)<<1
	if t.Authoritative {
		v |= 1
	}
	return binary.BigEndian.AppendUint64(nil, v)
}

func decodeTimestamp(b []byte) Timestamp {
	v := binary.BigEndian.Uint64(b)
	return Timestamp{
		Seconds:       v >> 16,
		Ticks:         uint16(v>>1) & MaxTimestampTicks,
		Authoritative: v&1 == 1,
	}
}

func decodeChannelMask(v []byte) (uint32, bool) {
	for len(v) >= 2 {
		page, n := v[0], int(v[1])
		if len(v) < 2+n {
			return 0, false
		}
		if page == channelPage0 && n == 4 {
			return bits.Reverse32(binary.BigEndian.Uint32(v[2:6])), true
		}
		v = v[2+n:]
	}
	return 0, false
}

// MarshalHex returns the TLV encoding as lowercase hex.
func (d *Dataset) MarshalHex() (string, error) {
	b, err := d.MarshalTLV()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// UnmarshalHex decodes a hex TLV string. Whitespace is ignored.
func UnmarshalHex(s string) (*Dataset, error) {
	s = strings.Join(strings.Fields(s), "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTLV, err)
	}
	return UnmarshalTLV(b)
}
