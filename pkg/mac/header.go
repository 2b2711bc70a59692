package mac

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// Header errors.
var (
	// ErrTruncated indicates a frame shorter than its header.
	ErrTruncated = errors.New("mac frame truncated")

	// ErrUnsupported indicates a frame version or mode this codec does not handle.
	ErrUnsupported = errors.New("unsupported mac frame")
)

// BroadcastShort is the broadcast short address and PAN ID.
const BroadcastShort uint16 = 0xffff

// AuxHeaderSize is the size of the auxiliary security header.
const AuxHeaderSize = 6

// FrameType is the 802.15.4 frame type.
type FrameType uint8

const (
	FrameBeacon  FrameType = 0
	FrameData    FrameType = 1
	FrameAck     FrameType = 2
	FrameCommand FrameType = 3
)

// String returns the frame type name.
func (t FrameType) String() string {
	switch t {
	case FrameBeacon:
		return "BEACON"
	case FrameData:
		return "DATA"
	case FrameAck:
		return "ACK"
	case FrameCommand:
		return "COMMAND"
	default:
		return fmt.Sprintf("TYPE_%d", uint8(t))
	}
}

// AddrMode is an addressing mode.
type AddrMode uint8

const (
	AddrNone  AddrMode = 0
	AddrShort AddrMode = 2
	AddrExt   AddrMode = 3
)

// ExtAddr is an 8-byte extended address.
type ExtAddr [8]byte

// String returns the address as hex.
func (a ExtAddr) String() string {
	return hex.EncodeToString(a[:])
}

// Address is a MAC address in one of the addressing modes.
type Address struct {
	Mode  AddrMode
	Short uint16
	Ext   ExtAddr
}

// ShortAddress returns a short-mode address.
func ShortAddress(s uint16) Address {
	return Address{Mode: AddrShort, Short: s}
}

// ExtAddress returns an extended-mode address.
func ExtAddress(e ExtAddr) Address {
	return Address{Mode: AddrExt, Ext: e}
}

// IsBroadcast reports whether a is the broadcast short address.
func (a Address) IsBroadcast() bool {
	return a.Mode == AddrShort && a.Short == BroadcastShort
}

// String formats the address.
func (a Address) String() string {
	switch a.Mode {
	case AddrShort:
		return fmt.Sprintf("0x%04x", a.Short)
	case AddrExt:
		return a.Ext.String()
	default:
		return "none"
	}
}

func (a Address) size() int {
	switch a.Mode {
	case AddrShort:
		return 2
	case AddrExt:
		return 8
	default:
		return 0
	}
}

// Header is a decoded MAC header.
type Header struct {
	Type             FrameType
	Security         bool
	FramePending     bool
	AckRequest       bool
	PanIDCompression bool
	Seq              uint8

	DstPAN uint16
	Dst    Address
	SrcPAN uint16
	Src    Address

	// Auxiliary security header, present when Security is set.
	FrameCounter uint32
	KeyIndex     uint8
}

// Len returns the encoded header length, including the auxiliary security
// header.
func (h *Header) Len() int {
	n := 3
	if h.Dst.Mode != AddrNone {
		n += 2 + h.Dst.size()
	}
	if h.Src.Mode != AddrNone {
		if !h.compressed() {
			n += 2
		}
		n += h.Src.size()
	}
	if h.Security {
		n += AuxHeaderSize
	}
	return n
}

func (h *Header) compressed() bool {
	return h.PanIDCompression && h.Dst.Mode != AddrNone && h.Src.Mode != AddrNone
}

// Append encodes h and appends it to b.
func (h *Header) Append(b []byte) []byte {
	fcf := uint16(h.Type) & 0x7
	if h.Security {
		fcf |= 1 << 3
	}
	if h.FramePending {
		fcf |= 1 << 4
	}
	if h.AckRequest {
		fcf |= 1 << 5
	}
	if h.compressed() {
		fcf |= 1 << 6
	}
	fcf |= uint16(h.Dst.Mode) << 10
	fcf |= 1 << 12 // 2006 frame version
	fcf |= uint16(h.Src.Mode) << 14

	b = binary.LittleEndian.AppendUint16(b, fcf)
	b = append(b, h.Seq)
	if h.Dst.Mode != AddrNone {
		b = binary.LittleEndian.AppendUint16(b, h.DstPAN)
		b = appendAddr(b, h.Dst)
	}
	if h.Src.Mode != AddrNone {
		if !h.compressed() {
			b = binary.LittleEndian.AppendUint16(b, h.SrcPAN)
		}
		b = appendAddr(b, h.Src)
	}
	if h.Security {
		// Security level 5 (ENC-MIC-32), key id mode 1.
		b = append(b, 0x05|1<<3)
		b = binary.LittleEndian.AppendUint32(b, h.FrameCounter)
		b = append(b, h.KeyIndex)
	}
	return b
}

func appendAddr(b []byte, a Address) []byte {
	switch a.Mode {
	case AddrShort:
		return binary.LittleEndian.AppendUint16(b, a.Short)
	case AddrExt:
		for i := 7; i >= 0; i-- {
			b = append(b, a.Ext[i])
		}
	}
	return b
}

// Parse decodes the header at the start of psdu and returns it with the
// remaining payload. psdu must not include the FCS.
func Parse(psdu []byte) (Header, []byte, error) {
	var h Header
	if len(psdu) < 3 {
		return h, nil, ErrTruncated
	}
	fcf := binary.LittleEndian.Uint16(psdu)
	h.Type = FrameType(fcf & 0x7)
	h.Security = fcf&(1<<3) != 0
	h.FramePending = fcf&(1<<4) != 0
	h.AckRequest = fcf&(1<<5) != 0
	h.PanIDCompression = fcf&(1<<6) != 0
	h.Dst.Mode = AddrMode((fcf >> 10) & 0x3)
	h.Src.Mode = AddrMode((fcf >> 14) & 0x3)
	if version := (fcf >> 12) & 0x3; version > 1 {
		return h, nil, fmt.Errorf("%w: frame version %d", ErrUnsupported, version)
	}
	if h.Dst.Mode == 1 || h.Src.Mode == 1 {
		return h, nil, fmt.Errorf("%w: reserved addressing mode", ErrUnsupported)
	}
	h.Seq = psdu[2]

	rest := psdu[3:]
	var err error
	if h.Dst.Mode != AddrNone {
		if len(rest) < 2 {
			return h, nil, ErrTruncated
		}
		h.DstPAN = binary.LittleEndian.Uint16(rest)
		if rest, err = parseAddr(rest[2:], &h.Dst); err != nil {
			return h, nil, err
		}
	}
	if h.Src.Mode != AddrNone {
		if h.compressed() {
			h.SrcPAN = h.DstPAN
		} else {
			if len(rest) < 2 {
				return h, nil, ErrTruncated
			}
			h.SrcPAN = binary.LittleEndian.Uint16(rest)
			rest = rest[2:]
		}
		if rest, err = parseAddr(rest, &h.Src); err != nil {
			return h, nil, err
		}
	}
	if h.Security {
		if len(rest) < AuxHeaderSize {
			return h, nil, ErrTruncated
		}
		if rest[0] != 0x05|1<<3 {
			return h, nil, fmt.Errorf("%w: security control 0x%02x", ErrUnsupported, rest[0])
		}
		h.FrameCounter = binary.LittleEndian.Uint32(rest[1:])
		h.KeyIndex = rest[5]
		rest = rest[AuxHeaderSize:]
	}
	return h, rest, nil
}

func parseAddr(b []byte, a *Address) ([]byte, error) {
	n := a.size()
	if len(b) < n {
		return nil, ErrTruncated
	}
	switch a.Mode {
	case AddrShort:
		a.Short = binary.LittleEndian.Uint16(b)
	case AddrExt:
		for i := range 8 {
			a.Ext[7-i] = b[i]
		}
	}
	return b[n:], nil
}

// Ack returns the 3-byte immediate acknowledgment for seq.
func Ack(seq uint8, framePending bool) []byte {
	h := Header{Type: FrameAck, FramePending: framePending, Seq: seq}
	return h.Append(make([]byte, 0, 3))
}

// Accepts reports whether a receiver with the given PAN ID and addresses
// should accept a frame with header h. Frames without a destination are
// accepted.
func (h *Header) Accepts(pan, short uint16, ext ExtAddr) bool {
	switch h.Dst.Mode {
	case AddrNone:
		return true
	case AddrShort:
		if h.DstPAN != pan && h.DstPAN != BroadcastShort {
			return false
		}
		return h.Dst.Short == BroadcastShort || h.Dst.Short == short
	case AddrExt:
		if h.DstPAN != pan && h.DstPAN != BroadcastShort {
			return false
		}
		return h.Dst.Ext == ext
	}
	return false
}
