package ip6

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"

	"golang.org/x/net/ipv6"
)

// Sizes.
const (
	HeaderLen    = ipv6.HeaderLen
	UDPHeaderLen = 8

	// MinMTU is the IPv6 minimum link MTU, and the MTU of a Thread interface.
	MinMTU = 1280

	// ProtoUDP is the UDP next-header value.
	ProtoUDP = 17

	// DefaultHopLimit is used for outgoing packets.
	DefaultHopLimit = 64
)

// Packet errors.
var (
	// ErrMalformed indicates an invalid IPv6 or UDP header.
	ErrMalformed = errors.New("malformed ipv6 packet")

	// ErrNotUDP indicates a packet whose next header is not UDP.
	ErrNotUDP = errors.New("not a udp packet")

	// ErrTooLarge indicates a packet exceeding MinMTU.
	ErrTooLarge = errors.New("packet exceeds mtu")

	// ErrChecksum indicates a UDP checksum mismatch.
	ErrChecksum = errors.New("udp checksum mismatch")
)

// Header is the part of an IPv6 header callers route on.
type Header struct {
	Src, Dst   netip.Addr
	NextHeader int
	HopLimit   int
	PayloadLen int
}

// ParseHeader validates pkt as an IPv6 packet and returns its header.
func ParseHeader(pkt []byte) (Header, error) {
	h, err := ipv6.ParseHeader(pkt)
	if err != nil {
		return Header{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if h.Version != ipv6.Version {
		return Header{}, fmt.Errorf("%w: version %d", ErrMalformed, h.Version)
	}
	if HeaderLen+h.PayloadLen > len(pkt) {
		return Header{}, fmt.Errorf("%w: payload length %d exceeds packet", ErrMalformed, h.PayloadLen)
	}
	src, _ := netip.AddrFromSlice(h.Src)
	dst, _ := netip.AddrFromSlice(h.Dst)
	return Header{
		Src:        src,
		Dst:        dst,
		NextHeader: h.NextHeader,
		HopLimit:   h.HopLimit,
		PayloadLen: h.PayloadLen,
	}, nil
}

// Datagram is a decoded UDP datagram.
type Datagram struct {
	Src, Dst netip.AddrPort
	Payload  []byte
}

// ParseUDP parses an IPv6 packet carrying UDP. The returned payload aliases pkt.
func ParseUDP(pkt []byte) (Datagram, error) {
	h, err := ParseHeader(pkt)
	if err != nil {
		return Datagram{}, err
	}
	if h.NextHeader != ProtoUDP {
		return Datagram{}, ErrNotUDP
	}
	body := pkt[HeaderLen : HeaderLen+h.PayloadLen]
	if len(body) < UDPHeaderLen {
		return Datagram{}, fmt.Errorf("%w: short udp header", ErrMalformed)
	}
	ulen := int(binary.BigEndian.Uint16(body[4:]))
	if ulen < UDPHeaderLen || ulen > len(body) {
		return Datagram{}, fmt.Errorf("%w: udp length %d", ErrMalformed, ulen)
	}
	if sum := binary.BigEndian.Uint16(body[6:]); sum != 0 {
		if checksum(h.Src, h.Dst, body[:ulen]) != 0 {
			return Datagram{}, ErrChecksum
		}
	}
	return Datagram{
		Src:     netip.AddrPortFrom(h.Src, binary.BigEndian.Uint16(body[0:])),
		Dst:     netip.AddrPortFrom(h.Dst, binary.BigEndian.Uint16(body[2:])),
		Payload: body[UDPHeaderLen:ulen],
	}, nil
}

// AppendUDP appends an IPv6 packet carrying a UDP datagram to b.
func AppendUDP(b []byte, src, dst netip.AddrPort, payload []byte) ([]byte, error) {
	if !src.Addr().Is6() || !dst.Addr().Is6() {
		return b, fmt.Errorf("%w: non-ipv6 endpoint", ErrMalformed)
	}
	ulen := UDPHeaderLen + len(payload)
	if HeaderLen+ulen > MinMTU {
		return b, fmt.Errorf("%w: %d bytes", ErrTooLarge, HeaderLen+ulen)
	}

	b = append(b, 0x60, 0, 0, 0)
	b = binary.BigEndian.AppendUint16(b, uint16(ulen))
	b = append(b, ProtoUDP, DefaultHopLimit)
	s, d := src.Addr().As16(), dst.Addr().As16()
	b = append(b, s[:]...)
	b = append(b, d[:]...)

	start := len(b)
	b = binary.BigEndian.AppendUint16(b, src.Port())
	b = binary.BigEndian.AppendUint16(b, dst.Port())
	b = binary.BigEndian.AppendUint16(b, uint16(ulen))
	b = append(b, 0, 0)
	b = append(b, payload...)

	sum := checksum(src.Addr(), dst.Addr(), b[start:])
	if sum == 0 {
		sum = 0xffff
	}
	binary.BigEndian.PutUint16(b[start+6:], sum)
	return b, nil
}

// checksum computes the UDP checksum over the IPv6 pseudo-header and the
// datagram. Over a datagram carrying a valid checksum it returns 0.
func checksum(src, dst netip.Addr, udp []byte) uint16 {
	var sum uint32
	s, d := src.As16(), dst.As16()
	for i := 0; i < 16; i += 2 {
		sum += uint32(s[i])<<8 | uint32(s[i+1])
		sum += uint32(d[i])<<8 | uint32(d[i+1])
	}
	sum += uint32(len(udp))
	sum += ProtoUDP

	for i := 0; i+1 < len(udp); i += 2 {
		sum += uint32(udp[i])<<8 | uint32(udp[i+1])
	}
	if len(udp)%2 == 1 {
		sum += uint32(udp[len(udp)-1]) << 8
	}
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return ^uint16(sum)
}
