package enet

import (
	"context"
	"errors"
	"net/netip"

	"github.com/threadkit/threadkit-go/pkg/ip6"
)

// UDPEndpoint exchanges UDP datagrams over a Driver. Packets that are not
// UDP to its port are discarded.
type UDPEndpoint struct {
	d     *Driver
	local netip.AddrPort
	rbuf  [MTU]byte
	wbuf  []byte
}

// NewUDPEndpoint returns an endpoint bound to local. An unspecified address
// accepts datagrams to any address.
func NewUDPEndpoint(d *Driver, local netip.AddrPort) *UDPEndpoint {
	return &UDPEndpoint{d: d, local: local, wbuf: make([]byte, 0, MTU)}
}

// LocalAddr returns the bound address.
func (u *UDPEndpoint) LocalAddr() netip.AddrPort {
	return u.local
}

// ReadFrom waits for the next datagram for this endpoint and copies its
// payload into buf, truncating it if needed.
func (u *UDPEndpoint) ReadFrom(ctx context.Context, buf []byte) (n int, local, remote netip.AddrPort, err error) {
	for {
		m, err := u.d.ReadPacket(ctx, u.rbuf[:])
		if err != nil {
			return 0, local, remote, err
		}
		dg, err := ip6.ParseUDP(u.rbuf[:m])
		if err != nil {
			continue
		}
		if !u.accepts(dg.Dst) {
			continue
		}
		return copy(buf, dg.Payload), dg.Dst, dg.Src, nil
	}
}

// WriteTo sends payload from src to dst. A zero src uses the bound address.
func (u *UDPEndpoint) WriteTo(ctx context.Context, payload []byte, src netip.Addr, dst netip.AddrPort) error {
	if !src.IsValid() {
		src = u.local.Addr()
	}
	if !src.IsValid() || src.IsUnspecified() {
		return errors.New("udp endpoint: no source address")
	}
	pkt, err := ip6.AppendUDP(u.wbuf[:0], netip.AddrPortFrom(src, u.local.Port()), dst, payload)
	if err != nil {
		return err
	}
	return u.d.WritePacket(ctx, pkt)
}

func (u *UDPEndpoint) accepts(dst netip.AddrPort) bool {
	if dst.Port() != u.local.Port() {
		return false
	}
	a := u.local.Addr()
	return !a.IsValid() || a.IsUnspecified() || a == dst.Addr()
}
