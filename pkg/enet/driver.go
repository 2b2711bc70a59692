package enet

import (
	"context"
	"fmt"
	"io"
	"net"

	"code.hybscloud.com/iox"
	"golang.org/x/net/ipv6"

	"github.com/threadkit/threadkit-go/pkg/thread"
)

// LinkConfig describes the link the driver presents to a stack.
type LinkConfig struct {
	MTU          int
	HardwareAddr net.HardwareAddr
}

// Driver is the link-layer device an external IP stack reads and writes
// IPv6 packets through. It supports one reader and one writer.
type Driver struct {
	h     thread.Handle
	state *State
}

// ReadPacket copies the next packet from the mesh into buf. It fails with
// io.ErrShortBuffer, dropping the packet, when buf cannot hold it, and with
// ErrClosed once the runner has stopped and the queue is drained.
func (d *Driver) ReadPacket(ctx context.Context, buf []byte) (int, error) {
	p, err := pop(&d.state.rx, func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.state.closed.Load() {
			return ErrClosed
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if p.n > len(buf) {
		return 0, io.ErrShortBuffer
	}
	return copy(buf, p.buf[:p.n]), nil
}

// WritePacket queues pkt for transmission into the mesh. It waits for a free
// queue slot until ctx ends.
func (d *Driver) WritePacket(ctx context.Context, pkt []byte) error {
	if err := ValidatePacket(pkt); err != nil {
		return err
	}
	if d.state.closed.Load() {
		return ErrClosed
	}
	var p packet
	p.n = copy(p.buf[:], pkt)

	var bo iox.Backoff
	for {
		err := d.state.tx.Enqueue(&p)
		if err == nil {
			return nil
		}
		if !iox.IsWouldBlock(err) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.state.closed.Load() {
			return ErrClosed
		}
		bo.Wait()
	}
}

// LinkConfig returns the MTU and hardware address of the link.
func (d *Driver) LinkConfig() LinkConfig {
	return LinkConfig{MTU: MTU, HardwareAddr: d.HardwareAddr()}
}

// HardwareAddr returns the 64-bit extended address of the radio.
func (d *Driver) HardwareAddr() net.HardwareAddr {
	ext := d.h.ExtAddress()
	return net.HardwareAddr(ext[:])
}

// RxDropped returns the number of packets dropped because the reader fell
// behind.
func (d *Driver) RxDropped() uint64 {
	return d.state.rxDropped.Load()
}

// ValidatePacket checks that pkt is a single well-formed IPv6 packet that
// fits the link.
func ValidatePacket(pkt []byte) error {
	if len(pkt) > MTU {
		return fmt.Errorf("%w: %d bytes exceeds mtu %d", ErrInvalidPacket, len(pkt), MTU)
	}
	h, err := ipv6.ParseHeader(pkt)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPacket, err)
	}
	if h.Version != ipv6.Version {
		return fmt.Errorf("%w: version %d", ErrInvalidPacket, h.Version)
	}
	if ipv6.HeaderLen+h.PayloadLen != len(pkt) {
		return fmt.Errorf("%w: payload length %d in %d-byte packet", ErrInvalidPacket, h.PayloadLen, len(pkt))
	}
	return nil
}
