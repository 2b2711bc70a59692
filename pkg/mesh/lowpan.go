package mesh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/threadkit/threadkit-go/pkg/ip6"
	"github.com/threadkit/threadkit-go/pkg/mac"
)

// 6LoWPAN dispatch values (RFC 4944).
const (
	dispatchIPv6  = 0x41
	dispatchFrag1 = 0xc0
	dispatchFragN = 0xe0
	dispatchMask  = 0xf8

	frag1HeaderLen = 4
	fragNHeaderLen = 5
)

// maxReassemblies bounds the packets reassembled at once.
const maxReassemblies = 4

// Adaptation layer errors.
var (
	errDispatch   = errors.New("unsupported 6lowpan dispatch")
	errFragment   = errors.New("malformed fragment")
	errReassembly = errors.New("reassembly table full")
)

// fragment splits an IPv6 packet into link payloads of at most mtu bytes.
// Packets that fit are sent with the uncompressed IPv6 dispatch alone.
func fragment(pkt []byte, mtu int, tag uint16) [][]byte {
	if 1+len(pkt) <= mtu {
		b := make([]byte, 0, 1+len(pkt))
		b = append(b, dispatchIPv6)
		return [][]byte{append(b, pkt...)}
	}

	size := len(pkt)
	n := (mtu - frag1HeaderLen - 1) &^ 7
	first := make([]byte, 0, frag1HeaderLen+1+n)
	first = appendFragHeader(first, dispatchFrag1, size, tag)
	first = append(first, dispatchIPv6)
	first = append(first, pkt[:n]...)
	frags := [][]byte{first}

	for off := n; off < size; {
		n := (mtu - fragNHeaderLen) &^ 7
		if off+n > size {
			n = size - off
		}
		b := make([]byte, 0, fragNHeaderLen+n)
		b = appendFragHeader(b, dispatchFragN, size, tag)
		b = append(b, byte(off/8))
		b = append(b, pkt[off:off+n]...)
		frags = append(frags, b)
		off += n
	}
	return frags
}

func appendFragHeader(b []byte, dispatch byte, size int, tag uint16) []byte {
	b = append(b, dispatch|byte(size>>8)&0x07, byte(size))
	return binary.BigEndian.AppendUint16(b, tag)
}

type reasmKey struct {
	src  mac.Address
	tag  uint16
	size int
}

type reassembly struct {
	buf     []byte
	blocks  []bool
	missing int
	expires time.Time
}

// reassembler collects fragments into IPv6 packets.
type reassembler struct {
	timeout time.Duration
	pending map[reasmKey]*reassembly
}

func newReassembler(timeout time.Duration) *reassembler {
	return &reassembler{timeout: timeout, pending: make(map[reasmKey]*reassembly)}
}

// add processes one link payload from src. It returns the complete packet,
// or nil while fragments are outstanding.
func (r *reassembler) add(src mac.Address, payload []byte, now time.Time) ([]byte, error) {
	if len(payload) == 0 {
		return nil, errDispatch
	}
	if payload[0] == dispatchIPv6 {
		return append([]byte(nil), payload[1:]...), nil
	}

	var offset int
	var data []byte
	switch payload[0] & dispatchMask {
	case dispatchFrag1:
		if len(payload) < frag1HeaderLen+1 || payload[frag1HeaderLen] != dispatchIPv6 {
			return nil, fmt.Errorf("%w: first fragment", errFragment)
		}
		data = payload[frag1HeaderLen+1:]
	case dispatchFragN:
		if len(payload) < fragNHeaderLen {
			return nil, fmt.Errorf("%w: short header", errFragment)
		}
		offset = int(payload[4]) * 8
		data = payload[fragNHeaderLen:]
	default:
		return nil, fmt.Errorf("%w: 0x%02x", errDispatch, payload[0])
	}

	size := int(payload[0]&0x07)<<8 | int(payload[1])
	key := reasmKey{src: src, tag: binary.BigEndian.Uint16(payload[2:]), size: size}
	if size > ip6.MinMTU || offset+len(data) > size {
		return nil, fmt.Errorf("%w: %d bytes at %d of %d", errFragment, len(data), offset, size)
	}
	if offset+len(data) < size && len(data)%8 != 0 {
		return nil, fmt.Errorf("%w: unaligned length %d", errFragment, len(data))
	}

	ra, ok := r.pending[key]
	if !ok {
		if len(r.pending) >= maxReassemblies {
			return nil, errReassembly
		}
		nblocks := (size + 7) / 8
		ra = &reassembly{
			buf:     make([]byte, size),
			blocks:  make([]bool, nblocks),
			missing: nblocks,
			expires: now.Add(r.timeout),
		}
		r.pending[key] = ra
	}

	copy(ra.buf[offset:], data)
	for i := offset / 8; i < (offset+len(data)+7)/8; i++ {
		if !ra.blocks[i] {
			ra.blocks[i] = true
			ra.missing--
		}
	}
	if ra.missing > 0 {
		return nil, nil
	}
	delete(r.pending, key)
	return ra.buf, nil
}

// expire drops stale reassemblies and returns the next expiry, or the zero
// time when nothing is pending.
func (r *reassembler) expire(now time.Time) (next time.Time, dropped int) {
	for key, ra := range r.pending {
		if !now.Before(ra.expires) {
			delete(r.pending, key)
			dropped++
			continue
		}
		if next.IsZero() || ra.expires.Before(next) {
			next = ra.expires
		}
	}
	return next, dropped
}

func (r *reassembler) reset() {
	clear(r.pending)
}
