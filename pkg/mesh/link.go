package mesh

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"

	"github.com/threadkit/threadkit-go/pkg/ip6"
	"github.com/threadkit/threadkit-go/pkg/log"
	"github.com/threadkit/threadkit-go/pkg/mac"
	"github.com/threadkit/threadkit-go/pkg/radio"
	"github.com/threadkit/threadkit-go/pkg/wire"
)

// keyIndex is the key index carried in the auxiliary security header.
const keyIndex = 1

// sendPacket routes an IPv6 packet and queues it as secured frames.
// Packets for the node's own addresses are looped back.
func (n *Node) sendPacket(pkt []byte) error {
	h, err := ip6.ParseHeader(pkt)
	if err != nil {
		return err
	}
	if !n.ipv6Up {
		return ErrDown
	}
	if n.isOwn(h.Dst) {
		n.loop = append(n.loop, slices.Clone(pkt))
		return nil
	}
	if !n.threadUp || n.cipher == nil {
		return fmt.Errorf("%w: thread disabled", ErrDown)
	}

	dst := n.route(h.Dst)
	hdr := mac.Header{
		Type:             mac.FrameData,
		Security:         true,
		AckRequest:       !dst.IsBroadcast(),
		PanIDCompression: true,
		DstPAN:           n.panID(),
		Dst:              dst,
		Src:              mac.ExtAddress(n.ext),
		KeyIndex:         keyIndex,
	}
	mtu := radio.MaxPSDU - radio.FCSSize - hdr.Len() - n.cipher.overhead()
	n.tag++
	frags := fragment(pkt, mtu, n.tag)
	if len(n.txq)+len(frags) > n.cfg.TxQueue {
		return fmt.Errorf("%w: %d frames queued", ErrTxQueueFull, len(n.txq))
	}
	for _, f := range frags {
		hdr.Seq = n.seq
		n.seq++
		hdr.FrameCounter = n.nextFrameCounter()
		b := hdr.Append(make([]byte, 0, radio.MaxPSDU))
		n.txq = append(n.txq, n.cipher.seal(b, f, n.ext, hdr.FrameCounter))
	}
	return nil
}

// route picks the link destination of an IPv6 destination.
func (n *Node) route(dst netip.Addr) mac.Address {
	switch {
	case dst.IsMulticast():
		return mac.ShortAddress(mac.BroadcastShort)
	case dst.IsLinkLocalUnicast():
		return mac.ExtAddress(ip6.ExtFromIID(ip6.IID(dst)))
	case n.meshLocal.Contains(dst):
		if rloc16, ok := ip6.IsRLOC(ip6.IID(dst)); ok {
			return mac.ShortAddress(rloc16)
		}
	}
	if a, ok := n.neighbors[dst]; ok {
		return a
	}
	return mac.ShortAddress(mac.BroadcastShort)
}

func (n *Node) learnNeighbor(src netip.Addr, from mac.Address) {
	if !src.IsValid() || src.IsUnspecified() || src.IsMulticast() || n.isOwn(src) {
		return
	}
	if _, ok := n.neighbors[src]; !ok && len(n.neighbors) >= maxNeighbors {
		// Evict an arbitrary entry; the cache only saves broadcasts.
		for k := range n.neighbors {
			delete(n.neighbors, k)
			break
		}
	}
	n.neighbors[src] = from
}

// NextTransmit hands out the oldest queued frame.
func (n *Node) NextTransmit(f *radio.Frame) bool {
	if len(n.txq) == 0 {
		return false
	}
	psdu := n.txq[0]
	n.txq[0] = nil
	n.txq = n.txq[1:]
	if err := f.SetBytes(psdu); err != nil {
		n.logger.Warn("dropping oversized frame", "error", err)
		return false
	}
	f.Channel = n.RadioConfig().Channel
	return true
}

// TransmitDone records the outcome of a transmission. Retries are left to
// the radio.
func (n *Node) TransmitDone(f *radio.Frame, result radio.TxResult, err error) {
	if err != nil || result != radio.TxAck {
		n.txFailures++
		n.logger.Debug("transmission failed", "result", result, "error", err, "failures", n.txFailures)
	}
}

// Receive authenticates a frame, reassembles its packet and dispatches it.
func (n *Node) Receive(f *radio.Frame, _ radio.RxMeta) {
	if !n.threadUp || n.cipher == nil {
		return
	}
	psdu := f.Bytes()
	h, payload, err := mac.Parse(psdu)
	if err != nil {
		n.logger.Debug("dropping unparsable frame", "error", err)
		return
	}
	if h.Type != mac.FrameData || !h.Security || h.Src.Mode != mac.AddrExt || h.Src.Ext == n.ext {
		return
	}
	if !h.Accepts(n.panID(), n.shortAddress(), n.ext) {
		return
	}

	src := [8]byte(h.Src.Ext)
	plain, err := n.cipher.open(psdu[:len(psdu)-len(payload)], payload, src, h.FrameCounter)
	if err != nil {
		n.logger.Debug("dropping unauthenticated frame", "src", h.Src, "error", err)
		n.captureError(log.LayerRadio, h.Src.String(), "frame security", err)
		return
	}
	last, known := n.rxCounters[src]
	stale := known && h.FrameCounter <= last

	pkt, err := n.reasm.add(h.Src, plain, n.cfg.Clock())
	if err != nil {
		n.logger.Debug("dropping frame", "src", h.Src, "error", err)
		n.captureError(log.LayerMesh, h.Src.String(), "reassembly", err)
		return
	}
	if pkt == nil {
		if !stale {
			n.rxCounters[src] = h.FrameCounter
		}
		return
	}
	if stale {
		// A restarted neighbor starts over with its frame counter; its
		// parent request is the only message accepted from it.
		if !isParentRequest(pkt) {
			n.logger.Debug("dropping replayed frame", "src", h.Src, "counter", h.FrameCounter, "last", last)
			return
		}
	}
	n.rxCounters[src] = h.FrameCounter
	n.handlePacket(pkt, h.Src)
}

func isParentRequest(pkt []byte) bool {
	d, err := ip6.ParseUDP(pkt)
	if err != nil || d.Dst.Port() != wire.MLEPort {
		return false
	}
	kind, err := wire.PeekKind(d.Payload)
	return err == nil && kind == wire.KindParentRequest
}

// handlePacket dispatches a packet received from the link or looped back.
func (n *Node) handlePacket(pkt []byte, from mac.Address) {
	h, err := ip6.ParseHeader(pkt)
	if err != nil {
		n.logger.Debug("dropping malformed packet", "error", err)
		return
	}
	n.learnNeighbor(h.Src, from)
	if !h.Dst.IsMulticast() && !n.isOwn(h.Dst) {
		// Single hop: nothing is forwarded.
		return
	}
	n.deliver(pkt, h)
}

// deliver hands a packet for this node to the node's own services, then to
// a matching socket, then to the external stack.
func (n *Node) deliver(pkt []byte, h ip6.Header) {
	if h.NextHeader == ip6.ProtoUDP {
		d, err := ip6.ParseUDP(pkt)
		if err != nil {
			n.logger.Debug("dropping malformed datagram", "src", h.Src, "error", err)
			return
		}
		now := n.cfg.Clock()
		switch d.Dst.Port() {
		case wire.MLEPort:
			n.handleMLE(d, now)
			return
		case srpClientPort:
			n.srp.handleResponse(d, now)
			return
		case wire.SrpPort:
			if n.reg.active {
				n.reg.handle(d, now)
				return
			}
		}
		for _, id := range slices.Sorted(maps.Keys(n.sockets)) {
			local := n.sockets[id]
			if local.Port() != d.Dst.Port() {
				continue
			}
			if a := local.Addr(); a.IsValid() && !a.IsUnspecified() && a != d.Dst.Addr() {
				continue
			}
			n.host.DeliverUDP(id, d.Payload, d.Dst, d.Src)
			return
		}
	}
	if n.ipv6Rx {
		n.host.DeliverIPv6(pkt)
	}
}

// UDPOpen registers a socket bound to local.
func (n *Node) UDPOpen(id uint32, local netip.AddrPort) error {
	if reservedPort(local.Port()) {
		return fmt.Errorf("%w: %d", ErrPortReserved, local.Port())
	}
	if _, ok := n.sockets[id]; ok {
		return fmt.Errorf("%w: %d", ErrSocketExists, id)
	}
	n.sockets[id] = local
	return nil
}

// UDPClose forgets a socket.
func (n *Node) UDPClose(id uint32) {
	delete(n.sockets, id)
}

// UDPSend sends payload from the socket opened with id.
func (n *Node) UDPSend(id uint32, payload []byte, src netip.Addr, dst netip.AddrPort) error {
	local, ok := n.sockets[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSocket, id)
	}
	if !n.ipv6Up {
		return ErrDown
	}
	switch {
	case src.IsValid() && !src.IsUnspecified():
		if !n.isOwn(src) {
			return fmt.Errorf("%w: %s", ErrInvalidSource, src)
		}
	case local.Addr().IsValid() && !local.Addr().IsUnspecified():
		src = local.Addr()
	default:
		src = n.selectSource(dst.Addr())
	}
	if !src.IsValid() {
		return fmt.Errorf("%w: no address for %s", ErrInvalidSource, dst.Addr())
	}
	pkt, err := ip6.AppendUDP(nil, netip.AddrPortFrom(src, local.Port()), dst, payload)
	if err != nil {
		return err
	}
	return n.sendPacket(pkt)
}

// selectSource picks the source address for dst: link-local for link-scope
// destinations, the mesh-local EID otherwise.
func (n *Node) selectSource(dst netip.Addr) netip.Addr {
	linkScope := dst.IsLinkLocalUnicast() || dst.IsLinkLocalMulticast() || dst.IsInterfaceLocalMulticast()
	if !linkScope && n.threadUp && n.meshLocal.IsValid() {
		return n.meshLocalEID()
	}
	if n.ipv6Up {
		return n.linkLocal()
	}
	return netip.Addr{}
}

// SendIPv6 sends a packet from the external stack. Its source must be one
// of the node's addresses or unspecified.
func (n *Node) SendIPv6(pkt []byte) error {
	if len(pkt) > ip6.MinMTU {
		return fmt.Errorf("%w: %d bytes", ip6.ErrTooLarge, len(pkt))
	}
	h, err := ip6.ParseHeader(pkt)
	if err != nil {
		return err
	}
	if !h.Src.IsUnspecified() && !n.isOwn(h.Src) {
		return fmt.Errorf("%w: %s", ErrInvalidSource, h.Src)
	}
	return n.sendPacket(pkt[:ip6.HeaderLen+h.PayloadLen])
}

// SetIPv6Receive enables delivery of unclaimed packets to the host.
func (n *Node) SetIPv6Receive(enable bool) {
	n.ipv6Rx = enable
}
