package mesh

import (
	"bytes"
	"fmt"
	"net/netip"
	"time"

	"github.com/threadkit/threadkit-go/pkg/ip6"
	"github.com/threadkit/threadkit-go/pkg/thread"
	"github.com/threadkit/threadkit-go/pkg/wire"
)

const (
	// maxChildren bounds the children a leader accepts.
	maxChildren = 32

	// maxRouterID is the highest router ID a leader picks.
	maxRouterID = 62

	// leaderTimeoutIntervals is how many advertisement intervals a child
	// waits for its leader.
	leaderTimeoutIntervals = 3

	// defaultWeighting is the leader weighting in advertisements.
	defaultWeighting = 64
)

// mleState is the attachment state of a node.
type mleState struct {
	role     thread.Role
	rloc16   uint16
	leader   wire.LeaderData
	parent   [8]byte
	children map[[8]byte]uint16
	seq      uint32

	attachAt     time.Time
	advertiseAt  time.Time
	leaderExpiry time.Time
}

// startAttach detaches and looks for a leader.
func (n *Node) startAttach(now time.Time) {
	n.reg.stop()
	n.srp.serverLost()
	n.mle.rloc16 = invalidRLOC16
	n.mle.leader = wire.LeaderData{}
	n.mle.children = nil
	n.mle.advertiseAt = time.Time{}
	n.mle.leaderExpiry = time.Time{}
	n.mle.attachAt = now.Add(n.cfg.AttachTimeout)
	clear(n.rxCounters)
	n.setRole(thread.RoleDetached)
	n.refreshAddrs()
	n.sendMLE(&wire.MLE{Kind: wire.KindParentRequest}, ip6.AllNodes)
}

// processMLE runs attachment timers and returns the next one.
func (n *Node) processMLE(now time.Time) time.Time {
	switch n.mle.role {
	case thread.RoleDetached:
		if !now.Before(n.mle.attachAt) {
			n.becomeLeader(now)
			return n.mle.advertiseAt
		}
		return n.mle.attachAt
	case thread.RoleLeader:
		if !now.Before(n.mle.advertiseAt) {
			n.sendMLE(&wire.MLE{
				Kind:   wire.KindAdvertisement,
				RLOC16: n.mle.rloc16,
				Leader: &n.mle.leader,
			}, ip6.AllNodes)
			n.mle.advertiseAt = now.Add(n.cfg.AdvertiseInterval)
		}
		return n.mle.advertiseAt
	case thread.RoleChild:
		if !now.Before(n.mle.leaderExpiry) {
			n.logger.Info("leader lost", "partition", n.mle.leader.PartitionID)
			n.startAttach(now)
			return n.mle.attachAt
		}
		return n.mle.leaderExpiry
	}
	return time.Time{}
}

// becomeLeader starts a new partition.
func (n *Node) becomeLeader(now time.Time) {
	routerID := uint16(n.randomUint32() % (maxRouterID + 1))
	n.mle.rloc16 = routerID << 10
	n.mle.leader = wire.LeaderData{
		PartitionID:  n.randomUint32(),
		LeaderRLOC16: n.mle.rloc16,
		Weighting:    defaultWeighting,
	}
	n.mle.children = make(map[[8]byte]uint16)
	n.mle.attachAt = time.Time{}
	n.mle.advertiseAt = now
	n.setRole(thread.RoleLeader)

	if n.cfg.Registrar {
		addr := n.rloc().As16()
		n.mle.leader.Registrar = addr[:]
		n.mle.leader.RegistrarPort = wire.SrpPort
		n.reg.start(now)
	}
	n.logger.Info("partition started",
		"partition", n.mle.leader.PartitionID,
		"rloc16", fmt.Sprintf("0x%04x", n.mle.rloc16))
	n.updateServer()
}

// becomeChild attaches to the leader that answered.
func (n *Node) becomeChild(now time.Time, parent [8]byte, m *wire.MLE) {
	n.mle.rloc16 = m.RLOC16
	n.mle.leader = *m.Leader
	n.mle.parent = parent
	n.mle.attachAt = time.Time{}
	n.mle.leaderExpiry = now.Add(leaderTimeoutIntervals * n.cfg.AdvertiseInterval)
	n.setRole(thread.RoleChild)
	n.logger.Info("attached",
		"partition", n.mle.leader.PartitionID,
		"rloc16", fmt.Sprintf("0x%04x", n.mle.rloc16))
	n.updateServer()
}

// updateServer points the SRP client at the registrar in the leader data.
func (n *Node) updateServer() {
	ld := n.mle.leader
	if !n.mle.role.Attached() || len(ld.Registrar) != 16 || ld.RegistrarPort == 0 {
		n.srp.serverLost()
		return
	}
	addr := netip.AddrFrom16([16]byte(ld.Registrar))
	n.srp.setServer(netip.AddrPortFrom(addr, ld.RegistrarPort))
}

func (n *Node) handleMLE(d ip6.Datagram, now time.Time) {
	m, err := wire.DecodeMLE(d.Payload)
	if err != nil {
		n.logger.Debug("dropping mle message", "from", d.Src, "error", err)
		return
	}
	if !n.threadUp {
		return
	}
	from := [8]byte(m.ExtAddress)

	switch m.Kind {
	case wire.KindParentRequest:
		if n.mle.role == thread.RoleLeader {
			n.acceptChild(from)
		}
	case wire.KindChildIDResponse:
		if n.mle.role == thread.RoleDetached && d.Dst.Addr() == n.linkLocal() {
			n.becomeChild(now, from, m)
		}
	case wire.KindAdvertisement:
		n.handleAdvertisement(now, from, m)
	}
}

func (n *Node) acceptChild(ext [8]byte) {
	id, ok := n.mle.children[ext]
	if !ok {
		if len(n.mle.children) >= maxChildren {
			n.logger.Warn("child table full", "child", fmt.Sprintf("%x", ext))
			return
		}
		id = uint16(len(n.mle.children) + 1)
		n.mle.children[ext] = id
	}
	rloc16 := n.mle.rloc16 | id
	n.logger.Debug("child accepted", "child", fmt.Sprintf("%x", ext), "rloc16", fmt.Sprintf("0x%04x", rloc16))
	dst := ip6.WithIID(ip6.LinkLocalPrefix, ip6.IIDFromExt(ext))
	n.sendMLE(&wire.MLE{
		Kind:   wire.KindChildIDResponse,
		RLOC16: rloc16,
		Leader: &n.mle.leader,
	}, dst)
}

func (n *Node) handleAdvertisement(now time.Time, from [8]byte, m *wire.MLE) {
	ld := m.Leader
	switch n.mle.role {
	case thread.RoleLeader:
		if ld.PartitionID == n.mle.leader.PartitionID && from == n.ext {
			return
		}
		if partitionWins(ld.PartitionID, from, n.mle.leader.PartitionID, n.ext) {
			n.logger.Info("merging into partition",
				"partition", ld.PartitionID,
				"previous", n.mle.leader.PartitionID)
			n.startAttach(now)
		}
	case thread.RoleChild:
		if ld.PartitionID == n.mle.leader.PartitionID {
			n.mle.leaderExpiry = now.Add(leaderTimeoutIntervals * n.cfg.AdvertiseInterval)
			if ld.LeaderRLOC16 != n.mle.leader.LeaderRLOC16 || !bytes.Equal(ld.Registrar, n.mle.leader.Registrar) ||
				ld.RegistrarPort != n.mle.leader.RegistrarPort {
				n.mle.leader = *ld
				n.updateServer()
			}
			return
		}
		if ld.PartitionID > n.mle.leader.PartitionID {
			n.startAttach(now)
		}
	case thread.RoleDetached:
		n.sendMLE(&wire.MLE{Kind: wire.KindParentRequest}, ip6.AllNodes)
	}
}

// partitionWins reports whether partition a led by extA takes precedence
// over partition b led by extB.
func partitionWins(a uint32, extA [8]byte, b uint32, extB [8]byte) bool {
	if a != b {
		return a > b
	}
	return bytes.Compare(extA[:], extB[:]) > 0
}

// sendMLE multicasts or unicasts an MLE message from the link-local address.
func (n *Node) sendMLE(m *wire.MLE, dst netip.Addr) {
	m.Seq = n.mle.seq
	n.mle.seq++
	m.ExtAddress = n.ext[:]
	payload, err := wire.EncodeMLE(m)
	if err != nil {
		n.logger.Warn("failed to encode mle message", "kind", m.Kind, "error", err)
		return
	}
	src := netip.AddrPortFrom(n.linkLocal(), wire.MLEPort)
	pkt, err := ip6.AppendUDP(nil, src, netip.AddrPortFrom(dst, wire.MLEPort), payload)
	if err != nil {
		n.logger.Warn("failed to build mle packet", "kind", m.Kind, "error", err)
		return
	}
	if err := n.sendPacket(pkt); err != nil {
		n.logger.Debug("mle send failed", "kind", m.Kind, "error", err)
	}
}
