package mesh

import (
	"log/slog"
	"net/netip"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/threadkit/threadkit-go/pkg/backoff"
	"github.com/threadkit/threadkit-go/pkg/dataset"
	"github.com/threadkit/threadkit-go/pkg/log"
	"github.com/threadkit/threadkit-go/pkg/persistence"
	"github.com/threadkit/threadkit-go/pkg/radio"
	"github.com/threadkit/threadkit-go/pkg/thread"
)

// step is the clock granularity of testNet.advance.
const step = 50 * time.Millisecond

type udpDelivery struct {
	id      uint32
	payload []byte
	local   netip.AddrPort
	remote  netip.AddrPort
}

// fakeHost records everything a node reports.
type fakeHost struct {
	changes thread.Changes
	udp     []udpDelivery
	ipv6    [][]byte
}

func (h *fakeHost) Notify(c thread.Changes) { h.changes |= c }

func (h *fakeHost) DeliverUDP(id uint32, payload []byte, local, remote netip.AddrPort) {
	h.udp = append(h.udp, udpDelivery{id: id, payload: slices.Clone(payload), local: local, remote: remote})
}

func (h *fakeHost) DeliverIPv6(pkt []byte) { h.ipv6 = append(h.ipv6, slices.Clone(pkt)) }

type testNode struct {
	*Node
	host *fakeHost
	sent int
}

// testNet shuttles frames between nodes on a shared fake clock. Frames are
// handed over synchronously, so tests never sleep.
type testNet struct {
	t     *testing.T
	now   time.Time
	nodes []*testNode

	// drop, when set, discards frames for which it returns true.
	drop func(from, to *testNode) bool
}

func newTestNet(t *testing.T) *testNet {
	return &testNet{t: t, now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (tn *testNet) clock() time.Time { return tn.now }

func testDataset() *dataset.Dataset {
	return &dataset.Dataset{
		ActiveTimestamp: &dataset.Timestamp{Seconds: 1},
		NetworkKey: &dataset.NetworkKey{
			0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
			0x88, 0x99, 0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff,
		},
		NetworkName:   dataset.Ptr("threadkit-test"),
		ExtendedPanID: &dataset.ExtendedPanID{0xde, 0xad, 0x00, 0xbe, 0xef, 0x00, 0xca, 0xfe},
		PanID:         dataset.Ptr(uint16(0x1234)),
		Channel:       dataset.Ptr(uint8(15)),
	}
}

func (tn *testNet) config(mutate func(*Config)) Config {
	cfg := DefaultConfig()
	cfg.Clock = tn.clock
	cfg.SrpBackoff = backoff.Config{}
	if mutate != nil {
		mutate(&cfg)
	}
	return cfg
}

// add creates and initializes a node whose EUI-64 ends in id.
func (tn *testNet) add(id byte, store *persistence.SettingsStore, mutate func(*Config)) *testNode {
	tn.t.Helper()
	n, err := New(tn.config(mutate))
	require.NoError(tn.t, err)
	host := &fakeHost{}
	err = n.Init(thread.NativeConfig{
		EUI64:          thread.EUI64{0x02, 0, 0, 0, 0, 0, 0, id},
		Logger:         slog.New(slog.DiscardHandler),
		ProtocolLogger: log.NoopLogger{},
		Settings:       store,
	}, host)
	require.NoError(tn.t, err)
	node := &testNode{Node: n, host: host}
	tn.nodes = append(tn.nodes, node)
	return node
}

// up brings a node's interface and mesh up with the test dataset.
func (tn *testNet) up(n *testNode, ds *dataset.Dataset) {
	tn.t.Helper()
	if ds == nil {
		ds = testDataset()
	}
	require.NoError(tn.t, n.SetActiveDataset(ds))
	require.NoError(tn.t, n.EnableIPv6(true))
	require.NoError(tn.t, n.EnableThread(true))
}

// flush moves frames and loopback traffic until the network is quiet.
func (tn *testNet) flush() {
	tn.t.Helper()
	for round := 0; round < 1000; round++ {
		moved := false
		for _, src := range tn.nodes {
			var f radio.Frame
			for src.NextTransmit(&f) {
				moved = true
				src.sent++
				for _, dst := range tn.nodes {
					if dst == src || dst.RadioConfig().Channel != f.Channel {
						continue
					}
					if tn.drop != nil && tn.drop(src, dst) {
						continue
					}
					var rx radio.Frame
					rx.CopyFrom(&f)
					dst.Receive(&rx, radio.RxMeta{RSSI: -40})
				}
				src.TransmitDone(&f, radio.TxAck, nil)
			}
		}
		for _, n := range tn.nodes {
			if len(n.loop) > 0 {
				moved = true
			}
			n.Process(tn.now)
			// Processing may queue replies that the next round delivers.
			if len(n.txq) > 0 || len(n.loop) > 0 {
				moved = true
			}
		}
		if !moved {
			return
		}
	}
	tn.t.Fatal("network did not settle")
}

// advance moves the clock forward by d, running timers on the way.
func (tn *testNet) advance(d time.Duration) {
	tn.t.Helper()
	end := tn.now.Add(d)
	for tn.now.Before(end) {
		tn.now = tn.now.Add(step)
		for _, n := range tn.nodes {
			n.Process(tn.now)
		}
		tn.flush()
	}
}

// leaderAndChild returns an attached pair.
func (tn *testNet) leaderAndChild(mutate func(*Config)) (leader, child *testNode) {
	tn.t.Helper()
	leader = tn.add(1, nil, mutate)
	tn.up(leader, nil)
	tn.advance(2 * time.Second)
	require.Equal(tn.t, thread.RoleLeader, leader.Role())

	child = tn.add(2, nil, mutate)
	tn.up(child, nil)
	tn.flush()
	require.Equal(tn.t, thread.RoleChild, child.Role())
	return leader, child
}

func linkLocalOf(n *testNode) netip.Addr {
	return n.linkLocal()
}
