package mesh

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/netip"
	"slices"
	"time"

	"github.com/threadkit/threadkit-go/pkg/dataset"
	"github.com/threadkit/threadkit-go/pkg/ip6"
	"github.com/threadkit/threadkit-go/pkg/log"
	"github.com/threadkit/threadkit-go/pkg/mac"
	"github.com/threadkit/threadkit-go/pkg/persistence"
	"github.com/threadkit/threadkit-go/pkg/radio"
	"github.com/threadkit/threadkit-go/pkg/thread"
	"github.com/threadkit/threadkit-go/pkg/wire"
)

const (
	// invalidRLOC16 is the short address of a detached node.
	invalidRLOC16 uint16 = 0xfffe

	// frameCounterBlock is how many frame counters are reserved per
	// settings write.
	frameCounterBlock = 1000

	// maxNeighbors bounds the address-to-link cache.
	maxNeighbors = 64

	// defaultChannel is used before a dataset provides one.
	defaultChannel = dataset.MinChannel

	// srpKeySize is the size of the SRP host key.
	srpKeySize = 32
)

// Node is a software protocol engine. It implements thread.Native and, like
// every Native, must only be called by its engine owner.
type Node struct {
	cfg    Config
	host   thread.Host
	logger *slog.Logger
	rand   io.Reader
	store  *persistence.SettingsStore
	saved  *persistence.Settings

	plog       log.Logger
	capture    bool
	instanceID string

	ext          [8]byte
	mliid        [8]byte
	counter      uint32
	counterLimit uint32

	ds        dataset.Dataset
	hasDS     bool
	cipher    *frameCipher
	meshLocal netip.Prefix

	ipv6Up   bool
	threadUp bool
	ipv6Rx   bool
	addrs    []netip.Prefix

	mle mleState

	seq        uint8
	tag        uint16
	txq        [][]byte
	loop       [][]byte
	reasm      *reassembler
	rxCounters map[[8]byte]uint32
	neighbors  map[netip.Addr]mac.Address
	txFailures uint64

	sockets map[uint32]netip.AddrPort

	srp *srpClient
	reg *registrar
}

// New creates a node. It becomes usable once the engine calls Init.
func New(cfg Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	n := &Node{
		cfg:        cfg,
		reasm:      newReassembler(cfg.ReassemblyTimeout),
		rxCounters: make(map[[8]byte]uint32),
		neighbors:  make(map[netip.Addr]mac.Address),
		sockets:    make(map[uint32]netip.AddrPort),
		saved:      &persistence.Settings{},
		logger:     slog.New(slog.DiscardHandler),
		plog:       log.NoopLogger{},
	}
	n.mle.role = thread.RoleDisabled
	n.mle.rloc16 = invalidRLOC16
	n.srp = newSrpClient(n)
	n.reg = newRegistrar(n)
	return n, nil
}

// Init loads the node's settings and reserves a block of frame counters.
func (n *Node) Init(cfg thread.NativeConfig, host thread.Host) error {
	n.host = host
	if cfg.Logger != nil {
		n.logger = cfg.Logger
	}
	n.rand = cfg.Entropy
	if cfg.ProtocolLogger != nil {
		n.plog = cfg.ProtocolLogger
	}
	n.capture = log.Enabled(n.plog)
	n.instanceID = cfg.InstanceID
	n.store = cfg.Settings
	n.ext = cfg.EUI64

	s := &persistence.Settings{}
	if n.store != nil {
		loaded, err := n.store.Load()
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		if loaded != nil {
			s = loaded
		}
	}
	n.saved = s

	if s.ExtAddress != "" {
		if err := decodeHex8(s.ExtAddress, n.ext[:]); err != nil {
			return fmt.Errorf("settings ext address: %w", err)
		}
	}
	if s.MeshLocalIID != "" {
		if err := decodeHex8(s.MeshLocalIID, n.mliid[:]); err != nil {
			return fmt.Errorf("settings mesh-local iid: %w", err)
		}
	} else {
		n.random(n.mliid[:])
	}
	if len(s.SrpKey) > 0 {
		n.srp.key = slices.Clone(s.SrpKey)
	} else {
		n.srp.key = make([]byte, srpKeySize)
		n.random(n.srp.key)
	}
	if s.Dataset != "" {
		ds, err := dataset.UnmarshalHex(s.Dataset)
		if err != nil {
			return fmt.Errorf("settings dataset: %w", err)
		}
		if err := n.applyDataset(*ds); err != nil {
			return fmt.Errorf("settings dataset: %w", err)
		}
	}

	n.counter = s.FrameCounter
	n.counterLimit = n.counter + frameCounterBlock
	ext, iid, key, limit := n.ext, n.mliid, slices.Clone(n.srp.key), n.counterLimit
	return n.updateSettings(func(s *persistence.Settings) {
		s.ExtAddress = hex.EncodeToString(ext[:])
		s.MeshLocalIID = hex.EncodeToString(iid[:])
		s.SrpKey = key
		s.FrameCounter = limit
	})
}

// SetActiveDataset overlays ds onto the active dataset. A change of network
// parameters while Thread runs restarts attachment.
func (n *Node) SetActiveDataset(ds *dataset.Dataset) error {
	merged := n.ds.Merge(ds)
	if err := merged.Validate(); err != nil {
		return err
	}
	before := n.ds.Clone()
	if err := n.applyDataset(merged); err != nil {
		return err
	}

	encoded, err := n.ds.MarshalHex()
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	if err := n.updateSettings(func(s *persistence.Settings) { s.Dataset = encoded }); err != nil {
		n.logger.Warn("failed to persist dataset", "error", err)
	}

	if n.threadUp && networkChanged(before, &n.ds) {
		n.logger.Info("network parameters changed, re-attaching")
		n.startAttach(n.cfg.Clock())
	}
	n.notify(thread.ChangedDataset | thread.ChangedRadio)
	n.refreshAddrs()
	return nil
}

func (n *Node) applyDataset(ds dataset.Dataset) error {
	var c *frameCipher
	if ds.NetworkKey != nil && ds.ExtendedPanID != nil {
		var err error
		if c, err = newFrameCipher(*ds.NetworkKey, *ds.ExtendedPanID); err != nil {
			return err
		}
	}
	n.ds = ds
	n.hasDS = true
	n.cipher = c
	n.meshLocal = netip.Prefix{}
	if ds.ExtendedPanID != nil {
		n.meshLocal = ip6.MeshLocalPrefix(*ds.ExtendedPanID)
	}
	return nil
}

func networkChanged(a, b *dataset.Dataset) bool {
	return !eqPtr(a.NetworkKey, b.NetworkKey) || !eqPtr(a.ExtendedPanID, b.ExtendedPanID) ||
		!eqPtr(a.PanID, b.PanID) || !eqPtr(a.Channel, b.Channel)
}

func eqPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// ActiveDataset returns a copy of the active dataset.
func (n *Node) ActiveDataset() (dataset.Dataset, bool) {
	if !n.hasDS {
		return dataset.Dataset{}, false
	}
	return *n.ds.Clone(), true
}

// EnableIPv6 brings the interface up or down. It cannot go down while
// Thread is enabled.
func (n *Node) EnableIPv6(enable bool) error {
	if enable == n.ipv6Up {
		return nil
	}
	if !enable && n.threadUp {
		return fmt.Errorf("%w: disable thread first", ErrThreadEnabled)
	}
	n.ipv6Up = enable
	if !enable {
		n.loop = nil
	}
	n.refreshAddrs()
	return nil
}

// EnableThread starts or stops the mesh. Starting needs the interface up
// and a dataset with a network key and extended PAN ID.
func (n *Node) EnableThread(enable bool) error {
	if enable == n.threadUp {
		return nil
	}
	now := n.cfg.Clock()
	if !enable {
		n.threadUp = false
		n.stopMesh()
		n.setRole(thread.RoleDisabled)
		n.notify(thread.ChangedRadio)
		n.refreshAddrs()
		return nil
	}

	if !n.ipv6Up {
		return fmt.Errorf("%w: enable ipv6 first", ErrDown)
	}
	if err := n.ds.Resolved(); err != nil {
		return err
	}
	if n.cipher == nil {
		return fmt.Errorf("%w: no frame key", dataset.ErrIncomplete)
	}
	n.threadUp = true
	n.notify(thread.ChangedRadio)
	n.refreshAddrs()
	n.startAttach(now)
	return nil
}

// stopMesh drops all link and partition state.
func (n *Node) stopMesh() {
	n.reg.stop()
	n.srp.serverLost()
	n.mle = mleState{role: n.mle.role, rloc16: invalidRLOC16, seq: n.mle.seq}
	n.txq = nil
	n.reasm.reset()
	clear(n.rxCounters)
	clear(n.neighbors)
}

// Role returns the current role.
func (n *Node) Role() thread.Role {
	return n.mle.role
}

func (n *Node) setRole(role thread.Role) {
	if role == n.mle.role {
		return
	}
	n.logger.Info("role changed", "from", n.mle.role, "to", role, "rloc16", fmt.Sprintf("0x%04x", n.mle.rloc16))
	prev := n.mle.role
	n.mle.role = role
	n.captureState(log.StateEntityRole, n.partitionName(), prev.String(), role.String())
	n.notify(thread.ChangedRole | thread.ChangedRadio)
	n.refreshAddrs()
}

// ExtAddress returns the extended MAC address.
func (n *Node) ExtAddress() [8]byte {
	return n.ext
}

// Addresses returns the current unicast addresses.
func (n *Node) Addresses() []netip.Prefix {
	return n.addrs
}

func (n *Node) linkLocal() netip.Addr {
	return ip6.WithIID(ip6.LinkLocalPrefix, ip6.IIDFromExt(n.ext))
}

func (n *Node) meshLocalEID() netip.Addr {
	return ip6.WithIID(n.meshLocal, n.mliid)
}

func (n *Node) rloc() netip.Addr {
	return ip6.WithIID(n.meshLocal, ip6.RLOCIID(n.mle.rloc16))
}

// computeAddrs lists the addresses the current state assigns.
func (n *Node) computeAddrs() []netip.Prefix {
	if !n.ipv6Up {
		return nil
	}
	addrs := []netip.Prefix{netip.PrefixFrom(n.linkLocal(), 64)}
	if n.threadUp && n.meshLocal.IsValid() {
		addrs = append(addrs, netip.PrefixFrom(n.meshLocalEID(), 64))
		if n.mle.role.Attached() {
			addrs = append(addrs, netip.PrefixFrom(n.rloc(), 64))
		}
	}
	return addrs
}

func (n *Node) refreshAddrs() {
	addrs := n.computeAddrs()
	if slices.Equal(addrs, n.addrs) {
		return
	}
	n.addrs = addrs
	n.notify(thread.ChangedIPv6Addrs)
}

func (n *Node) isOwn(a netip.Addr) bool {
	for _, p := range n.addrs {
		if p.Addr() == a {
			return true
		}
	}
	return false
}

// RadioConfig returns the configuration the radio runs with.
func (n *Node) RadioConfig() radio.Config {
	cfg := radio.Config{
		Channel:      defaultChannel,
		PanID:        mac.BroadcastShort,
		ShortAddress: n.shortAddress(),
		ExtAddress:   n.ext,
		TxPower:      n.cfg.TxPower,
		RxWhenIdle:   n.threadUp,
	}
	if n.ds.Channel != nil {
		cfg.Channel = *n.ds.Channel
	}
	if n.ds.PanID != nil {
		cfg.PanID = *n.ds.PanID
	}
	return cfg
}

func (n *Node) shortAddress() uint16 {
	if n.mle.role.Attached() {
		return n.mle.rloc16
	}
	return invalidRLOC16
}

func (n *Node) panID() uint16 {
	if n.ds.PanID != nil {
		return *n.ds.PanID
	}
	return mac.BroadcastShort
}

// Process delivers looped-back packets and runs expired timers. It returns
// the earliest armed deadline.
func (n *Node) Process(now time.Time) time.Time {
	// Bounded so that two sockets echoing to each other cannot starve the
	// engine loop.
	for i := 0; i < 16 && len(n.loop) > 0; i++ {
		pkt := n.loop[0]
		n.loop = n.loop[1:]
		n.handlePacket(pkt, mac.ExtAddress(n.ext))
	}

	var next time.Time
	arm := func(t time.Time) {
		if !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	if len(n.loop) > 0 {
		arm(now)
	}

	t, dropped := n.reasm.expire(now)
	if dropped > 0 {
		n.logger.Debug("reassembly timed out", "packets", dropped)
	}
	arm(t)
	if n.threadUp {
		arm(n.processMLE(now))
	}
	arm(n.srp.process(now))
	arm(n.reg.process(now))
	return next
}

func (n *Node) notify(c thread.Changes) {
	if n.host != nil {
		n.host.Notify(c)
	}
}

// random fills b from the configured entropy source.
func (n *Node) random(b []byte) {
	r := n.rand
	if r == nil {
		r = rand.Reader
	}
	if _, err := io.ReadFull(r, b); err != nil {
		n.logger.Warn("entropy source failed, using crypto/rand", "error", err)
		_, _ = rand.Read(b)
	}
}

func (n *Node) randomUint32() uint32 {
	var b [4]byte
	n.random(b[:])
	return binary.BigEndian.Uint32(b[:])
}

// nextFrameCounter returns the next outgoing frame counter and reserves a
// new block once the persisted one is used up.
func (n *Node) nextFrameCounter() uint32 {
	c := n.counter
	n.counter++
	if n.counter >= n.counterLimit {
		n.counterLimit = n.counter + frameCounterBlock
		limit := n.counterLimit
		if err := n.updateSettings(func(s *persistence.Settings) { s.FrameCounter = limit }); err != nil {
			n.logger.Warn("failed to persist frame counter", "error", err)
		}
	}
	return c
}

// updateSettings applies fn to the persisted settings, or to the in-memory
// copy when no store is configured.
func (n *Node) updateSettings(fn func(*persistence.Settings)) error {
	fn(n.saved)
	if n.store == nil {
		return nil
	}
	return n.store.Update(fn)
}

func decodeHex8(s string, dst []byte) error {
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("want %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

// Compile-time interface satisfaction check.
var _ thread.Native = (*Node)(nil)

// reservedPort reports whether the node uses port itself.
func reservedPort(port uint16) bool {
	return port == wire.MLEPort || port == wire.SrpPort || port == srpClientPort
}
