package mesh

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"time"

	"github.com/threadkit/threadkit-go/pkg/backoff"
	"github.com/threadkit/threadkit-go/pkg/ip6"
	"github.com/threadkit/threadkit-go/pkg/persistence"
	"github.com/threadkit/threadkit-go/pkg/thread"
	"github.com/threadkit/threadkit-go/pkg/wire"
)

// srpClientPort is the source port of SRP updates.
const srpClientPort = 49153

// srpService is one service held by the client.
type srpService struct {
	svc   thread.SrpService
	state thread.SrpState

	// registered is set once the registrar acknowledged the service.
	registered bool

	// sent and sentRemove describe the service in the update in flight.
	sent       bool
	sentRemove bool
}

// srpClient is the SRP client state machine.
type srpClient struct {
	n *Node

	running bool
	conf    thread.SrpConf
	hasConf bool
	host    thread.SrpState
	key     []byte

	services map[thread.SrpServiceID]*srpService

	server    netip.AddrPort
	hasServer bool

	bo        *backoff.Backoff
	dirty     bool
	sendAt    time.Time
	refreshAt time.Time

	txID      uint32
	inflight  uint32
	timeoutAt time.Time

	removingHost bool
	sentRemove   bool
	eraseKey     bool
}

func newSrpClient(n *Node) *srpClient {
	return &srpClient{
		n:        n,
		services: make(map[thread.SrpServiceID]*srpService),
		bo:       backoff.NewWithConfig(n.cfg.SrpBackoff),
	}
}

// SrpAutostart starts the client. It registers with the registrar
// announced by the leader once one is known.
func (n *Node) SrpAutostart() error {
	c := n.srp
	c.running = true
	if c.needsUpdate() {
		c.schedule(n.cfg.Clock())
	}
	return nil
}

// SrpStop stops the client. Registrations stay with the registrar until
// their leases expire.
func (n *Node) SrpStop() error {
	c := n.srp
	c.running = false
	c.cancelInflight()
	c.sendAt = time.Time{}
	return nil
}

// SrpSetHost sets the host name and lease policy.
func (n *Node) SrpSetHost(conf thread.SrpConf) error {
	c := n.srp
	if !c.host.Idle() || len(c.services) > 0 {
		return fmt.Errorf("%w: host %s with %d services", thread.ErrInvalidState, c.host, len(c.services))
	}
	c.conf = conf
	c.hasConf = true
	return nil
}

// SrpHostState returns the host registration state.
func (n *Node) SrpHostState() thread.SrpState {
	return n.srp.host
}

// SrpAddService queues svc for registration.
func (n *Node) SrpAddService(id thread.SrpServiceID, svc *thread.SrpService) error {
	c := n.srp
	if !c.hasConf {
		return ErrNoHost
	}
	if c.removingHost {
		return ErrHostRemoving
	}
	if _, ok := c.services[id]; ok {
		return fmt.Errorf("%w: id %d", ErrServiceExists, id)
	}
	for _, s := range c.services {
		if s.svc.Name == svc.Name && s.svc.InstanceName == svc.InstanceName {
			return fmt.Errorf("%w: %s.%s", ErrServiceExists, svc.InstanceName, svc.Name)
		}
	}
	c.services[id] = &srpService{svc: svc.Clone(), state: thread.SrpRegistering}
	c.changed()
	return nil
}

// SrpRemoveService starts removing one service. A service the registrar
// never saw is dropped at once.
func (n *Node) SrpRemoveService(id thread.SrpServiceID) error {
	c := n.srp
	s, ok := c.services[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownService, id)
	}
	if !s.registered && !s.sent {
		delete(c.services, id)
		n.notify(thread.ChangedSrpServices)
		return nil
	}
	if s.state == thread.SrpRemoving {
		return nil
	}
	s.state = thread.SrpRemoving
	c.changed()
	return nil
}

// SrpServiceState reports the state of a service the client still holds.
func (n *Node) SrpServiceState(id thread.SrpServiceID) (thread.SrpState, bool) {
	s, ok := n.srp.services[id]
	if !ok {
		return thread.SrpUninitialized, false
	}
	return s.state, true
}

// SrpRemoveAll removes the host and every service. Without a reachable
// registrar, or with nothing registered, the client forgets them locally.
func (n *Node) SrpRemoveAll(eraseKey bool) error {
	c := n.srp
	registered := !c.host.Idle()
	for _, s := range c.services {
		registered = registered || s.registered || s.sent
	}

	if !registered || !c.running || !c.hasServer {
		c.cancelInflight()
		clear(c.services)
		if !c.host.Idle() {
			c.host = thread.SrpRemoved
		}
		c.removingHost = false
		c.dirty = false
		c.sendAt = time.Time{}
		c.refreshAt = time.Time{}
		if eraseKey {
			c.renewKey()
		}
		n.notify(thread.ChangedSrpHost | thread.ChangedSrpServices)
		return nil
	}

	c.cancelInflight()
	c.removingHost = true
	c.eraseKey = c.eraseKey || eraseKey
	c.host = thread.SrpRemoving
	for _, s := range c.services {
		s.state = thread.SrpRemoving
	}
	c.refreshAt = time.Time{}
	c.changed()
	n.notify(thread.ChangedSrpHost)
	return nil
}

// SrpServerAddr returns the registrar the client talks to.
func (n *Node) SrpServerAddr() (netip.AddrPort, bool) {
	return n.srp.server, n.srp.hasServer
}

// changed marks the registration out of date.
func (c *srpClient) changed() {
	c.dirty = true
	c.schedule(c.n.cfg.Clock())
	c.n.notify(thread.ChangedSrpServices)
}

func (c *srpClient) schedule(at time.Time) {
	if c.sendAt.IsZero() || at.Before(c.sendAt) {
		c.sendAt = at
	}
}

// needsUpdate reports whether the registrar must hear from the client.
func (c *srpClient) needsUpdate() bool {
	return c.dirty || c.removingHost || (c.hasConf && len(c.services) > 0 && c.host != thread.SrpRegistered)
}

func (c *srpClient) cancelInflight() {
	c.inflight = 0
	c.timeoutAt = time.Time{}
	for _, s := range c.services {
		s.sent, s.sentRemove = false, false
	}
}

func (c *srpClient) renewKey() {
	c.key = make([]byte, srpKeySize)
	c.n.random(c.key)
	key := slices.Clone(c.key)
	if err := c.n.updateSettings(func(s *persistence.Settings) { s.SrpKey = key }); err != nil {
		c.n.logger.Warn("failed to persist srp key", "error", err)
	}
}

// setServer switches to a registrar. Everything held is registered again.
func (c *srpClient) setServer(server netip.AddrPort) {
	if c.hasServer && c.server == server {
		return
	}
	c.server, c.hasServer = server, true
	c.n.logger.Info("srp registrar discovered", "server", server)
	c.cancelInflight()
	c.bo.Reset()
	if len(c.services) > 0 || !c.host.Idle() {
		c.dirty = true
	}
	if c.running && c.needsUpdate() {
		c.schedule(c.n.cfg.Clock())
	}
	c.n.notify(thread.ChangedSrpServer)
}

func (c *srpClient) serverLost() {
	if !c.hasServer {
		return
	}
	c.server, c.hasServer = netip.AddrPort{}, false
	c.cancelInflight()
	c.n.notify(thread.ChangedSrpServer)
}

// process sends due updates and handles response timeouts.
func (c *srpClient) process(now time.Time) time.Time {
	if c.inflight != 0 && !now.Before(c.timeoutAt) {
		c.n.logger.Debug("srp update timed out", "id", c.inflight, "server", c.server)
		c.cancelInflight()
		c.schedule(now.Add(c.bo.Next()))
	}
	if !c.refreshAt.IsZero() && !now.Before(c.refreshAt) {
		c.refreshAt = time.Time{}
		c.schedule(now)
	}
	if c.inflight == 0 && c.running && c.hasServer && c.hasConf && !c.sendAt.IsZero() && !now.Before(c.sendAt) {
		c.sendAt = time.Time{}
		c.send(now)
	}

	var next time.Time
	for _, t := range []time.Time{c.timeoutAt, c.refreshAt} {
		if !t.IsZero() && (next.IsZero() || t.Before(next)) {
			next = t
		}
	}
	if c.running && c.hasServer && !c.sendAt.IsZero() && (next.IsZero() || c.sendAt.Before(next)) {
		next = c.sendAt
	}
	return next
}

func (c *srpClient) lease() (lease, keyLease uint32) {
	lease, keyLease = c.conf.LeaseSecs, c.conf.KeyLeaseSecs
	if lease == 0 {
		lease = c.n.cfg.DefaultLease
	}
	if keyLease == 0 {
		keyLease = c.n.cfg.DefaultKeyLease
	}
	return lease, keyLease
}

// send transmits an update describing everything the client holds.
func (c *srpClient) send(now time.Time) {
	n := c.n
	lease, keyLease := c.lease()
	c.txID++
	if c.txID == 0 {
		c.txID = 1
	}
	u := &wire.SrpUpdate{
		ID:         c.txID,
		Host:       c.conf.HostName,
		Key:        c.key,
		Lease:      lease,
		KeyLease:   keyLease,
		RemoveHost: c.removingHost,
	}
	if !c.removingHost {
		for _, p := range n.addrs {
			if !p.Addr().IsLinkLocalUnicast() {
				a := p.Addr().As16()
				u.Addresses = append(u.Addresses, a[:])
			}
		}
	}
	ids := slices.Sorted(maps.Keys(c.services))
	for _, id := range ids {
		s := c.services[id]
		rec := serviceRecord(&s.svc)
		rec.Remove = s.state == thread.SrpRemoving
		u.Services = append(u.Services, rec)
	}

	payload, err := wire.EncodeSrpUpdate(u)
	if err != nil {
		n.logger.Warn("failed to encode srp update", "host", c.conf.HostName, "error", err)
		c.fail(now)
		return
	}
	src := netip.AddrPortFrom(n.selectSource(c.server.Addr()), srpClientPort)
	pkt, err := ip6.AppendUDP(nil, src, c.server, payload)
	if err == nil {
		err = n.sendPacket(pkt)
	}
	if err != nil {
		n.logger.Debug("srp update not sent", "server", c.server, "error", err)
		c.schedule(now.Add(c.bo.Next()))
		return
	}

	c.inflight = u.ID
	c.timeoutAt = now.Add(n.cfg.SrpResponseTimeout)
	c.sentRemove = c.removingHost
	c.dirty = false
	for _, id := range ids {
		s := c.services[id]
		s.sent = true
		s.sentRemove = s.state == thread.SrpRemoving
	}

	prev := c.host
	switch c.host {
	case thread.SrpUninitialized, thread.SrpRemoved, thread.SrpError:
		c.host = thread.SrpRegistering
	case thread.SrpRegistered:
		if len(ids) > 0 && c.hasPendingService() {
			c.host = thread.SrpUpdating
		}
	}
	if c.host != prev {
		n.notify(thread.ChangedSrpHost)
	}
	n.logger.Debug("srp update sent", "id", u.ID, "host", u.Host, "services", len(u.Services), "remove", u.RemoveHost)
}

func (c *srpClient) hasPendingService() bool {
	for _, s := range c.services {
		if s.state != thread.SrpRegistered {
			return true
		}
	}
	return false
}

// fail marks the host failed and schedules a retry.
func (c *srpClient) fail(now time.Time) {
	c.cancelInflight()
	if c.host != thread.SrpRemoving {
		c.host = thread.SrpError
	}
	c.schedule(now.Add(c.bo.Next()))
	c.n.notify(thread.ChangedSrpHost)
}

// handleResponse applies the registrar's answer to the update in flight.
func (c *srpClient) handleResponse(d ip6.Datagram, now time.Time) {
	n := c.n
	r, err := wire.DecodeSrpResponse(d.Payload)
	if err != nil {
		n.logger.Debug("dropping srp response", "from", d.Src, "error", err)
		return
	}
	if c.inflight == 0 || r.ID != c.inflight {
		return
	}
	c.inflight = 0
	c.timeoutAt = time.Time{}

	if r.Code != wire.SrpSuccess {
		n.logger.Warn("srp update rejected", "host", c.conf.HostName, "code", r.Code)
		for _, s := range c.services {
			if s.sent && s.state != thread.SrpRemoving {
				s.state = thread.SrpError
			}
			s.sent, s.sentRemove = false, false
		}
		c.fail(now)
		n.notify(thread.ChangedSrpServices)
		return
	}
	c.bo.Reset()

	if c.sentRemove {
		c.removingHost, c.sentRemove = false, false
		clear(c.services)
		c.host = thread.SrpRemoved
		c.refreshAt = time.Time{}
		if c.eraseKey {
			c.eraseKey = false
			c.renewKey()
		}
		n.logger.Info("srp host removed", "host", c.conf.HostName)
		n.notify(thread.ChangedSrpHost | thread.ChangedSrpServices)
		return
	}

	for id, s := range c.services {
		if !s.sent {
			continue
		}
		switch {
		case s.sentRemove:
			delete(c.services, id)
			continue
		case s.state != thread.SrpRemoving:
			s.state = thread.SrpRegistered
		}
		s.registered = true
		s.sent, s.sentRemove = false, false
	}
	if !c.removingHost {
		c.host = thread.SrpRegistered
	}

	lease := r.Lease
	if lease == 0 {
		lease, _ = c.lease()
	}
	c.refreshAt = now.Add(time.Duration(lease) * time.Second * 4 / 5)
	if c.dirty {
		c.schedule(now)
	}
	n.logger.Info("srp host registered", "host", c.conf.HostName, "services", len(c.services), "lease", lease)
	n.notify(thread.ChangedSrpHost | thread.ChangedSrpServices)
}

// serviceRecord converts a service to its wire form.
func serviceRecord(s *thread.SrpService) wire.ServiceRecord {
	rec := wire.ServiceRecord{
		Name:     s.Name,
		Instance: s.InstanceName,
		Subtypes: slices.Clone(s.SubtypeLabels),
		Port:     s.Port,
		Priority: s.Priority,
		Weight:   s.Weight,
		Lease:    s.LeaseSecs,
		KeyLease: s.KeyLeaseSecs,
	}
	for _, t := range s.TxtEntries {
		rec.Txt = append(rec.Txt, wire.TxtEntry{Key: t.Key, Value: slices.Clone(t.Value)})
	}
	return rec
}
