package mesh

import (
	"bytes"
	"context"
	"maps"
	"net/netip"
	"slices"
	"time"

	"github.com/threadkit/threadkit-go/pkg/discovery"
	"github.com/threadkit/threadkit-go/pkg/ip6"
	"github.com/threadkit/threadkit-go/pkg/persistence"
	"github.com/threadkit/threadkit-go/pkg/wire"
)

// Lease bounds granted by the registrar, in seconds.
const (
	MinLease    = 30
	MaxLease    = 97200
	MinKeyLease = 30
	MaxKeyLease = 680400
)

// publishTimeout bounds one advertising proxy update.
const publishTimeout = 2 * time.Second

// hostRegistration is one host held by the registrar.
type hostRegistration struct {
	key       []byte
	addresses []netip.Addr
	services  map[string]wire.ServiceRecord
	expires   time.Time
}

// registrar accepts SRP updates while the node leads a partition.
type registrar struct {
	n      *Node
	active bool
	hosts  map[string]*hostRegistration
	proxy  *discovery.Proxy
}

func newRegistrar(n *Node) *registrar {
	return &registrar{n: n, hosts: make(map[string]*hostRegistration)}
}

// start restores unexpired registrations and begins answering updates.
func (r *registrar) start(now time.Time) {
	if r.active {
		return
	}
	r.active = true
	if r.proxy == nil && r.n.cfg.Advertiser != nil {
		r.proxy = discovery.NewProxy(r.n.cfg.Advertiser, r.n.logger.With("component", "srp-proxy"))
	}
	for _, saved := range r.n.saved.Registrations {
		if !now.Before(saved.ExpiresAt) {
			continue
		}
		reg := &hostRegistration{
			key:      slices.Clone(saved.Key),
			services: make(map[string]wire.ServiceRecord),
			expires:  saved.ExpiresAt,
		}
		for _, a := range saved.Addresses {
			if addr, err := netip.ParseAddr(a); err == nil {
				reg.addresses = append(reg.addresses, addr)
			}
		}
		for _, s := range saved.Services {
			rec := wire.ServiceRecord{Name: s.Name, Instance: s.Instance, Port: s.Port, Subtypes: slices.Clone(s.Subtypes)}
			for _, k := range slices.Sorted(maps.Keys(s.Txt)) {
				rec.Txt = append(rec.Txt, wire.TxtEntry{Key: k, Value: []byte(s.Txt[k])})
			}
			reg.services[serviceKey(&rec)] = rec
		}
		r.hosts[saved.Host] = reg
		r.publish(saved.Host, reg)
	}
	r.n.logger.Info("srp registrar started", "hosts", len(r.hosts))
}

// stop withdraws all advertisements. Registrations stay persisted for the
// next time the node leads.
func (r *registrar) stop() {
	if !r.active {
		return
	}
	r.active = false
	for host := range r.hosts {
		if r.proxy != nil {
			r.proxy.Withdraw(host)
		}
	}
	clear(r.hosts)
}

// process expires hosts whose lease ran out and returns the next expiry.
func (r *registrar) process(now time.Time) time.Time {
	if !r.active {
		return time.Time{}
	}
	var next time.Time
	expired := false
	for host, reg := range r.hosts {
		if !now.Before(reg.expires) {
			r.n.logger.Info("srp registration expired", "host", host)
			delete(r.hosts, host)
			if r.proxy != nil {
				r.proxy.Withdraw(host)
			}
			expired = true
			continue
		}
		if next.IsZero() || reg.expires.Before(next) {
			next = reg.expires
		}
	}
	if expired {
		r.persist()
	}
	return next
}

// handle answers one update.
func (r *registrar) handle(d ip6.Datagram, now time.Time) {
	n := r.n
	u, err := wire.DecodeSrpUpdate(d.Payload)
	if err != nil {
		n.logger.Debug("dropping srp update", "from", d.Src, "error", err)
		return
	}
	resp := r.apply(u, now)
	payload, err := wire.EncodeSrpResponse(resp)
	if err != nil {
		n.logger.Warn("failed to encode srp response", "error", err)
		return
	}
	pkt, err := ip6.AppendUDP(nil, d.Dst, d.Src, payload)
	if err == nil {
		err = n.sendPacket(pkt)
	}
	if err != nil {
		n.logger.Debug("srp response not sent", "to", d.Src, "error", err)
	}
}

// apply updates the registration table and returns the answer.
func (r *registrar) apply(u *wire.SrpUpdate, now time.Time) *wire.SrpResponse {
	resp := &wire.SrpResponse{ID: u.ID}
	reg, exists := r.hosts[u.Host]
	if exists && !bytes.Equal(reg.key, u.Key) {
		r.n.logger.Warn("srp host name owned by another key", "host", u.Host)
		resp.Code = wire.SrpNameExists
		return resp
	}

	if u.RemoveHost || u.Lease == 0 {
		if exists {
			delete(r.hosts, u.Host)
			if r.proxy != nil {
				r.proxy.Withdraw(u.Host)
			}
			r.persist()
			r.n.logger.Info("srp host removed", "host", u.Host)
		}
		resp.Code = wire.SrpSuccess
		return resp
	}

	if !exists {
		reg = &hostRegistration{key: slices.Clone(u.Key), services: make(map[string]wire.ServiceRecord)}
		r.hosts[u.Host] = reg
	}
	reg.addresses = reg.addresses[:0]
	for _, b := range u.Addresses {
		if addr, ok := netip.AddrFromSlice(b); ok {
			reg.addresses = append(reg.addresses, addr)
		}
	}
	for _, rec := range u.Services {
		key := serviceKey(&rec)
		if rec.Remove {
			delete(reg.services, key)
			continue
		}
		reg.services[key] = rec
	}

	resp.Lease = clamp(u.Lease, MinLease, MaxLease)
	resp.KeyLease = clamp(u.KeyLease, MinKeyLease, MaxKeyLease)
	reg.expires = now.Add(time.Duration(resp.Lease) * time.Second)
	resp.Code = wire.SrpSuccess

	r.publish(u.Host, reg)
	r.persist()
	r.n.logger.Info("srp host registered", "host", u.Host, "services", len(reg.services), "lease", resp.Lease)
	return resp
}

// publish hands a host's services to the advertising proxy.
func (r *registrar) publish(host string, reg *hostRegistration) {
	if r.proxy == nil {
		return
	}
	var services []*discovery.Service
	for _, key := range slices.Sorted(maps.Keys(reg.services)) {
		rec := reg.services[key]
		svc := &discovery.Service{
			Instance:  rec.Instance,
			Type:      rec.Name,
			Subtypes:  slices.Clone(rec.Subtypes),
			Host:      host,
			Port:      rec.Port,
			Priority:  rec.Priority,
			Weight:    rec.Weight,
			Txt:       make(discovery.TXTRecordMap, len(rec.Txt)),
			Addresses: slices.Clone(reg.addresses),
		}
		for _, t := range rec.Txt {
			svc.Txt[t.Key] = string(t.Value)
		}
		services = append(services, svc)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := r.proxy.Publish(ctx, host, services); err != nil {
		r.n.logger.Warn("advertising proxy update failed", "host", host, "error", err)
	}
}

// persist stores the registration table.
func (r *registrar) persist() {
	var regs []persistence.Registration
	for _, host := range slices.Sorted(maps.Keys(r.hosts)) {
		reg := r.hosts[host]
		p := persistence.Registration{
			Host:      host,
			Key:       slices.Clone(reg.key),
			ExpiresAt: reg.expires,
		}
		for _, a := range reg.addresses {
			p.Addresses = append(p.Addresses, a.String())
		}
		for _, key := range slices.Sorted(maps.Keys(reg.services)) {
			rec := reg.services[key]
			s := persistence.ServiceRegistration{
				Name:     rec.Name,
				Instance: rec.Instance,
				Port:     rec.Port,
				Subtypes: slices.Clone(rec.Subtypes),
			}
			if len(rec.Txt) > 0 {
				s.Txt = make(map[string]string, len(rec.Txt))
				for _, t := range rec.Txt {
					s.Txt[t.Key] = string(t.Value)
				}
			}
			p.Services = append(p.Services, s)
		}
		regs = append(regs, p)
	}
	if err := r.n.updateSettings(func(s *persistence.Settings) { s.Registrations = regs }); err != nil {
		r.n.logger.Warn("failed to persist srp registrations", "error", err)
	}
}

// Registrations returns the host names the registrar holds.
func (n *Node) Registrations() []string {
	return slices.Sorted(maps.Keys(n.reg.hosts))
}

func serviceKey(rec *wire.ServiceRecord) string {
	return rec.Instance + "." + rec.Name
}

func clamp(v, lo, hi uint32) uint32 {
	return min(max(v, lo), hi)
}
