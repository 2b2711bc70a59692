package thread

import (
	"context"
	"fmt"
	"iter"
	"net/netip"

	"github.com/threadkit/threadkit-go/pkg/arena"
	"github.com/threadkit/threadkit-go/pkg/wire"
)

// SrpAutostart lets the SRP client register with the first registrar it
// discovers.
func (h Handle) SrpAutostart(ctx context.Context) error {
	return h.e.exec(ctx, func() error {
		return rejected("srp autostart", h.e.native.SrpAutostart())
	})
}

// SrpStop stops the SRP client. Registrations stay on the registrar until
// their leases expire.
func (h Handle) SrpStop(ctx context.Context) error {
	return h.e.exec(ctx, func() error {
		return rejected("srp stop", h.e.native.SrpStop())
	})
}

// SrpSetConf sets the host name and lease policy.
//
// The registrar treats a new host name as a new identity, so the client must
// be empty first: no services and no host registration. Otherwise SrpSetConf
// fails with ErrInvalidState. To reconfigure, call SrpRemoveAll and wait
// until SrpIsEmpty reports true.
func (h Handle) SrpSetConf(ctx context.Context, conf SrpConf) error {
	if conf.HostName == "" {
		return fmt.Errorf("srp set conf: %w: empty host name", ErrInvalidConfig)
	}
	e := h.e
	return e.exec(ctx, func() error {
		e.reconcileServices()
		if len(e.services) > 0 || !e.native.SrpHostState().Idle() {
			return fmt.Errorf("srp set conf: %w: %d services, host %s; remove all and wait until empty",
				ErrInvalidState, len(e.services), e.native.SrpHostState())
		}
		if err := e.native.SrpSetHost(conf); err != nil {
			return rejected("srp set conf", err)
		}
		e.srpConf = conf
		e.dirty = true
		return nil
	})
}

// SrpAddService packs svc into a free service slot and hands it to the
// client. It fails with ErrResourceExhausted when no slot is free or the
// record does not fit one, and with ErrInvalidState when no host name is set.
//
// The client registers nothing until the first service is added; a host
// name with zero services stays unregistered.
func (h Handle) SrpAddService(ctx context.Context, svc SrpService) (SrpServiceID, error) {
	e := h.e
	var id SrpServiceID
	err := e.exec(ctx, func() error {
		if e.srpConf.HostName == "" {
			return fmt.Errorf("%w: host name not set", ErrInvalidState)
		}
		e.reconcileServices()
		idx, slot, err := e.res.srp.Alloc()
		if err != nil {
			return fmt.Errorf("%w: %w", ErrResourceExhausted, err)
		}
		if err := packService(slot, &svc); err != nil {
			_ = e.res.srp.Free(idx)
			return err
		}
		stored, err := unpackService(slot)
		if err != nil {
			_ = e.res.srp.Free(idx)
			return err
		}
		if err := e.native.SrpAddService(SrpServiceID(idx), &stored); err != nil {
			_ = e.res.srp.Free(idx)
			return rejected("srp add service", err)
		}
		id = SrpServiceID(idx)
		e.services[id] = idx
		e.pending |= ChangedSrpServices
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("srp add service %s.%s: %w", svc.InstanceName, svc.Name, err)
	}
	return id, nil
}

// SrpRemoveService starts removing one service. Its slot is released once
// the client has dropped it.
func (h Handle) SrpRemoveService(ctx context.Context, id SrpServiceID) error {
	e := h.e
	return e.exec(ctx, func() error {
		if _, ok := e.services[id]; !ok {
			return fmt.Errorf("srp remove service: %w: unknown service %d", ErrInvalidState, id)
		}
		return rejected("srp remove service", e.native.SrpRemoveService(id))
	})
}

// SrpRemoveAll starts removing the host and all services, erasing the host
// key when eraseKey is set. It returns immediately; completion is observed
// through SrpIsEmpty and WaitChanged.
func (h Handle) SrpRemoveAll(ctx context.Context, eraseKey bool) error {
	return h.e.exec(ctx, func() error {
		return rejected("srp remove all", h.e.native.SrpRemoveAll(eraseKey))
	})
}

// SrpIsEmpty reports whether no services remain and the host is neither
// registered nor in the middle of a registration.
func (h Handle) SrpIsEmpty() bool {
	return h.e.snapshot().srpEmpty
}

// SrpState returns the host registration state.
func (h Handle) SrpState() SrpState {
	return h.e.snapshot().srpState
}

// SrpConf returns the host configuration.
func (h Handle) SrpConf() SrpConf {
	return h.e.snapshot().srpConf
}

// SrpServerAddr returns the registrar endpoint, if one has been discovered.
func (h Handle) SrpServerAddr() (netip.AddrPort, bool) {
	s := h.e.snapshot()
	return s.srpServer, s.hasServer
}

// SrpServices iterates the services of the last published state.
func (h Handle) SrpServices() iter.Seq[SrpServiceInfo] {
	services := h.e.snapshot().services
	return func(yield func(SrpServiceInfo) bool) {
		for _, s := range services {
			if !yield(SrpServiceInfo{ID: s.ID, Service: s.Service.Clone(), State: s.State}) {
				return
			}
		}
	}
}

// reconcileServices frees the slots of services the client has dropped.
func (e *Engine) reconcileServices() {
	for id, idx := range e.services {
		if _, ok := e.native.SrpServiceState(id); ok {
			continue
		}
		if err := e.res.srp.Free(idx); err != nil {
			e.debugLog("srp slot release failed", "id", id, "error", err)
		}
		delete(e.services, id)
		e.dirty = true
	}
}

func (e *Engine) loadService(id SrpServiceID) (SrpService, error) {
	slot, err := e.res.srp.Get(arena.Index(id))
	if err != nil {
		return SrpService{}, err
	}
	return unpackService(slot)
}

// packService encodes svc into slot. The slot is zero-filled beforehand.
func packService(slot []byte, svc *SrpService) error {
	rec := wire.ServiceRecord{
		Name:     svc.Name,
		Instance: svc.InstanceName,
		Subtypes: svc.SubtypeLabels,
		Port:     svc.Port,
		Priority: svc.Priority,
		Weight:   svc.Weight,
		Lease:    svc.LeaseSecs,
		KeyLease: svc.KeyLeaseSecs,
	}
	for _, t := range svc.TxtEntries {
		rec.Txt = append(rec.Txt, wire.TxtEntry{Key: t.Key, Value: t.Value})
	}
	data, err := wire.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%w: encode record: %w", ErrInvalidConfig, err)
	}
	if len(data) > len(slot) {
		return fmt.Errorf("%w: record needs %d bytes, slot has %d", ErrResourceExhausted, len(data), len(slot))
	}
	copy(slot, data)
	return nil
}

func unpackService(slot []byte) (SrpService, error) {
	var rec wire.ServiceRecord
	if err := wire.UnmarshalFirst(slot, &rec); err != nil {
		return SrpService{}, fmt.Errorf("decode service slot: %w", err)
	}
	svc := SrpService{
		Name:          rec.Name,
		InstanceName:  rec.Instance,
		SubtypeLabels: rec.Subtypes,
		Port:          rec.Port,
		Priority:      rec.Priority,
		Weight:        rec.Weight,
		LeaseSecs:     rec.Lease,
		KeyLeaseSecs:  rec.KeyLease,
	}
	for _, t := range rec.Txt {
		svc.TxtEntries = append(svc.TxtEntries, TxtEntry{Key: t.Key, Value: t.Value})
	}
	return svc, nil
}
