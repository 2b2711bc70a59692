package thread

import (
	"net/netip"
	"slices"

	"github.com/threadkit/threadkit-go/pkg/dataset"
)

// snapshot is the immutable externally visible state published after each
// batch. Readers never touch engine state directly.
type snapshot struct {
	role      Role
	extAddr   [8]byte
	addrs     []netip.Prefix
	dataset   *dataset.Dataset
	srpConf   SrpConf
	srpState  SrpState
	srpEmpty  bool
	srpServer netip.AddrPort
	hasServer bool
	services  []SrpServiceInfo
}

// buildSnapshot captures the current state. Called by the engine owner.
func (e *Engine) buildSnapshot() *snapshot {
	s := &snapshot{
		role:     e.native.Role(),
		extAddr:  e.native.ExtAddress(),
		addrs:    slices.Clone(e.native.Addresses()),
		srpConf:  e.srpConf,
		srpState: e.native.SrpHostState(),
	}
	if ds, ok := e.native.ActiveDataset(); ok {
		s.dataset = ds.Clone()
	}
	s.srpServer, s.hasServer = e.native.SrpServerAddr()

	ids := make([]SrpServiceID, 0, len(e.services))
	for id := range e.services {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	for _, id := range ids {
		state, ok := e.native.SrpServiceState(id)
		if !ok {
			continue
		}
		svc, err := e.loadService(id)
		if err != nil {
			e.debugLog("srp service slot unreadable", "id", id, "error", err)
			continue
		}
		s.services = append(s.services, SrpServiceInfo{ID: id, Service: svc, State: state})
	}
	s.srpEmpty = len(s.services) == 0 && s.srpState.Idle()
	return s
}

func (e *Engine) snapshot() *snapshot {
	return e.snap.Load()
}
