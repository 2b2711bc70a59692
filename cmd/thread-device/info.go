package main

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"slices"

	"github.com/threadkit/threadkit-go/pkg/thread"
)

// infoState is what the info task last reported.
type infoState struct {
	role      thread.Role
	addrs     []netip.Prefix
	srpState  thread.SrpState
	server    netip.AddrPort
	hasServer bool
}

func readInfo(h thread.Handle) infoState {
	s := infoState{
		role:     h.Role(),
		addrs:    slices.Collect(h.IPv6Addrs()),
		srpState: h.SrpState(),
	}
	s.server, s.hasServer = h.SrpServerAddr()
	return s
}

// runInfo logs what changed on every engine notification until ctx ends.
func (d *device) runInfo(ctx context.Context) {
	h := d.h.Clone()
	var last infoState
	for {
		cur := readInfo(h)
		d.logChanges(last, cur)
		last = cur
		if err := h.WaitChanged(ctx); err != nil {
			return
		}
	}
}

func (d *device) logChanges(prev, cur infoState) {
	if cur.role != prev.role {
		d.logger.Info("role", "from", prev.role, "to", cur.role)
	}
	for _, a := range cur.addrs {
		if !slices.Contains(prev.addrs, a) {
			d.logger.Info("address added", "addr", a)
		}
	}
	for _, a := range prev.addrs {
		if !slices.Contains(cur.addrs, a) {
			d.logger.Info("address removed", "addr", a)
		}
	}
	if cur.hasServer != prev.hasServer || cur.server != prev.server {
		if cur.hasServer {
			d.logger.Info("srp server", "addr", cur.server)
		} else {
			d.logger.Info("srp server lost")
		}
	}
	if cur.srpState != prev.srpState {
		d.logger.Info("srp state", "from", prev.srpState, "to", cur.srpState, "conf", d.h.SrpConf().String())
		for info := range d.h.SrpServices() {
			d.logger.Info("srp service", "slot", info.ID, "state", info.State, "service", info.Service.String())
		}
	}
}

// printStatus writes a snapshot of the engine for the interactive shell.
func printStatus(w io.Writer, h thread.Handle) {
	s := readInfo(h)
	fmt.Fprintf(w, "Role:       %s\n", s.role)
	fmt.Fprintf(w, "Ext addr:   %x\n", h.ExtAddress())
	fmt.Fprintf(w, "EUI-64:     %s\n", h.Eui64())
	if ds, ok := h.ActiveDataset(); ok && ds.NetworkName != nil {
		fmt.Fprintf(w, "Network:    %s\n", *ds.NetworkName)
	}
	fmt.Fprintln(w, "Addresses:")
	for _, a := range s.addrs {
		fmt.Fprintf(w, "  %s\n", a)
	}
	if s.hasServer {
		fmt.Fprintf(w, "SRP server: %s\n", s.server)
	} else {
		fmt.Fprintln(w, "SRP server: none")
	}
	fmt.Fprintf(w, "SRP state:  %s (%s)\n", s.srpState, h.SrpConf())
	for info := range h.SrpServices() {
		fmt.Fprintf(w, "  [%d] %-12s %s\n", info.ID, info.State, info.Service)
	}
}
