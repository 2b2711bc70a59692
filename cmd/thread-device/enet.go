package main

import (
	"context"
	"log/slog"
	"net/netip"
	"sync"

	"github.com/threadkit/threadkit-go/pkg/enet"
	"github.com/threadkit/threadkit-go/pkg/radio"
)

// addressLog is the external stack of the enet example: it only reports
// the addresses it is given.
type addressLog struct {
	logger *slog.Logger

	mu    sync.Mutex
	addrs []netip.Prefix
}

func (a *addressLog) SetAddresses(addrs []netip.Prefix) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.addrs = addrs
	a.logger.Info("stack addresses configured", "addrs", addrs)
	return nil
}

// runEnet routes IPv6 through the packet driver. The engine talks to a
// proxy radio; the physical radio is driven from a locked OS thread.
// It returns when ctx ends or the engine stops.
func (d *device) runEnet(ctx context.Context, phy radio.Radio) error {
	state, err := enet.NewState(enet.DefaultStateConfig())
	if err != nil {
		return err
	}
	ctrl, runner, drv := enet.New(d.engine, state)

	proxy, phyRunner := radio.NewProxy(phy.Caps(), &radio.ProxyResources{}, radio.DefaultProxyConfig())

	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := phyRunner.Run(ctx, phy); err != nil && !stopped(err) {
			d.logger.Error("phy runner stopped", "error", err)
		}
		cancel()
	}()
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx, proxy); err != nil && !stopped(err) {
			d.logger.Error("engine stopped", "error", err)
		}
		cancel()
	}()
	defer wg.Wait()
	defer cancel()

	if err := d.enetEcho(ctx, ctrl, drv); err != nil && !stopped(err) {
		return err
	}
	return nil
}

func (d *device) enetEcho(ctx context.Context, ctrl *enet.Controller, drv *enet.Driver) error {
	if err := bringUp(ctx, d.h, d.dataset); err != nil {
		return err
	}

	// The link-local address exists as soon as IPv6 is up.
	if err := waitFor(ctx, d.h, func() bool { _, ok := ctrl.LinkLocal(); return ok }); err != nil {
		return err
	}
	ll, _ := ctrl.LinkLocal()
	d.logger.Info("link-local address", "addr", ll, "hw", drv.HardwareAddr())

	stack := &addressLog{logger: d.logger}
	if err := ctrl.ApplyTo(stack); err != nil {
		return err
	}
	go d.followAddresses(ctx, ctrl, stack)

	ep := enet.NewUDPEndpoint(drv, netip.AddrPortFrom(netip.IPv6Unspecified(), d.cfg.Service.EchoPort))
	d.logger.Info("udp echo listening", "local", ep.LocalAddr(), "mtu", drv.LinkConfig().MTU)
	buf := make([]byte, enet.MTU)
	for {
		n, dst, remote, err := ep.ReadFrom(ctx, buf)
		if err != nil {
			return err
		}
		d.logger.Info("udp received", "from", remote, "to", dst, "len", n)
		if err := ep.WriteTo(ctx, helloReply, dst.Addr(), remote); err != nil {
			d.logger.Warn("udp reply failed", "to", remote, "error", err)
		}
	}
}

// followAddresses pushes every address change to the external stack.
func (d *device) followAddresses(ctx context.Context, ctrl *enet.Controller, stack enet.StackConfigurator) {
	for ctrl.WaitChanged(ctx) == nil {
		if err := ctrl.ApplyTo(stack); err != nil {
			d.logger.Warn("failed to configure stack", "error", err)
		}
	}
}
