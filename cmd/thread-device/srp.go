package main

import (
	"context"
	"errors"
	"net/netip"

	"github.com/threadkit/threadkit-go/pkg/thread"
)

var helloReply = []byte("Hello")

// runSRP registers the example service and answers UDP datagrams on the
// echo port until ctx ends.
func (d *device) runSRP(ctx context.Context) error {
	h := d.h
	if err := h.SrpAutostart(ctx); err != nil {
		return err
	}
	if err := bringUp(ctx, h, d.dataset); err != nil {
		return err
	}

	// Drop whatever an earlier run left registered before reconfiguring.
	if err := h.SrpRemoveAll(ctx, false); err != nil {
		return err
	}
	if err := waitFor(ctx, h, h.SrpIsEmpty); err != nil {
		return err
	}

	conf := thread.SrpConf{HostName: d.cfg.Service.hostName(d.eui)}
	if d.cfg.Service.Lease > 0 {
		conf.LeaseSecs = uint32(d.cfg.Service.Lease.Seconds())
	}
	if err := h.SrpSetConf(ctx, conf); err != nil {
		return err
	}
	svc := d.cfg.Service.service(d.eui)
	id, err := h.SrpAddService(ctx, svc)
	if err != nil {
		return err
	}
	d.logger.Info("srp service added", "id", id, "service", svc.String())

	return d.echoUDP(ctx)
}

// echoUDP replies "Hello" to every datagram on the echo port, from the
// address the datagram was sent to.
func (d *device) echoUDP(ctx context.Context) error {
	local := netip.AddrPortFrom(netip.IPv6Unspecified(), d.cfg.Service.EchoPort)
	sock, err := d.h.BindUDP(ctx, local)
	if err != nil {
		return err
	}
	defer sock.Close()
	d.logger.Info("udp echo listening", "local", local)

	buf := make([]byte, 1280)
	for {
		n, dst, remote, err := sock.Recv(ctx, buf)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, thread.ErrStopped) {
				return nil
			}
			return err
		}
		d.logger.Info("udp received", "from", remote, "to", dst, "len", n)
		if err := sock.Send(ctx, helloReply, dst.Addr(), remote); err != nil {
			d.logger.Warn("udp reply failed", "to", remote, "error", err)
		}
	}
}
