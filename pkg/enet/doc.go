// Package enet adapts a thread.Engine to an external IP stack.
//
// New splits an engine into three parts:
//
//	ctrl, runner, drv := enet.New(engine, enet.NewState(enet.DefaultStateConfig()))
//	go runner.Run(ctx, radio)       // engine loop plus packet pumps
//	n, err := drv.ReadPacket(ctx, buf)   // engine -> stack
//	err = drv.WritePacket(ctx, pkt)      // stack -> engine
//
// The Driver is a link-layer device: it moves whole IPv6 packets of at most
// MTU bytes, validated with golang.org/x/net/ipv6. It has one reader and one
// writer; the queues behind it are single-producer single-consumer.
//
// The Controller reports address changes but never pushes them on its own.
// Callers wait for a change and apply it explicitly:
//
//	for {
//	    if err := ctrl.WaitChanged(ctx); err != nil { return err }
//	    ctrl.ApplyTo(stack)
//	}
//
// UDPEndpoint is a minimal userspace IPv6/UDP endpoint on top of a Driver,
// for stacks that only need to exchange datagrams.
package enet
