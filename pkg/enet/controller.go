package enet

import (
	"context"
	"net/netip"
	"slices"

	"github.com/threadkit/threadkit-go/pkg/thread"
)

// StackConfigurator receives the interface addresses of the mesh.
type StackConfigurator interface {
	SetAddresses(addrs []netip.Prefix) error
}

// Controller observes the engine on behalf of an external stack.
type Controller struct {
	h thread.Handle
}

// WaitChanged blocks until the engine publishes a change.
func (c *Controller) WaitChanged(ctx context.Context) error {
	return c.h.WaitChanged(ctx)
}

// IPv6Addrs returns the current unicast addresses.
func (c *Controller) IPv6Addrs() []netip.Prefix {
	return slices.Collect(c.h.IPv6Addrs())
}

// LinkLocal returns the link-local address, if IPv6 is up.
func (c *Controller) LinkLocal() (netip.Prefix, bool) {
	return c.h.LinkLocal()
}

// Role returns the current device role.
func (c *Controller) Role() thread.Role {
	return c.h.Role()
}

// ApplyTo pushes the current addresses to stack.
func (c *Controller) ApplyTo(stack StackConfigurator) error {
	return stack.SetAddresses(c.IPv6Addrs())
}
