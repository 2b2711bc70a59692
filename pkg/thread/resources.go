package thread

import (
	"fmt"
	"sync/atomic"

	"github.com/threadkit/threadkit-go/pkg/arena"
)

// ResourcesConfig sizes the fixed pools an engine is built with.
type ResourcesConfig struct {
	// UDPMaxSockets is the number of UDP sockets that can be open at once.
	UDPMaxSockets int

	// UDPSocketBufSize is the per-socket receive buffer size, which also
	// bounds the payload of one send.
	UDPSocketBufSize int

	// SrpMaxServices is the number of SRP services that can be added.
	SrpMaxServices int

	// SrpServiceBufSize is the size of the slot one packed service record
	// must fit in.
	SrpServiceBufSize int
}

// DefaultResourcesConfig returns pools for two sockets of 1280 bytes and two
// SRP services of 300 bytes.
func DefaultResourcesConfig() ResourcesConfig {
	return ResourcesConfig{
		UDPMaxSockets:     2,
		UDPSocketBufSize:  1280,
		SrpMaxServices:    2,
		SrpServiceBufSize: 300,
	}
}

// Validate checks that every pool has a usable size.
func (c *ResourcesConfig) Validate() error {
	if c.UDPMaxSockets < 0 || c.SrpMaxServices < 0 {
		return fmt.Errorf("%w: negative pool size", ErrInvalidConfig)
	}
	if c.UDPMaxSockets > 0 && c.UDPSocketBufSize <= 0 {
		return fmt.Errorf("%w: udp socket buffer size %d", ErrInvalidConfig, c.UDPSocketBufSize)
	}
	if c.SrpMaxServices > 0 && c.SrpServiceBufSize <= 0 {
		return fmt.Errorf("%w: srp service buffer size %d", ErrInvalidConfig, c.SrpServiceBufSize)
	}
	return nil
}

// Resources holds the pools lent to one engine for its whole lifetime.
// A Resources value may back only one engine.
type Resources struct {
	cfg  ResourcesConfig
	udp  *arena.Arena
	srp  *arena.Arena
	used atomic.Bool
}

// NewResources allocates the pools up front. Nothing grows afterwards.
func NewResources(cfg ResourcesConfig) (*Resources, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Resources{
		cfg: cfg,
		udp: arena.New(cfg.UDPMaxSockets, cfg.UDPSocketBufSize),
		srp: arena.New(cfg.SrpMaxServices, cfg.SrpServiceBufSize),
	}, nil
}

// Config returns the pool sizes.
func (r *Resources) Config() ResourcesConfig {
	return r.cfg
}

// claim marks the resources as owned by an engine.
func (r *Resources) claim() error {
	if !r.used.CompareAndSwap(false, true) {
		return ErrResourcesInUse
	}
	return nil
}

// release undoes claim after a failed construction.
func (r *Resources) release() {
	r.used.Store(false)
}
