package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/threadkit/threadkit-go/pkg/dataset"
	"github.com/threadkit/threadkit-go/pkg/discovery"
	"github.com/threadkit/threadkit-go/pkg/log"
	"github.com/threadkit/threadkit-go/pkg/mesh"
	"github.com/threadkit/threadkit-go/pkg/persistence"
	"github.com/threadkit/threadkit-go/pkg/radio"
	"github.com/threadkit/threadkit-go/pkg/thread"
)

// nodeOptions gathers what newEngine needs beyond the file configuration.
type nodeOptions struct {
	EUI64      thread.EUI64
	Logger     *slog.Logger
	Capture    log.Logger
	Settings   *persistence.SettingsStore
	Advertiser discovery.Advertiser
}

// newEngine builds an engine backed by the software mesh.
func newEngine(opts nodeOptions) (*thread.Engine, error) {
	mcfg := mesh.DefaultConfig()
	mcfg.Advertiser = opts.Advertiser
	native, err := mesh.New(mcfg)
	if err != nil {
		return nil, err
	}

	res, err := thread.NewResources(thread.DefaultResourcesConfig())
	if err != nil {
		return nil, err
	}

	cfg := thread.DefaultConfig()
	cfg.EUI64 = opts.EUI64
	cfg.Logger = opts.Logger
	cfg.ProtocolLogger = opts.Capture
	cfg.Settings = opts.Settings
	return thread.New(cfg, res, native)
}

// randomEUI64 derives a locally administered EUI-64 from a random UUID.
func randomEUI64() thread.EUI64 {
	id := uuid.New()
	var eui thread.EUI64
	copy(eui[:], id[:8])
	eui[0] = eui[0]&^0x01 | 0x02
	return eui
}

// bringUp applies the dataset and enables the interfaces.
func bringUp(ctx context.Context, h thread.Handle, ds *dataset.Dataset) error {
	if err := h.SetActiveDataset(ctx, ds); err != nil {
		return err
	}
	if err := h.EnableIPv6(ctx, true); err != nil {
		return err
	}
	return h.EnableThread(ctx, true)
}

// waitFor blocks until cond holds, re-checking on every engine change.
func waitFor(ctx context.Context, h thread.Handle, cond func() bool) error {
	for !cond() {
		if err := h.WaitChanged(ctx); err != nil {
			return err
		}
	}
	return nil
}

// startPeer runs a second node on the simulated medium so the device has a
// leader and an SRP registrar to attach to. It returns once the peer leads
// its partition. The returned channel yields the result of the peer's run.
func startPeer(ctx context.Context, r radio.Radio, eui thread.EUI64, ds *dataset.Dataset, opts nodeOptions) (thread.Handle, <-chan error, error) {
	opts.EUI64 = eui
	opts.Settings = nil
	opts.Logger = opts.Logger.With("node", "peer")
	e, err := newEngine(opts)
	if err != nil {
		return thread.Handle{}, nil, fmt.Errorf("peer: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx, r) }()

	h := e.Handle()
	if err := bringUp(ctx, h, ds); err != nil {
		return h, done, fmt.Errorf("peer: %w", err)
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := waitFor(wctx, h, func() bool { return h.Role() == thread.RoleLeader }); err != nil {
		return h, done, fmt.Errorf("peer did not become leader: %w", err)
	}
	opts.Logger.Info("peer leads the partition", "ext", fmt.Sprintf("%x", h.ExtAddress()))
	return h, done, nil
}
