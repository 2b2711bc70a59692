package thread_test

import (
	"context"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/threadkit/threadkit-go/pkg/dataset"
	"github.com/threadkit/threadkit-go/pkg/mesh"
	"github.com/threadkit/threadkit-go/pkg/radio/sim"
	"github.com/threadkit/threadkit-go/pkg/thread"
)

const settle = 5 * time.Second

func meshDataset() *dataset.Dataset {
	return &dataset.Dataset{
		ActiveTimestamp: &dataset.Timestamp{Seconds: 1},
		NetworkKey: &dataset.NetworkKey{
			0xfe, 0x04, 0x58, 0xf7, 0xdb, 0x96, 0x35, 0x4e,
			0xaa, 0x60, 0x41, 0xb8, 0x80, 0xea, 0x9c, 0x0f,
		},
		NetworkName:   dataset.Ptr("OpenThread-58d1"),
		ExtendedPanID: &dataset.ExtendedPanID{0x3a, 0x90, 0xe3, 0xa3, 0x19, 0xa9, 0x04, 0x94},
		PanID:         dataset.Ptr(uint16(0x58d1)),
		Channel:       dataset.Ptr(uint8(11)),
	}
}

// startMeshNode runs an engine backed by the software mesh on medium and
// brings Thread up.
func startMeshNode(t *testing.T, medium *sim.Medium, id byte) thread.Handle {
	t.Helper()
	mcfg := mesh.DefaultConfig()
	mcfg.AttachTimeout = 300 * time.Millisecond
	mcfg.AdvertiseInterval = 500 * time.Millisecond
	mcfg.SrpResponseTimeout = 500 * time.Millisecond
	native, err := mesh.New(mcfg)
	require.NoError(t, err)

	res, err := thread.NewResources(thread.DefaultResourcesConfig())
	require.NoError(t, err)
	cfg := thread.DefaultConfig()
	cfg.EUI64 = thread.EUI64{0x02, 0, 0, 0xff, 0xfe, 0, 0, id}
	cfg.RxWindow = 2 * time.Millisecond
	cfg.Logger = slog.New(slog.DiscardHandler)
	e, err := thread.New(cfg, res, native)
	require.NoError(t, err)

	r := medium.NewRadio()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx, r) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("Run did not return after cancel")
		}
		_ = r.Close()
	})

	h := e.Handle()
	setupCtx, done := context.WithTimeout(context.Background(), time.Second)
	defer done()
	require.NoError(t, h.SetActiveDataset(setupCtx, meshDataset()))
	require.NoError(t, h.EnableIPv6(setupCtx, true))
	require.NoError(t, h.EnableThread(setupCtx, true))
	return h
}

func waitRole(t *testing.T, h thread.Handle, role thread.Role) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Role() == role }, settle, 10*time.Millisecond,
		"role %s, want %s", h.Role(), role)
}

func TestMeshLiveness(t *testing.T) {
	h := startMeshNode(t, sim.NewMedium(), 1)

	require.Eventually(t, func() bool {
		_, ok := h.LinkLocal()
		return ok
	}, settle, 10*time.Millisecond)
	waitRole(t, h, thread.RoleLeader)

	n := 0
	for range h.IPv6Addrs() {
		n++
	}
	require.Equal(t, 3, n, "link-local, mesh-local EID and RLOC")
}

func TestMeshPingPong(t *testing.T) {
	medium := sim.NewMedium()
	a := startMeshNode(t, medium, 1)
	waitRole(t, a, thread.RoleLeader)
	b := startMeshNode(t, medium, 2)
	waitRole(t, b, thread.RoleChild)

	ctx, cancel := context.WithTimeout(context.Background(), settle)
	defer cancel()

	server, err := b.BindUDP(ctx, netip.AddrPortFrom(netip.IPv6Unspecified(), 1212))
	require.NoError(t, err)
	go func() {
		buf := make([]byte, 64)
		for {
			n, _, remote, err := server.Recv(ctx, buf)
			if err != nil {
				return
			}
			if string(buf[:n]) == "ping" {
				_ = server.Send(ctx, []byte("Hello"), netip.Addr{}, remote)
			}
		}
	}()

	client, err := a.BindUDP(ctx, netip.AddrPortFrom(netip.IPv6Unspecified(), 5000))
	require.NoError(t, err)
	ll, ok := b.LinkLocal()
	require.True(t, ok)
	dst := netip.AddrPortFrom(ll.Addr(), 1212)

	buf := make([]byte, 64)
	for attempt := 0; ; attempt++ {
		require.Less(t, attempt, 10, "no reply")
		require.NoError(t, client.Send(ctx, []byte("ping"), netip.Addr{}, dst))
		rctx, rcancel := context.WithTimeout(ctx, 300*time.Millisecond)
		n, _, remote, err := client.Recv(rctx, buf)
		rcancel()
		if err != nil {
			continue
		}
		require.Equal(t, "Hello", string(buf[:n]))
		require.Equal(t, dst, remote)
		break
	}
}

func TestMeshSrpRoundTrip(t *testing.T) {
	medium := sim.NewMedium()
	a := startMeshNode(t, medium, 1)
	waitRole(t, a, thread.RoleLeader)
	b := startMeshNode(t, medium, 2)
	waitRole(t, b, thread.RoleChild)

	ctx, cancel := context.WithTimeout(context.Background(), settle)
	defer cancel()

	require.Eventually(t, func() bool {
		_, ok := b.SrpServerAddr()
		return ok
	}, settle, 10*time.Millisecond)

	require.NoError(t, b.SrpSetConf(ctx, thread.SrpConf{HostName: "node-b"}))
	_, err := b.SrpAddService(ctx, thread.SrpService{
		Name:         "_foo._tcp",
		InstanceName: "srp1234",
		Port:         777,
		TxtEntries:   []thread.TxtEntry{{Key: "a", Value: []byte("b")}},
	})
	require.NoError(t, err)
	require.NoError(t, b.SrpAutostart(ctx))

	require.Eventually(t, func() bool { return b.SrpState() == thread.SrpRegistered }, settle, 10*time.Millisecond)
	for info := range b.SrpServices() {
		require.Equal(t, thread.SrpRegistered, info.State)
	}

	// Drain: removal completes and frees every slot.
	require.NoError(t, b.SrpRemoveAll(ctx, false))
	require.Eventually(t, b.SrpIsEmpty, settle, 10*time.Millisecond)
	require.Equal(t, thread.SrpRemoved, b.SrpState())

	// The host can be renamed once empty.
	require.NoError(t, b.SrpSetConf(ctx, thread.SrpConf{HostName: "node-b2"}))
}
