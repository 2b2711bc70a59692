package enet_test

import (
	"context"
	"io"
	"log/slog"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadkit/threadkit-go/pkg/dataset"
	"github.com/threadkit/threadkit-go/pkg/enet"
	"github.com/threadkit/threadkit-go/pkg/ip6"
	"github.com/threadkit/threadkit-go/pkg/mesh"
	"github.com/threadkit/threadkit-go/pkg/radio/sim"
	"github.com/threadkit/threadkit-go/pkg/thread"
)

const settle = 5 * time.Second

func testDataset() *dataset.Dataset {
	return &dataset.Dataset{
		ActiveTimestamp: &dataset.Timestamp{Seconds: 1},
		NetworkKey:      &dataset.NetworkKey{0: 0x11, 15: 0xff},
		NetworkName:     dataset.Ptr("enet-test"),
		ExtendedPanID:   &dataset.ExtendedPanID{0xde, 0xad, 0, 0xbe, 0xef, 0, 0xca, 0xfe},
		PanID:           dataset.Ptr(uint16(0x4242)),
		Channel:         dataset.Ptr(uint8(20)),
	}
}

func newEngine(t *testing.T, id byte) *thread.Engine {
	t.Helper()
	mcfg := mesh.DefaultConfig()
	mcfg.AttachTimeout = 300 * time.Millisecond
	mcfg.AdvertiseInterval = 500 * time.Millisecond
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
	return e
}

func bringUp(t *testing.T, h thread.Handle) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.SetActiveDataset(ctx, testDataset()))
	require.NoError(t, h.EnableIPv6(ctx, true))
	require.NoError(t, h.EnableThread(ctx, true))
}

// goRun starts run and stops it at cleanup.
func goRun(t *testing.T, run func(ctx context.Context) error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(2 * time.Second):
			t.Error("run did not return after cancel")
		}
	})
}

func newState(t *testing.T) *enet.State {
	t.Helper()
	s, err := enet.NewState(enet.DefaultStateConfig())
	require.NoError(t, err)
	return s
}

func TestNewStateRejectsBadDepth(t *testing.T) {
	_, err := enet.NewState(enet.StateConfig{RxDepth: 0, TxDepth: 4})
	assert.ErrorIs(t, err, enet.ErrInvalidConfig)
}

func TestValidatePacket(t *testing.T) {
	src := netip.MustParseAddrPort("[fe80::1]:1000")
	dst := netip.MustParseAddrPort("[fe80::2]:2000")
	good, err := ip6.AppendUDP(nil, src, dst, []byte("payload"))
	require.NoError(t, err)
	require.NoError(t, enet.ValidatePacket(good))

	v4 := append([]byte(nil), good...)
	v4[0] = 0x40
	long := append(append([]byte(nil), good...), 0)

	tests := []struct {
		name string
		pkt  []byte
	}{
		{"empty", nil},
		{"short header", good[:20]},
		{"wrong version", v4},
		{"trailing bytes", long},
		{"truncated payload", good[:len(good)-1]},
		{"over mtu", make([]byte, enet.MTU+1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, enet.ValidatePacket(tc.pkt), enet.ErrInvalidPacket)
		})
	}
}

func TestDriverLinkConfig(t *testing.T) {
	e := newEngine(t, 7)
	_, _, drv := enet.New(e, newState(t))
	lc := drv.LinkConfig()
	assert.Equal(t, enet.MTU, lc.MTU)
	ext := e.Handle().ExtAddress()
	assert.Equal(t, ext[:], []byte(lc.HardwareAddr))
}

func TestReadPacketHonoursContext(t *testing.T) {
	_, _, drv := enet.New(newEngine(t, 1), newState(t))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := drv.ReadPacket(ctx, make([]byte, enet.MTU))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestWritePacketRejectsInvalid(t *testing.T) {
	_, _, drv := enet.New(newEngine(t, 1), newState(t))
	err := drv.WritePacket(context.Background(), []byte{0x60, 0, 0})
	assert.ErrorIs(t, err, enet.ErrInvalidPacket)
}

func TestStateBacksOneRunner(t *testing.T) {
	state := newState(t)
	medium := sim.NewMedium()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, r1, _ := enet.New(newEngine(t, 1), state)
	rad := medium.NewRadio()
	defer rad.Close()
	require.ErrorIs(t, r1.Run(ctx, rad), context.Canceled)

	_, r2, _ := enet.New(newEngine(t, 2), state)
	assert.ErrorIs(t, r2.Run(context.Background(), medium.NewRadio()), enet.ErrStateInUse)
}

func TestDriverClosedAfterRunnerStops(t *testing.T) {
	e := newEngine(t, 1)
	_, runner, drv := enet.New(e, newState(t))
	rad := sim.NewMedium().NewRadio()
	defer rad.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx, rad) }()
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	_, err := drv.ReadPacket(context.Background(), make([]byte, enet.MTU))
	assert.ErrorIs(t, err, enet.ErrClosed)
}

type fakeStack struct {
	mu    sync.Mutex
	addrs []netip.Prefix
	calls int
}

func (s *fakeStack) SetAddresses(addrs []netip.Prefix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addrs = addrs
	s.calls++
	return nil
}

func TestControllerApplyTo(t *testing.T) {
	e := newEngine(t, 1)
	ctrl, runner, _ := enet.New(e, newState(t))
	rad := sim.NewMedium().NewRadio()
	t.Cleanup(func() { _ = rad.Close() })
	bringUp(t, e.Handle())
	goRun(t, func(ctx context.Context) error { return runner.Run(ctx, rad) })

	stack := &fakeStack{}
	ctx, cancel := context.WithTimeout(context.Background(), settle)
	defer cancel()
	for {
		ll, ok := ctrl.LinkLocal()
		if ok {
			require.NoError(t, ctrl.ApplyTo(stack))
			assert.Contains(t, stack.addrs, ll)
			break
		}
		require.NoError(t, ctrl.WaitChanged(ctx))
	}
	assert.Equal(t, 1, stack.calls, "addresses are applied only on request")
}

// TestUDPEchoOverDriver runs one node behind the driver and pings it from a
// plain engine on the same medium.
func TestUDPEchoOverDriver(t *testing.T) {
	medium := sim.NewMedium()

	ea := newEngine(t, 1)
	ctrl, runner, drv := enet.New(ea, newState(t))
	ra := medium.NewRadio()
	t.Cleanup(func() { _ = ra.Close() })
	bringUp(t, ea.Handle())
	goRun(t, func(ctx context.Context) error { return runner.Run(ctx, ra) })
	require.Eventually(t, func() bool { return ctrl.Role() == thread.RoleLeader }, settle, 10*time.Millisecond)

	eb := newEngine(t, 2)
	rb := medium.NewRadio()
	t.Cleanup(func() { _ = rb.Close() })
	b := eb.Handle()
	bringUp(t, b)
	goRun(t, func(ctx context.Context) error { return eb.Run(ctx, rb) })
	require.Eventually(t, func() bool { return b.Role() == thread.RoleChild }, settle, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), settle)
	defer cancel()

	ep := enet.NewUDPEndpoint(drv, netip.AddrPortFrom(netip.IPv6Unspecified(), 1212))
	go func() {
		buf := make([]byte, 64)
		for {
			n, local, remote, err := ep.ReadFrom(ctx, buf)
			if err != nil {
				return
			}
			if string(buf[:n]) == "ping" {
				_ = ep.WriteTo(ctx, []byte("Hello"), local.Addr(), remote)
			}
		}
	}()

	client, err := b.BindUDP(ctx, netip.AddrPortFrom(netip.IPv6Unspecified(), 5000))
	require.NoError(t, err)
	ll, ok := ctrl.LinkLocal()
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

func TestReadPacketShortBuffer(t *testing.T) {
	e := newEngine(t, 1)
	_, runner, drv := enet.New(e, newState(t))
	rad := sim.NewMedium().NewRadio()
	t.Cleanup(func() { _ = rad.Close() })
	bringUp(t, e.Handle())
	goRun(t, func(ctx context.Context) error { return runner.Run(ctx, rad) })

	var ll netip.Prefix
	require.Eventually(t, func() bool {
		var ok bool
		ll, ok = e.Handle().LinkLocal()
		return ok
	}, settle, 10*time.Millisecond)

	// A packet to our own address loops back to the reader.
	pkt, err := ip6.AppendUDP(nil,
		netip.AddrPortFrom(ll.Addr(), 1000), netip.AddrPortFrom(ll.Addr(), 2000), []byte("loop"))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), settle)
	defer cancel()
	require.NoError(t, drv.WritePacket(ctx, pkt))

	_, err = drv.ReadPacket(ctx, make([]byte, 8))
	assert.ErrorIs(t, err, io.ErrShortBuffer)
}
