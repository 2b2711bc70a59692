package thread

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testService(instance string) SrpService {
	return SrpService{
		Name:          "_hello._udp",
		InstanceName:  instance,
		SubtypeLabels: []string{"_printer"},
		TxtEntries:    []TxtEntry{{Key: "v", Value: []byte("1")}},
		Port:          1212,
		Priority:      1,
		Weight:        2,
	}
}

// waitUntil blocks on WaitChanged until cond holds.
func waitUntil(t *testing.T, h Handle, what string, cond func() bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for !cond() {
		if err := h.WaitChanged(ctx); err != nil {
			t.Fatalf("waiting for %s: %v", what, err)
		}
	}
}

func collectServices(h Handle) []SrpServiceInfo {
	var out []SrpServiceInfo
	for s := range h.SrpServices() {
		out = append(out, s)
	}
	return out
}

func TestSrpPreconditions(t *testing.T) {
	e, _ := newTestEngine(t, DefaultResourcesConfig())
	h := e.Handle()
	ctx := context.Background()

	_, err := h.SrpAddService(ctx, testService("a"))
	require.ErrorIs(t, err, ErrInvalidState)

	require.ErrorIs(t, h.SrpSetConf(ctx, SrpConf{}), ErrInvalidConfig)
	require.ErrorIs(t, h.SrpRemoveService(ctx, 1), ErrInvalidState)

	require.NoError(t, h.SrpSetConf(ctx, SrpConf{HostName: "node-1", LeaseSecs: 120}))
	assert.Equal(t, "node-1", h.SrpConf().HostName)
	assert.True(t, h.SrpIsEmpty())
}

// TestSrpRoundTrip verifies that a service comes back from the snapshot
// exactly as it was added, and that the add is visible as soon as it
// returns.
func TestSrpRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t, DefaultResourcesConfig())
	startEngine(t, e)
	h := e.Handle()
	ctx := context.Background()

	require.NoError(t, h.SrpSetConf(ctx, SrpConf{HostName: "node-1"}))
	require.NoError(t, h.SrpAutostart(ctx))

	svc := testService("light")
	id, err := h.SrpAddService(ctx, svc)
	require.NoError(t, err)

	got := collectServices(h)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, svc, got[0].Service)
	assert.False(t, h.SrpIsEmpty())

	waitUntil(t, h, "registration", func() bool {
		s := collectServices(h)
		return h.SrpState() == SrpRegistered && len(s) == 1 && s[0].State == SrpRegistered
	})

	// Mutating a returned copy leaves the snapshot intact.
	got[0].Service.TxtEntries[0].Value[0] = 'x'
	assert.Equal(t, []byte("1"), collectServices(h)[0].Service.TxtEntries[0].Value)
}

func TestSrpExhaustion(t *testing.T) {
	e, _ := newTestEngine(t, DefaultResourcesConfig())
	h := e.Handle()
	ctx := context.Background()
	require.NoError(t, h.SrpSetConf(ctx, SrpConf{HostName: "node-1"}))

	_, err := h.SrpAddService(ctx, testService("a"))
	require.NoError(t, err)
	_, err = h.SrpAddService(ctx, testService("b"))
	require.NoError(t, err)
	_, err = h.SrpAddService(ctx, testService("c"))
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.Len(t, collectServices(h), 2)
}

// TestSrpRecordTooLarge verifies that a record which does not fit a slot is
// refused and leaves the pool untouched.
func TestSrpRecordTooLarge(t *testing.T) {
	e, _ := newTestEngine(t, DefaultResourcesConfig())
	h := e.Handle()
	ctx := context.Background()
	require.NoError(t, h.SrpSetConf(ctx, SrpConf{HostName: "node-1"}))

	svc := testService("big")
	svc.TxtEntries = append(svc.TxtEntries, TxtEntry{Key: "blob", Value: []byte(strings.Repeat("z", 400))})
	_, err := h.SrpAddService(ctx, svc)
	require.ErrorIs(t, err, ErrResourceExhausted)
	assert.Equal(t, 2, e.res.srp.Available())
}

// TestSrpDrainBeforeReconfigure walks the remove-all, wait-until-empty,
// reconfigure sequence.
func TestSrpDrainBeforeReconfigure(t *testing.T) {
	e, f := newTestEngine(t, DefaultResourcesConfig())
	startEngine(t, e)
	h := e.Handle()
	ctx := context.Background()

	require.NoError(t, h.SrpSetConf(ctx, SrpConf{HostName: "node-1"}))
	require.NoError(t, h.SrpAutostart(ctx))
	_, err := h.SrpAddService(ctx, testService("a"))
	require.NoError(t, err)
	_, err = h.SrpAddService(ctx, testService("b"))
	require.NoError(t, err)
	waitUntil(t, h, "registration", func() bool { return h.SrpState() == SrpRegistered })

	require.ErrorIs(t, h.SrpSetConf(ctx, SrpConf{HostName: "node-2"}), ErrInvalidState)

	require.NoError(t, h.SrpRemoveAll(ctx, true))
	assert.Equal(t, SrpRemoving, h.SrpState())
	assert.False(t, h.SrpIsEmpty())

	waitUntil(t, h, "empty client", h.SrpIsEmpty)
	assert.Empty(t, collectServices(h))
	assert.Equal(t, 2, e.res.srp.Available())

	require.NoError(t, h.SrpSetConf(ctx, SrpConf{HostName: "node-2"}))
	assert.Equal(t, "node-2", h.SrpConf().HostName)
	inEngine(t, e, func() {
		assert.Equal(t, 1, f.eraseKeys)
		assert.Equal(t, "node-2", f.conf.HostName)
	})
}

// TestSrpRemoveServiceFreesSlot verifies that a dropped service's slot is
// reused by the next add.
func TestSrpRemoveServiceFreesSlot(t *testing.T) {
	e, _ := newTestEngine(t, ResourcesConfig{SrpMaxServices: 1, SrpServiceBufSize: 300})
	h := e.Handle()
	ctx := context.Background()
	require.NoError(t, h.SrpSetConf(ctx, SrpConf{HostName: "node-1"}))

	id, err := h.SrpAddService(ctx, testService("a"))
	require.NoError(t, err)
	require.NoError(t, h.SrpRemoveService(ctx, id))
	assert.Empty(t, collectServices(h))

	id2, err := h.SrpAddService(ctx, testService("b"))
	require.NoError(t, err)
	assert.Equal(t, id, id2)
	assert.Equal(t, "b", collectServices(h)[0].Service.InstanceName)
}

func TestPackServiceRoundTrip(t *testing.T) {
	slot := make([]byte, 300)
	svc := testService("x")
	svc.LeaseSecs = 7200
	require.NoError(t, packService(slot, &svc))

	got, err := unpackService(slot)
	require.NoError(t, err)
	assert.Equal(t, svc, got)
}
