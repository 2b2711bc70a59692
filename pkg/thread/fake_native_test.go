package thread

import (
	"errors"
	"net/netip"
	"time"

	"github.com/threadkit/threadkit-go/pkg/dataset"
	"github.com/threadkit/threadkit-go/pkg/radio"
)

// fakeNative is a scripted native engine. Registrations complete after
// registerDelay and removals after removeDelay, both driven by Process.
type fakeNative struct {
	host    Host
	initErr error

	ds     dataset.Dataset
	hasDS  bool
	ipv6   bool
	thread bool
	ext    [8]byte

	sockets map[uint32]netip.AddrPort
	sent    []sentDatagram
	sendErr error

	srpRunning    bool
	hostState     SrpState
	conf          SrpConf
	services      map[SrpServiceID]*fakeService
	registerDelay time.Duration
	removeDelay   time.Duration
	registerAt    time.Time
	removeAt      time.Time
	eraseKeys     int
}

type fakeService struct {
	svc   SrpService
	state SrpState
}

type sentDatagram struct {
	id      uint32
	payload []byte
	src     netip.Addr
	dst     netip.AddrPort
}

func newFakeNative() *fakeNative {
	return &fakeNative{
		ext:           [8]byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc, 0xde, 0xf0},
		sockets:       make(map[uint32]netip.AddrPort),
		services:      make(map[SrpServiceID]*fakeService),
		registerDelay: 5 * time.Millisecond,
		removeDelay:   30 * time.Millisecond,
	}
}

func (f *fakeNative) Init(cfg NativeConfig, host Host) error {
	if f.initErr != nil {
		return f.initErr
	}
	f.host = host
	return nil
}

func (f *fakeNative) SetActiveDataset(ds *dataset.Dataset) error {
	f.ds = f.ds.Merge(ds)
	f.hasDS = true
	return nil
}

func (f *fakeNative) ActiveDataset() (dataset.Dataset, bool) {
	return f.ds, f.hasDS
}

func (f *fakeNative) EnableIPv6(enable bool) error {
	f.ipv6 = enable
	f.host.Notify(ChangedIPv6Addrs)
	return nil
}

func (f *fakeNative) EnableThread(enable bool) error {
	f.thread = enable
	f.host.Notify(ChangedRole | ChangedIPv6Addrs)
	return nil
}

func (f *fakeNative) Role() Role {
	if f.thread {
		return RoleLeader
	}
	return RoleDisabled
}

func (f *fakeNative) ExtAddress() [8]byte { return f.ext }

func (f *fakeNative) Addresses() []netip.Prefix {
	if !f.ipv6 || !f.thread {
		return nil
	}
	return []netip.Prefix{netip.MustParsePrefix("fe80::1034:5678:9abc:def0/64")}
}

func (f *fakeNative) RadioConfig() radio.Config {
	return radio.Config{Channel: 11, PanID: 0x58d1, ExtAddress: f.ext}
}

func (f *fakeNative) Process(now time.Time) time.Time {
	if !f.registerAt.IsZero() && !now.Before(f.registerAt) {
		f.registerAt = time.Time{}
		f.hostState = SrpRegistered
		for _, s := range f.services {
			if s.state == SrpRegistering {
				s.state = SrpRegistered
			}
		}
		f.host.Notify(ChangedSrpHost | ChangedSrpServices)
	}
	if !f.removeAt.IsZero() && !now.Before(f.removeAt) {
		f.removeAt = time.Time{}
		clear(f.services)
		f.hostState = SrpRemoved
		f.host.Notify(ChangedSrpHost | ChangedSrpServices)
	}
	next := f.registerAt
	if next.IsZero() || (!f.removeAt.IsZero() && f.removeAt.Before(next)) {
		next = f.removeAt
	}
	return next
}

func (f *fakeNative) NextTransmit(*radio.Frame) bool                   { return false }
func (f *fakeNative) TransmitDone(*radio.Frame, radio.TxResult, error) {}
func (f *fakeNative) Receive(*radio.Frame, radio.RxMeta)               {}
func (f *fakeNative) SendIPv6([]byte) error                            { return nil }
func (f *fakeNative) SetIPv6Receive(bool)                              {}
func (f *fakeNative) SrpServerAddr() (netip.AddrPort, bool)            { return netip.AddrPort{}, false }
func (f *fakeNative) SrpHostState() SrpState                           { return f.hostState }

func (f *fakeNative) UDPOpen(id uint32, local netip.AddrPort) error {
	f.sockets[id] = local
	return nil
}

func (f *fakeNative) UDPClose(id uint32) {
	delete(f.sockets, id)
}

func (f *fakeNative) UDPSend(id uint32, payload []byte, src netip.Addr, dst netip.AddrPort) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	if _, ok := f.sockets[id]; !ok {
		return errors.New("socket not open")
	}
	f.sent = append(f.sent, sentDatagram{id: id, payload: append([]byte(nil), payload...), src: src, dst: dst})
	return nil
}

func (f *fakeNative) SrpAutostart() error {
	f.srpRunning = true
	f.schedule()
	return nil
}

func (f *fakeNative) SrpStop() error {
	f.srpRunning = false
	return nil
}

func (f *fakeNative) SrpSetHost(conf SrpConf) error {
	f.conf = conf
	return nil
}

func (f *fakeNative) SrpAddService(id SrpServiceID, svc *SrpService) error {
	f.services[id] = &fakeService{svc: svc.Clone(), state: SrpRegistering}
	f.schedule()
	f.host.Notify(ChangedSrpServices)
	return nil
}

func (f *fakeNative) schedule() {
	if !f.srpRunning || len(f.services) == 0 {
		return
	}
	if f.hostState.Idle() {
		f.hostState = SrpRegistering
	}
	f.registerAt = time.Now().Add(f.registerDelay)
}

func (f *fakeNative) SrpRemoveService(id SrpServiceID) error {
	delete(f.services, id)
	f.host.Notify(ChangedSrpServices)
	return nil
}

func (f *fakeNative) SrpServiceState(id SrpServiceID) (SrpState, bool) {
	s, ok := f.services[id]
	if !ok {
		return 0, false
	}
	return s.state, true
}

func (f *fakeNative) SrpRemoveAll(eraseKey bool) error {
	if eraseKey {
		f.eraseKeys++
	}
	if f.hostState.Idle() {
		clear(f.services)
		f.host.Notify(ChangedSrpServices)
		return nil
	}
	f.hostState = SrpRemoving
	for _, s := range f.services {
		s.state = SrpRemoving
	}
	f.registerAt = time.Time{}
	f.removeAt = time.Now().Add(f.removeDelay)
	f.host.Notify(ChangedSrpHost | ChangedSrpServices)
	return nil
}

var _ Native = (*fakeNative)(nil)
