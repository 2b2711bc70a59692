package thread

import (
	"io"
	"log/slog"
	"net/netip"
	"time"

	"github.com/threadkit/threadkit-go/pkg/dataset"
	"github.com/threadkit/threadkit-go/pkg/log"
	"github.com/threadkit/threadkit-go/pkg/persistence"
	"github.com/threadkit/threadkit-go/pkg/radio"
)

// NativeConfig is handed to Native.Init.
type NativeConfig struct {
	// EUI64 is the factory identifier.
	EUI64 EUI64

	// Entropy is the engine's randomness source.
	Entropy io.Reader

	// Logger is the operational logger. Never nil.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events. Never nil.
	ProtocolLogger log.Logger

	// InstanceID identifies this engine in capture events.
	InstanceID string

	// Settings persists non-volatile state. May be nil.
	Settings *persistence.SettingsStore
}

// Host receives callbacks from the native engine. Callbacks are made only
// from within a Native method, on the goroutine that owns the engine.
type Host interface {
	// Notify reports observable state the engine changed.
	Notify(changes Changes)

	// DeliverUDP hands a datagram to the socket opened with id. payload is
	// only valid for the duration of the call.
	DeliverUDP(id uint32, payload []byte, local, remote netip.AddrPort)

	// DeliverIPv6 hands a packet no native socket consumed to the external
	// IP stack, when raw IPv6 reception is enabled. pkt is only valid for
	// the duration of the call.
	DeliverIPv6(pkt []byte)
}

// Native is the call surface of the single-threaded protocol engine.
//
// Implementations are never entered concurrently: every method is called by
// the engine owner only, and Host callbacks happen synchronously inside
// those calls. Errors returned are reported to callers as ErrEngineRejected.
type Native interface {
	// Init prepares the engine. It is called exactly once, before any other
	// method.
	Init(cfg NativeConfig, host Host) error

	SetActiveDataset(ds *dataset.Dataset) error
	ActiveDataset() (dataset.Dataset, bool)
	EnableIPv6(enable bool) error
	EnableThread(enable bool) error

	Role() Role
	ExtAddress() [8]byte

	// Addresses returns the current unicast addresses with their prefix length.
	Addresses() []netip.Prefix

	// RadioConfig returns the configuration the radio must run with.
	RadioConfig() radio.Config

	// Process runs expired timers and returns the next timer deadline, or the
	// zero time when none is armed.
	Process(now time.Time) time.Time

	// NextTransmit fills f with the next outgoing frame. It returns false when
	// nothing is pending. The engine owns f again only after TransmitDone.
	NextTransmit(f *radio.Frame) bool

	// TransmitDone reports the outcome of the last NextTransmit frame.
	TransmitDone(f *radio.Frame, result radio.TxResult, err error)

	// Receive processes a received frame. f is only valid during the call.
	Receive(f *radio.Frame, meta radio.RxMeta)

	UDPOpen(id uint32, local netip.AddrPort) error
	UDPClose(id uint32)

	// UDPSend sends payload from the socket opened with id. An invalid src
	// lets the engine choose the source address.
	UDPSend(id uint32, payload []byte, src netip.Addr, dst netip.AddrPort) error

	// SendIPv6 injects a complete IPv6 packet from the external stack.
	SendIPv6(pkt []byte) error

	// SetIPv6Receive enables DeliverIPv6 callbacks.
	SetIPv6Receive(enable bool)

	SrpAutostart() error
	SrpStop() error
	SrpSetHost(conf SrpConf) error
	SrpHostState() SrpState
	SrpAddService(id SrpServiceID, svc *SrpService) error
	SrpRemoveService(id SrpServiceID) error

	// SrpServiceState reports a service's state. It returns false once the
	// engine has dropped the service, after which its slot may be reused.
	SrpServiceState(id SrpServiceID) (SrpState, bool)

	SrpRemoveAll(eraseKey bool) error
	SrpServerAddr() (netip.AddrPort, bool)
}
