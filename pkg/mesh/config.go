package mesh

import (
	"errors"
	"fmt"
	"time"

	"github.com/threadkit/threadkit-go/pkg/backoff"
	"github.com/threadkit/threadkit-go/pkg/discovery"
)

// Node errors.
var (
	// ErrInvalidConfig indicates an invalid node configuration.
	ErrInvalidConfig = errors.New("invalid mesh configuration")

	// ErrDown indicates the IPv6 interface or Thread is disabled.
	ErrDown = errors.New("interface down")

	// ErrThreadEnabled indicates an operation that needs Thread stopped.
	ErrThreadEnabled = errors.New("thread enabled")

	// ErrTxQueueFull indicates the transmit queue cannot take the frames of
	// another packet.
	ErrTxQueueFull = errors.New("transmit queue full")

	// ErrPortReserved indicates a UDP port the node uses itself.
	ErrPortReserved = errors.New("udp port reserved")

	// ErrUnknownSocket indicates a socket id that is not open.
	ErrUnknownSocket = errors.New("unknown socket")

	// ErrSocketExists indicates a socket id that is already open.
	ErrSocketExists = errors.New("socket already open")

	// ErrInvalidSource indicates a source address not assigned to the node.
	ErrInvalidSource = errors.New("source address not assigned")

	// ErrNoHost indicates an SRP operation before a host name was set.
	ErrNoHost = errors.New("srp host not configured")

	// ErrUnknownService indicates an SRP service id the client does not hold.
	ErrUnknownService = errors.New("unknown srp service")

	// ErrServiceExists indicates a duplicate SRP service.
	ErrServiceExists = errors.New("srp service already exists")

	// ErrHostRemoving indicates a change while the host is being removed.
	ErrHostRemoving = errors.New("srp host removal in progress")
)

// Config configures a Node.
type Config struct {
	// AttachTimeout is how long a detached node waits for a leader before it
	// starts its own partition.
	AttachTimeout time.Duration

	// AdvertiseInterval is the leader advertisement period. A child that
	// misses three advertisements detaches.
	AdvertiseInterval time.Duration

	// ReassemblyTimeout bounds how long fragments of one packet are kept.
	ReassemblyTimeout time.Duration

	// TxQueue is the number of frames the transmit queue holds.
	TxQueue int

	// Registrar runs an SRP registrar while the node is leader.
	Registrar bool

	// Advertiser, when set, publishes the registrar's registrations.
	Advertiser discovery.Advertiser

	// DefaultLease and DefaultKeyLease are the SRP leases, in seconds, used
	// when the host configuration leaves them zero.
	DefaultLease    uint32
	DefaultKeyLease uint32

	// SrpResponseTimeout is how long the SRP client waits for an answer
	// before it retries.
	SrpResponseTimeout time.Duration

	// SrpBackoff shapes SRP retry delays.
	SrpBackoff backoff.Config

	// TxPower is the transmit power handed to the radio, in dBm.
	TxPower int8

	// Clock returns the current time. If nil, time.Now is used.
	Clock func() time.Time
}

// DefaultConfig returns the default node configuration.
func DefaultConfig() Config {
	return Config{
		AttachTimeout:      1500 * time.Millisecond,
		AdvertiseInterval:  5 * time.Second,
		ReassemblyTimeout:  2 * time.Second,
		TxQueue:            64,
		Registrar:          true,
		DefaultLease:       7200,
		DefaultKeyLease:    1209600,
		SrpResponseTimeout: 2 * time.Second,
		SrpBackoff:         backoff.Config{Jitter: backoff.DefaultJitter},
		TxPower:            0,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.AttachTimeout <= 0 {
		return fmt.Errorf("%w: attach timeout must be positive", ErrInvalidConfig)
	}
	if c.AdvertiseInterval <= 0 {
		return fmt.Errorf("%w: advertise interval must be positive", ErrInvalidConfig)
	}
	if c.ReassemblyTimeout <= 0 {
		return fmt.Errorf("%w: reassembly timeout must be positive", ErrInvalidConfig)
	}
	if c.TxQueue <= 0 {
		return fmt.Errorf("%w: transmit queue must hold at least one frame", ErrInvalidConfig)
	}
	if c.SrpResponseTimeout <= 0 {
		return fmt.Errorf("%w: srp response timeout must be positive", ErrInvalidConfig)
	}
	return nil
}
