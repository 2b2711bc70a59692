package thread

import (
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/threadkit/threadkit-go/pkg/log"
	"github.com/threadkit/threadkit-go/pkg/persistence"
)

// Config configures an Engine.
type Config struct {
	// EUI64 is the factory identifier of the device.
	EUI64 EUI64

	// Entropy is the randomness source handed to the native engine.
	// If nil, crypto/rand is used.
	Entropy io.Reader

	// RxWindow is how long the radio pump listens before it checks for
	// outgoing frames again (default: 10ms).
	RxWindow time.Duration

	// CommandQueue is the depth of the command queue (default: 16).
	CommandQueue int

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives protocol capture events.
	// If nil, capture is disabled.
	ProtocolLogger log.Logger

	// Settings is the optional non-volatile settings store handed to the
	// native engine. If nil, settings live only in memory.
	Settings *persistence.SettingsStore
}

// DefaultConfig returns a configuration with default timing. The caller
// still has to supply the EUI-64.
func DefaultConfig() Config {
	return Config{
		RxWindow:     10 * time.Millisecond,
		CommandQueue: 16,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.EUI64 == (EUI64{}) {
		return fmt.Errorf("%w: EUI-64 is zero", ErrInvalidConfig)
	}
	if c.RxWindow < 0 {
		return fmt.Errorf("%w: negative receive window", ErrInvalidConfig)
	}
	if c.CommandQueue < 0 {
		return fmt.Errorf("%w: negative command queue", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.RxWindow == 0 {
		c.RxWindow = d.RxWindow
	}
	if c.CommandQueue == 0 {
		c.CommandQueue = d.CommandQueue
	}
	if c.Entropy == nil {
		c.Entropy = rand.Reader
	}
	if c.ProtocolLogger == nil {
		c.ProtocolLogger = log.NoopLogger{}
	}
}
