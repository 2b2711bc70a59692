// Command thread-device runs a Thread node on the software mesh.
//
// Two example flows are available:
//   - srp: joins the network, registers a DNS-SD service through SRP and
//     answers UDP datagrams on the echo port with "Hello".
//   - enet: runs the engine behind a proxy radio and routes IPv6 through the
//     packet driver, answering UDP datagrams from a userspace endpoint.
//
// Usage:
//
//	thread-device [flags]
//
// Flags:
//
//	-config string      YAML configuration file
//	-mode string        Example flow: srp, enet (default "srp")
//	-radio string       Radio backend: sim, rcp, mqtt (default "sim")
//	-serial string      Serial port of the radio co-processor
//	-broker string      MQTT broker URL of the radio bridge
//	-eui64 string       Factory EUI-64 (random if empty)
//	-settings string    Settings file for identity across restarts
//	-capture string     Protocol capture file (.tlog)
//	-advertise          Publish SRP registrations via mDNS
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-interactive        Start the interactive shell
//
// Examples:
//
//	# Register the example service on a simulated network
//	thread-device -log-level debug
//
//	# Use a co-processor and keep a capture for thread-log
//	thread-device -radio rcp -serial /dev/ttyACM0 -capture device.tlog
//
//	# Route IPv6 through the packet driver over an MQTT medium
//	thread-device -mode enet -radio mqtt -broker tcp://localhost:1883
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/threadkit/threadkit-go/pkg/dataset"
	"github.com/threadkit/threadkit-go/pkg/discovery"
	"github.com/threadkit/threadkit-go/pkg/enet"
	"github.com/threadkit/threadkit-go/pkg/log"
	"github.com/threadkit/threadkit-go/pkg/persistence"
	"github.com/threadkit/threadkit-go/pkg/radio"
	"github.com/threadkit/threadkit-go/pkg/thread"
)

var (
	configFile string
	flags      = DefaultConfig()
)

func init() {
	flag.StringVar(&configFile, "config", "", "YAML configuration file")
	flag.StringVar((*string)(&flags.Mode), "mode", string(flags.Mode), "Example flow: srp, enet")
	flag.StringVar((*string)(&flags.Radio.Kind), "radio", string(flags.Radio.Kind), "Radio backend: sim, rcp, mqtt")
	flag.StringVar(&flags.Radio.Serial, "serial", "", "Serial port of the radio co-processor")
	flag.StringVar(&flags.Radio.Broker, "broker", "", "MQTT broker URL of the radio bridge")
	flag.StringVar(&flags.EUI64, "eui64", "", "Factory EUI-64 (random if empty)")
	flag.StringVar(&flags.Settings, "settings", "", "Settings file for identity across restarts")
	flag.StringVar(&flags.Capture, "capture", "", "Protocol capture file (.tlog)")
	flag.BoolVar(&flags.Advertise, "advertise", false, "Publish SRP registrations via mDNS")
	flag.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "Log level: debug, info, warn, error")
	flag.BoolVar(&flags.Interactive, "interactive", false, "Start the interactive shell")
}

// device is a running node and the example flow driving it.
type device struct {
	cfg     Config
	eui     thread.EUI64
	dataset *dataset.Dataset
	engine  *thread.Engine
	h       thread.Handle
	logger  *slog.Logger
}

func main() {
	flag.Parse()

	cfg := DefaultConfig()
	if configFile != "" {
		var err error
		if cfg, err = LoadConfig(configFile); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	applyFlags(&cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var out io.Writer = os.Stderr
	var sh *shell
	if cfg.Interactive {
		var err error
		if sh, err = newShell(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		out = sh.Stdout()
	}

	if err := run(ctx, cancel, cfg, out, sh); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// applyFlags copies every flag given on the command line over cfg.
func applyFlags(cfg *Config) {
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Mode = flags.Mode
		case "radio":
			cfg.Radio.Kind = flags.Radio.Kind
		case "serial":
			cfg.Radio.Serial = flags.Radio.Serial
		case "broker":
			cfg.Radio.Broker = flags.Radio.Broker
		case "eui64":
			cfg.EUI64 = flags.EUI64
		case "settings":
			cfg.Settings = flags.Settings
		case "capture":
			cfg.Capture = flags.Capture
		case "advertise":
			cfg.Advertise = flags.Advertise
		case "log-level":
			cfg.LogLevel = flags.LogLevel
		}
	})
	cfg.Interactive = flags.Interactive
}

// ParseLevel maps a log level name to its slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level: %q", s)
}

func run(ctx context.Context, cancel context.CancelFunc, cfg Config, out io.Writer, sh *shell) error {
	level, _ := ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	eui := randomEUI64()
	if cfg.EUI64 != "" {
		eui, _ = ParseEUI64(cfg.EUI64)
	}
	ds, err := cfg.Dataset.Dataset()
	if err != nil {
		return err
	}

	opts := nodeOptions{EUI64: eui, Logger: logger}

	// Capture events go to the file and, at debug level, to the log.
	captures := []log.Logger{log.NewSlogAdapter(logger).WithLevel(slog.LevelDebug)}
	if cfg.Capture != "" {
		fl, err := log.NewFileLogger(cfg.Capture)
		if err != nil {
			return fmt.Errorf("failed to open capture file: %w", err)
		}
		defer func() {
			if n := fl.Dropped(); n > 0 {
				logger.Warn("capture events dropped", "count", n)
			}
			_ = fl.Close()
		}()
		captures = append(captures, fl)
		logger.Info("capturing protocol events", "file", cfg.Capture)
	}
	opts.Capture = log.NewMultiLogger(captures...)

	if cfg.Settings != "" {
		opts.Settings = persistence.NewSettingsStore(cfg.Settings)
	}
	if cfg.Advertise {
		adv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
		if err != nil {
			return fmt.Errorf("failed to create advertiser: %w", err)
		}
		defer adv.StopAll()
		opts.Advertiser = adv
	}

	r, medium, err := openRadio(ctx, cfg.Radio, logger, opts.Capture)
	if err != nil {
		return err
	}
	defer r.Close()

	var wg sync.WaitGroup
	defer wg.Wait()
	rctx, stop := context.WithCancel(ctx)
	defer stop()

	if medium != nil && cfg.Radio.Peer {
		peerEUI := eui
		peerEUI[7] ^= 0xff
		peerRadio := medium.NewRadio()
		defer peerRadio.Close()
		peerOpts := opts
		peerOpts.Capture = nil
		_, peerDone, err := startPeer(rctx, peerRadio, peerEUI, ds, peerOpts)
		if peerDone != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := <-peerDone; err != nil && !stopped(err) {
					logger.Error("peer stopped", "error", err)
				}
			}()
		}
		if err != nil {
			return err
		}
	}

	e, err := newEngine(opts)
	if err != nil {
		return err
	}
	d := &device{
		cfg:     cfg,
		eui:     eui,
		dataset: ds,
		engine:  e,
		h:       e.Handle(),
		logger:  logger,
	}
	logger.Info("thread device starting",
		"mode", cfg.Mode, "radio", cfg.Radio.Kind, "eui64", eui, "instance", e.InstanceID())

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.runInfo(rctx)
	}()
	if sh != nil {
		sh.d = d
		go sh.Run(rctx, cancel)
	}

	switch cfg.Mode {
	case ModeEnet:
		err = d.runEnet(rctx, r)
	default:
		err = d.runSRPWithEngine(rctx, r)
	}
	stop()
	if err != nil && !stopped(err) {
		return err
	}
	logger.Info("thread device stopped")
	return nil
}

// runSRPWithEngine runs the engine on r for the duration of the SRP flow.
func (d *device) runSRPWithEngine(ctx context.Context, r radio.Radio) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	engineErr := make(chan error, 1)
	go func() {
		engineErr <- d.engine.Run(ctx, r)
		cancel()
	}()

	err := d.runSRP(ctx)
	cancel()
	if rerr := <-engineErr; rerr != nil && !stopped(rerr) {
		return rerr
	}
	if err != nil && !stopped(err) {
		return err
	}
	return nil
}

// stopped reports whether err only says that the node was shut down.
func stopped(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, thread.ErrStopped) ||
		errors.Is(err, enet.ErrClosed) ||
		errors.Is(err, radio.ErrRadioClosed)
}
