package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/threadkit/threadkit-go/pkg/log"
	"github.com/threadkit/threadkit-go/pkg/radio"
	"github.com/threadkit/threadkit-go/pkg/radio/mqttbridge"
	"github.com/threadkit/threadkit-go/pkg/radio/rcp"
	"github.com/threadkit/threadkit-go/pkg/radio/sim"
)

// deviceRadio is a radio the device owns and shuts down on exit.
type deviceRadio interface {
	radio.Radio
	io.Closer
}

// openRadio opens the configured backend. For the simulated radio the
// medium is returned too, so a peer can join it.
func openRadio(ctx context.Context, cfg RadioConfig, logger *slog.Logger, capture log.Logger) (deviceRadio, *sim.Medium, error) {
	switch cfg.Kind {
	case RadioSim:
		m := sim.NewMedium()
		return m.NewRadio(), m, nil

	case RadioRCP:
		rcfg := rcp.DefaultConfig()
		if cfg.BaudRate > 0 {
			rcfg.BaudRate = cfg.BaudRate
		}
		rcfg.Logger = logger.With("radio", "rcp")
		rcfg.ProtocolLogger = capture
		r, err := rcp.Open(ctx, cfg.Serial, rcfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("co-processor ready", "port", cfg.Serial, "caps", r.Caps())
		return r, nil, nil

	case RadioMQTT:
		mcfg := mqttbridge.DefaultConfig()
		mcfg.BrokerURL = cfg.Broker
		mcfg.Username = cfg.Username
		mcfg.Password = cfg.Password
		if cfg.Topic != "" {
			mcfg.RootTopic = cfg.Topic
		}
		mcfg.Logger = logger.With("radio", "mqtt")
		r, err := mqttbridge.Dial(ctx, mcfg)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("joined mqtt medium", "broker", cfg.Broker, "topic", mcfg.RootTopic)
		return r, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown radio: %q", cfg.Kind)
}
