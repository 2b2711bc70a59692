package main

import (
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/threadkit/threadkit-go/pkg/dataset"
	"github.com/threadkit/threadkit-go/pkg/thread"
)

// Mode selects the example flow the device runs.
type Mode string

const (
	ModeSRP  Mode = "srp"
	ModeEnet Mode = "enet"
)

// RadioKind selects the radio backend.
type RadioKind string

const (
	RadioSim  RadioKind = "sim"
	RadioRCP  RadioKind = "rcp"
	RadioMQTT RadioKind = "mqtt"
)

// Config holds the device configuration. It is loaded from YAML and then
// overridden by flags.
type Config struct {
	Mode     Mode   `yaml:"mode"`
	EUI64    string `yaml:"eui64"`
	Settings string `yaml:"settings,omitempty"`
	Capture  string `yaml:"capture,omitempty"`
	LogLevel string `yaml:"log_level"`

	// Advertise publishes registrations the node accepts as registrar on
	// mDNS.
	Advertise bool `yaml:"advertise"`

	Dataset dataset.Config `yaml:"dataset"`
	Radio   RadioConfig    `yaml:"radio"`
	Service ServiceConfig  `yaml:"service"`

	// Interactive is only set from the command line.
	Interactive bool `yaml:"-"`
}

// RadioConfig selects and configures the radio backend.
type RadioConfig struct {
	Kind RadioKind `yaml:"kind"`

	// Serial is the RCP serial port.
	Serial   string `yaml:"serial,omitempty"`
	BaudRate int    `yaml:"baud_rate,omitempty"`

	// Broker is the MQTT broker URL of the bridge.
	Broker   string `yaml:"broker,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Topic    string `yaml:"topic,omitempty"`

	// Peer starts an in-process leader on the simulated medium.
	Peer bool `yaml:"peer"`
}

// ServiceConfig is the SRP service the device registers, and the UDP port
// it echoes on.
type ServiceConfig struct {
	Host     string            `yaml:"host,omitempty"`
	Type     string            `yaml:"type"`
	Instance string            `yaml:"instance,omitempty"`
	Port     uint16            `yaml:"port"`
	Subtypes []string          `yaml:"subtypes,omitempty"`
	TXT      map[string]string `yaml:"txt,omitempty"`
	Lease    time.Duration     `yaml:"lease,omitempty"`
	EchoPort uint16            `yaml:"echo_port"`
}

// DefaultConfig returns the configuration of the OpenThread-58d1 demo network.
func DefaultConfig() Config {
	return Config{
		Mode:     ModeSRP,
		LogLevel: "info",
		Dataset: dataset.Config{
			ActiveTimestamp: &dataset.Timestamp{Seconds: 1},
			NetworkKey:      "fe0458f7db96354eaa6041b880ea9c0f",
			NetworkName:     "OpenThread-58d1",
			ExtendedPanID:   "3a90e3a319a90494",
			PanID:           dataset.Ptr(uint16(0x58d1)),
			Channel:         dataset.Ptr(uint8(11)),
		},
		Radio: RadioConfig{
			Kind: RadioSim,
			Peer: true,
		},
		Service: ServiceConfig{
			Type:     "_foo._tcp",
			Port:     777,
			Subtypes: []string{"foo"},
			TXT:      map[string]string{"a": "b"},
			EchoPort: 1212,
		},
	}
}

// LoadConfig reads a YAML file over the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeSRP, ModeEnet:
	default:
		return fmt.Errorf("unknown mode: %q", c.Mode)
	}
	switch c.Radio.Kind {
	case RadioSim:
	case RadioRCP:
		if c.Radio.Serial == "" {
			return errors.New("rcp radio needs a serial port")
		}
	case RadioMQTT:
		if c.Radio.Broker == "" {
			return errors.New("mqtt radio needs a broker")
		}
	default:
		return fmt.Errorf("unknown radio: %q", c.Radio.Kind)
	}
	if c.EUI64 != "" {
		if _, err := ParseEUI64(c.EUI64); err != nil {
			return err
		}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.Dataset.Dataset(); err != nil {
		return fmt.Errorf("dataset: %w", err)
	}
	if c.Mode == ModeSRP && c.Service.Type == "" {
		return errors.New("service type is empty")
	}
	return nil
}

// ParseEUI64 parses 16 hex digits, optionally separated by colons or dashes.
func ParseEUI64(s string) (thread.EUI64, error) {
	var eui thread.EUI64
	clean := strings.NewReplacer(":", "", "-", "").Replace(s)
	b, err := hex.DecodeString(clean)
	if err != nil || len(b) != len(eui) {
		return eui, fmt.Errorf("invalid EUI-64: %q", s)
	}
	copy(eui[:], b)
	if eui == (thread.EUI64{}) {
		return eui, fmt.Errorf("invalid EUI-64: %q is zero", s)
	}
	return eui, nil
}

// suffix returns the last two bytes of the EUI-64 as four hex digits. The
// example host and instance names are derived from it.
func suffix(eui thread.EUI64) string {
	return fmt.Sprintf("%02x%02x", eui[6], eui[7])
}

// hostName returns the SRP host name for eui.
func (s *ServiceConfig) hostName(eui thread.EUI64) string {
	if s.Host != "" {
		return s.Host
	}
	return "srp-example-" + suffix(eui)
}

// service builds the SRP record for eui.
func (s *ServiceConfig) service(eui thread.EUI64) thread.SrpService {
	svc := thread.SrpService{
		Name:          s.Type,
		InstanceName:  s.Instance,
		SubtypeLabels: append([]string(nil), s.Subtypes...),
		Port:          s.Port,
	}
	if svc.InstanceName == "" {
		svc.InstanceName = "srp" + suffix(eui)
	}
	if s.Lease > 0 {
		svc.LeaseSecs = uint32(s.Lease / time.Second)
	}
	for _, k := range slices.Sorted(maps.Keys(s.TXT)) {
		svc.TxtEntries = append(svc.TxtEntries, thread.TxtEntry{Key: k, Value: []byte(s.TXT[k])})
	}
	return svc
}
