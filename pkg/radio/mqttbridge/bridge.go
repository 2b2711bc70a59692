package mqttbridge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/threadkit/threadkit-go/pkg/mac"
	"github.com/threadkit/threadkit-go/pkg/radio"
)

// Caps is the capability set of a bridged radio.
const Caps = radio.CapsRxOnWhenIdle | radio.CapsPromiscuous

// Client is the part of mqtt.Client the bridge uses.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Unsubscribe(topics ...string) mqtt.Token
}

// Config configures a bridged radio.
type Config struct {
	// BrokerURL is used by Dial, e.g. tcp://localhost:1883.
	BrokerURL string
	Username  string
	Password  string

	// RootTopic prefixes every channel topic.
	RootTopic string

	// RxQueue bounds frames buffered before new ones are dropped.
	RxQueue int

	// Timeout bounds each broker operation.
	Timeout time.Duration

	// RSSI is reported with every received frame.
	RSSI int8

	// Logger receives diagnostics. Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns a bridge on a local broker.
func DefaultConfig() Config {
	return Config{
		BrokerURL: "tcp://localhost:1883",
		RootTopic: "threadkit/radio",
		RxQueue:   16,
		Timeout:   5 * time.Second,
		RSSI:      -50,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.RootTopic == "" {
		c.RootTopic = d.RootTopic
	}
	if c.RxQueue <= 0 {
		c.RxQueue = d.RxQueue
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

type received struct {
	psdu    []byte
	channel uint8
	rssi    int8
	at      time.Time
}

// Radio is a radio.Radio whose medium is an MQTT topic tree.
type Radio struct {
	cfg    Config
	client Client
	conn   mqtt.Client
	id     []byte
	logger *slog.Logger

	mu     sync.Mutex
	rcfg   radio.Config
	closed bool

	inbox chan received
	done  chan struct{}
}

// Dial connects to cfg.BrokerURL and joins the medium.
func Dial(ctx context.Context, cfg Config) (*Radio, error) {
	cfg.applyDefaults()
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetClientID("threadkit-" + uuid.NewString()[:8])
	opts.SetOrderMatters(false)
	opts.SetConnectTimeout(cfg.Timeout)

	conn := mqtt.NewClient(opts)
	if err := wait(ctx, conn.Connect(), cfg.Timeout); err != nil {
		return nil, fmt.Errorf("failed to connect MQTT: %w", err)
	}
	r, err := New(ctx, conn, cfg)
	if err != nil {
		conn.Disconnect(250)
		return nil, err
	}
	r.conn = conn
	return r, nil
}

// New joins the medium through an already connected client.
func New(ctx context.Context, client Client, cfg Config) (*Radio, error) {
	cfg.applyDefaults()
	id := uuid.New()
	r := &Radio{
		cfg:    cfg,
		client: client,
		id:     id[:],
		logger: cfg.Logger,
		inbox:  make(chan received, cfg.RxQueue),
		done:   make(chan struct{}),
	}
	if err := wait(ctx, client.Subscribe(r.cfg.RootTopic+"/+", 0, r.handleMessage), cfg.Timeout); err != nil {
		return nil, fmt.Errorf("failed to subscribe to topic: %w", err)
	}
	return r, nil
}

func wait(ctx context.Context, t mqtt.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-t.Done():
		return t.Error()
	case <-timer.C:
		return errors.New("broker timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Radio) topic(channel uint8) string {
	return r.cfg.RootTopic + "/" + strconv.Itoa(int(channel))
}

func (r *Radio) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	var env envelope
	if err := env.unmarshal(msg.Payload()); err != nil {
		r.logger.Debug("dropping message", "topic", msg.Topic(), "error", err)
		return
	}
	if bytes.Equal(env.Sender, r.id) {
		return
	}
	if ch, ok := strings.CutPrefix(msg.Topic(), r.cfg.RootTopic+"/"); !ok || ch != strconv.Itoa(int(env.Channel)) {
		r.logger.Debug("dropping frame on mismatched topic", "topic", msg.Topic(), "channel", env.Channel)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || env.Channel != r.rcfg.Channel {
		return
	}
	if !r.rcfg.Promiscuous {
		h, _, err := mac.Parse(env.PSDU)
		if err != nil || !h.Accepts(r.rcfg.PanID, r.rcfg.ShortAddress, r.rcfg.ExtAddress) {
			return
		}
	}
	rssi := env.RSSI
	if rssi == 0 {
		rssi = r.cfg.RSSI
	}
	select {
	case r.inbox <- received{psdu: bytes.Clone(env.PSDU), channel: env.Channel, rssi: rssi, at: time.Now()}:
	default:
		r.logger.Debug("receive queue full, dropping frame", "channel", env.Channel)
	}
}

// Caps returns the bridged capability set.
func (r *Radio) Caps() radio.Caps {
	return Caps
}

// Set applies a configuration.
func (r *Radio) Set(ctx context.Context, cfg radio.Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return radio.ErrRadioClosed
	}
	r.rcfg = cfg
	return nil
}

// Transmit publishes f on its channel, or on the configured channel when
// f.Channel is zero.
func (r *Radio) Transmit(ctx context.Context, f *radio.Frame) (radio.TxResult, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return radio.TxNoAck, radio.ErrRadioClosed
	}
	channel := f.Channel
	if channel == 0 {
		channel = r.rcfg.Channel
	}
	r.mu.Unlock()

	env := envelope{Sender: r.id, Channel: channel, PSDU: f.Bytes()}
	if err := wait(ctx, r.client.Publish(r.topic(channel), 0, false, env.marshal()), r.cfg.Timeout); err != nil {
		if ctx.Err() != nil {
			return radio.TxNoAck, err
		}
		r.logger.Debug("publish failed", "channel", channel, "error", err)
		return radio.TxChannelBusy, nil
	}
	return radio.TxAck, nil
}

// Receive waits for the next accepted frame or until ctx is done.
func (r *Radio) Receive(ctx context.Context, f *radio.Frame) (radio.RxMeta, error) {
	select {
	case rx := <-r.inbox:
		if err := f.SetBytes(rx.psdu); err != nil {
			return radio.RxMeta{}, err
		}
		f.Channel = rx.channel
		return radio.RxMeta{RSSI: rx.rssi, LQI: 255, Timestamp: rx.at}, nil
	case <-r.done:
		return radio.RxMeta{}, radio.ErrRadioClosed
	case <-ctx.Done():
		return radio.RxMeta{}, ctx.Err()
	}
}

// Close leaves the medium and, for a dialed radio, disconnects.
func (r *Radio) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.done)
	r.mu.Unlock()

	t := r.client.Unsubscribe(r.cfg.RootTopic + "/+")
	t.WaitTimeout(r.cfg.Timeout)
	if r.conn != nil {
		r.conn.Disconnect(250)
	}
	return t.Error()
}

var _ radio.Radio = (*Radio)(nil)
