package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// MQTTConfig configures the broker connection.
type MQTTConfig struct {
	Broker   string // host:port
	ClientID string
	// TopicPrefix is prepended to "<source>/<kind>".
	TopicPrefix string
	QoS         byte
	Encoding    Encoding
	// PublishTimeout bounds the wait for end-of-stream and error events.
	// Buffering events are fire-and-forget.
	PublishTimeout time.Duration
}

// publisher is the part of mqtt.Client the notifier uses.
type publisher interface {
	IsConnected() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTNotifier publishes events to an MQTT broker, one topic per source and
// kind. Consecutive identical buffering percentages are coalesced.
type MQTTNotifier struct {
	cfg    MQTTConfig
	client mqtt.Client
	pub    publisher

	mu          sync.Mutex
	lastPercent map[string]int
	published   map[string]uint64
	errors      uint64
}

// MQTTStats contains notifier statistics.
type MQTTStats struct {
	Connected bool
	Published map[string]uint64
	Errors    uint64
}

// NewMQTTNotifier creates an unconnected notifier.
func NewMQTTNotifier(cfg MQTTConfig) *MQTTNotifier {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "shvideo"
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Second
	}
	return &MQTTNotifier{
		cfg:         cfg,
		lastPercent: make(map[string]int),
		published:   make(map[string]uint64),
	}
}

// Connect establishes the broker connection, with automatic reconnect.
func (n *MQTTNotifier) Connect(ctx context.Context) error {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", n.cfg.Broker))
	opts.SetClientID(n.cfg.ClientID)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(mqtt.Client) {
		slog.Info("notify: mqtt connection established",
			"broker", n.cfg.Broker,
			"client_id", n.cfg.ClientID,
		)
	}
	opts.OnConnectionLost = func(_ mqtt.Client, err error) {
		slog.Warn("notify: mqtt connection lost, will auto-reconnect",
			"error", err,
			"broker", n.cfg.Broker,
		)
	}

	client := mqtt.NewClient(opts)
	slog.Info("notify: connecting to mqtt broker", "broker", n.cfg.Broker)

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return fmt.Errorf("notify: mqtt connect: %w", ctx.Err())
	case <-time.After(5 * time.Second):
		return fmt.Errorf("notify: mqtt connect: timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("notify: mqtt connect: %w", err)
	}

	n.mu.Lock()
	n.client = client
	n.pub = client
	n.mu.Unlock()
	return nil
}

// Topic returns the topic an event is published on.
func (n *MQTTNotifier) Topic(e Event) string {
	return fmt.Sprintf("%s/%s/%s", n.cfg.TopicPrefix, e.Source, e.Kind)
}

// Notify publishes e. Failures are counted and logged, never returned:
// notifications must not stall streaming.
func (n *MQTTNotifier) Notify(e Event) {
	n.mu.Lock()
	pub := n.pub
	if e.Kind == KindBuffering {
		if last, ok := n.lastPercent[e.Source]; ok && last == e.Percent {
			n.mu.Unlock()
			return
		}
		n.lastPercent[e.Source] = e.Percent
	}
	n.mu.Unlock()

	if pub == nil || !pub.IsConnected() {
		n.fail("mqtt not connected", e, nil)
		return
	}

	payload, err := Marshal(n.cfg.Encoding, e)
	if err != nil {
		n.fail("marshal failed", e, err)
		return
	}

	topic := n.Topic(e)
	token := pub.Publish(topic, n.cfg.QoS, false, payload)
	if e.Kind != KindBuffering {
		if !token.WaitTimeout(n.cfg.PublishTimeout) {
			n.fail("publish timeout", e, nil)
			return
		}
		if err := token.Error(); err != nil {
			n.fail("publish failed", e, err)
			return
		}
	}

	n.mu.Lock()
	n.published[topic]++
	n.mu.Unlock()

	slog.Debug("notify: event published", "topic", topic, "size", len(payload))
}

// Disconnect closes the broker connection.
func (n *MQTTNotifier) Disconnect() {
	n.mu.Lock()
	client := n.client
	n.client = nil
	n.pub = nil
	n.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
		slog.Info("notify: mqtt disconnected")
	}
}

// Stats returns notifier statistics.
func (n *MQTTNotifier) Stats() MQTTStats {
	n.mu.Lock()
	defer n.mu.Unlock()

	published := make(map[string]uint64, len(n.published))
	for k, v := range n.published {
		published[k] = v
	}
	return MQTTStats{
		Connected: n.pub != nil && n.pub.IsConnected(),
		Published: published,
		Errors:    n.errors,
	}
}

func (n *MQTTNotifier) fail(msg string, e Event, err error) {
	n.mu.Lock()
	n.errors++
	n.mu.Unlock()
	slog.Debug("notify: "+msg, "kind", e.Kind, "source", e.Source, "error", err)
}
