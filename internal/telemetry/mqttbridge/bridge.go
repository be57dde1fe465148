// Package mqttbridge forwards telemetry lines from the hub to an MQTT
// broker at QoS 0.
package mqttbridge

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/banshee-data/range.report/internal/monitoring"
	"github.com/banshee-data/range.report/internal/telemetry"
)

const (
	qosAtMostOnce   byte = 0
	connectTimeout       = 10 * time.Second
	publishTimeout       = 2 * time.Second
	disconnectQuiet uint = 250 // ms
)

// Publisher is the part of an MQTT client the bridge uses. mqtt.Client
// implements it.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Config describes the broker connection.
type Config struct {
	Broker   string // tcp://host:1883
	ClientID string // empty picks a random one
	Username string
	Password string
}

// Connect dials the broker and waits for the session.
func Connect(cfg Config) (mqtt.Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqttbridge: broker is required")
	}
	id := cfg.ClientID
	if id == "" {
		id = "range-report-" + uuid.NewString()[:8]
	}
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(id).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Warnf("mqttbridge: connection lost: %v", err)
		})

	c := mqtt.NewClient(opts)
	tok := c.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqttbridge: connect %s: timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqttbridge: connect %s: %w", cfg.Broker, err)
	}
	monitoring.Logf("mqttbridge: connected to %s as %s", cfg.Broker, id)
	return c, nil
}

// Disconnect closes c after a short quiesce.
func Disconnect(c mqtt.Client) {
	c.Disconnect(disconnectQuiet)
}

// Bridge copies hub lines matching a prefix to one MQTT topic. Lines are
// sent at most once; a slow broker loses lines at the bridge's hub queue.
type Bridge struct {
	client Publisher
	hub    *telemetry.Hub
	topic  string
	prefix string

	forwarded atomic.Uint64
	failed    atomic.Uint64
}

// New returns a bridge from hub lines starting with prefix to topic.
func New(client Publisher, hub *telemetry.Hub, topic, prefix string) *Bridge {
	return &Bridge{client: client, hub: hub, topic: topic, prefix: prefix}
}

// Run forwards lines until ctx is done or the hub closes.
func (b *Bridge) Run(ctx context.Context) error {
	sub, err := b.hub.Subscribe(b.prefix)
	if err != nil {
		return fmt.Errorf("mqttbridge: %w", err)
	}
	defer b.hub.Unsubscribe(sub.ID)
	monitoring.Logf("mqttbridge: forwarding %q to topic %s", b.prefix, b.topic)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-sub.C:
			if !ok {
				return nil
			}
			b.forward(line)
		}
	}
}

func (b *Bridge) forward(line string) {
	tok := b.client.Publish(b.topic, qosAtMostOnce, false, line)
	if !tok.WaitTimeout(publishTimeout) {
		b.failed.Add(1)
		monitoring.Debugf("mqttbridge: publish timed out")
		return
	}
	if err := tok.Error(); err != nil {
		b.failed.Add(1)
		monitoring.Debugf("mqttbridge: publish: %v", err)
		return
	}
	b.forwarded.Add(1)
}

// Stats returns how many lines were forwarded and how many failed.
func (b *Bridge) Stats() (forwarded, failed uint64) {
	return b.forwarded.Load(), b.failed.Load()
}
