// Package notify bridges the engine's notification bus (internal/events)
// to external channels: an MQTT topic for home-automation-style
// integrations, and a webhook URL via shoutrrr for chat/push services.
//
// Grounded on the teacher's internal/mqtt client: a reconnect-with-
// backoff wrapper around paho.mqtt.golang, adapted from publishing bird
// detections to publishing session notifications.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gndl/talkgraph/internal/conf"
	"github.com/gndl/talkgraph/internal/events"
	"github.com/gndl/talkgraph/internal/logging"
)

var logger = logging.ForService("notify")

// MQTTClient publishes notifications to a single topic on a broker,
// reconnecting with backoff on connection loss.
type MQTTClient struct {
	broker, clientID, topic string

	mu              sync.Mutex
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	reconnectTimer  *time.Timer
	reconnectStop   chan struct{}
}

// NewMQTTClient builds a client from the engine's Notify.MQTT settings.
func NewMQTTClient(settings *conf.Settings) *MQTTClient {
	return &MQTTClient{
		broker:        settings.Notify.MQTT.Broker,
		clientID:      settings.Notify.MQTT.ClientID,
		topic:         settings.Notify.MQTT.Topic,
		reconnectStop: make(chan struct{}),
	}
}

// Connect dials the broker, refusing a retry within the last minute.
func (c *MQTTClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if time.Since(c.lastConnAttempt) < time.Minute {
		return fmt.Errorf("notify: mqtt connection attempt too recent")
	}
	c.lastConnAttempt = time.Now()

	if err := c.resolveBrokerHostname(); err != nil {
		return fmt.Errorf("notify: resolve mqtt broker: %w", err)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.broker)
	opts.SetClientID(c.clientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	opts.SetConnectRetry(true)

	c.internalClient = mqtt.NewClient(opts)

	token := c.internalClient.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return fmt.Errorf("notify: mqtt connect timeout")
	}
	return token.Error()
}

func (c *MQTTClient) resolveBrokerHostname() error {
	u, err := url.Parse(c.broker)
	if err != nil {
		return fmt.Errorf("invalid broker URL: %w", err)
	}
	if _, err := net.LookupHost(u.Hostname()); err != nil {
		return fmt.Errorf("failed to resolve hostname %s: %w", u.Hostname(), err)
	}
	return nil
}

// Publish implements events subscriber semantics: it is suitable as the
// callback passed to events.Bus.Subscribe.
func (c *MQTTClient) Publish(n events.Notification) {
	if !c.IsConnected() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	token := c.internalClient.Publish(c.topic, 0, false, string(n.Kind))
	if !token.WaitTimeout(10 * time.Second) {
		logger.Warn("mqtt publish timeout", "kind", n.Kind)
		return
	}
	if err := token.Error(); err != nil {
		logger.Error("mqtt publish failed", "kind", n.Kind, "error", err)
	}
}

func (c *MQTTClient) IsConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection and stops reconnect attempts.
func (c *MQTTClient) Disconnect() {
	if c.internalClient != nil && c.internalClient.IsConnected() {
		c.internalClient.Disconnect(250)
	}
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
	}
	close(c.reconnectStop)
}

func (c *MQTTClient) onConnect(mqtt.Client) {
	logger.Info("connected to mqtt broker", "broker", c.broker)
}

func (c *MQTTClient) onConnectionLost(_ mqtt.Client, err error) {
	logger.Warn("mqtt connection lost", "broker", c.broker, "error", err)
	c.startReconnectTimer()
}

func (c *MQTTClient) startReconnectTimer() {
	c.reconnectTimer = time.AfterFunc(time.Minute, func() {
		select {
		case <-c.reconnectStop:
			return
		default:
			c.reconnectWithBackoff()
		}
	})
}

func (c *MQTTClient) reconnectWithBackoff() {
	backoff := time.Second
	const maxBackoff = 5 * time.Minute

	for {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			logger.Info("reconnected to mqtt broker")
			c.startReconnectTimer()
			return
		}
		logger.Warn("mqtt reconnect failed, retrying", "backoff", backoff, "error", err)
		select {
		case <-time.After(backoff):
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		case <-c.reconnectStop:
			return
		}
	}
}
