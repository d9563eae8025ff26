package events

import (
	"fmt"
	"log/slog"
	"time"

	"pnp-bridge/cache"
	"pnp-bridge/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client wraps the PAHO MQTT client. It consumes backend state-change
// notifications and publishes safety events; it never carries command
// traffic.
type Client struct {
	client      mqtt.Client
	cache       *cache.StateCache
	eventTopic  string
	safetyTopic string
	logger      *slog.Logger
}

// NewClient creates and connects a new MQTT client and subscribes to the
// backend notification feed.
func NewClient(cfg *config.Config, sc *cache.StateCache, logger *slog.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetUsername(cfg.MQTTUsername).
		SetPassword(cfg.MQTTPassword).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(1 * time.Second).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetCleanSession(true)

	eventClient := &Client{
		cache:       sc,
		eventTopic:  cfg.EventTopic,
		safetyTopic: cfg.SafetyTopic,
		logger:      logger.With("component", "event_client"),
	}

	opts.SetOnConnectHandler(eventClient.onConnect)
	opts.SetConnectionLostHandler(eventClient.onConnectionLost)
	client := mqtt.NewClient(opts)
	eventClient.client = client

	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}
	return eventClient, nil
}

// Disconnect gracefully disconnects the client.
func (c *Client) Disconnect() {
	if c.client.IsConnected() {
		c.client.Disconnect(250)
		c.logger.Info("MQTT client disconnected")
	}
}

func (c *Client) onConnect(client mqtt.Client) {
	c.logger.Info("Connected to MQTT broker, subscribing to state feed", "topic", c.eventTopic)
	c.subscribe(c.eventTopic, c.handleStateEvent)
}

func (c *Client) onConnectionLost(client mqtt.Client, err error) {
	c.logger.Error("Connection lost, reconnecting", slog.Any("error", err))
}

func (c *Client) subscribe(topic string, handler mqtt.MessageHandler) {
	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		c.logger.Error("Failed to subscribe to topic", "topic", topic, slog.Any("error", token.Error()))
	} else {
		c.logger.Info("Subscribed to topic", "topic", topic)
	}
}

func (c *Client) publish(topic string, payload []byte) error {
	if !c.client.IsConnected() {
		return fmt.Errorf("MQTT client is not connected")
	}
	token := c.client.Publish(topic, 1, false, payload)
	go func() {
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			c.logger.Error("Failed to publish message", "topic", topic, slog.Any("error", token.Error()))
		}
	}()
	return nil
}
