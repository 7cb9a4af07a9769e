// Package mqtt wraps the paho MQTT client for the Alpaca server's event,
// health and hardware bridge traffic.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// ErrNotConnected is returned by operations attempted before Connect succeeds
// or after the broker connection was lost.
var ErrNotConnected = errors.New("mqtt client not connected")

// Client wraps the paho client with logging, bounded waits and JSON helpers.
type Client struct {
	client paho.Client
	logger *zap.Logger
	config *Config
}

// Config holds MQTT client configuration.
type Config struct {
	// BrokerURL is the MQTT broker URL (e.g., "tcp://localhost:1883")
	BrokerURL string
	// ClientID is the unique identifier for this client
	ClientID string
	// Username for MQTT authentication (optional)
	Username string
	// Password for MQTT authentication (optional)
	Password string
	// KeepAlive is the ping interval
	KeepAlive time.Duration
	// ConnectTimeout bounds Connect
	ConnectTimeout time.Duration
	// OperationTimeout bounds every publish, subscribe and unsubscribe
	OperationTimeout time.Duration
	// AutoReconnect enables automatic reconnection
	AutoReconnect bool
	// MaxReconnectInterval is the maximum time between reconnection attempts
	MaxReconnectInterval time.Duration
	// StatusTopic, when set, receives a retained "online" on connect and
	// "offline" as the last will.
	StatusTopic string
}

// Retained availability payloads written to Config.StatusTopic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// MessageHandler is a callback function for handling received messages.
type MessageHandler func(topic string, payload []byte) error

// NewClient creates a client. It does not connect.
func NewClient(config *Config, logger *zap.Logger) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if config.BrokerURL == "" {
		return nil, fmt.Errorf("broker URL is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = 10 * time.Second
	}
	if config.OperationTimeout <= 0 {
		config.OperationTimeout = 5 * time.Second
	}
	logger = logger.With(zap.String("component", "mqtt"), zap.String("broker", config.BrokerURL))

	opts := paho.NewClientOptions()
	opts.AddBroker(config.BrokerURL)
	opts.SetClientID(config.ClientID)
	if config.Username != "" {
		opts.SetUsername(config.Username)
	}
	if config.Password != "" {
		opts.SetPassword(config.Password)
	}
	opts.SetKeepAlive(config.KeepAlive)
	opts.SetConnectTimeout(config.ConnectTimeout)
	opts.SetAutoReconnect(config.AutoReconnect)
	opts.SetMaxReconnectInterval(config.MaxReconnectInterval)
	if config.StatusTopic != "" {
		opts.SetWill(config.StatusTopic, StatusOffline, 1, true)
	}

	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(pc paho.Client) {
		logger.Info("MQTT connected")
		if config.StatusTopic != "" {
			// Runs on reconnect too, so the retained status recovers after an outage.
			pc.Publish(config.StatusTopic, 1, true, StatusOnline)
		}
	})
	opts.SetReconnectingHandler(func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Info("MQTT reconnecting")
	})

	return &Client{
		client: paho.NewClient(opts),
		logger: logger,
		config: config,
	}, nil
}

// Connect establishes the broker connection, waiting at most ConnectTimeout.
func (c *Client) Connect() error {
	c.logger.Info("Connecting to MQTT broker")

	token := c.client.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return fmt.Errorf("connection timeout after %v", c.config.ConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Disconnect publishes the offline status (if configured) and closes the connection.
func (c *Client) Disconnect() {
	c.logger.Info("Disconnecting from MQTT broker")
	if c.config.StatusTopic != "" && c.IsConnected() {
		_ = c.Publish(c.config.StatusTopic, 1, true, []byte(StatusOffline))
	}
	c.client.Disconnect(250)
}

// IsConnected returns true if the client is connected to the broker.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

func (c *Client) wait(token paho.Token, op, topic string) error {
	if !token.WaitTimeout(c.config.OperationTimeout) {
		return fmt.Errorf("%s %s: timeout after %v", op, topic, c.config.OperationTimeout)
	}
	if err := token.Error(); err != nil {
		c.logger.Error("MQTT operation failed",
			zap.String("op", op),
			zap.String("topic", topic),
			zap.Error(err))
		return fmt.Errorf("%s %s: %w", op, topic, err)
	}
	return nil
}

// Publish sends payload to topic.
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.wait(c.client.Publish(topic, qos, retained, payload), "publish", topic); err != nil {
		return err
	}

	c.logger.Debug("Message published",
		zap.String("topic", topic),
		zap.Int("size", len(payload)))
	return nil
}

// PublishJSON serializes the payload to JSON and publishes it.
func (c *Client) PublishJSON(topic string, qos byte, retained bool, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return c.Publish(topic, qos, retained, data)
}

// Subscribe registers handler for topic. Handler errors are logged.
func (c *Client) Subscribe(topic string, qos byte, handler MessageHandler) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	callback := func(_ paho.Client, msg paho.Message) {
		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			c.logger.Warn("Message handler failed",
				zap.String("topic", msg.Topic()),
				zap.Error(err))
		}
	}
	if err := c.wait(c.client.Subscribe(topic, qos, callback), "subscribe", topic); err != nil {
		return err
	}

	c.logger.Info("Subscribed to topic", zap.String("topic", topic))
	return nil
}

// Unsubscribe removes the subscription for topic.
func (c *Client) Unsubscribe(topic string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return c.wait(c.client.Unsubscribe(topic), "unsubscribe", topic)
}
