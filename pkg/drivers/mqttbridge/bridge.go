// Package mqttbridge implements device drivers whose hardware lives behind
// the MQTT message bus. Every hook call is published as a request and the
// caller blocks until the firmware answers on the device's response topic
// or the call times out.
//
// Requests go to {prefix}/alpaca/{type}/{number}/req/{hook} wrapped in an
// mqtt.Message envelope. Firmware replies on {prefix}/alpaca/{type}/{number}/resp
// with an envelope whose CorrelationID is the request's ID and whose payload
// is a HookResponse.
package mqttbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
	"github.com/unklstewy/bigskies-alpaca/pkg/mqtt"
)

var (
	// ErrTimeout is returned when the firmware does not answer in time.
	ErrTimeout = errors.New("timed out waiting for firmware response")

	// ErrStopped is returned for calls made after Stop.
	ErrStopped = errors.New("bridge stopped")
)

// Transport is the subset of *mqtt.Client the bridge needs.
type Transport interface {
	PublishJSON(topic string, qos byte, retained bool, payload interface{}) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Config identifies the remote device.
type Config struct {
	// Prefix is the topic root, mqtt.DefaultTopicPrefix when empty.
	Prefix       string
	DeviceType   string
	DeviceNumber int
	QoS          byte

	// ResponseTimeout bounds each call in addition to the caller's context.
	ResponseTimeout time.Duration

	// FirmwareVersion is reported in DriverVersion, "remote" when empty.
	FirmwareVersion string

	// Source names this server in request envelopes.
	Source string
}

// HookRequest is the payload of a request envelope.
type HookRequest struct {
	Hook string          `json:"hook"`
	Args json.RawMessage `json:"args,omitempty"`
}

// HookResponse is the payload of a response envelope. A non-empty Error
// fails the call; NotImplemented maps to ascomserver.ErrHookNotImplemented.
type HookResponse struct {
	Value          json.RawMessage `json:"value,omitempty"`
	Error          string          `json:"error,omitempty"`
	NotImplemented bool            `json:"not_implemented,omitempty"`
}

// RemoteError is a failure reported by the firmware.
type RemoteError struct {
	Hook    string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("firmware rejected %s: %s", e.Hook, e.Message)
}

// Bridge correlates hook requests with firmware responses for one device.
type Bridge struct {
	transport Transport
	config    Config
	logger    *zap.Logger

	responseTopic string
	pending       sync.Map // correlation ID -> chan *mqtt.Message
	started       atomic.Bool
	stopped       atomic.Bool
	done          chan struct{}
}

// New creates a bridge. Call Start before making calls.
func New(transport Transport, config Config, logger *zap.Logger) (*Bridge, error) {
	if transport == nil {
		return nil, errors.New("transport cannot be nil")
	}
	if !ascomserver.IsKnownDeviceType(config.DeviceType) {
		return nil, fmt.Errorf("unsupported device type %q", config.DeviceType)
	}
	if config.DeviceNumber < 0 {
		return nil, fmt.Errorf("device number must be non-negative, got %d", config.DeviceNumber)
	}
	if config.ResponseTimeout <= 0 {
		config.ResponseTimeout = ascomserver.DefaultHookTimeout
	}
	if config.FirmwareVersion == "" {
		config.FirmwareVersion = "remote"
	}
	if config.Source == "" {
		config.Source = "alpaca-server"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Bridge{
		transport:     transport,
		config:        config,
		responseTopic: mqtt.DriverResponseTopic(config.Prefix, config.DeviceType, config.DeviceNumber),
		done:          make(chan struct{}),
		logger: logger.With(
			zap.String("component", "mqtt_bridge"),
			zap.String("device", ascomserver.DeviceKey(config.DeviceType, config.DeviceNumber))),
	}, nil
}

// Start subscribes to the device's response topic.
func (b *Bridge) Start() error {
	if b.stopped.Load() {
		return ErrStopped
	}
	if err := b.transport.Subscribe(b.responseTopic, b.config.QoS, b.handleResponse); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.responseTopic, err)
	}
	b.started.Store(true)
	b.logger.Info("MQTT bridge started", zap.String("response_topic", b.responseTopic))
	return nil
}

// Stop unsubscribes and fails every call still waiting for an answer.
func (b *Bridge) Stop() error {
	if !b.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(b.done)
	if !b.started.Load() {
		return nil
	}
	return b.transport.Unsubscribe(b.responseTopic)
}

// FirmwareVersion implements handlers.Driver.
func (b *Bridge) FirmwareVersion() string {
	return b.config.FirmwareVersion
}

// Call invokes hook on the firmware with args and decodes the reply value
// into reply, which may be nil for hooks without a result.
func (b *Bridge) Call(ctx context.Context, hook string, args, reply interface{}) error {
	if b.stopped.Load() {
		return ErrStopped
	}
	if !b.started.Load() {
		return fmt.Errorf("%s: bridge not started", hook)
	}

	req := HookRequest{Hook: hook}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("failed to encode %s arguments: %w", hook, err)
		}
		req.Args = raw
	}
	msg, err := mqtt.NewMessage(mqtt.MessageTypeRequest, b.config.Source, req)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", hook, err)
	}

	ch := make(chan *mqtt.Message, 1)
	b.pending.Store(msg.ID, ch)
	defer b.pending.Delete(msg.ID)

	topic := mqtt.DriverRequestTopic(b.config.Prefix, b.config.DeviceType, b.config.DeviceNumber, hook)
	if err := b.transport.PublishJSON(topic, b.config.QoS, false, msg); err != nil {
		return fmt.Errorf("failed to publish %s request: %w", hook, err)
	}
	b.logger.Debug("Published hook request",
		zap.String("hook", hook),
		zap.String("request_id", msg.ID))

	timer := time.NewTimer(b.config.ResponseTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		return decodeResponse(hook, resp, reply)
	case <-b.done:
		return ErrStopped
	case <-timer.C:
		b.logger.Warn("Hook request timed out",
			zap.String("hook", hook),
			zap.String("request_id", msg.ID),
			zap.Duration("timeout", b.config.ResponseTimeout))
		return fmt.Errorf("%s: %w", hook, ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func decodeResponse(hook string, msg *mqtt.Message, reply interface{}) error {
	var resp HookResponse
	if err := msg.UnmarshalPayload(&resp); err != nil {
		return fmt.Errorf("malformed %s response: %w", hook, err)
	}
	if resp.NotImplemented {
		return ascomserver.ErrHookNotImplemented
	}
	if resp.Error != "" {
		return &RemoteError{Hook: hook, Message: resp.Error}
	}
	if reply == nil {
		return nil
	}
	if len(resp.Value) == 0 {
		return fmt.Errorf("%s response carries no value", hook)
	}
	if err := json.Unmarshal(resp.Value, reply); err != nil {
		return fmt.Errorf("malformed %s value: %w", hook, err)
	}
	return nil
}

// handleResponse routes a response envelope to the waiting call.
func (b *Bridge) handleResponse(topic string, payload []byte) error {
	var msg mqtt.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to parse response on %s: %w", topic, err)
	}
	if msg.CorrelationID == "" {
		return fmt.Errorf("response on %s has no correlation id", topic)
	}

	value, ok := b.pending.Load(msg.CorrelationID)
	if !ok {
		b.logger.Debug("Response for unknown or expired request",
			zap.String("correlation_id", msg.CorrelationID))
		return nil
	}
	select {
	case value.(chan *mqtt.Message) <- &msg:
	default:
		b.logger.Warn("Duplicate response dropped",
			zap.String("correlation_id", msg.CorrelationID))
	}
	return nil
}
