package ascomserver

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-alpaca/pkg/mqtt"
)

// DeviceEvent describes a state change observed by a device handler.
type DeviceEvent struct {
	DeviceType   string      `json:"device_type"`
	DeviceNumber int         `json:"device_number"`
	Property     string      `json:"property"`
	Value        interface{} `json:"value"`
	Timestamp    time.Time   `json:"timestamp"`
}

// EventPublisher receives device events. Publish must not block the caller.
type EventPublisher interface {
	Publish(ev DeviceEvent)
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(DeviceEvent) {}

// JSONPublisher is the subset of *mqtt.Client used to publish events.
type JSONPublisher interface {
	PublishJSON(topic string, qos byte, retained bool, payload interface{}) error
}

// MQTTEventPublisher forwards device events to MQTT from a background
// goroutine. Events are dropped when the queue is full.
type MQTTEventPublisher struct {
	client  JSONPublisher
	prefix  string
	qos     byte
	queue   chan DeviceEvent
	metrics *Metrics
	logger  *zap.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMQTTEventPublisher creates a publisher. Call Start before publishing.
func NewMQTTEventPublisher(client JSONPublisher, prefix string, qos byte, queueSize int, metrics *Metrics, logger *zap.Logger) *MQTTEventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &MQTTEventPublisher{
		client:  client,
		prefix:  prefix,
		qos:     qos,
		queue:   make(chan DeviceEvent, queueSize),
		metrics: metrics,
		logger:  logger.With(zap.String("component", "events")),
		stopCh:  make(chan struct{}),
	}
}

// Start launches the delivery goroutine.
func (p *MQTTEventPublisher) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop drains queued events and waits for the delivery goroutine to exit.
func (p *MQTTEventPublisher) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
}

// Publish enqueues ev without blocking.
func (p *MQTTEventPublisher) Publish(ev DeviceEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	select {
	case p.queue <- ev:
	default:
		p.metrics.observeDroppedEvent()
		p.logger.Warn("Event queue full, dropping event",
			zap.String("device", DeviceKey(ev.DeviceType, ev.DeviceNumber)),
			zap.String("property", ev.Property))
	}
}

func (p *MQTTEventPublisher) run() {
	defer p.wg.Done()
	for {
		select {
		case ev := <-p.queue:
			p.deliver(ev)
		case <-p.stopCh:
			for {
				select {
				case ev := <-p.queue:
					p.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *MQTTEventPublisher) deliver(ev DeviceEvent) {
	source := DeviceKey(ev.DeviceType, ev.DeviceNumber)
	msg, err := mqtt.NewMessage(mqtt.MessageTypeEvent, source, ev)
	if err != nil {
		p.logger.Error("Failed to encode event", zap.String("device", source), zap.Error(err))
		return
	}

	topic := mqtt.DeviceEventTopic(p.prefix, ev.DeviceType, ev.DeviceNumber, ev.Property)
	// Retained so that late subscribers see the latest state.
	if err := p.client.PublishJSON(topic, p.qos, true, msg); err != nil {
		p.logger.Warn("Failed to publish event",
			zap.String("topic", topic),
			zap.Error(err))
	}
}
