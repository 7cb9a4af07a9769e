package ascomserver

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/bigskies-alpaca/pkg/mqtt"
)

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (r *recordingPublisher) PublishJSON(topic string, qos byte, retained bool, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, published{topic: topic, qos: qos, retained: retained, payload: data})
	return r.err
}

func (r *recordingPublisher) messages() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.msgs...)
}

func TestMQTTEventPublisher(t *testing.T) {
	t.Run("delivers retained events on device topics", func(t *testing.T) {
		rec := &recordingPublisher{}
		p := NewMQTTEventPublisher(rec, "obs", 1, 8, nil, nil)
		p.Start()

		p.Publish(DeviceEvent{DeviceType: "dome", DeviceNumber: 0, Property: "shutterstatus", Value: 1})
		p.Stop()

		msgs := rec.messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "obs/alpaca/dome/0/event/shutterstatus", msgs[0].topic)
		assert.Equal(t, byte(1), msgs[0].qos)
		assert.True(t, msgs[0].retained)

		var msg mqtt.Message
		require.NoError(t, json.Unmarshal(msgs[0].payload, &msg))
		assert.Equal(t, mqtt.MessageTypeEvent, msg.Type)
		assert.Equal(t, "dome-0", msg.Source)

		var ev DeviceEvent
		require.NoError(t, msg.UnmarshalPayload(&ev))
		assert.Equal(t, "shutterstatus", ev.Property)
		assert.False(t, ev.Timestamp.IsZero())
	})

	t.Run("drops when the queue is full", func(t *testing.T) {
		metrics := NewMetrics()
		rec := &recordingPublisher{}
		p := NewMQTTEventPublisher(rec, "obs", 0, 2, metrics, nil)

		// Not started, so nothing drains the queue.
		for i := 0; i < 5; i++ {
			p.Publish(DeviceEvent{DeviceType: "switch", Property: "value", Value: i})
		}
		assert.Equal(t, float64(3), testutil.ToFloat64(metrics.eventsDropped))

		p.Start()
		p.Stop()
		assert.Len(t, rec.messages(), 2)
	})

	t.Run("publish failures do not stop delivery", func(t *testing.T) {
		rec := &recordingPublisher{err: errors.New("broker gone")}
		p := NewMQTTEventPublisher(rec, "obs", 0, 4, nil, nil)
		p.Start()
		p.Publish(DeviceEvent{DeviceType: "dome", Property: "slewing"})
		p.Publish(DeviceEvent{DeviceType: "dome", Property: "slewing"})
		p.Stop()
		assert.Len(t, rec.messages(), 2)
	})
}

func TestDeviceEmit(t *testing.T) {
	rec := &recordingPublisher{}
	p := NewMQTTEventPublisher(rec, "obs", 0, 4, nil, nil)
	p.Start()

	s, _ := newTestServer(t, newTestDevice(t, "safetymonitor", 2))
	s.SetEventPublisher(p)
	d, ok := s.Device("safetymonitor", 2)
	require.True(t, ok)

	d.Emit("issafe", true)
	p.Stop()

	msgs := rec.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "obs/alpaca/safetymonitor/2/event/issafe", msgs[0].topic)
}
