package handlers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
	"github.com/unklstewy/bigskies-alpaca/pkg/drivers/sim"
)

func TestIsSensor(t *testing.T) {
	assert.True(t, handlers.IsSensor("Temperature"))
	assert.True(t, handlers.IsSensor("starfwhm"))
	assert.False(t, handlers.IsSensor("moonphase"))
	assert.Len(t, handlers.Sensors, 13)
}

func TestObservingConditions(t *testing.T) {
	drv := sim.NewObservingConditions()
	h, err := handlers.NewObservingConditionsHandler(0, drv, handlers.Options{})
	require.NoError(t, err)
	r := newRig(t, h)
	pub := &recordingPublisher{}
	r.server.SetEventPublisher(pub)
	r.connect("41")

	t.Run("fitted sensor", func(t *testing.T) {
		drv.Set(handlers.SensorTemperature, -2.25)
		resp := r.get("temperature", "41")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		assert.Equal(t, -2.25, resp.Value)
	})

	t.Run("missing sensor", func(t *testing.T) {
		resp := r.get("starfwhm", "41")
		assert.Equal(t, ascomserver.ErrorCodeNotImplemented, resp.ErrorNumber)
	})

	t.Run("sensor requires connection", func(t *testing.T) {
		resp := r.get("humidity", "42")
		assert.Equal(t, ascomserver.ErrorCodeNotConnected, resp.ErrorNumber)
	})

	t.Run("average period", func(t *testing.T) {
		assert.Equal(t, float64(0), r.get("averageperiod", "41").Value)
		assert.Zero(t, r.put("averageperiod", "41", "AveragePeriod", "0").ErrorNumber)
		assert.Equal(t, ascomserver.ErrorCodeInvalidValue, r.put("averageperiod", "41", "AveragePeriod", "0.5").ErrorNumber)
		assert.Equal(t, ascomserver.ErrorCodeValueNotSet, r.put("averageperiod", "41").ErrorNumber)
	})

	t.Run("sensor description", func(t *testing.T) {
		resp := r.get("sensordescription", "41", "SensorName", "Pressure")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		assert.Equal(t, "Simulated pressure sensor", resp.Value)

		assert.Equal(t, ascomserver.ErrorCodeInvalidValue, r.get("sensordescription", "41", "SensorName", "moonphase").ErrorNumber)
		assert.Equal(t, ascomserver.ErrorCodeNotImplemented, r.get("sensordescription", "41", "SensorName", "skyquality").ErrorNumber)
	})

	t.Run("refresh", func(t *testing.T) {
		require.Zero(t, r.put("refresh", "41").ErrorNumber)
		require.NotEmpty(t, pub.events)
		assert.Equal(t, "refresh", pub.events[len(pub.events)-1].Property)

		resp := r.get("timesincelastupdate", "41", "SensorName", "")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		assert.GreaterOrEqual(t, resp.Value, 0.0)

		resp = r.get("timesincelastupdate", "41", "SensorName", "temperature")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
	})
}
