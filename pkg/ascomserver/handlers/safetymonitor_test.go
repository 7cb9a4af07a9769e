package handlers_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
	"github.com/unklstewy/bigskies-alpaca/pkg/drivers/sim"
)

func TestSafetyMonitor(t *testing.T) {
	drv := sim.NewSafetyMonitor()
	h, err := handlers.NewSafetyMonitorHandler(0, drv, handlers.Options{})
	require.NoError(t, err)
	r := newRig(t, h)
	pub := &recordingPublisher{}
	r.server.SetEventPublisher(pub)

	t.Run("not connected reports unsafe", func(t *testing.T) {
		resp := r.get("issafe", "5")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		assert.Equal(t, false, resp.Value)
	})

	r.connect("5")

	t.Run("connected reads hardware", func(t *testing.T) {
		resp := r.get("issafe", "5")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		assert.Equal(t, true, resp.Value)

		drv.SetSafe(false)
		assert.Equal(t, false, r.get("issafe", "5").Value)
	})

	t.Run("events on change only", func(t *testing.T) {
		var values []interface{}
		for _, ev := range pub.events {
			if ev.Property == "issafe" {
				values = append(values, ev.Value)
			}
		}
		assert.Equal(t, []interface{}{true, false}, values)
	})

	t.Run("unidentified client gets cached value", func(t *testing.T) {
		resp := r.get("issafe", "")
		assert.Equal(t, ascomserver.ErrorCodeInvalidValue, resp.ErrorNumber)
		assert.Equal(t, false, resp.Value)
	})

	t.Run("hook failure", func(t *testing.T) {
		drv.InjectFault(errors.New("sensor offline"))
		defer drv.InjectFault(nil)
		resp := r.get("issafe", "5")
		assert.Equal(t, ascomserver.ErrorCodeDriverError, resp.ErrorNumber)
		assert.Nil(t, resp.Value)
	})

	t.Run("no optional commands", func(t *testing.T) {
		resp := r.get("supportedactions", "5")
		require.Zero(t, resp.ErrorNumber)
		assert.Equal(t, []interface{}{}, resp.Value)
	})
}
