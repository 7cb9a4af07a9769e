package handlers_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
	"github.com/unklstewy/bigskies-alpaca/pkg/drivers/sim"
)

func TestSwitch(t *testing.T) {
	drv := sim.NewSwitch(3)
	h, err := handlers.NewSwitchHandler(0, drv, handlers.Options{})
	require.NoError(t, err)
	r := newRig(t, h)
	r.connect("21")

	t.Run("descriptors", func(t *testing.T) {
		assert.Equal(t, float64(3), r.get("maxswitch", "21").Value)
		assert.Equal(t, "Relay 0", r.get("getswitchname", "21", "Id", "0").Value)
		assert.Equal(t, float64(100), r.get("maxswitchvalue", "21", "Id", "1").Value)
		assert.Equal(t, float64(0), r.get("minswitchvalue", "21", "Id", "1").Value)
		assert.Equal(t, float64(1), r.get("switchstep", "21", "Id", "1").Value)
		assert.Equal(t, false, r.get("canwrite", "21", "Id", "2").Value)
		assert.NotEmpty(t, r.get("getswitchdescription", "21", "Id", "2").Value)
	})

	t.Run("id range", func(t *testing.T) {
		for _, id := range []string{"-1", "3"} {
			resp := r.get("getswitchname", "21", "Id", id)
			assert.Equal(t, ascomserver.ErrorCodeInvalidValue, resp.ErrorNumber, id)
		}
		assert.Equal(t, ascomserver.ErrorCodeValueNotSet, r.get("getswitch", "21").ErrorNumber)
	})

	t.Run("boolean switch", func(t *testing.T) {
		require.Zero(t, r.put("setswitch", "21", "Id", "0", "State", "true").ErrorNumber)
		assert.Equal(t, true, r.get("getswitch", "21", "Id", "0").Value)
		assert.Equal(t, float64(1), r.get("getswitchvalue", "21", "Id", "0").Value)

		require.Zero(t, r.put("setswitch", "21", "Id", "0", "State", "false").ErrorNumber)
		assert.Equal(t, false, r.get("getswitch", "21", "Id", "0").Value)
	})

	t.Run("analogue switch", func(t *testing.T) {
		require.Zero(t, r.put("setswitchvalue", "21", "Id", "1", "Value", "37.5").ErrorNumber)
		assert.Equal(t, 37.5, r.get("getswitchvalue", "21", "Id", "1").Value)
		assert.Equal(t, true, r.get("getswitch", "21", "Id", "1").Value)

		resp := r.put("setswitchvalue", "21", "Id", "1", "Value", "101")
		assert.Equal(t, ascomserver.ErrorCodeInvalidValue, resp.ErrorNumber)
	})

	t.Run("read-only switch", func(t *testing.T) {
		resp := r.put("setswitch", "21", "Id", "2", "State", "true")
		assert.Equal(t, ascomserver.ErrorCodeNotImplemented, resp.ErrorNumber)
	})

	t.Run("rename", func(t *testing.T) {
		require.Zero(t, r.put("setswitchname", "21", "Id", "0", "Name", "Dew heater").ErrorNumber)
		assert.Equal(t, "Dew heater", r.get("getswitchname", "21", "Id", "0").Value)
		sw, ok := h.Switch(0)
		require.True(t, ok)
		assert.Equal(t, "Dew heater", sw.Name)

		resp := r.put("setswitchname", "21", "Id", "0", "Name", strings.Repeat("x", ascomserver.MaxNameLength+1))
		assert.NotZero(t, resp.ErrorNumber)
	})

	t.Run("writes need connection", func(t *testing.T) {
		resp := r.put("setswitch", "22", "Id", "0", "State", "true")
		assert.Equal(t, ascomserver.ErrorCodeNotConnected, resp.ErrorNumber)
	})
}

type badSwitch struct {
	*sim.Switch
	switches []handlers.SwitchDescriptor
}

func (b badSwitch) Switches() []handlers.SwitchDescriptor { return b.switches }

func TestNewSwitchHandlerValidation(t *testing.T) {
	cases := map[string][]handlers.SwitchDescriptor{
		"empty":         {},
		"inverted":      {{Name: "a", Min: 1, Max: 0, Step: 1}},
		"zero step":     {{Name: "a", Min: 0, Max: 1, Step: 0}},
		"name too long": {{Name: strings.Repeat("n", ascomserver.MaxNameLength+1), Min: 0, Max: 1, Step: 1}},
	}
	for name, switches := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := handlers.NewSwitchHandler(0, badSwitch{sim.NewSwitch(1), switches}, handlers.Options{})
			assert.Error(t, err)
		})
	}
}
