package handlers_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
	"github.com/unklstewy/bigskies-alpaca/pkg/drivers/sim"
)

func TestFocuser(t *testing.T) {
	drv := sim.NewFocuser(1000)
	h, err := handlers.NewFocuserHandler(1, drv, handlers.Options{})
	require.NoError(t, err)
	r := newRig(t, h)
	r.connect("11")

	t.Run("interface version", func(t *testing.T) {
		assert.Equal(t, float64(3), r.get("interfaceversion", "11").Value)
	})

	t.Run("constants", func(t *testing.T) {
		assert.Equal(t, true, r.get("absolute", "11").Value)
		assert.Equal(t, float64(1000), r.get("maxstep", "11").Value)
		assert.Equal(t, float64(1000), r.get("maxincrement", "11").Value)
		assert.Equal(t, false, r.get("tempcompavailable", "11").Value)
		assert.Equal(t, false, r.get("tempcomp", "11").Value)
		assert.Equal(t, ascomserver.ErrorCodeNotImplemented, r.get("stepsize", "11").ErrorNumber)
	})

	t.Run("move", func(t *testing.T) {
		resp := r.put("move", "11", "Position", "250")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		assert.Equal(t, float64(250), r.get("position", "11").Value)
		assert.Equal(t, false, r.get("ismoving", "11").Value)
	})

	t.Run("move range", func(t *testing.T) {
		for _, pos := range []string{"-1", "1001"} {
			resp := r.put("move", "11", "Position", pos)
			assert.Equal(t, ascomserver.ErrorCodeInvalidValue, resp.ErrorNumber, pos)
		}
		resp := r.put("move", "11", "Position", "1000")
		assert.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
	})

	t.Run("move parameter errors", func(t *testing.T) {
		assert.Equal(t, ascomserver.ErrorCodeValueNotSet, r.put("move", "11").ErrorNumber)
		assert.Equal(t, ascomserver.ErrorCodeInvalidValue, r.put("move", "11", "Position", "far").ErrorNumber)
	})

	t.Run("temperature compensation", func(t *testing.T) {
		assert.Zero(t, r.put("tempcomp", "11", "TempComp", "false").ErrorNumber)
		assert.Equal(t, ascomserver.ErrorCodeNotImplemented, r.put("tempcomp", "11", "TempComp", "true").ErrorNumber)
	})

	t.Run("temperature", func(t *testing.T) {
		drv.SetTemperature(4.5)
		resp := r.get("temperature", "11")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		assert.Equal(t, 4.5, resp.Value)
		assert.Equal(t, ascomserver.ErrorCodeNotConnected, r.get("temperature", "12").ErrorNumber)
	})

	t.Run("halt", func(t *testing.T) {
		assert.Zero(t, r.put("halt", "11").ErrorNumber)
		assert.Equal(t, ascomserver.ErrorCodeNotConnected, r.put("halt", "12").ErrorNumber)
	})

	t.Run("not connected position is cached", func(t *testing.T) {
		resp := r.get("position", "12")
		assert.Equal(t, ascomserver.ErrorCodeNotConnected, resp.ErrorNumber)
		assert.Equal(t, float64(1000), resp.Value)
	})
}

func TestNewFocuserHandlerRejectsZeroTravel(t *testing.T) {
	_, err := handlers.NewFocuserHandler(0, zeroFocuser{sim.NewFocuser(10)}, handlers.Options{})
	assert.Error(t, err)
}

type zeroFocuser struct{ *sim.Focuser }

func (zeroFocuser) MaxStep() int { return 0 }
