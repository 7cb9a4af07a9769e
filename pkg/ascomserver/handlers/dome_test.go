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

func newDomeRig(t *testing.T) (*rig, *handlers.DomeHandler, *sim.Dome) {
	t.Helper()
	drv := sim.NewDome()
	h, err := handlers.NewDomeHandler(0, drv, handlers.Options{})
	require.NoError(t, err)
	return newRig(t, h), h, drv
}

func TestNewDomeHandler(t *testing.T) {
	_, err := handlers.NewDomeHandler(0, nil, handlers.Options{})
	assert.Error(t, err)

	h, err := handlers.NewDomeHandler(2, sim.NewDome(), handlers.Options{Name: "Roll-off roof", FirmwareVersion: "7.1"})
	require.NoError(t, err)
	desc := h.Descriptor()
	assert.Equal(t, "dome", desc.DeviceType)
	assert.Equal(t, 2, desc.DeviceNumber)
	assert.Equal(t, "Roll-off roof", desc.Name)
	assert.Equal(t, "7.1/"+ascomserver.LibraryVersion, desc.DriverVersion)

	shutter, slewing := h.State()
	assert.Equal(t, handlers.ShutterError, shutter)
	assert.False(t, slewing)
}

func TestDomeShutter(t *testing.T) {
	r, h, _ := newDomeRig(t)
	r.connect("7")

	t.Run("initial status is error", func(t *testing.T) {
		resp := r.get("shutterstatus", "7")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		assert.Equal(t, float64(handlers.ShutterError), resp.Value)
	})

	t.Run("open", func(t *testing.T) {
		resp := r.put("openshutter", "7")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		assert.Nil(t, resp.Value)

		shutter, slewing := h.State()
		assert.Equal(t, handlers.ShutterOpen, shutter)
		assert.False(t, slewing)
		assert.Equal(t, float64(handlers.ShutterOpen), r.get("shutterstatus", "7").Value)
		assert.Equal(t, false, r.get("slewing", "7").Value)
	})

	t.Run("close", func(t *testing.T) {
		resp := r.put("closeshutter", "7")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		shutter, _ := h.State()
		assert.Equal(t, handlers.ShutterClosed, shutter)
	})

	t.Run("abort keeps position", func(t *testing.T) {
		resp := r.put("abortslew", "7")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		shutter, slewing := h.State()
		assert.Equal(t, handlers.ShutterClosed, shutter)
		assert.False(t, slewing)
	})
}

func TestDomeHookFailure(t *testing.T) {
	r, h, drv := newDomeRig(t)
	r.connect("7")
	require.Zero(t, r.put("closeshutter", "7").ErrorNumber)

	drv.InjectFault(errors.New("limit switch stuck"))
	resp := r.put("openshutter", "7")
	assert.Equal(t, ascomserver.ErrorCodeDriverError, resp.ErrorNumber)
	assert.Contains(t, resp.ErrorMessage, "limit switch stuck")

	shutter, slewing := h.State()
	assert.Equal(t, handlers.ShutterError, shutter)
	assert.False(t, slewing)

	resp = r.put("abortslew", "7")
	assert.Equal(t, ascomserver.ErrorCodeDriverError, resp.ErrorNumber)

	drv.InjectFault(nil)
	require.Zero(t, r.put("openshutter", "7").ErrorNumber)
	shutter, _ = h.State()
	assert.Equal(t, handlers.ShutterOpen, shutter)
}

func TestDomeConnectionGate(t *testing.T) {
	r, h, _ := newDomeRig(t)

	t.Run("motion requires connection", func(t *testing.T) {
		resp := r.put("openshutter", "9")
		assert.Equal(t, ascomserver.ErrorCodeNotConnected, resp.ErrorNumber)
		shutter, _ := h.State()
		assert.Equal(t, handlers.ShutterError, shutter)
	})

	t.Run("status without connection returns cached value", func(t *testing.T) {
		resp := r.get("shutterstatus", "9")
		assert.Equal(t, ascomserver.ErrorCodeNotConnected, resp.ErrorNumber)
		assert.Equal(t, float64(handlers.ShutterError), resp.Value)
	})

	t.Run("unidentified client", func(t *testing.T) {
		resp := r.get("slewing", "")
		assert.Equal(t, ascomserver.ErrorCodeInvalidValue, resp.ErrorNumber)
		assert.Equal(t, false, resp.Value)

		resp = r.put("openshutter", "")
		assert.Equal(t, ascomserver.ErrorCodeInvalidValue, resp.ErrorNumber)
	})

	t.Run("connectionless client", func(t *testing.T) {
		resp := r.put("openshutter", "42424242")
		require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
		shutter, _ := h.State()
		assert.Equal(t, handlers.ShutterOpen, shutter)
	})
}

func TestDomeCapabilities(t *testing.T) {
	r, _, _ := newDomeRig(t)

	for _, action := range []string{"canfindhome", "canpark", "cansetaltitude", "cansetazimuth", "cansetpark", "canslave", "cansyncazimuth", "slaved"} {
		t.Run(action, func(t *testing.T) {
			resp := r.get(action, "3")
			require.Zero(t, resp.ErrorNumber, resp.ErrorMessage)
			assert.Equal(t, false, resp.Value)
		})
	}

	resp := r.get("cansetshutter", "3")
	require.Zero(t, resp.ErrorNumber)
	assert.Equal(t, true, resp.Value)

	resp = r.get("cansetshutter", "")
	assert.Equal(t, ascomserver.ErrorCodeInvalidValue, resp.ErrorNumber)
	assert.Nil(t, resp.Value)
}

func TestDomeUnsupported(t *testing.T) {
	r, _, _ := newDomeRig(t)
	r.connect("3")

	puts := map[string][]string{
		"findhome":       nil,
		"park":           nil,
		"setpark":        nil,
		"slewtoaltitude": {"Altitude", "45"},
		"slewtoazimuth":  {"Azimuth", "180"},
		"synctoazimuth":  {"Azimuth", "180"},
		"slaved":         {"Slaved", "true"},
	}
	for action, kv := range puts {
		t.Run("PUT "+action, func(t *testing.T) {
			resp := r.put(action, "3", kv...)
			assert.Equal(t, ascomserver.ErrorCodeNotImplemented, resp.ErrorNumber)
		})
	}

	for _, action := range []string{"altitude", "athome", "atpark", "azimuth"} {
		t.Run("GET "+action, func(t *testing.T) {
			resp := r.get(action, "3")
			assert.Equal(t, ascomserver.ErrorCodeNotImplemented, resp.ErrorNumber)
			assert.Nil(t, resp.Value)
		})
	}

	t.Run("unidentified client sees client error first", func(t *testing.T) {
		resp := r.get("azimuth", "0")
		assert.Equal(t, ascomserver.ErrorCodeInvalidValue, resp.ErrorNumber)
	})
}

type recordingPublisher struct {
	events []ascomserver.DeviceEvent
}

func (p *recordingPublisher) Publish(ev ascomserver.DeviceEvent) {
	p.events = append(p.events, ev)
}

func TestDomeEmitsStateChanges(t *testing.T) {
	r, _, _ := newDomeRig(t)
	pub := &recordingPublisher{}
	r.server.SetEventPublisher(pub)
	r.connect("7")

	require.Zero(t, r.put("openshutter", "7").ErrorNumber)

	var shutter []interface{}
	var slewing []interface{}
	for _, ev := range pub.events {
		switch ev.Property {
		case "shutterstatus":
			shutter = append(shutter, ev.Value)
		case "slewing":
			slewing = append(slewing, ev.Value)
		}
	}
	assert.Equal(t, []interface{}{int(handlers.ShutterOpening), int(handlers.ShutterOpen)}, shutter)
	assert.Equal(t, []interface{}{true, false}, slewing)
}
