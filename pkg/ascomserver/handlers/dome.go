package handlers

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
)

// ShutterState is the ASCOM ShutterState enumeration.
type ShutterState int

const (
	ShutterOpen ShutterState = iota
	ShutterClosed
	ShutterOpening
	ShutterClosing
	ShutterError
)

func (s ShutterState) String() string {
	switch s {
	case ShutterOpen:
		return "Open"
	case ShutterClosed:
		return "Closed"
	case ShutterOpening:
		return "Opening"
	case ShutterClosing:
		return "Closing"
	default:
		return "Error"
	}
}

// DomeInterfaceVersion is the IDomeV1 interface.
const DomeInterfaceVersion = 1

// DomeDriver is the hardware side of a dome shutter. Open and Close return
// once the shutter has finished moving or failed.
type DomeDriver interface {
	Driver
	AbortSlew(ctx context.Context) error
	OpenShutter(ctx context.Context) error
	CloseShutter(ctx context.Context) error
	ShutterStatus(ctx context.Context) (ShutterState, error)
	Slewing(ctx context.Context) (bool, error)
}

// DomeHandler implements the Dome device type for a roll-off roof or clamshell
// shutter. Azimuth, altitude, parking and slaving are not supported.
type DomeHandler struct {
	*ascomserver.Device

	driver DomeDriver

	mu      sync.Mutex
	shutter ShutterState
	slewing bool
}

// NewDomeHandler creates a dome. The shutter reports Error until the
// hardware says otherwise.
func NewDomeHandler(number int, driver DomeDriver, opts Options) (*DomeHandler, error) {
	if driver == nil {
		return nil, errNilDriver
	}
	d, err := newDevice(ascomserver.DeviceTypeDome, number, DomeInterfaceVersion, driver, opts, ascomserver.Capabilities{})
	if err != nil {
		return nil, err
	}

	h := &DomeHandler{
		Device:  d,
		driver:  driver,
		shutter: ShutterError,
	}
	if err := d.RegisterAll(h.routes()); err != nil {
		return nil, err
	}
	return h, nil
}

// AlpacaDevice implements DeviceHandler.
func (h *DomeHandler) AlpacaDevice() *ascomserver.Device { return h.Device }

func (h *DomeHandler) routes() []ascomserver.Route {
	return []ascomserver.Route{
		{Method: http.MethodPut, Action: "abortslew", Handler: h.abortSlew},
		{Method: http.MethodPut, Action: "closeshutter", Handler: h.closeShutter},
		{Method: http.MethodPut, Action: "openshutter", Handler: h.openShutter},
		{Method: http.MethodPut, Action: "findhome", Handler: notImplemented("FindHome")},
		{Method: http.MethodPut, Action: "park", Handler: notImplemented("Park")},
		{Method: http.MethodPut, Action: "setpark", Handler: notImplemented("SetPark")},
		{Method: http.MethodPut, Action: "slewtoaltitude", Handler: notImplemented("SlewToAltitude")},
		{Method: http.MethodPut, Action: "slewtoazimuth", Handler: notImplemented("SlewToAzimuth")},
		{Method: http.MethodPut, Action: "synctoazimuth", Handler: notImplemented("SyncToAzimuth")},
		{Method: http.MethodPut, Action: "slaved", Handler: notImplemented("Slaved")},

		{Method: http.MethodGet, Action: "altitude", Handler: notImplemented("Altitude")},
		{Method: http.MethodGet, Action: "athome", Handler: notImplemented("AtHome")},
		{Method: http.MethodGet, Action: "atpark", Handler: notImplemented("AtPark")},
		{Method: http.MethodGet, Action: "azimuth", Handler: notImplemented("Azimuth")},

		{Method: http.MethodGet, Action: "canfindhome", Handler: constant(ascomserver.BoolValue(false))},
		{Method: http.MethodGet, Action: "canpark", Handler: constant(ascomserver.BoolValue(false))},
		{Method: http.MethodGet, Action: "cansetaltitude", Handler: constant(ascomserver.BoolValue(false))},
		{Method: http.MethodGet, Action: "cansetazimuth", Handler: constant(ascomserver.BoolValue(false))},
		{Method: http.MethodGet, Action: "cansetpark", Handler: constant(ascomserver.BoolValue(false))},
		{Method: http.MethodGet, Action: "cansetshutter", Handler: constant(ascomserver.BoolValue(true))},
		{Method: http.MethodGet, Action: "canslave", Handler: constant(ascomserver.BoolValue(false))},
		{Method: http.MethodGet, Action: "cansyncazimuth", Handler: constant(ascomserver.BoolValue(false))},
		{Method: http.MethodGet, Action: "slaved", Handler: constant(ascomserver.BoolValue(false))},

		{Method: http.MethodGet, Action: "shutterstatus", Handler: h.shutterStatus},
		{Method: http.MethodGet, Action: "slewing", Handler: h.getSlewing},
	}
}

// State returns the last known shutter state and slewing flag.
func (h *DomeHandler) State() (ShutterState, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.shutter, h.slewing
}

func (h *DomeHandler) setState(shutter ShutterState, slewing bool) {
	h.mu.Lock()
	changedShutter := h.shutter != shutter
	changedSlewing := h.slewing != slewing
	h.shutter, h.slewing = shutter, slewing
	h.mu.Unlock()

	if changedShutter {
		h.Logger().Info("Shutter state changed", zap.Stringer("state", shutter))
		h.Emit("shutterstatus", int(shutter))
	}
	if changedSlewing {
		h.Emit("slewing", slewing)
	}
}

func (h *DomeHandler) abortSlew(r *ascomserver.Request) ascomserver.Result {
	if err := r.Connected("AbortSlew"); err != nil {
		return ascomserver.Fail(err)
	}

	shutter, _ := h.State()
	h.setState(shutter, false)
	if err := callHook(r, "AbortSlew", h.driver.AbortSlew); err != nil {
		h.setState(ShutterError, false)
		return ascomserver.Fail(err)
	}
	return ascomserver.Done()
}

func (h *DomeHandler) openShutter(r *ascomserver.Request) ascomserver.Result {
	return h.moveShutter(r, "OpenShutter", ShutterOpening, ShutterOpen, h.driver.OpenShutter)
}

func (h *DomeHandler) closeShutter(r *ascomserver.Request) ascomserver.Result {
	return h.moveShutter(r, "CloseShutter", ShutterClosing, ShutterClosed, h.driver.CloseShutter)
}

// moveShutter sets the transitional state before calling the hook, then the
// final state on success or Error on failure.
func (h *DomeHandler) moveShutter(r *ascomserver.Request, op string, moving, done ShutterState, hook func(ctx context.Context) error) ascomserver.Result {
	if err := r.Connected(op); err != nil {
		return ascomserver.Fail(err)
	}

	h.setState(moving, true)
	if err := callHook(r, op, hook); err != nil {
		h.setState(ShutterError, false)
		return ascomserver.Fail(err)
	}
	h.setState(done, false)
	return ascomserver.Done()
}

func (h *DomeHandler) shutterStatus(r *ascomserver.Request) ascomserver.Result {
	cached, _ := h.State()
	return readState(r, "ShutterStatus", ascomserver.IntValue(int(cached)), func(ctx context.Context) (ascomserver.Value, error) {
		state, err := h.driver.ShutterStatus(ctx)
		if err != nil {
			return ascomserver.NoValue, err
		}
		_, slewing := h.State()
		h.setState(state, slewing)
		return ascomserver.IntValue(int(state)), nil
	})
}

func (h *DomeHandler) getSlewing(r *ascomserver.Request) ascomserver.Result {
	_, cached := h.State()
	return readState(r, "Slewing", ascomserver.BoolValue(cached), func(ctx context.Context) (ascomserver.Value, error) {
		slewing, err := h.driver.Slewing(ctx)
		if err != nil {
			return ascomserver.NoValue, err
		}
		shutter, _ := h.State()
		h.setState(shutter, slewing)
		return ascomserver.BoolValue(slewing), nil
	})
}
