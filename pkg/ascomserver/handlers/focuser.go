package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
)

// FocuserInterfaceVersion is the IFocuserV3 interface.
const FocuserInterfaceVersion = 3

// FocuserDriver is an absolute-position focuser. Temperature may return
// ascomserver.ErrHookNotImplemented when no probe is fitted.
type FocuserDriver interface {
	Driver
	MaxStep() int
	MaxIncrement() int
	Position(ctx context.Context) (int, error)
	IsMoving(ctx context.Context) (bool, error)
	Move(ctx context.Context, position int) error
	Halt(ctx context.Context) error
	Temperature(ctx context.Context) (float64, error)
}

// FocuserHandler implements the Focuser device type. Temperature
// compensation is not supported.
type FocuserHandler struct {
	*ascomserver.Device

	driver FocuserDriver

	mu       sync.Mutex
	position int
	moving   bool
}

// NewFocuserHandler creates a focuser.
func NewFocuserHandler(number int, driver FocuserDriver, opts Options) (*FocuserHandler, error) {
	if driver == nil {
		return nil, errNilDriver
	}
	if driver.MaxStep() <= 0 {
		return nil, fmt.Errorf("focuser max step must be positive, got %d", driver.MaxStep())
	}
	d, err := newDevice(ascomserver.DeviceTypeFocuser, number, FocuserInterfaceVersion, driver, opts, ascomserver.Capabilities{})
	if err != nil {
		return nil, err
	}

	h := &FocuserHandler{Device: d, driver: driver}
	if err := d.RegisterAll(h.routes()); err != nil {
		return nil, err
	}
	return h, nil
}

// AlpacaDevice implements DeviceHandler.
func (h *FocuserHandler) AlpacaDevice() *ascomserver.Device { return h.Device }

func (h *FocuserHandler) routes() []ascomserver.Route {
	return []ascomserver.Route{
		{Method: http.MethodGet, Action: "absolute", Handler: constant(ascomserver.BoolValue(true))},
		{Method: http.MethodGet, Action: "maxstep", Handler: constant(ascomserver.IntValue(h.driver.MaxStep()))},
		{Method: http.MethodGet, Action: "maxincrement", Handler: constant(ascomserver.IntValue(h.driver.MaxIncrement()))},
		{Method: http.MethodGet, Action: "stepsize", Handler: notImplemented("StepSize")},
		{Method: http.MethodGet, Action: "tempcomp", Handler: constant(ascomserver.BoolValue(false))},
		{Method: http.MethodGet, Action: "tempcompavailable", Handler: constant(ascomserver.BoolValue(false))},
		{Method: http.MethodGet, Action: "ismoving", Handler: h.isMoving},
		{Method: http.MethodGet, Action: "position", Handler: h.getPosition},
		{Method: http.MethodGet, Action: "temperature", Handler: h.temperature},
		{Method: http.MethodPut, Action: "tempcomp", Handler: h.putTempComp},
		{Method: http.MethodPut, Action: "halt", Handler: h.halt},
		{Method: http.MethodPut, Action: "move", Handler: h.move},
	}
}

func (h *FocuserHandler) update(position int, moving bool) {
	h.mu.Lock()
	posChanged := h.position != position
	movingChanged := h.moving != moving
	h.position, h.moving = position, moving
	h.mu.Unlock()

	if posChanged {
		h.Emit("position", position)
	}
	if movingChanged {
		h.Emit("ismoving", moving)
	}
}

func (h *FocuserHandler) snapshot() (int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.position, h.moving
}

func (h *FocuserHandler) getPosition(r *ascomserver.Request) ascomserver.Result {
	position, _ := h.snapshot()
	return readState(r, "Position", ascomserver.IntValue(position), func(ctx context.Context) (ascomserver.Value, error) {
		pos, err := h.driver.Position(ctx)
		if err != nil {
			return ascomserver.NoValue, err
		}
		_, moving := h.snapshot()
		h.update(pos, moving)
		return ascomserver.IntValue(pos), nil
	})
}

func (h *FocuserHandler) isMoving(r *ascomserver.Request) ascomserver.Result {
	_, moving := h.snapshot()
	return readState(r, "IsMoving", ascomserver.BoolValue(moving), func(ctx context.Context) (ascomserver.Value, error) {
		m, err := h.driver.IsMoving(ctx)
		if err != nil {
			return ascomserver.NoValue, err
		}
		pos, _ := h.snapshot()
		h.update(pos, m)
		return ascomserver.BoolValue(m), nil
	})
}

func (h *FocuserHandler) temperature(r *ascomserver.Request) ascomserver.Result {
	if err := r.Connected("Temperature"); err != nil {
		return ascomserver.Fail(err)
	}
	ctx, cancel := r.HookContext()
	defer cancel()
	t, err := h.driver.Temperature(ctx)
	if err != nil {
		return ascomserver.Fail(ascomserver.HookError("Temperature", err))
	}
	return ascomserver.OK(ascomserver.FloatValue(t))
}

func (h *FocuserHandler) putTempComp(r *ascomserver.Request) ascomserver.Result {
	enable, perr := r.BoolParam("TempComp")
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	if err := r.Connected("TempComp"); err != nil {
		return ascomserver.Fail(err)
	}
	if enable {
		return ascomserver.Fail(ascomserver.CommandNotImplemented("TempComp"))
	}
	return ascomserver.Done()
}

func (h *FocuserHandler) halt(r *ascomserver.Request) ascomserver.Result {
	if err := r.Connected("Halt"); err != nil {
		return ascomserver.Fail(err)
	}
	if err := callHook(r, "Halt", h.driver.Halt); err != nil {
		return ascomserver.Fail(err)
	}
	pos, _ := h.snapshot()
	h.update(pos, false)
	return ascomserver.Done()
}

func (h *FocuserHandler) move(r *ascomserver.Request) ascomserver.Result {
	target, perr := r.IntParam("Position")
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	if err := r.Connected("Move"); err != nil {
		return ascomserver.Fail(err)
	}
	if target < 0 || target > h.driver.MaxStep() {
		return ascomserver.Fail(ascomserver.InvalidValue("Position",
			fmt.Sprintf("%d outside 0..%d", target, h.driver.MaxStep())))
	}

	pos, _ := h.snapshot()
	h.update(pos, true)
	err := callHook(r, "Move", func(ctx context.Context) error {
		return h.driver.Move(ctx, target)
	})
	if err != nil {
		h.update(pos, false)
		return ascomserver.Fail(err)
	}
	h.update(target, false)
	return ascomserver.Done()
}
