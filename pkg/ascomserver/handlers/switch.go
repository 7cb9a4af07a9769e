package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
)

// SwitchInterfaceVersion is the ISwitchV1 interface.
const SwitchInterfaceVersion = 1

// SwitchDescriptor describes one switch channel. A boolean switch has
// Min 0, Max 1 and Step 1.
type SwitchDescriptor struct {
	Name        string
	Description string
	Min         float64
	Max         float64
	Step        float64
	CanWrite    bool
}

// SwitchDriver controls a bank of switches. Switches is read once at
// construction.
type SwitchDriver interface {
	Driver
	Switches() []SwitchDescriptor
	SwitchValue(ctx context.Context, id int) (float64, error)
	SetSwitchValue(ctx context.Context, id int, value float64) error
}

// SwitchHandler implements the Switch device type.
type SwitchHandler struct {
	*ascomserver.Device

	driver SwitchDriver

	mu       sync.RWMutex
	switches []SwitchDescriptor
}

// NewSwitchHandler creates a switch bank.
func NewSwitchHandler(number int, driver SwitchDriver, opts Options) (*SwitchHandler, error) {
	if driver == nil {
		return nil, errNilDriver
	}
	switches := append([]SwitchDescriptor(nil), driver.Switches()...)
	if len(switches) == 0 {
		return nil, errors.New("switch driver reports no switches")
	}
	for i, sw := range switches {
		if sw.Max <= sw.Min || sw.Step <= 0 {
			return nil, fmt.Errorf("switch %d: invalid range %g..%g step %g", i, sw.Min, sw.Max, sw.Step)
		}
		if len(sw.Name) > ascomserver.MaxNameLength {
			return nil, fmt.Errorf("switch %d: name longer than %d bytes", i, ascomserver.MaxNameLength)
		}
	}

	d, err := newDevice(ascomserver.DeviceTypeSwitch, number, SwitchInterfaceVersion, driver, opts, ascomserver.Capabilities{})
	if err != nil {
		return nil, err
	}

	h := &SwitchHandler{Device: d, driver: driver, switches: switches}
	if err := d.RegisterAll(h.routes()); err != nil {
		return nil, err
	}
	return h, nil
}

// AlpacaDevice implements DeviceHandler.
func (h *SwitchHandler) AlpacaDevice() *ascomserver.Device { return h.Device }

func (h *SwitchHandler) routes() []ascomserver.Route {
	return []ascomserver.Route{
		{Method: http.MethodGet, Action: "maxswitch", Handler: constant(ascomserver.IntValue(len(h.switches)))},
		{Method: http.MethodGet, Action: "canwrite", Handler: h.describe(func(sw SwitchDescriptor) ascomserver.Value {
			return ascomserver.BoolValue(sw.CanWrite)
		})},
		{Method: http.MethodGet, Action: "getswitchname", Handler: h.describe(func(sw SwitchDescriptor) ascomserver.Value {
			return ascomserver.PlainStringValue(sw.Name)
		})},
		{Method: http.MethodGet, Action: "getswitchdescription", Handler: h.describe(func(sw SwitchDescriptor) ascomserver.Value {
			return ascomserver.PlainStringValue(sw.Description)
		})},
		{Method: http.MethodGet, Action: "minswitchvalue", Handler: h.describe(func(sw SwitchDescriptor) ascomserver.Value {
			return ascomserver.FloatValue(sw.Min)
		})},
		{Method: http.MethodGet, Action: "maxswitchvalue", Handler: h.describe(func(sw SwitchDescriptor) ascomserver.Value {
			return ascomserver.FloatValue(sw.Max)
		})},
		{Method: http.MethodGet, Action: "switchstep", Handler: h.describe(func(sw SwitchDescriptor) ascomserver.Value {
			return ascomserver.FloatValue(sw.Step)
		})},
		{Method: http.MethodGet, Action: "getswitch", Handler: h.getSwitch},
		{Method: http.MethodGet, Action: "getswitchvalue", Handler: h.getSwitchValue},
		{Method: http.MethodPut, Action: "setswitch", Handler: h.setSwitch},
		{Method: http.MethodPut, Action: "setswitchname", Handler: h.setSwitchName},
		{Method: http.MethodPut, Action: "setswitchvalue", Handler: h.setSwitchValue},
	}
}

// Switch returns the current descriptor of switch id.
func (h *SwitchHandler) Switch(id int) (SwitchDescriptor, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if id < 0 || id >= len(h.switches) {
		return SwitchDescriptor{}, false
	}
	return h.switches[id], true
}

// switchID parses and range checks the Id parameter.
func (h *SwitchHandler) switchID(r *ascomserver.Request) (int, SwitchDescriptor, *ascomserver.Error) {
	id, perr := r.IntParam("Id")
	if perr != nil {
		return 0, SwitchDescriptor{}, perr
	}
	sw, ok := h.Switch(id)
	if !ok {
		return 0, SwitchDescriptor{}, ascomserver.InvalidValue("Id",
			fmt.Sprintf("%d outside 0..%d", id, len(h.switches)-1))
	}
	return id, sw, nil
}

func (h *SwitchHandler) describe(field func(sw SwitchDescriptor) ascomserver.Value) ascomserver.HandlerFunc {
	return func(r *ascomserver.Request) ascomserver.Result {
		_, sw, perr := h.switchID(r)
		if perr != nil {
			return ascomserver.Fail(perr)
		}
		return r.Constant(field(sw))
	}
}

func (h *SwitchHandler) readValue(r *ascomserver.Request, op string) (int, SwitchDescriptor, float64, *ascomserver.Error) {
	id, sw, perr := h.switchID(r)
	if perr != nil {
		return 0, sw, 0, perr
	}
	if err := r.Connected(op); err != nil {
		return 0, sw, 0, err
	}
	ctx, cancel := r.HookContext()
	defer cancel()
	v, err := h.driver.SwitchValue(ctx, id)
	if err != nil {
		return 0, sw, 0, ascomserver.HookError(op, err)
	}
	return id, sw, v, nil
}

func (h *SwitchHandler) getSwitch(r *ascomserver.Request) ascomserver.Result {
	_, sw, v, err := h.readValue(r, "GetSwitch")
	if err != nil {
		return ascomserver.Fail(err)
	}
	return ascomserver.OK(ascomserver.BoolValue(v > sw.Min))
}

func (h *SwitchHandler) getSwitchValue(r *ascomserver.Request) ascomserver.Result {
	_, _, v, err := h.readValue(r, "GetSwitchValue")
	if err != nil {
		return ascomserver.Fail(err)
	}
	return ascomserver.OK(ascomserver.FloatValue(v))
}

func (h *SwitchHandler) setSwitch(r *ascomserver.Request) ascomserver.Result {
	id, sw, perr := h.switchID(r)
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	state, perr := r.BoolParam("State")
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	value := sw.Min
	if state {
		value = sw.Max
	}
	return h.write(r, "SetSwitch", id, sw, value)
}

func (h *SwitchHandler) setSwitchValue(r *ascomserver.Request) ascomserver.Result {
	id, sw, perr := h.switchID(r)
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	value, perr := r.FloatParam("Value")
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	if math.IsNaN(value) || value < sw.Min || value > sw.Max {
		return ascomserver.Fail(ascomserver.InvalidValue("Value",
			fmt.Sprintf("%g outside %g..%g", value, sw.Min, sw.Max)))
	}
	return h.write(r, "SetSwitchValue", id, sw, value)
}

func (h *SwitchHandler) write(r *ascomserver.Request, op string, id int, sw SwitchDescriptor, value float64) ascomserver.Result {
	if err := r.Connected(op); err != nil {
		return ascomserver.Fail(err)
	}
	if !sw.CanWrite {
		return ascomserver.Fail(ascomserver.CommandNotImplemented(fmt.Sprintf("%s on read-only switch %d", op, id)))
	}
	err := callHook(r, op, func(ctx context.Context) error {
		return h.driver.SetSwitchValue(ctx, id, value)
	})
	if err != nil {
		return ascomserver.Fail(err)
	}
	h.Emit(fmt.Sprintf("switch/%d", id), value)
	return ascomserver.Done()
}

func (h *SwitchHandler) setSwitchName(r *ascomserver.Request) ascomserver.Result {
	id, _, perr := h.switchID(r)
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	name, perr := r.Param("Name")
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	if err := r.Connected("SetSwitchName"); err != nil {
		return ascomserver.Fail(err)
	}
	if name == "" || len(name) > ascomserver.MaxNameLength {
		return ascomserver.Fail(ascomserver.InvalidValue("Name",
			fmt.Sprintf("length must be 1..%d", ascomserver.MaxNameLength)))
	}

	h.mu.Lock()
	h.switches[id].Name = name
	h.mu.Unlock()
	return ascomserver.Done()
}
