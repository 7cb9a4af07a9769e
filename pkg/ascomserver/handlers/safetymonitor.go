package handlers

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
)

// SafetyMonitorInterfaceVersion is the ISafetyMonitorV1 interface.
const SafetyMonitorInterfaceVersion = 1

// SafetyMonitorDriver reads the observatory safety condition.
type SafetyMonitorDriver interface {
	Driver
	IsSafe(ctx context.Context) (bool, error)
}

// SafetyMonitorHandler implements the SafetyMonitor device type.
type SafetyMonitorHandler struct {
	*ascomserver.Device

	driver SafetyMonitorDriver

	mu     sync.Mutex
	isSafe bool
}

// NewSafetyMonitorHandler creates a safety monitor.
func NewSafetyMonitorHandler(number int, driver SafetyMonitorDriver, opts Options) (*SafetyMonitorHandler, error) {
	if driver == nil {
		return nil, errNilDriver
	}
	d, err := newDevice(ascomserver.DeviceTypeSafetyMonitor, number, SafetyMonitorInterfaceVersion, driver, opts, ascomserver.Capabilities{})
	if err != nil {
		return nil, err
	}

	h := &SafetyMonitorHandler{Device: d, driver: driver}
	err = d.Register(http.MethodGet, "issafe", h.getIsSafe)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// AlpacaDevice implements DeviceHandler.
func (h *SafetyMonitorHandler) AlpacaDevice() *ascomserver.Device { return h.Device }

// getIsSafe reports false to clients that are not connected, as ASCOM
// requires, so that an unattended client never sees a stale "safe".
func (h *SafetyMonitorHandler) getIsSafe(r *ascomserver.Request) ascomserver.Result {
	h.mu.Lock()
	cached := h.isSafe
	h.mu.Unlock()

	if err := r.Client(); err != nil {
		return ascomserver.Partial(ascomserver.BoolValue(cached), err)
	}
	if !r.Session().Connected {
		return ascomserver.OK(ascomserver.BoolValue(false))
	}

	ctx, cancel := r.HookContext()
	defer cancel()
	safe, err := h.driver.IsSafe(ctx)
	if err != nil {
		return ascomserver.Fail(ascomserver.HookError("IsSafe", err))
	}

	h.mu.Lock()
	changed := h.isSafe != safe
	h.isSafe = safe
	h.mu.Unlock()
	if changed {
		h.Logger().Info("Safety condition changed", zap.Bool("is_safe", safe))
		h.Emit("issafe", safe)
	}
	return ascomserver.OK(ascomserver.BoolValue(safe))
}
