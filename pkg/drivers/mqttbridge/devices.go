package mqttbridge

import (
	"context"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
)

// Hook names published by the device adapters.
const (
	HookAbortSlew     = "abortslew"
	HookOpenShutter   = "openshutter"
	HookCloseShutter  = "closeshutter"
	HookShutterStatus = "shutterstatus"
	HookSlewing       = "slewing"
	HookIsSafe        = "issafe"
)

// Dome drives a remote shutter controller.
type Dome struct {
	*Bridge
}

// NewDome wraps b as a handlers.DomeDriver.
func NewDome(b *Bridge) *Dome { return &Dome{Bridge: b} }

func (d *Dome) AbortSlew(ctx context.Context) error {
	return d.Call(ctx, HookAbortSlew, nil, nil)
}

func (d *Dome) OpenShutter(ctx context.Context) error {
	return d.Call(ctx, HookOpenShutter, nil, nil)
}

func (d *Dome) CloseShutter(ctx context.Context) error {
	return d.Call(ctx, HookCloseShutter, nil, nil)
}

func (d *Dome) ShutterStatus(ctx context.Context) (handlers.ShutterState, error) {
	var state int
	if err := d.Call(ctx, HookShutterStatus, nil, &state); err != nil {
		return handlers.ShutterError, err
	}
	if state < int(handlers.ShutterOpen) || state > int(handlers.ShutterError) {
		return handlers.ShutterError, nil
	}
	return handlers.ShutterState(state), nil
}

func (d *Dome) Slewing(ctx context.Context) (bool, error) {
	var slewing bool
	err := d.Call(ctx, HookSlewing, nil, &slewing)
	return slewing, err
}

// SafetyMonitor reads a remote safety sensor.
type SafetyMonitor struct {
	*Bridge
}

// NewSafetyMonitor wraps b as a handlers.SafetyMonitorDriver.
func NewSafetyMonitor(b *Bridge) *SafetyMonitor { return &SafetyMonitor{Bridge: b} }

func (s *SafetyMonitor) IsSafe(ctx context.Context) (bool, error) {
	var safe bool
	err := s.Call(ctx, HookIsSafe, nil, &safe)
	return safe, err
}
