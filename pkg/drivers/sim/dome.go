package sim

import (
	"context"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
)

// Dome simulates a roll-off roof. Until the first command its position is
// unknown, which it reports as ShutterError.
type Dome struct {
	base

	shutter handlers.ShutterState
	slewing bool
}

// NewDome returns a simulated dome with an unknown shutter position.
func NewDome() *Dome {
	return &Dome{shutter: handlers.ShutterError}
}

// SetShutter forces the simulated shutter position.
func (d *Dome) SetShutter(s handlers.ShutterState) {
	d.mu.Lock()
	d.shutter = s
	d.mu.Unlock()
}

func (d *Dome) OpenShutter(ctx context.Context) error {
	return d.move(ctx, handlers.ShutterOpening, handlers.ShutterOpen)
}

func (d *Dome) CloseShutter(ctx context.Context) error {
	return d.move(ctx, handlers.ShutterClosing, handlers.ShutterClosed)
}

func (d *Dome) move(ctx context.Context, moving, done handlers.ShutterState) error {
	if err := d.check(); err != nil {
		d.SetShutter(handlers.ShutterError)
		return err
	}
	d.mu.Lock()
	d.shutter, d.slewing = moving, true
	d.mu.Unlock()

	err := d.travel(ctx)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.slewing = false
	if err != nil {
		d.shutter = handlers.ShutterError
		return err
	}
	d.shutter = done
	return nil
}

// AbortSlew stops the roof where it is. A roof stopped mid-travel is
// neither open nor closed.
func (d *Dome) AbortSlew(ctx context.Context) error {
	if err := d.check(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.slewing {
		d.shutter = handlers.ShutterError
	}
	d.slewing = false
	return nil
}

func (d *Dome) ShutterStatus(ctx context.Context) (handlers.ShutterState, error) {
	if err := d.check(); err != nil {
		return handlers.ShutterError, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutter, nil
}

func (d *Dome) Slewing(ctx context.Context) (bool, error) {
	if err := d.check(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.slewing, nil
}
