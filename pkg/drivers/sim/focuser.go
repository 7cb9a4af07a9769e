package sim

import (
	"context"
	"fmt"
)

// DefaultMaxStep is the travel of a focuser created with a zero max step.
const DefaultMaxStep = 50000

// Focuser simulates an absolute focuser with a temperature probe.
type Focuser struct {
	base

	maxStep     int
	position    int
	moving      bool
	temperature float64
}

// NewFocuser returns a focuser parked at the middle of its travel.
func NewFocuser(maxStep int) *Focuser {
	if maxStep <= 0 {
		maxStep = DefaultMaxStep
	}
	return &Focuser{maxStep: maxStep, position: maxStep / 2, temperature: 10}
}

func (f *Focuser) MaxStep() int { return f.maxStep }

func (f *Focuser) MaxIncrement() int { return f.maxStep }

// SetTemperature changes the probe reading.
func (f *Focuser) SetTemperature(c float64) {
	f.mu.Lock()
	f.temperature = c
	f.mu.Unlock()
}

func (f *Focuser) Position(ctx context.Context) (int, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.position, nil
}

func (f *Focuser) IsMoving(ctx context.Context) (bool, error) {
	if err := f.check(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.moving, nil
}

func (f *Focuser) Move(ctx context.Context, position int) error {
	if position < 0 || position > f.maxStep {
		return fmt.Errorf("position %d outside 0..%d", position, f.maxStep)
	}
	if err := f.check(); err != nil {
		return err
	}
	f.mu.Lock()
	f.moving = true
	f.mu.Unlock()

	err := f.travel(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.moving = false
	if err != nil {
		return err
	}
	f.position = position
	return nil
}

func (f *Focuser) Halt(ctx context.Context) error {
	if err := f.check(); err != nil {
		return err
	}
	f.mu.Lock()
	f.moving = false
	f.mu.Unlock()
	return nil
}

func (f *Focuser) Temperature(ctx context.Context) (float64, error) {
	if err := f.check(); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.temperature, nil
}
