package sim

import (
	"context"
	"fmt"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
)

// Switch simulates a power distribution box. Even channels are on/off
// relays, odd channels are 0..100 dimmers, and the last channel is a
// read-only sensor.
type Switch struct {
	base

	switches []handlers.SwitchDescriptor
	values   []float64
}

// NewSwitch returns a bank of n channels, at least one.
func NewSwitch(n int) *Switch {
	if n <= 0 {
		n = 1
	}
	s := &Switch{
		switches: make([]handlers.SwitchDescriptor, n),
		values:   make([]float64, n),
	}
	for i := range s.switches {
		sw := handlers.SwitchDescriptor{
			Name:        fmt.Sprintf("Relay %d", i),
			Description: fmt.Sprintf("Simulated relay %d", i),
			Min:         0,
			Max:         1,
			Step:        1,
			CanWrite:    true,
		}
		if i%2 == 1 {
			sw.Name = fmt.Sprintf("Dimmer %d", i)
			sw.Description = fmt.Sprintf("Simulated dimmer %d", i)
			sw.Max = 100
		}
		if n > 1 && i == n-1 {
			sw.Name = fmt.Sprintf("Sensor %d", i)
			sw.Description = "Simulated read-only input"
			sw.CanWrite = false
		}
		s.switches[i] = sw
	}
	return s
}

func (s *Switch) Switches() []handlers.SwitchDescriptor {
	return append([]handlers.SwitchDescriptor(nil), s.switches...)
}

// Set changes a channel without going through the write checks, as an
// external input would.
func (s *Switch) Set(id int, v float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id >= 0 && id < len(s.values) {
		s.values[id] = v
	}
}

func (s *Switch) SwitchValue(ctx context.Context, id int) (float64, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.values) {
		return 0, fmt.Errorf("no switch %d", id)
	}
	return s.values[id], nil
}

func (s *Switch) SetSwitchValue(ctx context.Context, id int, value float64) error {
	if err := s.check(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.values) {
		return fmt.Errorf("no switch %d", id)
	}
	if !s.switches[id].CanWrite {
		return fmt.Errorf("switch %d is read-only", id)
	}
	s.values[id] = value
	return nil
}
