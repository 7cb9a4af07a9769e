package sim

import "context"

// SafetyMonitor simulates a rain/cloud sensor with a settable verdict.
type SafetyMonitor struct {
	base

	safe bool
}

// NewSafetyMonitor returns a monitor that reports safe.
func NewSafetyMonitor() *SafetyMonitor {
	return &SafetyMonitor{safe: true}
}

// SetSafe changes the simulated condition.
func (s *SafetyMonitor) SetSafe(safe bool) {
	s.mu.Lock()
	s.safe = safe
	s.mu.Unlock()
}

func (s *SafetyMonitor) IsSafe(ctx context.Context) (bool, error) {
	if err := s.check(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.safe, nil
}
