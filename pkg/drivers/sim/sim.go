// Package sim provides in-memory drivers for every supported device type.
// They back the server when no hardware is attached and serve as fixtures
// for handler tests.
package sim

import (
	"context"
	"sync"
	"time"
)

// DefaultFirmwareVersion is reported by simulated drivers.
const DefaultFirmwareVersion = "sim-1.0"

// base holds what every simulated driver shares: the fault injection slot
// and the simulated travel time of motions.
type base struct {
	mu       sync.Mutex
	fault    error
	delay    time.Duration
	firmware string
}

// FirmwareVersion implements handlers.Driver.
func (b *base) FirmwareVersion() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.firmware == "" {
		return DefaultFirmwareVersion
	}
	return b.firmware
}

// SetFirmwareVersion changes the reported firmware version.
func (b *base) SetFirmwareVersion(v string) {
	b.mu.Lock()
	b.firmware = v
	b.mu.Unlock()
}

// InjectFault makes every following hook call fail with err until it is
// cleared with a nil error.
func (b *base) InjectFault(err error) {
	b.mu.Lock()
	b.fault = err
	b.mu.Unlock()
}

// SetDelay sets how long simulated motions take.
func (b *base) SetDelay(d time.Duration) {
	b.mu.Lock()
	b.delay = d
	b.mu.Unlock()
}

func (b *base) check() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fault
}

// travel waits for the simulated motion to complete, returning early with
// the context error when the caller gives up.
func (b *base) travel(ctx context.Context) error {
	if err := b.check(); err != nil {
		return err
	}
	b.mu.Lock()
	d := b.delay
	b.mu.Unlock()
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
