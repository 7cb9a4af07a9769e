package sim

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver/handlers"
)

// DefaultMaxBrightness is the panel range of a simulated calibrator.
const DefaultMaxBrightness = 1023

// CoverCalibrator simulates a flip-flat: a motorised cover with an
// electroluminescent panel. It also answers a small raw command set.
//
// Raw commands: "STATUS" (string), "LAMP?" (bool), "LAMP <n>" (blind).
// Actions: "PanelTest" returns "ok" and flashes the panel to full.
type CoverCalibrator struct {
	base

	maxBrightness int
	cover         handlers.CoverState
	brightness    int
	lampOn        bool
}

// NewCoverCalibrator returns a closed cover with the panel off.
func NewCoverCalibrator() *CoverCalibrator {
	return &CoverCalibrator{
		maxBrightness: DefaultMaxBrightness,
		cover:         handlers.CoverClosed,
	}
}

func (c *CoverCalibrator) CoverPresent() bool      { return true }
func (c *CoverCalibrator) CalibratorPresent() bool { return true }
func (c *CoverCalibrator) MaxBrightness() int      { return c.maxBrightness }

func (c *CoverCalibrator) OpenCover(ctx context.Context) error {
	return c.moveCover(ctx, handlers.CoverOpen)
}

func (c *CoverCalibrator) CloseCover(ctx context.Context) error {
	return c.moveCover(ctx, handlers.CoverClosed)
}

func (c *CoverCalibrator) moveCover(ctx context.Context, done handlers.CoverState) error {
	if err := c.check(); err != nil {
		return err
	}
	c.mu.Lock()
	c.cover = handlers.CoverMoving
	c.mu.Unlock()

	err := c.travel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.cover = handlers.CoverUnknown
		return err
	}
	c.cover = done
	return nil
}

// HaltCover leaves a moving cover at an unknown position.
func (c *CoverCalibrator) HaltCover(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cover == handlers.CoverMoving {
		c.cover = handlers.CoverUnknown
	}
	return nil
}

func (c *CoverCalibrator) CoverState(ctx context.Context) (handlers.CoverState, error) {
	if err := c.check(); err != nil {
		return handlers.CoverError, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cover, nil
}

func (c *CoverCalibrator) CalibratorOn(ctx context.Context, brightness int) error {
	if brightness < 0 || brightness > c.maxBrightness {
		return fmt.Errorf("brightness %d outside 0..%d", brightness, c.maxBrightness)
	}
	if err := c.travel(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	c.brightness, c.lampOn = brightness, true
	c.mu.Unlock()
	return nil
}

func (c *CoverCalibrator) CalibratorOff(ctx context.Context) error {
	if err := c.check(); err != nil {
		return err
	}
	c.mu.Lock()
	c.brightness, c.lampOn = 0, false
	c.mu.Unlock()
	return nil
}

func (c *CoverCalibrator) Brightness(ctx context.Context) (int, error) {
	if err := c.check(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.brightness, nil
}

// SupportedActions implements ascomserver.ActionHook.
func (c *CoverCalibrator) SupportedActions() []string {
	return []string{"PanelTest"}
}

// Action implements ascomserver.ActionHook.
func (c *CoverCalibrator) Action(ctx context.Context, action, parameters string) (string, error) {
	if !strings.EqualFold(action, "PanelTest") {
		return "", ascomserver.ErrHookNotImplemented
	}
	if err := c.CalibratorOn(ctx, c.maxBrightness); err != nil {
		return "", err
	}
	return "ok", nil
}

// CommandBlind implements ascomserver.CommandBlindHook.
func (c *CoverCalibrator) CommandBlind(ctx context.Context, command string, raw bool) error {
	fields := strings.Fields(command)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "LAMP") {
		return fmt.Errorf("unknown command %q", command)
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("bad lamp level %q: %w", fields[1], err)
	}
	if n == 0 {
		return c.CalibratorOff(ctx)
	}
	return c.CalibratorOn(ctx, n)
}

// CommandBool implements ascomserver.CommandBoolHook.
func (c *CoverCalibrator) CommandBool(ctx context.Context, command string, raw bool) (bool, error) {
	if !strings.EqualFold(strings.TrimSpace(command), "LAMP?") {
		return false, fmt.Errorf("unknown command %q", command)
	}
	if err := c.check(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lampOn, nil
}

// CommandString implements ascomserver.CommandStringHook.
func (c *CoverCalibrator) CommandString(ctx context.Context, command string, raw bool) (string, error) {
	if !strings.EqualFold(strings.TrimSpace(command), "STATUS") {
		return "", fmt.Errorf("unknown command %q", command)
	}
	if err := c.check(); err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("cover=%s lamp=%d", c.cover, c.brightness), nil
}
