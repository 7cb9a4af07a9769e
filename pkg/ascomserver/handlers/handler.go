// Package handlers implements the Alpaca device types on top of the protocol
// core in package ascomserver.
//
// Each handler owns the state machine of one device type and talks to the
// hardware only through a driver interface injected at construction. The
// protocol details (client sessions, transaction IDs, response envelopes,
// error codes) stay in ascomserver; a handler only decides what each action
// means for its device.
package handlers

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
)

// DeviceHandler is implemented by every device-type handler.
type DeviceHandler interface {
	// AlpacaDevice returns the protocol device to register with the server.
	AlpacaDevice() *ascomserver.Device
}

// Driver is the part shared by every hardware driver.
type Driver interface {
	// FirmwareVersion is reported as the first half of DriverVersion.
	FirmwareVersion() string
}

// Options configures a device-type handler. Zero values fall back to
// per-type defaults.
type Options struct {
	Name        string
	Description string
	DriverInfo  string

	// FirmwareVersion overrides the version reported by the driver.
	FirmwareVersion string

	// Capabilities selects the optional command endpoints. Nil uses the
	// device type's defaults.
	Capabilities *ascomserver.Capabilities

	Logger *zap.Logger
}

var errNilDriver = errors.New("driver cannot be nil")

// newDevice builds the protocol device shared by all handlers: descriptor,
// common routes and the optional command endpoints.
func newDevice(deviceType string, number, interfaceVersion int, driver Driver, opts Options, defaults ascomserver.Capabilities) (*ascomserver.Device, error) {
	firmware := opts.FirmwareVersion
	if firmware == "" {
		firmware = driver.FirmwareVersion()
	}

	desc, err := ascomserver.NewDescriptor(deviceType, number, interfaceVersion, ascomserver.DescriptorConfig{
		Name:            opts.Name,
		Description:     opts.Description,
		DriverInfo:      opts.DriverInfo,
		FirmwareVersion: firmware,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s descriptor: %w", deviceType, err)
	}

	d := ascomserver.NewDevice(desc, opts.Logger)

	caps := defaults
	if opts.Capabilities != nil {
		caps = *opts.Capabilities
	}
	if err := d.EnableCommands(caps, driver); err != nil {
		return nil, err
	}
	return d, nil
}

func constant(v ascomserver.Value) ascomserver.HandlerFunc {
	return func(r *ascomserver.Request) ascomserver.Result {
		return r.Constant(v)
	}
}

func notImplemented(op string) ascomserver.HandlerFunc {
	return func(r *ascomserver.Request) ascomserver.Result {
		return r.NotImplemented(op)
	}
}

// readState answers a property that is refreshed from hardware on every
// read. Callers without a slot or without a connection get the cached value
// together with the error.
func readState(r *ascomserver.Request, op string, cached ascomserver.Value, read func(ctx context.Context) (ascomserver.Value, error)) ascomserver.Result {
	if err := r.Connected(op); err != nil {
		return ascomserver.Partial(cached, err)
	}
	ctx, cancel := r.HookContext()
	defer cancel()

	v, err := read(ctx)
	if err != nil {
		return ascomserver.Fail(ascomserver.HookError(op, err))
	}
	return ascomserver.OK(v)
}

// callHook runs a hardware command on behalf of a connected client.
func callHook(r *ascomserver.Request, op string, hook func(ctx context.Context) error) *ascomserver.Error {
	ctx, cancel := r.HookContext()
	defer cancel()
	return ascomserver.HookError(op, hook(ctx))
}
