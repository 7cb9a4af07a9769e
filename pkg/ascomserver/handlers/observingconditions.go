package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
)

// ObservingConditionsInterfaceVersion is the IObservingConditionsV1 interface.
const ObservingConditionsInterfaceVersion = 1

// Sensor names as used in the Alpaca action paths and SensorName parameter.
const (
	SensorCloudCover     = "cloudcover"
	SensorDewPoint       = "dewpoint"
	SensorHumidity       = "humidity"
	SensorPressure       = "pressure"
	SensorRainRate       = "rainrate"
	SensorSkyBrightness  = "skybrightness"
	SensorSkyQuality     = "skyquality"
	SensorSkyTemperature = "skytemperature"
	SensorStarFWHM       = "starfwhm"
	SensorTemperature    = "temperature"
	SensorWindDirection  = "winddirection"
	SensorWindGust       = "windgust"
	SensorWindSpeed      = "windspeed"
)

// Sensors lists every ObservingConditions sensor.
var Sensors = []string{
	SensorCloudCover, SensorDewPoint, SensorHumidity, SensorPressure,
	SensorRainRate, SensorSkyBrightness, SensorSkyQuality, SensorSkyTemperature,
	SensorStarFWHM, SensorTemperature, SensorWindDirection, SensorWindGust,
	SensorWindSpeed,
}

// IsSensor reports whether name is a known sensor, ignoring case.
func IsSensor(name string) bool {
	name = strings.ToLower(name)
	for _, s := range Sensors {
		if s == name {
			return true
		}
	}
	return false
}

// ObservingConditionsDriver reads a weather station. Sensors the station
// lacks return ascomserver.ErrHookNotImplemented.
type ObservingConditionsDriver interface {
	Driver
	Sensor(ctx context.Context, name string) (float64, error)
	SensorDescription(name string) (string, error)
	Refresh(ctx context.Context) error

	// TimeSinceLastUpdate returns seconds since name was last updated, or
	// since any sensor was updated when name is empty.
	TimeSinceLastUpdate(ctx context.Context, name string) (float64, error)
}

// ObservingConditionsHandler implements the ObservingConditions device type.
// Readings are instantaneous; averaging is not supported.
type ObservingConditionsHandler struct {
	*ascomserver.Device

	driver ObservingConditionsDriver
}

// NewObservingConditionsHandler creates a weather station.
func NewObservingConditionsHandler(number int, driver ObservingConditionsDriver, opts Options) (*ObservingConditionsHandler, error) {
	if driver == nil {
		return nil, errNilDriver
	}
	d, err := newDevice(ascomserver.DeviceTypeObservingConditions, number, ObservingConditionsInterfaceVersion, driver, opts, ascomserver.Capabilities{})
	if err != nil {
		return nil, err
	}

	h := &ObservingConditionsHandler{Device: d, driver: driver}
	if err := d.RegisterAll(h.routes()); err != nil {
		return nil, err
	}
	return h, nil
}

// AlpacaDevice implements DeviceHandler.
func (h *ObservingConditionsHandler) AlpacaDevice() *ascomserver.Device { return h.Device }

func (h *ObservingConditionsHandler) routes() []ascomserver.Route {
	routes := []ascomserver.Route{
		{Method: http.MethodGet, Action: "averageperiod", Handler: constant(ascomserver.FloatValue(0))},
		{Method: http.MethodPut, Action: "averageperiod", Handler: h.putAveragePeriod},
		{Method: http.MethodPut, Action: "refresh", Handler: h.refresh},
		{Method: http.MethodGet, Action: "sensordescription", Handler: h.sensorDescription},
		{Method: http.MethodGet, Action: "timesincelastupdate", Handler: h.timeSinceLastUpdate},
	}
	for _, name := range Sensors {
		routes = append(routes, ascomserver.Route{
			Method:  http.MethodGet,
			Action:  name,
			Handler: h.sensor(name),
		})
	}
	return routes
}

func (h *ObservingConditionsHandler) sensor(name string) ascomserver.HandlerFunc {
	return func(r *ascomserver.Request) ascomserver.Result {
		if err := r.Connected(name); err != nil {
			return ascomserver.Fail(err)
		}
		ctx, cancel := r.HookContext()
		defer cancel()
		v, err := h.driver.Sensor(ctx, name)
		if err != nil {
			return ascomserver.Fail(ascomserver.HookError(name, err))
		}
		return ascomserver.OK(ascomserver.FloatValue(v))
	}
}

func (h *ObservingConditionsHandler) putAveragePeriod(r *ascomserver.Request) ascomserver.Result {
	period, perr := r.FloatParam("AveragePeriod")
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	if err := r.Connected("AveragePeriod"); err != nil {
		return ascomserver.Fail(err)
	}
	if period != 0 {
		return ascomserver.Fail(ascomserver.InvalidValue("AveragePeriod",
			fmt.Sprintf("%g not supported, only instantaneous readings", period)))
	}
	return ascomserver.Done()
}

func (h *ObservingConditionsHandler) refresh(r *ascomserver.Request) ascomserver.Result {
	if err := r.Connected("Refresh"); err != nil {
		return ascomserver.Fail(err)
	}
	if err := callHook(r, "Refresh", h.driver.Refresh); err != nil {
		return ascomserver.Fail(err)
	}
	h.Emit("refresh", true)
	return ascomserver.Done()
}

func (h *ObservingConditionsHandler) sensorName(r *ascomserver.Request, allowEmpty bool) (string, *ascomserver.Error) {
	name, perr := r.Param("SensorName")
	if perr != nil {
		return "", perr
	}
	if name == "" && allowEmpty {
		return "", nil
	}
	if !IsSensor(name) {
		return "", ascomserver.InvalidValue("SensorName", fmt.Sprintf("unknown sensor %q", name))
	}
	return strings.ToLower(name), nil
}

func (h *ObservingConditionsHandler) sensorDescription(r *ascomserver.Request) ascomserver.Result {
	name, perr := h.sensorName(r, false)
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	if err := r.Client(); err != nil {
		return ascomserver.Fail(err)
	}
	desc, err := h.driver.SensorDescription(name)
	if err != nil {
		return ascomserver.Fail(ascomserver.HookError("SensorDescription", err))
	}
	return ascomserver.OK(ascomserver.PlainStringValue(desc))
}

func (h *ObservingConditionsHandler) timeSinceLastUpdate(r *ascomserver.Request) ascomserver.Result {
	name, perr := h.sensorName(r, true)
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	if err := r.Connected("TimeSinceLastUpdate"); err != nil {
		return ascomserver.Fail(err)
	}
	ctx, cancel := r.HookContext()
	defer cancel()
	secs, err := h.driver.TimeSinceLastUpdate(ctx, name)
	if err != nil {
		return ascomserver.Fail(ascomserver.HookError("TimeSinceLastUpdate", err))
	}
	return ascomserver.OK(ascomserver.FloatValue(secs))
}
