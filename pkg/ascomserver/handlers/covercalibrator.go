package handlers

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"go.uber.org/zap"

	"github.com/unklstewy/bigskies-alpaca/pkg/ascomserver"
)

// CoverState is the ASCOM CoverStatus enumeration.
type CoverState int

const (
	CoverNotPresent CoverState = iota
	CoverClosed
	CoverMoving
	CoverOpen
	CoverUnknown
	CoverError
)

func (s CoverState) String() string {
	if s < CoverNotPresent || s > CoverError {
		s = CoverError
	}
	return [...]string{"NotPresent", "Closed", "Moving", "Open", "Unknown", "Error"}[s]
}

// CalibratorState is the ASCOM CalibratorStatus enumeration.
type CalibratorState int

const (
	CalibratorNotPresent CalibratorState = iota
	CalibratorOff
	CalibratorNotReady
	CalibratorReady
	CalibratorUnknown
	CalibratorError
)

func (s CalibratorState) String() string {
	if s < CalibratorNotPresent || s > CalibratorError {
		s = CalibratorError
	}
	return [...]string{"NotPresent", "Off", "NotReady", "Ready", "Unknown", "Error"}[s]
}

// CoverCalibratorInterfaceVersion is the ICoverCalibratorV1 interface.
const CoverCalibratorInterfaceVersion = 1

// CoverCalibratorDriver controls a motorised dust cover with a flat-field
// panel. A device may have either part or both.
type CoverCalibratorDriver interface {
	Driver
	CoverPresent() bool
	CalibratorPresent() bool
	MaxBrightness() int
	OpenCover(ctx context.Context) error
	CloseCover(ctx context.Context) error
	HaltCover(ctx context.Context) error
	CoverState(ctx context.Context) (CoverState, error)
	CalibratorOn(ctx context.Context, brightness int) error
	CalibratorOff(ctx context.Context) error
	Brightness(ctx context.Context) (int, error)
}

// CoverCalibratorHandler implements the CoverCalibrator device type.
type CoverCalibratorHandler struct {
	*ascomserver.Device

	driver CoverCalibratorDriver

	mu         sync.Mutex
	cover      CoverState
	calibrator CalibratorState
}

// NewCoverCalibratorHandler creates a cover calibrator. Unless opts says
// otherwise, all optional command endpoints are enabled, so the driver must
// implement the action and command hooks.
func NewCoverCalibratorHandler(number int, driver CoverCalibratorDriver, opts Options) (*CoverCalibratorHandler, error) {
	if driver == nil {
		return nil, errNilDriver
	}
	if driver.CalibratorPresent() && driver.MaxBrightness() <= 0 {
		return nil, fmt.Errorf("max brightness must be positive, got %d", driver.MaxBrightness())
	}
	d, err := newDevice(ascomserver.DeviceTypeCoverCalibrator, number, CoverCalibratorInterfaceVersion, driver, opts, ascomserver.AllCapabilities())
	if err != nil {
		return nil, err
	}

	h := &CoverCalibratorHandler{
		Device:     d,
		driver:     driver,
		cover:      CoverNotPresent,
		calibrator: CalibratorNotPresent,
	}
	if driver.CoverPresent() {
		h.cover = CoverUnknown
	}
	if driver.CalibratorPresent() {
		h.calibrator = CalibratorOff
	}
	if err := d.RegisterAll(h.routes()); err != nil {
		return nil, err
	}
	return h, nil
}

// AlpacaDevice implements DeviceHandler.
func (h *CoverCalibratorHandler) AlpacaDevice() *ascomserver.Device { return h.Device }

func (h *CoverCalibratorHandler) routes() []ascomserver.Route {
	return []ascomserver.Route{
		{Method: http.MethodGet, Action: "brightness", Handler: h.brightness},
		{Method: http.MethodGet, Action: "calibratorstate", Handler: h.calibratorState},
		{Method: http.MethodGet, Action: "coverstate", Handler: h.coverState},
		{Method: http.MethodGet, Action: "maxbrightness", Handler: h.maxBrightness},
		{Method: http.MethodPut, Action: "calibratoroff", Handler: h.calibratorOff},
		{Method: http.MethodPut, Action: "calibratoron", Handler: h.calibratorOn},
		{Method: http.MethodPut, Action: "closecover", Handler: h.closeCover},
		{Method: http.MethodPut, Action: "haltcover", Handler: h.haltCover},
		{Method: http.MethodPut, Action: "opencover", Handler: h.openCover},
	}
}

// State returns the last known cover and calibrator states.
func (h *CoverCalibratorHandler) State() (CoverState, CalibratorState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cover, h.calibrator
}

func (h *CoverCalibratorHandler) setCover(s CoverState) {
	h.mu.Lock()
	changed := h.cover != s
	h.cover = s
	h.mu.Unlock()
	if changed {
		h.Logger().Info("Cover state changed", zap.Stringer("state", s))
		h.Emit("coverstate", int(s))
	}
}

func (h *CoverCalibratorHandler) setCalibrator(s CalibratorState) {
	h.mu.Lock()
	changed := h.calibrator != s
	h.calibrator = s
	h.mu.Unlock()
	if changed {
		h.Logger().Info("Calibrator state changed", zap.Stringer("state", s))
		h.Emit("calibratorstate", int(s))
	}
}

func (h *CoverCalibratorHandler) coverState(r *ascomserver.Request) ascomserver.Result {
	cover, _ := h.State()
	if cover == CoverNotPresent {
		return r.Constant(ascomserver.IntValue(int(CoverNotPresent)))
	}
	return readState(r, "CoverState", ascomserver.IntValue(int(cover)), func(ctx context.Context) (ascomserver.Value, error) {
		s, err := h.driver.CoverState(ctx)
		if err != nil {
			return ascomserver.NoValue, err
		}
		h.setCover(s)
		return ascomserver.IntValue(int(s)), nil
	})
}

// calibratorState reports the handler's own view; the panel has no
// independent readback.
func (h *CoverCalibratorHandler) calibratorState(r *ascomserver.Request) ascomserver.Result {
	_, calibrator := h.State()
	return r.ReadOnly(ascomserver.IntValue(int(calibrator)))
}

func (h *CoverCalibratorHandler) maxBrightness(r *ascomserver.Request) ascomserver.Result {
	if !h.driver.CalibratorPresent() {
		return r.NotImplemented("MaxBrightness")
	}
	return r.Constant(ascomserver.IntValue(h.driver.MaxBrightness()))
}

func (h *CoverCalibratorHandler) brightness(r *ascomserver.Request) ascomserver.Result {
	if !h.driver.CalibratorPresent() {
		return r.NotImplemented("Brightness")
	}
	if err := r.Connected("Brightness"); err != nil {
		return ascomserver.Fail(err)
	}
	ctx, cancel := r.HookContext()
	defer cancel()
	b, err := h.driver.Brightness(ctx)
	if err != nil {
		return ascomserver.Fail(ascomserver.HookError("Brightness", err))
	}
	return ascomserver.OK(ascomserver.IntValue(b))
}

func (h *CoverCalibratorHandler) openCover(r *ascomserver.Request) ascomserver.Result {
	return h.moveCover(r, "OpenCover", CoverOpen, h.driver.OpenCover)
}

func (h *CoverCalibratorHandler) closeCover(r *ascomserver.Request) ascomserver.Result {
	return h.moveCover(r, "CloseCover", CoverClosed, h.driver.CloseCover)
}

func (h *CoverCalibratorHandler) moveCover(r *ascomserver.Request, op string, done CoverState, hook func(ctx context.Context) error) ascomserver.Result {
	if !h.driver.CoverPresent() {
		return r.NotImplemented(op)
	}
	if err := r.Connected(op); err != nil {
		return ascomserver.Fail(err)
	}

	h.setCover(CoverMoving)
	if err := callHook(r, op, hook); err != nil {
		h.setCover(CoverError)
		return ascomserver.Fail(err)
	}
	h.setCover(done)
	return ascomserver.Done()
}

// haltCover stops the cover and adopts whatever position the hardware then
// reports.
func (h *CoverCalibratorHandler) haltCover(r *ascomserver.Request) ascomserver.Result {
	if !h.driver.CoverPresent() {
		return r.NotImplemented("HaltCover")
	}
	if err := r.Connected("HaltCover"); err != nil {
		return ascomserver.Fail(err)
	}
	if err := callHook(r, "HaltCover", h.driver.HaltCover); err != nil {
		h.setCover(CoverError)
		return ascomserver.Fail(err)
	}

	ctx, cancel := r.HookContext()
	defer cancel()
	s, err := h.driver.CoverState(ctx)
	if err != nil {
		s = CoverUnknown
	}
	h.setCover(s)
	return ascomserver.Done()
}

func (h *CoverCalibratorHandler) calibratorOn(r *ascomserver.Request) ascomserver.Result {
	if !h.driver.CalibratorPresent() {
		return r.NotImplemented("CalibratorOn")
	}
	brightness, perr := r.IntParam("Brightness")
	if perr != nil {
		return ascomserver.Fail(perr)
	}
	if err := r.Connected("CalibratorOn"); err != nil {
		return ascomserver.Fail(err)
	}
	if limit := h.driver.MaxBrightness(); brightness < 0 || brightness > limit {
		return ascomserver.Fail(ascomserver.InvalidValue("Brightness",
			fmt.Sprintf("%d outside 0..%d", brightness, limit)))
	}

	h.setCalibrator(CalibratorNotReady)
	err := callHook(r, "CalibratorOn", func(ctx context.Context) error {
		return h.driver.CalibratorOn(ctx, brightness)
	})
	if err != nil {
		h.setCalibrator(CalibratorError)
		return ascomserver.Fail(err)
	}
	h.setCalibrator(CalibratorReady)
	return ascomserver.Done()
}

func (h *CoverCalibratorHandler) calibratorOff(r *ascomserver.Request) ascomserver.Result {
	if !h.driver.CalibratorPresent() {
		return r.NotImplemented("CalibratorOff")
	}
	if err := r.Connected("CalibratorOff"); err != nil {
		return ascomserver.Fail(err)
	}
	if err := callHook(r, "CalibratorOff", h.driver.CalibratorOff); err != nil {
		h.setCalibrator(CalibratorError)
		return ascomserver.Fail(err)
	}
	h.setCalibrator(CalibratorOff)
	return ascomserver.Done()
}
