package ascomserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// HandlerFunc implements one device action. It returns its outcome instead of
// writing to the connection; the Device emits the single envelope.
type HandlerFunc func(r *Request) Result

// Route binds a handler to an HTTP method and lower-case action name.
type Route struct {
	Method  string
	Action  string
	Handler HandlerFunc
}

// DescriptorConfig carries the operator-supplied identity of a device.
// Empty fields are replaced by per-type defaults.
type DescriptorConfig struct {
	Name            string
	Description     string
	DriverInfo      string
	FirmwareVersion string
}

// Descriptor is the immutable identity of a hosted device.
type Descriptor struct {
	DeviceType       string
	DeviceNumber     int
	Name             string
	Description      string
	DriverInfo       string
	DriverVersion    string
	InterfaceVersion int
	UniqueID         string
}

// NewDescriptor validates and completes a device identity. Strings that exceed
// their bounds are rejected rather than truncated.
func NewDescriptor(deviceType string, number, interfaceVersion int, cfg DescriptorConfig) (Descriptor, error) {
	deviceType = strings.ToLower(deviceType)
	if deviceType == "" {
		return Descriptor{}, fmt.Errorf("device type is required")
	}
	if number < 0 {
		return Descriptor{}, fmt.Errorf("device number must be non-negative, got %d", number)
	}
	if interfaceVersion < 1 {
		return Descriptor{}, fmt.Errorf("interface version must be at least 1, got %d", interfaceVersion)
	}

	typeName := DeviceTypeName(deviceType)
	if cfg.Name == "" {
		cfg.Name = fmt.Sprintf("%s-%d", typeName, number)
	}
	if cfg.Description == "" {
		cfg.Description = "Alpaca " + typeName
	}
	if cfg.DriverInfo == "" {
		cfg.DriverInfo = "BigSkies " + typeName + " driver"
	}
	if cfg.FirmwareVersion == "" {
		cfg.FirmwareVersion = "0.0.0"
	}

	desc := Descriptor{
		DeviceType:       deviceType,
		DeviceNumber:     number,
		Name:             cfg.Name,
		Description:      cfg.Description,
		DriverInfo:       cfg.DriverInfo,
		DriverVersion:    cfg.FirmwareVersion + "/" + LibraryVersion,
		InterfaceVersion: interfaceVersion,
		UniqueID:         uuid.NewSHA1(uuid.NameSpaceOID, []byte(DeviceKey(deviceType, number))).String(),
	}

	checks := []struct {
		field string
		value string
		max   int
	}{
		{"name", desc.Name, MaxNameLength},
		{"description", desc.Description, MaxDescriptionLength},
		{"driverinfo", desc.DriverInfo, MaxDriverInfoLength},
		{"driverversion", desc.DriverVersion, MaxVersionLength},
	}
	for _, c := range checks {
		if len(c.value) > c.max {
			return Descriptor{}, fmt.Errorf("%s for %s is %d bytes, max %d", c.field, DeviceKey(deviceType, number), len(c.value), c.max)
		}
	}
	return desc, nil
}

// Capabilities selects which optional command endpoints a device exposes.
type Capabilities struct {
	Action        bool `json:"action" yaml:"action" mapstructure:"action"`
	CommandBlind  bool `json:"commandblind" yaml:"commandblind" mapstructure:"commandblind"`
	CommandBool   bool `json:"commandbool" yaml:"commandbool" mapstructure:"commandbool"`
	CommandString bool `json:"commandstring" yaml:"commandstring" mapstructure:"commandstring"`
}

// AllCapabilities enables every optional command endpoint.
func AllCapabilities() Capabilities {
	return Capabilities{Action: true, CommandBlind: true, CommandBool: true, CommandString: true}
}

// ActionHook is implemented by drivers that accept device-specific actions.
type ActionHook interface {
	SupportedActions() []string
	Action(ctx context.Context, action, parameters string) (string, error)
}

// CommandBlindHook is implemented by drivers that accept raw commands without a reply.
type CommandBlindHook interface {
	CommandBlind(ctx context.Context, command string, raw bool) error
}

// CommandBoolHook is implemented by drivers that accept raw commands with a boolean reply.
type CommandBoolHook interface {
	CommandBool(ctx context.Context, command string, raw bool) (bool, error)
}

// CommandStringHook is implemented by drivers that accept raw commands with a string reply.
type CommandStringHook interface {
	CommandString(ctx context.Context, command string, raw bool) (string, error)
}

type routeKey struct {
	method string
	action string
}

type routeStatus int

const (
	routeFound routeStatus = iota
	routeUnknownAction
	routeWrongMethod
)

// Device is the protocol half of a hosted device: its identity, its callback
// table, its client sessions and its service counter. Device-type handlers
// add their own routes on top of the common ones.
type Device struct {
	desc        Descriptor
	routes      map[routeKey]HandlerFunc
	actions     map[string]bool
	sessions    *SessionRegistry
	metrics     *Metrics
	events      EventPublisher
	hookTimeout time.Duration
	served      atomic.Uint64
	actionHook  ActionHook
	logger      *zap.Logger
}

// NewDevice creates a device with the common routes registered. Its session
// table uses the package defaults until the device is added to a Server.
func NewDevice(desc Descriptor, logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(
		zap.String("component", "device"),
		zap.String("device", DeviceKey(desc.DeviceType, desc.DeviceNumber)))

	d := &Device{
		desc:        desc,
		routes:      make(map[routeKey]HandlerFunc),
		actions:     make(map[string]bool),
		sessions:    NewSessionRegistry(DefaultMaxClients, DefaultClientTimeout, logger),
		events:      NopPublisher{},
		hookTimeout: DefaultHookTimeout,
		logger:      logger,
	}
	d.registerCommonRoutes()
	return d
}

// Descriptor returns the device identity.
func (d *Device) Descriptor() Descriptor {
	return d.desc
}

// Logger returns the device-scoped logger.
func (d *Device) Logger() *zap.Logger {
	return d.logger
}

// Sessions exposes the device's client table.
func (d *Device) Sessions() *SessionRegistry {
	return d.sessions
}

// ServiceCount returns the number of requests handled so far.
func (d *Device) ServiceCount() uint64 {
	return d.served.Load()
}

// SetHookTimeout bounds every hardware hook call made through Request.HookContext.
func (d *Device) SetHookTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.hookTimeout = timeout
	}
}

// SetEventPublisher routes state change events to p.
func (d *Device) SetEventPublisher(p EventPublisher) {
	if p == nil {
		p = NopPublisher{}
	}
	d.events = p
}

// Emit publishes a state change for property.
func (d *Device) Emit(property string, value interface{}) {
	d.events.Publish(DeviceEvent{
		DeviceType:   d.desc.DeviceType,
		DeviceNumber: d.desc.DeviceNumber,
		Property:     property,
		Value:        value,
		Timestamp:    time.Now().UTC(),
	})
}

// attach applies server-wide settings. Existing sessions are discarded.
func (d *Device) attach(maxClients int, timeout time.Duration, metrics *Metrics) {
	d.metrics = metrics
	d.sessions = NewSessionRegistry(maxClients, timeout, d.logger, WithSessionGauge(metrics.sessionGauge(d.desc)))
}

// Register adds a route. Registering the same method and action twice is an error.
func (d *Device) Register(method, action string, h HandlerFunc) error {
	if method != http.MethodGet && method != http.MethodPut {
		return fmt.Errorf("unsupported method %s for %s", method, action)
	}
	if h == nil {
		return fmt.Errorf("nil handler for %s %s", method, action)
	}
	key := routeKey{method: method, action: strings.ToLower(action)}
	if _, exists := d.routes[key]; exists {
		return fmt.Errorf("route %s %s already registered", method, key.action)
	}
	d.routes[key] = h
	d.actions[key.action] = true
	return nil
}

// RegisterAll registers routes in order, stopping at the first error.
func (d *Device) RegisterAll(routes []Route) error {
	for _, rt := range routes {
		if err := d.Register(rt.Method, rt.Action, rt.Handler); err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) route(method, action string) (HandlerFunc, routeStatus) {
	action = strings.ToLower(action)
	if h, ok := d.routes[routeKey{method: method, action: action}]; ok {
		return h, routeFound
	}
	if d.actions[action] {
		return nil, routeWrongMethod
	}
	return nil, routeUnknownAction
}

// EnableCommands registers the optional command endpoints selected by caps.
// driver must implement the matching hook interface for each enabled capability.
func (d *Device) EnableCommands(caps Capabilities, driver interface{}) error {
	if caps.Action {
		hook, ok := driver.(ActionHook)
		if !ok {
			return fmt.Errorf("%s: action capability enabled but driver has no action hook", DeviceKey(d.desc.DeviceType, d.desc.DeviceNumber))
		}
		d.actionHook = hook
		if err := d.Register(http.MethodPut, "action", d.handleAction); err != nil {
			return err
		}
	}
	if caps.CommandBlind {
		hook, ok := driver.(CommandBlindHook)
		if !ok {
			return fmt.Errorf("%s: commandblind capability enabled but driver has no hook", DeviceKey(d.desc.DeviceType, d.desc.DeviceNumber))
		}
		err := d.Register(http.MethodPut, "commandblind", d.commandHandler(func(ctx context.Context, cmd string, raw bool) (Value, error) {
			return NoValue, hook.CommandBlind(ctx, cmd, raw)
		}))
		if err != nil {
			return err
		}
	}
	if caps.CommandBool {
		hook, ok := driver.(CommandBoolHook)
		if !ok {
			return fmt.Errorf("%s: commandbool capability enabled but driver has no hook", DeviceKey(d.desc.DeviceType, d.desc.DeviceNumber))
		}
		err := d.Register(http.MethodPut, "commandbool", d.commandHandler(func(ctx context.Context, cmd string, raw bool) (Value, error) {
			v, err := hook.CommandBool(ctx, cmd, raw)
			return BoolValue(v), err
		}))
		if err != nil {
			return err
		}
	}
	if caps.CommandString {
		hook, ok := driver.(CommandStringHook)
		if !ok {
			return fmt.Errorf("%s: commandstring capability enabled but driver has no hook", DeviceKey(d.desc.DeviceType, d.desc.DeviceNumber))
		}
		err := d.Register(http.MethodPut, "commandstring", d.commandHandler(func(ctx context.Context, cmd string, raw bool) (Value, error) {
			v, err := hook.CommandString(ctx, cmd, raw)
			return PlainStringValue(v), err
		}))
		if err != nil {
			return err
		}
	}
	return nil
}

// SupportedActions lists the action names accepted by PUT action.
func (d *Device) SupportedActions() []string {
	if d.actionHook == nil {
		return []string{}
	}
	actions := d.actionHook.SupportedActions()
	if actions == nil {
		return []string{}
	}
	return actions
}

func (d *Device) registerCommonRoutes() {
	constant := func(v Value) HandlerFunc {
		return func(r *Request) Result { return r.ReadOnly(v) }
	}
	routes := []Route{
		{http.MethodGet, "name", constant(PlainStringValue(d.desc.Name))},
		{http.MethodGet, "description", constant(PlainStringValue(d.desc.Description))},
		{http.MethodGet, "driverinfo", constant(PlainStringValue(d.desc.DriverInfo))},
		{http.MethodGet, "driverversion", constant(PlainStringValue(d.desc.DriverVersion))},
		{http.MethodGet, "interfaceversion", constant(IntValue(d.desc.InterfaceVersion))},
		{http.MethodGet, "supportedactions", func(r *Request) Result {
			return r.ReadOnly(ListValue(d.SupportedActions()))
		}},
		{http.MethodGet, "connected", func(r *Request) Result {
			return r.ReadOnly(BoolValue(r.session.Connected))
		}},
		{http.MethodPut, "connected", d.handlePutConnected},
	}
	// Common routes are registered on an empty table and cannot collide.
	_ = d.RegisterAll(routes)
}

func (d *Device) handlePutConnected(r *Request) Result {
	if err := r.Client(); err != nil {
		return Fail(err)
	}
	connected, perr := r.BoolParam("Connected")
	if perr != nil {
		return Fail(perr)
	}
	if !d.sessions.SetConnected(r.session.Slot, connected) {
		return Fail(ClientIDInvalid(r.session.ClientID))
	}
	if r.session.Connected != connected {
		d.logger.Info("Client connection state changed",
			zap.Uint32("client_id", r.session.ClientID),
			zap.Int("slot", r.session.Slot),
			zap.Bool("connected", connected))
	}
	r.session.Connected = connected || r.session.Slot == d.sessions.ConnectionlessSlot()
	return Done()
}

func (d *Device) handleAction(r *Request) Result {
	if err := r.Client(); err != nil {
		return Fail(err)
	}
	action, perr := r.Param("Action")
	if perr != nil {
		return Fail(perr)
	}
	parameters, perr := r.Param("Parameters")
	if perr != nil {
		return Fail(perr)
	}

	ctx, cancel := r.HookContext()
	defer cancel()
	out, err := d.actionHook.Action(ctx, action, parameters)
	if err != nil {
		if errors.Is(err, ErrHookNotImplemented) {
			return Fail(CommandNotImplemented(action))
		}
		return Fail(CommandStringInvalid(action, err))
	}
	return OK(PlainStringValue(out))
}

func (d *Device) commandHandler(hook func(ctx context.Context, cmd string, raw bool) (Value, error)) HandlerFunc {
	return func(r *Request) Result {
		if err := r.Client(); err != nil {
			return Fail(err)
		}
		command, perr := r.Param("Command")
		if perr != nil {
			return Fail(perr)
		}
		raw := true
		if r.params.Has("Raw", r.spelling) {
			v, perr := r.BoolParam("Raw")
			if perr != nil {
				return Fail(perr)
			}
			raw = v
		}

		ctx, cancel := r.HookContext()
		defer cancel()
		v, err := hook(ctx, command, raw)
		if err != nil {
			if errors.Is(err, ErrHookNotImplemented) {
				return Fail(CommandNotImplemented(r.Action))
			}
			return Fail(CommandStringInvalid(command, err))
		}
		return OK(v)
	}
}

// serve runs one request through the session gate and the handler and writes
// exactly one envelope.
func (d *Device) serve(c *gin.Context, action string, h HandlerFunc) {
	start := time.Now()
	d.served.Add(1)

	method := c.Request.Method
	spelling := SpellingFor(method)
	params := ParamsFromRequest(c.Request)

	// Unparseable identities fall through to the invalid slot.
	clientID, err := params.Uint32("ClientID", spelling)
	if err != nil {
		clientID = 0
	}
	clientTxnID, err := params.Uint32("ClientTransactionID", spelling)
	if err != nil {
		clientTxnID = 0
	}

	req := &Request{
		Method:      method,
		Action:      strings.ToLower(action),
		spelling:    spelling,
		params:      params,
		session:     d.sessions.Resolve(clientID, clientTxnID),
		clientTxnID: clientTxnID,
		device:      d,
		ctx:         c.Request.Context(),
	}
	res := d.invoke(req, h)

	resp := NewResponse(req.session, clientTxnID, res)
	if err := writeEnvelope(c, resp); err != nil {
		d.logger.Error("Envelope suppressed",
			zap.String("action", req.Action),
			zap.Error(err))
	}
	d.metrics.observeRequest(d.desc, req.Action, res, time.Since(start).Seconds())

	fields := []zap.Field{
		zap.String("method", method),
		zap.String("action", req.Action),
		zap.Uint32("client_id", clientID),
		zap.Int("slot", req.session.Slot),
		zap.Uint32("server_transaction_id", resp.ServerTransactionID),
	}
	switch {
	case res.Err == nil:
		d.logger.Debug("Request handled", fields...)
	case res.Err.Kind == KindDriverError:
		d.logger.Warn("Driver error", append(fields, zap.Error(res.Err))...)
	default:
		d.logger.Debug("Request rejected", append(fields, zap.String("error", res.Err.Message))...)
	}
}

func (d *Device) invoke(r *Request, h HandlerFunc) (res Result) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("Handler panicked",
				zap.String("action", r.Action),
				zap.Any("panic", p))
			res = Fail(DriverError(r.Action, fmt.Errorf("internal error: %v", p)))
		}
	}()
	return h(r)
}

// Request is the per-call context passed to a HandlerFunc.
type Request struct {
	Method string
	Action string

	spelling    Spelling
	params      *Params
	session     Session
	clientTxnID uint32
	device      *Device
	ctx         context.Context
}

// Session returns the caller's session as resolved for this request.
func (r *Request) Session() Session { return r.session }

// Params gives access to all request parameters.
func (r *Request) Params() *Params { return r.params }

// Spelling is the parameter name matching rule for this request.
func (r *Request) Spelling() Spelling { return r.spelling }

// Device returns the device serving the request.
func (r *Request) Device() *Device { return r.device }

// Client checks that the caller holds a session slot.
func (r *Request) Client() *Error {
	if !r.session.Valid() {
		return ClientIDInvalid(r.session.ClientID)
	}
	return nil
}

// Connected checks that the caller holds a slot and has set Connected=true.
func (r *Request) Connected(op string) *Error {
	if err := r.Client(); err != nil {
		return err
	}
	if !r.session.Connected {
		return NotConnected(op)
	}
	return nil
}

// ReadOnly answers with v. An unidentified caller still receives v together
// with ClientIDInvalid.
func (r *Request) ReadOnly(v Value) Result {
	if err := r.Client(); err != nil {
		return Partial(v, err)
	}
	return OK(v)
}

// Constant answers with v for identified callers only.
func (r *Request) Constant(v Value) Result {
	if err := r.Client(); err != nil {
		return Fail(err)
	}
	return OK(v)
}

// NotImplemented reports op as unsupported once the caller is identified.
func (r *Request) NotImplemented(op string) Result {
	if err := r.Client(); err != nil {
		return Fail(err)
	}
	return Fail(CommandNotImplemented(op))
}

// HookContext derives the context for a hardware hook call, bounded by the
// device's hook timeout.
func (r *Request) HookContext() (context.Context, context.CancelFunc) {
	ctx := r.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, r.device.hookTimeout)
}

// Param returns a required string parameter.
func (r *Request) Param(name string) (string, *Error) {
	v, err := r.params.Get(name, r.spelling)
	return v, ParamError(name, err)
}

// BoolParam returns a required boolean parameter.
func (r *Request) BoolParam(name string) (bool, *Error) {
	v, err := r.params.Bool(name, r.spelling)
	return v, ParamError(name, err)
}

// IntParam returns a required integer parameter.
func (r *Request) IntParam(name string) (int, *Error) {
	v, err := r.params.Int(name, r.spelling)
	return v, ParamError(name, err)
}

// FloatParam returns a required float parameter.
func (r *Request) FloatParam(name string) (float64, *Error) {
	v, err := r.params.Float(name, r.spelling)
	return v, ParamError(name, err)
}
