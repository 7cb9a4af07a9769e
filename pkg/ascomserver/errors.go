package ascomserver

import (
	"errors"
	"fmt"
)

// ASCOM error codes as defined by the Alpaca API.
const (
	ErrorCodeSuccess          = 0x000
	ErrorCodeNotImplemented   = 0x400
	ErrorCodeInvalidValue     = 0x401
	ErrorCodeValueNotSet      = 0x402
	ErrorCodeNotConnected     = 0x407
	ErrorCodeInvalidOperation = 0x40B
	ErrorCodeDriverError      = 0x500
)

// Kind classifies a protocol failure. Each kind maps to exactly one ASCOM code.
type Kind int

const (
	KindCommandNotImplemented Kind = iota + 1
	KindClientIDInvalid
	KindInvalidValue
	KindParameterNotFound
	KindNotConnected
	KindCommandStringInvalid
	KindDriverError
)

var kindCodes = map[Kind]int{
	KindCommandNotImplemented: ErrorCodeNotImplemented,
	KindClientIDInvalid:       ErrorCodeInvalidValue,
	KindInvalidValue:          ErrorCodeInvalidValue,
	KindParameterNotFound:     ErrorCodeValueNotSet,
	KindNotConnected:          ErrorCodeNotConnected,
	KindCommandStringInvalid:  ErrorCodeInvalidOperation,
	KindDriverError:           ErrorCodeDriverError,
}

// Code returns the ASCOM error number for the kind.
func (k Kind) Code() int {
	if code, ok := kindCodes[k]; ok {
		return code
	}
	return ErrorCodeDriverError
}

func (k Kind) String() string {
	switch k {
	case KindCommandNotImplemented:
		return "CommandNotImplemented"
	case KindClientIDInvalid:
		return "ClientIDInvalid"
	case KindInvalidValue:
		return "InvalidValue"
	case KindParameterNotFound:
		return "ParameterNotFound"
	case KindNotConnected:
		return "NotConnected"
	case KindCommandStringInvalid:
		return "CommandStringInvalid"
	case KindDriverError:
		return "DriverError"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Error is a protocol-level failure reported inside the response envelope.
// It never becomes an HTTP error status.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Code returns the ASCOM error number.
func (e *Error) Code() int {
	return e.Kind.Code()
}

// ErrHookNotImplemented may be returned by a hardware hook to signal that the
// hardware has no such capability. It is reported as CommandNotImplemented.
var ErrHookNotImplemented = errors.New("not implemented by hardware")

// CommandNotImplemented reports an operation this device does not support.
func CommandNotImplemented(op string) *Error {
	return &Error{Kind: KindCommandNotImplemented, Message: fmt.Sprintf("%s not implemented", op)}
}

// ClientIDInvalid reports a client that could not be given a session slot.
func ClientIDInvalid(clientID uint32) *Error {
	return &Error{
		Kind:    KindClientIDInvalid,
		Message: fmt.Sprintf("ClientID %d invalid or client table full", clientID),
	}
}

// InvalidValue reports a parameter whose value is malformed or out of range.
func InvalidValue(param, detail string) *Error {
	return &Error{Kind: KindInvalidValue, Message: fmt.Sprintf("invalid value for %s: %s", param, detail)}
}

// ParameterNotFound reports a required parameter missing from the request.
func ParameterNotFound(name string) *Error {
	return &Error{Kind: KindParameterNotFound, Message: fmt.Sprintf("parameter %s not found", name)}
}

// NotConnected reports an operation attempted by a client that has not connected.
func NotConnected(op string) *Error {
	return &Error{Kind: KindNotConnected, Message: fmt.Sprintf("%s requires a connected client", op)}
}

// CommandStringInvalid reports a command or action the hardware rejected.
func CommandStringInvalid(command string, err error) *Error {
	return &Error{Kind: KindCommandStringInvalid, Message: fmt.Sprintf("command %s rejected", command), Err: err}
}

// DriverError reports a hardware hook failure.
func DriverError(op string, err error) *Error {
	msg := fmt.Sprintf("%s failed", op)
	if err != nil {
		msg = fmt.Sprintf("%s failed: %v", op, err)
	}
	return &Error{Kind: KindDriverError, Message: msg, Err: err}
}

// HookError converts an error returned by a hardware hook into a protocol error.
func HookError(op string, err error) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if errors.Is(err, ErrHookNotImplemented) {
		return CommandNotImplemented(op)
	}
	return DriverError(op, err)
}

// ParamError converts a parameter lookup failure into a protocol error.
func ParamError(name string, err error) *Error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrParamNotFound):
		return ParameterNotFound(name)
	default:
		return InvalidValue(name, err.Error())
	}
}
