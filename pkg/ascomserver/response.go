package ascomserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// ErrAlreadyResponded is returned when a second envelope is written for the
// same request.
var ErrAlreadyResponded = errors.New("response already sent for this request")

const respondedKey = "ascomserver.responded"

// Value is an explicitly typed envelope payload. The zero Value means the
// envelope carries no Value field.
type Value struct {
	v   interface{}
	set bool
}

// NoValue is the empty payload used by operations without a return value.
var NoValue = Value{}

func BoolValue(b bool) Value { return Value{v: b, set: true} }

func IntValue(i int) Value { return Value{v: i, set: true} }

func FloatValue(f float64) Value { return Value{v: f, set: true} }

// PlainStringValue encodes s as a JSON string.
func PlainStringValue(s string) Value { return Value{v: s, set: true} }

// JSONValue inserts pre-encoded JSON verbatim. Text that is not valid JSON
// falls back to being sent as a plain string.
func JSONValue(raw string) Value {
	if !json.Valid([]byte(raw)) {
		return PlainStringValue(raw)
	}
	return Value{v: json.RawMessage(raw), set: true}
}

// ListValue encodes v (a slice) as a JSON array.
func ListValue(v interface{}) Value { return Value{v: v, set: true} }

// ObjectValue encodes v (a struct or map) as a JSON object.
func ObjectValue(v interface{}) Value { return Value{v: v, set: true} }

// IsSet reports whether the value should be emitted.
func (v Value) IsSet() bool { return v.set }

// Interface returns the underlying Go value.
func (v Value) Interface() interface{} { return v.v }

// Result is what a handler hands back to the single emission point.
// A Result may carry both a Value and an Err for read-only operations that
// report the last known value alongside an identity failure.
type Result struct {
	Value Value
	Err   *Error
}

// OK is a successful result carrying v.
func OK(v Value) Result { return Result{Value: v} }

// Done is a successful result without a value.
func Done() Result { return Result{} }

// Fail is a failed result.
func Fail(err *Error) Result { return Result{Err: err} }

// Partial carries a value together with an error.
func Partial(v Value, err *Error) Result { return Result{Value: v, Err: err} }

// Failed reports whether the result carries an error.
func (r Result) Failed() bool { return r.Err != nil }

// NewResponse builds the envelope for a handled request.
func NewResponse(session Session, clientTxnID uint32, res Result) *APIResponse {
	resp := &APIResponse{
		ClientTransactionID: clientTxnID,
		ServerTransactionID: session.ServerTransactionID,
		ErrorNumber:         ErrorCodeSuccess,
	}
	if res.Value.IsSet() {
		resp.Value = res.Value.Interface()
	}
	if res.Err != nil {
		resp.ErrorNumber = res.Err.Code()
		resp.ErrorMessage = res.Err.Message
	}
	return resp
}

// writeEnvelope emits resp with HTTP 200. It refuses to write twice for the
// same request.
func writeEnvelope(c *gin.Context, resp *APIResponse) error {
	if c.GetBool(respondedKey) || c.Writer.Written() {
		return ErrAlreadyResponded
	}
	c.Set(respondedKey, true)
	c.JSON(http.StatusOK, resp)
	return nil
}
