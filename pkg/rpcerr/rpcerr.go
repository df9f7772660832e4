// Package rpcerr defines the RPC error taxonomy shared by the registry,
// the RPC surface, and every handler. It mirrors the fixed code table so
// that a handler failure always maps to one of a known, documented set of
// codes rather than leaking internal error strings to callers.
package rpcerr

import "fmt"

// Code is one of the fixed JSON-RPC-style error codes.
type Code int

const (
	ParseError           Code = -32700
	InvalidRequest       Code = -32600
	MethodNotFound       Code = -32601
	InvalidParams        Code = -32602
	InternalError        Code = -32603
	RateLimitExceeded    Code = -32001
	CircuitBreakerOpen   Code = -32002
	Unauthorized         Code = -32003
	ValidationError      Code = -32004
	HandlerError         Code = -32005
)

var names = map[Code]string{
	ParseError:         "PARSE_ERROR",
	InvalidRequest:     "INVALID_REQUEST",
	MethodNotFound:     "METHOD_NOT_FOUND",
	InvalidParams:      "INVALID_PARAMS",
	InternalError:      "INTERNAL_ERROR",
	RateLimitExceeded:  "RATE_LIMIT_EXCEEDED",
	CircuitBreakerOpen: "CIRCUIT_BREAKER_OPEN",
	Unauthorized:       "UNAUTHORIZED",
	ValidationError:    "VALIDATION_ERROR",
	HandlerError:       "HANDLER_ERROR",
}

// Name returns the fixed name for a code, or "UNKNOWN" if unrecognized.
func (c Code) Name() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "UNKNOWN"
}

// Error is a structured RPC error carrying a fixed code, a human message,
// and optional structured data (e.g. data.kind for HANDLER_ERROR).
type Error struct {
	Code    Code `json:"code"`
	Message string      `json:"message"`
	Data    any         `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code.Name(), e.Code, e.Message)
}

// New builds an Error with no structured data.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithData attaches structured data to an error and returns it.
func (e *Error) WithData(data any) *Error {
	e.Data = data
	return e
}

// Handler wraps an arbitrary handler-raised error into a HANDLER_ERROR,
// attaching data.kind for callers that classify by kind string. It is a
// no-op (returns err unchanged) if err is already an *Error.
func Handler(kind string, err error) *Error {
	if err == nil {
		return nil
	}
	if rpcErr, ok := err.(*Error); ok {
		return rpcErr
	}
	return &Error{
		Code:    HandlerError,
		Message: err.Error(),
		Data:    map[string]string{"kind": kind},
	}
}

// As reports whether err is (or wraps) an *Error and returns it.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
