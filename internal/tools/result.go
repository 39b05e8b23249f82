package tools

import "github.com/browseragent/control-plane/internal/errs"

// Result is the unified return shape from tool execution: Data carries the tool's raw JSON-able payload, which
// the Result Enricher (internal/enrich) later transforms into the
// standard envelope. A panicking tool never reaches its caller: Execute
// converts the panic into an IsError Result, and the toolsurface adapter
// converts a handler's Go error the same way via FromErr.
type Result struct {
	Data      any       `json:"data,omitempty"`
	IsError   bool      `json:"isError"`
	ErrorCode errs.Code `json:"errorCode,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// NewResult wraps a successful tool payload.
func NewResult(data any) *Result {
	return &Result{Data: data}
}

// ErrorResult builds an INTERNAL_ERROR Result from a plain message.
func ErrorResult(message string) *Result {
	return &Result{IsError: true, ErrorCode: errs.InternalError, Message: message}
}

// ErrorResultCode builds an error Result carrying one of the fixed
// error codes.
func ErrorResultCode(code errs.Code, message string) *Result {
	return &Result{IsError: true, ErrorCode: code, Message: message}
}

// FromErr converts an arbitrary error (possibly an *errs.Error) into an
// error Result, truncating unknown-cause messages.
func FromErr(err error) *Result {
	if err == nil {
		return NewResult(nil)
	}
	e := errs.Wrap(err)
	return &Result{IsError: true, ErrorCode: e.Code, Message: e.Message}
}
