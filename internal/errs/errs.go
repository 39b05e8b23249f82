// Package errs defines the fixed error-code vocabulary shared by the run
// manager, tool surface, agent loop, and recovery policy.
package errs

import "errors"

// Code is one of the fixed errorCode string values that callers and the
// recovery policy key on.
type Code string

const (
	InvalidParameter      Code = "INVALID_PARAMETER"
	TemplateNotFound      Code = "TEMPLATE_NOT_FOUND"
	RunNotFound           Code = "RUN_NOT_FOUND"
	RunCanceled           Code = "RUN_CANCELED"
	RunTimeout            Code = "RUN_TIMEOUT"
	RunBackpressure       Code = "RUN_BACKPRESSURE"
	SessionNotFound       Code = "SESSION_NOT_FOUND"
	PageCrashed           Code = "PAGE_CRASHED"
	NavigationTimeout     Code = "NAVIGATION_TIMEOUT"
	ElementNotFound       Code = "ELEMENT_NOT_FOUND"
	ExecutionError        Code = "EXECUTION_ERROR"
	TrustLevelNotAllowed  Code = "TRUST_LEVEL_NOT_ALLOWED"
	TplLoginFieldNotFound Code = "TPL_LOGIN_FIELD_NOT_FOUND"
	InternalError         Code = "INTERNAL_ERROR"
)

// Error is a typed error carrying one of the fixed error codes.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// New builds an *Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap converts an arbitrary error into an internal, unknown-cause
// *Error with a bounded message.
func Wrap(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	msg := err.Error()
	const max = 500
	if len(msg) > max {
		msg = msg[:max] + "..."
	}
	return &Error{Code: InternalError, Message: msg}
}

// CodeOf extracts the Code from err if it is (or wraps) an *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}
