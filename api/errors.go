// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy for the transport core. Every failure that reaches a
// Protocol, a Factory or a Deferred errback is an *Error carrying one of the
// codes below, so callers can match with errors.Is against the sentinels.

package api

import (
	"errors"
	"fmt"
)

// ErrorCode represents specific error conditions in the library.
type ErrorCode int

const (
	ErrCodeOK ErrorCode = iota
	ErrCodeBind
	ErrCodeResolution
	ErrCodeConnectTimeout
	ErrCodeConnectionRefused
	ErrCodeConnectionReset
	ErrCodeConnectionAborted
	ErrCodeConnectionDone
	ErrCodeConnectionLost
	ErrCodeCancelled
	ErrCodeProtocolViolation
	ErrCodeNotConnected
	ErrCodeNotSupported
	ErrCodeInvalidArgument
	ErrCodeContractViolation
)

var codeNames = map[ErrorCode]string{
	ErrCodeOK:                "ok",
	ErrCodeBind:              "bind error",
	ErrCodeResolution:        "resolution error",
	ErrCodeConnectTimeout:    "connect timeout",
	ErrCodeConnectionRefused: "connection refused",
	ErrCodeConnectionReset:   "connection reset",
	ErrCodeConnectionAborted: "connection aborted",
	ErrCodeConnectionDone:    "connection done",
	ErrCodeConnectionLost:    "connection lost",
	ErrCodeCancelled:         "operation cancelled",
	ErrCodeProtocolViolation: "protocol violation",
	ErrCodeNotConnected:      "not connected",
	ErrCodeNotSupported:      "operation not supported",
	ErrCodeInvalidArgument:   "invalid argument",
	ErrCodeContractViolation: "contract violation",
}

func (c ErrorCode) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("error code %d", int(c))
}

// Error represents a structured error with code, cause and context.
type Error struct {
	Code    ErrorCode
	Message string
	Err     error
	Context map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Context) == 0 {
		return msg
	}
	return fmt.Sprintf("%s (context: %+v)", msg, e.Context)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so wrapped instances compare
// equal to the package sentinels.
func (e *Error) Is(target error) bool {
	var other *Error
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == e.Code
}

// NewError creates a new structured error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Context: make(map[string]any),
	}
}

// Wrap creates a structured error around a cause.
func Wrap(code ErrorCode, cause error, message string) *Error {
	e := NewError(code, message)
	e.Err = cause
	return e
}

// WithContext adds context information to the error.
func (e *Error) WithContext(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Sentinels for errors.Is matching.
var (
	ErrBind              = &Error{Code: ErrCodeBind}
	ErrResolution        = &Error{Code: ErrCodeResolution}
	ErrConnectTimeout    = &Error{Code: ErrCodeConnectTimeout}
	ErrConnectionRefused = &Error{Code: ErrCodeConnectionRefused}
	ErrConnectionReset   = &Error{Code: ErrCodeConnectionReset}
	ErrConnectionAborted = &Error{Code: ErrCodeConnectionAborted}
	ErrConnectionDone    = &Error{Code: ErrCodeConnectionDone}
	ErrConnectionLost    = &Error{Code: ErrCodeConnectionLost}
	ErrCancelled         = &Error{Code: ErrCodeCancelled}
	ErrProtocolViolation = &Error{Code: ErrCodeProtocolViolation}
	ErrNotConnected      = &Error{Code: ErrCodeNotConnected}
	ErrNotSupported      = &Error{Code: ErrCodeNotSupported}
	ErrInvalidArgument   = &Error{Code: ErrCodeInvalidArgument}
	ErrContractViolation = &Error{Code: ErrCodeContractViolation}
)

// NewBindError reports that a listener could not bind addr.
func NewBindError(addr string, cause error) *Error {
	return Wrap(ErrCodeBind, cause, "couldn't listen on "+addr)
}

// NewResolutionError reports a failed name lookup.
func NewResolutionError(host string, cause error) *Error {
	return Wrap(ErrCodeResolution, cause, "couldn't resolve "+host)
}

// NewTimeoutError reports a connect attempt that exceeded its deadline.
func NewTimeoutError(dest string) *Error {
	return NewError(ErrCodeConnectTimeout, "connect to "+dest+" timed out")
}

// NewCancelledError reports an operation cancelled on request.
func NewCancelledError(what string) *Error {
	return NewError(ErrCodeCancelled, what+" cancelled")
}

// NewProtocolViolation is raised by Protocol collaborators for malformed input.
func NewProtocolViolation(reason string) *Error {
	return NewError(ErrCodeProtocolViolation, reason)
}

// NewContractViolation reports misuse of the core API. It is raised as a
// panic, never returned.
func NewContractViolation(reason string) *Error {
	return NewError(ErrCodeContractViolation, reason)
}

// IsContractViolation reports whether a recovered panic value signals a
// programming error that must not be swallowed.
func IsContractViolation(v any) bool {
	err, ok := v.(error)
	return ok && errors.Is(err, ErrContractViolation)
}
