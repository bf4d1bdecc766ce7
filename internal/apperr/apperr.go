// Package apperr defines the typed errors the service layer returns.
// Handlers translate these into HTTP status codes and response envelopes;
// everything below the handler boundary deals only in these codes.
package apperr

import (
	"errors"
	"fmt"
)

// Code classifies a service-level failure.
type Code string

const (
	CodeInvalidInput      Code = "INVALID_INPUT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeForbidden         Code = "FORBIDDEN"
	CodeSessionMismatch   Code = "SESSION_MISMATCH"
	CodeConflict          Code = "CONFLICT"
	CodeAttemptTerminated Code = "ATTEMPT_TERMINATED"
	CodeUpstreamFailure   Code = "UPSTREAM_FAILURE"
	CodeChatBlocked       Code = "CHAT_BLOCKED"
	CodeInternal          Code = "INTERNAL"
)

// Error carries a code alongside a human-readable message and an
// optional wrapped cause.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a typed error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds a typed error around a cause.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: err}
}

// CodeOf extracts the code from err, or CodeInternal for untyped errors.
func CodeOf(err error) Code {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
