// Package core defines the shared error model for the practice engine.
package core

import (
	"errors"
	"fmt"
)

// Error represents an engine error.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Underlying error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param: %s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	// ErrPermissionDenied means microphone access was refused by the user or
	// platform. This is the one class surfaced directly to the user for action.
	ErrPermissionDenied ErrorType = "permission_denied"

	// ErrDecode means a transport payload was not valid base64.
	ErrDecode ErrorType = "decode_error"

	// ErrFormat means a byte buffer could not be interpreted as PCM16 audio.
	ErrFormat ErrorType = "format_error"

	// ErrEncode means a captured audio blob could not be read for encoding.
	ErrEncode ErrorType = "encode_error"

	// ErrTransport means an external collaborator call failed or returned a
	// structurally invalid response.
	ErrTransport ErrorType = "transport_error"

	// ErrValidation means the input was rejected before any network call.
	ErrValidation ErrorType = "validation_error"

	// ErrState means an operation was attempted in the wrong lifecycle state.
	ErrState ErrorType = "state_error"
)

// NewPermissionDeniedError creates a permission denied error.
func NewPermissionDeniedError(message string) *Error {
	return &Error{Type: ErrPermissionDenied, Message: message}
}

// NewDecodeError creates a decode error.
func NewDecodeError(message string, underlying error) *Error {
	return &Error{Type: ErrDecode, Message: message, Underlying: underlying}
}

// NewFormatError creates a format error.
func NewFormatError(message string) *Error {
	return &Error{Type: ErrFormat, Message: message}
}

// NewEncodeError creates an encode error.
func NewEncodeError(message string, underlying error) *Error {
	return &Error{Type: ErrEncode, Message: message, Underlying: underlying}
}

// NewTransportError creates a transport error wrapping a collaborator failure.
func NewTransportError(message string, underlying error) *Error {
	return &Error{Type: ErrTransport, Message: message, Underlying: underlying}
}

// NewValidationError creates a validation error for a named parameter.
func NewValidationError(message, param string) *Error {
	return &Error{Type: ErrValidation, Message: message, Param: param}
}

// NewStateError creates a state error.
func NewStateError(message string) *Error {
	return &Error{Type: ErrState, Message: message}
}

// IsUserActionable reports whether the error should be surfaced to the user
// with an actionable message rather than recovered silently.
func (e *Error) IsUserActionable() bool {
	return e.Type == ErrPermissionDenied
}

// Unwrap returns the underlying error for error wrapping.
func (e *Error) Unwrap() error {
	return e.Underlying
}

// TypeOf returns the ErrorType of err, or the empty string if err is not an
// engine *Error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}
