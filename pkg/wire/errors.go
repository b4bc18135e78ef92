package wire

import "errors"

// Error codes shared by the client and server sides of a remote call.
const (
	CodeArgumentCountMismatch  = "ARGUMENT_COUNT_MISMATCH"
	CodeEndpointUnreachable    = "ENDPOINT_UNREACHABLE"
	CodeTransportTimeout       = "TRANSPORT_TIMEOUT"
	CodeDeserializationFailure = "DESERIALIZATION_FAILURE"
	CodeSecurityRejected       = "SECURITY_REJECTED"
	CodeMethodNotFound         = "METHOD_NOT_FOUND"
	CodeRemoteDisabled         = "REMOTE_DISABLED"
	CodeNoAnswer               = "NO_ANSWER"
	CodeRemoteFailure          = "REMOTE_FAILURE"
	CodeRegistrationConflict   = "REGISTRATION_CONFLICT"
	CodeInvalidDescriptor      = "INVALID_DESCRIPTOR"
)

var (
	ErrArgumentCountMismatch  = &Error{Code: CodeArgumentCountMismatch, Message: "argument count does not match descriptor"}
	ErrEndpointUnreachable    = &Error{Code: CodeEndpointUnreachable, Message: "endpoint unreachable"}
	ErrTransportTimeout       = &Error{Code: CodeTransportTimeout, Message: "transport timeout"}
	ErrDeserializationFailure = &Error{Code: CodeDeserializationFailure, Message: "response could not be decoded"}
	ErrSecurityRejected       = &Error{Code: CodeSecurityRejected, Message: "security check rejected the call"}
	ErrMethodNotFound         = &Error{Code: CodeMethodNotFound, Message: "method not found"}
	ErrRemoteDisabled         = &Error{Code: CodeRemoteDisabled, Message: "remote calls are disabled"}
	ErrNoAnswer               = &Error{Code: CodeNoAnswer, Message: "no candidate answered"}
	ErrRemoteFailure          = &Error{Code: CodeRemoteFailure, Message: "remote reported failure"}
	ErrRegistrationConflict   = &Error{Code: CodeRegistrationConflict, Message: "conflicting method registration"}
	ErrInvalidDescriptor      = &Error{Code: CodeInvalidDescriptor, Message: "invalid method descriptor"}
)

// Error is a structured error from the connector framework.
type Error struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`

	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Code + ": " + e.Message + ": " + e.cause.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is a *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error.
func NewError(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WrapError creates a new Error carrying cause.
func WrapError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
