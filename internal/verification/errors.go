package verification

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the verification pipeline.
var (
	ErrBackendUnavailable      = errors.New("backend unavailable")
	ErrInvalidImage            = errors.New("invalid image")
	ErrMalformedBackendOutput  = errors.New("malformed backend output")
	ErrIncompleteBackendOutput = errors.New("incomplete backend output")
	ErrInvalidConfidence       = errors.New("invalid confidence")
	ErrInvalidStatus           = errors.New("invalid status")
	ErrBackendTransportFailure = errors.New("backend transport failure")
)

// Error annotates an error kind with a reason. Raw holds the offending
// backend output for diagnostics and must never reach a client.
type Error struct {
	Kind   error
	Reason string
	Raw    string
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Kind.Error()
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is matches the error kind so callers can use errors.Is with the sentinels.
func (e *Error) Is(target error) bool {
	return e != nil && e.Kind == target
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewError builds a typed pipeline error.
func NewError(kind error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

// WrapError builds a typed pipeline error around a cause.
func WrapError(kind error, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// RawOutput extracts the backend output attached to err, if any.
func RawOutput(err error) string {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Raw
	}
	return ""
}

// IsClientError reports whether err was caused by the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidImage)
}

var kindNames = map[error]string{
	ErrBackendUnavailable:      "backend_unavailable",
	ErrInvalidImage:            "invalid_image",
	ErrMalformedBackendOutput:  "malformed_backend_output",
	ErrIncompleteBackendOutput: "incomplete_backend_output",
	ErrInvalidConfidence:       "invalid_confidence",
	ErrInvalidStatus:           "invalid_status",
	ErrBackendTransportFailure: "backend_transport_failure",
}

// KindName returns a stable label for the error kind carried by err, or
// "internal" when err is not a pipeline error.
func KindName(err error) string {
	var verr *Error
	if errors.As(err, &verr) {
		if name, ok := kindNames[verr.Kind]; ok {
			return name
		}
	}
	return "internal"
}
