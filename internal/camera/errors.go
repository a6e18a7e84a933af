package camera

import (
	"errors"
	"fmt"
)

// Error codes returned to callers.
const (
	ErrCodePermissionDenied     = "PERMISSION_DENIED"
	ErrCodeDeviceAccess         = "DEVICE_ACCESS"
	ErrCodeFileAlreadyExists    = "FILE_ALREADY_EXISTS"
	ErrCodeCaptureFailed        = "CAPTURE_FAILED"
	ErrCodeConfigureFailed      = "CONFIGURE_FAILED"
	ErrCodeVideoRecordingFailed = "VIDEO_RECORDING_FAILED"
	ErrCodeUnknownPreset        = "UNKNOWN_PRESET"
	ErrCodeDeviceNotReady       = "DEVICE_NOT_READY"
	ErrCodeIO                   = "IO_ERROR"
)

// Error represents a camera operation error with a code.
type Error struct {
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error with the same code, so callers can compare against
// the sentinel values below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new camera error.
func NewError(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Sentinels for errors.Is.
var (
	ErrPermissionDenied     = &Error{Code: ErrCodePermissionDenied}
	ErrDeviceAccess         = &Error{Code: ErrCodeDeviceAccess}
	ErrFileAlreadyExists    = &Error{Code: ErrCodeFileAlreadyExists}
	ErrCaptureFailed        = &Error{Code: ErrCodeCaptureFailed}
	ErrConfigureFailed      = &Error{Code: ErrCodeConfigureFailed}
	ErrVideoRecordingFailed = &Error{Code: ErrCodeVideoRecordingFailed}
	ErrUnknownPreset        = &Error{Code: ErrCodeUnknownPreset}
	ErrDeviceNotReady       = &Error{Code: ErrCodeDeviceNotReady}
	ErrIO                   = &Error{Code: ErrCodeIO}
)

// Code extracts the error code, or "" for errors from outside this package.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func fileExistsError(path string) *Error {
	return NewError(ErrCodeFileAlreadyExists, fmt.Sprintf("File at path '%s' already exists. Cannot overwrite.", path), nil)
}

var (
	errNotReady = NewError(ErrCodeDeviceNotReady, "Camera is not ready", nil)
	errDisposed = NewError(ErrCodeDeviceNotReady, "Camera has been disposed", nil)
	errClosed   = NewError(ErrCodeDeviceNotReady, "Camera was closed", nil)
)
