package commands

import (
	"errors"
	"fmt"

	"github.com/smazurov/camctl/internal/camera"
)

// Wire error codes returned to clients.
const (
	CodeCameraPermission     = "cameraPermission"
	CodeCameraAccess         = "CameraAccess"
	CodeFileExists           = "fileExists"
	CodeCaptureFailure       = "captureFailure"
	CodeConfigureFailed      = "configureFailed"
	CodeVideoRecordingFailed = "videoRecordingFailed"
	CodeIllegalArgument      = "IllegalArgumentException"
	CodeIOError              = "IOError"
	CodeCameraNotReady       = "cameraNotReady"
	CodeNotImplemented       = "notImplemented"
)

// Error is a command failure as clients see it.
type Error struct {
	Code    string `json:"code" example:"fileExists" doc:"Error code"`
	Message string `json:"message" example:"File at path '/tmp/a.jpg' already exists. Cannot overwrite." doc:"Human readable message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

var cameraCodes = map[string]string{
	camera.ErrCodePermissionDenied:     CodeCameraPermission,
	camera.ErrCodeDeviceAccess:         CodeCameraAccess,
	camera.ErrCodeFileAlreadyExists:    CodeFileExists,
	camera.ErrCodeCaptureFailed:        CodeCaptureFailure,
	camera.ErrCodeConfigureFailed:      CodeConfigureFailed,
	camera.ErrCodeVideoRecordingFailed: CodeVideoRecordingFailed,
	camera.ErrCodeUnknownPreset:        CodeIllegalArgument,
	camera.ErrCodeIO:                   CodeIOError,
	camera.ErrCodeDeviceNotReady:       CodeCameraNotReady,
}

// WireError converts any error returned by the dispatcher into an *Error.
// Errors without a camera code become CameraAccess.
func WireError(err error) *Error {
	if err == nil {
		return nil
	}
	var we *Error
	if errors.As(err, &we) {
		return we
	}
	var ce *camera.Error
	if errors.As(err, &ce) {
		code, ok := cameraCodes[ce.Code]
		if !ok {
			code = CodeCameraAccess
		}
		return &Error{Code: code, Message: ce.Message}
	}
	return &Error{Code: CodeCameraAccess, Message: err.Error()}
}

func illegalArgument(format string, args ...any) *Error {
	return &Error{Code: CodeIllegalArgument, Message: fmt.Sprintf(format, args...)}
}

var errNoCamera = &Error{Code: CodeCameraNotReady, Message: "Camera is not initialized"}
