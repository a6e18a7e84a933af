package commands

import (
	"context"
	"encoding/json"
	"fmt"
)

// Method names of the command surface.
const (
	MethodInit                = "init"
	MethodAvailableCameras    = "availableCameras"
	MethodInitialize          = "initialize"
	MethodTakePicture         = "takePicture"
	MethodStartVideoRecording = "startVideoRecording"
	MethodStopVideoRecording  = "stopVideoRecording"
	MethodFocusCamera         = "focusCamera"
	MethodDispose             = "dispose"
	MethodPause               = "pause"
	MethodResume              = "resume"
)

// PathParams carries the target file of a capture or recording.
type PathParams struct {
	Path     string `json:"path,omitempty" doc:"Target file"`
	FilePath string `json:"filePath,omitempty" doc:"Target file (recording alias of path)"`
}

func (p PathParams) target() string {
	if p.FilePath != "" {
		return p.FilePath
	}
	return p.Path
}

// FocusParams is a point in a view of the given size.
type FocusParams struct {
	X      float64 `json:"x" doc:"Horizontal position in view pixels"`
	Y      float64 `json:"y" doc:"Vertical position in view pixels"`
	Width  float64 `json:"width" doc:"View width"`
	Height float64 `json:"height" doc:"View height"`
}

// Call runs method with JSON-encoded args and returns its result. Unknown
// methods fail with notImplemented. The returned error is always an *Error.
func (d *Dispatcher) Call(ctx context.Context, method string, args json.RawMessage) (any, error) {
	result, err := d.call(ctx, method, args)
	if err != nil {
		return nil, WireError(err)
	}
	return result, nil
}

func decodeArgs(method string, args json.RawMessage, v any) error {
	if len(args) == 0 || string(args) == "null" {
		return nil
	}
	if err := json.Unmarshal(args, v); err != nil {
		return illegalArgument("invalid arguments for %s: %v", method, err)
	}
	return nil
}

func (d *Dispatcher) call(ctx context.Context, method string, args json.RawMessage) (any, error) {
	switch method {
	case MethodInit:
		return nil, d.Init(ctx)

	case MethodAvailableCameras:
		return d.AvailableCameras(ctx)

	case MethodInitialize:
		var p InitializeParams
		if err := decodeArgs(method, args, &p); err != nil {
			return nil, err
		}
		return d.Initialize(ctx, p)

	case MethodTakePicture:
		var p PathParams
		if err := decodeArgs(method, args, &p); err != nil {
			return nil, err
		}
		return nil, d.TakePicture(ctx, p.target())

	case MethodStartVideoRecording:
		var p PathParams
		if err := decodeArgs(method, args, &p); err != nil {
			return nil, err
		}
		return nil, d.StartVideoRecording(ctx, p.target())

	case MethodStopVideoRecording:
		var p PathParams
		if err := decodeArgs(method, args, &p); err != nil {
			return nil, err
		}
		return nil, d.StopVideoRecording(ctx, p.target())

	case MethodFocusCamera:
		var p FocusParams
		if err := decodeArgs(method, args, &p); err != nil {
			return nil, err
		}
		return nil, d.FocusCamera(ctx, p.X, p.Y, p.Width, p.Height)

	case MethodDispose:
		return nil, d.Dispose(ctx)

	case MethodPause:
		return nil, d.Pause(ctx)

	case MethodResume:
		return nil, d.Resume(ctx)

	default:
		return nil, &Error{Code: CodeNotImplemented, Message: fmt.Sprintf("Method %q is not implemented", method)}
	}
}
