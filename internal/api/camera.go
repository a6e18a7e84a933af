package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/smazurov/camctl/internal/api/models"
	"github.com/smazurov/camctl/internal/commands"
)

// errorStatus maps wire error codes to HTTP statuses.
var errorStatus = map[string]int{
	commands.CodeCameraPermission:     http.StatusForbidden,
	commands.CodeCameraAccess:         http.StatusServiceUnavailable,
	commands.CodeFileExists:           http.StatusConflict,
	commands.CodeCaptureFailure:       http.StatusInternalServerError,
	commands.CodeConfigureFailed:      http.StatusInternalServerError,
	commands.CodeVideoRecordingFailed: http.StatusInternalServerError,
	commands.CodeIllegalArgument:      http.StatusBadRequest,
	commands.CodeIOError:              http.StatusInternalServerError,
	commands.CodeCameraNotReady:       http.StatusPreconditionFailed,
	commands.CodeNotImplemented:       http.StatusNotImplemented,
}

// commandError converts a dispatcher error into a huma status error. The
// wire code travels as the value of the single error detail.
func commandError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return huma.Error504GatewayTimeout("camera did not answer in time", err)
	}
	we := commands.WireError(err)
	status, ok := errorStatus[we.Code]
	if !ok {
		status = http.StatusInternalServerError
	}
	return huma.NewError(status, we.Message, &huma.ErrorDetail{
		Message:  we.Message,
		Location: "camera",
		Value:    we.Code,
	})
}

var commandErrors = []int{400, 403, 409, 412, 500, 503}

func (s *Server) registerCameraRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-cameras",
		Method:      http.MethodGet,
		Path:        "/api/cameras",
		Summary:     "List Cameras",
		Description: "List the cameras available on the device",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, _ *struct{}) (*models.CameraListResponse, error) {
		cams, err := s.dispatcher.AvailableCameras(ctx)
		if err != nil {
			return nil, commandError(err)
		}
		return &models.CameraListResponse{Body: models.CameraListData{Cameras: cams}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-camera",
		Method:      http.MethodGet,
		Path:        "/api/camera",
		Summary:     "Camera Status",
		Description: "Report whether a camera is initialized and its controller state",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.CameraStatusResponse, error) {
		textureID, state, ok := s.dispatcher.Current()
		return &models.CameraStatusResponse{Body: models.CameraStatusData{
			Open:      ok,
			TextureID: textureID,
			State:     state.String(),
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "init-camera",
		Method:      http.MethodPost,
		Path:        "/api/camera/init",
		Summary:     "Reset",
		Description: "Reset the command surface, disposing any open camera",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		return nil, commandError(s.dispatcher.Init(ctx))
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "initialize-camera",
		Method:      http.MethodPost,
		Path:        "/api/camera/initialize",
		Summary:     "Initialize Camera",
		Description: "Open a camera, start its preview and return the preview texture and size. Replaces any camera already open.",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      append([]int{401}, commandErrors...),
	}, func(ctx context.Context, input *models.InitializeRequest) (*models.InitializeResponse, error) {
		res, err := s.dispatcher.Initialize(ctx, input.Body)
		if err != nil {
			return nil, commandError(err)
		}
		return &models.InitializeResponse{Body: res}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "take-picture",
		Method:      http.MethodPost,
		Path:        "/api/camera/picture",
		Summary:     "Take Picture",
		Description: "Capture a JPEG still to a new file",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      append([]int{401}, commandErrors...),
	}, func(ctx context.Context, input *models.PictureRequest) (*struct{}, error) {
		return nil, commandError(s.dispatcher.TakePicture(ctx, input.Body.Path))
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "start-recording",
		Method:      http.MethodPost,
		Path:        "/api/camera/recording/start",
		Summary:     "Start Recording",
		Description: "Start recording video and audio to a new MP4 file",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      append([]int{401}, commandErrors...),
	}, func(ctx context.Context, input *models.RecordingStartRequest) (*struct{}, error) {
		return nil, commandError(s.dispatcher.StartVideoRecording(ctx, input.Body.FilePath))
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "stop-recording",
		Method:      http.MethodPost,
		Path:        "/api/camera/recording/stop",
		Summary:     "Stop Recording",
		Description: "Stop the current recording. The reply is sent once the file is finalized.",
		Tags:        []string{"recording"},
		Security:    withAuth(),
		Errors:      append([]int{401}, commandErrors...),
	}, func(ctx context.Context, input *models.RecordingStopRequest) (*struct{}, error) {
		return nil, commandError(s.dispatcher.StopVideoRecording(ctx, input.FilePath))
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "focus-camera",
		Method:      http.MethodPost,
		Path:        "/api/camera/focus",
		Summary:     "Focus",
		Description: "Trigger autofocus on a point of the preview view",
		Tags:        []string{"camera"},
		Security:    withAuth(),
		Errors:      append([]int{401}, commandErrors...),
	}, func(ctx context.Context, input *models.FocusRequest) (*struct{}, error) {
		b := input.Body
		return nil, commandError(s.dispatcher.FocusCamera(ctx, b.X, b.Y, b.Width, b.Height))
	})

	lifecycle := []struct {
		id, path, summary, desc string
		run                     func(context.Context) error
	}{
		{"dispose-camera", "/api/camera/dispose", "Dispose Camera", "Close the camera and release its preview texture", s.dispatcher.Dispose},
		{"pause-camera", "/api/camera/pause", "Pause Camera", "Close the camera device while keeping its texture for resume", s.dispatcher.Pause},
		{"resume-camera", "/api/camera/resume", "Resume Camera", "Reopen a paused camera", s.dispatcher.Resume},
	}
	for _, op := range lifecycle {
		huma.Register(s.api, huma.Operation{
			OperationID: op.id,
			Method:      http.MethodPost,
			Path:        op.path,
			Summary:     op.summary,
			Description: op.desc,
			Tags:        []string{"camera"},
			Security:    withAuth(),
			Errors:      append([]int{401}, commandErrors...),
		}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
			return nil, commandError(op.run(ctx))
		})
	}
}
