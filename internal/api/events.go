package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/smazurov/camctl/internal/api/models"
	"github.com/smazurov/camctl/internal/events"
	"github.com/smazurov/camctl/internal/logging"
)

// cameraEventTypes names the SSE events of a camera stream.
var cameraEventTypes = map[string]any{
	"connected":          models.ConnectedEvent{},
	"error":              events.CameraErrorEvent{},
	"camera-closing":     events.CameraClosingEvent{},
	"state-changed":      events.CameraStateChangedEvent{},
	"recording-changed":  events.RecordingStateChangedEvent{},
	"still-captured":     events.StillCapturedEvent{},
	"recording-repaired": events.ContainerRepairedEvent{},
}

func (s *Server) registerEventRoutes() {
	sse.Register(s.api, huma.Operation{
		OperationID: "camera-events",
		Method:      http.MethodGet,
		Path:        "/api/camera/events",
		Summary:     "Camera Event Stream",
		Description: "Server-Sent Events for one camera session: errors, closing notices, state and recording changes",
		Tags:        []string{"events"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, cameraEventTypes, func(ctx context.Context, input *models.CameraEventsRequest, send sse.Sender) {
		eventCh := make(chan any, 32)
		unsubscribe := events.SubscribeTextureToChannel(s.eventBus, input.TextureID, eventCh)
		defer unsubscribe()

		if err := send.Data(models.ConnectedEvent{
			TextureID: input.TextureID,
			Message:   "SSE connection established",
			Timestamp: time.Now().Format(time.RFC3339),
		}); err != nil {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-eventCh:
				if err := send.Data(ev); err != nil {
					return
				}
			}
		}
	})
}

func (s *Server) registerLoggingRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-log-levels",
		Method:      http.MethodGet,
		Path:        "/api/logging",
		Summary:     "Log Levels",
		Description: "Get the global and per-module log levels",
		Tags:        []string{"system"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(_ context.Context, _ *struct{}) (*models.LogLevelsResponse, error) {
		return &models.LogLevelsResponse{Body: currentLevels()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-levels",
		Method:      http.MethodPut,
		Path:        "/api/logging",
		Summary:     "Set Log Levels",
		Description: "Change log levels without restarting. Modules left out return to the global level.",
		Tags:        []string{"system"},
		Security:    withAuth(),
		Errors:      []int{400, 401},
	}, func(_ context.Context, input *models.LogLevelsRequest) (*models.LogLevelsResponse, error) {
		if !logging.ValidLevel(input.Body.Level) {
			return nil, huma.Error400BadRequest("unknown log level " + input.Body.Level)
		}
		for module, level := range input.Body.Modules {
			if !logging.ValidLevel(level) {
				return nil, huma.Error400BadRequest("unknown log level " + level + " for module " + module)
			}
		}
		logging.SetLevels(input.Body.Level, input.Body.Modules)
		s.logger.Info("Log levels changed", "level", input.Body.Level, "modules", len(input.Body.Modules))
		return &models.LogLevelsResponse{Body: currentLevels()}, nil
	})
}

func currentLevels() models.LogLevelsData {
	global, modules := logging.Levels()
	data := models.LogLevelsData{Level: global, Modules: make(map[string]string, len(modules))}
	for _, m := range modules {
		data.Modules[m.Module] = m.Level
	}
	return data
}
