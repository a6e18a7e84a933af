package models

import "github.com/smazurov/camctl/internal/commands"

// Health check models
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Service status"`
	Message string `json:"message" example:"API is healthy" doc:"Status message"`
}

type HealthResponse struct {
	Body HealthData
}

// Version models
type VersionData struct {
	Version   string `json:"version" example:"dev" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit SHA"`
	BuildDate string `json:"build_date" example:"2026-01-15 14:30" doc:"Build timestamp"`
	GoVersion string `json:"go_version" example:"go1.24.0" doc:"Go compiler version"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Platform"`
}

type VersionResponse struct {
	Body VersionData
}

// Camera models
type CameraListData struct {
	Cameras []commands.CameraDescription `json:"cameras" doc:"Cameras reported by the device"`
}

type CameraListResponse struct {
	Body CameraListData
}

type InitializeRequest struct {
	Body commands.InitializeParams
}

type InitializeResponse struct {
	Body commands.InitializeResult
}

type PictureRequest struct {
	Body struct {
		Path string `json:"path" example:"/data/photo.jpg" doc:"File to write the JPEG to; must not exist"`
	}
}

type RecordingStartRequest struct {
	Body struct {
		FilePath string `json:"filePath" example:"/data/clip.mp4" doc:"File to record to; must not exist"`
	}
}

type RecordingStopRequest struct {
	FilePath string `query:"filePath" example:"/data/clip.mp4" doc:"Recording to stop; defaults to the one started last"`
}

type FocusRequest struct {
	Body commands.FocusParams
}

type CameraStatusData struct {
	Open      bool   `json:"open" doc:"Whether a camera is initialized"`
	TextureID int64  `json:"textureId,omitempty" example:"1" doc:"Preview texture id of the current camera"`
	State     string `json:"state" example:"previewing" doc:"Controller state"`
}

type CameraStatusResponse struct {
	Body CameraStatusData
}

// Event stream models
type CameraEventsRequest struct {
	TextureID int64 `query:"texture_id" required:"true" example:"1" doc:"Preview texture id returned by initialize"`
}

type ConnectedEvent struct {
	TextureID int64  `json:"textureId" example:"1" doc:"Texture the stream is scoped to"`
	Message   string `json:"message" example:"SSE connection established" doc:"Connection message"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Logging models
type LogLevelsData struct {
	Level   string            `json:"level" example:"info" doc:"Global log level"`
	Modules map[string]string `json:"modules,omitempty" doc:"Per-module levels"`
}

type LogLevelsRequest struct {
	Body LogLevelsData
}

type LogLevelsResponse struct {
	Body LogLevelsData
}
