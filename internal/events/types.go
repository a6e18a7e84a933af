package events

// Event type constants for kelindar/event.
const (
	TypeCameraError uint32 = iota + 1
	TypeCameraClosing
	TypeCameraStateChanged
	TypeRecordingStateChanged
	TypeStillCaptured
	TypeContainerRepaired
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// CameraEvent is an event scoped to one camera session, identified by the
// preview texture id handed out at initialization.
type CameraEvent interface {
	Event
	Texture() int64
}

// Sink receives events. *Bus implements it.
type Sink interface {
	Publish(ev Event)
}

// Event type names carried in the eventType field.
const (
	EventTypeError         = "error"
	EventTypeCameraClosing = "cameraClosing"
)

// CameraErrorEvent reports an asynchronous camera failure with no pending
// caller to answer.
type CameraErrorEvent struct {
	TextureID        int64  `json:"textureId" example:"1" doc:"Preview texture id of the camera session"`
	EventType        string `json:"eventType" example:"error" doc:"Always error"`
	ErrorDescription string `json:"errorDescription" example:"The camera was disconnected." doc:"Human readable failure"`
	Timestamp        string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraErrorEvent.
func (e CameraErrorEvent) Type() uint32 { return TypeCameraError }

// Texture returns the camera session the event belongs to.
func (e CameraErrorEvent) Texture() int64 { return e.TextureID }

// CameraClosingEvent reports that the camera device has closed.
type CameraClosingEvent struct {
	TextureID int64  `json:"textureId" example:"1" doc:"Preview texture id of the camera session"`
	EventType string `json:"eventType" example:"cameraClosing" doc:"Always cameraClosing"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraClosingEvent.
func (e CameraClosingEvent) Type() uint32 { return TypeCameraClosing }

// Texture returns the camera session the event belongs to.
func (e CameraClosingEvent) Texture() int64 { return e.TextureID }

// CameraStateChangedEvent reports a controller state transition.
type CameraStateChangedEvent struct {
	TextureID int64  `json:"textureId" example:"1" doc:"Preview texture id of the camera session"`
	CameraID  string `json:"cameraId" example:"0" doc:"Camera device id"`
	From      string `json:"from" example:"opening" doc:"Previous state"`
	To        string `json:"to" example:"previewing" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for CameraStateChangedEvent.
func (e CameraStateChangedEvent) Type() uint32 { return TypeCameraStateChanged }

// Texture returns the camera session the event belongs to.
func (e CameraStateChangedEvent) Texture() int64 { return e.TextureID }

// RecordingStateChangedEvent reports a recording state transition.
type RecordingStateChangedEvent struct {
	TextureID int64  `json:"textureId" example:"1" doc:"Preview texture id of the camera session"`
	Path      string `json:"path" example:"/data/clip.mp4" doc:"Recording output path"`
	From      string `json:"from" example:"preparing" doc:"Previous state"`
	To        string `json:"to" example:"recording" doc:"New state"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for RecordingStateChangedEvent.
func (e RecordingStateChangedEvent) Type() uint32 { return TypeRecordingStateChanged }

// Texture returns the camera session the event belongs to.
func (e RecordingStateChangedEvent) Texture() int64 { return e.TextureID }

// StillCapturedEvent reports a still image written to disk.
type StillCapturedEvent struct {
	TextureID int64  `json:"textureId" example:"1" doc:"Preview texture id of the camera session"`
	Path      string `json:"path" example:"/data/photo.jpg" doc:"Image path"`
	Bytes     int    `json:"bytes" example:"123456" doc:"Image size in bytes"`
	Timestamp string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for StillCapturedEvent.
func (e StillCapturedEvent) Type() uint32 { return TypeStillCaptured }

// Texture returns the camera session the event belongs to.
func (e StillCapturedEvent) Texture() int64 { return e.TextureID }

// ContainerRepairedEvent reports the outcome of the post-recording repair pass.
type ContainerRepairedEvent struct {
	TextureID      int64  `json:"textureId" example:"1" doc:"Preview texture id of the camera session"`
	Path           string `json:"path" example:"/data/clip.mp4" doc:"Recording path"`
	Repaired       bool   `json:"repaired" doc:"Whether the file was rewritten"`
	RemovedSamples int    `json:"removedSamples" example:"12" doc:"Leading audio samples dropped"`
	Error          string `json:"error,omitempty" doc:"Repair failure, absorbed"`
	Timestamp      string `json:"timestamp" example:"2026-01-27T10:30:00Z" doc:"Event timestamp"`
}

// Type returns the event type identifier for ContainerRepairedEvent.
func (e ContainerRepairedEvent) Type() uint32 { return TypeContainerRepaired }

// Texture returns the camera session the event belongs to.
func (e ContainerRepairedEvent) Texture() int64 { return e.TextureID }
