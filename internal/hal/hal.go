// Package hal describes the camera subsystem the controller drives: device
// registry, devices, capture sessions, output surfaces, still-image receiver,
// encoder, permission prompt and display rotation.
//
// Every hardware notification is delivered through a Notify callback. A
// Notify implementation must not block; the controller only enqueues.
package hal

import (
	"github.com/smazurov/camctl/internal/orientation"
	"github.com/smazurov/camctl/internal/sizing"
)

// LensFacing is the direction a camera points.
type LensFacing int

const (
	LensFacingFront LensFacing = iota
	LensFacingBack
	LensFacingExternal
)

func (f LensFacing) String() string {
	switch f {
	case LensFacingFront:
		return "front"
	case LensFacingBack:
		return "back"
	default:
		return "external"
	}
}

// Characteristics are the static properties of a camera device.
type Characteristics struct {
	SensorOrientation int
	LensFacing        LensFacing
	StillSizes        []sizing.Resolution
	PreviewSizes      []sizing.Resolution
	ActiveArraySize   sizing.Resolution
	MaxAFRegions      int
}

// Notify receives hardware notifications.
type Notify func(Event)

// Registry enumerates and opens camera devices.
type Registry interface {
	CameraIDs() ([]string, error)
	Characteristics(id string) (Characteristics, error)
	// Open starts opening a device. The outcome arrives as DeviceOpened,
	// DeviceError or DeviceDisconnected.
	Open(id string, notify Notify) error
}

// Device is an open camera.
type Device interface {
	ID() string
	// CreateSession starts configuring a capture session for outputs. The
	// outcome arrives as SessionConfigured or SessionConfigureFailed.
	CreateSession(outputs []Surface, notify Notify) error
	// Close releases the device. DeviceClosed follows.
	Close() error
}

// Session is a configured capture session.
type Session interface {
	SetRepeating(req Request) error
	StopRepeating() error
	// Capture submits a one-shot request. The outcome arrives as
	// CaptureCompleted or CaptureFailed on notify.
	Capture(req Request, notify Notify) error
	// Close tears the session down. SessionClosed follows on the notify
	// passed to CreateSession.
	Close() error
}

// Surface is a frame destination a session can target.
type Surface interface {
	SurfaceID() string
}

// Texture is a preview texture supplied by the rendering side.
type Texture interface {
	ID() int64
	// Surface sizes the texture buffer and returns its output surface.
	Surface(size sizing.Resolution) Surface
	Release()
}

// TextureRegistry hands out preview textures.
type TextureRegistry interface {
	CreateTexture() (Texture, error)
}

// ImageReceiver buffers encoded stills. Each image arrives as ImageAvailable.
type ImageReceiver interface {
	Surface
	Close() error
}

// ImageReceiverFactory creates still-image receivers.
type ImageReceiverFactory interface {
	NewImageReceiver(size sizing.Resolution, maxImages int, notify Notify) (ImageReceiver, error)
}

// Display reports the current display rotation.
type Display interface {
	Rotation() orientation.Rotation
}

// Permission is a runtime permission the controller needs.
type Permission string

const (
	PermissionCamera     Permission = "camera"
	PermissionMicrophone Permission = "microphone"
)

// Permissions checks and requests runtime permissions.
type Permissions interface {
	Granted(p Permission) bool
	// Request prompts for perms and calls done once the prompt resolves,
	// from any goroutine.
	Request(perms []Permission, done func())
}

// Backend groups the collaborators a controller needs.
type Backend struct {
	Registry    Registry
	Textures    TextureRegistry
	Images      ImageReceiverFactory
	Encoders    EncoderFactory
	Permissions Permissions
	Display     Display
}
