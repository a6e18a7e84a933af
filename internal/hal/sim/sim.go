// Package sim is an in-process camera subsystem. It backs the daemon when no
// hardware is attached and drives the controller tests.
//
// Every notification is delivered synchronously from inside the call that
// caused it, after the system lock is released. Failures are injected with
// the FailNext methods and Disconnect/InjectError.
package sim

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/smazurov/camctl/internal/hal"
	"github.com/smazurov/camctl/internal/logging"
	"github.com/smazurov/camctl/internal/orientation"
	"github.com/smazurov/camctl/internal/sizing"
)

// Camera is one simulated device.
type Camera struct {
	ID              string
	Characteristics hal.Characteristics
}

// Options configure a System.
type Options struct {
	Cameras  []Camera
	Rotation orientation.Rotation
	// Ungranted permissions must be requested before use.
	Ungranted []hal.Permission
	// Denied permissions stay ungranted when requested.
	Denied []hal.Permission
	// HoldPermissionPrompt keeps permission requests pending until
	// ResolvePermissionPrompt is called.
	HoldPermissionPrompt bool
	// RecordingDuration is the length of every simulated recording.
	RecordingDuration time.Duration
	// TimestampDefect makes the encoder write the corrupt first audio
	// timestamp and leading audio that some devices produce.
	TimestampDefect bool
	Logger          *slog.Logger
}

// DefaultCameras returns a back camera "0" and a front camera "1".
func DefaultCameras() []Camera {
	stills := []sizing.Resolution{{Width: 4032, Height: 3024}, {Width: 1920, Height: 1080}, {Width: 1280, Height: 720}, {Width: 640, Height: 480}}
	previews := []sizing.Resolution{
		{Width: 1920, Height: 1080},
		{Width: 1440, Height: 1080},
		{Width: 1280, Height: 960},
		{Width: 1280, Height: 720},
		{Width: 960, Height: 720},
		{Width: 640, Height: 480},
		{Width: 320, Height: 240},
	}
	array := sizing.Resolution{Width: 4032, Height: 3024}
	return []Camera{
		{ID: "0", Characteristics: hal.Characteristics{
			SensorOrientation: 90,
			LensFacing:        hal.LensFacingBack,
			StillSizes:        stills,
			PreviewSizes:      previews,
			ActiveArraySize:   array,
			MaxAFRegions:      1,
		}},
		{ID: "1", Characteristics: hal.Characteristics{
			SensorOrientation: 270,
			LensFacing:        hal.LensFacingFront,
			StillSizes:        stills,
			PreviewSizes:      previews,
			ActiveArraySize:   array,
		}},
	}
}

// System is a simulated camera subsystem.
type System struct {
	mu     sync.Mutex
	opts   Options
	logger *slog.Logger

	cameras  map[string]Camera
	rotation orientation.Rotation
	granted  map[hal.Permission]bool
	prompt   []func()

	nextTexture int64
	textures    map[int64]*texture
	nextSurface int
	receivers   map[string]*imageReceiver

	devices  map[string]*device
	sessions int

	failOpen      hal.DeviceErrorCode
	failConfigure bool
	failCapture   bool
	failEncoder   bool

	holdCaptures bool
	heldCaptures []func()

	calls      []string
	repeating  []hal.Request
	captures   []hal.Request
	violations []string
	encoders   []*encoder
}

// New creates a System. Cameras default to DefaultCameras.
func New(opts Options) *System {
	if len(opts.Cameras) == 0 {
		opts.Cameras = DefaultCameras()
	}
	if opts.RecordingDuration <= 0 {
		opts.RecordingDuration = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("sim")
	}
	s := &System{
		opts:      opts,
		logger:    logger,
		cameras:   make(map[string]Camera),
		rotation:  opts.Rotation,
		granted:   map[hal.Permission]bool{hal.PermissionCamera: true, hal.PermissionMicrophone: true},
		textures:  make(map[int64]*texture),
		receivers: make(map[string]*imageReceiver),
		devices:   make(map[string]*device),
	}
	for _, c := range opts.Cameras {
		s.cameras[c.ID] = c
	}
	for _, p := range opts.Ungranted {
		s.granted[p] = false
	}
	return s
}

// Backend returns the system as controller collaborators.
func (s *System) Backend() hal.Backend {
	return hal.Backend{
		Registry:    registry{s},
		Textures:    s,
		Images:      s,
		Encoders:    s,
		Permissions: permissions{s},
		Display:     s,
	}
}

func (s *System) record(format string, args ...any) {
	call := fmt.Sprintf(format, args...)
	s.calls = append(s.calls, call)
	s.logger.Debug("Simulated call", "call", call)
}

// Calls returns the log of hardware calls in order.
func (s *System) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.calls)
}

// RepeatingRequests returns every repeating request set, oldest first.
func (s *System) RepeatingRequests() []hal.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.repeating)
}

// Captures returns every one-shot request submitted, oldest first.
func (s *System) Captures() []hal.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.captures)
}

// Violations lists sessions created while another session of the same
// device was still open.
func (s *System) Violations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.violations)
}

// OpenSessions counts sessions that have not been closed.
func (s *System) OpenSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions
}

// OpenDevices counts devices that have not been closed.
func (s *System) OpenDevices() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, d := range s.devices {
		if !d.closed {
			n++
		}
	}
	return n
}

// FailNextOpen makes the next device open report code.
func (s *System) FailNextOpen(code hal.DeviceErrorCode) {
	s.mu.Lock()
	s.failOpen = code
	s.mu.Unlock()
}

// FailNextConfigure makes the next session fail configuration.
func (s *System) FailNextConfigure() {
	s.mu.Lock()
	s.failConfigure = true
	s.mu.Unlock()
}

// FailNextCapture makes the next one-shot capture fail.
func (s *System) FailNextCapture() {
	s.mu.Lock()
	s.failCapture = true
	s.mu.Unlock()
}

// HoldCaptures queues one-shot capture results until ReleaseCaptures is
// called, like a device with a deep request pipeline.
func (s *System) HoldCaptures() {
	s.mu.Lock()
	s.holdCaptures = true
	s.mu.Unlock()
}

// ReleaseCaptures delivers queued capture results in submission order and
// stops holding new ones.
func (s *System) ReleaseCaptures() {
	s.mu.Lock()
	held := s.heldCaptures
	s.heldCaptures = nil
	s.holdCaptures = false
	s.mu.Unlock()
	for _, deliver := range held {
		deliver()
	}
}

// FailNextEncoder makes the next encoder preparation fail.
func (s *System) FailNextEncoder() {
	s.mu.Lock()
	s.failEncoder = true
	s.mu.Unlock()
}

// Disconnect reports the open device id as disconnected.
func (s *System) Disconnect(id string) {
	s.notifyDevice(id, hal.DeviceDisconnected{})
}

// InjectError reports a fatal error on the open device id.
func (s *System) InjectError(id string, code hal.DeviceErrorCode) {
	s.notifyDevice(id, hal.DeviceError{Code: code})
}

func (s *System) notifyDevice(id string, ev hal.Event) {
	s.mu.Lock()
	d, ok := s.devices[id]
	if !ok || d.closed {
		s.mu.Unlock()
		return
	}
	s.record("inject %s %T", id, ev)
	notify := d.notify
	s.mu.Unlock()
	notify(ev)
}

// SetRotation changes the display rotation.
func (s *System) SetRotation(r orientation.Rotation) {
	s.mu.Lock()
	s.rotation = r
	s.mu.Unlock()
}

// Rotation implements hal.Display.
func (s *System) Rotation() orientation.Rotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rotation
}

// ResolvePermissionPrompt completes held permission requests.
func (s *System) ResolvePermissionPrompt() {
	s.mu.Lock()
	prompt := s.prompt
	s.prompt = nil
	s.mu.Unlock()
	for _, done := range prompt {
		done()
	}
}

type permissions struct{ s *System }

func (p permissions) Granted(perm hal.Permission) bool {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	return p.s.granted[perm]
}

func (p permissions) Request(perms []hal.Permission, done func()) {
	s := p.s
	s.mu.Lock()
	s.record("requestPermissions %v", perms)
	for _, perm := range perms {
		if !slices.Contains(s.opts.Denied, perm) {
			s.granted[perm] = true
		}
	}
	if s.opts.HoldPermissionPrompt {
		s.prompt = append(s.prompt, done)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	done()
}

type surface string

func (s surface) SurfaceID() string { return string(s) }

func (s *System) newSurfaceID(kind string) string {
	s.nextSurface++
	return fmt.Sprintf("%s-%d", kind, s.nextSurface)
}

type texture struct {
	s        *System
	id       int64
	size     sizing.Resolution
	released bool
}

// CreateTexture implements hal.TextureRegistry.
func (s *System) CreateTexture() (hal.Texture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTexture++
	t := &texture{s: s, id: s.nextTexture}
	s.textures[t.id] = t
	s.record("createTexture %d", t.id)
	return t, nil
}

// TextureReleased reports whether texture id has been released.
func (s *System) TextureReleased(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.textures[id]
	return ok && t.released
}

func (t *texture) ID() int64 { return t.id }

func (t *texture) Surface(size sizing.Resolution) hal.Surface {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.size = size
	return surface(fmt.Sprintf("texture-%d", t.id))
}

func (t *texture) Release() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	t.released = true
	t.s.record("releaseTexture %d", t.id)
}
