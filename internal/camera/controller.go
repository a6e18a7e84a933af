// Package camera drives one camera device through preview, still capture,
// focus and video recording.
//
// A Controller owns a single goroutine. Public methods and hardware
// notifications are both turned into operations on that goroutine's mailbox,
// so controller state is never shared. Public methods return immediately with
// a buffered channel that receives exactly one result.
package camera

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/smazurov/camctl/internal/events"
	"github.com/smazurov/camctl/internal/hal"
	"github.com/smazurov/camctl/internal/logging"
	"github.com/smazurov/camctl/internal/mp4"
	"github.com/smazurov/camctl/internal/orientation"
	"github.com/smazurov/camctl/internal/recording"
	"github.com/smazurov/camctl/internal/sizing"
)

// Config selects the device and recording parameters of a controller.
type Config struct {
	CameraID        string
	Preset          string
	AspectRatio     float64
	VideoBitRate    int
	VideoFrameRate  int
	AudioSampleRate int
	// MaxRecordShortSide caps the record size; 0 means sizing.DefaultMaxShortSide.
	MaxRecordShortSide int
}

// Repairer post-processes finished recordings.
type Repairer interface {
	Repair(ctx context.Context, path string) (mp4.Report, error)
}

// Option configures a Controller.
type Option func(*Controller)

// WithRepairer sets the post-recording repair step. Without it recordings
// are left as the encoder wrote them.
func WithRepairer(r Repairer) Option {
	return func(c *Controller) { c.repairer = r }
}

// WithLogger overrides the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// OpenResult is the outcome of Open.
type OpenResult struct {
	TextureID   int64
	PreviewSize sizing.Resolution
	Err         error
}

type noopSink struct{}

func (noopSink) Publish(events.Event) {}

// Controller is the capture session controller for one camera.
type Controller struct {
	cfg      Config
	backend  hal.Backend
	sink     events.Sink
	repairer Repairer
	logger   *slog.Logger

	chars          hal.Characteristics
	texture        hal.Texture
	previewSurface hal.Surface
	captureSize    sizing.Resolution
	previewSize    sizing.Resolution
	recordSize     sizing.Resolution

	box     *mailbox
	done    chan struct{}
	state   atomic.Int32
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup

	// Everything below is owned by the controller goroutine.
	disposed          bool
	deviceGen         uint64
	device            hal.Device
	opening           bool
	permissionPending bool
	pendingOpens      []chan OpenResult
	imagesGen         uint64
	images            hal.ImageReceiver
	repeating         hal.Request
	still             *pendingStill
	focusTag          string
	focusRequest      hal.Request
	recorder          *recording.Recorder
	sessions          sessionState
}

// New resolves sizes for the configured camera, creates the preview texture
// and starts the controller goroutine. The device is not opened until Open.
func New(cfg Config, backend hal.Backend, sink events.Sink, opts ...Option) (*Controller, error) {
	preset, err := sizing.ParsePreset(cfg.Preset)
	if err != nil {
		return nil, NewError(ErrCodeUnknownPreset, "Unknown preset: "+cfg.Preset, err)
	}

	chars, err := backend.Registry.Characteristics(cfg.CameraID)
	if err != nil {
		return nil, NewError(ErrCodeDeviceAccess, fmt.Sprintf("Cannot read characteristics of camera %q", cfg.CameraID), err)
	}

	capture, err := sizing.BestCaptureSize(chars.StillSizes)
	if err != nil {
		return nil, NewError(ErrCodeDeviceAccess, "Camera reports no still sizes", err)
	}

	rotation := orientation.Rotation0
	if backend.Display != nil {
		rotation = backend.Display.Rotation()
	}
	minPreview := sizing.AdjustForDisplayRotation(preset.MinPreviewSize(), rotation.IsQuarterTurn())
	sel, err := sizing.BestPreviewAndRecordSize(chars.PreviewSizes, minPreview,
		sizing.TargetAspectRatio(cfg.AspectRatio, capture), cfg.MaxRecordShortSide)
	if err != nil {
		return nil, NewError(ErrCodeDeviceAccess, "Camera reports no preview sizes", err)
	}

	texture, err := backend.Textures.CreateTexture()
	if err != nil {
		return nil, NewError(ErrCodeDeviceAccess, "Cannot create preview texture", err)
	}

	if sink == nil {
		sink = noopSink{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:         cfg,
		backend:     backend,
		sink:        sink,
		logger:      logging.GetLogger("camera"),
		chars:       chars,
		texture:     texture,
		captureSize: capture,
		previewSize: sel.Preview,
		recordSize:  sel.Record,
		box:         newMailbox(),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("camera_id", cfg.CameraID, "texture_id", texture.ID())
	c.previewSurface = texture.Surface(sel.Preview)
	c.recorder = recording.NewRecorder(backend.Encoders, logging.GetLogger("recording"), c.onRecordingChange)

	if !sel.Ideal {
		c.logger.Warn("No preview size matches the requested aspect ratio, using first reported size",
			"preset", cfg.Preset, "size", sel.Preview.String())
	}
	c.logger.Info("Camera controller created",
		"capture_size", capture.String(),
		"preview_size", sel.Preview.String(),
		"record_size", sel.Record.String())

	go c.run()
	return c, nil
}

func (c *Controller) run() {
	defer func() {
		c.workers.Wait()
		close(c.done)
	}()
	for range c.box.signal {
		ops, closed := c.box.take()
		for _, op := range ops {
			op()
		}
		if closed {
			return
		}
	}
}

func (c *Controller) post(op func()) bool {
	return c.box.post(op)
}

// State returns the current controller state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// TextureID returns the id of the preview texture.
func (c *Controller) TextureID() int64 {
	return c.texture.ID()
}

// PreviewSize returns the selected preview size.
func (c *Controller) PreviewSize() sizing.Resolution {
	return c.previewSize
}

// CaptureSize returns the selected still capture size.
func (c *Controller) CaptureSize() sizing.Resolution {
	return c.captureSize
}

// RecordSize returns the selected recording size.
func (c *Controller) RecordSize() sizing.Resolution {
	return c.recordSize
}

// Done is closed once the controller goroutine has exited after Dispose.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) setState(s State) {
	from := State(c.state.Swap(int32(s)))
	if from == s {
		return
	}
	c.logger.Debug("Camera state changed", "from", from.String(), "to", s.String())
	c.sink.Publish(events.CameraStateChangedEvent{
		TextureID: c.texture.ID(),
		CameraID:  c.cfg.CameraID,
		From:      from.String(),
		To:        s.String(),
		Timestamp: timestamp(),
	})
}

func (c *Controller) publishError(description string) {
	c.logger.Warn("Camera error", "description", description)
	c.sink.Publish(events.CameraErrorEvent{
		TextureID:        c.texture.ID(),
		EventType:        events.EventTypeError,
		ErrorDescription: description,
		Timestamp:        timestamp(),
	})
}

func (c *Controller) onRecordingChange(from, to recording.State, path string) {
	c.sink.Publish(events.RecordingStateChangedEvent{
		TextureID: c.texture.ID(),
		Path:      path,
		From:      from.String(),
		To:        to.String(),
		Timestamp: timestamp(),
	})
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func newTag(kind string) string {
	return kind + "-" + uuid.NewString()
}

func pathExists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// Open obtains camera and microphone permission, opens the device and starts
// the preview. Opening an already open controller answers immediately.
func (c *Controller) Open() <-chan OpenResult {
	res := make(chan OpenResult, 1)
	if !c.post(func() { c.open(res) }) {
		res <- OpenResult{Err: errDisposed}
	}
	return res
}

// Close releases the device, session, still receiver and any recording in
// progress. The texture is kept so Open can resume the same session.
func (c *Controller) Close() <-chan struct{} {
	res := make(chan struct{})
	if !c.post(func() {
		c.teardown()
		c.setState(StateClosed)
		close(res)
	}) {
		close(res)
	}
	return res
}

// Dispose closes the controller, releases the preview texture and stops the
// controller goroutine. The returned channel closes once everything has
// stopped.
func (c *Controller) Dispose() <-chan struct{} {
	c.post(func() {
		if c.disposed {
			return
		}
		c.teardown()
		c.texture.Release()
		c.disposed = true
		c.setState(StateClosed)
		c.cancel()
		c.box.close()
		c.logger.Info("Camera controller disposed")
	})
	return c.done
}

func (c *Controller) open(res chan OpenResult) {
	switch {
	case c.disposed:
		res <- OpenResult{Err: errDisposed}
		return
	case c.permissionPending:
		res <- OpenResult{Err: NewError(ErrCodePermissionDenied, "Camera permission request ongoing", nil)}
		return
	case c.device != nil:
		res <- OpenResult{TextureID: c.texture.ID(), PreviewSize: c.previewSize}
		return
	}

	c.pendingOpens = append(c.pendingOpens, res)
	if c.opening {
		return
	}
	c.opening = true
	c.setState(StateOpening)

	missing := c.missingPermissions()
	if len(missing) == 0 {
		c.openDevice()
		return
	}

	c.permissionPending = true
	c.logger.Info("Requesting permissions", "permissions", missing)
	c.backend.Permissions.Request(missing, func() {
		c.post(c.onPermissionsResolved)
	})
}

func (c *Controller) missingPermissions() []hal.Permission {
	if c.backend.Permissions == nil {
		return nil
	}
	var missing []hal.Permission
	for _, p := range []hal.Permission{hal.PermissionCamera, hal.PermissionMicrophone} {
		if !c.backend.Permissions.Granted(p) {
			missing = append(missing, p)
		}
	}
	return missing
}

func (c *Controller) onPermissionsResolved() {
	c.permissionPending = false
	if c.disposed || !c.opening {
		return
	}

	perms := c.backend.Permissions
	switch {
	case !perms.Granted(hal.PermissionCamera):
		c.failOpen(NewError(ErrCodePermissionDenied, "MediaRecorderCamera permission not granted", nil), StateClosed)
	case !perms.Granted(hal.PermissionMicrophone):
		c.failOpen(NewError(ErrCodePermissionDenied, "MediaRecorderAudio permission not granted", nil), StateClosed)
	default:
		c.openDevice()
	}
}

func (c *Controller) openDevice() {
	if c.images == nil {
		c.imagesGen++
		gen := c.imagesGen
		images, err := c.backend.Images.NewImageReceiver(c.captureSize, 2, func(ev hal.Event) {
			c.post(func() { c.onImageEvent(gen, ev) })
		})
		if err != nil {
			c.failOpen(NewError(ErrCodeDeviceAccess, "Cannot create still image receiver", err), StateClosed)
			return
		}
		c.images = images
	}

	c.deviceGen++
	gen := c.deviceGen
	err := c.backend.Registry.Open(c.cfg.CameraID, func(ev hal.Event) {
		c.post(func() { c.onDeviceEvent(gen, ev) })
	})
	if err != nil {
		c.closeImages()
		c.failOpen(NewError(ErrCodeDeviceAccess, err.Error(), err), StateClosed)
	}
}

func (c *Controller) failOpen(err error, state State) {
	c.opening = false
	c.answerOpens(OpenResult{Err: err})
	c.setState(state)
}

func (c *Controller) answerOpens(r OpenResult) {
	for _, res := range c.pendingOpens {
		res <- r
	}
	c.pendingOpens = nil
}

func (c *Controller) onDeviceEvent(gen uint64, ev hal.Event) {
	if gen != c.deviceGen {
		if opened, ok := ev.(hal.DeviceOpened); ok {
			_ = opened.Device.Close()
		}
		return
	}

	switch e := ev.(type) {
	case hal.DeviceOpened:
		if !c.opening || c.disposed {
			_ = e.Device.Close()
			return
		}
		c.opening = false
		c.device = e.Device
		c.logger.Info("Camera opened")
		c.startPreview()
		c.answerOpens(OpenResult{TextureID: c.texture.ID(), PreviewSize: c.previewSize})

	case hal.DeviceClosed:
		c.sink.Publish(events.CameraClosingEvent{
			TextureID: c.texture.ID(),
			EventType: events.EventTypeCameraClosing,
			Timestamp: timestamp(),
		})

	case hal.DeviceDisconnected:
		if c.device == nil && !c.opening {
			return
		}
		c.failDevice("The camera was disconnected.", StateClosed)

	case hal.DeviceError:
		if c.device == nil && !c.opening {
			return
		}
		c.failDevice(e.Code.Description(), StateError)
	}
}

// failDevice handles loss of the device: the session ends, pending callers
// are answered and an error event is published.
func (c *Controller) failDevice(description string, state State) {
	c.answerOpens(OpenResult{Err: NewError(ErrCodeDeviceAccess, description, nil)})
	c.teardown()
	c.publishError(description)
	c.setState(state)
}

// teardown closes everything except the texture. Callers set the state.
func (c *Controller) teardown() {
	c.answerOpens(OpenResult{Err: errClosed})
	c.opening = false

	if c.still != nil {
		c.still.res <- errClosed
		c.still = nil
	}

	c.resetSessions()
	c.recorder.Abort()

	if c.device != nil {
		if err := c.device.Close(); err != nil {
			c.logger.Warn("Device close failed", "error", err)
		}
		c.device = nil
	}
	c.closeImages()
	c.repeating = hal.Request{}
}

func (c *Controller) closeImages() {
	if c.images == nil {
		return
	}
	if err := c.images.Close(); err != nil {
		c.logger.Debug("Image receiver close failed", "error", err)
	}
	c.images = nil
}

// startPreview rebuilds the session for preview with the still receiver
// attached.
func (c *Controller) startPreview() {
	c.rebuildSession(&sessionPlan{
		name:    "preview",
		outputs: []hal.Surface{c.previewSurface, c.images},
		onConfigured: func(s hal.Session) {
			req := hal.NewRequest(hal.TemplatePreview, c.previewSurface).WithControlMode(hal.ControlModeAuto)
			c.repeating = req
			if err := s.SetRepeating(req); err != nil {
				c.publishError(err.Error())
				return
			}
			c.setState(StatePreviewing)
		},
		onFailed: func() {
			c.publishError("Failed to configure the camera for preview.")
			c.setState(StateError)
		},
		onCancelled: func(reason cancelReason) {
			if reason == cancelDeviceClosed {
				c.publishError("The camera was closed during configuration.")
			}
		},
	})
}
