// Package commands implements the camera command surface shared by the HTTP
// and NATS bindings. A Dispatcher owns at most one camera controller at a
// time, the way a single preview widget owns one camera.
package commands

import (
	"context"
	"log/slog"
	"sync"

	"github.com/smazurov/camctl/internal/camera"
	"github.com/smazurov/camctl/internal/events"
	"github.com/smazurov/camctl/internal/hal"
	"github.com/smazurov/camctl/internal/logging"
)

// CameraDescription identifies an available camera.
type CameraDescription struct {
	Name       string `json:"name" example:"0" doc:"Camera id to pass to initialize"`
	LensFacing string `json:"lensFacing" example:"back" enum:"front,back,external" doc:"Direction the camera faces"`
}

// InitializeParams selects the camera and recording parameters.
type InitializeParams struct {
	CameraName           string  `json:"cameraName" example:"0" doc:"Camera id from availableCameras"`
	ResolutionPreset     string  `json:"resolutionPreset" example:"high" doc:"low, medium or high"`
	PreferredAspectRatio float64 `json:"preferredAspectRatio,omitempty" example:"1.3333" doc:"Preview aspect ratio; 0 uses the still capture ratio"`
	VideoEncodingBitRate int     `json:"videoEncodingBitRate,omitempty" example:"4000000" doc:"Recording bit rate"`
	VideoFrameRate       int     `json:"videoFrameRate,omitempty" example:"30" doc:"Recording frame rate"`
	AudioSamplingRate    int     `json:"audioSamplingRate,omitempty" example:"44100" doc:"Recording audio sample rate"`
}

// InitializeResult describes the opened camera.
type InitializeResult struct {
	TextureID     int64 `json:"textureId" example:"1" doc:"Preview texture id; scopes the event stream"`
	PreviewWidth  int   `json:"previewWidth" example:"1280" doc:"Preview width in pixels"`
	PreviewHeight int   `json:"previewHeight" example:"960" doc:"Preview height in pixels"`
}

// Defaults fill InitializeParams fields left at zero.
type Defaults struct {
	VideoBitRate       int
	VideoFrameRate     int
	AudioSampleRate    int
	MaxRecordShortSide int
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithRepairer sets the recording repair step for every controller.
func WithRepairer(r camera.Repairer) Option {
	return func(d *Dispatcher) { d.repairer = r }
}

// WithDefaults sets recording defaults.
func WithDefaults(def Defaults) Option {
	return func(d *Dispatcher) { d.defaults = def }
}

// WithLogger overrides the module logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// Dispatcher executes camera commands.
type Dispatcher struct {
	backend  hal.Backend
	sink     events.Sink
	repairer camera.Repairer
	defaults Defaults
	logger   *slog.Logger

	mu            sync.Mutex
	current       *camera.Controller
	initializing  bool
	paused        bool
	recordingPath string
}

// New creates a Dispatcher over backend. Controller events go to sink.
func New(backend hal.Backend, sink events.Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		backend: backend,
		sink:    sink,
		defaults: Defaults{
			VideoBitRate:    4_000_000,
			VideoFrameRate:  30,
			AudioSampleRate: 44100,
		},
		logger: logging.GetLogger("commands"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func await[T any](ctx context.Context, ch <-chan T) (T, error) {
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (d *Dispatcher) controller() (*camera.Controller, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil, errNoCamera
	}
	return d.current, nil
}

// detach removes the current controller and returns it for disposal.
func (d *Dispatcher) detach() *camera.Controller {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.current
	d.current = nil
	d.paused = false
	d.recordingPath = ""
	return c
}

func (d *Dispatcher) dispose(ctx context.Context, c *camera.Controller) error {
	if c == nil {
		return nil
	}
	_, err := await(ctx, c.Dispose())
	return err
}

// Init resets the dispatcher, disposing any open camera.
func (d *Dispatcher) Init(ctx context.Context) error {
	return d.dispose(ctx, d.detach())
}

// Dispose releases the current camera. It succeeds when none is open.
func (d *Dispatcher) Dispose(ctx context.Context) error {
	c := d.detach()
	if c != nil {
		d.logger.Info("Disposing camera", "texture_id", c.TextureID())
	}
	return d.dispose(ctx, c)
}

// AvailableCameras lists the cameras of the backend.
func (d *Dispatcher) AvailableCameras(_ context.Context) ([]CameraDescription, error) {
	ids, err := d.backend.Registry.CameraIDs()
	if err != nil {
		return nil, &Error{Code: CodeCameraAccess, Message: err.Error()}
	}
	cams := make([]CameraDescription, 0, len(ids))
	for _, id := range ids {
		chars, err := d.backend.Registry.Characteristics(id)
		if err != nil {
			return nil, &Error{Code: CodeCameraAccess, Message: err.Error()}
		}
		cams = append(cams, CameraDescription{Name: id, LensFacing: chars.LensFacing.String()})
	}
	return cams, nil
}

// Initialize replaces the current camera with a new controller for params
// and opens it.
func (d *Dispatcher) Initialize(ctx context.Context, params InitializeParams) (InitializeResult, error) {
	if params.CameraName == "" {
		return InitializeResult{}, illegalArgument("cameraName is required")
	}
	if params.PreferredAspectRatio < 0 {
		return InitializeResult{}, illegalArgument("preferredAspectRatio must not be negative")
	}

	d.mu.Lock()
	if d.initializing {
		d.mu.Unlock()
		return InitializeResult{}, &Error{Code: CodeCameraPermission, Message: "Camera permission request ongoing"}
	}
	d.initializing = true
	prev := d.current
	d.current = nil
	d.paused = false
	d.recordingPath = ""
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.initializing = false
		d.mu.Unlock()
	}()

	if err := d.dispose(ctx, prev); err != nil {
		return InitializeResult{}, err
	}

	cfg := camera.Config{
		CameraID:           params.CameraName,
		Preset:             params.ResolutionPreset,
		AspectRatio:        params.PreferredAspectRatio,
		VideoBitRate:       orDefault(params.VideoEncodingBitRate, d.defaults.VideoBitRate),
		VideoFrameRate:     orDefault(params.VideoFrameRate, d.defaults.VideoFrameRate),
		AudioSampleRate:    orDefault(params.AudioSamplingRate, d.defaults.AudioSampleRate),
		MaxRecordShortSide: d.defaults.MaxRecordShortSide,
	}
	var opts []camera.Option
	if d.repairer != nil {
		opts = append(opts, camera.WithRepairer(d.repairer))
	}
	c, err := camera.New(cfg, d.backend, d.sink, opts...)
	if err != nil {
		return InitializeResult{}, WireError(err)
	}

	res, err := await(ctx, c.Open())
	if err == nil {
		err = res.Err
	}
	if err != nil {
		d.logger.Warn("Camera initialization failed", "camera", params.CameraName, "error", err)
		_ = d.dispose(context.Background(), c)
		return InitializeResult{}, WireError(err)
	}

	d.mu.Lock()
	d.current = c
	d.mu.Unlock()

	d.logger.Info("Camera initialized",
		"camera", params.CameraName,
		"preset", params.ResolutionPreset,
		"texture_id", res.TextureID,
		"preview", res.PreviewSize.String())
	return InitializeResult{
		TextureID:     res.TextureID,
		PreviewWidth:  res.PreviewSize.Width,
		PreviewHeight: res.PreviewSize.Height,
	}, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// TakePicture captures a still to path.
func (d *Dispatcher) TakePicture(ctx context.Context, path string) error {
	if path == "" {
		return illegalArgument("path is required")
	}
	c, err := d.controller()
	if err != nil {
		return err
	}
	return d.result(ctx, c.TakePicture(path))
}

// StartVideoRecording starts recording to path.
func (d *Dispatcher) StartVideoRecording(ctx context.Context, path string) error {
	if path == "" {
		return illegalArgument("filePath is required")
	}
	c, err := d.controller()
	if err != nil {
		return err
	}
	if err := d.result(ctx, c.StartVideoRecording(path)); err != nil {
		return err
	}
	d.mu.Lock()
	d.recordingPath = path
	d.mu.Unlock()
	return nil
}

// StopVideoRecording stops the current recording. An empty path stops the
// recording started last.
func (d *Dispatcher) StopVideoRecording(ctx context.Context, path string) error {
	c, err := d.controller()
	if err != nil {
		return err
	}
	d.mu.Lock()
	if path == "" {
		path = d.recordingPath
	}
	d.mu.Unlock()
	if err := d.result(ctx, c.StopVideoRecording(path)); err != nil {
		return err
	}
	d.mu.Lock()
	d.recordingPath = ""
	d.mu.Unlock()
	return nil
}

// FocusCamera focuses on the point (x, y) of a width x height view.
func (d *Dispatcher) FocusCamera(ctx context.Context, x, y, width, height float64) error {
	if width <= 0 || height <= 0 {
		return illegalArgument("width and height must be positive")
	}
	c, err := d.controller()
	if err != nil {
		return err
	}
	return d.result(ctx, c.Focus(x, y, width, height))
}

// Pause closes the camera device while keeping the controller, its texture
// and its sizes for Resume.
func (d *Dispatcher) Pause(ctx context.Context) error {
	d.mu.Lock()
	c := d.current
	if c == nil || d.paused {
		d.mu.Unlock()
		return nil
	}
	d.paused = true
	d.recordingPath = ""
	d.mu.Unlock()

	_, err := await(ctx, c.Close())
	return err
}

// Resume reopens a paused camera.
func (d *Dispatcher) Resume(ctx context.Context) error {
	d.mu.Lock()
	c := d.current
	if c == nil || !d.paused {
		d.mu.Unlock()
		return nil
	}
	d.paused = false
	d.mu.Unlock()

	res, err := await(ctx, c.Open())
	if err != nil {
		return err
	}
	return WireError(res.Err).orNil()
}

// Current returns the texture id and state of the open camera.
func (d *Dispatcher) Current() (textureID int64, state camera.State, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return 0, camera.StateClosed, false
	}
	return d.current.TextureID(), d.current.State(), true
}

func (d *Dispatcher) result(ctx context.Context, ch <-chan error) error {
	err, werr := await(ctx, ch)
	if werr != nil {
		return werr
	}
	return WireError(err).orNil()
}

// orNil keeps a nil *Error from becoming a non-nil error interface.
func (e *Error) orNil() error {
	if e == nil {
		return nil
	}
	return e
}
