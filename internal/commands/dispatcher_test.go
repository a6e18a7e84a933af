package commands

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"github.com/smazurov/camctl/internal/camera"
	"github.com/smazurov/camctl/internal/hal"
	"github.com/smazurov/camctl/internal/hal/sim"
	"github.com/smazurov/camctl/internal/mp4"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newDispatcher(t *testing.T, opts sim.Options, extra ...Option) (*Dispatcher, *sim.System) {
	t.Helper()
	system := sim.New(opts)
	d := New(system.Backend(), nil, extra...)
	t.Cleanup(func() {
		if err := d.Dispose(context.Background()); err != nil {
			t.Errorf("Dispose() error = %v", err)
		}
	})
	return d, system
}

func wantWireCode(t *testing.T, err error, code string) {
	t.Helper()
	var we *Error
	if !errors.As(err, &we) {
		t.Fatalf("error = %v, want wire error %s", err, code)
	}
	if we.Code != code {
		t.Errorf("code = %s, want %s (%s)", we.Code, code, we.Message)
	}
}

func initialize(t *testing.T, d *Dispatcher) InitializeResult {
	t.Helper()
	res, err := d.Initialize(context.Background(), InitializeParams{CameraName: "0", ResolutionPreset: "high"})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	return res
}

func TestWireError(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{camera.NewError(camera.ErrCodePermissionDenied, "m", nil), CodeCameraPermission},
		{camera.NewError(camera.ErrCodeDeviceAccess, "m", nil), CodeCameraAccess},
		{camera.NewError(camera.ErrCodeFileAlreadyExists, "m", nil), CodeFileExists},
		{camera.NewError(camera.ErrCodeCaptureFailed, "m", nil), CodeCaptureFailure},
		{camera.NewError(camera.ErrCodeConfigureFailed, "m", nil), CodeConfigureFailed},
		{camera.NewError(camera.ErrCodeVideoRecordingFailed, "m", nil), CodeVideoRecordingFailed},
		{camera.NewError(camera.ErrCodeUnknownPreset, "m", nil), CodeIllegalArgument},
		{camera.NewError(camera.ErrCodeIO, "m", nil), CodeIOError},
		{camera.NewError(camera.ErrCodeDeviceNotReady, "m", nil), CodeCameraNotReady},
		{errors.New("boom"), CodeCameraAccess},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := WireError(tt.err); got.Code != tt.want {
				t.Errorf("WireError(%v).Code = %s, want %s", tt.err, got.Code, tt.want)
			}
		})
	}
	if WireError(nil) != nil {
		t.Error("WireError(nil) != nil")
	}
}

func TestAvailableCameras(t *testing.T) {
	d, _ := newDispatcher(t, sim.Options{})
	got, err := d.AvailableCameras(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := []CameraDescription{{Name: "0", LensFacing: "back"}, {Name: "1", LensFacing: "front"}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AvailableCameras() mismatch (-want +got):\n%s", diff)
	}
}

func TestInitialize(t *testing.T) {
	d, system := newDispatcher(t, sim.Options{})
	res := initialize(t, d)
	if res.TextureID != 1 || res.PreviewWidth != 1280 || res.PreviewHeight != 960 {
		t.Errorf("Initialize() = %+v", res)
	}

	// a second initialize replaces the first camera
	res2 := initialize(t, d)
	if res2.TextureID == res.TextureID {
		t.Error("second Initialize() reused the texture")
	}
	if !system.TextureReleased(res.TextureID) {
		t.Error("first texture not released")
	}
	if n := system.OpenDevices(); n != 1 {
		t.Errorf("open devices = %d, want 1", n)
	}
}

func TestInitializeErrors(t *testing.T) {
	tests := []struct {
		name   string
		opts   sim.Options
		params InitializeParams
		code   string
	}{
		{"unknown preset", sim.Options{}, InitializeParams{CameraName: "0", ResolutionPreset: "max"}, CodeIllegalArgument},
		{"missing camera name", sim.Options{}, InitializeParams{ResolutionPreset: "low"}, CodeIllegalArgument},
		{"unknown camera", sim.Options{}, InitializeParams{CameraName: "7", ResolutionPreset: "low"}, CodeCameraAccess},
		{"permission denied", sim.Options{
			Ungranted: []hal.Permission{hal.PermissionCamera},
			Denied:    []hal.Permission{hal.PermissionCamera},
		}, InitializeParams{CameraName: "0", ResolutionPreset: "low"}, CodeCameraPermission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _ := newDispatcher(t, tt.opts)
			_, err := d.Initialize(context.Background(), tt.params)
			wantWireCode(t, err, tt.code)
			if _, _, ok := d.Current(); ok {
				t.Error("failed Initialize() left a camera")
			}
		})
	}
}

func TestCommandsWithoutCamera(t *testing.T) {
	d, _ := newDispatcher(t, sim.Options{})
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "a")

	wantWireCode(t, d.TakePicture(ctx, path), CodeCameraNotReady)
	wantWireCode(t, d.StartVideoRecording(ctx, path), CodeCameraNotReady)
	wantWireCode(t, d.StopVideoRecording(ctx, ""), CodeCameraNotReady)
	wantWireCode(t, d.FocusCamera(ctx, 1, 1, 2, 2), CodeCameraNotReady)
	if err := d.Pause(ctx); err != nil {
		t.Errorf("Pause() error = %v", err)
	}
	if err := d.Dispose(ctx); err != nil {
		t.Errorf("Dispose() error = %v", err)
	}
}

func TestPictureAndRecording(t *testing.T) {
	d, _ := newDispatcher(t, sim.Options{TimestampDefect: true}, WithRepairer(mp4.Repairer{}))
	initialize(t, d)
	ctx := context.Background()
	dir := t.TempDir()

	still := filepath.Join(dir, "still.jpg")
	if err := d.TakePicture(ctx, still); err != nil {
		t.Fatalf("TakePicture() error = %v", err)
	}
	wantWireCode(t, d.TakePicture(ctx, still), CodeFileExists)

	clip := filepath.Join(dir, "clip.mp4")
	if err := d.StartVideoRecording(ctx, clip); err != nil {
		t.Fatalf("StartVideoRecording() error = %v", err)
	}
	if err := d.StopVideoRecording(ctx, ""); err != nil {
		t.Fatalf("StopVideoRecording() error = %v", err)
	}
	if _, err := os.Stat(clip); err != nil {
		t.Errorf("recording missing: %v", err)
	}
	if err := d.FocusCamera(ctx, 10, 10, 100, 100); err != nil {
		t.Errorf("FocusCamera() error = %v", err)
	}
	wantWireCode(t, d.FocusCamera(ctx, 10, 10, 0, 100), CodeIllegalArgument)
}

func TestPauseResume(t *testing.T) {
	d, system := newDispatcher(t, sim.Options{})
	res := initialize(t, d)
	ctx := context.Background()

	if err := d.Pause(ctx); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if n := system.OpenDevices(); n != 0 {
		t.Errorf("open devices while paused = %d, want 0", n)
	}
	if err := d.Resume(ctx); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	id, _, ok := d.Current()
	if !ok || id != res.TextureID {
		t.Errorf("Current() = %d, %v; want %d", id, ok, res.TextureID)
	}
	if n := system.OpenDevices(); n != 1 {
		t.Errorf("open devices after resume = %d, want 1", n)
	}
}

func TestCall(t *testing.T) {
	d, _ := newDispatcher(t, sim.Options{})
	ctx := context.Background()

	out, err := d.Call(ctx, MethodInitialize, json.RawMessage(`{"cameraName":"1","resolutionPreset":"medium"}`))
	if err != nil {
		t.Fatalf("Call(initialize) error = %v", err)
	}
	res, ok := out.(InitializeResult)
	if !ok || res.PreviewWidth != 960 {
		t.Errorf("Call(initialize) = %#v", out)
	}

	path := filepath.Join(t.TempDir(), "a.jpg")
	args, _ := json.Marshal(map[string]string{"path": path})
	if _, err := d.Call(ctx, MethodTakePicture, args); err != nil {
		t.Errorf("Call(takePicture) error = %v", err)
	}

	_, err = d.Call(ctx, "setFlashMode", nil)
	wantWireCode(t, err, CodeNotImplemented)

	_, err = d.Call(ctx, MethodFocusCamera, json.RawMessage(`{"x":"left"}`))
	wantWireCode(t, err, CodeIllegalArgument)

	if _, err := d.Call(ctx, MethodDispose, nil); err != nil {
		t.Errorf("Call(dispose) error = %v", err)
	}
	if _, _, ok := d.Current(); ok {
		t.Error("camera still present after dispose")
	}
}
