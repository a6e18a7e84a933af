package recording

import (
	"errors"
	"slices"
	"testing"

	"github.com/smazurov/camctl/internal/hal"
)

type surface string

func (s surface) SurfaceID() string { return string(s) }

type mockEncoder struct {
	calls    []string
	startErr error
	stopErr  error
}

func (m *mockEncoder) InputSurface() hal.Surface { return surface("encoder") }
func (m *mockEncoder) Start() error              { m.calls = append(m.calls, "start"); return m.startErr }
func (m *mockEncoder) Stop() error               { m.calls = append(m.calls, "stop"); return m.stopErr }
func (m *mockEncoder) Reset()                    { m.calls = append(m.calls, "reset") }
func (m *mockEncoder) Release()                  { m.calls = append(m.calls, "release") }

type mockFactory struct {
	enc *mockEncoder
	err error
	cfg hal.EncoderConfig
}

func (f *mockFactory) NewEncoder(cfg hal.EncoderConfig) (hal.Encoder, error) {
	f.cfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.enc, nil
}

type transitionLog []string

func (l *transitionLog) record(from, to State, _ string) {
	*l = append(*l, from.String()+"->"+to.String())
}

func TestRecorderLifecycle(t *testing.T) {
	enc := &mockEncoder{}
	var log transitionLog
	r := NewRecorder(&mockFactory{enc: enc}, nil, log.record)

	s, err := r.Prepare(hal.EncoderConfig{OutputPath: "/tmp/clip.mp4"})
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if s.SurfaceID() != "encoder" {
		t.Errorf("surface = %q", s.SurfaceID())
	}
	if err := r.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	path, err := r.Stop()
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if path != "/tmp/clip.mp4" {
		t.Errorf("path = %q", path)
	}
	if err := r.Finish(); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}

	wantLog := []string{"idle->preparing", "preparing->recording", "recording->stopping", "stopping->idle"}
	if !slices.Equal(log, wantLog) {
		t.Errorf("transitions = %v, want %v", log, wantLog)
	}
	wantCalls := []string{"start", "stop", "reset", "release"}
	if !slices.Equal(enc.calls, wantCalls) {
		t.Errorf("encoder calls = %v, want %v", enc.calls, wantCalls)
	}
}

func TestRecorderIllegalTransitions(t *testing.T) {
	r := NewRecorder(&mockFactory{enc: &mockEncoder{}}, nil, nil)

	if err := r.Start(); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Start() from idle error = %v", err)
	}
	if _, err := r.Stop(); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Stop() from idle error = %v", err)
	}
	if err := r.Finish(); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Finish() from idle error = %v", err)
	}

	if _, err := r.Prepare(hal.EncoderConfig{}); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Prepare(hal.EncoderConfig{}); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("second Prepare() error = %v", err)
	}
	if _, err := r.Stop(); !errors.Is(err, ErrIllegalTransition) {
		t.Errorf("Stop() from preparing error = %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	all := []State{StateIdle, StatePreparing, StateRecording, StateStopping}
	legal := map[[2]State]bool{
		{StateIdle, StatePreparing}:      true,
		{StatePreparing, StateIdle}:      true,
		{StatePreparing, StateRecording}: true,
		{StateRecording, StateStopping}:  true,
		{StateStopping, StateIdle}:       true,
	}
	for _, from := range all {
		for _, to := range all {
			if got := CanTransition(from, to); got != legal[[2]State{from, to}] {
				t.Errorf("CanTransition(%s, %s) = %v", from, to, got)
			}
		}
	}
}

func TestRecorderPrepareFailureStaysIdle(t *testing.T) {
	r := NewRecorder(&mockFactory{err: errors.New("no codec")}, nil, nil)
	if _, err := r.Prepare(hal.EncoderConfig{}); err == nil {
		t.Fatal("expected error")
	}
	if r.State() != StateIdle {
		t.Errorf("state = %s, want idle", r.State())
	}
}

func TestRecorderStartFailureReleases(t *testing.T) {
	enc := &mockEncoder{startErr: errors.New("busy")}
	r := NewRecorder(&mockFactory{enc: enc}, nil, nil)
	if _, err := r.Prepare(hal.EncoderConfig{}); err != nil {
		t.Fatal(err)
	}
	if err := r.Start(); err == nil {
		t.Fatal("expected error")
	}
	if r.State() != StateIdle {
		t.Errorf("state = %s, want idle", r.State())
	}
	if !slices.Contains(enc.calls, "release") {
		t.Errorf("encoder not released: %v", enc.calls)
	}
}

func TestRecorderStopFailureStillResets(t *testing.T) {
	enc := &mockEncoder{stopErr: errors.New("no frames")}
	r := NewRecorder(&mockFactory{enc: enc}, nil, nil)
	_, _ = r.Prepare(hal.EncoderConfig{OutputPath: "/tmp/x.mp4"})
	_ = r.Start()

	if _, err := r.Stop(); err == nil {
		t.Fatal("expected stop error")
	}
	if r.State() != StateStopping {
		t.Errorf("state = %s, want stopping", r.State())
	}
	if err := r.Finish(); err != nil {
		t.Fatal(err)
	}
	want := []string{"start", "stop", "reset", "release"}
	if !slices.Equal(enc.calls, want) {
		t.Errorf("calls = %v, want %v", enc.calls, want)
	}
}

func TestRecorderAbort(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(r *Recorder)
		wantCalls []string
	}{
		{"idle", func(*Recorder) {}, nil},
		{"preparing", func(r *Recorder) { _, _ = r.Prepare(hal.EncoderConfig{}) }, []string{"release"}},
		{"recording", func(r *Recorder) {
			_, _ = r.Prepare(hal.EncoderConfig{})
			_ = r.Start()
		}, []string{"start", "stop", "reset", "release"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := &mockEncoder{}
			r := NewRecorder(&mockFactory{enc: enc}, nil, nil)
			tt.setup(r)
			r.Abort()
			if r.State() != StateIdle {
				t.Errorf("state = %s, want idle", r.State())
			}
			if !slices.Equal(enc.calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", enc.calls, tt.wantCalls)
			}
		})
	}
}
