package sim

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"time"

	"github.com/smazurov/camctl/internal/hal"
	"github.com/smazurov/camctl/internal/mp4"
	"github.com/smazurov/camctl/internal/sizing"
)

// Simulated recordings use millisecond timestamps.
const (
	timescale    = 1000
	videoDelta   = 33
	audioDelta   = 20
	defectDelta  = 15000
	defectLeadIn = 25
)

var errEncoderState = errors.New("encoder in wrong state")

type imageReceiver struct {
	surface
	s      *System
	size   sizing.Resolution
	notify hal.Notify
	closed bool
}

// NewImageReceiver implements hal.ImageReceiverFactory.
func (s *System) NewImageReceiver(size sizing.Resolution, maxImages int, notify hal.Notify) (hal.ImageReceiver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := &imageReceiver{surface: surface(s.newSurfaceID("images")), s: s, size: size, notify: notify}
	s.receivers[r.SurfaceID()] = r
	s.record("newImageReceiver %s %d", size, maxImages)
	return r, nil
}

func (r *imageReceiver) Close() error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.closed = true
	r.s.record("closeImageReceiver %s", r.SurfaceID())
	return nil
}

// encodeStill renders a small gradient whose hue follows the requested JPEG
// orientation, so tests can tell rotated stills apart.
func (r *imageReceiver) encodeStill(orientation int) ([]byte, error) {
	const w, h = 32, 24
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		for x := range w {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 10), B: uint8(orientation % 256), A: 0xFF})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return nil, fmt.Errorf("encode still: %w", err)
	}
	return buf.Bytes(), nil
}

type encoder struct {
	surface
	s       *System
	cfg     hal.EncoderConfig
	started bool
	stopped bool
}

// NewEncoder implements hal.EncoderFactory.
func (s *System) NewEncoder(cfg hal.EncoderConfig) (hal.Encoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("newEncoder %s %s", cfg.OutputPath, cfg.VideoSize)
	if s.failEncoder {
		s.failEncoder = false
		return nil, errors.New("encoder prepare failed")
	}
	e := &encoder{surface: surface(s.newSurfaceID("encoder")), s: s, cfg: cfg}
	s.encoders = append(s.encoders, e)
	return e, nil
}

// EncoderConfigs returns the configuration of every encoder prepared.
func (s *System) EncoderConfigs() []hal.EncoderConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfgs := make([]hal.EncoderConfig, len(s.encoders))
	for i, e := range s.encoders {
		cfgs[i] = e.cfg
	}
	return cfgs
}

func (e *encoder) InputSurface() hal.Surface { return e.surface }

func (e *encoder) Start() error {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	if e.started {
		return errEncoderState
	}
	e.started = true
	e.s.record("startEncoder %s", e.cfg.OutputPath)
	return nil
}

func (e *encoder) Stop() error {
	e.s.mu.Lock()
	if !e.started || e.stopped {
		e.s.mu.Unlock()
		return errEncoderState
	}
	e.stopped = true
	e.s.record("stopEncoder %s", e.cfg.OutputPath)
	duration, defect := e.s.opts.RecordingDuration, e.s.opts.TimestampDefect
	e.s.mu.Unlock()
	return writeRecording(e.cfg, duration, defect)
}

func (e *encoder) Reset() {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.record("resetEncoder %s", e.cfg.OutputPath)
}

func (e *encoder) Release() {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	e.s.record("releaseEncoder %s", e.cfg.OutputPath)
}

// writeRecording writes an MPEG-4 file with one video and one audio track
// covering duration. With defect set, the first audio sample carries an
// inflated delta and extra audio precedes the video; the header durations
// still describe the real sample timing.
func writeRecording(cfg hal.EncoderConfig, duration time.Duration, defect bool) error {
	movie := mp4.NewMovie(timescale, mp4.RotationMatrix(cfg.OrientationHint))
	video := movie.AddVideoTrack(timescale, uint16(cfg.VideoSize.Width), uint16(cfg.VideoSize.Height))
	audio := movie.AddAudioTrack(timescale, 1)

	var payload bytes.Buffer
	appendSample := func(t *mp4.Track, size int, delta uint32, sync bool) {
		t.AppendSample(int64(payload.Len()), uint32(size), delta, sync)
		payload.Write(make([]byte, size))
	}

	frames := max(int(duration.Milliseconds()*30/1000), 1)
	for i := range frames {
		appendSample(video, 64, videoDelta, i%30 == 0)
	}
	videoDuration := uint64(frames) * videoDelta

	audioSamples := int((videoDuration + audioDelta - 1) / audioDelta)
	if defect {
		audioSamples += defectLeadIn
	}
	for i := range audioSamples {
		delta := uint32(audioDelta)
		if defect && i == 0 {
			delta += defectDelta
		}
		appendSample(audio, 16, delta, false)
	}

	movie.UpdateDurations()
	if defect {
		audio.Header.Duration = uint64(audioSamples) * audioDelta
		movie.Header.Duration = max(audio.Header.Duration, video.Header.Duration)
	}

	f, err := os.OpenFile(cfg.OutputPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("create recording: %w", err)
	}
	if err := mp4.Encode(f, movie, bytes.NewReader(payload.Bytes())); err != nil {
		f.Close()
		return fmt.Errorf("write recording: %w", err)
	}
	return f.Close()
}
