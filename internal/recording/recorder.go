package recording

import (
	"fmt"
	"log/slog"

	"github.com/smazurov/camctl/internal/hal"
)

// Recorder drives one encoder through the recording lifecycle. It is not
// safe for concurrent use; the camera controller goroutine owns it.
type Recorder struct {
	encoders hal.EncoderFactory
	logger   *slog.Logger
	onChange func(from, to State, path string)

	state   State
	encoder hal.Encoder
	path    string
}

// NewRecorder creates an idle recorder. onChange, when set, is called after
// every transition.
func NewRecorder(encoders hal.EncoderFactory, logger *slog.Logger, onChange func(from, to State, path string)) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{encoders: encoders, logger: logger, onChange: onChange}
}

// State returns the current state.
func (r *Recorder) State() State {
	return r.state
}

// OutputPath returns the path of the current or last recording.
func (r *Recorder) OutputPath() string {
	return r.path
}

func (r *Recorder) transition(to State) error {
	from := r.state
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	r.state = to
	r.logger.Debug("Recording state changed", "from", from.String(), "to", to.String(), "path", r.path)
	if r.onChange != nil {
		r.onChange(from, to, r.path)
	}
	return nil
}

// Prepare configures an encoder for cfg and returns its input surface.
// Idle -> Preparing. On failure the recorder stays Idle.
func (r *Recorder) Prepare(cfg hal.EncoderConfig) (hal.Surface, error) {
	if r.state != StateIdle {
		return nil, fmt.Errorf("%w: prepare while %s", ErrIllegalTransition, r.state)
	}
	enc, err := r.encoders.NewEncoder(cfg)
	if err != nil {
		return nil, fmt.Errorf("prepare encoder: %w", err)
	}
	r.encoder = enc
	r.path = cfg.OutputPath
	if err := r.transition(StatePreparing); err != nil {
		r.release()
		return nil, err
	}
	return enc.InputSurface(), nil
}

// Start begins encoding. Preparing -> Recording. A start failure releases
// the encoder and returns to Idle.
func (r *Recorder) Start() error {
	if r.state != StatePreparing {
		return fmt.Errorf("%w: start while %s", ErrIllegalTransition, r.state)
	}
	if err := r.encoder.Start(); err != nil {
		r.release()
		_ = r.transition(StateIdle)
		return fmt.Errorf("start encoder: %w", err)
	}
	return r.transition(StateRecording)
}

// Stop finalizes the output file. Recording -> Stopping. The encoder is
// stopped and reset even when Stop fails; Finish must follow either way.
func (r *Recorder) Stop() (string, error) {
	if err := r.transition(StateStopping); err != nil {
		return "", err
	}
	err := r.encoder.Stop()
	r.encoder.Reset()
	if err != nil {
		return r.path, fmt.Errorf("stop encoder: %w", err)
	}
	return r.path, nil
}

// Finish releases the encoder after Stop. Stopping -> Idle.
func (r *Recorder) Finish() error {
	if r.state != StateStopping {
		return fmt.Errorf("%w: finish while %s", ErrIllegalTransition, r.state)
	}
	r.release()
	return r.transition(StateIdle)
}

// Abort tears down whatever recording is in progress without producing a
// usable file. It is a no-op when idle.
func (r *Recorder) Abort() {
	switch r.state {
	case StatePreparing:
		r.release()
		_ = r.transition(StateIdle)
	case StateRecording:
		_ = r.transition(StateStopping)
		if err := r.encoder.Stop(); err != nil {
			r.logger.Warn("Encoder stop failed during abort", "error", err)
		}
		r.encoder.Reset()
		r.release()
		_ = r.transition(StateIdle)
	case StateStopping:
		r.release()
		_ = r.transition(StateIdle)
	}
}

func (r *Recorder) release() {
	if r.encoder == nil {
		return
	}
	r.encoder.Release()
	r.encoder = nil
}
