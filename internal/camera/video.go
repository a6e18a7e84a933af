package camera

import (
	"github.com/smazurov/camctl/internal/events"
	"github.com/smazurov/camctl/internal/hal"
	"github.com/smazurov/camctl/internal/mp4"
	"github.com/smazurov/camctl/internal/orientation"
	"github.com/smazurov/camctl/internal/recording"
)

// StartVideoRecording records preview frames and microphone audio to an
// MPEG-4 file at path. The path must not exist.
func (c *Controller) StartVideoRecording(path string) <-chan error {
	res := make(chan error, 1)
	if !c.post(func() { c.startRecording(path, res) }) {
		res <- errDisposed
	}
	return res
}

// StopVideoRecording finalizes the current recording, repairs the container
// and restores the preview. It succeeds without effect when nothing is being
// recorded. The file written is the one passed to StartVideoRecording; path
// is only compared against it.
func (c *Controller) StopVideoRecording(path string) <-chan error {
	res := make(chan error, 1)
	if !c.post(func() { c.stopRecording(path, res) }) {
		res <- errDisposed
	}
	return res
}

// RecordingState returns the recording state. It must only be used for
// reporting; the value may be stale by the time it is read.
func (c *Controller) RecordingState() <-chan recording.State {
	res := make(chan recording.State, 1)
	if !c.post(func() { res <- c.recorder.State() }) {
		res <- recording.StateIdle
	}
	return res
}

func (c *Controller) startRecording(path string, res chan error) {
	if c.disposed {
		res <- errDisposed
		return
	}
	if pathExists(path) {
		res <- fileExistsError(path)
		return
	}
	if c.device == nil {
		res <- errNotReady
		return
	}
	if c.recorder.State() != recording.StateIdle {
		res <- NewError(ErrCodeVideoRecordingFailed, "A recording is already in progress", nil)
		return
	}

	cfg := hal.EncoderConfig{
		OutputPath:      path,
		VideoSize:       c.recordSize,
		VideoBitRate:    c.cfg.VideoBitRate,
		VideoFrameRate:  c.cfg.VideoFrameRate,
		AudioSampleRate: c.cfg.AudioSampleRate,
		OrientationHint: orientation.VideoOrientationHint(c.displayDegrees(), c.chars.SensorOrientation, c.frontFacing()),
	}
	input, err := c.recorder.Prepare(cfg)
	if err != nil {
		res <- NewError(ErrCodeVideoRecordingFailed, err.Error(), err)
		return
	}
	c.logger.Info("Preparing recording", "path", path, "size", cfg.VideoSize.String(), "orientation_hint", cfg.OrientationHint)

	c.rebuildSession(&sessionPlan{
		name:    "record",
		outputs: []hal.Surface{c.previewSurface, input},
		onConfigured: func(s hal.Session) {
			req := hal.NewRequest(hal.TemplateRecord, c.previewSurface, input).WithControlMode(hal.ControlModeAuto)
			c.repeating = req
			if err := s.SetRepeating(req); err != nil {
				c.recorder.Abort()
				res <- NewError(ErrCodeDeviceAccess, err.Error(), err)
				c.startPreview()
				return
			}
			if err := c.recorder.Start(); err != nil {
				res <- NewError(ErrCodeVideoRecordingFailed, err.Error(), err)
				c.startPreview()
				return
			}
			c.setState(StateRecording)
			res <- nil
		},
		onFailed: func() {
			c.recorder.Abort()
			res <- NewError(ErrCodeConfigureFailed, "Failed to configure camera session", nil)
			c.startPreview()
		},
		onCancelled: func(cancelReason) {
			c.recorder.Abort()
			res <- NewError(ErrCodeConfigureFailed, "Camera was closed during configuration.", nil)
		},
	})
}

func (c *Controller) stopRecording(path string, res chan error) {
	if c.disposed {
		res <- errDisposed
		return
	}
	if c.recorder.State() != recording.StateRecording {
		res <- nil
		return
	}

	out, stopErr := c.recorder.Stop()
	if path != "" && path != out {
		c.logger.Warn("Stop path differs from recording path, using recording path", "requested", path, "recording", out)
	}

	if stopErr != nil || c.repairer == nil {
		var err error
		if stopErr != nil {
			err = NewError(ErrCodeVideoRecordingFailed, stopErr.Error(), stopErr)
		}
		c.finishRecording(res, err)
		return
	}

	c.workers.Add(1)
	go func() {
		defer c.workers.Done()
		report, err := c.repairer.Repair(c.ctx, out)
		posted := c.post(func() {
			c.publishRepair(out, report, err)
			c.finishRecording(res, nil)
		})
		if !posted {
			res <- nil
		}
	}()
}

// finishRecording releases the encoder and brings the preview back once the
// container is final.
func (c *Controller) finishRecording(res chan error, err error) {
	if c.recorder.State() == recording.StateStopping {
		if ferr := c.recorder.Finish(); ferr != nil {
			c.logger.Warn("Recorder finish failed", "error", ferr)
		}
		// a close during repair already dropped the record session
		if c.device != nil {
			c.startPreview()
		}
	}
	res <- err
}

// publishRepair reports the repair outcome. Repair failures never fail the
// recording.
func (c *Controller) publishRepair(path string, report mp4.Report, err error) {
	ev := events.ContainerRepairedEvent{
		TextureID:      c.texture.ID(),
		Path:           path,
		Repaired:       report.Repaired,
		RemovedSamples: report.RemovedSamples,
		Timestamp:      timestamp(),
	}
	if err != nil {
		c.logger.Warn("Recording repair failed", "path", path, "error", err)
		ev.Error = err.Error()
	}
	c.sink.Publish(ev)
}
