package camera

import (
	"fmt"
	"os"

	"github.com/smazurov/camctl/internal/events"
	"github.com/smazurov/camctl/internal/hal"
	"github.com/smazurov/camctl/internal/orientation"
)

type pendingStill struct {
	path string
	tag  string
	res  chan error
}

// TakePicture captures a still image and writes the encoded JPEG to path.
// The path must not exist.
func (c *Controller) TakePicture(path string) <-chan error {
	res := make(chan error, 1)
	if !c.post(func() { c.takePicture(path, res) }) {
		res <- errDisposed
	}
	return res
}

func (c *Controller) frontFacing() bool {
	return c.chars.LensFacing == hal.LensFacingFront
}

func (c *Controller) displayDegrees() int {
	if c.backend.Display == nil {
		return 0
	}
	return c.backend.Display.Rotation().Degrees()
}

func (c *Controller) takePicture(path string, res chan error) {
	if c.disposed {
		res <- errDisposed
		return
	}
	if pathExists(path) {
		res <- fileExistsError(path)
		return
	}
	session := c.session()
	if session == nil || c.images == nil {
		res <- errNotReady
		return
	}
	if c.still != nil {
		res <- NewError(ErrCodeCaptureFailed, "A still capture is already in progress", nil)
		return
	}

	deg := orientation.StillOrientation(c.displayDegrees(), c.chars.SensorOrientation, c.frontFacing())
	req := hal.NewRequest(hal.TemplateStillCapture, c.images).
		WithControlMode(hal.ControlModeAuto).
		WithJPEGOrientation(deg).
		WithTag(newTag("still"))

	c.still = &pendingStill{path: path, tag: req.Tag, res: res}
	if err := session.Capture(req, c.captureNotify()); err != nil {
		c.still = nil
		res <- NewError(ErrCodeDeviceAccess, err.Error(), err)
		return
	}
	c.logger.Debug("Still capture requested", "path", path, "jpeg_orientation", deg)
}

// captureNotify binds capture results to the active session. Results from a
// session that has since been closed only settle a pending still.
func (c *Controller) captureNotify() hal.Notify {
	gen := c.sessions.activeGen
	return func(ev hal.Event) {
		c.post(func() { c.onCaptureEvent(gen, ev) })
	}
}

func (c *Controller) onCaptureEvent(gen uint64, ev hal.Event) {
	if c.sessions.active == nil || gen != c.sessions.activeGen {
		if e, ok := ev.(hal.CaptureFailed); ok && c.still != nil && e.Request.Tag == c.still.tag {
			c.still.res <- NewError(ErrCodeCaptureFailed, e.Reason.Description(), nil)
			c.still = nil
		}
		return
	}
	switch e := ev.(type) {
	case hal.CaptureCompleted:
		if c.focusTag != "" && e.Request.Tag == c.focusTag {
			c.onFocusCompleted()
		}

	case hal.CaptureFailed:
		reason := e.Reason.Description()
		switch {
		case c.still != nil && e.Request.Tag == c.still.tag:
			c.still.res <- NewError(ErrCodeCaptureFailed, reason, nil)
			c.still = nil
		case c.focusTag != "" && e.Request.Tag == c.focusTag:
			c.focusTag = ""
			c.publishError(reason)
			c.resumeRepeating(c.repeating)
		default:
			c.publishError(reason)
		}
	}
}

func (c *Controller) onImageEvent(gen uint64, ev hal.Event) {
	img, ok := ev.(hal.ImageAvailable)
	if !ok || gen != c.imagesGen {
		return
	}
	if c.still == nil {
		c.logger.Debug("Dropping unrequested still image", "bytes", len(img.Data))
		return
	}

	still := c.still
	c.still = nil
	if err := writeExclusive(still.path, img.Data); err != nil {
		still.res <- NewError(ErrCodeIO, "Failed saving image", err)
		return
	}
	c.logger.Info("Still image saved", "path", still.path, "bytes", len(img.Data))
	c.sink.Publish(events.StillCapturedEvent{
		TextureID: c.texture.ID(),
		Path:      still.path,
		Bytes:     len(img.Data),
		Timestamp: timestamp(),
	})
	still.res <- nil
}

// writeExclusive writes data to a new file, failing if path already exists.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}
