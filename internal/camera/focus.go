package camera

import (
	"github.com/smazurov/camctl/internal/hal"
	"github.com/smazurov/camctl/internal/sizing"
)

const focusRegionSize = 100

// Focus runs a one-shot auto-focus on the point (x, y) of a view of the given
// size. The result arrives once the focus requests are submitted; a failed
// focus capture is reported as an error event.
func (c *Controller) Focus(x, y, viewWidth, viewHeight float64) <-chan error {
	res := make(chan error, 1)
	if !c.post(func() { c.focus(x, y, viewWidth, viewHeight, res) }) {
		res <- errDisposed
	}
	return res
}

// sensorPoint maps a view point to active-array coordinates. The view is in
// portrait while the sensor is mounted landscape, so the axes swap.
func sensorPoint(x, y, viewWidth, viewHeight float64, array sizing.Resolution) (int, int) {
	return int(y / viewHeight * float64(array.Width)), int(x / viewWidth * float64(array.Height))
}

func (c *Controller) focus(x, y, viewWidth, viewHeight float64, res chan error) {
	if c.disposed {
		res <- errDisposed
		return
	}
	session := c.session()
	if session == nil {
		res <- errNotReady
		return
	}
	if viewWidth <= 0 || viewHeight <= 0 {
		res <- NewError(ErrCodeCaptureFailed, "Focus view size must be positive", nil)
		return
	}

	sx, sy := sensorPoint(x, y, viewWidth, viewHeight, c.chars.ActiveArraySize)
	region := hal.FocusRegion(sx, sy, focusRegionSize, hal.MeteringWeightMax-1)

	base := c.repeating
	if err := session.StopRepeating(); err != nil {
		res <- NewError(ErrCodeDeviceAccess, err.Error(), err)
		return
	}

	reset := base.WithAFMode(hal.AFModeOff).WithAFTrigger(hal.AFTriggerCancel).WithTag("")
	if err := session.Capture(reset, c.captureNotify()); err != nil {
		c.resumeRepeating(base)
		res <- NewError(ErrCodeDeviceAccess, err.Error(), err)
		return
	}

	req := base.
		WithControlMode(hal.ControlModeAuto).
		WithAFMode(hal.AFModeAuto).
		WithAFTrigger(hal.AFTriggerStart).
		WithTag(newTag("focus"))
	if c.chars.MaxAFRegions >= 1 {
		req = req.WithAFRegions(region)
	}
	c.focusTag = req.Tag
	c.focusRequest = req
	if err := session.Capture(req, c.captureNotify()); err != nil {
		c.focusTag = ""
		c.resumeRepeating(base)
		res <- NewError(ErrCodeDeviceAccess, err.Error(), err)
		return
	}

	c.logger.Debug("Focus requested", "sensor_x", sx, "sensor_y", sy, "regions", len(req.AFRegions))
	res <- nil
}

// onFocusCompleted resumes the repeating request with the focus parameters
// and the trigger cleared.
// clearFocus forgets an outstanding focus trigger. Its completion must not
// resume a request built for a session that no longer exists.
func (c *Controller) clearFocus() {
	c.focusTag = ""
	c.focusRequest = hal.Request{}
}

func (c *Controller) onFocusCompleted() {
	c.focusTag = ""
	c.resumeRepeating(c.focusRequest.WithAFTrigger(hal.AFTriggerIdle).WithTag(""))
}

func (c *Controller) resumeRepeating(req hal.Request) {
	session := c.session()
	if session == nil {
		return
	}
	c.repeating = req
	if err := session.SetRepeating(req); err != nil {
		c.publishError(err.Error())
	}
}
