package sim

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/smazurov/camctl/internal/hal"
)

var (
	errUnknownCamera = errors.New("unknown camera")
	errClosed        = errors.New("already closed")
)

type registry struct{ s *System }

func (r registry) CameraIDs() ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ids := make([]string, 0, len(r.s.cameras))
	for id := range r.s.cameras {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r registry) Characteristics(id string) (hal.Characteristics, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.cameras[id]
	if !ok {
		return hal.Characteristics{}, fmt.Errorf("%w: %s", errUnknownCamera, id)
	}
	return c.Characteristics, nil
}

func (r registry) Open(id string, notify hal.Notify) error {
	s := r.s
	s.mu.Lock()
	if _, ok := s.cameras[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", errUnknownCamera, id)
	}
	s.record("open %s", id)
	if code := s.failOpen; code != 0 {
		s.failOpen = 0
		s.mu.Unlock()
		notify(hal.DeviceError{Code: code})
		return nil
	}
	if prev, ok := s.devices[id]; ok && !prev.closed {
		s.mu.Unlock()
		notify(hal.DeviceError{Code: hal.DeviceErrorInUse})
		return nil
	}
	d := &device{s: s, id: id, notify: notify}
	s.devices[id] = d
	s.mu.Unlock()
	notify(hal.DeviceOpened{Device: d})
	return nil
}

type device struct {
	s        *System
	id       string
	notify   hal.Notify
	closed   bool
	sessions []*session
}

func (d *device) ID() string { return d.id }

func (d *device) CreateSession(outputs []hal.Surface, notify hal.Notify) error {
	s := d.s
	s.mu.Lock()
	if d.closed {
		s.mu.Unlock()
		return fmt.Errorf("create session on camera %s: %w", d.id, errClosed)
	}
	ids := make([]string, len(outputs))
	for i, o := range outputs {
		ids[i] = o.SurfaceID()
	}
	s.record("createSession %s %v", d.id, ids)
	for _, other := range d.sessions {
		if !other.closed {
			s.violations = append(s.violations, fmt.Sprintf("session %v created while session %v is open", ids, other.outputs))
		}
	}
	if s.failConfigure {
		s.failConfigure = false
		s.mu.Unlock()
		notify(hal.SessionConfigureFailed{})
		return nil
	}
	sess := &session{device: d, outputs: ids, notify: notify}
	d.sessions = append(d.sessions, sess)
	s.sessions++
	s.mu.Unlock()
	notify(hal.SessionConfigured{Session: sess})
	return nil
}

func (d *device) Close() error {
	s := d.s
	s.mu.Lock()
	if d.closed {
		s.mu.Unlock()
		return nil
	}
	d.closed = true
	s.record("closeDevice %s", d.id)
	var closing []*session
	for _, sess := range d.sessions {
		if !sess.closed {
			sess.closed = true
			s.sessions--
			closing = append(closing, sess)
		}
	}
	s.mu.Unlock()

	for _, sess := range closing {
		sess.notify(hal.SessionClosed{})
	}
	d.notify(hal.DeviceClosed{})
	return nil
}

type session struct {
	device  *device
	outputs []string
	notify  hal.Notify
	closed  bool
}

func (c *session) SetRepeating(req hal.Request) error {
	s := c.device.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return fmt.Errorf("set repeating: %w", errClosed)
	}
	s.record("setRepeating %s", req.Template)
	s.repeating = append(s.repeating, req)
	return nil
}

func (c *session) StopRepeating() error {
	s := c.device.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.closed {
		return fmt.Errorf("stop repeating: %w", errClosed)
	}
	s.record("stopRepeating")
	return nil
}

func (c *session) Capture(req hal.Request, notify hal.Notify) error {
	s := c.device.s
	s.mu.Lock()
	if c.closed {
		s.mu.Unlock()
		return fmt.Errorf("capture: %w", errClosed)
	}
	for _, t := range req.Targets {
		if !slices.Contains(c.outputs, t.SurfaceID()) {
			s.mu.Unlock()
			return fmt.Errorf("capture: surface %s is not a session output", t.SurfaceID())
		}
	}
	s.record("capture %s", req.Template)
	s.captures = append(s.captures, req)
	failed := s.failCapture
	s.failCapture = false

	var targets []*imageReceiver
	for _, t := range req.Targets {
		if r, ok := s.receivers[t.SurfaceID()]; ok && !r.closed {
			targets = append(targets, r)
		}
	}
	deliver := func() {
		if failed {
			notify(hal.CaptureFailed{Request: req, Reason: hal.FailureError})
			return
		}
		for _, r := range targets {
			data, err := r.encodeStill(req.JPEGOrientation)
			if err != nil {
				notify(hal.CaptureFailed{Request: req, Reason: hal.FailureError})
				return
			}
			r.notify(hal.ImageAvailable{Data: data})
		}
		notify(hal.CaptureCompleted{Request: req})
	}
	if s.holdCaptures {
		s.heldCaptures = append(s.heldCaptures, deliver)
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()
	deliver()
	return nil
}

func (c *session) Close() error {
	s := c.device.s
	s.mu.Lock()
	if c.closed {
		s.mu.Unlock()
		return nil
	}
	c.closed = true
	s.sessions--
	s.record("closeSession %v", c.outputs)
	s.mu.Unlock()
	c.notify(hal.SessionClosed{})
	return nil
}
