package camera

import "github.com/smazurov/camctl/internal/hal"

type cancelReason int

const (
	cancelSuperseded cancelReason = iota
	cancelDeviceClosed
)

// sessionPlan describes a session to build and what to do with the outcome.
// Exactly one of the callbacks runs.
type sessionPlan struct {
	name         string
	outputs      []hal.Surface
	onConfigured func(hal.Session)
	onFailed     func()
	onCancelled  func(cancelReason)
}

func (p *sessionPlan) cancel(reason cancelReason) {
	if p.onCancelled != nil {
		p.onCancelled(reason)
	}
}

// sessionState tracks the single session of the open device. A new session
// is only requested once the previous one acknowledged its close.
type sessionState struct {
	gen uint64

	active    hal.Session
	activeGen uint64

	creating    *sessionPlan
	creatingGen uint64

	closing    bool
	closingGen uint64

	next *sessionPlan
}

// session returns the active, configured session or nil.
func (c *Controller) session() hal.Session {
	return c.sessions.active
}

// rebuildSession replaces the current session with one built from plan. A
// plan still waiting its turn is superseded.
func (c *Controller) rebuildSession(plan *sessionPlan) {
	if prev := c.sessions.next; prev != nil {
		c.sessions.next = nil
		prev.cancel(cancelSuperseded)
	}
	c.sessions.next = plan
	c.advanceSessions()
}

func (c *Controller) advanceSessions() {
	s := &c.sessions
	if s.closing || s.creating != nil || s.next == nil {
		return
	}
	if s.active != nil {
		c.closeActiveSession()
		if s.closing {
			return
		}
	}

	plan := s.next
	s.next = nil
	if c.device == nil {
		plan.cancel(cancelDeviceClosed)
		return
	}

	s.gen++
	gen := s.gen
	s.creating = plan
	s.creatingGen = gen
	c.logger.Debug("Creating capture session", "session", plan.name, "generation", gen)
	err := c.device.CreateSession(plan.outputs, func(ev hal.Event) {
		c.post(func() { c.onSessionEvent(gen, ev) })
	})
	if err != nil {
		c.logger.Warn("Create capture session failed", "session", plan.name, "error", err)
		s.creating = nil
		if plan.onFailed != nil {
			plan.onFailed()
		}
		c.advanceSessions()
	}
}

// closeActiveSession asks the active session to close. The next session is
// created when SessionClosed arrives.
func (c *Controller) closeActiveSession() {
	s := &c.sessions
	active := s.active
	s.active = nil
	c.clearFocus()
	s.closing = true
	s.closingGen = s.activeGen
	if err := active.Close(); err != nil {
		c.logger.Warn("Capture session close failed", "error", err)
		s.closing = false
	}
}

func (c *Controller) onSessionEvent(gen uint64, ev hal.Event) {
	s := &c.sessions
	switch e := ev.(type) {
	case hal.SessionConfigured:
		if s.creating == nil || gen != s.creatingGen {
			_ = e.Session.Close()
			return
		}
		plan := s.creating
		s.creating = nil
		if c.device == nil {
			_ = e.Session.Close()
			plan.cancel(cancelDeviceClosed)
			return
		}
		s.active = e.Session
		s.activeGen = gen
		if s.next != nil {
			plan.cancel(cancelSuperseded)
			c.advanceSessions()
			return
		}
		c.logger.Debug("Capture session configured", "session", plan.name, "generation", gen)
		plan.onConfigured(e.Session)

	case hal.SessionConfigureFailed:
		if s.creating == nil || gen != s.creatingGen {
			return
		}
		plan := s.creating
		s.creating = nil
		c.logger.Warn("Capture session configuration failed", "session", plan.name)
		if plan.onFailed != nil {
			plan.onFailed()
		}
		c.advanceSessions()

	case hal.SessionClosed:
		switch {
		case s.closing && gen == s.closingGen:
			s.closing = false
			c.advanceSessions()
		case s.active != nil && gen == s.activeGen:
			// closed underneath us
			s.active = nil
		}
	}
}

// resetSessions drops all session state without waiting for
// acknowledgements, cancelling plans that have not completed.
func (c *Controller) resetSessions() {
	s := &c.sessions
	if s.active != nil {
		if err := s.active.Close(); err != nil {
			c.logger.Debug("Capture session close failed", "error", err)
		}
	}
	creating, next := s.creating, s.next
	*s = sessionState{gen: s.gen}
	c.clearFocus()
	if creating != nil {
		creating.cancel(cancelDeviceClosed)
	}
	if next != nil {
		next.cancel(cancelDeviceClosed)
	}
}
