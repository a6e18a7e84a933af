package led

import (
	"log/slog"
	"sync"

	"github.com/smazurov/camctl/internal/camera"
	"github.com/smazurov/camctl/internal/events"
)

// Manager subscribes to camera state events and shows the aggregate
// activity: solid while any camera records, blinking while any camera is
// open, off otherwise.
type Manager struct {
	controller  Controller
	eventBus    *events.Bus
	logger      *slog.Logger
	unsubscribe func()

	mu      sync.Mutex
	states  map[int64]string // texture id -> camera state
	pattern Pattern
}

// NewManager creates a new LED manager that reacts to camera state changes.
func NewManager(controller Controller, eventBus *events.Bus, logger *slog.Logger) *Manager {
	return &Manager{
		controller: controller,
		eventBus:   eventBus,
		logger:     logger,
		states:     make(map[int64]string),
	}
}

// Start switches the LED off and begins listening for camera state changes.
func (m *Manager) Start() {
	m.mu.Lock()
	m.apply(PatternOff)
	m.mu.Unlock()
	m.unsubscribe = m.eventBus.Subscribe(m.handleEvent)
	m.logger.Info("LED manager started", "led", m.controller.Name())
}

// Stop unsubscribes and switches the LED off.
func (m *Manager) Stop() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	m.mu.Lock()
	m.apply(PatternOff)
	m.mu.Unlock()
	m.logger.Info("LED manager stopped")
}

// Pattern returns the pattern last applied.
func (m *Manager) Pattern() Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pattern
}

func (m *Manager) handleEvent(e events.CameraStateChangedEvent) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch e.To {
	case camera.StateClosed.String(), camera.StateError.String():
		delete(m.states, e.TextureID)
	default:
		m.states[e.TextureID] = e.To
	}
	m.logger.Debug("Camera state changed", "texture_id", e.TextureID, "state", e.To)
	m.apply(m.aggregate())
}

func (m *Manager) aggregate() Pattern {
	pattern := PatternOff
	for _, state := range m.states {
		if state == camera.StateRecording.String() {
			return PatternSolid
		}
		pattern = PatternBlink
	}
	return pattern
}

// apply sets the LED when the pattern changes. m.mu must be held.
func (m *Manager) apply(p Pattern) {
	if p == m.pattern {
		return
	}
	if err := m.controller.Set(p); err != nil {
		m.logger.Warn("Failed to set LED", "pattern", p, "error", err)
		return
	}
	m.pattern = p
}
