package led

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/camctl/internal/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Mock controller for testing
type mockController struct {
	mu   sync.Mutex
	sets []Pattern
}

func (m *mockController) Set(p Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets = append(m.sets, p)
	return nil
}

func (m *mockController) Name() string { return "mock" }

func (m *mockController) last() Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sets) == 0 {
		return ""
	}
	return m.sets[len(m.sets)-1]
}

func waitPattern(t *testing.T, ctrl *mockController, want Pattern) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.last() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("LED pattern = %q, want %q", ctrl.last(), want)
}

func publishState(bus *events.Bus, texture int64, to string) {
	bus.Publish(events.CameraStateChangedEvent{TextureID: texture, To: to, Timestamp: time.Now().Format(time.RFC3339)})
}

func TestManagerFollowsCameraState(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()
	mgr := NewManager(ctrl, bus, testLogger())
	mgr.Start()
	defer mgr.Stop()

	publishState(bus, 1, "previewing")
	waitPattern(t, ctrl, PatternBlink)

	publishState(bus, 1, "recording")
	waitPattern(t, ctrl, PatternSolid)

	publishState(bus, 1, "previewing")
	waitPattern(t, ctrl, PatternBlink)

	publishState(bus, 1, "closed")
	waitPattern(t, ctrl, PatternOff)
}

func TestManagerAggregatesCameras(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()
	mgr := NewManager(ctrl, bus, testLogger())
	mgr.Start()
	defer mgr.Stop()

	publishState(bus, 1, "recording")
	waitPattern(t, ctrl, PatternSolid)

	// a second camera opening does not override the recording one
	publishState(bus, 2, "opening")
	time.Sleep(20 * time.Millisecond)
	if got := mgr.Pattern(); got != PatternSolid {
		t.Errorf("Pattern() = %q, want solid", got)
	}

	publishState(bus, 1, "error")
	waitPattern(t, ctrl, PatternBlink)
}

func TestManagerStopSwitchesOff(t *testing.T) {
	ctrl := &mockController{}
	bus := events.New()
	mgr := NewManager(ctrl, bus, testLogger())
	mgr.Start()

	publishState(bus, 1, "previewing")
	waitPattern(t, ctrl, PatternBlink)

	mgr.Stop()
	if got := ctrl.last(); got != PatternOff {
		t.Errorf("pattern after Stop() = %q, want off", got)
	}
}

func TestSysfsController(t *testing.T) {
	root := t.TempDir()
	if err := os.Mkdir(filepath.Join(root, "ACT"), 0o755); err != nil {
		t.Fatal(err)
	}
	ctrl := newSysfs(root, "ACT")

	tests := []struct {
		pattern    Pattern
		trigger    string
		brightness string
	}{
		{PatternBlink, "heartbeat", "1"},
		{PatternSolid, "none", "1"},
		{PatternOff, "none", "0"},
	}
	for _, tt := range tests {
		t.Run(string(tt.pattern), func(t *testing.T) {
			if err := ctrl.Set(tt.pattern); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			trigger, _ := os.ReadFile(filepath.Join(root, "ACT", "trigger"))
			brightness, _ := os.ReadFile(filepath.Join(root, "ACT", "brightness"))
			if string(trigger) != tt.trigger || string(brightness) != tt.brightness {
				t.Errorf("trigger=%q brightness=%q, want %q %q", trigger, brightness, tt.trigger, tt.brightness)
			}
		})
	}

	if err := ctrl.Set("strobe"); err == nil {
		t.Error("Set() accepted an unknown pattern")
	}
	if err := newSysfs(root, "missing").Set(PatternSolid); err == nil {
		t.Error("Set() on a missing LED succeeded")
	}
}

func TestLEDForBoard(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"FriendlyElec NanoPC-T6", "usr_led"},
		{"Raspberry Pi 4 Model B Rev 1.4", "ACT"},
		{"Orange Pi 5 Plus", "blue_led"},
		{"unknown", ""},
	}
	for _, tt := range tests {
		if got := ledForBoard(tt.model); got != tt.want {
			t.Errorf("ledForBoard(%q) = %q, want %q", tt.model, got, tt.want)
		}
	}
}

func TestNewNamedLED(t *testing.T) {
	ctrl := New("act", testLogger())
	if ctrl.Name() != "act" {
		t.Errorf("Name() = %q, want act", ctrl.Name())
	}
	if err := newNoop(testLogger()).Set(PatternSolid); err != nil {
		t.Errorf("noop Set() error = %v", err)
	}
}
