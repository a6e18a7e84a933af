package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/smazurov/camctl/internal/events"
)

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCollectorObserve(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.observe(events.CameraStateChangedEvent{TextureID: 1, From: "opening", To: "previewing"})
	c.observe(events.CameraStateChangedEvent{TextureID: 1, From: "previewing", To: "recording"})
	c.observe(events.CameraErrorEvent{TextureID: 1})
	c.observe(events.CameraClosingEvent{TextureID: 1})
	c.observe(events.StillCapturedEvent{TextureID: 1, Bytes: 50_000})

	if got := testutil.ToFloat64(c.stateTransitions.WithLabelValues("previewing")); got != 1 {
		t.Errorf("previewing transitions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.cameraErrors); got != 1 {
		t.Errorf("errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.cameraClosings); got != 1 {
		t.Errorf("closings = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.stills); got != 1 {
		t.Errorf("stills = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(c.stillBytes); got != 1 {
		t.Errorf("still size series = %d, want 1", got)
	}
}

func TestCollectorRecordingsActive(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.observe(events.RecordingStateChangedEvent{TextureID: 1, To: "recording"})
	c.observe(events.RecordingStateChangedEvent{TextureID: 2, To: "recording"})
	if got := testutil.ToFloat64(c.recordingsActive); got != 2 {
		t.Errorf("active recordings = %v, want 2", got)
	}

	c.observe(events.RecordingStateChangedEvent{TextureID: 1, To: "stopping"})
	c.observe(events.RecordingStateChangedEvent{TextureID: 1, To: "idle"})
	if got := testutil.ToFloat64(c.recordingsActive); got != 1 {
		t.Errorf("active recordings = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.recordingTransitions.WithLabelValues("idle")); got != 1 {
		t.Errorf("idle transitions = %v, want 1", got)
	}
}

func TestCollectorRepairs(t *testing.T) {
	c := NewCollector(prometheus.NewRegistry())

	c.observe(events.ContainerRepairedEvent{Repaired: true, RemovedSamples: 25})
	c.observe(events.ContainerRepairedEvent{})
	c.observe(events.ContainerRepairedEvent{Error: "truncated moov"})

	for _, result := range []string{"repaired", "clean", "failed"} {
		if got := testutil.ToFloat64(c.repairs.WithLabelValues(result)); got != 1 {
			t.Errorf("repairs{result=%q} = %v, want 1", result, got)
		}
	}
	if got := testutil.ToFloat64(c.repairRemovedSamples); got != 25 {
		t.Errorf("removed samples = %v, want 25", got)
	}
}

func TestCollectorFromBus(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	bus := events.New()
	c.Start(bus)
	defer c.Stop()

	bus.Publish(events.StillCapturedEvent{TextureID: 3, Bytes: 1024})
	eventually(t, "still counter", func() bool { return testutil.ToFloat64(c.stills) == 1 })

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "camctl_still_captured_total 1") {
		t.Errorf("exposition missing still counter:\n%s", rec.Body.String())
	}

	c.Stop()
	bus.Publish(events.StillCapturedEvent{TextureID: 3, Bytes: 1024})
	time.Sleep(20 * time.Millisecond)
	if got := testutil.ToFloat64(c.stills); got != 1 {
		t.Errorf("stills after Stop = %v, want 1", got)
	}
}
