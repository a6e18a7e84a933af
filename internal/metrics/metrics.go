// Package metrics provides Prometheus metrics for camera sessions, fed from
// the event bus.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smazurov/camctl/internal/events"
	"github.com/smazurov/camctl/internal/logging"
)

const namespace = "camctl"

// Collector turns camera events into Prometheus metrics.
type Collector struct {
	stateTransitions     *prometheus.CounterVec
	cameraErrors         prometheus.Counter
	cameraClosings       prometheus.Counter
	stills               prometheus.Counter
	stillBytes           prometheus.Histogram
	recordingTransitions *prometheus.CounterVec
	recordingsActive     prometheus.Gauge
	repairs              *prometheus.CounterVec
	repairRemovedSamples prometheus.Counter

	mu        sync.Mutex
	recording map[int64]bool
	unsub     func()
}

// NewCollector registers the camera metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "camera",
			Name:      "state_transitions_total",
			Help:      "Controller state transitions by target state",
		}, []string{"state"}),
		cameraErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "camera",
			Name:      "errors_total",
			Help:      "Asynchronous camera errors reported to clients",
		}),
		cameraClosings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "camera",
			Name:      "closings_total",
			Help:      "Camera device closures",
		}),
		stills: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "still",
			Name:      "captured_total",
			Help:      "Still images written",
		}),
		stillBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "still",
			Name:      "size_bytes",
			Help:      "Size of written still images",
			Buckets:   prometheus.ExponentialBuckets(16*1024, 2, 10),
		}),
		recordingTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recording",
			Name:      "state_transitions_total",
			Help:      "Recording state transitions by target state",
		}, []string{"state"}),
		recordingsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "recording",
			Name:      "active",
			Help:      "Recordings currently capturing",
		}),
		repairs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "runs_total",
			Help:      "Container repair passes by outcome",
		}, []string{"result"}),
		repairRemovedSamples: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "repair",
			Name:      "removed_samples_total",
			Help:      "Leading audio samples dropped by repair",
		}),
		recording: make(map[int64]bool),
	}
}

// Start subscribes the collector to bus.
func (c *Collector) Start(bus *events.Bus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsub != nil {
		return
	}
	c.unsub = bus.SubscribeCamera(c.observe)
	logging.GetLogger("metrics").Debug("Metrics collector subscribed to camera events")
}

// Stop unsubscribes the collector.
func (c *Collector) Stop() {
	c.mu.Lock()
	unsub := c.unsub
	c.unsub = nil
	c.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

func (c *Collector) observe(e events.CameraEvent) {
	switch ev := e.(type) {
	case events.CameraStateChangedEvent:
		c.stateTransitions.WithLabelValues(ev.To).Inc()
	case events.CameraErrorEvent:
		c.cameraErrors.Inc()
	case events.CameraClosingEvent:
		c.cameraClosings.Inc()
	case events.StillCapturedEvent:
		c.stills.Inc()
		c.stillBytes.Observe(float64(ev.Bytes))
	case events.RecordingStateChangedEvent:
		c.recordingTransitions.WithLabelValues(ev.To).Inc()
		c.setRecording(ev.TextureID, ev.To == "recording")
	case events.ContainerRepairedEvent:
		switch {
		case ev.Error != "":
			c.repairs.WithLabelValues("failed").Inc()
		case ev.Repaired:
			c.repairs.WithLabelValues("repaired").Inc()
			c.repairRemovedSamples.Add(float64(ev.RemovedSamples))
		default:
			c.repairs.WithLabelValues("clean").Inc()
		}
	}
}

func (c *Collector) setRecording(textureID int64, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if active {
		c.recording[textureID] = true
	} else {
		delete(c.recording, textureID)
	}
	c.recordingsActive.Set(float64(len(c.recording)))
}

// Handler serves the metrics gathered by g in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
