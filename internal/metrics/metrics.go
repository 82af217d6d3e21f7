// Package metrics exposes switcher activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/oszuidwest/zwfm-audioswitch/internal/audio"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "audioswitch"

var (
	// sessionsActive is 1 while a session is active.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active voice sessions",
		},
	)

	// sessionsTotal counts activated sessions by focus result.
	sessionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of activated sessions",
		},
		[]string{"focus"}, // focus: granted, failed, delayed
	)

	// sessionDuration is a histogram of session length.
	sessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Histogram of voice session duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	// routeChangesTotal counts applied routes.
	routeChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "route_changes_total",
			Help:      "Total number of audio route changes",
		},
		[]string{"device", "reason", "applied"},
	)

	// devicesAvailable reports per route kind whether it is available.
	devicesAvailable = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_available",
			Help:      "Whether an audio device is currently available (1) or not (0)",
		},
		[]string{"device"},
	)

	// focusChangesTotal counts focus changes reported by the OS.
	focusChangesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "focus_changes_total",
			Help:      "Total number of audio focus changes reported by the OS",
		},
		[]string{"change"},
	)

	// archiveUploadsTotal counts session report uploads.
	archiveUploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_uploads_total",
			Help:      "Total number of session report uploads",
		},
		[]string{"status"}, // status: success, error
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		routeChangesTotal,
		devicesAvailable,
		focusChangesTotal,
		archiveUploadsTotal,
	}
)

// NewRegistry returns a registry holding the switcher metrics and the Go
// runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(allMetrics...)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordSessionStart records an activated session.
func RecordSessionStart(focus audio.FocusResult) {
	sessionsActive.Set(1)
	sessionsTotal.WithLabelValues(string(focus)).Inc()
}

// RecordSessionEnd records a finished session.
func RecordSessionEnd(durationSeconds float64) {
	sessionsActive.Set(0)
	sessionDuration.Observe(durationSeconds)
}

// RecordRouteChange records an applied route.
func RecordRouteChange(device audio.Kind, reason string, applied bool) {
	routeChangesTotal.WithLabelValues(string(device), reason, strconv.FormatBool(applied)).Inc()
}

// SetAvailableDevices updates availability for every route kind.
func SetAvailableDevices(available []audio.Device) {
	for _, k := range audio.DefaultPriority {
		devicesAvailable.WithLabelValues(string(k)).Set(0)
	}
	for _, d := range available {
		devicesAvailable.WithLabelValues(string(d.Kind)).Set(1)
	}
}

// RecordFocusChange records a focus change.
func RecordFocusChange(change audio.FocusChange) {
	focusChangesTotal.WithLabelValues(string(change)).Inc()
}

// RecordArchiveUpload records a session report upload result.
func RecordArchiveUpload(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	archiveUploadsTotal.WithLabelValues(status).Inc()
}
