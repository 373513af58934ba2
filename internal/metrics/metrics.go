// Package metrics provides Prometheus metrics for the SOP editor service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sop_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sop_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// Captioning
	CaptionRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sop_caption_requests_total",
			Help: "Caption requests by outcome (applied, failed, stale)",
		},
		[]string{"outcome"},
	)

	CaptionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sop_caption_duration_seconds",
			Help:    "Time taken by the captioning provider",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	CaptionsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sop_captions_in_flight",
			Help: "Caption requests currently awaiting a provider response",
		},
	)

	// Persistence
	SaveErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sop_save_errors_total",
			Help: "Failed writes to the key-value store",
		},
	)

	LoadFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sop_load_fallbacks_total",
			Help: "Persisted values replaced by defaults on load",
		},
		[]string{"key"},
	)

	// Export
	ExportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sop_exports_total",
			Help: "Exports by format and status",
		},
		[]string{"format", "status"},
	)

	ExportDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sop_export_duration_seconds",
			Help:    "Time taken to assemble an export",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"format"},
	)

	ImagePlaceholdersTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sop_export_image_placeholders_total",
			Help: "Step images replaced by a placeholder because resampling failed",
		},
	)
)

// RecordHTTP records one served request.
func RecordHTTP(method, route, status string, d time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// RecordCaption records a finished caption request.
func RecordCaption(outcome string, d time.Duration) {
	CaptionRequestsTotal.WithLabelValues(outcome).Inc()
	CaptionDuration.Observe(d.Seconds())
}

// RecordExport records a finished export.
func RecordExport(format string, err error, d time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ExportsTotal.WithLabelValues(format, status).Inc()
	ExportDuration.WithLabelValues(format).Observe(d.Seconds())
}
