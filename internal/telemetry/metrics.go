// Package telemetry exposes prometheus metrics and OpenTelemetry tracing.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's prometheus collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	eventsReceived   *prometheus.CounterVec
	decisions        *prometheus.CounterVec
	pipelineRuns     *prometheus.CounterVec
	stageDuration    *prometheus.HistogramVec
	uploads          *prometheus.CounterVec
	uploadDuration   prometheus.Histogram
	queueDepth       prometheus.Gauge
	webhookDelivery  *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	pipelinesRunning prometheus.Gauge
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		eventsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afterlive_events_received_total",
			Help: "Recorder webhook events received, by event type",
		}, []string{"type"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afterlive_session_decisions_total",
			Help: "Finished sessions evaluated, by result and reason",
		}, []string{"result", "reason"}),
		pipelineRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afterlive_pipeline_runs_total",
			Help: "Pipeline runs, by outcome",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "afterlive_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{1, 5, 15, 60, 300, 900, 1800, 3600, 7200},
		}, []string{"stage"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afterlive_uploads_total",
			Help: "Upload attempts, by outcome",
		}, []string{"outcome"}),
		uploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "afterlive_upload_duration_seconds",
			Help:    "Upload attempt duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "afterlive_upload_queue_depth",
			Help: "Items waiting in the upload queue",
		}),
		webhookDelivery: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afterlive_webhook_deliveries_total",
			Help: "Listener notifications, by outcome",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "afterlive_http_requests_total",
			Help: "API requests, by method, route and status",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "afterlive_http_request_duration_seconds",
			Help:    "API request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		pipelinesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "afterlive_pipelines_running",
			Help: "Pipelines currently executing",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsReceived,
		m.decisions,
		m.pipelineRuns,
		m.stageDuration,
		m.uploads,
		m.uploadDuration,
		m.queueDepth,
		m.webhookDelivery,
		m.httpRequests,
		m.httpDuration,
		m.pipelinesRunning,
	)
	return m
}

// Registry exposes the registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// EventReceived counts an inbound recorder event.
func (m *Metrics) EventReceived(eventType string) {
	if m == nil {
		return
	}
	m.eventsReceived.WithLabelValues(eventType).Inc()
}

// Decision counts a processing decision.
func (m *Metrics) Decision(process bool, reason string) {
	if m == nil {
		return
	}
	result := "skip"
	if process {
		result = "process"
	}
	m.decisions.WithLabelValues(result, reason).Inc()
}

// PipelineStarted and PipelineFinished track running pipelines and their outcome.
func (m *Metrics) PipelineStarted() {
	if m == nil {
		return
	}
	m.pipelinesRunning.Inc()
}

func (m *Metrics) PipelineFinished(outcome string) {
	if m == nil {
		return
	}
	m.pipelinesRunning.Dec()
	m.pipelineRuns.WithLabelValues(outcome).Inc()
}

// ObserveStage records a pipeline stage duration.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// UploadAttempt records an upload outcome and duration.
func (m *Metrics) UploadAttempt(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
	m.uploadDuration.Observe(d.Seconds())
}

// SetQueueDepth records the current upload queue size.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// WebhookDelivery counts a listener notification outcome.
func (m *Metrics) WebhookDelivery(outcome string) {
	if m == nil {
		return
	}
	m.webhookDelivery.WithLabelValues(outcome).Inc()
}

// HTTPRequest records an API request.
func (m *Metrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// Handler serves the registry. refresh runs before each scrape to update gauges.
func (m *Metrics) Handler(refresh func()) http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	inner := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if refresh != nil {
			refresh()
		}
		inner.ServeHTTP(w, r)
	})
}
