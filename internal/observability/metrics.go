package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline and HTTP collectors on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	runs          *prometheus.CounterVec
	stageDuration *prometheus.HistogramVec
	stageOutcome  *prometheus.CounterVec
	renders       *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	activeRuns    prometheus.Gauge
	httpRequests  *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "runs_total",
			Help:      "Pipeline runs by terminal outcome.",
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "research",
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each report stage including generation.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"stage"}),
		stageOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "stage_results_total",
			Help:      "Stage results by source (generated or fallback) and failure kind.",
		}, []string{"stage", "source", "reason"}),
		renders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "renders_total",
			Help:      "Artifact render requests by outcome (cached, rendered, error).",
		}, []string{"outcome"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "research",
			Name:      "queue_depth",
			Help:      "Runs waiting for a worker.",
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "research",
			Name:      "active_runs",
			Help:      "Runs currently executing.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "research",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method and status code.",
		}, []string{"method", "code"}),
	}

	reg.MustRegister(m.runs, m.stageDuration, m.stageOutcome, m.renders, m.queueDepth, m.activeRuns, m.httpRequests)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RunFinished counts a run that reached a terminal outcome.
func (m *Metrics) RunFinished(outcome string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(outcome).Inc()
}

// StageObserved records one stage result.
func (m *Metrics) StageObserved(stage, source, reason string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.stageOutcome.WithLabelValues(stage, source, reason).Inc()
}

// RenderObserved counts a render request.
func (m *Metrics) RenderObserved(outcome string) {
	if m == nil {
		return
	}
	m.renders.WithLabelValues(outcome).Inc()
}

// QueueDepth sets the number of queued runs.
func (m *Metrics) QueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// RunStarted and RunDone track in-flight runs.
func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

// RunDone decrements the in-flight run gauge.
func (m *Metrics) RunDone() {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
}

// HTTPRequest counts a served request.
func (m *Metrics) HTTPRequest(method string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
}
