// Package metrics exposes Prometheus instrumentation for the engine. All
// methods are safe to call on a nil *Metrics.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/user/insightflow/pkg/llm"
)

const namespace = "insightflow"

type Metrics struct {
	registry *prometheus.Registry

	eventsIngested   *prometheus.CounterVec
	ingestErrors     prometheus.Counter
	insightsTotal    *prometheus.CounterVec
	insightConf      prometheus.Histogram
	patternsDetected *prometheus.CounterVec
	backendCalls     *prometheus.CounterVec
	backendDuration  *prometheus.HistogramVec
	callbacks        *prometheus.CounterVec
}

// New builds the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		eventsIngested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Events stored, by event type.",
		}, []string{"event_type"}),
		ingestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_errors_total",
			Help:      "Events that failed to store.",
		}),
		insightsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insights_total",
			Help:      "Insight requests by window and outcome (generated, empty, failed).",
		}, []string{"window", "outcome"}),
		insightConf: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "insight_confidence",
			Help:      "Confidence of generated insights.",
			Buckets:   []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		}),
		patternsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patterns_detected_total",
			Help:      "Statistical patterns detected, by pattern type.",
		}, []string{"pattern_type"}),
		backendCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "calls_total",
			Help:      "LLM backend calls by provider, operation and result.",
		}, []string{"provider", "op", "result"}),
		backendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "call_duration_seconds",
			Help:      "LLM backend call latency.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider", "op"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "insight_callbacks_total",
			Help:      "Insight callback invocations by result (delivered, skipped, failed).",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.eventsIngested, m.ingestErrors, m.insightsTotal, m.insightConf,
		m.patternsDetected, m.backendCalls, m.backendDuration, m.callbacks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) EventStored(eventType string) {
	if m == nil {
		return
	}
	m.eventsIngested.WithLabelValues(eventType).Inc()
}

func (m *Metrics) EventFailed() {
	if m == nil {
		return
	}
	m.ingestErrors.Inc()
}

func (m *Metrics) InsightGenerated(window string, confidence float64) {
	if m == nil {
		return
	}
	m.insightsTotal.WithLabelValues(window, "generated").Inc()
	m.insightConf.Observe(confidence)
}

func (m *Metrics) InsightEmpty(window string) {
	if m == nil {
		return
	}
	m.insightsTotal.WithLabelValues(window, "empty").Inc()
}

func (m *Metrics) InsightFailed(window string) {
	if m == nil {
		return
	}
	m.insightsTotal.WithLabelValues(window, "failed").Inc()
}

func (m *Metrics) PatternDetected(patternType string) {
	if m == nil {
		return
	}
	m.patternsDetected.WithLabelValues(patternType).Inc()
}

// ObserveBackendCall records one provider call; it satisfies
// backend.Observer.
func (m *Metrics) ObserveBackendCall(provider, op string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.backendDuration.WithLabelValues(provider, op).Observe(d.Seconds())
	m.backendCalls.WithLabelValues(provider, op, resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, llm.ErrTimeout):
		return "timeout"
	case errors.Is(err, llm.ErrUnavailable):
		return "unavailable"
	default:
		return "error"
	}
}

func (m *Metrics) CallbacksRun(delivered, skipped, failed int) {
	if m == nil {
		return
	}
	m.callbacks.WithLabelValues("delivered").Add(float64(delivered))
	m.callbacks.WithLabelValues("skipped").Add(float64(skipped))
	m.callbacks.WithLabelValues("failed").Add(float64(failed))
}
