package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors for the quiz pipeline. Each
// instance owns its registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	StageDuration      *prometheus.HistogramVec
	TranscriptRejected *prometheus.CounterVec
	EvaluationFallback *prometheus.CounterVec
	SessionsCompleted  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicequiz_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicequiz_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 15},
			},
			[]string{"method", "endpoint"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voicequiz_pipeline_stage_duration_seconds",
				Help:    "Duration of question pipeline stages",
				Buckets: []float64{0.25, 1, 2, 5, 10, 20, 30},
			},
			[]string{"stage", "status"},
		),
		TranscriptRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicequiz_transcripts_rejected_total",
				Help: "Transcripts replaced by the no-speech sentinel, by reason",
			},
			[]string{"reason"},
		),
		EvaluationFallback: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicequiz_evaluation_fallbacks_total",
				Help: "Evaluations that used the fallback result, by reason",
			},
			[]string{"reason"},
		),
		SessionsCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voicequiz_sessions_completed_total",
				Help: "Completed game sessions by performance category",
			},
			[]string{"category"},
		),
	}

	m.registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.StageDuration,
		m.TranscriptRejected,
		m.EvaluationFallback,
		m.SessionsCompleted,
	)
	return m
}

// ObserveStage records one pipeline stage. Safe on a nil receiver.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// RejectTranscript counts a sentinel substitution. Safe on a nil receiver.
func (m *Metrics) RejectTranscript(reason string) {
	if m == nil {
		return
	}
	m.TranscriptRejected.WithLabelValues(reason).Inc()
}

// Fallback counts a fallback evaluation. Safe on a nil receiver.
func (m *Metrics) Fallback(reason string) {
	if m == nil {
		return
	}
	m.EvaluationFallback.WithLabelValues(reason).Inc()
}

// CompleteSession counts a completed session. Safe on a nil receiver.
func (m *Metrics) CompleteSession(category string) {
	if m == nil {
		return
	}
	m.SessionsCompleted.WithLabelValues(category).Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
