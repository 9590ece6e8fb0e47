package pii

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	detectors "github.com/Tharun0024/gen-ai-25/src/backend/pii/detectors"
)

// Degradation reasons reported on the degraded passes counter
const (
	ReasonUnavailable   = "unavailable"
	ReasonTimeout       = "timeout"
	ReasonInputTooLarge = "input_too_large"
)

// Metrics contains Prometheus metrics for the redaction pipeline.
type Metrics struct {
	spansDetected  *prometheus.CounterVec
	spansRedacted  *prometheus.CounterVec
	degradedPasses *prometheus.CounterVec
	passDuration   prometheus.Histogram
}

// NewMetrics registers the pipeline collectors with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		spansDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redaction_spans_detected_total",
				Help: "Spans produced by the detectors before merging",
			},
			[]string{"source", "label"},
		),

		spansRedacted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redaction_spans_redacted_total",
				Help: "Spans replaced by a placeholder",
			},
			[]string{"label"},
		),

		degradedPasses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "redaction_degraded_passes_total",
				Help: "Redaction passes that ran without entity detection",
			},
			[]string{"reason"},
		),

		passDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "redaction_pass_duration_seconds",
				Help:    "Duration of a full redaction pass",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
		),
	}
}

func (m *Metrics) recordDetected(spans []detectors.Span) {
	if m == nil {
		return
	}
	for _, s := range spans {
		m.spansDetected.WithLabelValues(string(s.Source), s.Label).Inc()
	}
}

func (m *Metrics) recordRedacted(spans []detectors.Span) {
	if m == nil {
		return
	}
	for _, s := range spans {
		m.spansRedacted.WithLabelValues(s.Label).Inc()
	}
}

func (m *Metrics) recordDegraded(reason string) {
	if m == nil {
		return
	}
	m.degradedPasses.WithLabelValues(reason).Inc()
}

func (m *Metrics) observeDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.passDuration.Observe(d.Seconds())
}
