package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics holds the Prometheus instruments exposed during a run.
type PrometheusMetrics struct {
	TrialsTotal   *prometheus.CounterVec
	AttemptsTotal *prometheus.CounterVec

	BroadcastLatency prometheus.Histogram
	ConfirmLatency   prometheus.Histogram
	DisplayLatency   prometheus.Histogram

	CurrentTrial prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all metrics. A nil registerer
// falls back to the default registry.
func NewPrometheusMetrics(reg prometheus.Registerer) *PrometheusMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	return &PrometheusMetrics{
		TrialsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrtxbench_trials_total",
				Help: "Completed trials by outcome",
			},
			[]string{"status"},
		),

		AttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qrtxbench_broadcast_attempts_total",
				Help: "Broadcast attempts by result or classified error kind",
			},
			[]string{"kind"},
		),

		BroadcastLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qrtxbench_broadcast_latency_seconds",
				Help:    "Broadcast acknowledgment latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
		),

		ConfirmLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qrtxbench_confirmation_latency_seconds",
				Help:    "Time from broadcast to observed contract state in seconds",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 90},
			},
		),

		DisplayLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qrtxbench_display_latency_seconds",
				Help:    "Display render-and-show duration in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
		),

		CurrentTrial: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "qrtxbench_current_trial",
				Help: "Index of the trial currently executing",
			},
		),
	}
}

// RecordTrial records a completed trial outcome.
func (m *PrometheusMetrics) RecordTrial(status string) {
	m.TrialsTotal.WithLabelValues(status).Inc()
}

// RecordAttempt records one broadcast attempt by result kind.
func (m *PrometheusMetrics) RecordAttempt(kind string) {
	m.AttemptsTotal.WithLabelValues(kind).Inc()
}

// RecordBroadcastLatency records broadcast acknowledgment latency.
func (m *PrometheusMetrics) RecordBroadcastLatency(latencySeconds float64) {
	m.BroadcastLatency.Observe(latencySeconds)
}

// RecordConfirmLatency records the broadcast-to-confirmation interval.
func (m *PrometheusMetrics) RecordConfirmLatency(latencySeconds float64) {
	m.ConfirmLatency.Observe(latencySeconds)
}

// RecordDisplayLatency records the display step duration.
func (m *PrometheusMetrics) RecordDisplayLatency(latencySeconds float64) {
	m.DisplayLatency.Observe(latencySeconds)
}

// SetCurrentTrial updates the current trial gauge.
func (m *PrometheusMetrics) SetCurrentTrial(trial int) {
	m.CurrentTrial.Set(float64(trial))
}
