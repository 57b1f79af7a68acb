// Package monitoring exposes pipeline metrics and watches for stuck work.
package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for the analysis pipeline.
type Metrics struct {
	Attempts        *prometheus.CounterVec
	AttemptDuration *prometheus.HistogramVec
	Runs            *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	Fallbacks       *prometheus.CounterVec
	Degrades        *prometheus.CounterVec
	BreakerState    *prometheus.GaugeVec
	Submissions     *prometheus.CounterVec
	QueueFailures   prometheus.Counter
	Released        prometheus.Counter
	StaleSwept      prometheus.Counter
	Assessments     *prometheus.GaugeVec
	StaleProcessing prometheus.Gauge
}

var (
	metricsOnce   sync.Once
	sharedMetrics *Metrics
)

// NewMetrics registers the collectors on the default registry once and
// returns the shared set.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		sharedMetrics = &Metrics{
			Attempts: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assessment_analysis_attempts_total",
					Help: "Adapter invocations by backend and outcome",
				},
				[]string{"backend", "outcome"},
			),
			AttemptDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "assessment_analysis_attempt_duration_seconds",
					Help:    "Duration of a single adapter invocation",
					Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to 256s
				},
				[]string{"backend"},
			),
			Runs: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assessment_runs_total",
					Help: "Background runs by terminal result",
				},
				[]string{"result"},
			),
			RunDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "assessment_run_duration_seconds",
					Help:    "Time from claim to terminal write",
					Buckets: prometheus.ExponentialBuckets(1, 2, 10),
				},
				[]string{"result"},
			),
			Fallbacks: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assessment_fallback_total",
					Help: "Runs completed with the heuristic scorer",
				},
				[]string{"backend", "reason"},
			),
			Degrades: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assessment_backend_degrade_total",
					Help: "Calls that fell through to a secondary backend",
				},
				[]string{"from", "to"},
			),
			BreakerState: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "assessment_backend_breaker_state",
					Help: "Circuit state per backend (0 closed, 1 open, 2 half-open)",
				},
				[]string{"backend"},
			),
			Submissions: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "assessment_submissions_total",
					Help: "Accepted submissions by route",
				},
				[]string{"route"},
			),
			QueueFailures: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "assessment_queue_task_failures_total",
					Help: "Queue tasks whose handler returned an error",
				},
			),
			Released: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "assessment_runs_released_total",
					Help: "Interrupted runs handed back to submitted",
				},
			),
			StaleSwept: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "assessment_stale_swept_total",
					Help: "Stale processing assessments closed as error",
				},
			),
			Assessments: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "assessment_in_flight",
					Help: "Assessments currently in each in-flight status",
				},
				[]string{"status"},
			),
			StaleProcessing: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "assessment_stale_processing",
					Help: "Assessments in processing longer than the stale threshold",
				},
			),
		}
	})
	return sharedMetrics
}

// ObserveAttempt records one adapter invocation.
func (m *Metrics) ObserveAttempt(backend, outcome string, d time.Duration) {
	m.Attempts.WithLabelValues(backend, outcome).Inc()
	m.AttemptDuration.WithLabelValues(backend).Observe(d.Seconds())
}

// ObserveRun records a terminal run result: "completed", "fallback" or "error".
func (m *Metrics) ObserveRun(result string, d time.Duration) {
	m.Runs.WithLabelValues(result).Inc()
	m.RunDuration.WithLabelValues(result).Observe(d.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
