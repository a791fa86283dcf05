package supervisor

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects Prometheus metrics for the prediction console.
type Metrics struct {
	actionsTotal   *prometheus.CounterVec
	actionDuration *prometheus.HistogramVec
	attemptsTotal  *prometheus.CounterVec
	retriesTotal   *prometheus.CounterVec
	inFlight       prometheus.Gauge
	backendHealthy prometheus.Gauge
	historyEntries prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *Metrics
)

// NewMetrics returns the process-wide metrics collector.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInst = &Metrics{
			actionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "iris_predict_actions_total",
					Help: "Predict actions by final outcome",
				},
				[]string{"model", "outcome"},
			),
			actionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "iris_predict_action_duration_seconds",
					Help:    "Predict action duration in seconds, retries included",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"model"},
			),
			attemptsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "iris_predict_attempts_total",
					Help: "Network attempts by result",
				},
				[]string{"model", "result"},
			),
			retriesTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "iris_predict_retries_total",
					Help: "Retries issued after a failed first attempt",
				},
				[]string{"model"},
			),
			inFlight: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "iris_predict_in_flight",
					Help: "1 while a predict action is outstanding",
				},
			),
			backendHealthy: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "iris_backend_healthy",
					Help: "Prediction service health (1 = healthy, 0 = unhealthy)",
				},
			),
			historyEntries: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "iris_history_entries",
					Help: "Entries currently retained in the prediction history",
				},
			),
		}
	})
	return metricsInst
}

func label(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// RecordAction records a finished predict action.
func (m *Metrics) RecordAction(model, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.actionsTotal.WithLabelValues(label(model), label(outcome)).Inc()
	m.actionDuration.WithLabelValues(label(model)).Observe(duration.Seconds())
}

// RecordAttempt records one network attempt; result is "ok" or an error kind.
func (m *Metrics) RecordAttempt(model, result string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(label(model), label(result)).Inc()
}

// RecordRetry records that a retry was issued.
func (m *Metrics) RecordRetry(model string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(label(model)).Inc()
}

// SetInFlight flips the in-flight gauge.
func (m *Metrics) SetInFlight(active bool) {
	if m == nil {
		return
	}
	if active {
		m.inFlight.Set(1)
	} else {
		m.inFlight.Set(0)
	}
}

// UpdateBackendHealth updates the backend health gauge.
func (m *Metrics) UpdateBackendHealth(healthy bool) {
	if m == nil {
		return
	}
	if healthy {
		m.backendHealthy.Set(1)
	} else {
		m.backendHealthy.Set(0)
	}
}

// UpdateHistorySize updates the history gauge.
func (m *Metrics) UpdateHistorySize(n int) {
	if m == nil {
		return
	}
	m.historyEntries.Set(float64(n))
}
