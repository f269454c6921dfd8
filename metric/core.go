package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the pipeline-level metrics shared by all workers
type Metrics struct {
	WorkerState     *prometheus.GaugeVec
	WorkersActive   *prometheus.GaugeVec
	FaultsTotal     *prometheus.CounterVec
	RetryDecisions  *prometheus.CounterVec
	BackoffDuration *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance with all pipeline metrics
func NewMetrics() *Metrics {
	return &Metrics{
		WorkerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "prodcon",
				Subsystem: "worker",
				Name:      "state",
				Help:      "Worker state (0=idle, 1=working, 2=blocked, 3=faulted, 4=canceled, 5=terminated)",
			},
			[]string{"worker", "role"},
		),

		WorkersActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "prodcon",
				Subsystem: "worker",
				Name:      "active",
				Help:      "Number of running workers",
			},
			[]string{"role"},
		),

		FaultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prodcon",
				Subsystem: "worker",
				Name:      "faults_total",
				Help:      "Total number of injected worker faults",
			},
			[]string{"role"},
		),

		RetryDecisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "prodcon",
				Subsystem: "retry",
				Name:      "decisions_total",
				Help:      "Retry policy decisions by action",
			},
			[]string{"role", "action"},
		),

		BackoffDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "prodcon",
				Subsystem: "retry",
				Name:      "backoff_seconds",
				Help:      "Backoff delays requested by the retry policy",
				Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.2, 0.4, 0.8, 1.6, 3.2},
			},
			[]string{"role"},
		),
	}
}

// RecordWorkerState updates the state gauge of a worker
func (c *Metrics) RecordWorkerState(worker, role string, state int) {
	c.WorkerState.WithLabelValues(worker, role).Set(float64(state))
}

// RecordWorkerStarted increments the active worker gauge
func (c *Metrics) RecordWorkerStarted(role string) {
	c.WorkersActive.WithLabelValues(role).Inc()
}

// RecordWorkerStopped decrements the active worker gauge
func (c *Metrics) RecordWorkerStopped(role string) {
	c.WorkersActive.WithLabelValues(role).Dec()
}

// RecordFault increments the fault counter
func (c *Metrics) RecordFault(role string) {
	c.FaultsTotal.WithLabelValues(role).Inc()
}

// RecordRetryDecision counts a retry decision and observes its delay
func (c *Metrics) RecordRetryDecision(role, action string, delay time.Duration) {
	c.RetryDecisions.WithLabelValues(role, action).Inc()
	if delay > 0 {
		c.BackoffDuration.WithLabelValues(role).Observe(delay.Seconds())
	}
}
