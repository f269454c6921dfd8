package buffer

import (
	"github.com/c360/prodcon/metric"
	"github.com/prometheus/client_golang/prometheus"
)

// bufferMetrics holds Prometheus metrics for buffer operations.
type bufferMetrics struct {
	puts          prometheus.Counter
	takes         prometheus.Counter
	waits         *prometheus.CounterVec
	cancellations prometheus.Counter

	size        prometheus.Gauge
	utilization prometheus.Gauge
}

// newBufferMetrics creates and registers buffer metrics with the provided registry.
func newBufferMetrics(registry *metric.MetricsRegistry, name string) (*bufferMetrics, error) {
	labels := prometheus.Labels{"buffer": name}

	m := &bufferMetrics{
		puts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "prodcon",
			Subsystem:   "buffer",
			Name:        "puts_total",
			ConstLabels: labels,
			Help:        "Total number of items inserted",
		}),
		takes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "prodcon",
			Subsystem:   "buffer",
			Name:        "takes_total",
			ConstLabels: labels,
			Help:        "Total number of items removed",
		}),
		waits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "prodcon",
			Subsystem:   "buffer",
			Name:        "waits_total",
			ConstLabels: labels,
			Help:        "Total number of operations that blocked on a full or empty buffer",
		}, []string{"op"}),
		cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "prodcon",
			Subsystem:   "buffer",
			Name:        "cancellations_total",
			ConstLabels: labels,
			Help:        "Total number of operations abandoned by context cancellation",
		}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "prodcon",
			Subsystem:   "buffer",
			Name:        "size",
			ConstLabels: labels,
			Help:        "Current number of items in buffer",
		}),
		utilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   "prodcon",
			Subsystem:   "buffer",
			Name:        "utilization",
			ConstLabels: labels,
			Help:        "Buffer utilization as a fraction of capacity (0.0 to 1.0)",
		}),
	}

	if err := registry.RegisterCounter(name, "buffer_puts", m.puts); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "buffer_takes", m.takes); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounterVec(name, "buffer_waits", m.waits); err != nil {
		return nil, err
	}
	if err := registry.RegisterCounter(name, "buffer_cancellations", m.cancellations); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "buffer_size", m.size); err != nil {
		return nil, err
	}
	if err := registry.RegisterGauge(name, "buffer_utilization", m.utilization); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *bufferMetrics) recordPut(size, capacity int) {
	m.puts.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordTake(size, capacity int) {
	m.takes.Inc()
	m.updateSize(size, capacity)
}

func (m *bufferMetrics) recordWait(op string) {
	m.waits.WithLabelValues(op).Inc()
}

func (m *bufferMetrics) recordCancel() {
	m.cancellations.Inc()
}

func (m *bufferMetrics) updateSize(size, capacity int) {
	m.size.Set(float64(size))
	m.utilization.Set(float64(size) / float64(capacity))
}
