// Package throughput counts items moving through producer/consumer workers
// and derives items-per-second figures.
package throughput

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/prodcon/metric"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/utils/clock"
)

// Metrics holds counters shared by every worker of one run.
//
// Workers only increment. The start and end timestamps belong to the harness
// and are written through Start and Stop alone.
type Metrics struct {
	produced atomic.Uint64
	consumed atomic.Uint64
	skipped  atomic.Uint64
	dropped  atomic.Uint64

	clock clock.PassiveClock

	mu    sync.RWMutex
	start time.Time
	end   time.Time
}

// Option configures Metrics.
type Option func(*Metrics)

// WithClock sets the time source used for Start, Stop and elapsed time.
func WithClock(clk clock.PassiveClock) Option {
	return func(m *Metrics) {
		if clk != nil {
			m.clock = clk
		}
	}
}

// NewMetrics creates zeroed counters.
func NewMetrics(opts ...Option) *Metrics {
	m := &Metrics{clock: clock.RealClock{}}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// Start records the start of the run. Calling it again restarts the window.
func (m *Metrics) Start() {
	m.mu.Lock()
	m.start = m.clock.Now()
	m.end = time.Time{}
	m.mu.Unlock()
}

// Stop records the end of the run. Only the first call after Start counts.
func (m *Metrics) Stop() {
	m.mu.Lock()
	if m.end.IsZero() {
		m.end = m.clock.Now()
	}
	m.mu.Unlock()
}

// IncProduced counts one item placed into the buffer.
func (m *Metrics) IncProduced() { m.produced.Add(1) }

// IncConsumed counts one item taken and processed.
func (m *Metrics) IncConsumed() { m.consumed.Add(1) }

// IncSkipped counts one value a producer abandoned after exhausting retries.
func (m *Metrics) IncSkipped() { m.skipped.Add(1) }

// IncDropped counts one item a consumer took and then lost to a fault.
func (m *Metrics) IncDropped() { m.dropped.Add(1) }

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Produced uint64        `json:"produced"`
	Consumed uint64        `json:"consumed"`
	Skipped  uint64        `json:"skipped"`
	Dropped  uint64        `json:"dropped"`
	Elapsed  time.Duration `json:"elapsed"`
	// Stopped is true once Stop has been called. Throughput figures are only
	// meaningful for stopped snapshots taken after every worker terminated.
	Stopped bool `json:"stopped"`
}

// Snapshot returns the current counters. Elapsed runs from Start to Stop, or
// to now while running, and is zero before Start.
func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	start, end := m.start, m.end
	m.mu.RUnlock()

	s := Snapshot{
		Produced: m.produced.Load(),
		Consumed: m.consumed.Load(),
		Skipped:  m.skipped.Load(),
		Dropped:  m.dropped.Load(),
		Stopped:  !end.IsZero(),
	}

	switch {
	case start.IsZero():
	case end.IsZero():
		s.Elapsed = m.clock.Since(start)
	default:
		s.Elapsed = end.Sub(start)
	}
	return s
}

// Throughput returns produced items per second as produced*1000/elapsed_ms.
// It is 0 when less than a millisecond elapsed.
func (s Snapshot) Throughput() float64 {
	return perSecond(s.Produced, s.Elapsed)
}

// ConsumeThroughput is Throughput for consumed items.
func (s Snapshot) ConsumeThroughput() float64 {
	return perSecond(s.Consumed, s.Elapsed)
}

func perSecond(count uint64, elapsed time.Duration) float64 {
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return 0
	}
	return float64(count) * 1000 / float64(ms)
}

// Register exports the counters to registry as prodcon_items_*_total,
// labeled with run name. Values are read at scrape time.
func (m *Metrics) Register(registry *metric.MetricsRegistry, name string) error {
	counters := []struct {
		metricName string
		help       string
		value      *atomic.Uint64
	}{
		{"produced", "Items placed into the buffer by producers", &m.produced},
		{"consumed", "Items taken and processed by consumers", &m.consumed},
		{"skipped", "Values producers abandoned after exhausting retries", &m.skipped},
		{"dropped", "Items consumers took and lost to a fault", &m.dropped},
	}

	for _, c := range counters {
		value := c.value
		collector := prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   "prodcon",
			Subsystem:   "items",
			Name:        c.metricName + "_total",
			Help:        c.help,
			ConstLabels: prometheus.Labels{"run": name},
		}, func() float64 {
			return float64(value.Load())
		})

		if err := registry.RegisterCollector(name, "items_"+c.metricName, collector); err != nil {
			return err
		}
	}
	return nil
}
