package health

import (
	"encoding/json"
	"net/http"
	"sync"

	"k8s.io/utils/clock"

	"github.com/c360/prodcon/pkg/worker"
)

// Monitor tracks health of multiple workers in a thread-safe manner
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
	clock    clock.PassiveClock
}

// NewMonitor creates a new health monitor. A nil clock uses the wall clock.
func NewMonitor(clk clock.PassiveClock) *Monitor {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Monitor{
		statuses: make(map[string]Status),
		clock:    clk,
	}
}

// Update updates the health status for a named worker
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Ensure the status has the correct component name and timestamp
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = m.clock.Now()
	}

	m.statuses[name] = status
}

// Observe records a worker event. Pass it to worker.WithObserver.
func (m *Monitor) Observe(e worker.Event) {
	if e.Kind != worker.EventState {
		return
	}
	m.Update(e.Worker, FromState(e.Worker, e.State, e.Seq))
}

// Track records the current status of every handle, including the outcome
// of finished workers.
func (m *Monitor) Track(handles ...*worker.Handle) {
	for _, h := range handles {
		if h != nil {
			m.Update(h.Name(), FromHandle(h))
		}
	}
}

// Get retrieves the health status for a named worker
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// GetAll returns a copy of all current health statuses
func (m *Monitor) GetAll() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]Status, len(m.statuses))
	for name, status := range m.statuses {
		result[name] = status
	}
	return result
}

// Count returns the number of workers being monitored
func (m *Monitor) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.statuses)
}

// AggregateHealth returns an aggregated health status for the entire run
func (m *Monitor) AggregateHealth(systemName string) Status {
	m.mu.RLock()
	subStatuses := make([]Status, 0, len(m.statuses))
	for _, status := range m.statuses {
		subStatuses = append(subStatuses, status)
	}
	m.mu.RUnlock()

	status := Aggregate(systemName, subStatuses)
	status.Timestamp = m.clock.Now()
	return status
}

// Handler serves the aggregate status as JSON. Unhealthy runs answer 503.
func (m *Monitor) Handler(systemName string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		status := m.AggregateHealth(systemName)

		code := http.StatusOK
		if status.IsUnhealthy() {
			code = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	})
}
