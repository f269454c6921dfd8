package health

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/c360/prodcon/pkg/worker"
)

// Status values
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Pre-compiled regexes for error message sanitization
var (
	urlRegex        = regexp.MustCompile(`[a-z]+://[^\s]+`)
	unixPathRegex   = regexp.MustCompile(`/[a-zA-Z0-9/_.-]+`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|key|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status represents the health state of a worker or of a whole run
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"` // true if status is "healthy"
	Status      string    `json:"status"`  // "healthy", "unhealthy", "degraded"
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Metrics     *Metrics  `json:"metrics,omitempty"`
}

// Metrics carries worker counters alongside a status
type Metrics struct {
	Processed uint64 `json:"processed"`
	Faults    uint64 `json:"faults"`
	Backoffs  uint64 `json:"backoffs"`
	Skipped   uint64 `json:"skipped,omitempty"`
	Dropped   uint64 `json:"dropped,omitempty"`
}

// IsHealthy returns true if the status is healthy
func (s Status) IsHealthy() bool { return s.Status == StatusHealthy }

// IsDegraded returns true if the status is degraded
func (s Status) IsDegraded() bool { return s.Status == StatusDegraded }

// IsUnhealthy returns true if the status is unhealthy
func (s Status) IsUnhealthy() bool { return s.Status == StatusUnhealthy }

// WithMetrics returns a copy of the status with metrics attached
func (s Status) WithMetrics(metrics *Metrics) Status {
	s.Metrics = metrics
	return s
}

func newStatus(component, status, message string) Status {
	return Status{
		Component: component,
		Healthy:   status == StatusHealthy,
		Status:    status,
		Message:   message,
	}
}

// NewHealthy creates a new healthy status
func NewHealthy(component, message string) Status {
	return newStatus(component, StatusHealthy, message)
}

// NewUnhealthy creates a new unhealthy status
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StatusUnhealthy, message)
}

// NewDegraded creates a new degraded status
func NewDegraded(component, message string) Status {
	return newStatus(component, StatusDegraded, message)
}

// FromState maps a worker state to a status. A blocked worker is healthy:
// waiting on a full or empty buffer is how the pattern applies backpressure.
func FromState(name string, state worker.State, seq uint64) Status {
	switch state {
	case worker.StateFaulted:
		return NewDegraded(name, fmt.Sprintf("recovering from fault at sequence %d", seq))
	case worker.StateBlocked:
		return NewHealthy(name, "waiting on buffer")
	default:
		return NewHealthy(name, state.String())
	}
}

// FromHandle describes a worker from its handle. A terminated worker that
// stopped on an unexpected error is unhealthy.
func FromHandle(h *worker.Handle) Status {
	var status Status
	select {
	case <-h.Done():
		if err := h.Err(); err != nil {
			status = NewUnhealthy(h.Name(), sanitizeErrorMessage(err.Error()))
		} else {
			status = NewHealthy(h.Name(), h.Await().String())
		}
	default:
		status = FromState(h.Name(), h.State(), 0)
	}

	stats := h.Stats()
	return status.WithMetrics(&Metrics{
		Processed: stats.Processed,
		Faults:    stats.Faults,
		Backoffs:  stats.Backoffs,
		Skipped:   stats.Skipped,
		Dropped:   stats.Dropped,
	})
}

// Aggregate creates a status by aggregating sub-statuses
// The aggregation rules are:
// - If all sub-statuses are healthy, the aggregate is healthy
// - If any sub-status is unhealthy, the aggregate is unhealthy
// - If no sub-status is unhealthy but at least one is degraded, the aggregate is degraded
func Aggregate(component string, subStatuses []Status) Status {
	if len(subStatuses) == 0 {
		return NewHealthy(component, "No workers to aggregate")
	}

	unhealthy, degraded := 0, 0
	for _, sub := range subStatuses {
		switch {
		case sub.IsUnhealthy():
			unhealthy++
		case sub.IsDegraded():
			degraded++
		}
	}

	var status Status
	switch {
	case unhealthy > 0:
		status = NewUnhealthy(component, fmt.Sprintf("%d of %d workers unhealthy", unhealthy, len(subStatuses)))
	case degraded > 0:
		status = NewDegraded(component, fmt.Sprintf("%d of %d workers degraded", degraded, len(subStatuses)))
	default:
		status = NewHealthy(component, "All workers healthy")
	}

	status.SubStatuses = make([]Status, len(subStatuses))
	copy(status.SubStatuses, subStatuses)
	sort.Slice(status.SubStatuses, func(i, j int) bool {
		return status.SubStatuses[i].Component < status.SubStatuses[j].Component
	})

	return status
}

// sanitizeErrorMessage removes URLs, file paths and credentials from error
// text before it is served over HTTP.
func sanitizeErrorMessage(err string) string {
	sanitized := urlRegex.ReplaceAllString(err, "[URL]")
	sanitized = unixPathRegex.ReplaceAllString(sanitized, "[PATH]")
	return credentialRegex.ReplaceAllString(sanitized, "[REDACTED]")
}
