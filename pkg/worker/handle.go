package worker

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/c360/prodcon/errors"
)

// Role distinguishes producers from consumers.
type Role int

const (
	RoleProducer Role = iota
	RoleConsumer
)

func (r Role) String() string {
	switch r {
	case RoleProducer:
		return "producer"
	case RoleConsumer:
		return "consumer"
	default:
		return "unknown"
	}
}

// State is a worker's position in its lifecycle:
//
//	Idle -> Working -> {Blocked, Faulted, Canceled} -> Working | Terminated
type State int32

const (
	StateIdle State = iota
	StateWorking
	StateBlocked // waiting inside Put or Take
	StateFaulted // handling an injected fault, possibly backing off
	StateCanceled
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateBlocked:
		return "blocked"
	case StateFaulted:
		return "faulted"
	case StateCanceled:
		return "canceled"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Outcome is how a worker terminated.
type Outcome int

const (
	// OutcomeCompleted means the limit was reached or the buffer was closed.
	OutcomeCompleted Outcome = iota
	// OutcomeCanceled means the worker stopped on request.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of one worker's counters.
type Stats struct {
	Processed uint64 `json:"processed"` // items put or consumed
	Faults    uint64 `json:"faults"`
	Backoffs  uint64 `json:"backoffs"`
	Skipped   uint64 `json:"skipped"` // producer values abandoned
	Dropped   uint64 `json:"dropped"` // consumer items lost to faults
	Blocked   uint64 `json:"blocked"` // times the fast path found the buffer full or empty
}

// Handle controls and observes a running worker.
type Handle struct {
	id     string
	name   string
	role   Role
	cancel func()
	done   chan struct{}

	state atomic.Int32

	// Written once before done is closed
	outcome Outcome
	err     error

	processed atomic.Uint64
	faults    atomic.Uint64
	backoffs  atomic.Uint64
	skipped   atomic.Uint64
	dropped   atomic.Uint64
	blocked   atomic.Uint64
}

// ID returns the worker's unique identifier.
func (h *Handle) ID() string { return h.id }

// Name returns the worker's name.
func (h *Handle) Name() string { return h.name }

// Role returns whether the worker produces or consumes.
func (h *Handle) Role() Role { return h.role }

// State returns the worker's current state.
func (h *Handle) State() State { return State(h.state.Load()) }

// Done is closed once the worker has terminated.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel asks the worker to stop. It interrupts a blocked Put or Take and any
// backoff or pacing wait. Cancel does not wait; use Await.
func (h *Handle) Cancel() { h.cancel() }

// Await blocks until the worker terminates and returns its outcome.
func (h *Handle) Await() Outcome {
	<-h.done
	return h.outcome
}

// AwaitTimeout is Await bounded by d. It returns errors.ErrAwaitTimeout if
// the worker is still running when d elapses; the outcome is then meaningless.
func (h *Handle) AwaitTimeout(d time.Duration) (Outcome, error) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-h.done:
		return h.outcome, nil
	case <-timer.C:
		return OutcomeCompleted, errors.WrapTransient(
			fmt.Errorf("%w: %s still %s after %v", errors.ErrAwaitTimeout, h.name, h.State(), d),
			"Worker", "AwaitTimeout", "await termination")
	}
}

// Err returns the unexpected error that ended the worker, if any. Cancellation
// and a closed buffer are normal outcomes and leave Err nil. Valid after Done.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.err
	default:
		return nil
	}
}

// Stats returns a snapshot of the worker's counters.
func (h *Handle) Stats() Stats {
	return Stats{
		Processed: h.processed.Load(),
		Faults:    h.faults.Load(),
		Backoffs:  h.backoffs.Load(),
		Skipped:   h.skipped.Load(),
		Dropped:   h.dropped.Load(),
		Blocked:   h.blocked.Load(),
	}
}
