package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/prodcon/errors"
	"golang.org/x/sync/errgroup"
)

// Group tracks a set of workers started together, such as the producers of
// one run, so they can be canceled and awaited as a unit.
type Group struct {
	mu      sync.Mutex
	handles []*Handle
}

// NewGroup creates an empty group.
func NewGroup() *Group {
	return &Group{}
}

// Add registers handles with the group. Nil handles are ignored.
func (g *Group) Add(handles ...*Handle) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, h := range handles {
		if h != nil {
			g.handles = append(g.handles, h)
		}
	}
}

// Handles returns a copy of the registered handles.
func (g *Group) Handles() []*Handle {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]*Handle, len(g.handles))
	copy(out, g.handles)
	return out
}

// CancelAll requests every worker in the group to stop.
func (g *Group) CancelAll() {
	for _, h := range g.Handles() {
		h.Cancel()
	}
}

// Wait blocks until every worker has terminated or ctx is done. A worker that
// ended with an unexpected error fails the wait with that error. When ctx
// ends first, Wait returns an error wrapping errors.ErrAwaitTimeout; the
// workers keep running.
func (g *Group) Wait(ctx context.Context) error {
	var eg errgroup.Group

	for _, h := range g.Handles() {
		h := h
		eg.Go(func() error {
			select {
			case <-h.Done():
				if err := h.Err(); err != nil {
					return errors.Wrap(err, "Group", "Wait", fmt.Sprintf("worker %s", h.Name()))
				}
				return nil
			case <-ctx.Done():
				return errors.WrapTransient(
					fmt.Errorf("%w: %s: %w", errors.ErrAwaitTimeout, h.Name(), ctx.Err()),
					"Group", "Wait", "await worker")
			}
		})
	}

	return eg.Wait()
}

// Outcomes returns the outcome of every terminated worker keyed by name.
// Workers still running are omitted.
func (g *Group) Outcomes() map[string]Outcome {
	out := make(map[string]Outcome)
	for _, h := range g.Handles() {
		select {
		case <-h.Done():
			out[h.Name()] = h.outcome
		default:
		}
	}
	return out
}

// Stats sums the counters of every worker in the group.
func (g *Group) Stats() Stats {
	var total Stats
	for _, h := range g.Handles() {
		s := h.Stats()
		total.Processed += s.Processed
		total.Faults += s.Faults
		total.Backoffs += s.Backoffs
		total.Skipped += s.Skipped
		total.Dropped += s.Dropped
		total.Blocked += s.Blocked
	}
	return total
}
