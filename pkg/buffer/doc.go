// Package buffer provides generic, thread-safe bounded buffers with blocking,
// cancelable Put and Take, built-in statistics tracking, and optional
// Prometheus metrics integration.
//
// # Overview
//
// A bounded buffer is a fixed-capacity FIFO queue shared by producers and
// consumers. Put waits while the buffer is full, Take waits while it is empty.
// Both return ctx.Err() when the caller's context is done before they can
// proceed, leaving contents and cursors untouched.
//
// # Quick Start
//
//	buf, err := buffer.New[int](5)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer buf.Close()
//
//	if err := buf.Put(ctx, 42); err != nil {
//		return err
//	}
//	v, err := buf.Take(ctx)
//
// With metrics:
//
//	buf, err := buffer.New[[]byte](100,
//		buffer.WithMetrics(registry, "ingest"),
//	)
//
// # Implementations
//
// New returns a ring of slots guarded by one mutex and two condition
// variables, "not full" and "not empty". A put broadcasts "not empty" only
// when occupancy moves from 0 to 1, a take broadcasts "not full" only when it
// moves from capacity down by one. Every waiter re-checks its predicate in a
// loop, so surplus and spurious wakeups are harmless.
//
// NewChannel returns the same contract on a buffered channel. The channel's
// own blocking subsumes both conditions.
//
// # Cancellation
//
// When a caller of the ring buffer must wait, a context.AfterFunc is armed
// that takes the buffer lock and broadcasts the condition the caller waits
// on. A cancellation delivered while blocked therefore wakes the waiter
// promptly, and the lock ordering rules out a missed wakeup between the
// waiter's context check and its call to Wait.
//
// PutTimeout and TakeTimeout are thin wrappers that bound a single call.
//
// # Fairness
//
// Contents are strictly FIFO. Blocked waiters are not: whichever waiter
// reacquires the lock first proceeds. The policy is relaxed and not
// starvation-free.
//
// # Close
//
// Close wakes every waiter. Subsequent puts fail with errors.ErrBufferClosed.
// Takes keep returning remaining items and then fail with the same error.
//
// # Invariants
//
// After every mutation the ring checks 0 <= size <= capacity, both cursors in
// [0, capacity) and (tail+size) mod capacity == head. A violation means the
// buffer is corrupted: it panics with a fatal *errors.ClassifiedError
// wrapping errors.ErrInvariantViolation. Callers must not recover and retry.
//
// # Observability
//
// Statistics are always on and lock-free where possible:
//
//	stats := buf.Stats()
//	fmt.Printf("puts=%d takes=%d waits=%d/%d\n",
//		stats.Puts(), stats.Takes(), stats.PutWaits(), stats.TakeWaits())
//
// With WithMetrics the same events are exported under the prodcon_buffer_*
// Prometheus names, labeled with the buffer name.
package buffer
