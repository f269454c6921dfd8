package buffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/prodcon/errors"
)

// circularBuffer is a fixed-size ring with blocking Put/Take.
//
// Every read-modify-write of items, head, tail and size happens under mu.
// Waiters loop on their predicate, so spurious and surplus wakeups are harmless.
type circularBuffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	size     int
	head     int            // Points to the next write position
	tail     int            // Points to the next read position
	stats    *Statistics    // ALWAYS initialized for observability
	metrics  *bufferMetrics // Optional Prometheus metrics

	notEmpty *sync.Cond
	notFull  *sync.Cond
	closed   bool
}

// newCircularBuffer creates a new circular buffer instance.
// Returns an error if capacity is below 1 or metrics registration fails.
func newCircularBuffer[T any](capacity int, opts *bufferOptions) (*circularBuffer[T], error) {
	if capacity < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: capacity %d, must be at least 1", errors.ErrInvalidConfig, capacity),
			"Buffer", "New", "capacity check")
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.name != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.name)
		if err != nil {
			return nil, errors.Wrap(err, "Buffer", "New", "metrics registration")
		}
	}

	cb := &circularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
		stats:    NewStatistics(),
		metrics:  metrics,
	}

	cb.notEmpty = sync.NewCond(&cb.mu)
	cb.notFull = sync.NewCond(&cb.mu)

	return cb, nil
}

// Put adds an item, waiting for room while the buffer is full.
func (cb *circularBuffer[T]) Put(ctx context.Context, item T) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err := ctx.Err(); err != nil {
		cb.recordCancel()
		return err
	}
	if cb.closed {
		return closedError("Put")
	}

	if cb.size == cb.capacity {
		cb.stats.PutWait()
		if cb.metrics != nil {
			cb.metrics.recordWait("put")
		}

		// Broadcast under the lock so a waiter between its ctx check and Wait
		// cannot miss the cancellation.
		stop := context.AfterFunc(ctx, func() {
			cb.mu.Lock()
			cb.notFull.Broadcast()
			cb.mu.Unlock()
		})
		defer stop()

		for cb.size == cb.capacity && !cb.closed {
			if err := ctx.Err(); err != nil {
				cb.recordCancel()
				return err
			}
			cb.notFull.Wait()
		}

		if cb.closed {
			return closedError("Put")
		}
	}

	cb.insert(item)
	return nil
}

// Take removes the oldest item, waiting while the buffer is empty.
func (cb *circularBuffer[T]) Take(ctx context.Context) (T, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T

	if err := ctx.Err(); err != nil {
		cb.recordCancel()
		return zero, err
	}

	if cb.size == 0 {
		if cb.closed {
			return zero, closedError("Take")
		}

		cb.stats.TakeWait()
		if cb.metrics != nil {
			cb.metrics.recordWait("take")
		}

		stop := context.AfterFunc(ctx, func() {
			cb.mu.Lock()
			cb.notEmpty.Broadcast()
			cb.mu.Unlock()
		})
		defer stop()

		for cb.size == 0 && !cb.closed {
			if err := ctx.Err(); err != nil {
				cb.recordCancel()
				return zero, err
			}
			cb.notEmpty.Wait()
		}

		// Closed and drained
		if cb.size == 0 {
			return zero, closedError("Take")
		}
	}

	return cb.remove(), nil
}

// TryPut adds an item only if there is room.
func (cb *circularBuffer[T]) TryPut(item T) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return closedError("TryPut")
	}
	if cb.size == cb.capacity {
		return errors.ErrBufferFull
	}

	cb.insert(item)
	return nil
}

// TryTake removes the oldest item only if one is present.
func (cb *circularBuffer[T]) TryTake() (T, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T

	if cb.size == 0 {
		if cb.closed {
			return zero, closedError("TryTake")
		}
		return zero, errors.ErrBufferEmpty
	}

	return cb.remove(), nil
}

// insert writes at head. Caller holds mu and has checked size < capacity.
func (cb *circularBuffer[T]) insert(item T) {
	wasEmpty := cb.size == 0

	cb.items[cb.head] = item
	cb.head = (cb.head + 1) % cb.capacity
	cb.size++

	cb.checkInvariants("Put")

	cb.stats.Put()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordPut(cb.size, cb.capacity)
	}

	// 0 -> 1 is the only transition a take can be waiting on
	if wasEmpty {
		cb.notEmpty.Broadcast()
	}
}

// remove reads at tail. Caller holds mu and has checked size > 0.
func (cb *circularBuffer[T]) remove() T {
	var zero T
	wasFull := cb.size == cb.capacity

	item := cb.items[cb.tail]
	cb.items[cb.tail] = zero // Clear for GC
	cb.tail = (cb.tail + 1) % cb.capacity
	cb.size--

	cb.checkInvariants("Take")

	cb.stats.Take()
	cb.stats.UpdateSize(int64(cb.size))
	if cb.metrics != nil {
		cb.metrics.recordTake(cb.size, cb.capacity)
	}

	if wasFull {
		cb.notFull.Broadcast()
	}

	return item
}

// checkInvariants panics if occupancy or cursors are out of range.
// A violation means the ring is corrupted; it must not be retried.
func (cb *circularBuffer[T]) checkInvariants(op string) {
	if cb.size < 0 || cb.size > cb.capacity {
		panic(errors.Invariant("Buffer", op, "occupancy %d outside [0, %d]", cb.size, cb.capacity))
	}
	if cb.head < 0 || cb.head >= cb.capacity {
		panic(errors.Invariant("Buffer", op, "write cursor %d outside [0, %d)", cb.head, cb.capacity))
	}
	if cb.tail < 0 || cb.tail >= cb.capacity {
		panic(errors.Invariant("Buffer", op, "read cursor %d outside [0, %d)", cb.tail, cb.capacity))
	}
	if (cb.tail+cb.size)%cb.capacity != cb.head {
		panic(errors.Invariant("Buffer", op, "cursors head=%d tail=%d disagree with occupancy %d",
			cb.head, cb.tail, cb.size))
	}
}

func (cb *circularBuffer[T]) recordCancel() {
	cb.stats.Cancel()
	if cb.metrics != nil {
		cb.metrics.recordCancel()
	}
}

// Len returns the current number of items in the buffer.
func (cb *circularBuffer[T]) Len() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size
}

// Capacity returns the maximum number of items the buffer can hold.
func (cb *circularBuffer[T]) Capacity() int {
	return cb.capacity // This is immutable, so no lock needed
}

// IsFull returns true if the buffer is at maximum capacity.
func (cb *circularBuffer[T]) IsFull() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size == cb.capacity
}

// IsEmpty returns true if the buffer contains no items.
func (cb *circularBuffer[T]) IsEmpty() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.size == 0
}

// Stats returns buffer statistics (always available for observability).
func (cb *circularBuffer[T]) Stats() *Statistics {
	return cb.stats
}

// Close marks the buffer closed and wakes every waiter.
func (cb *circularBuffer[T]) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.closed {
		return nil
	}

	cb.closed = true

	cb.notEmpty.Broadcast()
	cb.notFull.Broadcast()

	return nil
}

func closedError(method string) error {
	return errors.WrapInvalid(errors.ErrBufferClosed, "Buffer", method, "buffer closed")
}
