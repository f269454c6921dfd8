package buffer

import (
	"context"
	"time"
)

// Buffer is a fixed-capacity FIFO queue shared by producers and consumers.
// The buffer is parameterized by item type T for type safety.
type Buffer[T any] interface {
	// Put blocks until there is room, then appends item.
	// Returns ctx.Err() without inserting if ctx is done before room appears,
	// and ErrBufferClosed once the buffer is closed.
	Put(ctx context.Context, item T) error

	// Take blocks until an item is available, then removes and returns it.
	// Returns ctx.Err() without removing anything if ctx is done first.
	// After Close, remaining items are still returned; ErrBufferClosed follows.
	Take(ctx context.Context) (T, error)

	// TryPut appends item without blocking. Returns ErrBufferFull when full.
	TryPut(item T) error

	// TryTake removes one item without blocking. Returns ErrBufferEmpty when empty.
	TryTake() (T, error)

	// Len returns the current number of items in the buffer.
	Len() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsFull returns true if the buffer is at maximum capacity.
	IsFull() bool

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Stats returns buffer statistics (always available for observability).
	Stats() *Statistics

	// Close wakes every blocked caller and rejects further puts.
	Close() error
}

// New creates a condition-variable ring buffer with the given capacity.
// Capacity must be at least 1.
func New[T any](capacity int, options ...Option) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer[T](capacity, opts)
}

// NewChannel creates a channel-backed buffer with the given capacity.
// Capacity must be at least 1.
func NewChannel[T any](capacity int, options ...Option) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newChannelBuffer[T](capacity, opts)
}

// PutTimeout is Put bounded by a timeout. It returns context.DeadlineExceeded
// if no room appears in time.
func PutTimeout[T any](b Buffer[T], item T, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return b.Put(ctx, item)
}

// TakeTimeout is Take bounded by a timeout.
func TakeTimeout[T any](b Buffer[T], timeout time.Duration) (T, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return b.Take(ctx)
}
