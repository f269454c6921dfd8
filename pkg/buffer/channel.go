package buffer

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/prodcon/errors"
)

// channelBuffer implements Buffer on a buffered channel.
// The channel is never closed; done signals Close so concurrent senders
// cannot panic on a closed channel.
type channelBuffer[T any] struct {
	items     chan T
	done      chan struct{}
	closeOnce sync.Once
	stats     *Statistics
	metrics   *bufferMetrics
}

func newChannelBuffer[T any](capacity int, opts *bufferOptions) (*channelBuffer[T], error) {
	if capacity < 1 {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: capacity %d, must be at least 1", errors.ErrInvalidConfig, capacity),
			"ChannelBuffer", "New", "capacity check")
	}

	var metrics *bufferMetrics
	if opts.metricsReg != nil && opts.name != "" {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.name)
		if err != nil {
			return nil, errors.Wrap(err, "ChannelBuffer", "New", "metrics registration")
		}
	}

	return &channelBuffer[T]{
		items:   make(chan T, capacity),
		done:    make(chan struct{}),
		stats:   NewStatistics(),
		metrics: metrics,
	}, nil
}

func (b *channelBuffer[T]) Put(ctx context.Context, item T) error {
	if err := ctx.Err(); err != nil {
		b.recordCancel()
		return err
	}
	if b.isClosed() {
		return closedError("Put")
	}

	select {
	case b.items <- item:
		b.recordPut()
		return nil
	default:
	}

	b.stats.PutWait()
	if b.metrics != nil {
		b.metrics.recordWait("put")
	}

	select {
	case b.items <- item:
		b.recordPut()
		return nil
	case <-ctx.Done():
		b.recordCancel()
		return ctx.Err()
	case <-b.done:
		return closedError("Put")
	}
}

func (b *channelBuffer[T]) Take(ctx context.Context) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		b.recordCancel()
		return zero, err
	}

	select {
	case item := <-b.items:
		b.recordTake()
		return item, nil
	default:
	}

	if b.isClosed() {
		return zero, closedError("Take")
	}

	b.stats.TakeWait()
	if b.metrics != nil {
		b.metrics.recordWait("take")
	}

	select {
	case item := <-b.items:
		b.recordTake()
		return item, nil
	case <-ctx.Done():
		b.recordCancel()
		return zero, ctx.Err()
	case <-b.done:
		// A put may have raced the close
		select {
		case item := <-b.items:
			b.recordTake()
			return item, nil
		default:
			return zero, closedError("Take")
		}
	}
}

func (b *channelBuffer[T]) TryPut(item T) error {
	if b.isClosed() {
		return closedError("TryPut")
	}

	select {
	case b.items <- item:
		b.recordPut()
		return nil
	default:
		return errors.ErrBufferFull
	}
}

func (b *channelBuffer[T]) TryTake() (T, error) {
	var zero T

	select {
	case item := <-b.items:
		b.recordTake()
		return item, nil
	default:
	}

	if b.isClosed() {
		return zero, closedError("TryTake")
	}
	return zero, errors.ErrBufferEmpty
}

func (b *channelBuffer[T]) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

func (b *channelBuffer[T]) recordPut() {
	size := len(b.items)
	b.stats.Put()
	b.stats.UpdateSize(int64(size))
	if b.metrics != nil {
		b.metrics.recordPut(size, cap(b.items))
	}
}

func (b *channelBuffer[T]) recordTake() {
	size := len(b.items)
	b.stats.Take()
	b.stats.UpdateSize(int64(size))
	if b.metrics != nil {
		b.metrics.recordTake(size, cap(b.items))
	}
}

func (b *channelBuffer[T]) recordCancel() {
	b.stats.Cancel()
	if b.metrics != nil {
		b.metrics.recordCancel()
	}
}

func (b *channelBuffer[T]) Len() int      { return len(b.items) }
func (b *channelBuffer[T]) Capacity() int { return cap(b.items) }
func (b *channelBuffer[T]) IsFull() bool  { return len(b.items) == cap(b.items) }
func (b *channelBuffer[T]) IsEmpty() bool { return len(b.items) == 0 }

func (b *channelBuffer[T]) Stats() *Statistics {
	return b.stats
}

func (b *channelBuffer[T]) Close() error {
	b.closeOnce.Do(func() {
		close(b.done)
	})
	return nil
}
