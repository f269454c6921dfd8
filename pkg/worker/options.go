package worker

import (
	"log/slog"
	"time"

	"github.com/c360/prodcon/metric"
	"golang.org/x/time/rate"
	"k8s.io/utils/clock"
)

// Option represents a configuration option for a worker
type Option[T any] func(*config[T])

type config[T any] struct {
	name     string
	logger   *slog.Logger
	pacing   time.Duration
	limiter  *rate.Limiter
	limit    uint64
	start    uint64
	sink     func(T)
	sequence func(T) uint64
	clock    clock.Clock
	observer func(Event)
	registry *metric.MetricsRegistry
}

// WithName sets the worker name used in logs, events and metric labels.
// Defaults to the role followed by a short random suffix.
func WithName[T any](name string) Option[T] {
	return func(c *config[T]) {
		c.name = name
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger[T any](logger *slog.Logger) Option[T] {
	return func(c *config[T]) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPacing sleeps d after every successful item.
func WithPacing[T any](d time.Duration) Option[T] {
	return func(c *config[T]) {
		c.pacing = d
	}
}

// WithRate caps the loop at limit iterations per second with a burst of one.
// A non-positive or infinite limit disables the cap.
func WithRate[T any](limit rate.Limit) Option[T] {
	return func(c *config[T]) {
		if limit > 0 && limit != rate.Inf {
			c.limiter = rate.NewLimiter(limit, 1)
		} else {
			c.limiter = nil
		}
	}
}

// WithLimit stops the worker after n sequence values (producer) or n taken
// items (consumer). Zero means unlimited.
func WithLimit[T any](n uint64) Option[T] {
	return func(c *config[T]) {
		c.limit = n
	}
}

// WithStart sets the first sequence value handed to a producer's generator.
func WithStart[T any](seq uint64) Option[T] {
	return func(c *config[T]) {
		c.start = seq
	}
}

// WithSink receives every item the worker handled successfully: put by a
// producer, or consumed without a fault by a consumer. It runs on the
// worker's goroutine.
func WithSink[T any](sink func(T)) Option[T] {
	return func(c *config[T]) {
		c.sink = sink
	}
}

// WithSequence maps a taken item to the sequence number the consumer's fault
// injector sees. Without it the consumer uses its own take count.
func WithSequence[T any](fn func(T) uint64) Option[T] {
	return func(c *config[T]) {
		c.sequence = fn
	}
}

// WithClock sets the time source for backoff and pacing waits.
func WithClock[T any](clk clock.Clock) Option[T] {
	return func(c *config[T]) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithObserver receives every state change and fault decision, synchronously
// on the worker's goroutine.
func WithObserver[T any](fn func(Event)) Option[T] {
	return func(c *config[T]) {
		c.observer = fn
	}
}

// WithRegistry reports worker state, faults and retry decisions to the core
// metrics of registry.
func WithRegistry[T any](registry *metric.MetricsRegistry) Option[T] {
	return func(c *config[T]) {
		c.registry = registry
	}
}

func applyOptions[T any](opts []Option[T]) *config[T] {
	c := &config[T]{
		logger: slog.Default(),
		clock:  clock.RealClock{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}
