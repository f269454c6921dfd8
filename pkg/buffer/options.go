package buffer

import (
	"github.com/c360/prodcon/metric"
)

// Option configures buffer behavior using the functional options pattern.
type Option func(*bufferOptions)

// bufferOptions holds internal configuration for buffer instances.
// Stats are ALWAYS collected - they are not optional.
type bufferOptions struct {
	// metricsReg is optional - if provided, buffer stats are also exposed as Prometheus metrics
	metricsReg *metric.MetricsRegistry

	// name is used as the component label for Prometheus metrics
	name string
}

// WithMetrics enables Prometheus metrics export for buffer statistics.
// If registry is nil or name is empty, this option is ignored.
func WithMetrics(registry *metric.MetricsRegistry, name string) Option {
	return func(opts *bufferOptions) {
		if registry != nil && name != "" {
			opts.metricsReg = registry
			opts.name = name
		}
	}
}

// applyOptions applies functional options to create final buffer configuration.
func applyOptions(options ...Option) *bufferOptions {
	opts := &bufferOptions{}

	for _, opt := range options {
		if opt != nil {
			opt(opts)
		}
	}

	return opts
}
