package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/c360/prodcon/errors"
)

// Preset names
const (
	PresetBasic    = "basic"    // ring buffer, no faults
	PresetBlocking = "blocking" // channel buffer, no faults
	PresetFaulty   = "faulty"   // channel buffer, every trigger fails, no retries
	PresetImproved = "improved" // channel buffer, coin-flip faults with linear backoff
)

var presets = map[string]func() *Config{
	PresetBasic:    basicPreset,
	PresetBlocking: blockingPreset,
	PresetFaulty:   faultyPreset,
	PresetImproved: improvedPreset,
}

// Preset returns a fresh copy of the named preset.
func Preset(name string) (*Config, error) {
	build, ok := presets[name]
	if !ok {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: unknown preset %q (have %v)", errors.ErrConfigNotFound, name, PresetNames()),
			"Config", "Preset", "preset lookup")
	}
	return build(), nil
}

// PresetNames lists the available presets in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// basicPreset is one producer and one consumer on a five-slot ring,
// pacing 100ms and 200ms, for five seconds.
func basicPreset() *Config {
	return &Config{
		Buffer: BufferConfig{
			Kind:     BufferRing,
			Capacity: 5,
		},
		Producer: WorkerConfig{
			Count:  1,
			Pacing: Duration(100 * time.Millisecond),
		},
		Consumer: WorkerConfig{
			Count:  1,
			Pacing: Duration(200 * time.Millisecond),
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			BaseDelay:  Duration(200 * time.Millisecond),
			Strategy:   "linear",
		},
		Run: RunConfig{
			Duration:    Duration(5 * time.Second),
			GracePeriod: Duration(2 * time.Second),
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

func blockingPreset() *Config {
	cfg := basicPreset()
	cfg.Buffer.Kind = BufferChannel
	return cfg
}

// faultyPreset fails every producer value divisible by 10 and every consumer
// value divisible by 15, and skips them at once.
func faultyPreset() *Config {
	cfg := blockingPreset()
	cfg.Producer.FaultModulus = 10
	cfg.Producer.FaultProbability = 1
	cfg.Consumer.FaultModulus = 15
	cfg.Consumer.FaultProbability = 1
	cfg.Retry.MaxRetries = 0
	return cfg
}

// improvedPreset gates the same triggers with a coin flip and backs off
// 200ms * n for up to three failures before skipping.
func improvedPreset() *Config {
	cfg := faultyPreset()
	cfg.Producer.FaultProbability = 0.5
	cfg.Consumer.FaultProbability = 0.5
	cfg.Retry.MaxRetries = 3
	return cfg
}
