// Package config loads the settings of a producer/consumer run.
//
// A run is described by Config: the shared buffer, the producer and consumer
// workers with their fault injection and pacing, the retry policy, the run
// duration and the optional Prometheus endpoint.
//
// # Loading
//
// Loader starts from a named preset, merges JSON or YAML file layers on top
// of it, then applies PRODCON_* environment overrides. Only fields present in
// a layer override the values below it.
//
//	loader := config.NewLoader()
//	if err := loader.UsePreset(config.PresetImproved); err != nil {
//		return err
//	}
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/local.json") // overrides base
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//
// # Presets
//
//   - basic: one producer and one consumer on a five-slot ring buffer, no faults
//   - blocking: the same workload on the channel buffer
//   - faulty: producer values divisible by 10 and consumer values divisible by
//     15 always fail and are skipped at once
//   - improved: the same triggers fire on a coin flip and are retried with a
//     linear 200ms backoff, three times, before the value is skipped
//
// # Environment Overrides
//
//	PRODCON_BUFFER_KIND        ring | channel
//	PRODCON_BUFFER_CAPACITY    slots
//	PRODCON_PRODUCER_COUNT     producers
//	PRODCON_CONSUMER_COUNT     consumers
//	PRODCON_PRODUCER_PACING    e.g. 100ms
//	PRODCON_CONSUMER_PACING    e.g. 200ms
//	PRODCON_RETRY_MAX_RETRIES  failures before a skip
//	PRODCON_RETRY_BASE_DELAY   e.g. 200ms
//	PRODCON_RUN_DURATION       e.g. 5s
//	PRODCON_METRICS_PORT       enables the metrics endpoint
//
// Durations are written as Go duration strings ("250ms", "5s"). Plain numbers
// are read as nanoseconds.
//
// # Security
//
// Config files are read through a guarded path: relative paths may not leave
// the working directory, only .json, .yaml and .yml files are accepted, files
// are limited to 10MB and JSON nesting to 100 levels.
package config
