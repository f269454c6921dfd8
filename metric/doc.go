// Package metric provides Prometheus-based metrics collection and an HTTP server
// for monitoring producer/consumer pipelines.
//
// The package offers a centralized metrics registry holding both core pipeline
// metrics (worker state, faults, retry decisions) and component-specific metrics
// registered by buffers and throughput collectors. An HTTP server exposes them in
// Prometheus format.
//
// # Architecture
//
//  1. Core Metrics: pipeline-level metrics registered automatically (Metrics type)
//  2. Component Registry: extensible registration keyed by component and metric name
//     (MetricsRegistrar interface)
//  3. HTTP Server: /metrics endpoint plus /health (Server type)
//
// # Basic Usage
//
//	registry := metric.NewMetricsRegistry()
//	server := metric.NewServer(9090, "/metrics", registry)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	defer server.Stop(ctx)
//
//	buf, _ := buffer.New[int](5, buffer.WithMetrics(registry, "main"))
//
// # Core Metrics
//
//   - prodcon_worker_state{worker,role}: current state of each worker
//   - prodcon_worker_active{role}: running workers
//   - prodcon_worker_faults_total{role}: injected faults
//   - prodcon_retry_decisions_total{role,action}: backoff and skip decisions
//   - prodcon_retry_backoff_seconds{role}: requested backoff delays
//
// # Duplicate Registration
//
// Registering the same component/metric key twice returns an invalid-class error.
// A Prometheus name clash under a different key is reported the same way, so
// callers can distinguish configuration mistakes from registry failures.
//
// # Reading Values
//
// Values gathers the registry and sums samples per family. The harness uses it
// for its end-of-run report and tests use it to assert exported counters.
package metric
