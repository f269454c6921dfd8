// Package health reports whether the workers of a run are making progress.
//
// A Monitor holds one Status per worker. It is fed live through
// worker.WithObserver and can be refreshed from worker handles with Track.
// Statuses combine into one run-wide Status with Aggregate:
//
//   - Any unhealthy worker makes the run unhealthy
//   - Any degraded worker (with none unhealthy) makes the run degraded
//   - Otherwise the run is healthy
//
// # Worker States
//
// Idle, working, blocked, canceled and terminated workers are healthy. A
// worker blocked on a full or empty buffer is applying backpressure, not
// failing. A worker handling an injected fault is degraded until its next
// state change. A worker that stopped on an unexpected error is unhealthy,
// with the error text, stripped of URLs, paths and credentials, as message.
//
// # Usage
//
//	monitor := health.NewMonitor(nil)
//
//	p, err := worker.StartProducer(ctx, buf, gen, faults, policy, m,
//	    worker.WithObserver[int](monitor.Observe))
//
//	server := metric.NewServer(9090, "/metrics", registry)
//	server.SetHealthHandler(monitor.Handler("prodcon"))
//
// The handler answers 200 with the aggregate as JSON, or 503 when the run
// is unhealthy.
package health
