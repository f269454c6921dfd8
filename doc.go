// Package prodcon is a bounded-buffer producer/consumer core: a fixed-capacity
// queue shared by producer and consumer workers, with fault injection,
// retry with backoff and throughput instrumentation.
//
// # Architecture
//
//	┌──────────┐  gen(seq)  ┌───────────┐   Put    ┌──────────────┐   Take   ┌──────────┐
//	│ Producer │──────────▶│  Injector │────────▶│ Bounded      │────────▶│ Consumer │
//	│  worker  │◀──────────│  (fault)  │          │ Buffer       │          │  worker  │
//	└──────────┘ backoff or└───────────┘          │ (pkg/buffer) │          └────┬─────┘
//	     ▲       skip (retry)                      └──────────────┘               │
//	     │                                                               Injector, retry
//	     └──────────────── throughput.Metrics ◀───────────────────────────────────┘
//
// A producer generates the item for each sequence value, asks its injector
// whether the work fails, and on success puts the item, blocking while the
// buffer is full. A consumer takes items, blocking while the buffer is empty,
// and asks its own injector whether handling the item fails. Failures go to
// a retry policy that answers backoff or skip.
//
// # Packages
//
// Core:
//   - pkg/buffer: condition-variable ring buffer and channel-backed variant
//   - pkg/fault: modulus trigger gated by a probability
//   - pkg/retry: linear or exponential backoff, skip after too many failures
//   - pkg/worker: producer and consumer loops, handles, groups
//   - pkg/throughput: run-wide counters and items/second
//
// Infrastructure:
//   - errors: classified errors (transient, invalid, fatal)
//   - metric: Prometheus registry, core worker metrics, HTTP server
//   - health: worker health derived from worker state
//   - config: layered JSON/YAML loader with presets and env overrides
//
// # Running
//
//	go run ./cmd/prodcon -preset improved -duration 10s -metrics-port 9090
//
// See cmd/prodcon for flags.
//
// # Embedding
//
//	buf, _ := buffer.New[Order](64)
//	faults, _ := fault.NewInjector(10, 0.5)
//	policy, _ := retry.NewRetryPolicy(3, 200*time.Millisecond)
//	counts := throughput.NewMetrics()
//
//	counts.Start()
//	p, _ := worker.StartProducer(ctx, buf, nextOrder, faults, policy, counts)
//	c, _ := worker.StartConsumer(ctx, buf, nil, policy, counts, worker.WithSink(ship))
//
//	// ... later
//	p.Cancel()
//	_ = buf.Close()
//	c.Await()
//	counts.Stop()
//	fmt.Printf("%.1f items/s\n", counts.Snapshot().Throughput())
package prodcon
