// Package worker runs producer and consumer loops against a bounded buffer.
//
// # Overview
//
// A producer turns sequence values into items and puts them into a
// buffer.Buffer. A consumer takes items out. Both pass every attempt through
// an optional fault.Injector and hand injected faults to a retry.Policy,
// which decides between backing off and skipping. Counts land in a shared
// throughput.Metrics owned by the caller.
//
//	buf, _ := buffer.New[int](5)
//	m := throughput.NewMetrics()
//	policy, _ := retry.NewRetryPolicy(3, 200*time.Millisecond)
//	faults, _ := fault.NewInjector(10, 1.0)
//
//	m.Start()
//	p, _ := worker.StartProducer(ctx, buf, func(seq uint64) int { return int(seq) },
//	    faults, policy, m, worker.WithLimit[int](100))
//	c, _ := worker.StartConsumer(ctx, buf, nil, policy, m)
//
//	p.Await()
//	buf.Close()
//	c.Await()
//	m.Stop()
//
// # Lifecycle
//
// Each worker moves through
//
//	Idle -> Working -> {Blocked, Faulted, Canceled} -> Working | Terminated
//
// Blocked means the worker is waiting inside Put or Take. The non-blocking
// TryPut or TryTake is attempted first, so Blocked is only reported when the
// buffer really is full or empty. Faulted covers fault handling including
// any backoff.
//
// A worker terminates with OutcomeCompleted when its limit is reached or the
// buffer is closed, and with OutcomeCanceled after Cancel or when the parent
// context ends. Cancellation interrupts a blocked Put or Take, a backoff and
// a pacing wait. It is a normal outcome and is logged at info level.
//
// # Faults
//
// Producer faults are checked before the put. On backoff the same sequence
// value is tried again after the delay; on skip it is abandoned and counted
// as skipped, never as produced.
//
// Consumer faults are checked after the take. The item has already left the
// buffer, so it is dropped and counted as dropped. It is never requeued.
//
// Faults are logged at warn level and never surface through the Handle.
//
// # Pacing
//
// WithPacing sleeps after every successful item, WithRate caps the loop rate
// with a golang.org/x/time/rate limiter. Backoff and pacing waits use the
// clock from WithClock, so tests can drive them with a fake clock.
//
// # Groups
//
// Group collects handles so a harness can cancel and await a set of workers
// together. Wait runs on an errgroup.
package worker
