package worker

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/c360/prodcon/errors"
	"github.com/c360/prodcon/metric"
	"github.com/c360/prodcon/pkg/buffer"
	"github.com/c360/prodcon/pkg/fault"
	"github.com/c360/prodcon/pkg/retry"
	"github.com/c360/prodcon/pkg/throughput"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	testclock "k8s.io/utils/clock/testing"
)

func identity(seq uint64) uint64 { return seq }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// collector is a concurrency-safe sink.
type collector struct {
	mu    sync.Mutex
	items []uint64
}

func (c *collector) add(v uint64) {
	c.mu.Lock()
	c.items = append(c.items, v)
	c.mu.Unlock()
}

func (c *collector) values() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint64, len(c.items))
	copy(out, c.items)
	return out
}

// eventLog records observer events.
type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) observe(e Event) {
	l.mu.Lock()
	l.events = append(l.events, e)
	l.mu.Unlock()
}

func (l *eventLog) faults() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Kind == EventFault {
			out = append(out, e)
		}
	}
	return out
}

func (l *eventLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []State
	for _, e := range l.events {
		if e.Kind == EventState {
			out = append(out, e.State)
		}
	}
	return out
}

func newBuffer(t *testing.T, capacity int) buffer.Buffer[uint64] {
	t.Helper()
	buf, err := buffer.New[uint64](capacity)
	require.NoError(t, err)
	t.Cleanup(func() { _ = buf.Close() })
	return buf
}

func mustPolicy(t *testing.T, maxRetries int, base time.Duration) *retry.Policy {
	t.Helper()
	p, err := retry.NewRetryPolicy(maxRetries, base)
	require.NoError(t, err)
	return p
}

func awaitOutcome(t *testing.T, h *Handle) Outcome {
	t.Helper()
	outcome, err := h.AwaitTimeout(5 * time.Second)
	require.NoError(t, err, "worker %s did not terminate", h.Name())
	return outcome
}

func TestStart_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	buf := newBuffer(t, 1)

	_, err := StartProducer[uint64](ctx, nil, identity, nil, nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNilBuffer)
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
	assert.True(t, errors.IsInvalid(err))

	_, err = StartProducer[uint64](ctx, buf, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilGenerator)
	assert.True(t, errors.IsInvalid(err))

	_, err = StartConsumer[uint64](ctx, nil, nil, nil, nil)
	assert.ErrorIs(t, err, ErrNilBuffer)
}

func TestHandle_Identity(t *testing.T) {
	ctx := context.Background()
	buf := newBuffer(t, 1)

	h, err := StartConsumer(ctx, buf, nil, nil, nil, WithLogger[uint64](quietLogger()))
	require.NoError(t, err)
	defer h.Cancel()

	_, err = uuid.Parse(h.ID())
	assert.NoError(t, err)
	assert.Contains(t, h.Name(), "consumer-")
	assert.Equal(t, RoleConsumer, h.Role())

	named, err := StartConsumer(ctx, buf, nil, nil, nil,
		WithName[uint64]("c1"), WithLogger[uint64](quietLogger()))
	require.NoError(t, err)
	defer named.Cancel()
	assert.Equal(t, "c1", named.Name())
	assert.NotEqual(t, h.ID(), named.ID())
}

func TestEndToEnd_NoFaults(t *testing.T) {
	ctx := context.Background()
	buf := newBuffer(t, 5)
	m := throughput.NewMetrics()
	policy := mustPolicy(t, 3, time.Millisecond)

	var produced, consumed collector

	m.Start()
	p, err := StartProducer(ctx, buf, identity, nil, policy, m,
		WithLimit[uint64](100),
		WithSink(produced.add),
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	c, err := StartConsumer(ctx, buf, nil, policy, m,
		WithLimit[uint64](100),
		WithSink(consumed.add),
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, awaitOutcome(t, p))
	assert.Equal(t, OutcomeCompleted, awaitOutcome(t, c))
	m.Stop()

	s := m.Snapshot()
	assert.Equal(t, uint64(100), s.Produced)
	assert.Equal(t, uint64(100), s.Consumed)
	assert.Zero(t, s.Skipped)
	assert.Zero(t, s.Dropped)
	assert.True(t, s.Stopped)

	want := make([]uint64, 100)
	for i := range want {
		want[i] = uint64(i)
	}
	if diff := cmp.Diff(want, produced.values()); diff != "" {
		t.Errorf("produced sequence mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(produced.values(), consumed.values()); diff != "" {
		t.Errorf("consumed differs from produced (-produced +consumed):\n%s", diff)
	}

	assert.Equal(t, uint64(100), p.Stats().Processed)
	assert.Equal(t, uint64(100), c.Stats().Processed)
	assert.Equal(t, StateTerminated, p.State())
	assert.NoError(t, p.Err())
	assert.True(t, buf.IsEmpty())
}

func TestProducer_FaultScenario(t *testing.T) {
	ctx := context.Background()
	buf := newBuffer(t, 5)
	m := throughput.NewMetrics()
	registry := metric.NewMetricsRegistry()

	faults, err := fault.NewInjector(10, 1.0)
	require.NoError(t, err)
	policy := mustPolicy(t, 3, time.Millisecond)

	var events eventLog
	var consumed collector

	p, err := StartProducer(ctx, buf, identity, faults, policy, m,
		WithLimit[uint64](30),
		WithObserver[uint64](events.observe),
		WithRegistry[uint64](registry),
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	c, err := StartConsumer(ctx, buf, nil, policy, m,
		WithSink(consumed.add),
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, awaitOutcome(t, p))
	require.NoError(t, buf.Close())
	assert.Equal(t, OutcomeCompleted, awaitOutcome(t, c), "closed buffer completes the consumer")

	// Every multiple of 10: exactly three backoffs with growing delay, then a skip
	perSeq := make(map[uint64][]retry.Decision)
	for _, e := range events.faults() {
		perSeq[e.Seq] = append(perSeq[e.Seq], e.Decision)
	}
	require.Len(t, perSeq, 3)
	for _, seq := range []uint64{0, 10, 20} {
		decisions := perSeq[seq]
		require.Len(t, decisions, 4, "seq %d", seq)
		for i := 0; i < 3; i++ {
			assert.Equal(t, retry.ActionBackoff, decisions[i].Action)
			assert.Equal(t, time.Duration(i+1)*time.Millisecond, decisions[i].Delay)
		}
		assert.Equal(t, retry.ActionSkip, decisions[3].Action)
	}

	s := m.Snapshot()
	assert.Equal(t, uint64(27), s.Produced, "skipped values never count as produced")
	assert.Equal(t, uint64(3), s.Skipped)
	assert.Equal(t, uint64(27), s.Consumed)

	for _, v := range consumed.values() {
		assert.NotZero(t, v%10, "skipped value %d reached the consumer", v)
	}

	stats := p.Stats()
	assert.Equal(t, uint64(12), stats.Faults)
	assert.Equal(t, uint64(9), stats.Backoffs)
	assert.Equal(t, uint64(3), stats.Skipped)

	core := registry.CoreMetrics()
	assert.Equal(t, 12.0, testutil.ToFloat64(core.FaultsTotal.WithLabelValues("producer")))
	assert.Equal(t, 9.0, testutil.ToFloat64(core.RetryDecisions.WithLabelValues("producer", "backoff")))
	assert.Equal(t, 3.0, testutil.ToFloat64(core.RetryDecisions.WithLabelValues("producer", "skip")))
	assert.Equal(t, 0.0, testutil.ToFloat64(core.WorkersActive.WithLabelValues("producer")))
	assert.Equal(t, float64(StateTerminated),
		testutil.ToFloat64(core.WorkerState.WithLabelValues(p.Name(), "producer")))
}

func TestProducer_BackoffWaitsOnClock(t *testing.T) {
	ctx := context.Background()
	buf := newBuffer(t, 5)
	m := throughput.NewMetrics()
	clk := testclock.NewFakeClock(time.Now())

	faults, err := fault.NewInjector(10, 1.0)
	require.NoError(t, err)
	policy := mustPolicy(t, 3, 100*time.Millisecond)

	p, err := StartProducer(ctx, buf, identity, faults, policy, m,
		WithLimit[uint64](1),
		WithClock[uint64](clk),
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		require.Eventually(t, clk.HasWaiters, time.Second, time.Millisecond, "backoff %d", i)
		assert.Equal(t, StateFaulted, p.State())
		assert.Equal(t, uint64(i), p.Stats().Backoffs)

		// Short of the delay the worker stays put
		clk.Step(time.Duration(i)*100*time.Millisecond - time.Millisecond)
		assert.True(t, clk.HasWaiters())
		clk.Step(time.Millisecond)
	}

	assert.Equal(t, OutcomeCompleted, awaitOutcome(t, p))
	s := m.Snapshot()
	assert.Zero(t, s.Produced)
	assert.Equal(t, uint64(1), s.Skipped)
	assert.True(t, buf.IsEmpty())
}

func TestConsumer_DropsFaultedItems(t *testing.T) {
	ctx := context.Background()
	buf := newBuffer(t, 5)
	m := throughput.NewMetrics()

	faults, err := fault.NewInjector(15, 1.0)
	require.NoError(t, err)
	policy := mustPolicy(t, 3, time.Millisecond)

	var consumed collector

	p, err := StartProducer(ctx, buf, identity, nil, policy, m,
		WithLimit[uint64](45), WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	c, err := StartConsumer(ctx, buf, faults, policy, m,
		WithSequence(identity),
		WithSink(consumed.add),
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	awaitOutcome(t, p)
	require.NoError(t, buf.Close())
	assert.Equal(t, OutcomeCompleted, awaitOutcome(t, c))

	s := m.Snapshot()
	assert.Equal(t, uint64(45), s.Produced)
	assert.Equal(t, uint64(42), s.Consumed)
	assert.Equal(t, uint64(3), s.Dropped)
	assert.Equal(t, uint64(3), c.Stats().Dropped)

	for _, v := range consumed.values() {
		assert.NotZero(t, v%15)
	}
	assert.True(t, buf.IsEmpty(), "dropped items are never requeued")
}

func TestProducer_CancelWhileBlocked(t *testing.T) {
	buf := newBuffer(t, 1)
	require.NoError(t, buf.TryPut(1000))

	var events eventLog
	p, err := StartProducer(context.Background(), buf, identity, nil, nil, nil,
		WithObserver[uint64](events.observe),
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.State() == StateBlocked }, time.Second, time.Millisecond)

	start := time.Now()
	p.Cancel()
	outcome, err := p.AwaitTimeout(time.Second)
	require.NoError(t, err)
	assert.Equal(t, OutcomeCanceled, outcome)
	assert.Less(t, time.Since(start), 500*time.Millisecond)

	// No partial insert
	assert.Equal(t, 1, buf.Len())
	v, err := buf.TryTake()
	require.NoError(t, err)
	assert.Equal(t, uint64(1000), v)

	assert.Equal(t, []State{StateWorking, StateBlocked, StateCanceled, StateTerminated}, events.states())
	assert.Equal(t, uint64(1), p.Stats().Blocked)
}

func TestConsumer_CancelWhileBlockedViaParent(t *testing.T) {
	buf := newBuffer(t, 2)
	ctx, cancel := context.WithCancel(context.Background())

	c, err := StartConsumer(ctx, buf, nil, nil, nil, WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return c.State() == StateBlocked }, time.Second, time.Millisecond)
	cancel()

	assert.Equal(t, OutcomeCanceled, awaitOutcome(t, c))
	assert.True(t, buf.IsEmpty())

	require.NoError(t, buf.TryPut(1))
	v, err := buf.TryTake()
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func TestWorker_CancelDuringPacing(t *testing.T) {
	buf := newBuffer(t, 5)
	m := throughput.NewMetrics()

	p, err := StartProducer(context.Background(), buf, identity, nil, nil, m,
		WithPacing[uint64](time.Hour),
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return m.Snapshot().Produced == 1 }, time.Second, time.Millisecond)
	p.Cancel()

	assert.Equal(t, OutcomeCanceled, awaitOutcome(t, p))
	assert.Equal(t, 1, buf.Len())
}

func TestWorker_CancelDuringBackoff(t *testing.T) {
	buf := newBuffer(t, 5)

	faults, err := fault.NewInjector(1, 1.0)
	require.NoError(t, err)
	policy := mustPolicy(t, 3, time.Hour)

	p, err := StartProducer(context.Background(), buf, identity, faults, policy, nil,
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	require.Eventually(t, func() bool { return p.State() == StateFaulted }, time.Second, time.Millisecond)
	p.Cancel()

	assert.Equal(t, OutcomeCanceled, awaitOutcome(t, p))
	assert.True(t, buf.IsEmpty())
}

func TestHandle_AwaitTimeout(t *testing.T) {
	buf := newBuffer(t, 1)

	c, err := StartConsumer(context.Background(), buf, nil, nil, nil, WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	_, err = c.AwaitTimeout(20 * time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrAwaitTimeout)
	assert.True(t, errors.IsTransient(err))

	select {
	case <-c.Done():
		t.Fatal("worker should still be running")
	default:
	}

	c.Cancel()
	assert.Equal(t, OutcomeCanceled, c.Await())
	assert.Equal(t, StateTerminated, c.State())
}

func TestWorker_ClosedBufferCompletes(t *testing.T) {
	buf := newBuffer(t, 1)

	c, err := StartConsumer(context.Background(), buf, nil, nil, nil, WithLogger[uint64](quietLogger()))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return c.State() == StateBlocked }, time.Second, time.Millisecond)

	require.NoError(t, buf.Close())
	assert.Equal(t, OutcomeCompleted, awaitOutcome(t, c))
	assert.NoError(t, c.Err())

	p, err := StartProducer(context.Background(), buf, identity, nil, nil, nil, WithLogger[uint64](quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, awaitOutcome(t, p))
}

func TestProducer_StartAndLimit(t *testing.T) {
	buf := newBuffer(t, 10)
	var produced collector

	p, err := StartProducer(context.Background(), buf, identity, nil, nil, nil,
		WithStart[uint64](50),
		WithLimit[uint64](5),
		WithSink(produced.add),
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, awaitOutcome(t, p))
	assert.Equal(t, []uint64{50, 51, 52, 53, 54}, produced.values())
}

func TestWorker_WithRate(t *testing.T) {
	buf := newBuffer(t, 20)

	start := time.Now()
	p, err := StartProducer(context.Background(), buf, identity, nil, nil, nil,
		WithRate[uint64](rate.Limit(200)),
		WithLimit[uint64](10),
		WithLogger[uint64](quietLogger()))
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, awaitOutcome(t, p))
	// Burst of one, then one token every 5ms
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.Equal(t, 10, buf.Len())
}

func TestWorker_ManyProducersConsumers(t *testing.T) {
	ctx := context.Background()
	buf, err := buffer.NewChannel[uint64](4)
	require.NoError(t, err)
	m := throughput.NewMetrics()

	group := NewGroup()
	var consumed collector

	for i := 0; i < 3; i++ {
		p, err := StartProducer(ctx, buf, identity, nil, nil, m,
			WithStart[uint64](uint64(i*1000)),
			WithLimit[uint64](200),
			WithLogger[uint64](quietLogger()))
		require.NoError(t, err)
		group.Add(p)
	}

	consumers := NewGroup()
	for i := 0; i < 3; i++ {
		c, err := StartConsumer(ctx, buf, nil, nil, m,
			WithSink(consumed.add),
			WithLogger[uint64](quietLogger()))
		require.NoError(t, err)
		consumers.Add(c)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	require.NoError(t, group.Wait(waitCtx))
	require.NoError(t, buf.Close())
	require.NoError(t, consumers.Wait(waitCtx))

	s := m.Snapshot()
	assert.Equal(t, uint64(600), s.Produced)
	assert.Equal(t, uint64(600), s.Consumed)
	assert.Len(t, consumed.values(), 600)
	assert.Equal(t, uint64(600), consumers.Stats().Processed)

	for name, outcome := range consumers.Outcomes() {
		assert.Equal(t, OutcomeCompleted, outcome, name)
	}
}
