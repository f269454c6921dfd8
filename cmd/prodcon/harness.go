package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"
	"time"

	"golang.org/x/time/rate"
	"k8s.io/utils/clock"

	"github.com/c360/prodcon/config"
	"github.com/c360/prodcon/errors"
	"github.com/c360/prodcon/health"
	"github.com/c360/prodcon/metric"
	"github.com/c360/prodcon/pkg/buffer"
	"github.com/c360/prodcon/pkg/fault"
	"github.com/c360/prodcon/pkg/retry"
	"github.com/c360/prodcon/pkg/throughput"
	"github.com/c360/prodcon/pkg/worker"
)

// producerStride separates the value ranges of concurrent producers.
const producerStride = 1_000_000_000

// Report summarizes a finished run
type Report struct {
	Elapsed           time.Duration             `json:"elapsed"`
	Produced          uint64                    `json:"produced"`
	Consumed          uint64                    `json:"consumed"`
	Skipped           uint64                    `json:"skipped"`
	Dropped           uint64                    `json:"dropped"`
	Throughput        float64                   `json:"throughput"`
	ConsumeThroughput float64                   `json:"consume_throughput"`
	Remaining         int                       `json:"remaining"`
	Producers         worker.Stats              `json:"producers"`
	Consumers         worker.Stats              `json:"consumers"`
	Outcomes          map[string]worker.Outcome `json:"outcomes"`
	Buffer            buffer.StatsSummary       `json:"buffer"`
	Health            health.Status             `json:"health"`
}

// Harness wires a Config into buffer, injectors, policy and workers and
// runs them for the configured duration.
type Harness struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *metric.MetricsRegistry
	monitor  *health.Monitor
	clock    clock.Clock
}

// NewHarness creates a harness. registry may be nil to skip Prometheus export.
func NewHarness(cfg *config.Config, logger *slog.Logger, registry *metric.MetricsRegistry) *Harness {
	if logger == nil {
		logger = slog.Default()
	}
	clk := clock.RealClock{}
	return &Harness{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		monitor:  health.NewMonitor(clk),
		clock:    clk,
	}
}

// Monitor returns the health monitor fed by this harness's workers.
func (h *Harness) Monitor() *health.Monitor {
	return h.monitor
}

// Run executes one run. Producers stop when the duration elapses, when every
// producer reached its limit, or when ctx ends. The buffer is then closed and
// consumers drain it within the grace period before they are canceled.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	if err := h.cfg.Validate(); err != nil {
		return nil, err
	}

	buf, err := h.newBuffer()
	if err != nil {
		return nil, err
	}

	policy, err := h.newPolicy()
	if err != nil {
		return nil, err
	}

	metrics := throughput.NewMetrics(throughput.WithClock(h.clock))
	if h.registry != nil {
		if err := metrics.Register(h.registry, "run"); err != nil {
			return nil, err
		}
	}

	// Workers outlive a signal on ctx long enough to drain; each group is
	// canceled explicitly below.
	workCtx := context.WithoutCancel(ctx)

	metrics.Start()
	consumers, err := h.startConsumers(workCtx, buf, policy, metrics)
	if err != nil {
		return nil, err
	}
	producers, err := h.startProducers(workCtx, buf, policy, metrics)
	if err != nil {
		consumers.CancelAll()
		_ = consumers.Wait(context.Background())
		return nil, err
	}

	h.logger.Info("Run started",
		"buffer", h.cfg.Buffer.Kind,
		"capacity", h.cfg.Buffer.Capacity,
		"producers", h.cfg.Producer.Count,
		"consumers", h.cfg.Consumer.Count,
		"duration", h.cfg.Run.Duration.String())

	h.awaitProducers(ctx, producers)

	producers.CancelAll()
	if err := h.await(producers, "producers"); err != nil {
		if stderrors.Is(err, errors.ErrAwaitTimeout) {
			h.logger.Warn("Producers did not stop in time", "error", err)
		} else {
			h.logger.Error("Producer failed", "error", err)
		}
	}

	// Consumers drain what is left, then see ErrBufferClosed
	if err := buf.Close(); err != nil {
		return nil, errors.Wrap(err, "Harness", "Run", "close buffer")
	}
	h.drainConsumers(consumers, buf.Len)
	metrics.Stop()

	report := h.report(metrics, buf, producers, consumers)
	h.logger.Info("Run finished",
		"elapsed", report.Elapsed.String(),
		"produced", report.Produced,
		"consumed", report.Consumed,
		"skipped", report.Skipped,
		"dropped", report.Dropped)

	return report, nil
}

// awaitProducers returns when the run duration elapses, ctx ends, or all
// producers finish on their own.
func (h *Harness) awaitProducers(ctx context.Context, producers *worker.Group) {
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		_ = producers.Wait(context.Background())
	}()

	var deadline <-chan time.Time
	if d := h.cfg.Run.Duration.Std(); d > 0 {
		timer := h.clock.NewTimer(d)
		defer timer.Stop()
		deadline = timer.C()
	}

	select {
	case <-deadline:
		h.logger.Debug("Run duration elapsed")
	case <-ctx.Done():
		h.logger.Info("Run interrupted", "cause", context.Cause(ctx))
	case <-finished:
		h.logger.Debug("All producers finished")
	}
}

// drainConsumers waits out the grace period for consumers to empty the closed
// buffer. Consumers still running afterwards, or left behind by a failed
// sibling, are canceled.
func (h *Harness) drainConsumers(consumers *worker.Group, remaining func() int) {
	err := h.await(consumers, "consumers")
	switch {
	case err == nil:
		return
	case stderrors.Is(err, errors.ErrAwaitTimeout):
		h.logger.Info("Canceling consumers after grace period", "remaining", remaining())
	default:
		h.logger.Error("Consumer failed", "error", err, "remaining", remaining())
	}
	consumers.CancelAll()
	_ = consumers.Wait(context.Background())
}

func (h *Harness) await(group *worker.Group, what string) error {
	grace := h.cfg.Run.GracePeriod.Std()
	if grace <= 0 {
		return group.Wait(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	if err := group.Wait(ctx); err != nil {
		return fmt.Errorf("await %s: %w", what, err)
	}
	return nil
}

func (h *Harness) newBuffer() (buffer.Buffer[uint64], error) {
	var opts []buffer.Option
	if h.registry != nil {
		opts = append(opts, buffer.WithMetrics(h.registry, "shared"))
	}

	if h.cfg.Buffer.Kind == config.BufferChannel {
		return buffer.NewChannel[uint64](h.cfg.Buffer.Capacity, opts...)
	}
	return buffer.New[uint64](h.cfg.Buffer.Capacity, opts...)
}

func (h *Harness) newPolicy() (*retry.Policy, error) {
	strategy, err := retry.ParseStrategy(h.cfg.Retry.Strategy)
	if err != nil {
		return nil, err
	}
	return retry.New(retry.Config{
		MaxRetries: h.cfg.Retry.MaxRetries,
		BaseDelay:  h.cfg.Retry.BaseDelay.Std(),
		Strategy:   strategy,
		Multiplier: h.cfg.Retry.Multiplier,
		MaxDelay:   h.cfg.Retry.MaxDelay.Std(),
		AddJitter:  h.cfg.Retry.Jitter,
	})
}

// newInjector builds one injector per worker. A non-zero seed makes each
// worker's coin flips reproducible.
func (h *Harness) newInjector(wc config.WorkerConfig, index int64) (*fault.Injector, error) {
	if wc.FaultModulus == 0 {
		return nil, nil
	}
	var opts []fault.Option
	if seed := h.cfg.Run.Seed; seed != 0 {
		opts = append(opts, fault.WithSeed(seed+index))
	}
	return fault.NewInjector(wc.FaultModulus, wc.FaultProbability, opts...)
}

func (h *Harness) workerOptions(role string, i int, wc config.WorkerConfig) []worker.Option[uint64] {
	opts := []worker.Option[uint64]{
		worker.WithName[uint64](fmt.Sprintf("%s-%d", role, i)),
		worker.WithLogger[uint64](h.logger),
		worker.WithPacing[uint64](wc.Pacing.Std()),
		worker.WithClock[uint64](h.clock),
		worker.WithObserver[uint64](h.monitor.Observe),
	}
	if wc.Rate > 0 {
		opts = append(opts, worker.WithRate[uint64](rate.Limit(wc.Rate)))
	}
	if wc.Limit > 0 {
		opts = append(opts, worker.WithLimit[uint64](wc.Limit))
	}
	if h.registry != nil {
		opts = append(opts, worker.WithRegistry[uint64](h.registry))
	}
	return opts
}

func (h *Harness) startProducers(
	ctx context.Context,
	buf buffer.Buffer[uint64],
	policy *retry.Policy,
	metrics *throughput.Metrics,
) (*worker.Group, error) {
	group := worker.NewGroup()
	for i := 0; i < h.cfg.Producer.Count; i++ {
		faults, err := h.newInjector(h.cfg.Producer, int64(i))
		if err != nil {
			group.CancelAll()
			return nil, err
		}

		opts := h.workerOptions("producer", i, h.cfg.Producer)
		opts = append(opts, worker.WithStart[uint64](uint64(i)*producerStride))

		p, err := worker.StartProducer(ctx, buf, identity, faults, policy, metrics, opts...)
		if err != nil {
			group.CancelAll()
			return nil, err
		}
		group.Add(p)
	}
	return group, nil
}

func (h *Harness) startConsumers(
	ctx context.Context,
	buf buffer.Buffer[uint64],
	policy *retry.Policy,
	metrics *throughput.Metrics,
) (*worker.Group, error) {
	group := worker.NewGroup()
	for i := 0; i < h.cfg.Consumer.Count; i++ {
		faults, err := h.newInjector(h.cfg.Consumer, int64(h.cfg.Producer.Count+i))
		if err != nil {
			group.CancelAll()
			return nil, err
		}

		// Consumers fault on the value they took
		opts := h.workerOptions("consumer", i, h.cfg.Consumer)
		opts = append(opts, worker.WithSequence[uint64](identity))

		c, err := worker.StartConsumer(ctx, buf, faults, policy, metrics, opts...)
		if err != nil {
			group.CancelAll()
			return nil, err
		}
		group.Add(c)
	}
	return group, nil
}

func (h *Harness) report(
	metrics *throughput.Metrics,
	buf buffer.Buffer[uint64],
	producers, consumers *worker.Group,
) *Report {
	snap := metrics.Snapshot()
	h.monitor.Track(producers.Handles()...)
	h.monitor.Track(consumers.Handles()...)

	outcomes := producers.Outcomes()
	for name, outcome := range consumers.Outcomes() {
		outcomes[name] = outcome
	}

	return &Report{
		Elapsed:           snap.Elapsed,
		Produced:          snap.Produced,
		Consumed:          snap.Consumed,
		Skipped:           snap.Skipped,
		Dropped:           snap.Dropped,
		Throughput:        snap.Throughput(),
		ConsumeThroughput: snap.ConsumeThroughput(),
		Remaining:         buf.Len(),
		Producers:         producers.Stats(),
		Consumers:         consumers.Stats(),
		Outcomes:          outcomes,
		Buffer:            buf.Stats().Summary(),
		Health:            h.monitor.AggregateHealth(appName),
	}
}

func identity(v uint64) uint64 { return v }

// WriteTo prints the report as an aligned table.
func (r *Report) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	tw := tabwriter.NewWriter(cw, 0, 0, 2, ' ', 0)

	_, _ = fmt.Fprintf(tw, "Duration:\t%s\n", r.Elapsed.Round(time.Millisecond))
	_, _ = fmt.Fprintf(tw, "Produced:\t%d\n", r.Produced)
	_, _ = fmt.Fprintf(tw, "Consumed:\t%d\n", r.Consumed)
	_, _ = fmt.Fprintf(tw, "Skipped:\t%d\n", r.Skipped)
	_, _ = fmt.Fprintf(tw, "Dropped:\t%d\n", r.Dropped)
	_, _ = fmt.Fprintf(tw, "Left in buffer:\t%d\n", r.Remaining)
	_, _ = fmt.Fprintf(tw, "Faults:\t%d producer, %d consumer\n", r.Producers.Faults, r.Consumers.Faults)
	_, _ = fmt.Fprintf(tw, "Backoffs:\t%d producer, %d consumer\n", r.Producers.Backoffs, r.Consumers.Backoffs)
	_, _ = fmt.Fprintf(tw, "Buffer waits:\t%d put, %d take\n", r.Buffer.PutWaits, r.Buffer.TakeWaits)
	_, _ = fmt.Fprintf(tw, "Throughput:\t%.2f items/second\n", r.Throughput)
	if r.Health.Status != "" {
		_, _ = fmt.Fprintf(tw, "Health:\t%s (%s)\n", r.Health.Status, r.Health.Message)
	}

	names := make([]string, 0, len(r.Outcomes))
	for name := range r.Outcomes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(tw, "Worker %s:\t%s\n", name, r.Outcomes[name])
	}

	if err := tw.Flush(); err != nil {
		return cw.n, err
	}
	return cw.n, nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
