package worker

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"

	"github.com/c360/prodcon/errors"
	"github.com/c360/prodcon/metric"
	"github.com/c360/prodcon/pkg/buffer"
	"github.com/c360/prodcon/pkg/fault"
	"github.com/c360/prodcon/pkg/retry"
	"github.com/c360/prodcon/pkg/throughput"
	"github.com/google/uuid"
)

// Generator produces the item for sequence value seq.
type Generator[T any] func(seq uint64) T

// EventKind tells state changes apart from fault decisions.
type EventKind int

const (
	EventState EventKind = iota
	EventFault
)

// Event is delivered to the observer set with WithObserver.
type Event struct {
	Kind   EventKind
	Worker string
	Role   Role
	State  State
	Seq    uint64
	// Decision is set for EventFault only.
	Decision retry.Decision
}

// runner carries one worker's collaborators. All fields except the handle's
// atomics are confined to the worker goroutine.
type runner[T any] struct {
	cfg     *config[T]
	buf     buffer.Buffer[T]
	faults  *fault.Injector
	policy  *retry.Policy
	metrics *throughput.Metrics
	core    *metric.Metrics
	logger  *slog.Logger
	handle  *Handle
	retry   retry.State
}

// StartProducer launches a producer. For each sequence value it builds an item
// with gen, consults faults, and puts the item into buf. A fault is handed to
// policy: on backoff the same value is tried again after the delay, on skip
// the value is abandoned. Successful puts count toward m.Produced.
//
// A nil faults never fails. A nil policy uses retry.DefaultConfig. A nil m
// is replaced by private counters.
func StartProducer[T any](
	ctx context.Context,
	buf buffer.Buffer[T],
	gen Generator[T],
	faults *fault.Injector,
	policy *retry.Policy,
	m *throughput.Metrics,
	opts ...Option[T],
) (*Handle, error) {
	if gen == nil {
		return nil, invalid("StartProducer", ErrNilGenerator)
	}
	r, ctx, err := newRunner(ctx, RoleProducer, buf, faults, policy, m, opts)
	if err != nil {
		return nil, err
	}
	go r.run(ctx, func(ctx context.Context) (Outcome, error) {
		return r.produce(ctx, gen)
	})
	return r.handle, nil
}

// StartConsumer launches a consumer. It takes items from buf and consults
// faults for each. A faulted item has already left the buffer and is dropped,
// never requeued; policy decides only whether to back off before the next
// take. Items consumed without a fault count toward m.Consumed.
func StartConsumer[T any](
	ctx context.Context,
	buf buffer.Buffer[T],
	faults *fault.Injector,
	policy *retry.Policy,
	m *throughput.Metrics,
	opts ...Option[T],
) (*Handle, error) {
	r, ctx, err := newRunner(ctx, RoleConsumer, buf, faults, policy, m, opts)
	if err != nil {
		return nil, err
	}
	go r.run(ctx, r.consume)
	return r.handle, nil
}

func newRunner[T any](
	ctx context.Context,
	role Role,
	buf buffer.Buffer[T],
	faults *fault.Injector,
	policy *retry.Policy,
	m *throughput.Metrics,
	opts []Option[T],
) (*runner[T], context.Context, error) {
	if buf == nil {
		return nil, nil, invalid("Start", ErrNilBuffer)
	}

	cfg := applyOptions(opts)

	if policy == nil {
		var err error
		if policy, err = retry.New(retry.DefaultConfig()); err != nil {
			return nil, nil, err
		}
	}
	if m == nil {
		m = throughput.NewMetrics()
	}

	id := uuid.NewString()
	if cfg.name == "" {
		cfg.name = fmt.Sprintf("%s-%s", role, id[:8])
	}

	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:     id,
		name:   cfg.name,
		role:   role,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	r := &runner[T]{
		cfg:     cfg,
		buf:     buf,
		faults:  faults,
		policy:  policy,
		metrics: m,
		logger:  cfg.logger.With("worker", cfg.name, "role", role.String()),
		handle:  h,
	}
	if cfg.registry != nil {
		r.core = cfg.registry.CoreMetrics()
		r.core.RecordWorkerState(h.name, role.String(), int(StateIdle))
	}

	return r, ctx, nil
}

func invalid(method string, err error) error {
	return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err), "Worker", method, "argument check")
}

// run drives loop to completion and publishes the outcome.
func (r *runner[T]) run(ctx context.Context, loop func(context.Context) (Outcome, error)) {
	h := r.handle
	defer close(h.done)
	defer h.cancel()

	if r.core != nil {
		r.core.RecordWorkerStarted(h.role.String())
		defer r.core.RecordWorkerStopped(h.role.String())
	}

	r.logger.Info("Worker started")
	r.setState(StateWorking, 0)

	outcome, err := loop(ctx)
	if outcome == OutcomeCanceled {
		r.setState(StateCanceled, 0)
	}
	h.outcome = outcome
	h.err = err
	r.setState(StateTerminated, 0)

	stats := h.Stats()
	attrs := []any{
		"outcome", outcome.String(),
		"processed", stats.Processed,
		"faults", stats.Faults,
		"skipped", stats.Skipped,
		"dropped", stats.Dropped,
	}
	if err != nil {
		r.logger.Error("Worker stopped unexpectedly", append(attrs, "error", err)...)
		return
	}
	r.logger.Info("Worker stopped", attrs...)
}

func (r *runner[T]) produce(ctx context.Context, gen Generator[T]) (Outcome, error) {
	h := r.handle
	seq := r.cfg.start

	for {
		if ctx.Err() != nil {
			return OutcomeCanceled, nil
		}
		if r.cfg.limit > 0 && seq-r.cfg.start >= r.cfg.limit {
			return OutcomeCompleted, nil
		}
		if err := r.throttle(ctx); err != nil {
			return OutcomeCanceled, nil
		}

		item := gen(seq)

		if err := r.faults.Check(seq); err != nil {
			decision, waitErr := r.handleFault(ctx, seq, err)
			if waitErr != nil {
				return OutcomeCanceled, nil
			}
			if decision.Action == retry.ActionSkip {
				h.skipped.Add(1)
				r.metrics.IncSkipped()
				seq++
			}
			r.setState(StateWorking, seq)
			continue
		}

		if err := r.put(ctx, item, seq); err != nil {
			return r.exit(err)
		}

		r.policy.OnSuccess(&r.retry)
		h.processed.Add(1)
		r.metrics.IncProduced()
		if r.cfg.sink != nil {
			r.cfg.sink(item)
		}
		r.logger.Debug("Produced item", "seq", seq)
		seq++

		if err := retry.Wait(ctx, r.cfg.clock, r.cfg.pacing); err != nil {
			return OutcomeCanceled, nil
		}
	}
}

func (r *runner[T]) consume(ctx context.Context) (Outcome, error) {
	h := r.handle
	var taken uint64

	for {
		if ctx.Err() != nil {
			return OutcomeCanceled, nil
		}
		if r.cfg.limit > 0 && taken >= r.cfg.limit {
			return OutcomeCompleted, nil
		}
		if err := r.throttle(ctx); err != nil {
			return OutcomeCanceled, nil
		}

		item, err := r.take(ctx, taken)
		if err != nil {
			return r.exit(err)
		}

		seq := taken
		if r.cfg.sequence != nil {
			seq = r.cfg.sequence(item)
		}
		taken++

		if err := r.faults.Check(seq); err != nil {
			// The item already left the buffer; it is lost
			h.dropped.Add(1)
			r.metrics.IncDropped()
			if _, waitErr := r.handleFault(ctx, seq, err); waitErr != nil {
				return OutcomeCanceled, nil
			}
			r.setState(StateWorking, seq)
			continue
		}

		r.policy.OnSuccess(&r.retry)
		h.processed.Add(1)
		r.metrics.IncConsumed()
		if r.cfg.sink != nil {
			r.cfg.sink(item)
		}
		r.logger.Debug("Consumed item", "seq", seq)

		if err := retry.Wait(ctx, r.cfg.clock, r.cfg.pacing); err != nil {
			return OutcomeCanceled, nil
		}
	}
}

// put tries the non-blocking path first so the worker is only reported
// Blocked when it actually has to wait.
func (r *runner[T]) put(ctx context.Context, item T, seq uint64) error {
	err := r.buf.TryPut(item)
	if !stderrors.Is(err, errors.ErrBufferFull) {
		return err
	}

	r.handle.blocked.Add(1)
	r.setState(StateBlocked, seq)
	if err := r.buf.Put(ctx, item); err != nil {
		return err
	}
	r.setState(StateWorking, seq)
	return nil
}

func (r *runner[T]) take(ctx context.Context, taken uint64) (T, error) {
	item, err := r.buf.TryTake()
	if !stderrors.Is(err, errors.ErrBufferEmpty) {
		return item, err
	}

	r.handle.blocked.Add(1)
	r.setState(StateBlocked, taken)
	item, err = r.buf.Take(ctx)
	if err != nil {
		return item, err
	}
	r.setState(StateWorking, taken)
	return item, nil
}

// handleFault applies the retry policy to one injected fault and waits out
// any backoff. A non-nil error means the wait was canceled.
func (r *runner[T]) handleFault(ctx context.Context, seq uint64, cause error) (retry.Decision, error) {
	h := r.handle
	h.faults.Add(1)
	r.setState(StateFaulted, seq)

	decision := r.policy.OnFailure(&r.retry)

	if r.core != nil {
		r.core.RecordFault(h.role.String())
		r.core.RecordRetryDecision(h.role.String(), decision.Action.String(), decision.Delay)
	}
	if r.cfg.observer != nil {
		r.cfg.observer(Event{
			Kind:     EventFault,
			Worker:   h.name,
			Role:     h.role,
			State:    StateFaulted,
			Seq:      seq,
			Decision: decision,
		})
	}

	if decision.Action == retry.ActionSkip {
		r.logger.Warn("Retries exhausted, skipping",
			"seq", seq, "attempt", decision.Attempt, "error", cause)
		return decision, nil
	}

	h.backoffs.Add(1)
	r.logger.Warn("Transient fault, backing off",
		"seq", seq, "attempt", decision.Attempt, "delay", decision.Delay, "error", cause)
	return decision, retry.Wait(ctx, r.cfg.clock, decision.Delay)
}

// throttle waits for the rate limiter, if one is configured.
func (r *runner[T]) throttle(ctx context.Context) error {
	if r.cfg.limiter == nil {
		return nil
	}
	return r.cfg.limiter.Wait(ctx)
}

// exit maps the error that ended a buffer call to the worker outcome.
func (r *runner[T]) exit(err error) (Outcome, error) {
	switch {
	case errors.IsCancellation(err):
		return OutcomeCanceled, nil
	case stderrors.Is(err, errors.ErrBufferClosed):
		r.logger.Info("Buffer closed")
		return OutcomeCompleted, nil
	default:
		return OutcomeCompleted, err
	}
}

func (r *runner[T]) setState(s State, seq uint64) {
	h := r.handle
	if State(h.state.Swap(int32(s))) == s {
		return
	}

	if r.core != nil {
		r.core.RecordWorkerState(h.name, h.role.String(), int(s))
	}
	if r.cfg.observer != nil {
		r.cfg.observer(Event{
			Kind:   EventState,
			Worker: h.name,
			Role:   h.role,
			State:  s,
			Seq:    seq,
		})
	}
}
