package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/c360/prodcon/errors"
	"k8s.io/utils/clock"
)

// maxDelay is the longest representable delay.
const maxDelay = time.Duration(math.MaxInt64)

var (
	// Thread-safe random source for jitter
	randMu     sync.Mutex
	randSource = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Action is what the caller should do after a failed attempt.
type Action int

const (
	// ActionBackoff means wait Decision.Delay, then retry the same item.
	ActionBackoff Action = iota
	// ActionSkip means give up on the current item and move on. The failure
	// count has already been reset.
	ActionSkip
)

// String returns the action name used in logs and metric labels.
func (a Action) String() string {
	switch a {
	case ActionBackoff:
		return "backoff"
	case ActionSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Strategy selects how the delay grows with consecutive failures.
type Strategy int

const (
	// Linear delay is BaseDelay * n.
	Linear Strategy = iota
	// Exponential delay is BaseDelay * Multiplier^(n-1).
	Exponential
)

// String returns the strategy name as used in configuration files.
func (s Strategy) String() string {
	switch s {
	case Linear:
		return "linear"
	case Exponential:
		return "exponential"
	default:
		return "unknown"
	}
}

// ParseStrategy converts a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch s {
	case "", "linear":
		return Linear, nil
	case "exponential":
		return Exponential, nil
	default:
		return Linear, errors.WrapInvalid(
			fmt.Errorf("%w: unknown backoff strategy %q", errors.ErrInvalidConfig, s),
			"RetryPolicy", "ParseStrategy", "strategy lookup")
	}
}

// Decision is the outcome of one OnFailure call.
type Decision struct {
	Action  Action
	Delay   time.Duration // zero for ActionSkip
	Attempt uint          // consecutive failures including this one
}

// State is the per-worker failure record. It is owned by exactly one worker
// and is not safe for concurrent use.
type State struct {
	ConsecutiveFailures uint
	LastDelay           time.Duration
}

// Reset zeroes the state.
func (s *State) Reset() {
	s.ConsecutiveFailures = 0
	s.LastDelay = 0
}

// Config provides retry configuration
type Config struct {
	MaxRetries int           // Backoffs allowed before the item is skipped
	BaseDelay  time.Duration // Delay unit for the first failure
	Strategy   Strategy      // Linear (default) or Exponential
	Multiplier float64       // Exponential growth factor (typically 2.0)
	MaxDelay   time.Duration // Upper bound on a single delay, 0 for none
	AddJitter  bool          // Add up to 25% randomness to each delay
}

// DefaultConfig returns three retries with a linear 200ms step.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  200 * time.Millisecond,
		Strategy:   Linear,
	}
}

// Validate checks the configuration for values the policy cannot act on.
func (c Config) Validate() error {
	switch {
	case c.MaxRetries < 0:
		return fmt.Errorf("%w: MaxRetries cannot be negative", errors.ErrInvalidConfig)
	case c.BaseDelay < 0:
		return fmt.Errorf("%w: BaseDelay cannot be negative", errors.ErrInvalidConfig)
	case c.MaxDelay < 0:
		return fmt.Errorf("%w: MaxDelay cannot be negative", errors.ErrInvalidConfig)
	case c.Multiplier < 0:
		return fmt.Errorf("%w: Multiplier cannot be negative", errors.ErrInvalidConfig)
	case c.Strategy != Linear && c.Strategy != Exponential:
		return fmt.Errorf("%w: unknown strategy %d", errors.ErrInvalidConfig, c.Strategy)
	case c.Strategy == Exponential && c.Multiplier != 0 && c.Multiplier <= 1:
		return fmt.Errorf("%w: Multiplier must be greater than 1", errors.ErrInvalidConfig)
	case c.MaxDelay > 0 && c.MaxDelay < c.BaseDelay:
		return fmt.Errorf("%w: MaxDelay must be >= BaseDelay", errors.ErrInvalidConfig)
	}
	return nil
}

// Policy turns consecutive failures into backoff or skip decisions.
// It holds no per-worker state, so one Policy may serve many workers, each
// with its own State.
type Policy struct {
	cfg Config
}

// NewRetryPolicy creates a linear policy: BaseDelay * n for the first
// maxRetries failures, then skip.
func NewRetryPolicy(maxRetries int, baseDelay time.Duration) (*Policy, error) {
	cfg := DefaultConfig()
	cfg.MaxRetries = maxRetries
	cfg.BaseDelay = baseDelay
	return New(cfg)
}

// New creates a policy from cfg.
func New(cfg Config) (*Policy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "RetryPolicy", "New", "config validation")
	}

	if cfg.Strategy == Exponential && cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}
	// Prevent overflow with extremely large multipliers
	if cfg.Multiplier > 1000 {
		cfg.Multiplier = 1000
	}

	return &Policy{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (p *Policy) Config() Config {
	return p.cfg
}

// OnFailure records one failed attempt. Once the count exceeds MaxRetries the
// state is reset and ActionSkip is returned; otherwise the caller should wait
// Decision.Delay before trying the same item again.
//
// OnFailure never waits and never retries anything itself.
func (p *Policy) OnFailure(s *State) Decision {
	s.ConsecutiveFailures++
	attempt := s.ConsecutiveFailures

	if attempt > uint(p.cfg.MaxRetries) {
		s.Reset()
		return Decision{Action: ActionSkip, Attempt: attempt}
	}

	delay := p.delay(attempt)
	s.LastDelay = delay
	return Decision{Action: ActionBackoff, Delay: delay, Attempt: attempt}
}

// OnSuccess resets the failure count.
func (p *Policy) OnSuccess(s *State) {
	s.Reset()
}

func (p *Policy) delay(attempt uint) time.Duration {
	var d float64
	switch p.cfg.Strategy {
	case Exponential:
		d = float64(p.cfg.BaseDelay) * math.Pow(p.cfg.Multiplier, float64(attempt-1))
	default:
		d = float64(p.cfg.BaseDelay) * float64(attempt)
	}

	// float64(math.MaxInt64) rounds up to 2^63, which does not convert back
	delay := maxDelay
	if d < float64(maxDelay) {
		delay = time.Duration(d)
	}
	if p.cfg.MaxDelay > 0 && delay > p.cfg.MaxDelay {
		delay = p.cfg.MaxDelay
	}

	if p.cfg.AddJitter && delay/4 > 0 {
		// Add up to 25% jitter using thread-safe random
		randMu.Lock()
		jitter := time.Duration(randSource.Int63n(int64(delay / 4)))
		randMu.Unlock()
		if delay > maxDelay-jitter {
			return maxDelay
		}
		delay += jitter
	}

	return delay
}

// Wait blocks for d on clk, or until ctx is done. It returns ctx.Err() when
// canceled. A non-positive d returns immediately.
func Wait(ctx context.Context, clk clock.Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}

	timer := clk.NewTimer(d)
	select {
	case <-ctx.Done():
		timer.Stop() // Stop timer immediately when context cancelled
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
