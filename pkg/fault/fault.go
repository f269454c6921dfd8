// Package fault decides when a producer or consumer attempt should fail, to
// simulate unreliable work.
package fault

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/c360/prodcon/errors"
)

// Injector combines a deterministic trigger (sequence number is a multiple of
// the modulus) with a probability gate that decides whether the trigger fires.
//
// Injector never touches buffers or metrics. Its only side effect is drawing
// from its random source, which is guarded so one Injector may be shared by
// several workers.
type Injector struct {
	modulus     uint64
	probability float64

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures an Injector.
type Option func(*Injector)

// WithSeed makes the probability gate reproducible.
func WithSeed(seed int64) Option {
	return func(i *Injector) {
		i.rng = rand.New(rand.NewSource(seed))
	}
}

// WithSource draws the probability gate from src.
func WithSource(src rand.Source) Option {
	return func(i *Injector) {
		if src != nil {
			i.rng = rand.New(src)
		}
	}
}

// NewInjector creates an Injector. A modulus of 0 disables injection.
// Probability must be within [0, 1].
func NewInjector(modulus uint64, probability float64, opts ...Option) (*Injector, error) {
	if probability < 0 || probability > 1 || probability != probability {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: probability %v outside [0, 1]", errors.ErrInvalidConfig, probability),
			"FaultInjector", "New", "probability check")
	}

	i := &Injector{
		modulus:     modulus,
		probability: probability,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(i)
		}
	}
	if i.rng == nil {
		i.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return i, nil
}

// ShouldFail reports whether the attempt numbered seq should fail.
// A nil Injector never fails.
func (i *Injector) ShouldFail(seq uint64) bool {
	if i == nil || i.modulus == 0 || seq%i.modulus != 0 {
		return false
	}

	switch {
	case i.probability >= 1:
		return true
	case i.probability <= 0:
		return false
	}

	i.mu.Lock()
	draw := i.rng.Float64()
	i.mu.Unlock()

	return draw < i.probability
}

// Check returns a transient error wrapping errors.ErrTransientFault when
// ShouldFail(seq) is true, nil otherwise.
func (i *Injector) Check(seq uint64) error {
	if !i.ShouldFail(seq) {
		return nil
	}
	return errors.WrapTransient(
		fmt.Errorf("%w at sequence %d", errors.ErrTransientFault, seq),
		"FaultInjector", "Check", "simulated work")
}

// Modulus returns the trigger modulus.
func (i *Injector) Modulus() uint64 {
	if i == nil {
		return 0
	}
	return i.modulus
}

// Probability returns the gate probability.
func (i *Injector) Probability() float64 {
	if i == nil {
		return 0
	}
	return i.probability
}
