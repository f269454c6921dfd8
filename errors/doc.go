// Package errors provides standardized error handling for the producer/consumer core.
//
// # Overview
//
// The errors package implements a three-class error classification system:
// Transient (temporary, retryable), Invalid (bad input or misuse, non-retryable),
// and Fatal (corrupted state, stop the process).
//
// Cancellation is deliberately outside the three classes. A canceled context is a
// cooperative shutdown request; IsCancellation identifies it and IsTransient
// returns false for it so that retry loops terminate instead of backing off.
//
// # Error Categories
//
//   - Transient: injected worker faults (ErrTransientFault), non-blocking buffer
//     misses (ErrBufferFull, ErrBufferEmpty). Handled entirely inside worker loops.
//   - Invalid: construction arguments and configuration (ErrInvalidConfig),
//     use of a closed buffer (ErrBufferClosed).
//   - Fatal: ErrInvariantViolation. Raised by the buffer with panic when its
//     occupancy or cursors leave their valid range. Never recovered.
//
// # Quick Start
//
// Wrap errors with context for debugging:
//
//	if err := cfg.Validate(); err != nil {
//	    return errors.WrapInvalid(err, "Harness", "run", "config validation")
//	}
//
// Decide what to do with a worker-level error:
//
//	switch {
//	case errors.IsCancellation(err):
//	    return OutcomeCanceled
//	case errors.IsTransient(err):
//	    decision := policy.OnFailure(&state)
//	    // back off or skip
//	}
//
// # Error Wrapping Pattern
//
// All error wrapping follows the standardized format:
//
//	"component.method: action failed: underlying error"
//
// Example:
//
//	"Buffer.Put: wait for capacity failed: context canceled"
//
// # Thread Safety
//
// All functions in this package are stateless and safe for concurrent use.
package errors
