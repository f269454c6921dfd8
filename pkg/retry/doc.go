// Package retry provides the backoff policy workers apply to failed attempts.
//
// # Overview
//
// A Policy is stateless and shareable. Each worker owns a State recording its
// consecutive failures. After every failed attempt the worker calls OnFailure
// and acts on the Decision; after every success it calls OnSuccess. The
// policy never sleeps or retries on its own: the worker owns the loop.
//
// # Decisions
//
// OnFailure increments the failure count n. While n <= MaxRetries the
// decision is ActionBackoff with a delay of:
//
//   - Linear (default): BaseDelay * n
//   - Exponential: BaseDelay * Multiplier^(n-1)
//
// capped by MaxDelay when set and optionally stretched by up to 25% jitter.
// The failure after that yields ActionSkip and resets the count, so the
// caller abandons the current item and starts fresh on the next.
//
// # Usage
//
//	policy, err := retry.NewRetryPolicy(3, 200*time.Millisecond)
//	if err != nil {
//	    return err
//	}
//
//	var state retry.State
//	for {
//	    if err := attempt(); err == nil {
//	        policy.OnSuccess(&state)
//	        break
//	    }
//	    d := policy.OnFailure(&state)
//	    if d.Action == retry.ActionSkip {
//	        break
//	    }
//	    if err := retry.Wait(ctx, clock.RealClock{}, d.Delay); err != nil {
//	        return err // canceled
//	    }
//	}
//
// Wait takes a k8s.io/utils/clock.Clock so tests can drive backoff with a
// fake clock instead of sleeping.
package retry
