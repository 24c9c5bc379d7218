// Package resiliency implements exponential backoff with retry (Do) and a
// circuit breaker. Do wraps the claim adjudicator's ClaimSwitch calls
// (pkg/claim); PDMP and registry calls are not retried, and the
// CircuitBreaker is not wired into any caller. Suggestor calls never retry,
// so callers there should not use this package.
package resiliency

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"
)

// BackoffPolicy is the exponential-backoff-with-jitter schedule from
// spec.md §4.3: base 500ms, factor 2, jitter ±20%, capped at 60s, 5 attempts.
type BackoffPolicy struct {
	Base       time.Duration
	Factor     float64
	JitterFrac float64
	Cap        time.Duration
	MaxAttempts int
}

// DefaultClaimSwitchPolicy matches the claim adjudication retry schedule.
func DefaultClaimSwitchPolicy() BackoffPolicy {
	return BackoffPolicy{
		Base:        500 * time.Millisecond,
		Factor:      2,
		JitterFrac:  0.20,
		Cap:         60 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the backoff delay for the given zero-based attempt index,
// including jitter in [-JitterFrac, +JitterFrac] of the computed delay.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	raw := float64(p.Base) * math.Pow(p.Factor, float64(attempt))
	if raw > float64(p.Cap) {
		raw = float64(p.Cap)
	}
	jitterRange := raw * p.JitterFrac
	jitter := randFloat(-jitterRange, jitterRange)
	d := time.Duration(raw + jitter)
	if d < 0 {
		d = 0
	}
	return d
}

func randFloat(lo, hi float64) float64 {
	if hi <= lo {
		return lo
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return lo
	}
	frac := float64(n.Int64()) / 1_000_000
	return lo + frac*(hi-lo)
}

// Retryable is implemented by errors that carry their own retry verdict.
type Retryable interface {
	Retryable() bool
}

// ErrAttemptsExhausted is wrapped into the final error when every attempt
// failed and the last error was itself retryable.
var ErrAttemptsExhausted = errors.New("resiliency: attempts exhausted")

// Do runs fn up to policy.MaxAttempts times, sleeping policy.Delay between
// attempts. A non-nil error from fn is retried unless it implements
// Retryable and reports false, in which case Do returns it at once (errors
// that don't implement Retryable, such as network errors, are retried). It
// stops immediately on ctx cancellation.
func Do(ctx context.Context, policy BackoffPolicy, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if r, ok := lastErr.(Retryable); ok && !r.Retryable() {
			return lastErr
		}
		if attempt == policy.MaxAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.Delay(attempt)):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("%w: %w", ErrAttemptsExhausted, lastErr)
	}
	return lastErr
}
