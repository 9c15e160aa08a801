// Package retry implements the bounded, jittered backoff around a fallible
// unit of work (spec §4.1). Built on cenkalti/backoff/v4: Policy maps onto
// an ExponentialBackOff, and non-retryable errors are wrapped in
// backoff.Permanent so the underlying callable runs exactly once for them.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/turphai/boomwatch/internal/apperrors"
)

// Policy is retry data, not a compile-time decorator (spec §9 re-architecture
// note): callers build one and pass it to Do.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64 // in [0,1]
	// Retryable overrides the error's own apperrors.IsRetryable classification
	// when non-nil.
	Retryable func(error) bool
}

// DefaultPolicy matches spec §4.1's stated defaults.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2,
		Jitter:        0.25,
	}
}

func (p Policy) isRetryable(err error) bool {
	if p.Retryable != nil {
		return p.Retryable(err)
	}
	return apperrors.IsRetryable(err)
}

func (p Policy) backOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = p.BackoffFactor
	eb.RandomizationFactor = p.Jitter
	eb.MaxElapsedTime = 0 // bounded by WithMaxRetries, not elapsed wall time
	eb.Reset()
	return eb
}

// Do runs f, retrying on retryable failures per policy, and returns f's last
// result. attempts is 1 when f succeeded or failed permanently on the first
// try.
func Do[T any](ctx context.Context, log *zap.SugaredLogger, policy Policy, f func(ctx context.Context) (T, error)) (T, int, error) {
	var (
		result  T
		attempt int
	)

	operation := func() error {
		attempt++
		var err error
		result, err = f(ctx)
		if err == nil {
			return nil
		}
		if !policy.isRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, delay time.Duration) {
		if log != nil {
			log.Infow("retrying after failure",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		}
	}

	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(policy.backOff(), uint64(maxAttempts-1)), ctx)

	err := backoff.RetryNotify(operation, bo, notify)
	return result, attempt, err
}

// jitteredDelay is exposed for tests asserting the sleep-time bound in
// spec §8; production code goes through Do/backoff.ExponentialBackOff.
func jitteredDelay(base time.Duration, attempt int, policy Policy, rng *rand.Rand) time.Duration {
	d := float64(base)
	for i := 1; i < attempt; i++ {
		d *= policy.BackoffFactor
	}
	if max := float64(policy.MaxDelay); d > max {
		d = max
	}
	lo := 1 - policy.Jitter
	hi := 1 + policy.Jitter
	factor := lo + rng.Float64()*(hi-lo)
	return time.Duration(d * factor)
}
