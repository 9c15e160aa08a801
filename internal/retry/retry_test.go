package retry

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/turphai/boomwatch/internal/apperrors"
)

func TestDoNonRetryableInvokedOnce(t *testing.T) {
	calls := 0
	_, attempts, err := Do[int](context.Background(), nil, DefaultPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, apperrors.New(apperrors.KindParseSchema, "adapter", "bad document")
	})
	if calls != 1 || attempts != 1 {
		t.Fatalf("expected exactly one invocation, got calls=%d attempts=%d", calls, attempts)
	}
	if err == nil {
		t.Fatalf("expected error to propagate")
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, BackoffFactor: 2, Jitter: 0}
	calls := 0
	value, attempts, err := Do[string](context.Background(), nil, policy, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", apperrors.New(apperrors.KindTransport, "adapter", "timeout")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != "ok" || attempts != 3 || calls != 3 {
		t.Fatalf("expected success on 3rd attempt, got value=%q attempts=%d calls=%d", value, attempts, calls)
	}
}

func TestDoExhaustionReturnsLastError(t *testing.T) {
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1, Jitter: 0}
	calls := 0
	_, attempts, err := Do[int](context.Background(), nil, policy, func(context.Context) (int, error) {
		calls++
		return 0, apperrors.Newf(apperrors.KindTransport, "adapter", "attempt %d failed", calls)
	})
	if calls != 3 || attempts != 3 {
		t.Fatalf("expected all attempts consumed, got calls=%d attempts=%d", calls, attempts)
	}
	if err == nil {
		t.Fatalf("expected exhaustion error")
	}
}

func TestJitteredDelayBounds(t *testing.T) {
	policy := Policy{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2, Jitter: 0.25}
	rng := rand.New(rand.NewSource(1))
	for attempt := 1; attempt <= 4; attempt++ {
		d := jitteredDelay(policy.BaseDelay, attempt, policy, rng)
		base := float64(policy.BaseDelay)
		for i := 1; i < attempt; i++ {
			base *= policy.BackoffFactor
		}
		if base > float64(policy.MaxDelay) {
			base = float64(policy.MaxDelay)
		}
		lo := time.Duration(base * 0.75)
		hi := time.Duration(base * 1.25)
		if d < lo || d > hi {
			t.Fatalf("attempt %d: delay %v out of bounds [%v, %v]", attempt, d, lo, hi)
		}
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1, Jitter: 0}
	_, _, err := Do[int](ctx, nil, policy, func(context.Context) (int, error) {
		return 0, apperrors.New(apperrors.KindTransport, "adapter", "timeout")
	})
	if err == nil {
		t.Fatalf("expected an error when context is already canceled")
	}
}
