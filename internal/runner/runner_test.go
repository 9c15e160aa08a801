package runner

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/turphai/boomwatch/internal/adapter"
	"github.com/turphai/boomwatch/internal/apperrors"
	"github.com/turphai/boomwatch/internal/cache"
	"github.com/turphai/boomwatch/internal/domain"
	"github.com/turphai/boomwatch/internal/lease"
	"github.com/turphai/boomwatch/internal/statestore"
	"github.com/turphai/boomwatch/internal/validation"
)

type fakeAdapter struct {
	fetchFn       func(ctx context.Context) (adapter.RawReading, error)
	fallbackFn    func(ctx context.Context) (adapter.RawReading, bool)
	secondaries   []adapter.RawReading
	cacheTTL      time.Duration
	source        string
	fallbackFlag  string
}

func (f *fakeAdapter) Identity() (domain.DataSource, string, domain.Unit) {
	return domain.SourceBDCDiscount, "daily_discount", domain.UnitRatio
}
func (f *fakeAdapter) Fetch(ctx context.Context) (adapter.RawReading, error) { return f.fetchFn(ctx) }
func (f *fakeAdapter) Schema() adapter.Schema                               { return adapter.Schema{} }
func (f *fakeAdapter) SecondarySources(ctx context.Context) []adapter.RawReading {
	return f.secondaries
}
func (f *fakeAdapter) Fallback(ctx context.Context) (adapter.RawReading, bool) {
	if f.fallbackFn != nil {
		return f.fallbackFn(ctx)
	}
	return adapter.RawReading{}, false
}
func (f *fakeAdapter) PreferredCacheTTL() time.Duration { return f.cacheTTL }
func (f *fakeAdapter) SourceFlag() string               { return f.source }
func (f *fakeAdapter) FallbackSourceFlag() string        { return f.fallbackFlag }

func newTestRunner(t *testing.T) (*Runner, *statestore.FileStore) {
	t.Helper()
	store, err := statestore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("new filestore: %v", err)
	}
	r := New(store, cache.NewMemoryCache(), validation.New(), lease.NewManager(), zap.NewNop().Sugar())
	r.RetryPolicy.MaxAttempts = 3
	r.RetryPolicy.BaseDelay = time.Millisecond
	r.RetryPolicy.MaxDelay = 5 * time.Millisecond
	return r, store
}

func TestRunHappyPathPersistsValidPoint(t *testing.T) {
	r, store := newTestRunner(t)
	now := time.Now().UTC()

	for i := 0; i < 10; i++ {
		store.Put(context.Background(), domain.MetricPoint{
			DataSource:       domain.SourceBDCDiscount,
			MetricName:       "daily_discount",
			Value:            0.08 + float64(i)*0.002,
			Unit:             domain.UnitRatio,
			Timestamp:        now.Add(-time.Duration(10-i) * 24 * time.Hour),
			ValidationStatus: domain.StatusValid,
			Checksum:         "seed" + string(rune('a'+i)),
		})
	}

	a := &fakeAdapter{
		source: "bdc_quotes_api",
		fetchFn: func(ctx context.Context) (adapter.RawReading, error) {
			return adapter.RawReading{Value: 0.105, FetchedAt: now}, nil
		},
		cacheTTL: time.Hour,
	}

	result := r.Run(context.Background(), a)
	if !result.Success {
		t.Fatalf("expected success, got error %v", result.Err)
	}
	if result.MetricPoint == nil {
		t.Fatal("expected a persisted metric point")
	}
	if result.MetricPoint.Value != 0.105 {
		t.Fatalf("expected value 0.105, got %v", result.MetricPoint.Value)
	}
	if result.MetricPoint.Confidence < 0.85 {
		t.Fatalf("expected confidence >= 0.85, got %v", result.MetricPoint.Confidence)
	}
	if result.MetricPoint.AnomalyScore > 0.2 {
		t.Fatalf("expected low anomaly score, got %v", result.MetricPoint.AnomalyScore)
	}
	if result.UsedFallback {
		t.Fatal("did not expect fallback on happy path")
	}
}

func TestRunFallbackProducesDegradedSuccess(t *testing.T) {
	r, _ := newTestRunner(t)
	now := time.Now().UTC()

	a := &fakeAdapter{
		source:       "sec_edgar",
		fallbackFlag: "yahoo_finance_fallback",
		fetchFn: func(ctx context.Context) (adapter.RawReading, error) {
			return adapter.RawReading{}, apperrors.New(apperrors.KindTransport, "fakeadapter", "connection reset")
		},
		fallbackFn: func(ctx context.Context) (adapter.RawReading, bool) {
			return adapter.RawReading{Value: 0.09, FetchedAt: now}, true
		},
		cacheTTL: time.Hour,
	}

	result := r.Run(context.Background(), a)
	if !result.Success {
		t.Fatalf("expected success via fallback, got error %v", result.Err)
	}
	if !result.UsedFallback {
		t.Fatal("expected UsedFallback=true")
	}
	if result.MetricPoint.ValidationStatus != domain.StatusDegraded {
		t.Fatalf("expected degraded status, got %v", result.MetricPoint.ValidationStatus)
	}
	if result.RetryCount != r.RetryPolicy.MaxAttempts {
		t.Fatalf("expected retries exhausted (%d), got %d", r.RetryPolicy.MaxAttempts, result.RetryCount)
	}
}

func TestRunRejectsInvalidReading(t *testing.T) {
	r, _ := newTestRunner(t)
	a := &fakeAdapter{
		source: "sec_edgar",
		fetchFn: func(ctx context.Context) (adapter.RawReading, error) {
			return adapter.RawReading{Value: nan()}, nil
		},
	}
	result := r.Run(context.Background(), a)
	if result.Success {
		t.Fatal("expected failure for a NaN reading")
	}
	if result.MetricPoint != nil {
		t.Fatal("a rejected reading must never be persisted")
	}
}

func TestRunSkipsWhenLeaseHeld(t *testing.T) {
	r, _ := newTestRunner(t)
	key := domain.Key{DataSource: domain.SourceBDCDiscount, MetricName: "daily_discount"}
	tok, ok := r.Leases.Acquire(key)
	if !ok {
		t.Fatal("expected to acquire lease")
	}
	defer tok.Release()

	a := &fakeAdapter{
		source: "sec_edgar",
		fetchFn: func(ctx context.Context) (adapter.RawReading, error) {
			t.Fatal("fetch must not be called when the lease is held")
			return adapter.RawReading{}, nil
		},
	}
	result := r.Run(context.Background(), a)
	if !result.Skipped {
		t.Fatal("expected the run to be recorded as skipped")
	}
	if result.Success {
		t.Fatal("a skipped run is neither success nor failure")
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}
