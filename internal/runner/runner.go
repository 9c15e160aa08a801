// Package runner implements the Scraper Runner (spec §4.7): the component
// that orchestrates one adapter invocation end to end — lease, retried
// fetch, fallback chain, opportunistic secondary sources, validation,
// cross-validation, and persistence — and returns a ScraperResult.
package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/turphai/boomwatch/internal/adapter"
	"github.com/turphai/boomwatch/internal/apperrors"
	"github.com/turphai/boomwatch/internal/cache"
	"github.com/turphai/boomwatch/internal/crossvalidate"
	"github.com/turphai/boomwatch/internal/domain"
	"github.com/turphai/boomwatch/internal/lease"
	"github.com/turphai/boomwatch/internal/obsmetrics"
	"github.com/turphai/boomwatch/internal/retry"
	"github.com/turphai/boomwatch/internal/statestore"
	"github.com/turphai/boomwatch/internal/validation"
)

// phase names the run's position in the state machine spec §4.7 describes:
// IDLE -> FETCHING -> (VALIDATING | FALLING_BACK) -> PERSISTING -> DONE,
// with FAILED reachable from any non-terminal phase.
type phase string

const (
	phaseIdle        phase = "idle"
	phaseFetching    phase = "fetching"
	phaseValidating  phase = "validating"
	phaseFallingBack phase = "falling_back"
	phasePersisting  phase = "persisting"
	phaseDone        phase = "done"
	phaseFailed      phase = "failed"
)

// DefaultFetchTimeout and DefaultRunTimeout are spec §5's stated defaults.
const (
	DefaultFetchTimeout     = 30 * time.Second
	DefaultRunTimeout       = 5 * time.Minute
	DefaultSecondaryTimeout = 5 * time.Second
)

// Runner orchestrates one adapter invocation. One Runner instance is shared
// across adapters; per-(source,metric) exclusivity comes from Leases, per-
// adapter circuit isolation from the lazily created breaker set.
type Runner struct {
	Cache     cache.Store
	Store     statestore.Store
	Validator *validation.Validator
	Leases    *lease.Manager
	Log       *zap.SugaredLogger
	Clock     func() time.Time

	RetryPolicy      retry.Policy
	FetchTimeout      time.Duration
	RunTimeout        time.Duration
	SecondaryTimeout  time.Duration

	breakers map[string]*gobreaker.CircuitBreaker
}

func New(store statestore.Store, c cache.Store, validator *validation.Validator, leases *lease.Manager, log *zap.SugaredLogger) *Runner {
	return &Runner{
		Cache:            c,
		Store:            store,
		Validator:        validator,
		Leases:           leases,
		Log:              log,
		Clock:            func() time.Time { return time.Now().UTC() },
		RetryPolicy:      retry.DefaultPolicy(),
		FetchTimeout:     DefaultFetchTimeout,
		RunTimeout:       DefaultRunTimeout,
		SecondaryTimeout: DefaultSecondaryTimeout,
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
	}
}

func (r *Runner) breakerFor(name string) *gobreaker.CircuitBreaker {
	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if r.Log != nil {
				r.Log.Infow("circuit breaker state change", "adapter", name, "from", from, "to", to)
			}
			obsmetrics.ObserveBreakerStateChange(name, to.String())
		},
	})
	r.breakers[name] = b
	return b
}

// Run executes one invocation of a, implementing the flow in spec §4.7.
func (r *Runner) Run(ctx context.Context, a adapter.Adapter) (result domain.ScraperResult) {
	start := r.Clock()
	dataSource, metricName, unit := a.Identity()
	key := domain.Key{DataSource: dataSource, MetricName: metricName}

	defer func() { obsmetrics.ObserveResult(a, result) }()

	defer func() {
		if rec := recover(); rec != nil {
			result = domain.ScraperResult{
				Success:           false,
				Err:               apperrors.Newf(apperrors.KindInternal, "runner", "adapter panic: %v", rec),
				ExecutionDuration: r.Clock().Sub(start),
			}
			r.logf(phaseFailed, key, "adapter panicked", "panic", rec)
		}
	}()

	tok, ok := r.Leases.Acquire(key)
	if !ok {
		r.logf(phaseIdle, key, "overlap-skipped")
		return domain.ScraperResult{Skipped: true, ExecutionDuration: r.Clock().Sub(start)}
	}
	defer tok.Release()

	runCtx, cancel := context.WithTimeout(ctx, r.RunTimeout)
	defer cancel()

	r.logf(phaseFetching, key, "fetch starting")
	reading, retryCount, usedFallback, degraded, err := r.fetchWithFallback(runCtx, a, key)
	if err != nil {
		r.logf(phaseFailed, key, "fetch exhausted with no viable fallback", "error", err)
		return domain.ScraperResult{
			Success:           false,
			Err:               err,
			ExecutionDuration: r.Clock().Sub(start),
			RetryCount:        retryCount,
		}
	}

	if degraded {
		// StateStore.getLastKnownGood path: skips validation entirely and
		// goes straight to DONE with degraded status (spec §4.7 state
		// machine note).
		point := reading.lastKnownGood
		point.Confidence *= 0.5
		point.ValidationStatus = domain.StatusDegraded
		r.logf(phaseDone, key, "served last-known-good", "confidence", point.Confidence)
		return domain.ScraperResult{
			Success:           true,
			MetricPoint:       point,
			UsedFallback:      true,
			ExecutionDuration: r.Clock().Sub(start),
			RetryCount:        retryCount,
		}
	}

	r.logf(phaseValidating, key, "validating")
	history := r.historyValues(runCtx, key)
	penalties := validation.DetectQualityPenalties(reading.reading, a.Schema())
	report := r.Validator.Validate(reading.reading, a.Schema(), history, penalties)
	if !report.Valid {
		r.logf(phaseFailed, key, "validator rejected reading", "errors", report.Errors)
		return domain.ScraperResult{
			Success:           false,
			Err:               apperrors.New(apperrors.KindValidation, "runner", fmt.Sprintf("validation rejected reading: %v", report.Errors)),
			ExecutionDuration: r.Clock().Sub(start),
			RetryCount:        retryCount,
		}
	}

	secondaries := r.bestEffortSecondaries(runCtx, a)
	confidence := report.Confidence
	var crossWarning string
	if len(secondaries) > 0 {
		cvResult := crossvalidate.CrossValidate(
			crossvalidate.Source{Name: a.SourceFlag(), Value: reading.reading.Value},
			secondaries,
			toleranceFor(unit),
		)
		if cvResult.AgreementConfidence < 0.5 && confidence > crossvalidate.ConfidenceFloor {
			confidence = crossvalidate.ConfidenceFloor
		}
		crossWarning = cvResult.Warning
	}

	sourceFlags := []string{a.SourceFlag()}
	status := domain.StatusValid
	if usedFallback {
		sourceFlags = append(sourceFlags, a.FallbackSourceFlag())
		status = domain.StatusDegraded
	}

	point := domain.MetricPoint{
		DataSource:       dataSource,
		MetricName:       metricName,
		Value:            reading.reading.Value,
		Composite:        reading.reading.Composite,
		Unit:             unit,
		Timestamp:        reading.reading.FetchedAt,
		Confidence:       confidence,
		Checksum:         report.Checksum,
		AnomalyScore:      report.AnomalyScore,
		Metadata:         withWarning(reading.reading.Metadata, crossWarning),
		SourceFlags:      sourceFlags,
		ValidationStatus: status,
	}

	r.logf(phasePersisting, key, "persisting", "confidence", point.Confidence)
	if cacheErr := r.cachePut(runCtx, key, point, a.PreferredCacheTTL()); cacheErr != nil {
		r.Log.Warnw("cache put failed", "key", key.String(), "error", cacheErr)
	}
	if err := r.Store.Put(runCtx, point); err != nil {
		r.logf(phaseFailed, key, "state store write failed", "error", err)
		return domain.ScraperResult{
			Success:           false,
			Err:               apperrors.Wrap(err, apperrors.KindStateStore, "runner", "persist metric point"),
			ExecutionDuration: r.Clock().Sub(start),
			RetryCount:        retryCount,
		}
	}

	r.logf(phaseDone, key, "run complete")
	return domain.ScraperResult{
		Success:           true,
		MetricPoint:       &point,
		UsedFallback:      usedFallback,
		ExecutionDuration: r.Clock().Sub(start),
		RetryCount:        retryCount,
	}
}

// fetchResult is the runner-internal outcome of fetchWithFallback: either a
// reading ready for validation, or, when degraded is true, a last-known-good
// point that bypasses validation entirely.
type fetchResult struct {
	reading       adapter.RawReading
	lastKnownGood *domain.MetricPoint
}

func (r *Runner) fetchWithFallback(ctx context.Context, a adapter.Adapter, key domain.Key) (fetchResult, int, bool, bool, error) {
	breaker := r.breakerFor(key.String())

	reading, attempts, err := retry.Do(ctx, r.Log, r.RetryPolicy, func(ctx context.Context) (adapter.RawReading, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, r.FetchTimeout)
		defer cancel()
		out, err := breaker.Execute(func() (interface{}, error) {
			return a.Fetch(fetchCtx)
		})
		if err != nil {
			return adapter.RawReading{}, err
		}
		return out.(adapter.RawReading), nil
	})
	if err == nil {
		return fetchResult{reading: reading}, attempts, false, false, nil
	}

	r.Log.Infow("retry exhausted, attempting fallback", "key", key.String(), "attempts", attempts, "error", err)

	if fb, ok := a.Fallback(ctx); ok {
		return fetchResult{reading: fb}, attempts, true, false, nil
	}

	if stale, hit, cacheErr := r.Cache.GetStale(ctx, key.String()); cacheErr == nil && hit {
		obsmetrics.ObserveCache("stale")
		var cached domain.MetricPoint
		if jsonErr := json.Unmarshal(stale, &cached); jsonErr == nil {
			return fetchResult{reading: adapter.RawReading{Value: cached.Value, Composite: cached.Composite, Metadata: cached.Metadata, FetchedAt: cached.Timestamp}}, attempts, true, false, nil
		}
	} else {
		obsmetrics.ObserveCache("miss")
	}

	if lkg, lkgErr := r.Store.GetLastKnownGood(ctx, key); lkgErr == nil && lkg != nil {
		point := *lkg
		return fetchResult{lastKnownGood: &point}, attempts, true, true, nil
	}

	return fetchResult{}, attempts, false, false, err
}

func (r *Runner) bestEffortSecondaries(ctx context.Context, a adapter.Adapter) []crossvalidate.Source {
	secCtx, cancel := context.WithTimeout(ctx, r.SecondaryTimeout)
	defer cancel()

	readings := a.SecondarySources(secCtx)
	sources := make([]crossvalidate.Source, 0, len(readings))
	for i, reading := range readings {
		name := fmt.Sprintf("secondary-%d", i)
		if reading.Metadata != nil {
			if n, ok := reading.Metadata["source"].(string); ok && n != "" {
				name = n
			}
		}
		sources = append(sources, crossvalidate.Source{Name: name, Value: reading.Value})
	}
	return sources
}

func (r *Runner) historyValues(ctx context.Context, key domain.Key) []float64 {
	points, err := r.Store.GetRange(ctx, key, time.Time{}, r.Clock())
	if err != nil || len(points) == 0 {
		return nil
	}
	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}
	return values
}

func (r *Runner) cachePut(ctx context.Context, key domain.Key, point domain.MetricPoint, ttl time.Duration) error {
	b, err := json.Marshal(point)
	if err != nil {
		return err
	}
	return r.Cache.Put(ctx, key.String(), b, ttl)
}

// toleranceFor maps a MetricPoint's unit to the cross-validation tolerance
// rule spec §4.4 specifies: 10% relative for currency/count, 5 absolute
// basis points for percent. Ratio values use the relative rule.
func toleranceFor(unit domain.Unit) crossvalidate.ToleranceKind {
	if unit == domain.UnitPercent {
		return crossvalidate.ToleranceAbsoluteBps5
	}
	return crossvalidate.ToleranceRelative10Pct
}

func withWarning(metadata map[string]any, warning string) map[string]any {
	if warning == "" {
		return metadata
	}
	out := make(map[string]any, len(metadata)+1)
	for k, v := range metadata {
		out[k] = v
	}
	out["cross_validation_warning"] = warning
	return out
}

func (r *Runner) logf(p phase, key domain.Key, msg string, kv ...any) {
	if r.Log == nil {
		return
	}
	args := append([]any{"phase", string(p), "data_source", string(key.DataSource), "metric_name", key.MetricName}, kv...)
	r.Log.Infow(msg, args...)
}
