// Package obsmetrics exposes the service's own Prometheus metrics (run
// duration, retry count, cache hit/miss, breaker state) on /metrics in
// serve mode. This is distinct from internal/metricssink, which POSTs a
// best-effort per-run summary to an external collaborator in a plain JSON
// shape rather than Prometheus exposition format.
package obsmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/turphai/boomwatch/internal/domain"
)

// identifiable is the minimal adapter surface ObserveResult needs; it is
// satisfied by adapter.Adapter without importing that package here.
type identifiable interface {
	Identity() (domain.DataSource, string, domain.Unit)
}

var (
	RunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "boomwatch",
		Name:      "run_duration_seconds",
		Help:      "Duration of a single scraper run, by data source and metric.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"data_source", "metric_name", "success"})

	RetryCount = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "boomwatch",
		Name:      "retry_count",
		Help:      "Number of retry attempts a run required.",
		Buckets:   []float64{0, 1, 2, 3, 4, 5},
	}, []string{"data_source", "metric_name"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boomwatch",
		Name:      "cache_hits_total",
		Help:      "Cache lookups, partitioned by hit/miss/stale.",
	}, []string{"result"})

	BreakerStateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boomwatch",
		Name:      "breaker_state_changes_total",
		Help:      "Circuit breaker state transitions, by adapter and resulting state.",
	}, []string{"adapter", "state"})

	RunsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boomwatch",
		Name:      "runs_skipped_total",
		Help:      "Runs skipped due to an already-held lease (overlap-skipped).",
	}, []string{"data_source", "metric_name"})

	AlertsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "boomwatch",
		Name:      "alerts_dispatched_total",
		Help:      "Alert deliveries attempted, by channel and outcome.",
	}, []string{"channel", "outcome"})
)

// ObserveResult records a completed ScraperResult's duration and retry
// count. Skipped runs only increment RunsSkipped.
func ObserveResult(a identifiable, result domain.ScraperResult) {
	ds, metric, _ := a.Identity()
	if result.Skipped {
		RunsSkipped.WithLabelValues(string(ds), metric).Inc()
		return
	}
	success := "false"
	if result.Success {
		success = "true"
	}
	RunDuration.WithLabelValues(string(ds), metric, success).Observe(result.ExecutionDuration.Seconds())
	RetryCount.WithLabelValues(string(ds), metric).Observe(float64(result.RetryCount))
}

// ObserveCache records a cache lookup outcome: "hit", "miss", or "stale".
func ObserveCache(result string) {
	CacheHits.WithLabelValues(result).Inc()
}

// ObserveBreakerStateChange records a circuit breaker transitioning into
// newState for the named adapter.
func ObserveBreakerStateChange(adapterName, newState string) {
	BreakerStateChanges.WithLabelValues(adapterName, newState).Inc()
}

// ObserveAlertDispatch records one channel delivery attempt's outcome:
// "delivered", "failed", or "suppressed".
func ObserveAlertDispatch(channel domain.Channel, outcome string) {
	AlertsDispatched.WithLabelValues(string(channel), outcome).Inc()
}
