// Package scheduler implements the Scheduler/Trigger (spec §4.9): drives
// each adapter's Runner invocation on a per-adapter cron cadence, delaying
// each tick by a random 0-5% of its nominal interval (ticks are never moved
// earlier), or on demand, and reports overlap-skipped ticks (surfaced by the
// Runner's own lease, spec §4.7 step 1) without a second StateStore write.
package scheduler

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/turphai/boomwatch/internal/adapter"
	"github.com/turphai/boomwatch/internal/alert"
	"github.com/turphai/boomwatch/internal/domain"
	"github.com/turphai/boomwatch/internal/runner"
)

// JitterFraction bounds the random delay injected before each tick actually
// invokes its runner, as a fraction of the adapter's nominal cadence
// interval. The delay is only ever added; a tick never fires before its
// cron time.
const JitterFraction = 0.05

// Schedule binds one adapter to its cron cadence. NominalInterval is used
// only to size the jitter window (e.g. 24h for a daily adapter, 7*24h for
// weekly, ~90 days for quarterly).
type Schedule struct {
	Adapter         adapter.Adapter
	CronExpr        string
	NominalInterval time.Duration
}

// ResultHook observes every completed (non-skipped) run, e.g. to feed the
// best-effort metrics sink (spec §6).
type ResultHook func(ctx context.Context, a adapter.Adapter, result domain.ScraperResult)

// Scheduler drives a Runner on cadence across all registered adapters.
type Scheduler struct {
	cron   *cron.Cron
	runner *runner.Runner
	alerts *alert.Engine
	log    *zap.SugaredLogger

	mu       sync.Mutex
	rng      *rand.Rand
	onResult ResultHook
}

func New(r *runner.Runner, alerts *alert.Engine, log *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		runner: r,
		alerts: alerts,
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// OnResult registers a hook invoked after every completed run.
func (s *Scheduler) OnResult(hook ResultHook) { s.onResult = hook }

// Register adds sched to the cron table. CronExpr uses the 6-field
// second-resolution format (robfig/cron/v3 WithSeconds).
func (s *Scheduler) Register(sched Schedule) error {
	_, err := s.cron.AddFunc(sched.CronExpr, func() {
		s.tick(context.Background(), sched)
	})
	return err
}

func (s *Scheduler) Start() { s.cron.Start() }

func (s *Scheduler) Stop() context.Context { return s.cron.Stop() }

func (s *Scheduler) tick(ctx context.Context, sched Schedule) {
	if d := s.jitter(sched.NominalInterval); d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return
		}
	}
	s.invoke(ctx, sched.Adapter)
}

// jitter returns a random delay in [0, JitterFraction*interval).
func (s *Scheduler) jitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	max := float64(interval) * JitterFraction
	return time.Duration(s.rng.Float64() * max)
}

// RunOnce invokes a's runner immediately, bypassing cron — the CLI's
// on-demand `run <source> <metric>` path (spec §6).
func (s *Scheduler) RunOnce(ctx context.Context, a adapter.Adapter) domain.ScraperResult {
	return s.invoke(ctx, a)
}

func (s *Scheduler) invoke(ctx context.Context, a adapter.Adapter) domain.ScraperResult {
	result := s.runner.Run(ctx, a)

	if result.Skipped {
		if s.log != nil {
			ds, metric, _ := a.Identity()
			s.log.Infow("tick skipped: overlap-skipped", "data_source", ds, "metric_name", metric)
		}
		return result
	}

	if result.Success && result.MetricPoint != nil && s.alerts != nil {
		if _, err := s.alerts.Evaluate(ctx, *result.MetricPoint); err != nil && s.log != nil {
			s.log.Warnw("alert evaluation failed", "error", err)
		}
	}

	if s.onResult != nil {
		s.onResult(ctx, a, result)
	}
	return result
}
