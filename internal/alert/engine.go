// Package alert implements the Alert Engine (spec §4.8): threshold
// evaluation (absolute with hysteresis, percentage_change against a
// trailing baseline), dedup within a sliding window, and concurrent
// multi-channel dispatch through the core's own Retry Executor.
package alert

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/turphai/boomwatch/internal/domain"
	"github.com/turphai/boomwatch/internal/obsmetrics"
	"github.com/turphai/boomwatch/internal/retry"
	"github.com/turphai/boomwatch/internal/statestore"
)

// ConfigSource is read-only access to AlertConfig, backed in production by
// the relational alertconfigstore (spec §9's resolved open question: the
// relational store is authoritative for AlertConfig).
type ConfigSource interface {
	ListEnabled(ctx context.Context, key domain.Key) ([]domain.AlertConfig, error)
}

// DefaultDedupWindow is used when an AlertConfig leaves DedupWindow unset
// (spec §4.8: "default 6h").
const DefaultDedupWindow = 6 * time.Hour

// HysteresisFraction is the fraction of the threshold distance an absolute
// alert's value must retreat by before it can rearm (spec §4.8: "at least
// 20% of the threshold distance").
const HysteresisFraction = 0.2

type absoluteState struct {
	armed     bool
	direction int // +1: last fired crossing upward, -1: downward
	prevValue float64
	hasPrev   bool
}

// Engine evaluates AlertConfigs against a freshly written MetricPoint and
// dispatches firings to their configured channels.
type Engine struct {
	Configs ConfigSource
	Store   statestore.Store
	Log     *zap.SugaredLogger
	Clock   func() time.Time

	DispatchPolicy retry.Policy
	Channels       map[domain.Channel]ChannelSender

	mu         sync.Mutex
	absolute   map[uuid.UUID]*absoluteState
	instances  map[string]*domain.AlertInstance // dedup key -> instance
}

func New(configs ConfigSource, store statestore.Store, log *zap.SugaredLogger, channels map[domain.Channel]ChannelSender) *Engine {
	return &Engine{
		Configs:        configs,
		Store:          store,
		Log:            log,
		Clock:          func() time.Time { return time.Now().UTC() },
		DispatchPolicy: retry.DefaultPolicy(),
		Channels:       channels,
		absolute:       make(map[uuid.UUID]*absoluteState),
		instances:      make(map[string]*domain.AlertInstance),
	}
}

// Evaluate runs every enabled AlertConfig matching point's (dataSource,
// metricName) and dispatches any that fire (spec §4.8). It is called on the
// producing runner's thread of control (spec §5).
func (e *Engine) Evaluate(ctx context.Context, point domain.MetricPoint) ([]*domain.AlertInstance, error) {
	configs, err := e.Configs.ListEnabled(ctx, point.Key())
	if err != nil {
		return nil, err
	}

	var fired []*domain.AlertInstance
	for _, cfg := range configs {
		instance, shouldDispatch := e.evaluateOne(ctx, cfg, point)
		if instance == nil {
			continue
		}
		fired = append(fired, instance)
		if shouldDispatch {
			e.dispatch(ctx, cfg, instance, point.Confidence)
		}
	}
	return fired, nil
}

func (e *Engine) evaluateOne(ctx context.Context, cfg domain.AlertConfig, point domain.MetricPoint) (*domain.AlertInstance, bool) {
	switch cfg.ThresholdType {
	case domain.ThresholdAbsolute:
		return e.evaluateAbsolute(cfg, point)
	case domain.ThresholdPercentageChange:
		return e.evaluatePercentageChange(ctx, cfg, point)
	default:
		return nil, false
	}
}

func (e *Engine) evaluateAbsolute(cfg domain.AlertConfig, point domain.MetricPoint) (*domain.AlertInstance, bool) {
	e.mu.Lock()
	state, ok := e.absolute[cfg.ID]
	if !ok {
		state = &absoluteState{armed: true}
		e.absolute[cfg.ID] = state
	}

	value := point.Value
	threshold := cfg.ThresholdValue

	if !state.hasPrev {
		state.prevValue = value
		state.hasPrev = true
		e.mu.Unlock()
		return nil, false
	}

	crossedUp := state.prevValue < threshold && value >= threshold
	crossedDown := state.prevValue > threshold && value <= threshold

	var fire bool
	var direction int
	if state.armed && (crossedUp || crossedDown) {
		fire = true
		if crossedUp {
			direction = 1
		} else {
			direction = -1
		}
		state.armed = false
		state.direction = direction
	} else if !state.armed {
		rearmPoint := threshold - float64(state.direction)*HysteresisFraction*math.Abs(threshold)
		if (state.direction == 1 && value <= rearmPoint) || (state.direction == -1 && value >= rearmPoint) {
			state.armed = true
		}
	}
	state.prevValue = value
	e.mu.Unlock()

	if !fire {
		return nil, false
	}

	instance := &domain.AlertInstance{
		ConfigID:        cfg.ID,
		TriggeredAt:     point.Timestamp,
		ObservedValue:   value,
		ComparisonValue: threshold,
		Severity:        severityFor(overshoot(value, threshold), point.Confidence),
	}
	return e.dedupOrRecord(cfg, instance)
}

func (e *Engine) evaluatePercentageChange(ctx context.Context, cfg domain.AlertConfig, point domain.MetricPoint) (*domain.AlertInstance, bool) {
	windowStart := point.Timestamp.Add(-time.Duration(cfg.ComparisonPeriodDays) * 24 * time.Hour)
	history, err := e.Store.GetRange(ctx, point.Key(), time.Time{}, windowStart)
	if err != nil || len(history) == 0 {
		return nil, false // no baseline within the window: skip silently (spec §4.8)
	}
	baseline := history[len(history)-1].Value
	if baseline == 0 {
		return nil, false
	}

	delta := (point.Value - baseline) / baseline
	if math.Abs(delta) < cfg.ThresholdValue {
		return nil, false
	}

	instance := &domain.AlertInstance{
		ConfigID:        cfg.ID,
		TriggeredAt:     point.Timestamp,
		ObservedValue:   point.Value,
		ComparisonValue: baseline,
		Severity:        severityFor(math.Abs(delta)/cfg.ThresholdValue-1, point.Confidence),
	}
	return e.dedupOrRecord(cfg, instance)
}

// dedupOrRecord applies the sliding dedup window: the first firing within
// the window is returned for dispatch; subsequent firings update the
// existing instance's ObservedValue without re-notifying (spec §4.8, §8
// scenario 5).
func (e *Engine) dedupOrRecord(cfg domain.AlertConfig, instance *domain.AlertInstance) (*domain.AlertInstance, bool) {
	window := cfg.DedupWindow
	if window <= 0 {
		window = DefaultDedupWindow
	}
	key := instance.DedupKey(window)

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.instances[key]; ok {
		existing.ObservedValue = instance.ObservedValue
		return existing, false
	}
	instance.ID = uuid.New()
	e.instances[key] = instance
	return instance, true
}

func (e *Engine) dispatch(ctx context.Context, cfg domain.AlertConfig, instance *domain.AlertInstance, confidence float64) {
	env := Envelope{
		ID:            instance.ID.String(),
		TriggeredAt:   instance.TriggeredAt,
		DataSource:    string(cfg.DataSource),
		MetricName:    cfg.MetricName,
		ObservedValue: instance.ObservedValue,
		BaselineValue: instance.ComparisonValue,
		Threshold:     cfg.ThresholdValue,
		Severity:      string(instance.Severity),
		Message:       fmt.Sprintf("%s/%s %s alert: observed %g vs %g", cfg.DataSource, cfg.MetricName, cfg.ThresholdType, instance.ObservedValue, instance.ComparisonValue),
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, channel := range cfg.Channels {
		if suppressedFromChannel(channel, confidence) {
			obsmetrics.ObserveAlertDispatch(channel, "suppressed")
			continue
		}
		sender, ok := e.Channels[channel]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(channel domain.Channel, sender ChannelSender) {
			defer wg.Done()
			_, _, err := retry.Do(ctx, e.Log, e.DispatchPolicy, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, sender.Send(ctx, env)
			})
			attempt := domain.DeliveryAttempt{
				Channel:     channel,
				Success:     err == nil,
				AttemptedAt: e.Clock(),
			}
			if err != nil {
				attempt.Err = err.Error()
				obsmetrics.ObserveAlertDispatch(channel, "failed")
				if e.Log != nil {
					e.Log.Warnw("channel dispatch failed", "channel", channel, "config_id", cfg.ID, "error", err)
				}
			} else {
				obsmetrics.ObserveAlertDispatch(channel, "delivered")
			}
			mu.Lock()
			instance.DeliveryAttempts = append(instance.DeliveryAttempts, attempt)
			mu.Unlock()
		}(channel, sender)
	}
	wg.Wait()
}

// suppressedFromChannel implements spec §4.8: alerts below confidence 0.5
// are downgraded to informational and suppressed from sms and telegram.
func suppressedFromChannel(channel domain.Channel, confidence float64) bool {
	if confidence >= 0.5 {
		return false
	}
	return channel == domain.ChannelSMS || channel == domain.ChannelTelegram
}

func severityFor(overshootRatio, confidence float64) domain.Severity {
	if confidence < 0.5 {
		return domain.SeverityInfo
	}
	if overshootRatio >= 0.2 {
		return domain.SeverityCritical
	}
	return domain.SeverityWarning
}

func overshoot(value, threshold float64) float64 {
	if threshold == 0 {
		return 0
	}
	return math.Abs(value-threshold) / math.Abs(threshold)
}
