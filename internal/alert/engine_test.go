package alert

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/turphai/boomwatch/internal/domain"
	"github.com/turphai/boomwatch/internal/statestore"
)

type fakeConfigSource struct {
	configs []domain.AlertConfig
}

func (f *fakeConfigSource) ListEnabled(ctx context.Context, key domain.Key) ([]domain.AlertConfig, error) {
	var out []domain.AlertConfig
	for _, c := range f.configs {
		if c.Enabled && c.DataSource == key.DataSource && c.MetricName == key.MetricName {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeSender struct {
	sent []Envelope
	err  error
}

func (f *fakeSender) Send(ctx context.Context, env Envelope) error {
	f.sent = append(f.sent, env)
	return f.err
}

func newTestEngine(t *testing.T, configs []domain.AlertConfig, channels map[domain.Channel]ChannelSender) (*Engine, *statestore.FileStore) {
	t.Helper()
	store, err := statestore.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("filestore: %v", err)
	}
	e := New(&fakeConfigSource{configs: configs}, store, zap.NewNop().Sugar(), channels)
	e.DispatchPolicy.MaxAttempts = 1
	return e, store
}

func testKeyBDC() domain.Key {
	return domain.Key{DataSource: domain.SourceBDCDiscount, MetricName: "daily_discount"}
}

func TestAbsoluteThresholdFiresOnCrossing(t *testing.T) {
	sender := &fakeSender{}
	cfg := domain.AlertConfig{
		ID:             uuid.New(),
		DataSource:     domain.SourceBDCDiscount,
		MetricName:     "daily_discount",
		ThresholdType:  domain.ThresholdAbsolute,
		ThresholdValue: 0.10,
		Enabled:        true,
		Channels:       []domain.Channel{domain.ChannelSlack},
	}
	e, _ := newTestEngine(t, []domain.AlertConfig{cfg}, map[domain.Channel]ChannelSender{domain.ChannelSlack: sender})

	now := time.Now().UTC()
	below := domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.09, Timestamp: now, Confidence: 1.0}
	fired, err := e.Evaluate(context.Background(), below)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(fired) != 0 {
		t.Fatalf("expected no firing on first observation below threshold, got %d", len(fired))
	}

	crossing := domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.11, Timestamp: now.Add(time.Hour), Confidence: 1.0}
	fired, err = e.Evaluate(context.Background(), crossing)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("expected exactly one AlertInstance on crossing, got %d", len(fired))
	}
	if fired[0].ObservedValue != 0.11 {
		t.Fatalf("expected observed value 0.11, got %v", fired[0].ObservedValue)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected dispatch to slack exactly once, got %d", len(sender.sent))
	}
}

func TestAbsoluteThresholdDoesNotRefireWithoutRearm(t *testing.T) {
	sender := &fakeSender{}
	cfg := domain.AlertConfig{
		ID:             uuid.New(),
		DataSource:     domain.SourceBDCDiscount,
		MetricName:     "daily_discount",
		ThresholdType:  domain.ThresholdAbsolute,
		ThresholdValue: 0.10,
		Enabled:        true,
		Channels:       []domain.Channel{domain.ChannelSlack},
		DedupWindow:    time.Millisecond, // dedup window elapses instantly so only hysteresis gates refiring
	}
	e, _ := newTestEngine(t, []domain.AlertConfig{cfg}, map[domain.Channel]ChannelSender{domain.ChannelSlack: sender})
	now := time.Now().UTC()

	e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.09, Timestamp: now, Confidence: 1.0})
	e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.11, Timestamp: now.Add(time.Hour), Confidence: 1.0})

	// Still above threshold but not far enough to rearm (needs to drop below
	// threshold - 20%*threshold = 0.08).
	fired, _ := e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.105, Timestamp: now.Add(2 * time.Hour), Confidence: 1.0})
	if len(fired) != 0 {
		t.Fatalf("expected no refire without rearm, got %d", len(fired))
	}

	e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.07, Timestamp: now.Add(3 * time.Hour), Confidence: 1.0})
	fired, _ = e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.12, Timestamp: now.Add(4 * time.Hour), Confidence: 1.0})
	if len(fired) != 1 {
		t.Fatalf("expected a refire after the value rearmed below the hysteresis floor, got %d", len(fired))
	}
}

func TestDedupOnlyDispatchesFirstFiring(t *testing.T) {
	sender := &fakeSender{}
	cfg := domain.AlertConfig{
		ID:             uuid.New(),
		DataSource:     domain.SourceBDCDiscount,
		MetricName:     "daily_discount",
		ThresholdType:  domain.ThresholdAbsolute,
		ThresholdValue: 0.10,
		Enabled:        true,
		Channels:       []domain.Channel{domain.ChannelSlack},
		DedupWindow:    6 * time.Hour,
	}
	e, _ := newTestEngine(t, []domain.AlertConfig{cfg}, map[domain.Channel]ChannelSender{domain.ChannelSlack: sender})
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC) // every firing below falls in the 06:00-12:00 window

	e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.09, Timestamp: now, Confidence: 1.0})
	first, _ := e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.11, Timestamp: now.Add(time.Minute), Confidence: 1.0})
	if len(first) != 1 {
		t.Fatalf("expected first firing, got %d", len(first))
	}
	firstID := first[0].ID
	if firstID == uuid.Nil {
		t.Fatal("expected a non-nil instance id")
	}

	// Rearm below the hysteresis floor (0.08), then cross again 10 minutes
	// after the first firing: same dedup window, so the first instance is
	// reused with the new observed value and nothing is dispatched.
	e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.07, Timestamp: now.Add(5 * time.Minute), Confidence: 1.0})
	second, _ := e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.12, Timestamp: now.Add(11 * time.Minute), Confidence: 1.0})
	if len(second) != 1 || second[0].ID != firstID {
		t.Fatalf("expected the second firing to reuse instance %v, got %v", firstID, second)
	}
	if second[0].ObservedValue != 0.12 {
		t.Fatalf("expected the reused instance's observed value to be updated to 0.12, got %v", second[0].ObservedValue)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one dispatch, got %d", len(sender.sent))
	}
}

func TestPercentageChangeSkipsWithoutBaseline(t *testing.T) {
	cfg := domain.AlertConfig{
		ID:                   uuid.New(),
		DataSource:           domain.SourceBondIssuance,
		MetricName:           "weekly_total",
		ThresholdType:        domain.ThresholdPercentageChange,
		ThresholdValue:       0.15,
		ComparisonPeriodDays: 7,
		Enabled:              true,
		Channels:             []domain.Channel{domain.ChannelWebhook},
	}
	e, _ := newTestEngine(t, []domain.AlertConfig{cfg}, map[domain.Channel]ChannelSender{})
	now := time.Now().UTC()
	fired, err := e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 10_000_000_000, Timestamp: now, Confidence: 1.0})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(fired) != 0 {
		t.Fatalf("expected silent skip with no baseline in window, got %d firings", len(fired))
	}
}

func TestPercentageChangeFiresOnBigDelta(t *testing.T) {
	cfg := domain.AlertConfig{
		ID:                   uuid.New(),
		DataSource:           domain.SourceBondIssuance,
		MetricName:           "weekly_total",
		ThresholdType:        domain.ThresholdPercentageChange,
		ThresholdValue:       0.15,
		ComparisonPeriodDays: 7,
		Enabled:              true,
		Channels:             []domain.Channel{domain.ChannelWebhook},
	}
	sender := &fakeSender{}
	e, store := newTestEngine(t, []domain.AlertConfig{cfg}, map[domain.Channel]ChannelSender{domain.ChannelWebhook: sender})
	now := time.Now().UTC()

	store.Put(context.Background(), domain.MetricPoint{
		DataSource: cfg.DataSource, MetricName: cfg.MetricName,
		Value: 10_000_000_000, Timestamp: now.Add(-8 * 24 * time.Hour),
		ValidationStatus: domain.StatusValid, Checksum: "baseline",
	})

	fired, err := e.Evaluate(context.Background(), domain.MetricPoint{
		DataSource: cfg.DataSource, MetricName: cfg.MetricName,
		Value: 12_000_000_000, Timestamp: now, Confidence: 1.0,
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("expected one firing for a 20%% delta against a 15%% threshold, got %d", len(fired))
	}
}

func TestLowConfidenceSuppressesSmsAndTelegram(t *testing.T) {
	cfg := domain.AlertConfig{
		ID:             uuid.New(),
		DataSource:     domain.SourceBDCDiscount,
		MetricName:     "daily_discount",
		ThresholdType:  domain.ThresholdAbsolute,
		ThresholdValue: 0.10,
		Enabled:        true,
		Channels:       []domain.Channel{domain.ChannelSMS, domain.ChannelTelegram, domain.ChannelSlack},
	}
	smsSender := &fakeSender{}
	telegramSender := &fakeSender{}
	slackSender := &fakeSender{}
	e, _ := newTestEngine(t, []domain.AlertConfig{cfg}, map[domain.Channel]ChannelSender{
		domain.ChannelSMS:      smsSender,
		domain.ChannelTelegram: telegramSender,
		domain.ChannelSlack:    slackSender,
	})
	now := time.Now().UTC()

	e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.09, Timestamp: now, Confidence: 0.3})
	fired, _ := e.Evaluate(context.Background(), domain.MetricPoint{DataSource: cfg.DataSource, MetricName: cfg.MetricName, Value: 0.11, Timestamp: now.Add(time.Hour), Confidence: 0.3})
	if len(fired) != 1 {
		t.Fatalf("expected one firing, got %d", len(fired))
	}
	if fired[0].Severity != domain.SeverityInfo {
		t.Fatalf("expected informational severity for low confidence, got %v", fired[0].Severity)
	}
	if len(smsSender.sent) != 0 || len(telegramSender.sent) != 0 {
		t.Fatalf("expected sms and telegram to be suppressed for confidence < 0.5")
	}
	if len(slackSender.sent) != 1 {
		t.Fatalf("expected slack to still receive the low-confidence alert")
	}
}
