// Package domain holds the data model shared by every component in the
// scraper execution and data-quality core: the MetricPoint record, the
// per-run result envelope, validation reports, cache entries, and the
// alert configuration/instance pair.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// DataSource enumerates the boom/bust indicator families the core collects.
type DataSource string

const (
	SourceBondIssuance DataSource = "bond_issuance"
	SourceBDCDiscount  DataSource = "bdc_discount"
	SourceCreditFund   DataSource = "credit_fund"
	SourceBankProvision DataSource = "bank_provision"
)

// Unit is the declared unit of a MetricPoint's value.
type Unit string

const (
	UnitCurrency Unit = "currency"
	UnitPercent  Unit = "percent"
	UnitRatio    Unit = "ratio"
	UnitCount    Unit = "count"
)

// ValidationStatus records how a MetricPoint was produced.
type ValidationStatus string

const (
	StatusValid    ValidationStatus = "valid"
	StatusDegraded ValidationStatus = "degraded"
	StatusRejected ValidationStatus = "rejected"
)

// Key identifies a (dataSource, metricName) series, the granularity at which
// leases, caching and state-store partitioning operate.
type Key struct {
	DataSource DataSource
	MetricName string
}

func (k Key) String() string { return string(k.DataSource) + "#" + k.MetricName }

// MetricPoint is the atomic, checksum-stamped record persisted by the State
// Store. A persisted point is never StatusRejected; rejected readings are
// returned to the runner as failures instead (spec §3 invariant).
type MetricPoint struct {
	DataSource       DataSource       `json:"data_source"`
	MetricName       string           `json:"metric_name"`
	Value            float64          `json:"value"`
	Composite        map[string]any   `json:"composite,omitempty"`
	Unit             Unit             `json:"unit"`
	Timestamp        time.Time        `json:"timestamp"`
	Confidence       float64          `json:"confidence"`
	Checksum         string           `json:"checksum"`
	AnomalyScore     float64          `json:"anomaly_score"`
	Metadata         map[string]any   `json:"metadata,omitempty"`
	SourceFlags      []string         `json:"source_flags"`
	ValidationStatus ValidationStatus `json:"validation_status"`
}

func (p MetricPoint) Key() Key { return Key{DataSource: p.DataSource, MetricName: p.MetricName} }

// ChecksumPayload is the exact shape canonicalized and hashed to produce a
// MetricPoint's checksum: value, composite and metadata only, never the derived fields
// (confidence, anomaly score, validation status) so that re-validating an
// unchanged reading reproduces the same digest.
type ChecksumPayload struct {
	Value     float64        `json:"value"`
	Composite map[string]any `json:"composite,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ScraperResult is a runner's output for one adapter invocation.
type ScraperResult struct {
	Success           bool
	Skipped           bool // lease already held; run did not start (spec §4.7 step 1, §4.9 "overlap-skipped")
	MetricPoint       *MetricPoint
	Err               error
	ExecutionDuration time.Duration
	RetryCount        int
	UsedFallback      bool
}

// ValidationReport is produced by the Data Validator and lives only within
// one runner invocation.
type ValidationReport struct {
	Valid        bool
	Confidence   float64
	AnomalyScore float64
	Errors       []string
	Warnings     []string
	Checksum     string
}

// CacheEntry is one key's cached payload with its write time and TTL.
type CacheEntry struct {
	Key       string
	Payload   []byte
	WrittenAt time.Time
	TTL       time.Duration
}

func (e CacheEntry) Expired(now time.Time) bool {
	return now.After(e.WrittenAt.Add(e.TTL))
}

// ThresholdType is the evaluation rule an AlertConfig applies.
type ThresholdType string

const (
	ThresholdAbsolute          ThresholdType = "absolute"
	ThresholdPercentageChange  ThresholdType = "percentage_change"
)

// Channel is a notification delivery target.
type Channel string

const (
	ChannelEmail     Channel = "email"
	ChannelSlack     Channel = "slack"
	ChannelTelegram  Channel = "telegram"
	ChannelSMS       Channel = "sms"
	ChannelWebhook   Channel = "webhook"
	ChannelDashboard Channel = "dashboard"
)

// AlertConfig is a per-user rule, created by the dashboard API and read-only
// to the core. ComparisonPeriodDays must be >= 1 when ThresholdType is
// ThresholdPercentageChange.
type AlertConfig struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              string        `json:"user_id"`
	DataSource          DataSource    `json:"data_source"`
	MetricName          string        `json:"metric_name"`
	ThresholdType       ThresholdType `json:"threshold_type"`
	ThresholdValue      float64       `json:"threshold_value"`
	ComparisonPeriodDays int          `json:"comparison_period_days"`
	Enabled             bool          `json:"enabled"`
	Channels            []Channel     `json:"channels"`
	DedupWindow         time.Duration `json:"dedup_window"`
}

func (c AlertConfig) Key() Key { return Key{DataSource: c.DataSource, MetricName: c.MetricName} }

func (c AlertConfig) Validate() error {
	if c.ThresholdType == ThresholdPercentageChange && c.ComparisonPeriodDays < 1 {
		return errInvalidComparisonWindow
	}
	return nil
}

// DeliveryAttempt records the outcome of dispatching one AlertInstance on
// one channel.
type DeliveryAttempt struct {
	Channel   Channel
	Success   bool
	Err       string
	AttemptedAt time.Time
}

// Severity classifies how urgent a firing AlertInstance is.
type Severity string

const (
	SeverityInfo     Severity = "informational"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// AlertInstance is created by the Alert Engine when a rule fires.
type AlertInstance struct {
	ID               uuid.UUID         `json:"id"`
	ConfigID         uuid.UUID         `json:"config_id"`
	TriggeredAt      time.Time         `json:"triggered_at"`
	ObservedValue    float64           `json:"observed_value"`
	ComparisonValue  float64           `json:"comparison_value"`
	Severity         Severity          `json:"severity"`
	DeliveryAttempts []DeliveryAttempt `json:"delivery_attempts"`
}

// DedupKey is (configID, triggeredAt truncated to the config's dedup window).
func (a AlertInstance) DedupKey(window time.Duration) string {
	if window <= 0 {
		window = 6 * time.Hour
	}
	truncated := a.TriggeredAt.Truncate(window)
	return a.ConfigID.String() + "@" + truncated.Format(time.RFC3339)
}
