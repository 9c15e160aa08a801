// Package adapter defines the contract every indicator implementation
// satisfies (spec §4.6). The core depends only on this interface; the
// bondissuance/bdcdiscount/creditfund/bankprovision subpackages are
// illustrative, peripheral implementations kept outside the core proper.
package adapter

import (
	"context"
	"time"

	"github.com/turphai/boomwatch/internal/domain"
)

// RawReading is what a source adapter hands back before validation: a
// scalar or composite value plus whatever metadata the adapter extracted
// (contributing tickers, filing accession IDs, fallback flags).
type RawReading struct {
	Value     float64
	Composite map[string]any
	Metadata  map[string]any
	FetchedAt time.Time
}

// FieldSchema describes one required field of a RawReading for the Data
// Validator's schema check.
type FieldSchema struct {
	Name     string
	Required bool
	Min, Max float64
	HasRange bool
}

// Schema is the structural contract a RawReading must satisfy.
type Schema struct {
	Fields            []FieldSchema
	CompositeCardinality int // 0 means "not composite"
}

// Adapter is the contract every indicator implementation exposes. Adapters
// are pure consumers of Context: they never touch the StateStore, Cache or
// Validator directly (spec §4.6).
type Adapter interface {
	Identity() (dataSource domain.DataSource, metricName string, unit domain.Unit)
	Fetch(ctx context.Context) (RawReading, error)
	Schema() Schema
	SecondarySources(ctx context.Context) []RawReading
	Fallback(ctx context.Context) (RawReading, bool)
	// PreferredCacheTTL is how long the runner should cache a successful
	// reading for this adapter's fallback path.
	PreferredCacheTTL() time.Duration
	// SourceFlag names the collaborator a primary fetch attributes to (e.g.
	// "sec_edgar"), stamped into a persisted MetricPoint's SourceFlags.
	SourceFlag() string
	// FallbackSourceFlag names the collaborator the fallback path attributes
	// to (e.g. "yahoo_finance_fallback"), appended to SourceFlags only when
	// the runner actually used the fallback.
	FallbackSourceFlag() string
}
