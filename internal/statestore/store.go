// Package statestore implements the durable, append-ordered State Store
// (spec §4.5): one Store interface with two concrete bindings — FileStore
// for local dev and DynamoStore for production — sharing the row shape
// spec §6 describes (partition key "{dataSource}#{metricName}", sort key an
// RFC-3339 UTC timestamp).
package statestore

import (
	"context"
	"time"

	"github.com/turphai/boomwatch/internal/domain"
)

// DefaultTTL is how long a point survives before it ages out of normal
// reads (spec §4.5); GetLastKnownGood bypasses this to preserve a single
// fallback anchor.
const DefaultTTL = 730 * 24 * time.Hour

// Store is the pluggable State Store contract.
type Store interface {
	// Put is idempotent by checksum within a (key, day) window: writing the
	// same checksum again for the same calendar day is a no-op.
	Put(ctx context.Context, point domain.MetricPoint) error
	GetLatest(ctx context.Context, key domain.Key) (*domain.MetricPoint, error)
	GetRange(ctx context.Context, key domain.Key, from, to time.Time) ([]domain.MetricPoint, error)
	// GetLastKnownGood returns the most recent point with
	// ValidationStatus=valid, bypassing normal TTL.
	GetLastKnownGood(ctx context.Context, key domain.Key) (*domain.MetricPoint, error)
}
