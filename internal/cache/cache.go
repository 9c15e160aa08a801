// Package cache implements the time-bounded key->blob store used for
// fallback reads when an adapter's primary fetch and fallback both fail
// (spec §4.2). Two bindings exist: an in-process MemoryCache for dev/tests,
// and a RedisCache for deployed environments.
package cache

import (
	"context"
	"time"
)

// Store is the Cache Store contract. get returns (payload, age, true) on a
// hit within TTL; getStale ignores TTL but never returns an entry older
// than the hard bound (default 7 days).
type Store interface {
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) (value []byte, age time.Duration, hit bool, err error)
	GetStale(ctx context.Context, key string) (value []byte, hit bool, err error)
}

// DefaultStaleCeiling is the hard bound getStale respects regardless of the
// entry's own TTL (spec §4.2).
const DefaultStaleCeiling = 7 * 24 * time.Hour
