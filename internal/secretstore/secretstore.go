// Package secretstore is a read-through cache in front of a pluggable
// secret backend (API keys for SEC/FRED, webhook URLs, SMTP credentials),
// cached client-side with a 10-minute TTL (spec §5).
package secretstore

import (
	"context"
	"sync"
	"time"

	"github.com/turphai/boomwatch/internal/apperrors"
)

// Backend fetches a secret by key from the underlying system (env vars,
// a vault, AWS Secrets Manager, ...). Implementations are swappable; the
// core only ever talks to Store.
type Backend interface {
	Fetch(ctx context.Context, key string) (string, error)
}

type cachedSecret struct {
	value     string
	fetchedAt time.Time
}

// Store is the read-through, TTL-cached secret lookup shared across the
// process (spec §5: "the secret store is read-through cached with 10-minute
// TTL").
type Store struct {
	backend Backend
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSecret
	now   func() time.Time
}

func New(backend Backend) *Store {
	return &Store{
		backend: backend,
		ttl:     10 * time.Minute,
		cache:   make(map[string]cachedSecret),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Get returns the secret for key, serving from cache when fresh and
// falling through to the backend otherwise.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	entry, ok := s.cache[key]
	s.mu.RUnlock()
	if ok && s.now().Sub(entry.fetchedAt) < s.ttl {
		return entry.value, nil
	}

	value, err := s.backend.Fetch(ctx, key)
	if err != nil {
		return "", apperrors.Wrapf(err, apperrors.KindAuthConfig, "secretstore", "fetch secret %q", key)
	}

	s.mu.Lock()
	s.cache[key] = cachedSecret{value: value, fetchedAt: s.now()}
	s.mu.Unlock()
	return value, nil
}

// Invalidate drops a cached secret, forcing the next Get to hit the backend.
func (s *Store) Invalidate(key string) {
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}
