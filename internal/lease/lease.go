// Package lease implements the per-(dataSource, metricName) mutual-exclusion
// token the Scraper Runner and Scheduler share to guarantee at most one
// active run per metric (spec §4.7, §4.9, §5). It is deliberately the
// smallest possible abstraction: a process-wide map of held keys, since the
// exclusion only needs to hold for the lifetime of one process (the
// "Ad-hoc threading" re-architecture note in spec §9 calls for a single
// scheduling abstraction, not a distributed lock service).
package lease

import (
	"sync"
	"time"

	"github.com/turphai/boomwatch/internal/domain"
)

// Manager hands out short-lived exclusion tokens keyed by domain.Key.
type Manager struct {
	mu      sync.Mutex
	held    map[domain.Key]time.Time // key -> expiry
	maxHold time.Duration
	now     func() time.Time
}

// DefaultMaxHold bounds how long a lease can be held before it is considered
// abandoned (e.g. the holder crashed mid-run) and can be reacquired. It is
// deliberately generous relative to the spec's per-run timeout (5min
// default, §5) so a legitimately slow run is never preempted.
const DefaultMaxHold = 15 * time.Minute

func NewManager() *Manager {
	return &Manager{
		held:    make(map[domain.Key]time.Time),
		maxHold: DefaultMaxHold,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Token releases the lease it was handed when the holder's run completes.
type Token struct {
	key domain.Key
	mgr *Manager
}

func (t Token) Release() {
	t.mgr.mu.Lock()
	defer t.mgr.mu.Unlock()
	delete(t.mgr.held, t.key)
}

// Acquire returns (token, true) if no other run holds key's lease, or
// (zero, false) if one does — the caller should record the tick as
// "overlap-skipped" and return without error.
func (m *Manager) Acquire(key domain.Key) (Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expiry, ok := m.held[key]; ok && now.Before(expiry) {
		return Token{}, false
	}
	m.held[key] = now.Add(m.maxHold)
	return Token{key: key, mgr: m}, true
}

// Held reports whether key is currently leased, for diagnostics/metrics.
func (m *Manager) Held(key domain.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	expiry, ok := m.held[key]
	return ok && m.now().Before(expiry)
}
