package cache

import (
	"sync"
	"time"
)

// DefaultJobTTL is the longest the job ledger goes without a network refresh.
const DefaultJobTTL = 15 * time.Minute

// JobGate decides whether a cycle should refetch job history. A refresh is due
// when none happened yet, when the TTL elapsed, or when forced by a status
// transition. A forced refresh stays due until one succeeds.
type JobGate struct {
	mu          sync.Mutex
	ttl         time.Duration
	lastRefresh time.Time
	pending     bool
}

func NewJobGate(ttl time.Duration) *JobGate {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &JobGate{ttl: ttl}
}

func (g *JobGate) Due(now time.Time, transition bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if transition {
		g.pending = true
	}
	if g.pending || g.lastRefresh.IsZero() {
		return true
	}
	return now.Sub(g.lastRefresh) >= g.ttl
}

// MarkRefreshed records a successful job refresh at the given time.
func (g *JobGate) MarkRefreshed(at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lastRefresh = at
	g.pending = false
}

func (g *JobGate) LastRefresh() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastRefresh
}
