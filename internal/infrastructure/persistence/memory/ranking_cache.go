package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
)

type cached struct {
	entries []*leaderboard.Entry
	expires time.Time
}

// RankingCache is an in-process leaderboard.RankingCache with a fixed TTL.
type RankingCache struct {
	mu    sync.RWMutex
	items map[string]cached
	ttl   time.Duration
	now   func() time.Time
}

var _ leaderboard.RankingCache = (*RankingCache)(nil)

// NewRankingCache creates a cache whose entries live for ttl.
func NewRankingCache(ttl time.Duration, now func() time.Time) *RankingCache {
	if now == nil {
		now = time.Now
	}
	return &RankingCache{items: make(map[string]cached), ttl: ttl, now: now}
}

// Get returns copies of the cached entries.
func (c *RankingCache) Get(_ context.Context, key string) ([]*leaderboard.Entry, bool) {
	c.mu.RLock()
	item, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || (c.ttl > 0 && !c.now().Before(item.expires)) {
		return nil, false
	}
	return cloneEntries(item.entries), true
}

// Set stores copies of entries under key.
func (c *RankingCache) Set(_ context.Context, key string, entries []*leaderboard.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = cached{entries: cloneEntries(entries), expires: c.now().Add(c.ttl)}
	return nil
}

// InvalidateSeason drops every key of the season.
func (c *RankingCache) InvalidateSeason(_ context.Context, seasonID int64) error {
	prefix := leaderboard.CacheSeasonPrefix(seasonID)
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.items {
		if strings.HasPrefix(k, prefix) {
			delete(c.items, k)
		}
	}
	return nil
}

func cloneEntries(in []*leaderboard.Entry) []*leaderboard.Entry {
	out := make([]*leaderboard.Entry, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}
