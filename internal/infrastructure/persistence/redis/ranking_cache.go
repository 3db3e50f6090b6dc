package redis

import (
	"context"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
)

// TTLRankingCache bounds how stale a cached ranking can get if an
// invalidation is lost.
const TTLRankingCache = 2 * time.Minute

// RankingCache implements leaderboard.RankingCache. Redis errors read as
// misses: the ranking is rebuilt from the score tables.
type RankingCache struct {
	cache *Cache
	ttl   time.Duration
}

var _ leaderboard.RankingCache = (*RankingCache)(nil)

// NewRankingCache creates a new RankingCache.
func NewRankingCache(cache *Cache, ttl time.Duration) *RankingCache {
	if ttl <= 0 {
		ttl = TTLRankingCache
	}
	return &RankingCache{cache: cache, ttl: ttl}
}

// Get returns the cached entries for key.
func (c *RankingCache) Get(ctx context.Context, key string) ([]*leaderboard.Entry, bool) {
	var entries []*leaderboard.Entry
	if err := c.cache.GetJSON(ctx, key, &entries); err != nil {
		return nil, false
	}
	return entries, true
}

// Set stores entries under key.
func (c *RankingCache) Set(ctx context.Context, key string, entries []*leaderboard.Entry) error {
	if entries == nil {
		entries = []*leaderboard.Entry{}
	}
	return c.cache.SetJSON(ctx, key, entries, c.ttl)
}

// InvalidateSeason deletes every cached ranking of the season.
func (c *RankingCache) InvalidateSeason(ctx context.Context, seasonID int64) error {
	_, err := c.cache.DeleteByPrefix(ctx, leaderboard.CacheSeasonPrefix(seasonID))
	return err
}
