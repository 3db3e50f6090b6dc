package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCHMAKING QUEUE
// Two sorted sets: KEYS[1] orders waiting players (lowest score is the head),
// KEYS[2] holds the time each player joined and drives expiry. Every script
// prunes expired players first, so pairing never hands out a stale entry.
// ══════════════════════════════════════════════════════════════════════════════

const pruneLua = `
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  local stale = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', tonumber(ARGV[2]) - ttl)
  for _, member in ipairs(stale) do
    redis.call('ZREM', KEYS[1], member)
    redis.call('ZREM', KEYS[2], member)
  end
end
`

// Returns {1, opponent} when paired, {0, ""} otherwise.
var pairOrEnqueueScript = redis.NewScript(pruneLua + `
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return {0, ''}
end
local head = redis.call('ZRANGE', KEYS[1], 0, 0)
if #head > 0 then
  redis.call('ZREM', KEYS[1], head[1])
  redis.call('ZREM', KEYS[2], head[1])
  return {1, head[1]}
end
local score = 0
local tail = redis.call('ZRANGE', KEYS[1], -1, -1, 'WITHSCORES')
if #tail > 0 then
  score = tonumber(tail[2]) + 1
end
redis.call('ZADD', KEYS[1], score, ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return {0, ''}
`)

var enqueueHeadScript = redis.NewScript(pruneLua + `
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
local score = 0
local head = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if #head > 0 then
  score = tonumber(head[2]) - 1
end
redis.call('ZADD', KEYS[1], score, ARGV[1])
redis.call('ZADD', KEYS[2], ARGV[2], ARGV[1])
return 1
`)

var sizeScript = redis.NewScript(pruneLua + `
return redis.call('ZCARD', KEYS[1])
`)

// MatchmakingQueue implements match.Queue on Redis.
type MatchmakingQueue struct {
	cache   *Cache
	key     string
	joinKey string
	ttl     time.Duration
	now     func() time.Time
}

var _ match.Queue = (*MatchmakingQueue)(nil)

// NewMatchmakingQueue creates a queue under key. Players waiting longer
// than ttl are dropped; ttl <= 0 keeps them forever.
func NewMatchmakingQueue(cache *Cache, key string, ttl time.Duration) *MatchmakingQueue {
	if key == "" {
		key = "pvp:queue"
	}
	return &MatchmakingQueue{
		cache:   cache,
		key:     cache.Key(key),
		joinKey: cache.Key(key + ":joined"),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (q *MatchmakingQueue) args(userID int64) []interface{} {
	return []interface{}{
		strconv.FormatInt(userID, 10),
		q.now().UnixMilli(),
		q.ttl.Milliseconds(),
	}
}

// PairOrEnqueue pops the head or appends userID, atomically.
func (q *MatchmakingQueue) PairOrEnqueue(ctx context.Context, userID int64) (int64, bool, error) {
	res, err := pairOrEnqueueScript.Run(ctx, q.cache.client, []string{q.key, q.joinKey}, q.args(userID)...).Slice()
	if err != nil {
		return 0, false, fmt.Errorf("queue pair: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("queue pair: unexpected reply %v", res)
	}

	paired, _ := res[0].(int64)
	if paired != 1 {
		return 0, false, nil
	}
	raw, _ := res[1].(string)
	opponent, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("queue pair: bad member %q: %w", raw, err)
	}
	return opponent, true, nil
}

// Enqueue puts userID at the head unless it is already waiting.
func (q *MatchmakingQueue) Enqueue(ctx context.Context, userID int64) error {
	if err := enqueueHeadScript.Run(ctx, q.cache.client, []string{q.key, q.joinKey}, q.args(userID)...).Err(); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Remove drops userID from the queue.
func (q *MatchmakingQueue) Remove(ctx context.Context, userID int64) (bool, error) {
	member := strconv.FormatInt(userID, 10)
	pipe := q.cache.client.TxPipeline()
	removed := pipe.ZRem(ctx, q.key, member)
	pipe.ZRem(ctx, q.joinKey, member)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("queue remove: %w", err)
	}
	return removed.Val() > 0, nil
}

// Size returns the number of waiting players.
func (q *MatchmakingQueue) Size(ctx context.Context) (int, error) {
	n, err := sizeScript.Run(ctx, q.cache.client, []string{q.key, q.joinKey}, "", q.now().UnixMilli(), q.ttl.Milliseconds()).Int()
	if err != nil {
		return 0, fmt.Errorf("queue size: %w", err)
	}
	return n, nil
}
