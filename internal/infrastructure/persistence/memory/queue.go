package memory

import (
	"context"
	"sync"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
)

type waiting struct {
	userID   int64
	joinedAt time.Time
}

// Queue is a single-process matchmaking queue. Entries older than ttl are
// dropped before every operation.
type Queue struct {
	mu      sync.Mutex
	entries []waiting
	ttl     time.Duration
	now     func() time.Time
}

var _ match.Queue = (*Queue)(nil)

// NewQueue creates an empty queue. ttl <= 0 disables expiry.
func NewQueue(ttl time.Duration, now func() time.Time) *Queue {
	if now == nil {
		now = time.Now
	}
	return &Queue{ttl: ttl, now: now}
}

// PairOrEnqueue pops the longest-waiting other player or appends userID.
func (q *Queue) PairOrEnqueue(_ context.Context, userID int64) (int64, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune()

	if q.index(userID) >= 0 {
		return 0, false, nil
	}
	if len(q.entries) > 0 {
		opp := q.entries[0].userID
		q.entries = q.entries[1:]
		return opp, true, nil
	}
	q.entries = append(q.entries, waiting{userID: userID, joinedAt: q.now()})
	return 0, false, nil
}

// Enqueue puts userID at the head unless it is already waiting.
func (q *Queue) Enqueue(_ context.Context, userID int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune()

	if q.index(userID) >= 0 {
		return nil
	}
	q.entries = append([]waiting{{userID: userID, joinedAt: q.now()}}, q.entries...)
	return nil
}

// Remove drops userID from the queue.
func (q *Queue) Remove(_ context.Context, userID int64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	i := q.index(userID)
	if i < 0 {
		return false, nil
	}
	q.entries = append(q.entries[:i], q.entries[i+1:]...)
	return true, nil
}

// Size returns the number of waiting players.
func (q *Queue) Size(_ context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.prune()
	return len(q.entries), nil
}

func (q *Queue) index(userID int64) int {
	for i, w := range q.entries {
		if w.userID == userID {
			return i
		}
	}
	return -1
}

func (q *Queue) prune() {
	if q.ttl <= 0 {
		return
	}
	cutoff := q.now().Add(-q.ttl)
	kept := q.entries[:0]
	for _, w := range q.entries {
		if w.joinedAt.After(cutoff) {
			kept = append(kept, w)
		}
	}
	q.entries = kept
}
