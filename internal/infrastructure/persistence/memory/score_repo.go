package memory

import (
	"context"
	"sort"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORES
// ══════════════════════════════════════════════════════════════════════════════

// ScoreRepository implements leaderboard.ScoreRepository.
type ScoreRepository struct {
	v view
}

// AddPoints adds points to the (user, season, day) row.
func (r *ScoreRepository) AddPoints(_ context.Context, userID, seasonID int64, date time.Time, points int) error {
	if points < 0 {
		return leaderboard.ErrInvalidPoints
	}
	day := timeutil.DayKey(date)
	return r.v.with(func(st *state) error {
		k := scoreKey{userID: userID, seasonID: seasonID, date: day}
		e, ok := st.scores[k]
		if !ok {
			e = &leaderboard.ScoreEntry{UserID: userID, SeasonID: seasonID, Date: day}
			st.scores[k] = e
		}
		e.DailyScore += points
		e.UpdatedAt = r.v.s.now()
		return nil
	})
}

// DailyScores returns the season's scores for one day.
func (r *ScoreRepository) DailyScores(_ context.Context, seasonID int64, date time.Time) ([]leaderboard.ScoreRow, error) {
	day := timeutil.DayKey(date)
	var out []leaderboard.ScoreRow
	err := r.v.with(func(st *state) error {
		for k, e := range st.scores {
			if k.seasonID == seasonID && k.date.Equal(day) {
				out = append(out, row(st, k.userID, e.DailyScore))
			}
		}
		return nil
	})
	return out, err
}

// SeasonScores sums every day of the season per user.
func (r *ScoreRepository) SeasonScores(_ context.Context, seasonID int64) ([]leaderboard.ScoreRow, error) {
	var out []leaderboard.ScoreRow
	err := r.v.with(func(st *state) error {
		totals := make(map[int64]int)
		for k, e := range st.scores {
			if k.seasonID == seasonID {
				totals[k.userID] += e.DailyScore
			}
		}
		for uid, total := range totals {
			out = append(out, row(st, uid, total))
		}
		return nil
	})
	return out, err
}

// History returns the user's daily rows, newest first.
func (r *ScoreRepository) History(_ context.Context, userID, seasonID int64, limit int) ([]leaderboard.ScoreEntry, error) {
	var out []leaderboard.ScoreEntry
	err := r.v.with(func(st *state) error {
		for k, e := range st.scores {
			if k.userID == userID && k.seasonID == seasonID {
				out = append(out, *e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func row(st *state, userID int64, score int) leaderboard.ScoreRow {
	r := leaderboard.ScoreRow{UserID: userID, Score: score}
	if u, ok := st.users[userID]; ok {
		r.Username = u.Username
		r.Diploma = u.Diploma
	}
	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOTS
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements leaderboard.SnapshotRepository.
type SnapshotRepository struct {
	v view
}

// Save stores a copy of the snapshot.
func (r *SnapshotRepository) Save(_ context.Context, snapshot *leaderboard.Snapshot) error {
	c := *snapshot
	c.Entries = append([]leaderboard.SnapshotEntry(nil), snapshot.Entries...)
	c.RebuildIndex()
	return r.v.with(func(st *state) error {
		st.snapshots[c.SeasonID] = append(st.snapshots[c.SeasonID], &c)
		return nil
	})
}

// Latest returns the most recent snapshot of the season.
func (r *SnapshotRepository) Latest(_ context.Context, seasonID int64) (*leaderboard.Snapshot, error) {
	var out *leaderboard.Snapshot
	err := r.v.with(func(st *state) error {
		for _, s := range st.snapshots[seasonID] {
			if out == nil || s.SnapshotAt.After(out.SnapshotAt) {
				out = s
			}
		}
		if out == nil {
			return shared.ErrSnapshotNotFound
		}
		return nil
	})
	return out, err
}

// DeleteOlderThan drops snapshots taken before olderThan.
func (r *SnapshotRepository) DeleteOlderThan(_ context.Context, olderThan time.Time) (int64, error) {
	var n int64
	err := r.v.with(func(st *state) error {
		for season, list := range st.snapshots {
			kept := list[:0]
			for _, s := range list {
				if s.SnapshotAt.Before(olderThan) {
					n++
					continue
				}
				kept = append(kept, s)
			}
			st.snapshots[season] = kept
		}
		return nil
	})
	return n, err
}
