package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCORE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ScoreRepository implements leaderboard.ScoreRepository for PostgreSQL.
type ScoreRepository struct {
	q Querier
}

// NewScoreRepository creates a new ScoreRepository.
func NewScoreRepository(q Querier) *ScoreRepository {
	return &ScoreRepository{q: q}
}

var _ leaderboard.ScoreRepository = (*ScoreRepository)(nil)

// AddPoints upserts the (user, season, day) row additively.
func (r *ScoreRepository) AddPoints(ctx context.Context, userID, seasonID int64, date time.Time, points int) error {
	if points < 0 {
		return leaderboard.ErrInvalidPoints
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO scores (user_id, season_id, date, daily_score, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, season_id, date)
		DO UPDATE SET daily_score = scores.daily_score + EXCLUDED.daily_score, updated_at = NOW()
	`, userID, seasonID, timeutil.DayKey(date), points)
	if err != nil {
		return fmt.Errorf("add points: %w", err)
	}
	return nil
}

// DailyScores returns every player's score for one day of the season.
func (r *ScoreRepository) DailyScores(ctx context.Context, seasonID int64, date time.Time) ([]leaderboard.ScoreRow, error) {
	return r.rows(ctx, `
		SELECT s.user_id, COALESCE(u.username, ''), COALESCE(u.diploma, ''), s.daily_score
		FROM scores s
		LEFT JOIN users u ON u.id = s.user_id
		WHERE s.season_id = $1 AND s.date = $2
	`, seasonID, timeutil.DayKey(date))
}

// SeasonScores returns the season total of every player.
func (r *ScoreRepository) SeasonScores(ctx context.Context, seasonID int64) ([]leaderboard.ScoreRow, error) {
	return r.rows(ctx, `
		SELECT s.user_id, COALESCE(u.username, ''), COALESCE(u.diploma, ''), SUM(s.daily_score)::int
		FROM scores s
		LEFT JOIN users u ON u.id = s.user_id
		WHERE s.season_id = $1
		GROUP BY s.user_id, u.username, u.diploma
	`, seasonID)
}

func (r *ScoreRepository) rows(ctx context.Context, sql string, args ...any) ([]leaderboard.ScoreRow, error) {
	rows, err := r.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var out []leaderboard.ScoreRow
	for rows.Next() {
		var row leaderboard.ScoreRow
		if err := rows.Scan(&row.UserID, &row.Username, &row.Diploma, &row.Score); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// History returns the player's daily rows, newest first.
func (r *ScoreRepository) History(ctx context.Context, userID, seasonID int64, limit int) ([]leaderboard.ScoreEntry, error) {
	rows, err := r.q.Query(ctx, `
		SELECT user_id, season_id, date, daily_score, updated_at
		FROM scores
		WHERE user_id = $1 AND season_id = $2
		ORDER BY date DESC
		LIMIT $3
	`, userID, seasonID, limit)
	if err != nil {
		return nil, fmt.Errorf("score history: %w", err)
	}
	defer rows.Close()

	var out []leaderboard.ScoreEntry
	for rows.Next() {
		var e leaderboard.ScoreEntry
		if err := rows.Scan(&e.UserID, &e.SeasonID, &e.Date, &e.DailyScore, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan score: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRepository implements leaderboard.SnapshotRepository.
type SnapshotRepository struct {
	conn *Connection
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(conn *Connection) *SnapshotRepository {
	return &SnapshotRepository{conn: conn}
}

var _ leaderboard.SnapshotRepository = (*SnapshotRepository)(nil)

// Save writes the snapshot header and its entries in one transaction.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *leaderboard.Snapshot) error {
	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO rank_snapshots (id, season_id, snapshot_at, participants, total_score)
			VALUES ($1, $2, $3, $4, $5)
		`, snapshot.ID, snapshot.SeasonID, snapshot.SnapshotAt, snapshot.Participants, snapshot.TotalScore)
		if err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if len(snapshot.Entries) == 0 {
			return nil
		}

		rows := make([][]any, 0, len(snapshot.Entries))
		for _, e := range snapshot.Entries {
			rows = append(rows, []any{snapshot.ID, e.UserID, int(e.Rank), e.Score})
		}
		_, err = tx.CopyFrom(ctx,
			pgx.Identifier{"rank_snapshot_entries"},
			[]string{"snapshot_id", "user_id", "rank", "score"},
			pgx.CopyFromRows(rows),
		)
		if err != nil {
			return fmt.Errorf("insert snapshot entries: %w", err)
		}
		return nil
	})
}

// Latest returns the most recent snapshot of the season.
func (r *SnapshotRepository) Latest(ctx context.Context, seasonID int64) (*leaderboard.Snapshot, error) {
	s := &leaderboard.Snapshot{}
	err := r.conn.QueryRow(ctx, `
		SELECT id, season_id, snapshot_at, participants, total_score
		FROM rank_snapshots
		WHERE season_id = $1
		ORDER BY snapshot_at DESC
		LIMIT 1
	`, seasonID).Scan(&s.ID, &s.SeasonID, &s.SnapshotAt, &s.Participants, &s.TotalScore)
	if IsNoRows(err) {
		return nil, shared.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}

	rows, err := r.conn.Query(ctx, `
		SELECT user_id, rank, score FROM rank_snapshot_entries
		WHERE snapshot_id = $1
		ORDER BY rank, user_id
	`, s.ID)
	if err != nil {
		return nil, fmt.Errorf("snapshot entries: %w", err)
	}
	defer rows.Close()

	s.Entries = make([]leaderboard.SnapshotEntry, 0, s.Participants)
	for rows.Next() {
		var e leaderboard.SnapshotEntry
		var rank int
		if err := rows.Scan(&e.UserID, &rank, &e.Score); err != nil {
			return nil, fmt.Errorf("scan snapshot entry: %w", err)
		}
		e.Rank = leaderboard.Rank(rank)
		s.Entries = append(s.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	s.RebuildIndex()
	return s, nil
}

// DeleteOlderThan removes snapshots taken before olderThan. Entries go with
// them through ON DELETE CASCADE.
func (r *SnapshotRepository) DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM rank_snapshots WHERE snapshot_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}
