package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/studyplan/studyplan-pvp/internal/domain/rating"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATING REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// RatingRepository implements rating.Repository for PostgreSQL.
type RatingRepository struct {
	q             Querier
	initialRating float64
}

// NewRatingRepository creates a repository. Missing records start at
// initialRating.
func NewRatingRepository(q Querier, initialRating float64) *RatingRepository {
	if initialRating <= 0 {
		initialRating = rating.DefaultRating
	}
	return &RatingRepository{q: q, initialRating: initialRating}
}

var _ rating.Repository = (*RatingRepository)(nil)

const ratingColumns = `user_id, rating, wins, losses, draws, total_matches, updated_at`

// Get returns the record or shared.ErrRatingNotFound.
func (r *RatingRepository) Get(ctx context.Context, userID int64) (*rating.Record, error) {
	rec, err := scanRecord(r.q.QueryRow(ctx, `SELECT `+ratingColumns+` FROM pvp_stats WHERE user_id = $1`, userID))
	if IsNoRows(err) {
		return nil, shared.ErrRatingNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rating: %w", err)
	}
	return rec, nil
}

// LockPair inserts missing records and takes row locks in ascending
// user_id order. Must run inside a transaction.
func (r *RatingRepository) LockPair(ctx context.Context, a, b int64) (*rating.Record, *rating.Record, error) {
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO pvp_stats (user_id, rating) VALUES ($1, $3), ($2, $3)
		ON CONFLICT (user_id) DO NOTHING
	`, lo, hi, r.initialRating)
	if err != nil {
		return nil, nil, fmt.Errorf("ensure ratings: %w", err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT `+ratingColumns+` FROM pvp_stats
		WHERE user_id IN ($1, $2)
		ORDER BY user_id
		FOR UPDATE
	`, lo, hi)
	if err != nil {
		return nil, nil, fmt.Errorf("lock ratings: %w", err)
	}
	defer rows.Close()

	byID := make(map[int64]*rating.Record, 2)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, nil, fmt.Errorf("scan rating: %w", err)
		}
		byID[rec.UserID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("lock ratings: %w", err)
	}

	ra, rb := byID[a], byID[b]
	if ra == nil || rb == nil {
		return nil, nil, shared.ErrRatingNotFound
	}
	return ra, rb, nil
}

// Apply adds delta with the zero floor in SQL and bumps one counter.
func (r *RatingRepository) Apply(ctx context.Context, userID int64, delta float64, o rating.Outcome, at time.Time) error {
	var win, loss, draw int
	switch o {
	case rating.OutcomeWin:
		win = 1
	case rating.OutcomeLoss:
		loss = 1
	default:
		draw = 1
	}

	_, err := r.q.Exec(ctx, `
		INSERT INTO pvp_stats (user_id, rating, wins, losses, draws, total_matches, updated_at)
		VALUES ($1, GREATEST(0, $2::float8 + $3::float8), $4, $5, $6, 1, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			rating = GREATEST(0, pvp_stats.rating + $3::float8),
			wins = pvp_stats.wins + EXCLUDED.wins,
			losses = pvp_stats.losses + EXCLUDED.losses,
			draws = pvp_stats.draws + EXCLUDED.draws,
			total_matches = pvp_stats.total_matches + 1,
			updated_at = EXCLUDED.updated_at
	`, userID, r.initialRating, delta, win, loss, draw, at)
	if err != nil {
		return fmt.Errorf("apply rating: %w", err)
	}
	return nil
}

// Top returns the highest rated records.
func (r *RatingRepository) Top(ctx context.Context, limit int) ([]*rating.Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+ratingColumns+` FROM pvp_stats
		ORDER BY rating DESC, user_id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("top ratings: %w", err)
	}
	defer rows.Close()

	var out []*rating.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rating: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*rating.Record, error) {
	var rec rating.Record
	err := row.Scan(&rec.UserID, &rec.Rating, &rec.Wins, &rec.Losses, &rec.Draws, &rec.TotalMatches, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
