package memory

import (
	"context"
	"sort"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/rating"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// RatingRepository implements rating.Repository.
type RatingRepository struct {
	v view
}

// Get returns a copy of the user's record.
func (r *RatingRepository) Get(_ context.Context, userID int64) (*rating.Record, error) {
	var out *rating.Record
	err := r.v.with(func(st *state) error {
		rec, ok := st.ratings[userID]
		if !ok {
			return shared.ErrRatingNotFound
		}
		c := *rec
		out = &c
		return nil
	})
	return out, err
}

// LockPair creates missing records. The store mutex is the lock.
func (r *RatingRepository) LockPair(_ context.Context, a, b int64) (*rating.Record, *rating.Record, error) {
	var ra, rb rating.Record
	err := r.v.with(func(st *state) error {
		ra = *r.ensure(st, a)
		rb = *r.ensure(st, b)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &ra, &rb, nil
}

// Apply adds delta (floored at 0) and bumps the outcome counter.
func (r *RatingRepository) Apply(_ context.Context, userID int64, delta float64, o rating.Outcome, at time.Time) error {
	return r.v.with(func(st *state) error {
		r.ensure(st, userID).Apply(delta, o, at)
		return nil
	})
}

// Top returns records by rating, highest first.
func (r *RatingRepository) Top(_ context.Context, limit int) ([]*rating.Record, error) {
	var out []*rating.Record
	err := r.v.with(func(st *state) error {
		for _, rec := range st.ratings {
			c := *rec
			out = append(out, &c)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].UserID < out[j].UserID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RatingRepository) ensure(st *state, userID int64) *rating.Record {
	rec, ok := st.ratings[userID]
	if !ok {
		rec = rating.NewRecord(userID)
		rec.Rating = r.v.s.initialRating
		rec.UpdatedAt = r.v.s.now()
		st.ratings[userID] = rec
	}
	return rec
}
