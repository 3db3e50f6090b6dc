// Package rating implements the Elo rating engine and the per-user PVP
// record (rating plus win/loss/draw counters).
//
// Both players' deltas are always computed from their pre-match ratings and
// the zero floor is applied afterwards, so an unclamped update is zero-sum.
package rating

import (
	"math"
	"time"
)

const (
	// DefaultRating is assigned to users without a PVP record.
	DefaultRating = 1200.0

	// DefaultKFactor bounds the maximum rating change per match.
	DefaultKFactor = 32.0

	// MinRating is the floor applied after the delta.
	MinRating = 0.0
)

// Outcome is a match outcome from one player's perspective.
type Outcome string

const (
	OutcomeWin  Outcome = "WIN"
	OutcomeLoss Outcome = "LOSS"
	OutcomeDraw Outcome = "DRAW"
)

// Score returns the Elo actual score S.
func (o Outcome) Score() float64 {
	switch o {
	case OutcomeWin:
		return 1
	case OutcomeLoss:
		return 0
	default:
		return 0.5
	}
}

// Opposite returns the outcome of the other player.
func (o Outcome) Opposite() Outcome {
	switch o {
	case OutcomeWin:
		return OutcomeLoss
	case OutcomeLoss:
		return OutcomeWin
	default:
		return OutcomeDraw
	}
}

// Record is a user's PVP standing.
type Record struct {
	UserID       int64     `json:"user_id"`
	Rating       float64   `json:"rating"`
	Wins         int       `json:"wins"`
	Losses       int       `json:"losses"`
	Draws        int       `json:"draws"`
	TotalMatches int       `json:"total_matches"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// NewRecord returns the record of a user who has never played.
func NewRecord(userID int64) *Record {
	return &Record{UserID: userID, Rating: DefaultRating}
}

// WinRate returns wins / total matches, or 0 before the first match.
func (r *Record) WinRate() float64 {
	if r.TotalMatches == 0 {
		return 0
	}
	return float64(r.Wins) / float64(r.TotalMatches)
}

// Apply adds the delta (floored at MinRating) and bumps the counters.
func (r *Record) Apply(delta float64, o Outcome, at time.Time) {
	r.Rating = math.Max(MinRating, r.Rating+delta)
	switch o {
	case OutcomeWin:
		r.Wins++
	case OutcomeLoss:
		r.Losses++
	default:
		r.Draws++
	}
	r.TotalMatches++
	r.UpdatedAt = at
}

// Change describes one player's rating update.
type Change struct {
	UserID  int64   `json:"user_id"`
	Outcome Outcome `json:"outcome"`
	Before  float64 `json:"before"`
	Delta   float64 `json:"delta"`
	After   float64 `json:"after"`
}

// Engine computes Elo updates.
type Engine struct {
	K float64
}

// NewEngine creates an engine; k <= 0 falls back to DefaultKFactor.
func NewEngine(k float64) Engine {
	if k <= 0 {
		k = DefaultKFactor
	}
	return Engine{K: k}
}

// ExpectedScore returns E_A = 1 / (1 + 10^(-(ra-rb)/400)).
func ExpectedScore(ra, rb float64) float64 {
	return 1 / (1 + math.Pow(10, -(ra-rb)/400))
}

// Compute returns both players' changes for outcome oa of player A.
func (e Engine) Compute(a, b *Record, oa Outcome) (Change, Change) {
	ea := ExpectedScore(a.Rating, b.Rating)
	eb := 1 - ea

	ob := oa.Opposite()
	da := e.K * (oa.Score() - ea)
	db := e.K * (ob.Score() - eb)

	return Change{
			UserID:  a.UserID,
			Outcome: oa,
			Before:  a.Rating,
			Delta:   da,
			After:   math.Max(MinRating, a.Rating+da),
		}, Change{
			UserID:  b.UserID,
			Outcome: ob,
			Before:  b.Rating,
			Delta:   db,
			After:   math.Max(MinRating, b.Rating+db),
		}
}
