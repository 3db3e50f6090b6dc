package rating

import (
	"context"
	"time"
)

// Repository stores PVP records.
type Repository interface {
	// Get returns the user's record, or shared.ErrRatingNotFound.
	Get(ctx context.Context, userID int64) (*Record, error)

	// LockPair makes sure both records exist and locks them for the rest of
	// the surrounding transaction. Records are locked in ascending user ID
	// order. Results are returned in argument order.
	LockPair(ctx context.Context, a, b int64) (*Record, *Record, error)

	// Apply atomically adds delta (floored at 0) and increments the
	// counter for the outcome.
	Apply(ctx context.Context, userID int64, delta float64, o Outcome, at time.Time) error

	// Top returns the highest rated records.
	Top(ctx context.Context, limit int) ([]*Record, error)
}
