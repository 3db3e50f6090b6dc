package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
)

// Store groups the repositories over one connection pool and implements
// match.UnitOfWork.
type Store struct {
	conn          *Connection
	initialRating float64
}

// NewStore creates a new Store.
func NewStore(conn *Connection, initialRating float64) *Store {
	return &Store{conn: conn, initialRating: initialRating}
}

var _ match.UnitOfWork = (*Store)(nil)

// Matches returns the match repository.
func (s *Store) Matches() *MatchRepository { return NewMatchRepository(s.conn) }

// Ratings returns the rating repository.
func (s *Store) Ratings() *RatingRepository { return NewRatingRepository(s.conn, s.initialRating) }

// Scores returns the score repository.
func (s *Store) Scores() *ScoreRepository { return NewScoreRepository(s.conn) }

// Snapshots returns the snapshot repository.
func (s *Store) Snapshots() *SnapshotRepository { return NewSnapshotRepository(s.conn) }

// Catalog returns the collaborator reader.
func (s *Store) Catalog() *Catalog { return NewCatalog(s.conn) }

// Do runs fn in a READ COMMITTED transaction. Conditional updates re-check
// their WHERE clause after waiting on a row lock, which is all the match
// transition needs.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx match.TxRepositories) error) error {
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, match.TxRepositories{
			Matches: NewMatchRepository(tx),
			Ratings: NewRatingRepository(tx, s.initialRating),
			Scores:  NewScoreRepository(tx),
		})
	})
}
