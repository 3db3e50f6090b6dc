// Package memory is an in-process implementation of every storage port of
// the engine. It provides the same conditional-update primitives as the
// Postgres store under a single mutex and is used by tests and by
// single-instance development runs (DATABASE_URL unset).
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/rating"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/timeutil"
)

// User is a seeded collaborator row.
type User struct {
	ID       int64
	Username string
	Diploma  string
}

type scoreKey struct {
	userID   int64
	seasonID int64
	date     time.Time
}

type planKey struct {
	userID int64
	day    time.Time
}

type state struct {
	matches   map[string]*match.Match
	ratings   map[int64]*rating.Record
	scores    map[scoreKey]*leaderboard.ScoreEntry
	snapshots map[int64][]*leaderboard.Snapshot

	users    map[int64]*User
	seasons  map[int64]*shared.Season
	problems map[int64]*match.Problem
	plans    map[planKey]bool
}

func newState() *state {
	return &state{
		matches:   make(map[string]*match.Match),
		ratings:   make(map[int64]*rating.Record),
		scores:    make(map[scoreKey]*leaderboard.ScoreEntry),
		snapshots: make(map[int64][]*leaderboard.Snapshot),
		users:     make(map[int64]*User),
		seasons:   make(map[int64]*shared.Season),
		problems:  make(map[int64]*match.Problem),
		plans:     make(map[planKey]bool),
	}
}

// clone copies the mutable engine state. Collaborator tables are shared:
// transactions never write them.
func (s *state) clone() *state {
	c := &state{
		matches:   make(map[string]*match.Match, len(s.matches)),
		ratings:   make(map[int64]*rating.Record, len(s.ratings)),
		scores:    make(map[scoreKey]*leaderboard.ScoreEntry, len(s.scores)),
		snapshots: s.snapshots,
		users:     s.users,
		seasons:   s.seasons,
		problems:  s.problems,
		plans:     s.plans,
	}
	for k, m := range s.matches {
		c.matches[k] = m.Clone()
	}
	for k, r := range s.ratings {
		rc := *r
		c.ratings[k] = &rc
	}
	for k, e := range s.scores {
		ec := *e
		c.scores[k] = &ec
	}
	return c
}

// Options configures the store.
type Options struct {
	InitialRating float64
	Now           func() time.Time
}

// Store holds all data in memory.
type Store struct {
	mu   sync.Mutex
	data *state

	initialRating float64
	now           func() time.Time
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.InitialRating <= 0 {
		opts.InitialRating = rating.DefaultRating
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		data:          newState(),
		initialRating: opts.InitialRating,
		now:           opts.Now,
	}
}

// view runs fn against the state, taking the lock unless it is already
// held by an open transaction.
type view struct {
	s  *Store
	tx bool
}

func (v view) with(fn func(st *state) error) error {
	if !v.tx {
		v.s.mu.Lock()
		defer v.s.mu.Unlock()
	}
	return fn(v.s.data)
}

// Matches returns the match repository.
func (s *Store) Matches() match.Repository { return &MatchRepository{view{s: s}} }

// Ratings returns the rating repository.
func (s *Store) Ratings() rating.Repository { return &RatingRepository{view{s: s}} }

// Scores returns the score repository.
func (s *Store) Scores() leaderboard.ScoreRepository { return &ScoreRepository{view{s: s}} }

// Snapshots returns the snapshot repository.
func (s *Store) Snapshots() leaderboard.SnapshotRepository { return &SnapshotRepository{view{s: s}} }

// Catalog returns the read-only collaborators (problems, seasons, users,
// profiles).
func (s *Store) Catalog() *Catalog { return &Catalog{view{s: s}} }

// Do implements match.UnitOfWork. The whole store is locked for the
// duration of fn; an error restores the state from before the call.
func (s *Store) Do(ctx context.Context, fn func(ctx context.Context, tx match.TxRepositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	backup := s.data.clone()
	v := view{s: s, tx: true}
	err := fn(ctx, match.TxRepositories{
		Matches: &MatchRepository{v},
		Ratings: &RatingRepository{v},
		Scores:  &ScoreRepository{v},
	})
	if err != nil {
		s.data = backup
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// SEEDING
// ══════════════════════════════════════════════════════════════════════════════

// AddUser inserts or replaces a user.
func (s *Store) AddUser(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uc := u
	s.data.users[u.ID] = &uc
}

// AddSeason inserts or replaces a season.
func (s *Store) AddSeason(season shared.Season) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc := season
	s.data.seasons[season.ID] = &sc
}

// AddProblem inserts or replaces a problem.
func (s *Store) AddProblem(p match.Problem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pc := p
	s.data.problems[p.ID] = &pc
}

// MarkPlanCompleted records that the user finished every task of day.
func (s *Store) MarkPlanCompleted(userID int64, day time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.plans[planKey{userID: userID, day: timeutil.DayKey(day)}] = true
}
