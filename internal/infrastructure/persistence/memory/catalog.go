package memory

import (
	"context"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/timeutil"
)

// Catalog serves the read-only collaborators: the problem bank, seasons,
// the user directory and scoring profiles.
type Catalog struct {
	v view
}

var (
	_ match.ProblemSource = (*Catalog)(nil)
	_ match.SeasonSource  = (*Catalog)(nil)
	_ match.UserDirectory = (*Catalog)(nil)
	_ match.ProfileSource = (*Catalog)(nil)
)

// RandomProblem picks a uniformly random problem of the season.
func (c *Catalog) RandomProblem(_ context.Context, seasonID int64) (*match.Problem, error) {
	var out *match.Problem
	err := c.v.with(func(st *state) error {
		var pool []*match.Problem
		for _, p := range st.problems {
			if p.SeasonID == seasonID {
				pool = append(pool, p)
			}
		}
		if len(pool) == 0 {
			return shared.ErrNoProblemsAvailable
		}
		// map order is not stable, sort before picking so a seeded source
		// would be reproducible
		sort.Slice(pool, func(i, j int) bool { return pool[i].ID < pool[j].ID })
		p := *pool[rand.IntN(len(pool))]
		out = &p
		return nil
	})
	return out, err
}

// FindProblem returns the problem by id.
func (c *Catalog) FindProblem(_ context.Context, id int64) (*match.Problem, error) {
	var out *match.Problem
	err := c.v.with(func(st *state) error {
		p, ok := st.problems[id]
		if !ok {
			return shared.NewDomainError("problem", "Find", shared.ErrNotFound, "problem not found")
		}
		pc := *p
		out = &pc
		return nil
	})
	return out, err
}

// ActiveSeason returns the season flagged active, falling back to the one
// whose date range contains today.
func (c *Catalog) ActiveSeason(_ context.Context) (*shared.Season, error) {
	now := c.v.s.now()
	var out *shared.Season
	err := c.v.with(func(st *state) error {
		for _, s := range st.seasons {
			if s.IsActive {
				sc := *s
				out = &sc
				return nil
			}
		}
		for _, s := range st.seasons {
			if s.Contains(now) {
				sc := *s
				out = &sc
				return nil
			}
		}
		return shared.ErrNoActiveSeason
	})
	return out, err
}

// UserExists reports whether the user was seeded.
func (c *Catalog) UserExists(_ context.Context, userID int64) (bool, error) {
	var ok bool
	err := c.v.with(func(st *state) error {
		_, ok = st.users[userID]
		return nil
	})
	return ok, err
}

// Profile returns the user's diploma and whether their plan for day was
// completed.
func (c *Catalog) Profile(_ context.Context, userID int64, day time.Time) (*match.Profile, error) {
	var out *match.Profile
	err := c.v.with(func(st *state) error {
		u, ok := st.users[userID]
		if !ok {
			return shared.ErrUserNotFound
		}
		out = &match.Profile{
			UserID:        u.ID,
			Username:      u.Username,
			Diploma:       u.Diploma,
			CompletedPlan: st.plans[planKey{userID: userID, day: timeutil.DayKey(day)}],
		}
		return nil
	})
	return out, err
}
