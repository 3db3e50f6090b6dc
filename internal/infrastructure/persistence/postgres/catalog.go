package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// Read-only access to the study planner's tables.
// ══════════════════════════════════════════════════════════════════════════════

// Catalog implements the read-only collaborator ports of the engine.
type Catalog struct {
	q Querier
}

// NewCatalog creates a new Catalog.
func NewCatalog(q Querier) *Catalog {
	return &Catalog{q: q}
}

var (
	_ match.ProblemSource = (*Catalog)(nil)
	_ match.SeasonSource  = (*Catalog)(nil)
	_ match.UserDirectory = (*Catalog)(nil)
	_ match.ProfileSource = (*Catalog)(nil)
)

const problemColumns = `id, season_id, title, content, choices, subject, answer, score`

// RandomProblem picks a uniformly random problem of the season.
func (c *Catalog) RandomProblem(ctx context.Context, seasonID int64) (*match.Problem, error) {
	p, err := scanProblem(c.q.QueryRow(ctx, `
		SELECT `+problemColumns+` FROM problems
		WHERE season_id = $1
		ORDER BY random()
		LIMIT 1
	`, seasonID))
	if IsNoRows(err) {
		return nil, shared.ErrNoProblemsAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("random problem: %w", err)
	}
	return p, nil
}

// FindProblem returns a problem by ID.
func (c *Catalog) FindProblem(ctx context.Context, id int64) (*match.Problem, error) {
	p, err := scanProblem(c.q.QueryRow(ctx, `SELECT `+problemColumns+` FROM problems WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.NewDomainError("problem", "Find", shared.ErrNotFound, "problem not found")
	}
	if err != nil {
		return nil, fmt.Errorf("find problem: %w", err)
	}
	return p, nil
}

// ActiveSeason returns the season flagged active, or else the one whose
// dates contain today.
func (c *Catalog) ActiveSeason(ctx context.Context) (*shared.Season, error) {
	var (
		s          shared.Season
		start, end *time.Time
	)
	err := c.q.QueryRow(ctx, `
		SELECT id, name, start_date, end_date, is_active FROM seasons
		WHERE is_active
		   OR ((start_date IS NULL OR start_date <= $1) AND (end_date IS NULL OR end_date >= $1))
		ORDER BY is_active DESC, start_date DESC NULLS LAST
		LIMIT 1
	`, timeutil.DayKey(time.Now())).Scan(&s.ID, &s.Name, &start, &end, &s.IsActive)
	if IsNoRows(err) {
		return nil, shared.ErrNoActiveSeason
	}
	if err != nil {
		return nil, fmt.Errorf("active season: %w", err)
	}
	if start != nil {
		s.StartDate = *start
	}
	if end != nil {
		s.EndDate = *end
	}
	return &s, nil
}

// UserExists reports whether the user is registered.
func (c *Catalog) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	if err := c.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

// Profile returns the user's diploma and whether every task of their plan
// for day is done.
func (c *Catalog) Profile(ctx context.Context, userID int64, day time.Time) (*match.Profile, error) {
	p := &match.Profile{UserID: userID}
	err := c.q.QueryRow(ctx, `
		SELECT u.username, u.diploma,
		       COALESCE(d.total_tasks > 0 AND d.completed_tasks >= d.total_tasks, FALSE)
		FROM users u
		LEFT JOIN daily_plans d ON d.user_id = u.id AND d.plan_date = $2
		WHERE u.id = $1
	`, userID, timeutil.DayKey(day)).Scan(&p.Username, &p.Diploma, &p.CompletedPlan)
	if IsNoRows(err) {
		return nil, shared.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("profile: %w", err)
	}
	return p, nil
}

func scanProblem(row pgx.Row) (*match.Problem, error) {
	var p match.Problem
	if err := row.Scan(&p.ID, &p.SeasonID, &p.Title, &p.Content, &p.Choices, &p.Subject, &p.Answer, &p.Score); err != nil {
		return nil, err
	}
	return &p, nil
}
