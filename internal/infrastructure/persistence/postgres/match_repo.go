package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MATCH REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// MatchRepository implements match.Repository for PostgreSQL.
type MatchRepository struct {
	q Querier
}

// NewMatchRepository creates a repository over a pool or a transaction.
func NewMatchRepository(q Querier) *MatchRepository {
	return &MatchRepository{q: q}
}

var _ match.Repository = (*MatchRepository)(nil)

const matchColumns = `
	id, player1_id, player2_id, problem_id, season_id,
	player1_answer, player1_elapsed, player1_correct, player1_timed_out, player1_submitted_at,
	player2_answer, player2_elapsed, player2_correct, player2_timed_out, player2_submitted_at,
	status, result, winner_id, reason, forfeited_by,
	time_limit_seconds, started_at, ended_at, created_at`

// Create inserts the match and claims both players in one statement. The
// pvp_active_players primary key rejects a player who is already in play.
func (r *MatchRepository) Create(ctx context.Context, m *match.Match) error {
	_, err := r.q.Exec(ctx, `
		WITH created AS (
			INSERT INTO pvp_matches (id, player1_id, player2_id, problem_id, season_id,
				status, time_limit_seconds, started_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id, player1_id, player2_id
		)
		INSERT INTO pvp_active_players (user_id, match_id)
		SELECT player1_id, id FROM created
		UNION ALL
		SELECT player2_id, id FROM created
	`,
		m.ID, m.Player1ID, m.Player2ID, m.ProblemID, m.SeasonID,
		string(m.Status), m.TimeLimitSeconds, m.StartedAt, m.CreatedAt,
	)
	if err == nil {
		return nil
	}

	if constraint, ok := violatedConstraint(err); ok {
		if constraint == "pvp_active_players_pkey" {
			return shared.ErrAlreadyInMatch
		}
		return shared.NewDomainError("pvp", "Create", shared.ErrAlreadyExists, "match id already used")
	}
	return fmt.Errorf("create match: %w", err)
}

// FindByID returns the match or shared.ErrMatchNotFound.
func (r *MatchRepository) FindByID(ctx context.Context, id string) (*match.Match, error) {
	m, err := scanMatch(r.q.QueryRow(ctx, `SELECT `+matchColumns+` FROM pvp_matches WHERE id = $1`, id))
	if IsNoRows(err) {
		return nil, shared.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find match: %w", err)
	}
	return m, nil
}

// FindActiveByUser returns the user's match in play.
func (r *MatchRepository) FindActiveByUser(ctx context.Context, userID int64) (*match.Match, error) {
	m, err := scanMatch(r.q.QueryRow(ctx, `
		SELECT `+matchColumns+` FROM pvp_matches
		WHERE id = (SELECT match_id FROM pvp_active_players WHERE user_id = $1)
	`, userID))
	if IsNoRows(err) {
		return nil, shared.ErrMatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find active match: %w", err)
	}
	return m, nil
}

// SetSlot writes the player's columns iff they are unset and the match is
// IN_PROGRESS.
func (r *MatchRepository) SetSlot(ctx context.Context, id string, p match.Player, slot match.Slot) (bool, error) {
	prefix := slotPrefix(p)
	sql := fmt.Sprintf(`
		UPDATE pvp_matches SET
			%[1]s_answer = $2, %[1]s_elapsed = $3, %[1]s_correct = $4,
			%[1]s_timed_out = $5, %[1]s_submitted_at = $6, updated_at = NOW()
		WHERE id = $1 AND status = 'IN_PROGRESS' AND %[1]s_elapsed IS NULL
	`, prefix)

	tag, err := r.q.Exec(ctx, sql, id, slot.Answer, slot.ElapsedSeconds, slot.Correct, slot.TimedOut, slot.SubmittedAt)
	if err != nil {
		return false, fmt.Errorf("set slot: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	return false, r.ensureExists(ctx, id)
}

// Complete moves the match to COMPLETED and releases both players. The
// UPDATE only matches while the match is IN_PROGRESS and every slot the
// resolution fills is still NULL, so exactly one caller gets true.
func (r *MatchRepository) Complete(ctx context.Context, id string, res match.Resolution) (bool, error) {
	args := []any{id, string(match.StatusCompleted), string(res.Result), res.WinnerID, string(res.Reason), res.ForfeitedBy, res.EndedAt}
	set := []string{"status = $2", "result = $3", "winner_id = $4", "reason = $5", "forfeited_by = $6", "ended_at = $7", "updated_at = NOW()"}
	where := []string{"id = $1", "status = 'IN_PROGRESS'"}

	for _, p := range []match.Player{match.Player1, match.Player2} {
		fill := res.Fill(p)
		if fill == nil {
			continue
		}
		prefix := slotPrefix(p)
		n := len(args)
		set = append(set,
			fmt.Sprintf("%s_answer = $%d", prefix, n+1),
			fmt.Sprintf("%s_elapsed = $%d", prefix, n+2),
			fmt.Sprintf("%s_correct = $%d", prefix, n+3),
			fmt.Sprintf("%s_timed_out = $%d", prefix, n+4),
			fmt.Sprintf("%s_submitted_at = $%d", prefix, n+5),
		)
		args = append(args, fill.Answer, fill.ElapsedSeconds, fill.Correct, fill.TimedOut, fill.SubmittedAt)
		where = append(where, prefix+"_elapsed IS NULL")
	}

	sql := fmt.Sprintf(`
		WITH done AS (
			UPDATE pvp_matches SET %s WHERE %s RETURNING id
		), released AS (
			DELETE FROM pvp_active_players WHERE match_id IN (SELECT id FROM done)
		)
		SELECT count(*) FROM done
	`, strings.Join(set, ", "), strings.Join(where, " AND "))

	var n int
	if err := r.q.QueryRow(ctx, sql, args...).Scan(&n); err != nil {
		return false, fmt.Errorf("complete match: %w", err)
	}
	if n == 1 {
		return true, nil
	}
	return false, r.ensureExists(ctx, id)
}

// ListExpired returns IN_PROGRESS matches past their deadline, oldest first.
func (r *MatchRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*match.Match, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.q.Query(ctx, `
		SELECT `+matchColumns+` FROM pvp_matches
		WHERE status = 'IN_PROGRESS'
		  AND started_at + make_interval(secs => time_limit_seconds) <= $1
		ORDER BY started_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired matches: %w", err)
	}
	defer rows.Close()

	var out []*match.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CountActive returns the number of matches in play.
func (r *MatchRepository) CountActive(ctx context.Context) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `SELECT count(*) FROM pvp_matches WHERE status IN ('WAITING', 'IN_PROGRESS')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active matches: %w", err)
	}
	return n, nil
}

func (r *MatchRepository) ensureExists(ctx context.Context, id string) error {
	var exists bool
	if err := r.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM pvp_matches WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check match: %w", err)
	}
	if !exists {
		return shared.ErrMatchNotFound
	}
	return nil
}

func slotPrefix(p match.Player) string {
	if p == match.Player1 {
		return "player1"
	}
	return "player2"
}

// slotColumns receives one player's nullable columns.
type slotColumns struct {
	answer      *string
	elapsed     *int
	correct     bool
	timedOut    bool
	submittedAt *time.Time
}

func (c slotColumns) slot() *match.Slot {
	if c.elapsed == nil {
		return nil
	}
	s := &match.Slot{
		Answer:         c.answer,
		ElapsedSeconds: *c.elapsed,
		Correct:        c.correct,
		TimedOut:       c.timedOut,
	}
	if c.submittedAt != nil {
		s.SubmittedAt = *c.submittedAt
	}
	return s
}

func scanMatch(row pgx.Row) (*match.Match, error) {
	var (
		m              match.Match
		s1, s2         slotColumns
		status         string
		result, reason *string
	)
	err := row.Scan(
		&m.ID, &m.Player1ID, &m.Player2ID, &m.ProblemID, &m.SeasonID,
		&s1.answer, &s1.elapsed, &s1.correct, &s1.timedOut, &s1.submittedAt,
		&s2.answer, &s2.elapsed, &s2.correct, &s2.timedOut, &s2.submittedAt,
		&status, &result, &m.WinnerID, &reason, &m.ForfeitedBy,
		&m.TimeLimitSeconds, &m.StartedAt, &m.EndedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.Player1 = s1.slot()
	m.Player2 = s2.slot()
	m.Status = match.Status(status)
	if result != nil {
		m.Result = match.Result(*result)
	}
	if reason != nil {
		m.Reason = match.ResolutionReason(*reason)
	}
	return &m, nil
}
