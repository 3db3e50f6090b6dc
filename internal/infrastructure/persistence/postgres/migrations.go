package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema change.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations and records them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator over the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return NewMigratorWithMigrations(conn, GetMigrations())
}

// NewMigratorWithMigrations creates a migrator over custom migrations.
func NewMigratorWithMigrations(conn *Connection, migrations []Migration) *Migrator {
	sorted := append([]Migration(nil), migrations...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	return &Migrator{conn: conn, migrations: sorted, tableName: "schema_migrations"}
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	_, err := m.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, m.tableName))
	if err != nil {
		return fmt.Errorf("create %s: %w", m.tableName, err)
	}
	return nil
}

func (m *Migrator) applied(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]time.Time)
	for rows.Next() {
		var v int
		var at time.Time
		if err := rows.Scan(&v, &at); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		out[v] = at
	}
	return out, rows.Err()
}

// Migrate applies every pending migration, each in its own transaction.
// It returns the versions applied by this call.
func (m *Migrator) Migrate(ctx context.Context) ([]int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	var versions []int
	for _, mig := range m.migrations {
		if _, ok := done[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return versions, fmt.Errorf("%w: migration %d has no up SQL", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName), mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return versions, fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
		versions = append(versions, mig.Version)
	}
	return versions, nil
}

// Rollback reverts the most recently applied migration. It returns 0 when
// nothing is applied.
func (m *Migrator) Rollback(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	last := 0
	for v := range done {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return 0, nil
	}

	var mig *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			mig = &m.migrations[i]
		}
	}
	if mig == nil || mig.DownSQL == "" {
		return 0, fmt.Errorf("%w: migration %d has no down SQL", ErrMigrationFailed, last)
	}

	err = m.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, mig.DownSQL); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: rollback %d: %v", ErrMigrationFailed, last, err)
	}
	return last, nil
}

// Status lists all known migrations with their applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	done, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]Migration, len(m.migrations))
	copy(out, m.migrations)
	for i := range out {
		if at, ok := done[out[i].Version]; ok {
			out[i].IsApplied = true
			out[i].AppliedAt = at
		}
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_study_tables", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_pvp", UpSQL: migration002Up, DownSQL: migration002Down},
		{Version: 3, Name: "create_rank_snapshots", UpSQL: migration003Up, DownSQL: migration003Down},
	}
}

// Tables owned by the study planner. The engine only reads them; the
// migration exists so a fresh database (and the integration test) has them.
const migration001Up = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT PRIMARY KEY,
    username VARCHAR(64) NOT NULL UNIQUE,
    diploma VARCHAR(64) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS seasons (
    id BIGINT PRIMARY KEY,
    name VARCHAR(100) NOT NULL,
    start_date DATE,
    end_date DATE,
    is_active BOOLEAN NOT NULL DEFAULT FALSE
);

-- at most one active season
CREATE UNIQUE INDEX IF NOT EXISTS idx_seasons_single_active ON seasons(is_active) WHERE is_active;

CREATE TABLE IF NOT EXISTS problems (
    id BIGINT PRIMARY KEY,
    season_id BIGINT NOT NULL REFERENCES seasons(id),
    title VARCHAR(200) NOT NULL,
    content TEXT NOT NULL,
    choices TEXT[] NOT NULL DEFAULT '{}',
    subject VARCHAR(64) NOT NULL DEFAULT '',
    answer TEXT NOT NULL,
    score INTEGER NOT NULL CHECK (score >= 0)
);

CREATE INDEX IF NOT EXISTS idx_problems_season ON problems(season_id);

CREATE TABLE IF NOT EXISTS daily_plans (
    user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    plan_date DATE NOT NULL,
    total_tasks INTEGER NOT NULL DEFAULT 0,
    completed_tasks INTEGER NOT NULL DEFAULT 0,
    PRIMARY KEY (user_id, plan_date)
);
`

const migration001Down = `
DROP TABLE IF EXISTS daily_plans;
DROP TABLE IF EXISTS problems;
DROP TABLE IF EXISTS seasons;
DROP TABLE IF EXISTS users;
`

// A slot is unset while <player>_elapsed IS NULL. pvp_active_players holds
// one row per player of a WAITING/IN_PROGRESS match; its primary key is what
// rejects a second active match for the same user.
const migration002Up = `
CREATE TABLE IF NOT EXISTS pvp_matches (
    id UUID PRIMARY KEY,
    player1_id BIGINT NOT NULL REFERENCES users(id),
    player2_id BIGINT NOT NULL REFERENCES users(id),
    problem_id BIGINT NOT NULL REFERENCES problems(id),
    season_id BIGINT NOT NULL,

    player1_answer TEXT,
    player1_elapsed INTEGER,
    player1_correct BOOLEAN NOT NULL DEFAULT FALSE,
    player1_timed_out BOOLEAN NOT NULL DEFAULT FALSE,
    player1_submitted_at TIMESTAMPTZ,

    player2_answer TEXT,
    player2_elapsed INTEGER,
    player2_correct BOOLEAN NOT NULL DEFAULT FALSE,
    player2_timed_out BOOLEAN NOT NULL DEFAULT FALSE,
    player2_submitted_at TIMESTAMPTZ,

    status VARCHAR(16) NOT NULL DEFAULT 'IN_PROGRESS',
    result VARCHAR(16),
    winner_id BIGINT,
    reason VARCHAR(16),
    forfeited_by BIGINT,

    time_limit_seconds INTEGER NOT NULL DEFAULT 300,
    started_at TIMESTAMPTZ NOT NULL,
    ended_at TIMESTAMPTZ,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CONSTRAINT pvp_distinct_players CHECK (player1_id <> player2_id),
    CONSTRAINT pvp_valid_status CHECK (status IN ('WAITING', 'IN_PROGRESS', 'COMPLETED')),
    CONSTRAINT pvp_valid_result CHECK (result IS NULL OR result IN ('PLAYER1_WIN', 'PLAYER2_WIN', 'DRAW')),
    CONSTRAINT pvp_elapsed_range CHECK (player1_elapsed IS NULL OR player1_elapsed >= 0),
    CONSTRAINT pvp_elapsed_range2 CHECK (player2_elapsed IS NULL OR player2_elapsed >= 0)
);

CREATE INDEX IF NOT EXISTS idx_pvp_matches_in_progress ON pvp_matches(started_at) WHERE status = 'IN_PROGRESS';
CREATE INDEX IF NOT EXISTS idx_pvp_matches_player1 ON pvp_matches(player1_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_pvp_matches_player2 ON pvp_matches(player2_id, created_at DESC);

CREATE TABLE IF NOT EXISTS pvp_active_players (
    user_id BIGINT PRIMARY KEY,
    match_id UUID NOT NULL REFERENCES pvp_matches(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_pvp_active_players_match ON pvp_active_players(match_id);

CREATE TABLE IF NOT EXISTS pvp_stats (
    user_id BIGINT PRIMARY KEY,
    rating DOUBLE PRECISION NOT NULL DEFAULT 1200 CHECK (rating >= 0),
    wins INTEGER NOT NULL DEFAULT 0,
    losses INTEGER NOT NULL DEFAULT 0,
    draws INTEGER NOT NULL DEFAULT 0,
    total_matches INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_pvp_stats_rating ON pvp_stats(rating DESC, user_id);

CREATE TABLE IF NOT EXISTS scores (
    user_id BIGINT NOT NULL REFERENCES users(id),
    season_id BIGINT NOT NULL,
    date DATE NOT NULL,
    daily_score INTEGER NOT NULL DEFAULT 0 CHECK (daily_score >= 0),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (user_id, season_id, date)
);

CREATE INDEX IF NOT EXISTS idx_scores_season_date ON scores(season_id, date);
`

const migration002Down = `
DROP TABLE IF EXISTS scores;
DROP TABLE IF EXISTS pvp_stats;
DROP TABLE IF EXISTS pvp_active_players;
DROP TABLE IF EXISTS pvp_matches;
`

const migration003Up = `
CREATE TABLE IF NOT EXISTS rank_snapshots (
    id UUID PRIMARY KEY,
    season_id BIGINT NOT NULL,
    snapshot_at TIMESTAMPTZ NOT NULL,
    participants INTEGER NOT NULL DEFAULT 0,
    total_score BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_rank_snapshots_season ON rank_snapshots(season_id, snapshot_at DESC);

CREATE TABLE IF NOT EXISTS rank_snapshot_entries (
    snapshot_id UUID NOT NULL REFERENCES rank_snapshots(id) ON DELETE CASCADE,
    user_id BIGINT NOT NULL,
    rank INTEGER NOT NULL,
    score INTEGER NOT NULL,
    PRIMARY KEY (snapshot_id, user_id)
);
`

const migration003Down = `
DROP TABLE IF EXISTS rank_snapshot_entries;
DROP TABLE IF EXISTS rank_snapshots;
`
