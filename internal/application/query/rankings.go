package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
	"github.com/studyplan/studyplan-pvp/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANKING LOADER
// Строит рейтинг из дневных очков при каждом чтении. Кеш хранит готовые
// записи вместе с изменением позиции.
// ══════════════════════════════════════════════════════════════════════════════

// RankingRequest описывает, какой рейтинг нужен.
type RankingRequest struct {
	Scope leaderboard.Scope

	// SeasonID - 0 означает активный сезон.
	SeasonID int64

	// Date - день для дневного рейтинга (по Сеулу). Нулевое значение - сегодня.
	Date time.Time

	// Diploma - фильтр по категории или названию диплома.
	Diploma leaderboard.DiplomaFilter
}

// LoadedRanking - построенный рейтинг и фактические параметры.
type LoadedRanking struct {
	Ranking  *leaderboard.Ranking
	Scope    leaderboard.Scope
	SeasonID int64
	Date     time.Time
}

// RankingLoaderConfig содержит конфигурацию загрузчика.
type RankingLoaderConfig struct {
	// RankChange - вычислять изменение позиции.
	RankChange bool
}

// RankingLoader строит рейтинги.
type RankingLoader struct {
	scores    leaderboard.ScoreRepository
	snapshots leaderboard.SnapshotRepository
	seasons   match.SeasonSource
	cache     leaderboard.RankingCache

	rankChange bool
	now        func() time.Time
	log        *logger.Logger
}

// NewRankingLoader создаёт загрузчик. cache может быть nil.
func NewRankingLoader(
	scores leaderboard.ScoreRepository,
	snapshots leaderboard.SnapshotRepository,
	seasons match.SeasonSource,
	cache leaderboard.RankingCache,
	config RankingLoaderConfig,
	log *logger.Logger,
	clock func() time.Time,
) *RankingLoader {
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = time.Now
	}
	return &RankingLoader{
		scores:     scores,
		snapshots:  snapshots,
		seasons:    seasons,
		cache:      cache,
		rankChange: config.RankChange,
		now:        clock,
		log:        log.With(logger.Component("ranking_loader")),
	}
}

// Load возвращает отсортированный рейтинг.
func (l *RankingLoader) Load(ctx context.Context, req RankingRequest) (*LoadedRanking, error) {
	if _, err := leaderboard.ParseScope(string(req.Scope)); err != nil {
		return nil, shared.ErrInvalidScope
	}

	seasonID := req.SeasonID
	if seasonID == 0 {
		season, err := l.seasons.ActiveSeason(ctx)
		if err != nil {
			return nil, err
		}
		seasonID = season.ID
	}

	date := timeutil.DayKey(l.now())
	if !req.Date.IsZero() {
		date = timeutil.DayKey(req.Date)
	}

	out := &LoadedRanking{Scope: req.Scope, SeasonID: seasonID, Date: date}
	key := leaderboard.CacheKey(seasonID, req.Scope, date, req.Diploma)

	if l.cache != nil {
		if entries, ok := l.cache.Get(ctx, key); ok {
			out.Ranking = leaderboard.FromEntries(entries)
			return out, nil
		}
	}

	ranking, err := l.build(ctx, req.Scope, seasonID, date, req.Diploma)
	if err != nil {
		return nil, err
	}
	out.Ranking = ranking

	if l.cache != nil {
		if err := l.cache.Set(ctx, key, ranking.All()); err != nil {
			l.log.Warn("failed to cache ranking", logger.String("key", key), logger.Err(err))
		}
	}
	return out, nil
}

func (l *RankingLoader) build(ctx context.Context, scope leaderboard.Scope, seasonID int64, date time.Time, filter leaderboard.DiplomaFilter) (*leaderboard.Ranking, error) {
	var (
		rows []leaderboard.ScoreRow
		err  error
	)
	switch scope {
	case leaderboard.ScopeDaily:
		rows, err = l.scores.DailyScores(ctx, seasonID, date)
	default:
		rows, err = l.scores.SeasonScores(ctx, seasonID)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s scores: %w", scope, err)
	}

	current := leaderboard.BuildRanking(rows).FilterByDiploma(filter)
	if !l.rankChange {
		return current, nil
	}

	previous, err := l.previousRows(ctx, scope, seasonID, date, rows)
	if err != nil {
		return nil, err
	}
	current.ApplyPrevious(leaderboard.BuildRanking(previous).FilterByDiploma(filter).Ranks())
	return current, nil
}

// previousRows returns the baseline for rank change: the previous day for
// daily rankings, the latest stored snapshot for season rankings.
func (l *RankingLoader) previousRows(ctx context.Context, scope leaderboard.Scope, seasonID int64, date time.Time, current []leaderboard.ScoreRow) ([]leaderboard.ScoreRow, error) {
	if scope == leaderboard.ScopeDaily {
		rows, err := l.scores.DailyScores(ctx, seasonID, timeutil.PreviousDay(date))
		if err != nil {
			return nil, fmt.Errorf("load previous day scores: %w", err)
		}
		return rows, nil
	}

	if l.snapshots == nil {
		return nil, nil
	}
	snap, err := l.snapshots.Latest(ctx, seasonID)
	if errors.Is(err, shared.ErrSnapshotNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load latest snapshot: %w", err)
	}

	// Snapshots keep no profile data; diplomas come from the current rows.
	diplomas := make(map[int64]string, len(current))
	for _, r := range current {
		diplomas[r.UserID] = r.Diploma
	}
	rows := make([]leaderboard.ScoreRow, 0, len(snap.Entries))
	for _, e := range snap.Entries {
		rows = append(rows, leaderboard.ScoreRow{UserID: e.UserID, Score: e.Score, Diploma: diplomas[e.UserID]})
	}
	return rows, nil
}
