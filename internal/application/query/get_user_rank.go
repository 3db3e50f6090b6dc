package query

import (
	"context"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// USER RANK QUERIES
// Позиция игрока, его соседи и сводка по рейтингу.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultAroundRange - сколько соседей показывать сверху и снизу.
const DefaultAroundRange = 5

// MaxAroundRange ограничивает окно соседей.
const MaxAroundRange = 50

// GetUserRankQuery содержит параметры запроса позиции игрока.
type GetUserRankQuery struct {
	RankingRequest
	UserID int64
}

// UserRankResult - позиция игрока в рейтинге.
type UserRankResult struct {
	Scope    string             `json:"scope"`
	SeasonID int64              `json:"season_id"`
	Entry    *leaderboard.Entry `json:"entry"`
	Total    int                `json:"total"`
}

// GetAroundQuery содержит параметры запроса соседей.
type GetAroundQuery struct {
	RankingRequest
	UserID int64
	Range  int
}

// AroundResult - окно рейтинга вокруг игрока.
type AroundResult struct {
	Scope    string               `json:"scope"`
	SeasonID int64                `json:"season_id"`
	UserRank leaderboard.Rank     `json:"user_rank"`
	Entries  []*leaderboard.Entry `json:"entries"`
	Total    int                  `json:"total"`
}

// StatisticsResult - сводка рейтинга.
type StatisticsResult struct {
	Scope    string `json:"scope"`
	SeasonID int64  `json:"season_id"`
	leaderboard.Statistics
}

// UserRankHandler обрабатывает запросы позиции, соседей и статистики.
type UserRankHandler struct {
	loader *RankingLoader
}

// NewUserRankHandler создаёт новый UserRankHandler.
func NewUserRankHandler(loader *RankingLoader) *UserRankHandler {
	return &UserRankHandler{loader: loader}
}

// Rank возвращает запись игрока или shared.ErrNotRanked.
func (h *UserRankHandler) Rank(ctx context.Context, q GetUserRankQuery) (*UserRankResult, error) {
	if q.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	loaded, err := h.loader.Load(ctx, q.RankingRequest)
	if err != nil {
		return nil, err
	}

	entry := loaded.Ranking.GetByID(q.UserID)
	if entry == nil {
		return nil, shared.ErrNotRanked
	}
	return &UserRankResult{
		Scope:    string(loaded.Scope),
		SeasonID: loaded.SeasonID,
		Entry:    entry.Clone(),
		Total:    loaded.Ranking.Count(),
	}, nil
}

// Around возвращает игроков в окне ±Range вокруг игрока.
func (h *UserRankHandler) Around(ctx context.Context, q GetAroundQuery) (*AroundResult, error) {
	if q.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}
	rng := q.Range
	if rng <= 0 {
		rng = DefaultAroundRange
	}
	if rng > MaxAroundRange {
		rng = MaxAroundRange
	}

	loaded, err := h.loader.Load(ctx, q.RankingRequest)
	if err != nil {
		return nil, err
	}

	entry := loaded.Ranking.GetByID(q.UserID)
	if entry == nil {
		return nil, shared.ErrNotRanked
	}
	return &AroundResult{
		Scope:    string(loaded.Scope),
		SeasonID: loaded.SeasonID,
		UserRank: entry.Rank,
		Entries:  loaded.Ranking.Neighbors(q.UserID, rng),
		Total:    loaded.Ranking.Count(),
	}, nil
}

// Statistics возвращает сводку по рейтингу.
func (h *UserRankHandler) Statistics(ctx context.Context, req RankingRequest) (*StatisticsResult, error) {
	loaded, err := h.loader.Load(ctx, req)
	if err != nil {
		return nil, err
	}
	return &StatisticsResult{
		Scope:      string(loaded.Scope),
		SeasonID:   loaded.SeasonID,
		Statistics: loaded.Ranking.Statistics(),
	}, nil
}
