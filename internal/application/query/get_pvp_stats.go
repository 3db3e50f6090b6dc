package query

import (
	"context"
	"errors"
	"math"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/rating"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PVP STATS / SCORE HISTORY QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// PvpStatsDTO - статистика игрока. Рейтинг округлён для отображения.
type PvpStatsDTO struct {
	UserID       int64   `json:"user_id"`
	Rating       int     `json:"rating"`
	RatingExact  float64 `json:"rating_exact"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	Draws        int     `json:"draws"`
	TotalMatches int     `json:"total_matches"`
	WinRate      float64 `json:"win_rate"`
}

// NewPvpStatsDTO строит DTO из записи рейтинга.
func NewPvpStatsDTO(r *rating.Record) PvpStatsDTO {
	return PvpStatsDTO{
		UserID:       r.UserID,
		Rating:       int(math.Round(r.Rating)),
		RatingExact:  r.Rating,
		Wins:         r.Wins,
		Losses:       r.Losses,
		Draws:        r.Draws,
		TotalMatches: r.TotalMatches,
		WinRate:      math.Round(r.WinRate()*1000) / 1000,
	}
}

// GetPvpStatsHandler отдаёт рейтинг и счётчики игрока.
type GetPvpStatsHandler struct {
	ratings       rating.Repository
	initialRating float64
}

// NewGetPvpStatsHandler создаёт новый GetPvpStatsHandler.
func NewGetPvpStatsHandler(ratings rating.Repository, initialRating float64) *GetPvpStatsHandler {
	if initialRating <= 0 {
		initialRating = rating.DefaultRating
	}
	return &GetPvpStatsHandler{ratings: ratings, initialRating: initialRating}
}

// Handle возвращает статистику. Игрок без матчей получает нули и
// начальный рейтинг.
func (h *GetPvpStatsHandler) Handle(ctx context.Context, userID int64) (*PvpStatsDTO, error) {
	if userID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	rec, err := h.ratings.Get(ctx, userID)
	if errors.Is(err, shared.ErrRatingNotFound) {
		rec = rating.NewRecord(userID)
		rec.Rating = h.initialRating
	} else if err != nil {
		return nil, err
	}

	dto := NewPvpStatsDTO(rec)
	return &dto, nil
}

// Top возвращает лучших по рейтингу.
func (h *GetPvpStatsHandler) Top(ctx context.Context, limit int) ([]PvpStatsDTO, error) {
	page := shared.NewPagination(limit, 0)
	records, err := h.ratings.Top(ctx, page.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]PvpStatsDTO, 0, len(records))
	for _, r := range records {
		out = append(out, NewPvpStatsDTO(r))
	}
	return out, nil
}

// GetScoreHistoryQuery содержит параметры истории очков.
type GetScoreHistoryQuery struct {
	UserID   int64
	SeasonID int64
	Limit    int
}

// ScoreHistoryResult - дневные очки игрока за сезон, новые первыми.
type ScoreHistoryResult struct {
	UserID     int64                    `json:"user_id"`
	SeasonID   int64                    `json:"season_id"`
	Entries    []leaderboard.ScoreEntry `json:"entries"`
	TotalScore int                      `json:"total_score"`
}

// GetScoreHistoryHandler обрабатывает GetScoreHistoryQuery.
type GetScoreHistoryHandler struct {
	scores  leaderboard.ScoreRepository
	seasons match.SeasonSource
}

// NewGetScoreHistoryHandler создаёт новый GetScoreHistoryHandler.
func NewGetScoreHistoryHandler(scores leaderboard.ScoreRepository, seasons match.SeasonSource) *GetScoreHistoryHandler {
	return &GetScoreHistoryHandler{scores: scores, seasons: seasons}
}

// Handle выполняет запрос.
func (h *GetScoreHistoryHandler) Handle(ctx context.Context, q GetScoreHistoryQuery) (*ScoreHistoryResult, error) {
	if q.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	seasonID := q.SeasonID
	if seasonID == 0 {
		season, err := h.seasons.ActiveSeason(ctx)
		if err != nil {
			return nil, err
		}
		seasonID = season.ID
	}

	limit := q.Limit
	if limit <= 0 || limit > 366 {
		limit = 366
	}

	entries, err := h.scores.History(ctx, q.UserID, seasonID, limit)
	if err != nil {
		return nil, err
	}

	res := &ScoreHistoryResult{UserID: q.UserID, SeasonID: seasonID, Entries: entries}
	for _, e := range entries {
		res.TotalScore += e.DailyScore
	}
	if res.Entries == nil {
		res.Entries = []leaderboard.ScoreEntry{}
	}
	return res, nil
}
