package query

import (
	"context"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET RANKINGS QUERY
// Дневной или сезонный рейтинг с пагинацией и фильтром по диплому.
// ══════════════════════════════════════════════════════════════════════════════

// GetRankingsQuery содержит параметры запроса рейтинга.
type GetRankingsQuery struct {
	RankingRequest

	// Limit - количество записей (по умолчанию 20, максимум 100).
	Limit int

	// Offset - смещение для пагинации.
	Offset int
}

// GetRankingsResult содержит страницу рейтинга.
type GetRankingsResult struct {
	Scope       string               `json:"scope"`
	SeasonID    int64                `json:"season_id"`
	Date        string               `json:"date,omitempty"`
	Diploma     string               `json:"diploma,omitempty"`
	Entries     []*leaderboard.Entry `json:"entries"`
	TotalCount  int                  `json:"total_count"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
	GeneratedAt time.Time            `json:"generated_at"`
}

// GetRankingsHandler обрабатывает GetRankingsQuery.
type GetRankingsHandler struct {
	loader *RankingLoader
}

// NewGetRankingsHandler создаёт новый GetRankingsHandler.
func NewGetRankingsHandler(loader *RankingLoader) *GetRankingsHandler {
	return &GetRankingsHandler{loader: loader}
}

// Handle выполняет запрос.
func (h *GetRankingsHandler) Handle(ctx context.Context, q GetRankingsQuery) (*GetRankingsResult, error) {
	page := shared.NewPagination(q.Limit, q.Offset)

	loaded, err := h.loader.Load(ctx, q.RankingRequest)
	if err != nil {
		return nil, err
	}

	return &GetRankingsResult{
		Scope:       string(loaded.Scope),
		SeasonID:    loaded.SeasonID,
		Date:        dateLabel(loaded),
		Diploma:     string(q.Diploma),
		Entries:     loaded.Ranking.Slice(page.Offset, page.Offset+page.Limit),
		TotalCount:  loaded.Ranking.Count(),
		Limit:       page.Limit,
		Offset:      page.Offset,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func dateLabel(l *LoadedRanking) string {
	if l.Scope != leaderboard.ScopeDaily {
		return ""
	}
	return timeutil.FormatDayKey(l.Date)
}
