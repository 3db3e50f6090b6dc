// Package eventhandler содержит обработчики доменных событий.
// Обработчики реагируют на уже зафиксированные изменения и запускают
// побочные эффекты: сброс кешей, журналирование итогов. Ошибка обработчика
// никогда не откатывает сам матч.
package eventhandler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON MATCH RESOLVED HANDLER
// После завершения матча очки сезона изменились, поэтому закешированные
// рейтинги сезона сбрасываются.
// ═══════════════════════════════════════════════════════════════════════════

// OnMatchResolvedHandler сбрасывает кеш рейтингов сезона.
type OnMatchResolvedHandler struct {
	cache   leaderboard.RankingCache
	logger  *slog.Logger
	timeout time.Duration
}

// NewOnMatchResolvedHandler создаёт новый обработчик.
func NewOnMatchResolvedHandler(cache leaderboard.RankingCache, logger *slog.Logger) *OnMatchResolvedHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OnMatchResolvedHandler{
		cache:   cache,
		logger:  logger.With(slog.String("handler", "on_match_resolved")),
		timeout: 5 * time.Second,
	}
}

// Handle обрабатывает событие pvp.match_resolved и snapshot_captured.
func (h *OnMatchResolvedHandler) Handle(event shared.Event) error {
	var seasonID int64
	switch e := event.(type) {
	case shared.MatchResolvedEvent:
		seasonID = e.SeasonID
		h.logger.Debug("match resolved",
			slog.String("match_id", e.AggregateID()),
			slog.String("result", e.Result),
			slog.Int("player1_points", e.Player1.Points),
			slog.Int("player2_points", e.Player2.Points),
		)
	case shared.SnapshotCapturedEvent:
		seasonID = e.SeasonID
	default:
		return fmt.Errorf("on_match_resolved: unexpected event type %T", event)
	}

	if h.cache == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	if err := h.cache.InvalidateSeason(ctx, seasonID); err != nil {
		h.logger.Warn("failed to invalidate ranking cache",
			slog.Int64("season_id", seasonID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// Register подписывает обработчик на шину.
func (h *OnMatchResolvedHandler) Register(bus shared.EventSubscriber) error {
	if err := bus.Subscribe(shared.EventMatchResolved, h.Handle); err != nil {
		return err
	}
	return bus.Subscribe(shared.EventSnapshotCaptured, h.Handle)
}
