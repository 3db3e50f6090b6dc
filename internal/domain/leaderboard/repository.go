package leaderboard

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// ScoreRepository хранит дневные очки игроков.
// Реализация находится в infrastructure слое (PostgreSQL, memory).
type ScoreRepository interface {
	// AddPoints аддитивно добавляет очки к записи (user, season, date),
	// создавая её при отсутствии. Дедупликации нет: вызывается только
	// победителем перехода матча в COMPLETED.
	AddPoints(ctx context.Context, userID, seasonID int64, date time.Time, points int) error

	// DailyScores возвращает очки всех игроков сезона за день.
	DailyScores(ctx context.Context, seasonID int64, date time.Time) ([]ScoreRow, error)

	// SeasonScores возвращает сумму очков всех игроков за сезон.
	SeasonScores(ctx context.Context, seasonID int64) ([]ScoreRow, error)

	// History возвращает дневные записи игрока за сезон, новые первыми.
	History(ctx context.Context, userID, seasonID int64, limit int) ([]ScoreEntry, error)
}

// SnapshotRepository хранит снапшоты сезонного рейтинга.
type SnapshotRepository interface {
	// Save сохраняет снапшот целиком.
	Save(ctx context.Context, snapshot *Snapshot) error

	// Latest возвращает последний снапшот сезона
	// или shared.ErrSnapshotNotFound.
	Latest(ctx context.Context, seasonID int64) (*Snapshot, error)

	// DeleteOlderThan удаляет снапшоты старше указанного времени.
	DeleteOlderThan(ctx context.Context, olderThan time.Time) (int64, error)
}

// RankingCache - кеш построенных рейтингов для чтения.
type RankingCache interface {
	// Get возвращает закешированные записи по ключу или (nil, false).
	Get(ctx context.Context, key string) ([]*Entry, bool)

	// Set сохраняет записи по ключу.
	Set(ctx context.Context, key string, entries []*Entry) error

	// InvalidateSeason удаляет все закешированные рейтинги сезона.
	InvalidateSeason(ctx context.Context, seasonID int64) error
}

// CacheKey строит ключ кеша рейтинга. Все ключи сезона начинаются с
// CacheSeasonPrefix, чтобы InvalidateSeason мог удалить их по шаблону.
func CacheKey(seasonID int64, scope Scope, date time.Time, filter DiplomaFilter) string {
	day := "-"
	if scope == ScopeDaily {
		day = date.UTC().Format("2006-01-02")
	}
	f := strings.ToLower(strings.TrimSpace(string(filter)))
	if f == "" {
		f = "all"
	}
	return fmt.Sprintf("%s%s:%s:%s", CacheSeasonPrefix(seasonID), scope, day, f)
}

// CacheSeasonPrefix - общий префикс ключей сезона.
func CacheSeasonPrefix(seasonID int64) string {
	return fmt.Sprintf("rankings:%d:", seasonID)
}
