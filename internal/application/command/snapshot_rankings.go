package command

import (
	"context"
	"fmt"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT RANKINGS COMMAND
// Stores the current season ranking. The latest snapshot is the baseline for
// season rank changes.
// ══════════════════════════════════════════════════════════════════════════════

// SnapshotRankingsCommand contains snapshot parameters.
type SnapshotRankingsCommand struct {
	// SeasonID defaults to the active season.
	SeasonID int64
}

// SnapshotRankingsResult describes the stored snapshot.
type SnapshotRankingsResult struct {
	Snapshot *leaderboard.Snapshot
	Pruned   int64
}

// SnapshotRankingsHandlerConfig contains configuration for the handler.
type SnapshotRankingsHandlerConfig struct {
	// Retention removes older snapshots after each capture. Zero keeps all.
	Retention time.Duration
}

// SnapshotRankingsHandler handles the SnapshotRankingsCommand.
type SnapshotRankingsHandler struct {
	seasons   match.SeasonSource
	scores    leaderboard.ScoreRepository
	snapshots leaderboard.SnapshotRepository
	cache     leaderboard.RankingCache
	publisher shared.EventPublisher

	retention time.Duration
	newID     IDGenerator
	now       Clock
	log       *logger.Logger
}

// NewSnapshotRankingsHandler creates a new SnapshotRankingsHandler.
func NewSnapshotRankingsHandler(
	seasons match.SeasonSource,
	scores leaderboard.ScoreRepository,
	snapshots leaderboard.SnapshotRepository,
	cache leaderboard.RankingCache,
	publisher shared.EventPublisher,
	config SnapshotRankingsHandlerConfig,
	log *logger.Logger,
	clock Clock,
	newID IDGenerator,
) *SnapshotRankingsHandler {
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = SystemClock
	}
	if newID == nil {
		newID = NewUUID
	}
	return &SnapshotRankingsHandler{
		seasons:   seasons,
		scores:    scores,
		snapshots: snapshots,
		cache:     cache,
		publisher: publisher,
		retention: config.Retention,
		newID:     newID,
		now:       clock,
		log:       log.With(logger.Component("snapshot_rankings")),
	}
}

// Handle executes the snapshot command.
func (h *SnapshotRankingsHandler) Handle(ctx context.Context, cmd SnapshotRankingsCommand) (*SnapshotRankingsResult, error) {
	seasonID := cmd.SeasonID
	if seasonID == 0 {
		season, err := h.seasons.ActiveSeason(ctx)
		if err != nil {
			return nil, err
		}
		seasonID = season.ID
	}

	rows, err := h.scores.SeasonScores(ctx, seasonID)
	if err != nil {
		return nil, fmt.Errorf("load season scores: %w", err)
	}

	now := h.now()
	snapshot := leaderboard.NewSnapshot(h.newID(), seasonID, leaderboard.BuildRanking(rows), now)
	if err := h.snapshots.Save(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("save snapshot: %w", err)
	}

	result := &SnapshotRankingsResult{Snapshot: snapshot}

	if h.retention > 0 {
		pruned, err := h.snapshots.DeleteOlderThan(ctx, now.Add(-h.retention))
		if err != nil {
			h.log.Warn("failed to prune snapshots", logger.Err(err))
		}
		result.Pruned = pruned
	}

	// Season rank changes are relative to the latest snapshot.
	if h.cache != nil {
		if err := h.cache.InvalidateSeason(ctx, seasonID); err != nil {
			h.log.Warn("failed to invalidate ranking cache", logger.SeasonID(seasonID), logger.Err(err))
		}
	}

	if h.publisher != nil {
		if err := h.publisher.Publish(shared.NewSnapshotCapturedEvent(snapshot.ID, seasonID, snapshot.Participants)); err != nil {
			h.log.Warn("failed to publish snapshot event", logger.Err(err))
		}
	}

	h.log.Info("season snapshot captured",
		logger.SeasonID(seasonID),
		logger.Int("participants", snapshot.Participants),
		logger.Int64("pruned", result.Pruned),
	)
	return result, nil
}
