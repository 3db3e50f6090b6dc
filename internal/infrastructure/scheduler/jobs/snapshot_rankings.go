package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/studyplan/studyplan-pvp/internal/application/command"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// RankingSnapshotter is the part of command.SnapshotRankingsHandler the job
// needs.
type RankingSnapshotter interface {
	Handle(ctx context.Context, cmd command.SnapshotRankingsCommand) (*command.SnapshotRankingsResult, error)
}

// SnapshotRankingsJob stores the active season's ranking as the baseline
// for season rank changes.
type SnapshotRankingsJob struct {
	snapshotter RankingSnapshotter
	logger      *slog.Logger
}

// NewSnapshotRankingsJob creates a new SnapshotRankingsJob.
func NewSnapshotRankingsJob(snapshotter RankingSnapshotter, logger *slog.Logger) *SnapshotRankingsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SnapshotRankingsJob{
		snapshotter: snapshotter,
		logger:      logger.With(slog.String("job", "snapshot_rankings")),
	}
}

// Name implements scheduler.Job.
func (j *SnapshotRankingsJob) Name() string { return "snapshot_rankings" }

// Description implements scheduler.Job.
func (j *SnapshotRankingsJob) Description() string {
	return "Captures the active season ranking for rank change tracking"
}

// Run captures one snapshot. Having no active season is not a failure.
func (j *SnapshotRankingsJob) Run(ctx context.Context) error {
	res, err := j.snapshotter.Handle(ctx, command.SnapshotRankingsCommand{})
	if errors.Is(err, shared.ErrNoActiveSeason) {
		j.logger.Debug("no active season, snapshot skipped")
		return nil
	}
	if err != nil {
		return err
	}

	j.logger.Info("season ranking captured",
		slog.Int64("season_id", res.Snapshot.SeasonID),
		slog.Int("participants", res.Snapshot.Participants),
		slog.Int64("pruned", res.Pruned),
	)
	return nil
}
