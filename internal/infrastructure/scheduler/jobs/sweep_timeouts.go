// Package jobs contains the periodic jobs run by the worker.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/studyplan/studyplan-pvp/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP TIMEOUTS JOB
// ══════════════════════════════════════════════════════════════════════════════

// TimeoutSweeper is the part of command.SweepTimeoutsHandler the job needs.
type TimeoutSweeper interface {
	Handle(ctx context.Context, cmd command.SweepTimeoutsCommand) (*command.SweepTimeoutsResult, error)
}

// SweepTimeoutsJob resolves matches whose time limit has passed. Several
// workers may run it at once.
type SweepTimeoutsJob struct {
	sweeper   TimeoutSweeper
	batchSize int
	logger    *slog.Logger

	last atomic.Pointer[command.SweepTimeoutsResult]
}

// NewSweepTimeoutsJob creates a new SweepTimeoutsJob.
func NewSweepTimeoutsJob(sweeper TimeoutSweeper, batchSize int, logger *slog.Logger) *SweepTimeoutsJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepTimeoutsJob{
		sweeper:   sweeper,
		batchSize: batchSize,
		logger:    logger.With(slog.String("job", "sweep_timeouts")),
	}
}

// Name implements scheduler.Job.
func (j *SweepTimeoutsJob) Name() string { return "sweep_timeouts" }

// Description implements scheduler.Job.
func (j *SweepTimeoutsJob) Description() string {
	return "Resolves IN_PROGRESS matches past their deadline as timeouts"
}

// Run performs one pass. A full batch is followed by another pass until
// the backlog is drained or the context ends.
func (j *SweepTimeoutsJob) Run(ctx context.Context) error {
	for {
		res, err := j.sweeper.Handle(ctx, command.SweepTimeoutsCommand{BatchSize: j.batchSize})
		if err != nil {
			return err
		}
		j.last.Store(res)

		full := j.batchSize > 0 && res.Scanned >= j.batchSize
		if !full || res.Resolved+res.Skipped == 0 {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.logger.Debug("backlog remains, sweeping again", slog.Int("scanned", res.Scanned))
	}
}

// LastResult returns the result of the latest pass, or nil.
func (j *SweepTimeoutsJob) LastResult() *command.SweepTimeoutsResult {
	return j.last.Load()
}
