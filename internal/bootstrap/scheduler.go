package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/studyplan/studyplan-pvp/config"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/metrics"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/scheduler"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/scheduler/jobs"
)

// NewScheduler registers the timeout sweep and the ranking snapshot on
// their configured intervals. The caller starts and stops it. rec may be
// nil.
func NewScheduler(cfg *config.Config, engine *Engine, rec *metrics.Recorder, log *slog.Logger) (*scheduler.Scheduler, error) {
	schedCfg := scheduler.DefaultSchedulerConfig()
	schedCfg.Logger = log
	if rec != nil {
		schedCfg.Observer = rec
	}
	if cfg.App.Location != nil {
		schedCfg.Timezone = cfg.App.Location
	}
	if cfg.Scheduler.JobTimeout > 0 {
		schedCfg.JobTimeout = cfg.Scheduler.JobTimeout
	}
	sched, err := scheduler.NewScheduler(schedCfg)
	if err != nil {
		return nil, err
	}

	sweep := jobs.NewSweepTimeoutsJob(engine.SweepTimeouts, cfg.Scheduler.SweepBatchSize, log)
	if err := sched.Every(sweep, cfg.Scheduler.SweepInterval); err != nil {
		return nil, fmt.Errorf("register %s: %w", sweep.Name(), err)
	}
	snapshot := jobs.NewSnapshotRankingsJob(engine.SnapshotRankings, log)
	if err := sched.Every(snapshot, cfg.Scheduler.SnapshotInterval); err != nil {
		return nil, fmt.Errorf("register %s: %w", snapshot.Name(), err)
	}

	sched.OnJobError(func(name string, err error) {
		log.Error("scheduled job failed", "job", name, "error", err)
	})
	return sched, nil
}

// StopScheduler waits for running jobs, giving up after timeout.
func StopScheduler(sched *scheduler.Scheduler, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- sched.Stop() }()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, scheduler.ErrSchedulerNotRunning) {
			return fmt.Errorf("scheduler shutdown: %w", err)
		}
		return nil
	case <-time.After(timeout):
		return errors.New("scheduler shutdown timed out")
	}
}
