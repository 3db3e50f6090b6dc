// Package scheduler runs the engine's periodic background work: resolving
// matches past their deadline and capturing season ranking snapshots.
// gocron owns the timing; runs here get a timeout, panic recovery and an
// observer callback.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// Job is one unit of periodic work.
type Job interface {
	Name() string
	Description() string

	// Run is cancelled when the scheduler stops or the run times out.
	Run(ctx context.Context) error
}

// JobResult describes one finished run.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     error         `json:"-"`
}

// Observer is told about every finished run.
type Observer interface {
	JobFinished(name string, took time.Duration, err error)
}

var (
	ErrSchedulerAlreadyRunning = errors.New("scheduler: already running")
	ErrSchedulerNotRunning     = errors.New("scheduler: not running")
	ErrJobAlreadyRegistered    = errors.New("scheduler: job already registered")
	ErrJobNotFound             = errors.New("scheduler: job not found")
	ErrInvalidInterval         = errors.New("scheduler: interval must be positive")
)

type SchedulerConfig struct {
	Logger *slog.Logger

	// Timezone gocron computes schedules in. Defaults to UTC.
	Timezone *time.Location

	// JobTimeout bounds a single run. Zero means no timeout.
	JobTimeout time.Duration

	// Observer may be nil.
	Observer Observer
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Logger:     slog.Default(),
		Timezone:   time.UTC,
		JobTimeout: 2 * time.Minute,
	}
}

type Scheduler struct {
	cron       gocron.Scheduler
	logger     *slog.Logger
	jobTimeout time.Duration
	observer   Observer

	mu        sync.RWMutex
	jobs      map[string]*scheduledJob
	running   bool
	ctx       context.Context
	cancel    context.CancelFunc
	startedAt time.Time
	onError   func(jobName string, err error)
}

type scheduledJob struct {
	job     Job
	every   time.Duration
	cronJob gocron.Job

	// guarded by Scheduler.mu
	runs     int64
	failures int64
	last     *JobResult
}

func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}

	cron, err := gocron.NewScheduler(gocron.WithLocation(cfg.Timezone))
	if err != nil {
		return nil, fmt.Errorf("scheduler: create: %w", err)
	}

	return &Scheduler{
		cron:       cron,
		logger:     cfg.Logger.With(slog.String("component", "scheduler")),
		jobTimeout: cfg.JobTimeout,
		observer:   cfg.Observer,
		jobs:       make(map[string]*scheduledJob),
		ctx:        context.Background(),
	}, nil
}

// Every registers job to run at a fixed interval. A run that is still in
// progress when the next one is due makes gocron skip that tick.
func (s *Scheduler) Every(job Job, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("%w: %s", ErrJobAlreadyRegistered, name)
	}

	sj := &scheduledJob{job: job, every: interval}
	cronJob, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.execute(s.runContext(), sj) }),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", name, err)
	}
	sj.cronJob = cronJob
	s.jobs[name] = sj

	s.logger.Info("job registered", slog.String("job", name), slog.Duration("every", interval))
	return nil
}

// OnJobError registers a hook called after a failed run.
func (s *Scheduler) OnJobError(fn func(jobName string, err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

func (s *Scheduler) runContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ctx
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrSchedulerAlreadyRunning
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.startedAt = time.Now()
	count := len(s.jobs)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", slog.Int("jobs_count", count))
	return nil
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()

	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("scheduler: shutdown: %w", err)
	}
	s.logger.Info("scheduler stopped", slog.Duration("uptime", time.Since(s.startedAt)))
	return nil
}

func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// RunNow executes a registered job immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, jobName string) (*JobResult, error) {
	s.mu.RLock()
	sj, ok := s.jobs[jobName]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobName)
	}
	res := s.execute(ctx, sj)
	return &res, res.Error
}

func (s *Scheduler) execute(ctx context.Context, sj *scheduledJob) JobResult {
	name := sj.job.Name()
	if s.jobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
		defer cancel()
	}

	start := time.Now()
	err := runRecovered(ctx, sj.job)
	res := JobResult{
		JobName:   name,
		StartedAt: start,
		Duration:  time.Since(start),
		Success:   err == nil,
		Error:     err,
	}

	s.mu.Lock()
	sj.runs++
	if err != nil {
		sj.failures++
	}
	sj.last = &res
	onError := s.onError
	s.mu.Unlock()

	if s.observer != nil {
		s.observer.JobFinished(name, res.Duration, err)
	}
	if err != nil {
		s.logger.Error("job failed",
			slog.String("job", name),
			slog.Duration("duration", res.Duration),
			slog.String("error", err.Error()),
		)
		if onError != nil {
			onError(name, err)
		}
		return res
	}
	s.logger.Debug("job completed", slog.String("job", name), slog.Duration("duration", res.Duration))
	return res
}

func runRecovered(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name(), r)
		}
	}()
	return job.Run(ctx)
}

// JobInfo describes a registered job.
type JobInfo struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Every       time.Duration `json:"every"`
	NextRun     time.Time     `json:"next_run,omitempty"`
	Runs        int64         `json:"runs"`
	Failures    int64         `json:"failures"`
	LastResult  *JobResult    `json:"last_result,omitempty"`
}

// ListJobs returns all registered jobs sorted by name.
func (s *Scheduler) ListJobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobInfo, 0, len(s.jobs))
	for name, sj := range s.jobs {
		info := JobInfo{
			Name:        name,
			Description: sj.job.Description(),
			Every:       sj.every,
			Runs:        sj.runs,
			Failures:    sj.failures,
			LastResult:  sj.last,
		}
		if next, err := sj.cronJob.NextRun(); err == nil {
			info.NextRun = next
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
