package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingJob struct {
	name  string
	runs  atomic.Int64
	fail  error
	panic bool
	block bool
}

func (j *countingJob) Name() string        { return j.name }
func (j *countingJob) Description() string { return "test job" }

func (j *countingJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.panic {
		panic("boom")
	}
	if j.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return j.fail
}

type recordingObserver struct {
	mu       sync.Mutex
	finished []string
	failed   int
}

func (o *recordingObserver) JobFinished(name string, _ time.Duration, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, name)
	if err != nil {
		o.failed++
	}
}

func newTestScheduler(t *testing.T, timeout time.Duration) (*Scheduler, *recordingObserver) {
	t.Helper()
	obs := &recordingObserver{}
	cfg := DefaultSchedulerConfig()
	cfg.JobTimeout = timeout
	cfg.Observer = obs
	s, err := NewScheduler(cfg)
	require.NoError(t, err)
	return s, obs
}

func TestScheduler_Register(t *testing.T) {
	s, _ := newTestScheduler(t, 0)

	require.NoError(t, s.Every(&countingJob{name: "a"}, time.Minute))
	err := s.Every(&countingJob{name: "a"}, time.Minute)
	assert.ErrorIs(t, err, ErrJobAlreadyRegistered)
	assert.ErrorIs(t, s.Every(&countingJob{name: "b"}, 0), ErrInvalidInterval)

	jobs := s.ListJobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, time.Minute, jobs[0].Every)
}

func TestScheduler_RunsOnInterval(t *testing.T) {
	s, obs := newTestScheduler(t, time.Second)
	job := &countingJob{name: "tick"}
	require.NoError(t, s.Every(job, 50*time.Millisecond))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerAlreadyRunning)

	assert.Eventually(t, func() bool { return job.runs.Load() >= 2 }, 3*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.IsRunning())
	assert.ErrorIs(t, s.Stop(), ErrSchedulerNotRunning)

	info := s.ListJobs()[0]
	assert.GreaterOrEqual(t, info.Runs, int64(2))
	assert.Zero(t, info.Failures)
	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.GreaterOrEqual(t, len(obs.finished), 2)
}

func TestScheduler_RunNow(t *testing.T) {
	s, obs := newTestScheduler(t, 0)
	ok := &countingJob{name: "ok"}
	bad := &countingJob{name: "bad", fail: errors.New("db down")}
	require.NoError(t, s.Every(ok, time.Hour))
	require.NoError(t, s.Every(bad, time.Hour))

	var failed []string
	s.OnJobError(func(name string, _ error) { failed = append(failed, name) })

	res, err := s.RunNow(context.Background(), "ok")
	require.NoError(t, err)
	assert.True(t, res.Success)

	res, err = s.RunNow(context.Background(), "bad")
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"bad"}, failed)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.Equal(t, []string{"ok", "bad"}, obs.finished)
	assert.Equal(t, 1, obs.failed)

	jobs := s.ListJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "bad", jobs[0].Name)
	require.NotNil(t, jobs[0].LastResult)
	assert.False(t, jobs[0].LastResult.Success)
	assert.Equal(t, int64(1), jobs[0].Failures)
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s, _ := newTestScheduler(t, 0)
	require.NoError(t, s.Every(&countingJob{name: "p", panic: true}, time.Hour))

	res, err := s.RunNow(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.False(t, res.Success)
}

func TestScheduler_JobTimeout(t *testing.T) {
	s, _ := newTestScheduler(t, 20*time.Millisecond)
	require.NoError(t, s.Every(&countingJob{name: "slow", block: true}, time.Hour))

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
