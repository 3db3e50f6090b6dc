package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplan/studyplan-pvp/config"
	"github.com/studyplan/studyplan-pvp/internal/application/command"
	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/persistence/memory"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		PVP: config.PVPConfig{
			TimeLimitSeconds: 300,
			KFactor:          32,
			InitialRating:    1200,
			QueueTTL:         time.Minute,
		},
		Leaderboard: config.LeaderboardConfig{CacheTTL: time.Minute},
		Redis:       config.RedisConfig{Disabled: true},
		Scheduler: config.SchedulerConfig{
			Enabled:          true,
			SweepInterval:    time.Minute,
			SweepBatchSize:   50,
			SnapshotInterval: time.Hour,
		},
		Features: config.LoadFeatureFlags(),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSeedDemo_IsDeterministic(t *testing.T) {
	ctx := context.Background()
	a := memory.NewStore(memory.Options{InitialRating: 1200})
	b := memory.NewStore(memory.Options{InitialRating: 1200})
	size := DemoSize{Users: 5, Problems: 3}
	SeedDemo(a, size, 7)
	SeedDemo(b, size, 7)

	for id := int64(1); id <= 3; id++ {
		pa, err := a.Catalog().FindProblem(ctx, id)
		require.NoError(t, err)
		pb, err := b.Catalog().FindProblem(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, pa.Answer, pb.Answer)
		assert.Contains(t, pa.Choices, pa.Answer)
	}

	season, err := a.Catalog().ActiveSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), season.ID)

	ok, err := a.Catalog().UserExists(ctx, 5)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = a.Catalog().UserExists(ctx, 6)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryStack_CreatesMatch(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	log := discardLogger()

	storage, err := OpenStorage(ctx, cfg, log)
	require.NoError(t, err)
	defer storage.Close()
	require.NotNil(t, storage.Memory)
	assert.Nil(t, storage.Conn)

	shared, err := OpenSharedState(ctx, cfg, log)
	require.NoError(t, err)
	defer shared.Close()
	assert.Nil(t, shared.Redis)

	events, err := OpenEvents(cfg, shared.RankingCache, log)
	require.NoError(t, err)
	defer events.Close()
	assert.Nil(t, events.Forwarder)

	engine := NewEngine(cfg, storage, shared, events, nil, logger.Nop())
	res, err := engine.CreateMatch.Handle(ctx, command.CreateMatchCommand{PlayerID: 1, OpponentID: 2, Source: command.SourceTargeted})
	require.NoError(t, err)
	assert.Equal(t, match.StatusInProgress, res.Match.Status)
	assert.Equal(t, 300, res.Match.TimeLimitSeconds)

	n, err := storage.Matches.CountActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewScheduler_RegistersJobs(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	log := discardLogger()

	storage, err := OpenStorage(ctx, cfg, log)
	require.NoError(t, err)
	shared, err := OpenSharedState(ctx, cfg, log)
	require.NoError(t, err)
	events, err := OpenEvents(cfg, shared.RankingCache, log)
	require.NoError(t, err)
	defer events.Close()

	sched, err := NewScheduler(cfg, NewEngine(cfg, storage, shared, events, nil, logger.Nop()), nil, log)
	require.NoError(t, err)

	var names []string
	for _, j := range sched.ListJobs() {
		names = append(names, j.Name)
	}
	assert.Equal(t, []string{"snapshot_rankings", "sweep_timeouts"}, names)

	require.NoError(t, sched.Start(ctx))
	require.NoError(t, StopScheduler(sched, 5*time.Second))
}
