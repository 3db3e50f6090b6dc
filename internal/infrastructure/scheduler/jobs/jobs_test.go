package jobs

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplan/studyplan-pvp/internal/application/command"
	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

type scriptedSweeper struct {
	results []*command.SweepTimeoutsResult
	calls   int
	err     error
}

func (s *scriptedSweeper) Handle(_ context.Context, cmd command.SweepTimeoutsCommand) (*command.SweepTimeoutsResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	res := s.results[s.calls]
	s.calls++
	return res, nil
}

func TestSweepTimeoutsJob_DrainsBacklog(t *testing.T) {
	sw := &scriptedSweeper{results: []*command.SweepTimeoutsResult{
		{Scanned: 10, Resolved: 10},
		{Scanned: 10, Resolved: 9, Skipped: 1},
		{Scanned: 3, Resolved: 3},
	}}
	job := NewSweepTimeoutsJob(sw, 10, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 3, sw.calls)
	assert.Equal(t, 3, job.LastResult().Resolved)
}

func TestSweepTimeoutsJob_StopsWhenNothingProgresses(t *testing.T) {
	sw := &scriptedSweeper{results: []*command.SweepTimeoutsResult{
		{Scanned: 10, Failed: 10},
	}}
	job := NewSweepTimeoutsJob(sw, 10, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, sw.calls)
}

func TestSweepTimeoutsJob_Error(t *testing.T) {
	job := NewSweepTimeoutsJob(&scriptedSweeper{err: errors.New("db down")}, 10, nil)
	assert.Error(t, job.Run(context.Background()))
	assert.Nil(t, job.LastResult())
	assert.Equal(t, "sweep_timeouts", job.Name())
}

type stubSnapshotter struct {
	res *command.SnapshotRankingsResult
	err error
}

func (s stubSnapshotter) Handle(context.Context, command.SnapshotRankingsCommand) (*command.SnapshotRankingsResult, error) {
	return s.res, s.err
}

func TestSnapshotRankingsJob(t *testing.T) {
	ok := NewSnapshotRankingsJob(stubSnapshotter{res: &command.SnapshotRankingsResult{
		Snapshot: &leaderboard.Snapshot{ID: "s1", SeasonID: 1, Participants: 4},
	}}, nil)
	assert.NoError(t, ok.Run(context.Background()))

	noSeason := NewSnapshotRankingsJob(stubSnapshotter{err: shared.ErrNoActiveSeason}, nil)
	assert.NoError(t, noSeason.Run(context.Background()), "no active season is skipped")

	broken := NewSnapshotRankingsJob(stubSnapshotter{err: errors.New("db down")}, nil)
	assert.Error(t, broken.Run(context.Background()))
}
