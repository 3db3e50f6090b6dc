package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

func TestCreateMatch(t *testing.T) {
	env := newTestEnv(t)
	env.addUsers(1, 2)

	res, err := env.create.Handle(context.Background(), CreateMatchCommand{PlayerID: 1, OpponentID: 2})
	require.NoError(t, err)

	m := res.Match
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, match.StatusInProgress, m.Status)
	assert.Equal(t, testProblemID, m.ProblemID)
	assert.Equal(t, testSeasonID, m.SeasonID)
	assert.Equal(t, match.DefaultTimeLimitSeconds, m.TimeLimitSeconds)
	assert.Equal(t, t0, m.StartedAt)
	assert.Equal(t, testAnswer, res.Problem.Answer)
	assert.Equal(t, 1, env.publisher.count(shared.EventMatchCreated))
}

func TestCreateMatch_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.addUsers(1, 2, 3)
	ctx := context.Background()

	_, err := env.create.Handle(ctx, CreateMatchCommand{PlayerID: 1, OpponentID: 1})
	assert.ErrorIs(t, err, shared.ErrSelfMatch)

	_, err = env.create.Handle(ctx, CreateMatchCommand{PlayerID: 0, OpponentID: 1})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)

	_, err = env.create.Handle(ctx, CreateMatchCommand{PlayerID: 1, OpponentID: 99})
	assert.ErrorIs(t, err, shared.ErrUserNotFound)

	_, err = env.create.Handle(ctx, CreateMatchCommand{PlayerID: 1, OpponentID: 2})
	require.NoError(t, err)

	_, err = env.create.Handle(ctx, CreateMatchCommand{PlayerID: 3, OpponentID: 2})
	assert.ErrorIs(t, err, shared.ErrAlreadyInMatch)
}

func TestCreateMatch_ResolvesExpiredActiveMatchFirst(t *testing.T) {
	env := newTestEnv(t)
	env.addUsers(3)
	old := startMatch(t, env, 1, 2)

	env.clock.Advance(10 * time.Minute)
	res, err := env.create.Handle(context.Background(), CreateMatchCommand{PlayerID: 1, OpponentID: 3})
	require.NoError(t, err)
	assert.NotEqual(t, old.ID, res.Match.ID)

	prev, err := env.store.Matches().FindByID(context.Background(), old.ID)
	require.NoError(t, err)
	assert.Equal(t, match.StatusCompleted, prev.Status)
	assert.Equal(t, match.ReasonTimeout, prev.Reason)
}

func TestCreateMatch_NoProblems(t *testing.T) {
	env := newTestEnv(t)
	env.addUsers(1, 2)
	env.store.AddSeason(shared.Season{ID: testSeasonID, IsActive: false})
	env.store.AddSeason(shared.Season{ID: 9, IsActive: true})

	_, err := env.create.Handle(context.Background(), CreateMatchCommand{PlayerID: 1, OpponentID: 2})
	assert.ErrorIs(t, err, shared.ErrNoProblemsAvailable)
}

func TestJoinQueue_PairsWithLongestWaiting(t *testing.T) {
	env := newTestEnv(t)
	env.addUsers(1, 2, 3)
	ctx := context.Background()

	res, err := env.join.Handle(ctx, JoinQueueCommand{UserID: 1})
	require.NoError(t, err)
	assert.True(t, res.Waiting)

	// joining twice keeps a single entry
	res, err = env.join.Handle(ctx, JoinQueueCommand{UserID: 1})
	require.NoError(t, err)
	assert.True(t, res.Waiting)
	size, _ := env.queue.Size(ctx)
	assert.Equal(t, 1, size)

	res, err = env.join.Handle(ctx, JoinQueueCommand{UserID: 2})
	require.NoError(t, err)
	require.NotNil(t, res.Created)
	assert.Equal(t, int64(1), res.Created.Match.Player1ID)
	assert.Equal(t, int64(2), res.Created.Match.Player2ID)

	size, _ = env.queue.Size(ctx)
	assert.Zero(t, size)

	_, err = env.join.Handle(ctx, JoinQueueCommand{UserID: 2})
	assert.ErrorIs(t, err, shared.ErrAlreadyInMatch)
}

func TestJoinQueue_SkipsBusyOpponent(t *testing.T) {
	env := newTestEnv(t)
	env.addUsers(1, 2, 3, 4)
	ctx := context.Background()

	_, err := env.join.Handle(ctx, JoinQueueCommand{UserID: 1})
	require.NoError(t, err)
	// user 1 gets a targeted match while waiting
	_, err = env.create.Handle(ctx, CreateMatchCommand{PlayerID: 1, OpponentID: 4})
	require.NoError(t, err)

	res, err := env.join.Handle(ctx, JoinQueueCommand{UserID: 2})
	require.NoError(t, err)
	assert.True(t, res.Waiting, "busy opponent is dropped and the requester waits")

	res, err = env.join.Handle(ctx, JoinQueueCommand{UserID: 3})
	require.NoError(t, err)
	require.NotNil(t, res.Created)
	assert.Equal(t, int64(2), res.Created.Match.Player1ID)
}

func TestLeaveQueue(t *testing.T) {
	env := newTestEnv(t)
	env.addUsers(1)
	ctx := context.Background()

	_, err := env.join.Handle(ctx, JoinQueueCommand{UserID: 1})
	require.NoError(t, err)

	removed, err := env.leave.Handle(ctx, LeaveQueueCommand{UserID: 1})
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = env.leave.Handle(ctx, LeaveQueueCommand{UserID: 1})
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = env.leave.Handle(ctx, LeaveQueueCommand{})
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}
