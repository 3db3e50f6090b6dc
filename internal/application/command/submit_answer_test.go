package command

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/timeutil"
)

func startMatch(t *testing.T, env *testEnv, p1, p2 int64) *match.Match {
	t.Helper()
	env.addUsers(p1, p2)
	res, err := env.create.Handle(context.Background(), CreateMatchCommand{PlayerID: p1, OpponentID: p2})
	require.NoError(t, err)
	return res.Match
}

func submit(t *testing.T, env *testEnv, m *match.Match, userID int64, answer string, elapsed int) *SubmitAnswerResult {
	t.Helper()
	res, err := env.submit.Handle(context.Background(), SubmitAnswerCommand{
		MatchID: m.ID, UserID: userID, Answer: answer, ElapsedSeconds: intPtr(elapsed),
	})
	require.NoError(t, err)
	return res
}

func assertRating(t *testing.T, env *testEnv, userID int64, want float64) {
	t.Helper()
	rec, err := env.store.Ratings().Get(context.Background(), userID)
	require.NoError(t, err)
	assert.InDelta(t, want, rec.Rating, 1e-9)
}

func dailyScore(t *testing.T, env *testEnv, userID int64) int {
	t.Helper()
	rows, err := env.store.Scores().DailyScores(context.Background(), testSeasonID, timeutil.DayKey(env.clock.Now()))
	require.NoError(t, err)
	for _, r := range rows {
		if r.UserID == userID {
			return r.Score
		}
	}
	return 0
}

func TestSubmitAnswer_FasterCorrectAnswerWins(t *testing.T) {
	env := newTestEnv(t)
	m := startMatch(t, env, 1, 2)

	first := submit(t, env, m, 1, "  photosynthesis ", 30)
	assert.True(t, first.Accepted)
	assert.False(t, first.MatchComplete)
	assert.Equal(t, match.StatusInProgress, first.Match.Status)

	second := submit(t, env, m, 2, testAnswer, 45)
	require.True(t, second.Accepted)
	require.True(t, second.MatchComplete)

	final := second.Match
	assert.Equal(t, match.StatusCompleted, final.Status)
	assert.Equal(t, match.ResultPlayer1Win, final.Result)
	assert.Equal(t, match.ReasonAnswered, final.Reason)
	require.NotNil(t, final.WinnerID)
	assert.Equal(t, int64(1), *final.WinnerID)

	assertRating(t, env, 1, 1216)
	assertRating(t, env, 2, 1184)
	assert.Equal(t, 40, dailyScore(t, env, 1))
	assert.Equal(t, 20, dailyScore(t, env, 2))

	events := env.publisher.resolved()
	require.Len(t, events, 1)
	assert.Equal(t, 40, events[0].Player1.Points)
	assert.Equal(t, 20, events[0].Player2.Points)
	assert.InDelta(t, 1216, events[0].Player1.RatingAfter, 1e-9)
}

func TestSubmitAnswer_EqualTimeIsDraw(t *testing.T) {
	env := newTestEnv(t)
	m := startMatch(t, env, 1, 2)

	submit(t, env, m, 1, testAnswer, 50)
	res := submit(t, env, m, 2, testAnswer, 50)

	assert.Equal(t, match.ResultDraw, res.Match.Result)
	assert.Nil(t, res.Match.WinnerID)
	assertRating(t, env, 1, 1200)
	assertRating(t, env, 2, 1200)
	assert.Equal(t, 20, dailyScore(t, env, 1))
	assert.Equal(t, 20, dailyScore(t, env, 2))
}

func TestSubmitAnswer_CorrectBeatsWrong(t *testing.T) {
	env := newTestEnv(t)
	m := startMatch(t, env, 1, 2)

	submit(t, env, m, 1, "respiration", 5)
	res := submit(t, env, m, 2, testAnswer, 200)

	assert.Equal(t, match.ResultPlayer2Win, res.Match.Result)
	assertRating(t, env, 2, 1216)
}

func TestSubmitAnswer_CompletionBonusUsesPreviousDay(t *testing.T) {
	env := newTestEnv(t)
	m := startMatch(t, env, 1, 2)

	env.store.MarkPlanCompleted(1, t0.Add(-24*time.Hour))
	env.store.MarkPlanCompleted(2, t0) // today's plan does not count yet

	submit(t, env, m, 1, testAnswer, 10)
	submit(t, env, m, 2, testAnswer, 20)

	assert.Equal(t, 44, dailyScore(t, env, 1))
	assert.Equal(t, 20, dailyScore(t, env, 2))
}

func TestSubmitAnswer_DuplicateIsRejected(t *testing.T) {
	env := newTestEnv(t)
	m := startMatch(t, env, 1, 2)

	submit(t, env, m, 1, "wrong", 10)
	res := submit(t, env, m, 1, testAnswer, 11)

	assert.False(t, res.Accepted)
	assert.Equal(t, RejectDuplicateSubmission, res.RejectReason)
	assert.Equal(t, "wrong", *res.Match.Player1.Answer)
}

func TestSubmitAnswer_AfterCompletionIsRejected(t *testing.T) {
	env := newTestEnv(t)
	m := startMatch(t, env, 1, 2)

	ctx := context.Background()
	_, err := env.forfeit.Handle(ctx, ForfeitCommand{MatchID: m.ID, UserID: 2})
	require.NoError(t, err)

	before1, err := env.store.Ratings().Get(ctx, 1)
	require.NoError(t, err)
	before2, err := env.store.Ratings().Get(ctx, 2)
	require.NoError(t, err)
	score1, score2 := dailyScore(t, env, 1), dailyScore(t, env, 2)

	for _, uid := range []int64{1, 2} {
		res := submit(t, env, m, uid, testAnswer, 10)
		assert.False(t, res.Accepted)
		assert.Equal(t, RejectAlreadyResolved, res.RejectReason)
		assert.True(t, res.MatchComplete)
	}
	assert.Len(t, env.publisher.resolved(), 1)

	after1, err := env.store.Ratings().Get(ctx, 1)
	require.NoError(t, err)
	after2, err := env.store.Ratings().Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, *before1, *after1)
	assert.Equal(t, *before2, *after2)
	assert.Equal(t, score1, dailyScore(t, env, 1))
	assert.Equal(t, score2, dailyScore(t, env, 2))
}

func TestSubmitAnswer_ConcurrentDuplicatesKeepOneSlot(t *testing.T) {
	env := newTestEnv(t)
	m := startMatch(t, env, 1, 2)
	const n = 10

	results := make([]*SubmitAnswerResult, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := env.submit.Handle(context.Background(), SubmitAnswerCommand{
				MatchID: m.ID, UserID: 1, Answer: fmt.Sprintf("answer-%d", i), ElapsedSeconds: intPtr(10 + i),
			})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	accepted := 0
	for _, res := range results {
		require.NotNil(t, res)
		if res.Accepted {
			accepted++
			continue
		}
		assert.Equal(t, RejectDuplicateSubmission, res.RejectReason)
	}
	assert.Equal(t, 1, accepted)
	assert.Empty(t, env.publisher.resolved(), "the opponent has not answered yet")

	res := submit(t, env, m, 2, testAnswer, 50)
	require.True(t, res.MatchComplete)
	assert.Len(t, env.publisher.resolved(), 1)

	for _, uid := range []int64{1, 2} {
		rec, err := env.store.Ratings().Get(context.Background(), uid)
		require.NoError(t, err)
		assert.Equal(t, 1, rec.TotalMatches)
	}
}

func TestSubmitAnswer_LateAnswerTimesOut(t *testing.T) {
	env := newTestEnv(t)
	m := startMatch(t, env, 1, 2)

	env.clock.Advance(301 * time.Second)
	// the client claims 10 seconds but the server clock says otherwise
	res := submit(t, env, m, 1, testAnswer, 10)

	require.True(t, res.Accepted)
	require.True(t, res.MatchComplete)
	final := res.Match
	assert.Equal(t, match.ReasonTimeout, final.Reason)
	assert.Equal(t, match.ResultDraw, final.Result)
	assert.True(t, final.Player1.TimedOut)
	assert.Equal(t, 300, final.Player1.ElapsedSeconds)
	assert.True(t, final.Player2.TimedOut)
	assert.Nil(t, final.Player2.Answer)

	// the answering player earns the draw half, the silent one nothing
	assert.Equal(t, 20, dailyScore(t, env, 1))
	assert.Equal(t, 0, dailyScore(t, env, 2))
}

func TestSubmitAnswer_ServerClockWhenElapsedOmitted(t *testing.T) {
	env := newTestEnv(t)
	m := startMatch(t, env, 1, 2)

	env.clock.Advance(42 * time.Second)
	res, err := env.submit.Handle(context.Background(), SubmitAnswerCommand{MatchID: m.ID, UserID: 1, Answer: testAnswer})
	require.NoError(t, err)
	require.True(t, res.Accepted)
	assert.Equal(t, 42, res.Match.Player1.ElapsedSeconds)
}

func TestSubmitAnswer_Validation(t *testing.T) {
	env := newTestEnv(t)
	m := startMatch(t, env, 1, 2)
	ctx := context.Background()

	_, err := env.submit.Handle(ctx, SubmitAnswerCommand{MatchID: m.ID, UserID: 3, Answer: "x"})
	assert.ErrorIs(t, err, shared.ErrNotAPlayer)

	_, err = env.submit.Handle(ctx, SubmitAnswerCommand{MatchID: "nope", UserID: 1, Answer: "x"})
	assert.ErrorIs(t, err, shared.ErrMatchNotFound)

	_, err = env.submit.Handle(ctx, SubmitAnswerCommand{MatchID: m.ID, UserID: 1, Answer: "x", ElapsedSeconds: intPtr(-1)})
	assert.ErrorIs(t, err, shared.ErrNegativeElapsed)

	_, err = env.submit.Handle(ctx, SubmitAnswerCommand{MatchID: "", UserID: 1})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}
