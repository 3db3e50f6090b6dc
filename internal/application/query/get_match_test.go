package query

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/rating"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/persistence/memory"
)

type fakeExpiry struct {
	calls int
}

func (f *fakeExpiry) ResolveExpired(_ context.Context, m *match.Match) (*match.Match, error) {
	f.calls++
	if !m.IsExpired(t0.Add(time.Hour)) {
		return m, nil
	}
	res, err := m.Decide(t0.Add(time.Hour), nil)
	if err != nil {
		return nil, err
	}
	out := m.Clone()
	return out, out.Apply(res)
}

func seedMatch(t *testing.T) (*memory.Store, *match.Match) {
	t.Helper()
	store := memory.NewStore(memory.Options{})
	store.AddProblem(match.Problem{ID: 7, SeasonID: 1, Title: "Capital", Content: "Capital of Korea?", Answer: "Seoul", Score: 40})

	m, err := match.NewMatch(match.NewMatchParams{ID: "m1", Player1ID: 1, Player2ID: 2, ProblemID: 7, SeasonID: 1, Now: t0})
	require.NoError(t, err)
	require.NoError(t, store.Matches().Create(context.Background(), m))

	ok, err := store.Matches().SetSlot(context.Background(), "m1", match.Player2, match.NewAnsweredSlot("Seoul", "Seoul", 20, 300, t0))
	require.NoError(t, err)
	require.True(t, ok)
	return store, m
}

func TestGetMatch_HidesOpponentAnswerWhileRunning(t *testing.T) {
	store, _ := seedMatch(t)
	h := NewGetMatchHandler(store.Matches(), store.Catalog(), nil)

	view, err := h.Handle(context.Background(), GetMatchQuery{MatchID: "m1", ViewerID: 1})
	require.NoError(t, err)

	assert.Equal(t, "IN_PROGRESS", view.Status)
	assert.Equal(t, t0.Add(300*time.Second), view.Deadline)
	assert.False(t, view.Player1.Submitted)
	assert.True(t, view.Player2.Submitted)
	assert.Nil(t, view.Player2.Answer)
	assert.Nil(t, view.Player2.ElapsedSeconds)

	own, err := h.Handle(context.Background(), GetMatchQuery{MatchID: "m1", ViewerID: 2})
	require.NoError(t, err)
	require.NotNil(t, own.Player2.Answer)
	assert.Equal(t, "Seoul", *own.Player2.Answer)
	assert.Nil(t, own.Player2.Correct, "correctness is revealed after completion")

	raw, err := json.Marshal(view)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "Seoul", "the answer never leaves the server")
}

func TestGetMatch_ResolvesExpiredAndRevealsAnswers(t *testing.T) {
	store, _ := seedMatch(t)
	expiry := &fakeExpiry{}
	h := NewGetMatchHandler(store.Matches(), store.Catalog(), expiry)

	view, err := h.Handle(context.Background(), GetMatchQuery{MatchID: "m1", ViewerID: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, expiry.calls)

	assert.Equal(t, "COMPLETED", view.Status)
	assert.Equal(t, "PLAYER2_WIN", view.Result)
	assert.Equal(t, "TIMEOUT", view.Reason)
	require.NotNil(t, view.Player2.Answer)
	assert.Equal(t, "Seoul", *view.Player2.Answer)
	require.NotNil(t, view.Player2.Correct)
	assert.True(t, *view.Player2.Correct)
	assert.True(t, view.Player1.TimedOut)
}

func TestGetMatch_Errors(t *testing.T) {
	store, _ := seedMatch(t)
	h := NewGetMatchHandler(store.Matches(), store.Catalog(), nil)
	ctx := context.Background()

	_, err := h.Handle(ctx, GetMatchQuery{MatchID: "m1", ViewerID: 3})
	assert.ErrorIs(t, err, shared.ErrNotAPlayer)

	_, err = h.Handle(ctx, GetMatchQuery{MatchID: "zzz", ViewerID: 1})
	assert.ErrorIs(t, err, shared.ErrMatchNotFound)

	_, err = h.Handle(ctx, GetMatchQuery{ViewerID: 1})
	assert.ErrorIs(t, err, shared.ErrMatchNotFound)
}

func TestGetPvpStats(t *testing.T) {
	store := memory.NewStore(memory.Options{})
	ctx := context.Background()
	h := NewGetPvpStatsHandler(store.Ratings(), 0)

	fresh, err := h.Handle(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1200, fresh.Rating)
	assert.Zero(t, fresh.TotalMatches)

	require.NoError(t, store.Ratings().Apply(ctx, 5, 16.4, rating.OutcomeWin, t0))
	require.NoError(t, store.Ratings().Apply(ctx, 6, -16.4, rating.OutcomeLoss, t0))

	got, err := h.Handle(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 1216, got.Rating)
	assert.InDelta(t, 1216.4, got.RatingExact, 1e-9)
	assert.Equal(t, 1, got.Wins)
	assert.Equal(t, 1.0, got.WinRate)

	top, err := h.Top(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, int64(5), top[0].UserID)

	_, err = h.Handle(ctx, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidUserID)
}

func TestGetScoreHistory(t *testing.T) {
	store := memory.NewStore(memory.Options{})
	store.AddSeason(shared.Season{ID: 1, IsActive: true})
	ctx := context.Background()

	require.NoError(t, store.Scores().AddPoints(ctx, 1, 1, t0, 40))
	require.NoError(t, store.Scores().AddPoints(ctx, 1, 1, t0.Add(24*time.Hour), 20))

	h := NewGetScoreHistoryHandler(store.Scores(), store.Catalog())
	res, err := h.Handle(ctx, GetScoreHistoryQuery{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.SeasonID)
	assert.Len(t, res.Entries, 2)
	assert.Equal(t, 60, res.TotalScore)

	res, err = h.Handle(ctx, GetScoreHistoryQuery{UserID: 2})
	require.NoError(t, err)
	assert.NotNil(t, res.Entries)
	assert.Zero(t, res.TotalScore)
}
