package leaderboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

func TestBuildRanking_DeterministicTieBreak(t *testing.T) {
	rows := []ScoreRow{
		{UserID: 9, Score: 50},
		{UserID: 3, Score: 80},
		{UserID: 5, Score: 50},
		{UserID: 1, Score: 50},
	}

	r := BuildRanking(rows)
	require.Equal(t, 4, r.Count())

	var order []int64
	for _, e := range r.All() {
		order = append(order, e.UserID)
	}
	assert.Equal(t, []int64{3, 1, 5, 9}, order)
	assert.Equal(t, Rank(2), r.GetByID(1).Rank)
	assert.Equal(t, Rank(4), r.GetByID(9).Rank)

	// Input order does not matter.
	reversed := []ScoreRow{rows[3], rows[2], rows[1], rows[0]}
	assert.Equal(t, r.Ranks(), BuildRanking(reversed).Ranks())
}

func TestRanking_ApplyPrevious(t *testing.T) {
	r := BuildRanking([]ScoreRow{
		{UserID: 1, Score: 30},
		{UserID: 2, Score: 20},
		{UserID: 3, Score: 10},
	})
	r.ApplyPrevious(map[int64]Rank{1: 2, 2: 1})

	assert.Equal(t, RankChange(1), r.GetByID(1).RankChange)
	assert.Equal(t, RankDirectionUp, r.GetByID(1).Direction)
	assert.Equal(t, RankChange(-1), r.GetByID(2).RankChange)
	assert.Equal(t, RankDirectionDown, r.GetByID(2).Direction)
	assert.Equal(t, RankDirectionNew, r.GetByID(3).Direction)
	assert.Equal(t, RankChange(0), r.GetByID(3).RankChange)
}

func TestRanking_FilterByDiploma(t *testing.T) {
	r := BuildRanking([]ScoreRow{
		{UserID: 1, Diploma: "IT", Score: 10},
		{UserID: 2, Diploma: "경제경영", Score: 40},
		{UserID: 3, Diploma: "수학", Score: 30},
	})

	science := r.FilterByDiploma(DiplomaFilter("science"))
	require.Equal(t, 2, science.Count())
	assert.Equal(t, int64(3), science.GetByRank(1).UserID)
	assert.Equal(t, int64(1), science.GetByRank(2).UserID)

	exact := r.FilterByDiploma(DiplomaFilter("경제경영"))
	require.Equal(t, 1, exact.Count())
	assert.Equal(t, Rank(1), exact.GetByID(2).Rank)

	// The source ranking is untouched.
	assert.Equal(t, Rank(3), r.GetByID(1).Rank)
}

func TestRanking_NeighborsAndStatistics(t *testing.T) {
	var rows []ScoreRow
	for i := int64(1); i <= 20; i++ {
		rows = append(rows, ScoreRow{UserID: i, Score: int(100 - i)})
	}
	r := BuildRanking(rows)

	around := r.Neighbors(10, 5)
	require.Len(t, around, 11)
	assert.Equal(t, Rank(5), around[0].Rank)
	assert.Equal(t, Rank(15), around[10].Rank)

	edge := r.Neighbors(1, 5)
	assert.Len(t, edge, 6)
	assert.Nil(t, r.Neighbors(99, 5))

	stats := r.Statistics()
	assert.Equal(t, 20, stats.Participants)
	assert.Equal(t, int64(1790), stats.TotalScore)
	assert.Equal(t, 99, stats.MaxScore)
	assert.InDelta(t, 89.5, stats.AverageScore, 1e-9)
}

func TestSnapshot_Ranks(t *testing.T) {
	r := BuildRanking([]ScoreRow{{UserID: 4, Score: 5}, {UserID: 2, Score: 9}})
	s := NewSnapshot("snap-1", 1, r, time.Now())

	assert.Equal(t, 2, s.Participants)
	assert.Equal(t, Rank(1), s.GetRank(2))
	assert.Equal(t, Rank(0), s.GetRank(7))
	assert.True(t, s.Contains(4))
	assert.Equal(t, map[int64]Rank{2: 1, 4: 2}, s.Ranks())
}

func TestParseScope(t *testing.T) {
	s, err := ParseScope(" Daily ")
	assert.NoError(t, err)
	assert.Equal(t, ScopeDaily, s)

	_, err = ParseScope("weekly")
	assert.ErrorIs(t, err, ErrInvalidScope)
	assert.True(t, shared.IsValidation(err), "an unknown scope is the caller's fault")
}

func TestErrInvalidPoints_IsValidation(t *testing.T) {
	assert.True(t, shared.IsValidation(ErrInvalidPoints))
	assert.ErrorIs(t, ErrInvalidPoints, shared.ErrNegativeValue)
}
