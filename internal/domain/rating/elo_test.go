package rating

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpectedScore(t *testing.T) {
	assert.InDelta(t, 0.5, ExpectedScore(1200, 1200), 1e-9)
	assert.InDelta(t, 0.9090909, ExpectedScore(1600, 1200), 1e-6)
	assert.InDelta(t, 1.0, ExpectedScore(1600, 1200)+ExpectedScore(1200, 1600), 1e-9)
}

func TestCompute_EqualRatings(t *testing.T) {
	e := NewEngine(0)
	a := NewRecord(1)
	b := NewRecord(2)

	ca, cb := e.Compute(a, b, OutcomeWin)
	assert.Equal(t, 1216.0, ca.After)
	assert.Equal(t, 1184.0, cb.After)
	assert.Equal(t, OutcomeLoss, cb.Outcome)

	ca, cb = e.Compute(a, b, OutcomeDraw)
	assert.Equal(t, 1200.0, ca.After)
	assert.Equal(t, 1200.0, cb.After)
}

func TestCompute_ZeroSum(t *testing.T) {
	e := NewEngine(32)
	cases := []struct {
		ra, rb float64
		o      Outcome
	}{
		{1500, 1200, OutcomeWin},
		{1500, 1200, OutcomeLoss},
		{900, 1800, OutcomeDraw},
		{2400, 100, OutcomeLoss},
	}

	for _, c := range cases {
		a := &Record{UserID: 1, Rating: c.ra}
		b := &Record{UserID: 2, Rating: c.rb}
		ca, cb := e.Compute(a, b, c.o)
		assert.InDelta(t, c.ra+c.rb, ca.After+cb.After, 1e-9)
		assert.InDelta(t, 0, ca.Delta+cb.Delta, 1e-9)
	}
}

func TestCompute_FloorAppliedAfterDeltas(t *testing.T) {
	e := NewEngine(32)
	a := &Record{UserID: 1, Rating: 5}
	b := &Record{UserID: 2, Rating: 10}

	ca, cb := e.Compute(a, b, OutcomeLoss)
	assert.Equal(t, 0.0, ca.After)
	assert.Less(t, ca.Delta, -5.0)
	// The winner's delta comes from the pre-update ratings, not the floored one.
	assert.InDelta(t, -ca.Delta, cb.Delta, 1e-9)
}

func TestRecord_Apply(t *testing.T) {
	r := NewRecord(7)
	now := time.Now()

	r.Apply(16, OutcomeWin, now)
	r.Apply(-2000, OutcomeLoss, now)
	r.Apply(0, OutcomeDraw, now)

	assert.Equal(t, 0.0, r.Rating)
	assert.Equal(t, 1, r.Wins)
	assert.Equal(t, 1, r.Losses)
	assert.Equal(t, 1, r.Draws)
	assert.Equal(t, 3, r.TotalMatches)
	assert.False(t, math.IsNaN(r.WinRate()))
	assert.InDelta(t, 1.0/3.0, r.WinRate(), 1e-9)
}
