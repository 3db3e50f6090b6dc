package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/studyplan/studyplan-pvp/internal/domain/rating"
)

func TestClassifyDiploma(t *testing.T) {
	assert.Equal(t, DiplomaScience, ClassifyDiploma("IT"))
	assert.Equal(t, DiplomaScience, ClassifyDiploma(" IB(자연) "))
	assert.Equal(t, DiplomaHumanities, ClassifyDiploma("경제경영"))
	assert.Equal(t, DiplomaArtsPhysical, ClassifyDiploma("체육"))
	assert.Equal(t, DiplomaUnknown, ClassifyDiploma("요리"))
	assert.Equal(t, DiplomaUnknown, ClassifyDiploma(""))
}

func TestClassifySubject(t *testing.T) {
	assert.Equal(t, SubjectScience, ClassifySubject("화학I"))
	assert.Equal(t, SubjectHumanities, ClassifySubject("역사"))
	assert.Equal(t, SubjectOther, ClassifySubject("수학"))
	assert.Equal(t, SubjectOther, ClassifySubject("통합과학"))
}

func TestAdjustedScore_Table(t *testing.T) {
	cases := []struct {
		diploma DiplomaCategory
		subject SubjectCategory
		want    int
	}{
		{DiplomaScience, SubjectScience, 100},
		{DiplomaScience, SubjectHumanities, 90},
		{DiplomaScience, SubjectOther, 100},
		{DiplomaHumanities, SubjectScience, 110},
		{DiplomaHumanities, SubjectHumanities, 100},
		{DiplomaHumanities, SubjectOther, 100},
		{DiplomaArtsPhysical, SubjectScience, 110},
		{DiplomaArtsPhysical, SubjectHumanities, 110},
		{DiplomaArtsPhysical, SubjectOther, 110},
		{DiplomaUnknown, SubjectScience, 100},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, AdjustedScore(100, c.diploma, c.subject, false), "%s/%s", c.diploma, c.subject)
	}
}

func TestAdjustedScore_CompletionBonusStacksAndTruncates(t *testing.T) {
	// 15 * 1.1 = 16.5 -> 16
	assert.Equal(t, 16, AdjustedScore(15, DiplomaScience, SubjectScience, true))
	// 15 * 0.9 * 1.1 = 14.85 -> 14
	assert.Equal(t, 14, AdjustedScore(15, DiplomaScience, SubjectHumanities, true))
	// 10 * 1.1 * 1.1 = 12.1 -> 12
	assert.Equal(t, 12, AdjustedScore(10, DiplomaArtsPhysical, SubjectOther, true))
	// 7 * 0.9 = 6.3 -> 6
	assert.Equal(t, 6, AdjustedScore(7, DiplomaScience, SubjectHumanities, false))
}

func TestPvpPoints(t *testing.T) {
	assert.Equal(t, 103, PvpPoints(100, rating.OutcomeWin, 1500, 1200, true))
	assert.Equal(t, 49, PvpPoints(100, rating.OutcomeLoss, 1200, 1500, true))
	assert.Equal(t, 10, PvpPoints(20, rating.OutcomeLoss, 1200, 2000, true))
	assert.Equal(t, 50, PvpPoints(100, rating.OutcomeDraw, 1200, 1900, true))
	assert.Equal(t, 0, PvpPoints(100, rating.OutcomeLoss, 1200, 1200, false))
}

func TestAdjuster_Points(t *testing.T) {
	in := PlayerInput{
		Outcome:        rating.OutcomeWin,
		Answered:       true,
		RatingBefore:   1200,
		OpponentRating: 1200,
		Diploma:        "경제경영",
		EarnedBonus:    true,
	}

	// 100 * 1.1 (humanities track on a science subject) * 1.1 bonus
	assert.Equal(t, 121, NewAdjuster(true).Points(100, "물리I", in))
	assert.Equal(t, 110, NewAdjuster(false).Points(100, "물리I", in))

	in.Answered = false
	assert.Equal(t, 0, NewAdjuster(true).Points(100, "물리I", in))
}
