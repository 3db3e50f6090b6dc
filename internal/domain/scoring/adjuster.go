package scoring

import "github.com/studyplan/studyplan-pvp/internal/domain/rating"

// Multipliers are integer percentages so that truncation is exact.
const (
	percentBase            = 100
	CompletionBonusPercent = 110
	MinLossPoints          = 10
)

// multiplierTable is the single source of the diploma/subject adjustment.
var multiplierTable = map[DiplomaCategory]map[SubjectCategory]int{
	DiplomaScience: {
		SubjectScience:    100,
		SubjectHumanities: 90,
		SubjectOther:      100,
	},
	DiplomaHumanities: {
		SubjectScience:    110,
		SubjectHumanities: 100,
		SubjectOther:      100,
	},
	DiplomaArtsPhysical: {
		SubjectScience:    110,
		SubjectHumanities: 110,
		SubjectOther:      110,
	},
}

// MultiplierPercent returns the adjustment for a diploma/subject pair.
func MultiplierPercent(d DiplomaCategory, s SubjectCategory) int {
	if row, ok := multiplierTable[d]; ok {
		if m, ok := row[s]; ok {
			return m
		}
	}
	return percentBase
}

// AdjustedScore applies the diploma multiplier and, when earned, the
// completion bonus. The result truncates toward zero.
func AdjustedScore(base int, d DiplomaCategory, s SubjectCategory, completionBonus bool) int {
	v := int64(base) * int64(MultiplierPercent(d, s))
	div := int64(percentBase)
	if completionBonus {
		v *= CompletionBonusPercent
		div *= percentBase
	}
	return int(v / div)
}

// PvpPoints returns the unadjusted points for one player.
// The rating-gap bonus is |myRating-opponentRating|/100 truncated.
// A player who never sent an answer earns nothing.
func PvpPoints(base int, o rating.Outcome, myRating, opponentRating float64, answered bool) int {
	if !answered || base <= 0 {
		return 0
	}
	diff := myRating - opponentRating
	if diff < 0 {
		diff = -diff
	}
	bonus := int(diff / 100)

	switch o {
	case rating.OutcomeWin:
		return base + bonus
	case rating.OutcomeLoss:
		return max(base/2-bonus/2, MinLossPoints)
	default:
		return base / 2
	}
}

// Adjuster computes final points for a resolved match.
type Adjuster struct {
	completionBonusEnabled bool
}

// NewAdjuster creates an adjuster. completionBonusEnabled switches the
// bonus for players who finished yesterday's plan.
func NewAdjuster(completionBonusEnabled bool) *Adjuster {
	return &Adjuster{completionBonusEnabled: completionBonusEnabled}
}

// PlayerInput is what the adjuster needs to know about one player.
type PlayerInput struct {
	Outcome        rating.Outcome
	Answered       bool
	RatingBefore   float64
	OpponentRating float64
	Diploma        string
	EarnedBonus    bool
}

// Points returns the final points awarded for the problem.
func (a *Adjuster) Points(baseScore int, subject string, p PlayerInput) int {
	raw := PvpPoints(baseScore, p.Outcome, p.RatingBefore, p.OpponentRating, p.Answered)
	if raw == 0 {
		return 0
	}
	bonus := a.completionBonusEnabled && p.EarnedBonus
	return AdjustedScore(raw, ClassifyDiploma(p.Diploma), ClassifySubject(subject), bonus)
}
