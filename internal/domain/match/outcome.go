package match

import (
	"strings"

	"golang.org/x/text/cases"
)

// SlotOutcome - всё, что резолверу нужно знать о слоте.
// Таймаут выражается как (Correct=false, ElapsedSeconds=лимит).
type SlotOutcome struct {
	Correct        bool
	ElapsedSeconds int
}

// TimeoutOutcome - исход игрока, не ответившего вовремя.
func TimeoutOutcome(limit int) SlotOutcome {
	return SlotOutcome{Correct: false, ElapsedSeconds: limit}
}

// Resolve определяет победителя по двум исходам.
//
//	верный против неверного      -> побеждает верный
//	оба верные, время различается -> побеждает быстрый
//	оба верные за одно время      -> ничья
//	оба неверные                  -> ничья
func Resolve(a, b SlotOutcome) Result {
	switch {
	case a.Correct && !b.Correct:
		return ResultPlayer1Win
	case !a.Correct && b.Correct:
		return ResultPlayer2Win
	case a.Correct && b.Correct:
		if a.ElapsedSeconds < b.ElapsedSeconds {
			return ResultPlayer1Win
		}
		if b.ElapsedSeconds < a.ElapsedSeconds {
			return ResultPlayer2Win
		}
		return ResultDraw
	default:
		return ResultDraw
	}
}

// ResolveForfeit - сдавшийся проигрывает всегда.
func ResolveForfeit(forfeiter Player) Result {
	if forfeiter == Player1 {
		return ResultPlayer2Win
	}
	return ResultPlayer1Win
}

// IsCorrectAnswer сравнивает ответы без учёта пробелов по краям и регистра.
// Регистр сворачивается по правилам Unicode, а не только ASCII.
func IsCorrectAnswer(given, expected string) bool {
	g := strings.TrimSpace(given)
	e := strings.TrimSpace(expected)
	if g == "" || e == "" {
		return false
	}
	if g == e {
		return true
	}
	// Caser хранит состояние, поэтому создаётся на каждый вызов.
	fold := cases.Fold()
	return fold.String(g) == fold.String(e)
}

// ClampElapsed обрезает время до лимита. Второе значение - был ли таймаут.
func ClampElapsed(elapsed, limit int) (int, bool) {
	if elapsed < 0 {
		elapsed = 0
	}
	if elapsed > limit {
		return limit, true
	}
	return elapsed, false
}
