// Package leaderboard содержит доменную модель рейтингов StudyPlan.
// Источник правды - дневные очки игроков (ScoreEntry); таблицы рангов
// строятся из них при чтении и никогда не хранятся как первичные данные.
// Снапшоты сезона сохраняются только для вычисления изменения позиции.
package leaderboard

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/scoring"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// Ошибки валидации; транспорт отвечает на них 400.
var (
	ErrInvalidScope  = shared.ErrInvalidScope
	ErrInvalidPoints = shared.NewDomainError("leaderboard", "AddPoints", shared.ErrNegativeValue, "points cannot be negative")
)

// Rank - позиция в рейтинге, начиная с 1. Ноль означает "нет в рейтинге".
type Rank int

func (r Rank) IsValid() bool { return r > 0 }

// RankChange - предыдущий ранг минус текущий: плюс значит подъём.
type RankChange int

func (rc RankChange) Direction() RankDirection {
	switch {
	case rc > 0:
		return RankDirectionUp
	case rc < 0:
		return RankDirectionDown
	}
	return RankDirectionStable
}

type RankDirection string

const (
	RankDirectionUp     RankDirection = "up"
	RankDirectionDown   RankDirection = "down"
	RankDirectionStable RankDirection = "stable"
	// RankDirectionNew - игрока не было в предыдущем снапшоте.
	RankDirectionNew RankDirection = "new"
)

// Scope - период, за который строится рейтинг.
type Scope string

const (
	ScopeDaily  Scope = "daily"
	ScopeSeason Scope = "season"
)

func ParseScope(s string) (Scope, error) {
	sc := Scope(strings.ToLower(strings.TrimSpace(s)))
	if sc != ScopeDaily && sc != ScopeSeason {
		return "", ErrInvalidScope
	}
	return sc, nil
}

// DiplomaFilter ограничивает рейтинг треком диплома: категорией
// ("science") или точным названием ("IT"). Пустой фильтр пропускает всех.
type DiplomaFilter string

func (f DiplomaFilter) Matches(diploma string) bool {
	if f == "" {
		return true
	}
	if cat, ok := scoring.ParseDiplomaCategory(string(f)); ok {
		return scoring.ClassifyDiploma(diploma) == cat
	}
	return strings.TrimSpace(diploma) == strings.TrimSpace(string(f))
}

// ScoreEntry - очки игрока за один день сезона.
type ScoreEntry struct {
	UserID     int64     `json:"user_id"`
	SeasonID   int64     `json:"season_id"`
	Date       time.Time `json:"date"`
	DailyScore int       `json:"daily_score"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ScoreRow - очки игрока за период вместе с профилем.
type ScoreRow struct {
	UserID   int64
	Username string
	Diploma  string
	Score    int
}

// Entry - строка рейтинга.
type Entry struct {
	Rank       Rank          `json:"rank"`
	UserID     int64         `json:"user_id"`
	Username   string        `json:"username"`
	Diploma    string        `json:"diploma"`
	Score      int           `json:"score"`
	RankChange RankChange    `json:"rank_change"`
	Direction  RankDirection `json:"direction"`
}

func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// Ranking - упорядоченный список игроков с рангами 1..n без общих мест.
// Порядок: очки по убыванию, при равенстве UserID по возрастанию, так что
// один набор очков всегда даёт одну и ту же таблицу.
type Ranking struct {
	entries []*Entry
	byID    map[int64]*Entry
}

func BuildRanking(rows []ScoreRow) *Ranking {
	entries := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, &Entry{
			UserID:   row.UserID,
			Username: row.Username,
			Diploma:  row.Diploma,
			Score:    row.Score,
		})
	}
	return newRanking(entries)
}

// FromEntries восстанавливает рейтинг из готовых записей (например, из
// кеша). RankChange и Direction сохраняются.
func FromEntries(entries []*Entry) *Ranking {
	return newRanking(slices.Clone(entries))
}

// newRanking забирает entries себе. Повторные UserID отбрасываются.
func newRanking(entries []*Entry) *Ranking {
	r := &Ranking{byID: make(map[int64]*Entry, len(entries))}
	for _, e := range entries {
		if e == nil {
			continue
		}
		if _, dup := r.byID[e.UserID]; dup {
			continue
		}
		r.byID[e.UserID] = e
		r.entries = append(r.entries, e)
	}
	slices.SortFunc(r.entries, func(a, b *Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	for i, e := range r.entries {
		e.Rank = Rank(i + 1)
	}
	return r
}

// ApplyPrevious заполняет RankChange по рангам предыдущего снапшота.
func (r *Ranking) ApplyPrevious(previous map[int64]Rank) {
	for _, e := range r.entries {
		prev, ok := previous[e.UserID]
		if !ok {
			e.RankChange, e.Direction = 0, RankDirectionNew
			continue
		}
		e.RankChange = RankChange(prev - e.Rank)
		e.Direction = e.RankChange.Direction()
	}
}

// Ranks - UserID -> Rank, формат снапшота.
func (r *Ranking) Ranks() map[int64]Rank {
	out := make(map[int64]Rank, len(r.entries))
	for _, e := range r.entries {
		out[e.UserID] = e.Rank
	}
	return out
}

func (r *Ranking) GetByID(userID int64) *Entry { return r.byID[userID] }

func (r *Ranking) GetByRank(rank Rank) *Entry {
	if !rank.IsValid() || int(rank) > len(r.entries) {
		return nil
	}
	return r.entries[rank-1]
}

func (r *Ranking) Count() int { return len(r.entries) }

func (r *Ranking) All() []*Entry { return r.Slice(0, len(r.entries)) }

// Slice возвращает копию записей [from:to), границы обрезаются.
func (r *Ranking) Slice(from, to int) []*Entry {
	from = max(from, 0)
	to = min(to, len(r.entries))
	if from >= to {
		return []*Entry{}
	}
	return slices.Clone(r.entries[from:to])
}

// Neighbors - игрок и до rangeSize соседей с каждой стороны. nil, если
// игрока нет в рейтинге.
func (r *Ranking) Neighbors(userID int64, rangeSize int) []*Entry {
	e := r.GetByID(userID)
	if e == nil {
		return nil
	}
	idx := int(e.Rank) - 1
	return r.Slice(idx-rangeSize, idx+rangeSize+1)
}

// FilterByDiploma строит новый рейтинг из подходящих записей с рангами,
// пересчитанными внутри фильтра. Исходный рейтинг не меняется.
func (r *Ranking) FilterByDiploma(f DiplomaFilter) *Ranking {
	if f == "" {
		return r
	}
	var kept []*Entry
	for _, e := range r.entries {
		if f.Matches(e.Diploma) {
			kept = append(kept, e.Clone())
		}
	}
	return newRanking(kept)
}

type Statistics struct {
	Participants int     `json:"participants"`
	TotalScore   int64   `json:"total_score"`
	AverageScore float64 `json:"average_score"`
	MaxScore     int     `json:"max_score"`
	MedianScore  int     `json:"median_score"`
}

func (r *Ranking) Statistics() Statistics {
	n := len(r.entries)
	s := Statistics{Participants: n}
	if n == 0 {
		return s
	}
	for _, e := range r.entries {
		s.TotalScore += int64(e.Score)
	}
	// entries отсортированы по убыванию
	s.MaxScore = r.entries[0].Score
	s.AverageScore = float64(s.TotalScore) / float64(n)
	if n%2 == 0 {
		s.MedianScore = (r.entries[n/2-1].Score + r.entries[n/2].Score) / 2
	} else {
		s.MedianScore = r.entries[n/2].Score
	}
	return s
}
