package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/persistence/memory"
)

// DemoSize controls how much data SeedDemo generates.
type DemoSize struct {
	Users    int
	Problems int
}

// DefaultDemoSize is enough to play a few matches locally.
func DefaultDemoSize() DemoSize {
	return DemoSize{Users: 20, Problems: 30}
}

var demoDiplomas = []string{"IT", "수학", "생명과학", "경제경영", "인문학(문학/사학/철학)", "예술", "체육"}

var demoSubjects = []string{"물리I", "화학I", "생명과학I", "국어", "사회", "역사", "영어"}

// SeedDemo fills an empty in-memory store with one active season, users
// 1..Users and problems 1..Problems. The same seed always produces the
// same data.
func SeedDemo(store *memory.Store, size DemoSize, seed uint64) {
	f := gofakeit.New(seed)
	now := time.Now().UTC()

	store.AddSeason(shared.Season{
		ID:        1,
		Name:      fmt.Sprintf("Season %d", now.Year()),
		StartDate: now.AddDate(0, -1, 0),
		EndDate:   now.AddDate(0, 2, 0),
		IsActive:  true,
	})

	for i := 1; i <= size.Users; i++ {
		store.AddUser(memory.User{
			ID:       int64(i),
			Username: f.Username(),
			Diploma:  f.RandomString(demoDiplomas),
		})
	}

	for i := 1; i <= size.Problems; i++ {
		answer := strings.ToLower(f.Word())
		choices := []string{answer, strings.ToLower(f.Word()), strings.ToLower(f.Word()), strings.ToLower(f.Word())}
		f.ShuffleStrings(choices)
		store.AddProblem(match.Problem{
			ID:       int64(i),
			SeasonID: 1,
			Title:    fmt.Sprintf("Problem #%d", i),
			Content:  f.Sentence(12),
			Choices:  choices,
			Subject:  f.RandomString(demoSubjects),
			Answer:   answer,
			Score:    f.IntRange(10, 50),
		})
	}
}
