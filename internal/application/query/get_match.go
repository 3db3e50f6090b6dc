// Package query contains read operations following CQRS pattern.
// Queries never modify state, with one exception: reading an IN_PROGRESS
// match that is expired, or has both answers in, resolves it through the
// same conditional transition the sweeper uses.
package query

import (
	"context"
	"strings"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET MATCH QUERY
// Возвращает состояние матча глазами одного из игроков. Ответ соперника
// скрыт, пока матч не завершён.
// ══════════════════════════════════════════════════════════════════════════════

// GetMatchQuery содержит параметры запроса матча.
type GetMatchQuery struct {
	MatchID  string
	ViewerID int64
}

// ProblemView - задача без правильного ответа.
type ProblemView struct {
	ID      int64    `json:"id"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Choices []string `json:"choices,omitempty"`
	Subject string   `json:"subject"`
	Score   int      `json:"score"`
}

// NewProblemView строит представление задачи. Answer не копируется.
func NewProblemView(p *match.Problem) *ProblemView {
	if p == nil {
		return nil
	}
	return &ProblemView{
		ID:      p.ID,
		Title:   p.Title,
		Content: p.Content,
		Choices: p.Choices,
		Subject: p.Subject,
		Score:   p.Score,
	}
}

// SlotView - слот игрока. Поля ответа заполнены, только если зритель
// имеет право их видеть.
type SlotView struct {
	UserID         int64   `json:"user_id"`
	Submitted      bool    `json:"submitted"`
	Answer         *string `json:"answer,omitempty"`
	ElapsedSeconds *int    `json:"elapsed_seconds,omitempty"`
	Correct        *bool   `json:"correct,omitempty"`
	TimedOut       bool    `json:"timed_out,omitempty"`
}

// MatchView - DTO матча.
type MatchView struct {
	ID               string       `json:"match_id"`
	Status           string       `json:"status"`
	Problem          *ProblemView `json:"problem,omitempty"`
	TimeLimitSeconds int          `json:"time_limit_seconds"`
	StartedAt        time.Time    `json:"started_at"`
	Deadline         time.Time    `json:"deadline"`
	EndedAt          *time.Time   `json:"ended_at,omitempty"`
	Result           string       `json:"result,omitempty"`
	WinnerID         *int64       `json:"winner_id,omitempty"`
	Reason           string       `json:"reason,omitempty"`
	ForfeitedBy      *int64       `json:"forfeited_by,omitempty"`
	Player1          SlotView     `json:"player1"`
	Player2          SlotView     `json:"player2"`
}

// NewMatchView строит DTO матча для зрителя viewerID.
func NewMatchView(m *match.Match, viewerID int64, problem *match.Problem) *MatchView {
	v := &MatchView{
		ID:               m.ID,
		Status:           string(m.Status),
		Problem:          NewProblemView(problem),
		TimeLimitSeconds: m.TimeLimitSeconds,
		StartedAt:        m.StartedAt,
		Deadline:         m.Deadline(),
		EndedAt:          m.EndedAt,
		Result:           string(m.Result),
		WinnerID:         m.WinnerID,
		Reason:           string(m.Reason),
		ForfeitedBy:      m.ForfeitedBy,
		Player1:          slotView(m, match.Player1, viewerID),
		Player2:          slotView(m, match.Player2, viewerID),
	}
	return v
}

func slotView(m *match.Match, p match.Player, viewerID int64) SlotView {
	v := SlotView{UserID: m.PlayerID(p)}
	s := m.SlotOf(p)
	if s == nil {
		return v
	}
	v.Submitted = s.Answered() || m.IsCompleted()
	if !m.AnswerVisibleTo(viewerID, p) {
		return v
	}

	elapsed := s.ElapsedSeconds
	v.ElapsedSeconds = &elapsed
	v.TimedOut = s.TimedOut
	if s.Answer != nil {
		a := *s.Answer
		v.Answer = &a
	}
	if m.IsCompleted() {
		correct := s.Correct
		v.Correct = &correct
	}
	return v
}

// ExpiryResolver resolves matches found past their deadline or with both
// answers already written.
type ExpiryResolver interface {
	ResolveExpired(ctx context.Context, m *match.Match) (*match.Match, error)
}

// GetMatchHandler обрабатывает GetMatchQuery.
type GetMatchHandler struct {
	matches  match.Repository
	problems match.ProblemSource
	expiry   ExpiryResolver
}

// NewGetMatchHandler создаёт новый GetMatchHandler.
func NewGetMatchHandler(matches match.Repository, problems match.ProblemSource, expiry ExpiryResolver) *GetMatchHandler {
	return &GetMatchHandler{matches: matches, problems: problems, expiry: expiry}
}

// Handle выполняет запрос.
func (h *GetMatchHandler) Handle(ctx context.Context, q GetMatchQuery) (*MatchView, error) {
	if strings.TrimSpace(q.MatchID) == "" {
		return nil, shared.ErrMatchNotFound
	}

	m, err := h.matches.FindByID(ctx, q.MatchID)
	if err != nil {
		return nil, err
	}
	if !m.IsPlayer(q.ViewerID) {
		return nil, shared.ErrNotAPlayer
	}

	if h.expiry != nil {
		m, err = h.expiry.ResolveExpired(ctx, m)
		if err != nil {
			return nil, err
		}
	}

	var problem *match.Problem
	if h.problems != nil {
		problem, err = h.problems.FindProblem(ctx, m.ProblemID)
		if err != nil && !shared.IsNotFound(err) {
			return nil, err
		}
	}

	return NewMatchView(m, q.ViewerID, problem), nil
}
