package command

import (
	"context"
	"fmt"
	"strings"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMIT ANSWER COMMAND
// Writes the caller's slot with a conditional update. Losing a race is a
// normal outcome: the caller gets Accepted=false and the current state.
// ══════════════════════════════════════════════════════════════════════════════

// Rejection reasons for a submission that lost a race.
const (
	RejectDuplicateSubmission = "duplicate_submission"
	RejectAlreadyResolved     = "match_already_resolved"
)

// MaxAnswerLength bounds the stored answer text.
const MaxAnswerLength = 1000

// SubmitAnswerCommand contains a player's answer.
type SubmitAnswerCommand struct {
	MatchID string
	UserID  int64
	Answer  string

	// ElapsedSeconds as measured by the client. When nil the server clock
	// is used.
	ElapsedSeconds *int
}

// Validate validates the command.
func (c SubmitAnswerCommand) Validate() error {
	if strings.TrimSpace(c.MatchID) == "" {
		return shared.NewDomainError("pvp", "Submit", shared.ErrEmptyValue, "match id is required")
	}
	if c.UserID <= 0 {
		return shared.ErrInvalidUserID
	}
	if c.ElapsedSeconds != nil && *c.ElapsedSeconds < 0 {
		return shared.ErrNegativeElapsed
	}
	if len(c.Answer) > MaxAnswerLength {
		return shared.NewDomainError("pvp", "Submit", shared.ErrValueOutOfRange, "answer is too long")
	}
	return nil
}

// SubmitAnswerResult is the outcome of a submission.
type SubmitAnswerResult struct {
	// Accepted is true if this call wrote the caller's slot.
	Accepted bool

	// RejectReason is set when Accepted is false.
	RejectReason string

	// MatchComplete is true once the match has a final result.
	MatchComplete bool

	// Match is the latest known state.
	Match *match.Match
}

// SubmitAnswerHandler handles the SubmitAnswerCommand.
type SubmitAnswerHandler struct {
	matches   match.Repository
	problems  match.ProblemSource
	resolver  *Resolver
	publisher shared.EventPublisher
	now       Clock
	metrics   Metrics
	log       *logger.Logger
}

// NewSubmitAnswerHandler creates a new SubmitAnswerHandler.
func NewSubmitAnswerHandler(
	matches match.Repository,
	problems match.ProblemSource,
	resolver *Resolver,
	publisher shared.EventPublisher,
	metrics Metrics,
	log *logger.Logger,
	clock Clock,
) *SubmitAnswerHandler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &SubmitAnswerHandler{
		matches:   matches,
		problems:  problems,
		resolver:  resolver,
		publisher: publisher,
		now:       clock,
		metrics:   metrics,
		log:       log.With(logger.Component("submit_answer")),
	}
}

// Handle executes the submit answer command.
func (h *SubmitAnswerHandler) Handle(ctx context.Context, cmd SubmitAnswerCommand) (*SubmitAnswerResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	m, err := h.matches.FindByID(ctx, cmd.MatchID)
	if err != nil {
		return nil, err
	}

	p, ok := m.PlayerOf(cmd.UserID)
	if !ok {
		return nil, shared.ErrNotAPlayer
	}

	if m.IsCompleted() {
		return h.rejected(RejectAlreadyResolved, m), nil
	}
	if m.SlotOf(p) != nil {
		return h.rejected(RejectDuplicateSubmission, m), nil
	}

	now := h.now()
	elapsed := m.ElapsedAt(now)
	if cmd.ElapsedSeconds != nil {
		elapsed = *cmd.ElapsedSeconds
		// Past the deadline the server clock wins, so a late answer cannot
		// claim an early time.
		if m.IsExpired(now) {
			elapsed = max(elapsed, m.ElapsedAt(now))
		}
	}

	problem, err := h.problems.FindProblem(ctx, m.ProblemID)
	if err != nil {
		return nil, fmt.Errorf("load problem: %w", err)
	}

	slot := match.NewAnsweredSlot(cmd.Answer, problem.Answer, elapsed, m.TimeLimitSeconds, now)

	written, err := h.matches.SetSlot(ctx, m.ID, p, slot)
	if err != nil {
		return nil, fmt.Errorf("write slot: %w", err)
	}

	current, err := h.matches.FindByID(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	if !written {
		if current.IsCompleted() {
			return h.rejected(RejectAlreadyResolved, current), nil
		}
		return h.rejected(RejectDuplicateSubmission, current), nil
	}

	h.metrics.AnswerSubmitted(submissionOutcome(slot))
	if h.publisher != nil {
		event := shared.NewAnswerSubmittedEvent(m.ID, cmd.UserID, slot.Correct, slot.ElapsedSeconds, slot.TimedOut)
		if err := h.publisher.Publish(event); err != nil {
			h.log.Warn("failed to publish answer submitted event", logger.MatchID(m.ID), logger.Err(err))
		}
	}

	h.log.Debug("answer recorded",
		logger.MatchID(m.ID),
		logger.UserID(cmd.UserID),
		logger.Int("elapsed_seconds", slot.ElapsedSeconds),
		logger.Bool("timed_out", slot.TimedOut),
	)

	res, err := h.resolver.TryResolve(ctx, current, nil)
	if err != nil {
		return nil, err
	}

	return &SubmitAnswerResult{
		Accepted:      true,
		MatchComplete: res.Completed(),
		Match:         res.Match,
	}, nil
}

func (h *SubmitAnswerHandler) rejected(reason string, m *match.Match) *SubmitAnswerResult {
	h.metrics.AnswerSubmitted(reason)
	return &SubmitAnswerResult{
		Accepted:      false,
		RejectReason:  reason,
		MatchComplete: m.IsCompleted(),
		Match:         m,
	}
}

func submissionOutcome(s match.Slot) string {
	switch {
	case s.TimedOut:
		return "late"
	case s.Correct:
		return "correct"
	default:
		return "wrong"
	}
}
