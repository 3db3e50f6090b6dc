package command

import (
	"context"
	"errors"
	"fmt"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE MATCH COMMAND
// Pairs two players against one random problem of the active season.
// The match starts IN_PROGRESS immediately; the clock runs from creation.
// ══════════════════════════════════════════════════════════════════════════════

// CreateMatchCommand contains the data to create a match.
type CreateMatchCommand struct {
	// PlayerID becomes player 1.
	PlayerID int64

	// OpponentID becomes player 2.
	OpponentID int64

	// Source is SourceTargeted or SourceQueue (metrics only).
	Source string
}

// Validate validates the command.
func (c CreateMatchCommand) Validate() error {
	if c.PlayerID <= 0 || c.OpponentID <= 0 {
		return shared.ErrInvalidUserID
	}
	if c.PlayerID == c.OpponentID {
		return shared.ErrSelfMatch
	}
	return nil
}

// CreateMatchResult contains the created match and its problem.
// Problem.Answer must never be sent to clients.
type CreateMatchResult struct {
	Match   *match.Match
	Problem *match.Problem
}

// CreateMatchHandlerConfig contains configuration for the handler.
type CreateMatchHandlerConfig struct {
	TimeLimitSeconds int
}

// CreateMatchHandler handles the CreateMatchCommand.
type CreateMatchHandler struct {
	matches   match.Repository
	problems  match.ProblemSource
	seasons   match.SeasonSource
	users     match.UserDirectory
	resolver  *Resolver
	publisher shared.EventPublisher

	timeLimit int
	newID     IDGenerator
	now       Clock
	metrics   Metrics
	log       *logger.Logger
}

// NewCreateMatchHandler creates a new CreateMatchHandler.
func NewCreateMatchHandler(
	matches match.Repository,
	problems match.ProblemSource,
	seasons match.SeasonSource,
	users match.UserDirectory,
	resolver *Resolver,
	publisher shared.EventPublisher,
	config CreateMatchHandlerConfig,
	metrics Metrics,
	log *logger.Logger,
	clock Clock,
	newID IDGenerator,
) *CreateMatchHandler {
	if config.TimeLimitSeconds <= 0 {
		config.TimeLimitSeconds = match.DefaultTimeLimitSeconds
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = SystemClock
	}
	if newID == nil {
		newID = NewUUID
	}

	return &CreateMatchHandler{
		matches:   matches,
		problems:  problems,
		seasons:   seasons,
		users:     users,
		resolver:  resolver,
		publisher: publisher,
		timeLimit: config.TimeLimitSeconds,
		newID:     newID,
		now:       clock,
		metrics:   metrics,
		log:       log.With(logger.Component("create_match")),
	}
}

// Handle executes the create match command.
func (h *CreateMatchHandler) Handle(ctx context.Context, cmd CreateMatchCommand) (*CreateMatchResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	for _, uid := range []int64{cmd.PlayerID, cmd.OpponentID} {
		if err := h.ensureUser(ctx, uid); err != nil {
			return nil, err
		}
		if err := h.ensureFree(ctx, uid); err != nil {
			return nil, err
		}
	}

	season, err := h.seasons.ActiveSeason(ctx)
	if err != nil {
		return nil, err
	}

	problem, err := h.problems.RandomProblem(ctx, season.ID)
	if err != nil {
		return nil, err
	}

	m, err := match.NewMatch(match.NewMatchParams{
		ID:               h.newID(),
		Player1ID:        cmd.PlayerID,
		Player2ID:        cmd.OpponentID,
		ProblemID:        problem.ID,
		SeasonID:         season.ID,
		TimeLimitSeconds: h.timeLimit,
		Now:              h.now(),
	})
	if err != nil {
		return nil, err
	}

	// The store rejects the row if either player got a match in the meantime.
	if err := h.matches.Create(ctx, m); err != nil {
		return nil, err
	}

	source := cmd.Source
	if source == "" {
		source = SourceTargeted
	}
	h.metrics.MatchCreated(source)

	if h.publisher != nil {
		event := shared.NewMatchCreatedEvent(m.ID, m.Player1ID, m.Player2ID, m.ProblemID, m.SeasonID, m.TimeLimitSeconds)
		if err := h.publisher.Publish(event); err != nil {
			h.log.Error("failed to publish match created event", logger.MatchID(m.ID), logger.Err(err))
		}
	}

	h.log.Info("match created",
		logger.MatchID(m.ID),
		logger.Int64("player1_id", m.Player1ID),
		logger.Int64("player2_id", m.Player2ID),
		logger.Int64("problem_id", m.ProblemID),
		logger.String("source", source),
	)

	return &CreateMatchResult{Match: m, Problem: problem}, nil
}

func (h *CreateMatchHandler) ensureUser(ctx context.Context, userID int64) error {
	if h.users == nil {
		return nil
	}
	ok, err := h.users.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("check user %d: %w", userID, err)
	}
	if !ok {
		return shared.ErrUserNotFound
	}
	return nil
}

// ensureFree fails with ErrAlreadyInMatch if the user is in a running
// match. A match whose time limit already passed is resolved first, so a
// missed sweep never locks a player out.
func (h *CreateMatchHandler) ensureFree(ctx context.Context, userID int64) error {
	active, err := h.matches.FindActiveByUser(ctx, userID)
	if errors.Is(err, shared.ErrMatchNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find active match: %w", err)
	}

	if h.resolver != nil && active.IsExpired(h.now()) {
		resolved, err := h.resolver.ResolveExpired(ctx, active)
		if err != nil {
			return err
		}
		if resolved.IsCompleted() {
			return nil
		}
	}
	return shared.ErrAlreadyInMatch
}
