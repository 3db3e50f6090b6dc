package command

import (
	"context"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
)

// ForfeitCommand gives up a running match. The opponent wins.
type ForfeitCommand struct {
	MatchID string
	UserID  int64
}

// ForfeitResult is the final state of the match.
type ForfeitResult struct {
	// Forfeited is false when the match had already been resolved.
	Forfeited bool
	Match     *match.Match
}

// ForfeitHandler handles the ForfeitCommand.
type ForfeitHandler struct {
	matches  match.Repository
	resolver *Resolver
	log      *logger.Logger
}

// NewForfeitHandler creates a new ForfeitHandler.
func NewForfeitHandler(matches match.Repository, resolver *Resolver, log *logger.Logger) *ForfeitHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ForfeitHandler{
		matches:  matches,
		resolver: resolver,
		log:      log.With(logger.Component("forfeit")),
	}
}

// Handle executes the forfeit command.
func (h *ForfeitHandler) Handle(ctx context.Context, cmd ForfeitCommand) (*ForfeitResult, error) {
	if cmd.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	m, err := h.matches.FindByID(ctx, cmd.MatchID)
	if err != nil {
		return nil, err
	}
	if !m.IsPlayer(cmd.UserID) {
		return nil, shared.ErrNotAPlayer
	}
	if m.IsCompleted() {
		return &ForfeitResult{Match: m}, nil
	}

	uid := cmd.UserID
	res, err := h.resolver.TryResolve(ctx, m, &uid)
	if err != nil {
		return nil, err
	}

	if res.Resolved {
		h.log.Info("match forfeited", logger.MatchID(m.ID), logger.UserID(uid))
	}
	return &ForfeitResult{Forfeited: res.Resolved && res.Match.Reason == match.ReasonForfeit, Match: res.Match}, nil
}
