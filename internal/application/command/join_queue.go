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
// JOIN / LEAVE QUEUE COMMANDS
// Random matchmaking. The queue decides pairs atomically, so two instances
// can never hand the same waiting player to two different requesters.
// ══════════════════════════════════════════════════════════════════════════════

// maxPairAttempts bounds retries when the popped opponent turns out to be busy.
const maxPairAttempts = 3

// JoinQueueCommand asks for a random opponent.
type JoinQueueCommand struct {
	UserID int64
}

// JoinQueueResult is either a new match or a waiting confirmation.
type JoinQueueResult struct {
	// Waiting is true when no opponent was available yet.
	Waiting bool

	// Created is set when the user was paired.
	Created *CreateMatchResult
}

// JoinQueueHandler handles the JoinQueueCommand.
type JoinQueueHandler struct {
	queue     match.Queue
	create    *CreateMatchHandler
	publisher shared.EventPublisher
	metrics   Metrics
	log       *logger.Logger
}

// NewJoinQueueHandler creates a new JoinQueueHandler.
func NewJoinQueueHandler(
	queue match.Queue,
	create *CreateMatchHandler,
	publisher shared.EventPublisher,
	metrics Metrics,
	log *logger.Logger,
) *JoinQueueHandler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &JoinQueueHandler{
		queue:     queue,
		create:    create,
		publisher: publisher,
		metrics:   metrics,
		log:       log.With(logger.Component("join_queue")),
	}
}

// Handle executes the join queue command.
func (h *JoinQueueHandler) Handle(ctx context.Context, cmd JoinQueueCommand) (*JoinQueueResult, error) {
	if cmd.UserID <= 0 {
		return nil, shared.ErrInvalidUserID
	}

	if err := h.create.ensureUser(ctx, cmd.UserID); err != nil {
		return nil, err
	}
	if err := h.create.ensureFree(ctx, cmd.UserID); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= maxPairAttempts; attempt++ {
		opponentID, paired, err := h.queue.PairOrEnqueue(ctx, cmd.UserID)
		if err != nil {
			return nil, fmt.Errorf("join queue: %w", err)
		}

		if !paired {
			h.metrics.QueueJoined(false)
			if h.publisher != nil {
				if err := h.publisher.Publish(shared.NewQueueJoinedEvent(cmd.UserID)); err != nil {
					h.log.Warn("failed to publish queue joined event", logger.UserID(cmd.UserID), logger.Err(err))
				}
			}
			return &JoinQueueResult{Waiting: true}, nil
		}

		// The player who waited longer becomes player 1.
		created, err := h.create.Handle(ctx, CreateMatchCommand{
			PlayerID:   opponentID,
			OpponentID: cmd.UserID,
			Source:     SourceQueue,
		})
		if err == nil {
			h.metrics.QueueJoined(true)
			return &JoinQueueResult{Created: created}, nil
		}

		if errors.Is(err, shared.ErrAlreadyInMatch) {
			if ferr := h.create.ensureFree(ctx, cmd.UserID); ferr != nil {
				// The requester is the busy one.
				h.requeue(ctx, opponentID)
				return nil, ferr
			}
		}
		if errors.Is(err, shared.ErrAlreadyInMatch) || errors.Is(err, shared.ErrUserNotFound) {
			// The waiting player is no longer eligible; drop them and try again.
			h.log.Info("queued opponent unavailable, retrying",
				logger.UserID(cmd.UserID), logger.Int64("opponent_id", opponentID), logger.Err(err))
			continue
		}

		// Anything else is not the opponent's fault: give them their place back.
		h.requeue(ctx, opponentID)
		return nil, err
	}

	if err := h.queue.Enqueue(ctx, cmd.UserID); err != nil {
		return nil, fmt.Errorf("join queue: %w", err)
	}
	h.metrics.QueueJoined(false)
	return &JoinQueueResult{Waiting: true}, nil
}

func (h *JoinQueueHandler) requeue(ctx context.Context, userID int64) {
	if err := h.queue.Enqueue(ctx, userID); err != nil {
		h.log.Error("failed to requeue opponent", logger.Int64("opponent_id", userID), logger.Err(err))
	}
}

// LeaveQueueCommand removes a waiting user from the queue.
type LeaveQueueCommand struct {
	UserID int64
}

// LeaveQueueHandler handles the LeaveQueueCommand.
type LeaveQueueHandler struct {
	queue match.Queue
}

// NewLeaveQueueHandler creates a new LeaveQueueHandler.
func NewLeaveQueueHandler(queue match.Queue) *LeaveQueueHandler {
	return &LeaveQueueHandler{queue: queue}
}

// Handle removes the user. It reports whether the user was waiting.
func (h *LeaveQueueHandler) Handle(ctx context.Context, cmd LeaveQueueCommand) (bool, error) {
	if cmd.UserID <= 0 {
		return false, shared.ErrInvalidUserID
	}
	removed, err := h.queue.Remove(ctx, cmd.UserID)
	if err != nil {
		return false, fmt.Errorf("leave queue: %w", err)
	}
	return removed, nil
}
