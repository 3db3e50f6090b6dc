package command

import (
	"context"
	"fmt"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SWEEP TIMEOUTS COMMAND
// Resolves IN_PROGRESS matches whose time limit has passed. Unset slots
// become timeouts. Safe to run on several workers at once: each match is
// completed by whichever pass wins the conditional transition.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSweepBatchSize limits how many matches one pass looks at.
const DefaultSweepBatchSize = 100

// SweepTimeoutsCommand contains sweep parameters.
type SweepTimeoutsCommand struct {
	// Now defaults to the handler clock.
	Now       time.Time
	BatchSize int
}

// SweepTimeoutsResult summarizes one pass.
type SweepTimeoutsResult struct {
	Scanned  int
	Resolved int
	// Skipped matches were completed by someone else first.
	Skipped int
	Failed  int
}

// SweepTimeoutsHandler handles the SweepTimeoutsCommand.
type SweepTimeoutsHandler struct {
	matches  match.Repository
	resolver *Resolver
	now      Clock
	metrics  Metrics
	log      *logger.Logger
}

// NewSweepTimeoutsHandler creates a new SweepTimeoutsHandler.
func NewSweepTimeoutsHandler(
	matches match.Repository,
	resolver *Resolver,
	metrics Metrics,
	log *logger.Logger,
	clock Clock,
) *SweepTimeoutsHandler {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if log == nil {
		log = logger.Nop()
	}
	if clock == nil {
		clock = SystemClock
	}
	return &SweepTimeoutsHandler{
		matches:  matches,
		resolver: resolver,
		now:      clock,
		metrics:  metrics,
		log:      log.With(logger.Component("sweep_timeouts")),
	}
}

// Handle executes one sweep pass. A failing match is logged and skipped so
// one bad row cannot block the rest.
func (h *SweepTimeoutsHandler) Handle(ctx context.Context, cmd SweepTimeoutsCommand) (*SweepTimeoutsResult, error) {
	now := cmd.Now
	if now.IsZero() {
		now = h.now()
	}
	batch := cmd.BatchSize
	if batch <= 0 {
		batch = DefaultSweepBatchSize
	}

	expired, err := h.matches.ListExpired(ctx, now, batch)
	if err != nil {
		return nil, fmt.Errorf("list expired matches: %w", err)
	}

	result := &SweepTimeoutsResult{Scanned: len(expired)}
	for _, m := range expired {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		res, err := h.resolver.TryResolve(ctx, m, nil)
		if err != nil {
			result.Failed++
			h.log.Error("failed to resolve expired match", logger.MatchID(m.ID), logger.Err(err))
			continue
		}
		if res.Resolved {
			result.Resolved++
		} else {
			result.Skipped++
		}
	}

	h.metrics.SweepCompleted(result.Resolved, result.Failed)
	if result.Scanned > 0 {
		h.log.Info("timeout sweep finished",
			logger.Int("scanned", result.Scanned),
			logger.Int("resolved", result.Resolved),
			logger.Int("skipped", result.Skipped),
			logger.Int("failed", result.Failed),
		)
	}
	return result, nil
}
