package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/rating"
	"github.com/studyplan/studyplan-pvp/internal/domain/scoring"
	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
	"github.com/studyplan/studyplan-pvp/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// RESOLVER
// The single path that moves a match to COMPLETED. Submissions, forfeits,
// the timeout sweeper and lazy reads all go through TryResolve, so the
// conditional transition is the only place a result is ever written.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultResolveAttempts bounds re-evaluation when a slot changes between
// the decision and the conditional transition.
const DefaultResolveAttempts = 3

// ResolveResult is the state observed after a resolution attempt.
type ResolveResult struct {
	// Match is the latest known state of the match.
	Match *match.Match

	// Resolved is true only for the caller that won the transition.
	Resolved bool

	// Event is set when Resolved is true.
	Event *shared.MatchResolvedEvent
}

// Completed reports whether the match has a final result.
func (r *ResolveResult) Completed() bool {
	return r != nil && r.Match != nil && r.Match.IsCompleted()
}

// ResolverConfig contains configuration for the resolver.
type ResolverConfig struct {
	KFactor         float64
	CompletionBonus bool
	MaxAttempts     int
}

// DefaultResolverConfig returns default configuration.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		KFactor:         rating.DefaultKFactor,
		CompletionBonus: true,
		MaxAttempts:     DefaultResolveAttempts,
	}
}

// Resolver completes matches exactly once.
type Resolver struct {
	matches   match.Repository
	uow       match.UnitOfWork
	problems  match.ProblemSource
	profiles  match.ProfileSource
	publisher shared.EventPublisher

	engine      rating.Engine
	adjuster    *scoring.Adjuster
	maxAttempts int

	metrics Metrics
	log     *logger.Logger
	now     Clock
}

// NewResolver creates a new Resolver.
func NewResolver(
	matches match.Repository,
	uow match.UnitOfWork,
	problems match.ProblemSource,
	profiles match.ProfileSource,
	publisher shared.EventPublisher,
	config ResolverConfig,
	metrics Metrics,
	log *logger.Logger,
	clock Clock,
) *Resolver {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = DefaultResolveAttempts
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

	return &Resolver{
		matches:     matches,
		uow:         uow,
		problems:    problems,
		profiles:    profiles,
		publisher:   publisher,
		engine:      rating.NewEngine(config.KFactor),
		adjuster:    scoring.NewAdjuster(config.CompletionBonus),
		maxAttempts: config.MaxAttempts,
		metrics:     metrics,
		log:         log.With(logger.Component("resolver")),
		now:         clock,
	}
}

// TryResolve completes m if it is decidable now: both slots are set, the
// time limit has passed, or forfeiter gave up. When another caller already
// completed the match, the stored result is returned with Resolved=false.
// A match that is still running is returned unchanged.
func (r *Resolver) TryResolve(ctx context.Context, m *match.Match, forfeiter *int64) (*ResolveResult, error) {
	started := time.Now()
	defer func() { r.metrics.ResolutionDuration(time.Since(started)) }()

	current := m
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if current.IsCompleted() {
			r.metrics.ResolutionAttempt(AttemptLost)
			return &ResolveResult{Match: current}, nil
		}

		by := forfeiter
		if current.BothSubmitted() {
			// Both answers are in: the answers decide, not the forfeit.
			by = nil
		}

		res, err := current.Decide(r.now(), by)
		if errors.Is(err, shared.ErrMatchStillRunning) {
			r.metrics.ResolutionAttempt(AttemptNotReady)
			return &ResolveResult{Match: current}, nil
		}
		if err != nil {
			return nil, err
		}

		event, won, err := r.complete(ctx, current, res)
		if err != nil {
			return nil, fmt.Errorf("resolve match %s: %w", current.ID, err)
		}

		if won {
			r.metrics.ResolutionAttempt(AttemptWon)
			r.metrics.MatchResolved(string(res.Result), string(res.Reason))
			r.publish(event)

			final := current.Clone()
			if err := final.Apply(res); err != nil {
				return nil, err
			}
			return &ResolveResult{Match: final, Resolved: true, Event: event}, nil
		}

		// Lost the transition: either someone completed the match or a slot
		// was written after the decision. Re-read to find out which.
		current, err = r.matches.FindByID(ctx, current.ID)
		if err != nil {
			return nil, fmt.Errorf("reload match %s: %w", m.ID, err)
		}
		if !current.IsCompleted() {
			r.metrics.ResolutionAttempt(AttemptRetried)
			r.log.Debug("slot changed during resolution, re-deciding",
				logger.MatchID(current.ID), logger.Int("attempt", attempt))
		}
	}

	if current.IsCompleted() {
		r.metrics.ResolutionAttempt(AttemptLost)
		return &ResolveResult{Match: current}, nil
	}
	return nil, fmt.Errorf("resolve match %s: %w", m.ID, shared.ErrSlotChanged)
}

// ResolveExpired resolves m if its time limit has passed or both answers
// are in, and returns the latest state. Used by reads that find a stale
// IN_PROGRESS match, including one whose resolution failed right after the
// second submission.
func (r *Resolver) ResolveExpired(ctx context.Context, m *match.Match) (*match.Match, error) {
	if m.IsCompleted() || !(m.IsExpired(r.now()) || m.BothSubmitted()) {
		return m, nil
	}
	res, err := r.TryResolve(ctx, m, nil)
	if err != nil {
		return nil, err
	}
	return res.Match, nil
}

// complete runs the conditional transition and, if it wins, rating and
// scoring in the same transaction.
func (r *Resolver) complete(ctx context.Context, m *match.Match, res match.Resolution) (*shared.MatchResolvedEvent, bool, error) {
	final := m.Clone()
	if err := final.Apply(res); err != nil {
		return nil, false, err
	}

	// Collaborator reads happen before the transaction opens.
	inputs, err := r.loadInputs(ctx, final, res.EndedAt)
	if err != nil {
		return nil, false, err
	}

	var (
		won   bool
		event *shared.MatchResolvedEvent
	)
	err = r.uow.Do(ctx, func(ctx context.Context, tx match.TxRepositories) error {
		ok, err := tx.Matches.Complete(ctx, m.ID, res)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		won = true

		event, err = r.settle(ctx, tx, final, inputs)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return event, won, nil
}

type settleInputs struct {
	day      time.Time
	problem  *match.Problem
	profiles [2]*match.Profile
}

func (r *Resolver) loadInputs(ctx context.Context, m *match.Match, endedAt time.Time) (settleInputs, error) {
	in := settleInputs{day: timeutil.DayKey(endedAt)}

	problem, err := r.problems.FindProblem(ctx, m.ProblemID)
	switch {
	case err == nil:
		in.problem = problem
	case shared.IsNotFound(err):
		r.log.Warn("problem missing, awarding no points",
			logger.MatchID(m.ID), logger.Int64("problem_id", m.ProblemID))
		in.problem = &match.Problem{ID: m.ProblemID}
	default:
		return in, fmt.Errorf("load problem: %w", err)
	}

	// The completion bonus depends on the previous Seoul day.
	bonusDay := timeutil.PreviousDay(in.day)
	for i, uid := range []int64{m.Player1ID, m.Player2ID} {
		p, err := r.profiles.Profile(ctx, uid, bonusDay)
		switch {
		case err == nil:
			in.profiles[i] = p
		case shared.IsNotFound(err):
			in.profiles[i] = &match.Profile{UserID: uid}
		default:
			return in, fmt.Errorf("load profile %d: %w", uid, err)
		}
	}
	return in, nil
}

// settle applies Elo to both players and records their points.
// final is the match with the resolution applied.
func (r *Resolver) settle(ctx context.Context, tx match.TxRepositories, final *match.Match, in settleInputs) (*shared.MatchResolvedEvent, error) {
	rec1, rec2, err := tx.Ratings.LockPair(ctx, final.Player1ID, final.Player2ID)
	if err != nil {
		return nil, fmt.Errorf("lock ratings: %w", err)
	}

	c1, c2 := r.engine.Compute(rec1, rec2, OutcomeFor(final.Result, match.Player1))
	at := *final.EndedAt

	changes := [2]rating.Change{c1, c2}
	outcomes := [2]shared.PlayerOutcome{}
	for i, p := range []match.Player{match.Player1, match.Player2} {
		change := changes[i]
		other := changes[1-i]

		if err := tx.Ratings.Apply(ctx, change.UserID, change.Delta, change.Outcome, at); err != nil {
			return nil, fmt.Errorf("apply rating %d: %w", change.UserID, err)
		}

		points := r.adjuster.Points(in.problem.Score, in.problem.Subject, scoring.PlayerInput{
			Outcome:        change.Outcome,
			Answered:       final.SlotOf(p) != nil && final.SlotOf(p).Answered(),
			RatingBefore:   change.Before,
			OpponentRating: other.Before,
			Diploma:        in.profiles[i].Diploma,
			EarnedBonus:    in.profiles[i].CompletedPlan,
		})
		if points > 0 {
			if err := tx.Scores.AddPoints(ctx, change.UserID, final.SeasonID, in.day, points); err != nil {
				return nil, fmt.Errorf("record points %d: %w", change.UserID, err)
			}
		}

		outcomes[i] = shared.PlayerOutcome{
			UserID:       change.UserID,
			RatingBefore: change.Before,
			RatingAfter:  change.After,
			Points:       points,
		}
	}

	event := shared.NewMatchResolvedEvent(
		final.ID,
		string(final.Result),
		string(final.Reason),
		final.WinnerID,
		final.SeasonID,
		outcomes[0],
		outcomes[1],
	)
	return &event, nil
}

func (r *Resolver) publish(event *shared.MatchResolvedEvent) {
	if r.publisher == nil || event == nil {
		return
	}
	if err := r.publisher.Publish(*event); err != nil {
		r.log.Error("failed to publish match resolved event",
			logger.MatchID(event.AggregateID()), logger.Err(err))
	}
	r.log.Info("match resolved",
		logger.MatchID(event.AggregateID()),
		logger.Result(event.Result),
		logger.String("reason", event.Reason),
	)
}

// OutcomeFor converts a match result into the outcome for position p.
func OutcomeFor(result match.Result, p match.Player) rating.Outcome {
	switch result {
	case match.ResultPlayer1Win:
		if p == match.Player1 {
			return rating.OutcomeWin
		}
		return rating.OutcomeLoss
	case match.ResultPlayer2Win:
		if p == match.Player2 {
			return rating.OutcomeWin
		}
		return rating.OutcomeLoss
	default:
		return rating.OutcomeDraw
	}
}
