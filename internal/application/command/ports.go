// Package command contains write operations (CQRS - Commands).
package command

import (
	"time"

	"github.com/google/uuid"
)

// Clock returns the current time. Handlers never call time.Now directly so
// tests can move a match past its deadline.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time {
	return time.Now().UTC()
}

// IDGenerator returns a new unique identifier.
type IDGenerator func() string

// NewUUID generates random (v4) identifiers.
func NewUUID() string {
	return uuid.NewString()
}

// Metrics receives engine counters. The Prometheus recorder in
// infrastructure/metrics implements it.
type Metrics interface {
	MatchCreated(source string)
	AnswerSubmitted(outcome string)
	MatchResolved(result, reason string)
	ResolutionAttempt(outcome string)
	ResolutionDuration(d time.Duration)
	QueueJoined(paired bool)
	SweepCompleted(resolved, failed int)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) MatchCreated(string)              {}
func (NopMetrics) AnswerSubmitted(string)           {}
func (NopMetrics) MatchResolved(string, string)     {}
func (NopMetrics) ResolutionAttempt(string)         {}
func (NopMetrics) ResolutionDuration(time.Duration) {}
func (NopMetrics) QueueJoined(bool)                 {}
func (NopMetrics) SweepCompleted(int, int)          {}

// Resolution attempt outcomes reported to Metrics.
const (
	AttemptWon      = "won"
	AttemptLost     = "lost"
	AttemptRetried  = "slot_changed"
	AttemptNotReady = "not_ready"
)

// Match creation sources.
const (
	SourceTargeted = "targeted"
	SourceQueue    = "queue"
)
