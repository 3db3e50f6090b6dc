package shared

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType - имя доменного события, оно же заголовок event_type в Kafka.
type EventType string

const (
	EventMatchCreated    EventType = "pvp.match_created"
	EventAnswerSubmitted EventType = "pvp.answer_submitted"
	// EventMatchResolved публикуется ровно один раз на матч.
	EventMatchResolved EventType = "pvp.match_resolved"
	EventQueueJoined   EventType = "pvp.queue_joined"

	EventSnapshotCaptured EventType = "leaderboard.snapshot_captured"
)

// Event - доменное событие. Поля конкретного события и есть его payload.
type Event interface {
	EventType() EventType
	OccurredAt() time.Time
	AggregateID() string
}

// header реализует Event и не попадает в JSON payload.
type header struct {
	typ         EventType
	occurredAt  time.Time
	aggregateID string
}

func newHeader(t EventType, aggregateID string) header {
	return header{typ: t, occurredAt: time.Now().UTC(), aggregateID: aggregateID}
}

func (h header) EventType() EventType  { return h.typ }
func (h header) OccurredAt() time.Time { return h.occurredAt }
func (h header) AggregateID() string   { return h.aggregateID }

// MatchCreatedEvent: пара собрана, часы матча пошли.
type MatchCreatedEvent struct {
	header
	Player1ID        int64 `json:"player1_id"`
	Player2ID        int64 `json:"player2_id"`
	ProblemID        int64 `json:"problem_id"`
	SeasonID         int64 `json:"season_id"`
	TimeLimitSeconds int   `json:"time_limit_seconds"`
}

func NewMatchCreatedEvent(matchID string, player1, player2, problemID, seasonID int64, timeLimitSeconds int) MatchCreatedEvent {
	return MatchCreatedEvent{
		header:           newHeader(EventMatchCreated, matchID),
		Player1ID:        player1,
		Player2ID:        player2,
		ProblemID:        problemID,
		SeasonID:         seasonID,
		TimeLimitSeconds: timeLimitSeconds,
	}
}

// AnswerSubmittedEvent: слот игрока записан. Текст ответа в событие не
// попадает.
type AnswerSubmittedEvent struct {
	header
	UserID         int64 `json:"user_id"`
	Correct        bool  `json:"correct"`
	ElapsedSeconds int   `json:"elapsed_seconds"`
	TimedOut       bool  `json:"timed_out"`
}

func NewAnswerSubmittedEvent(matchID string, userID int64, correct bool, elapsed int, timedOut bool) AnswerSubmittedEvent {
	return AnswerSubmittedEvent{
		header:         newHeader(EventAnswerSubmitted, matchID),
		UserID:         userID,
		Correct:        correct,
		ElapsedSeconds: elapsed,
		TimedOut:       timedOut,
	}
}

// PlayerOutcome - итог матча для одного игрока.
type PlayerOutcome struct {
	UserID       int64   `json:"user_id"`
	RatingBefore float64 `json:"rating_before"`
	RatingAfter  float64 `json:"rating_after"`
	Points       int     `json:"points"`
}

// MatchResolvedEvent публикует только тот проход разрешения, который
// выиграл переход в COMPLETED. WinnerID пуст при ничьей.
type MatchResolvedEvent struct {
	header
	Result   string        `json:"result"`
	WinnerID *int64        `json:"winner_id,omitempty"`
	Reason   string        `json:"reason"`
	SeasonID int64         `json:"season_id"`
	Player1  PlayerOutcome `json:"player1"`
	Player2  PlayerOutcome `json:"player2"`
}

func NewMatchResolvedEvent(matchID, result, reason string, winnerID *int64, seasonID int64, p1, p2 PlayerOutcome) MatchResolvedEvent {
	return MatchResolvedEvent{
		header:   newHeader(EventMatchResolved, matchID),
		Result:   result,
		WinnerID: winnerID,
		Reason:   reason,
		SeasonID: seasonID,
		Player1:  p1,
		Player2:  p2,
	}
}

// QueueJoinedEvent: игрок ждёт случайного соперника.
type QueueJoinedEvent struct {
	header
	UserID int64 `json:"user_id"`
}

func NewQueueJoinedEvent(userID int64) QueueJoinedEvent {
	return QueueJoinedEvent{
		header: newHeader(EventQueueJoined, UserID(userID).String()),
		UserID: userID,
	}
}

// SnapshotCapturedEvent: рейтинг сезона сохранён.
type SnapshotCapturedEvent struct {
	header
	SeasonID     int64 `json:"season_id"`
	Participants int   `json:"participants"`
}

func NewSnapshotCapturedEvent(snapshotID string, seasonID int64, participants int) SnapshotCapturedEvent {
	return SnapshotCapturedEvent{
		header:       newHeader(EventSnapshotCaptured, snapshotID),
		SeasonID:     seasonID,
		Participants: participants,
	}
}

// EventEnvelope - событие в том виде, в каком оно уходит в Kafka.
type EventEnvelope struct {
	ID          string          `json:"id"`
	Type        EventType       `json:"type"`
	AggregateID string          `json:"aggregate_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Version     int             `json:"version"`
	Payload     json.RawMessage `json:"payload"`
}

const envelopeVersion = 1

func NewEventEnvelope(id string, event Event) (EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return EventEnvelope{}, fmt.Errorf("marshal %s: %w", event.EventType(), err)
	}
	return EventEnvelope{
		ID:          id,
		Type:        event.EventType(),
		AggregateID: event.AggregateID(),
		Timestamp:   event.OccurredAt(),
		Version:     envelopeVersion,
		Payload:     payload,
	}, nil
}

type EventHandler func(event Event) error

type EventPublisher interface {
	Publish(event Event) error
}

type EventSubscriber interface {
	Subscribe(eventType EventType, handler EventHandler) error
	// SubscribeAll получает события любого типа.
	SubscribeAll(handler EventHandler) error
}
