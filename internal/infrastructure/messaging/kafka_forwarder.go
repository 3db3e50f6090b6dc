package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
	"github.com/studyplan/studyplan-pvp/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// KAFKA FORWARDER
// Every event published on the local bus is copied to a Kafka topic as a
// shared.EventEnvelope keyed by aggregate ID.
// ══════════════════════════════════════════════════════════════════════════════

// MessageWriter is the subset of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarderConfig configures KafkaForwarder.
type KafkaForwarderConfig struct {
	Topic        string
	WriteTimeout time.Duration

	// Breaker opens after this many consecutive failed writes.
	FailureThreshold uint32
	OpenTimeout      time.Duration

	Logger *slog.Logger
}

// KafkaForwarder writes envelopes to Kafka behind a circuit breaker.
// Delivery is at most once: a write that still fails after retries is
// logged and dropped.
type KafkaForwarder struct {
	writer  MessageWriter
	topic   string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	retrier *retry.Retrier
	logger  *slog.Logger
	newID   func() string
}

// NewKafkaWriter builds the production writer.
func NewKafkaWriter(brokers []string, batchTimeout time.Duration) *kafka.Writer {
	if batchTimeout <= 0 {
		batchTimeout = 50 * time.Millisecond
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batchTimeout,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaForwarder creates a forwarder over writer.
func NewKafkaForwarder(writer MessageWriter, config KafkaForwarderConfig) *KafkaForwarder {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = 5 * time.Second
	}
	if config.FailureThreshold == 0 {
		config.FailureThreshold = 5
	}
	if config.OpenTimeout <= 0 {
		config.OpenTimeout = 30 * time.Second
	}
	logger := config.Logger.With(slog.String("component", "kafka_forwarder"), slog.String("topic", config.Topic))
	threshold := config.FailureThreshold

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "kafka:" + config.Topic,
		MaxRequests: 1,
		Timeout:     config.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	})

	return &KafkaForwarder{
		writer:  writer,
		topic:   config.Topic,
		timeout: config.WriteTimeout,
		breaker: breaker,
		retrier: retry.PublishRetrier(),
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Register subscribes the forwarder to every event on the bus.
func (f *KafkaForwarder) Register(bus shared.EventSubscriber) error {
	return bus.SubscribeAll(f.Handle)
}

// Handle forwards one event. It is a shared.EventHandler.
func (f *KafkaForwarder) Handle(event shared.Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()
	return f.Forward(ctx, event)
}

// Forward serializes the event and writes it.
func (f *KafkaForwarder) Forward(ctx context.Context, event shared.Event) error {
	env, err := shared.NewEventEnvelope(f.newID(), event)
	if err != nil {
		return fmt.Errorf("build envelope: %w", err)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(env.AggregateID),
		Value: value,
		Time:  env.Timestamp,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(env.Type)},
		},
	}

	err = f.retrier.Do(ctx, func(ctx context.Context) error {
		_, err := f.breaker.Execute(func() (interface{}, error) {
			return nil, f.writer.WriteMessages(ctx, msg)
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return retry.Permanent(err)
		}
		if err != nil {
			return retry.Retryable(err)
		}
		return nil
	})
	if err != nil {
		f.logger.Error("failed to forward event",
			slog.String("event_type", string(env.Type)),
			slog.String("aggregate_id", env.AggregateID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// State returns the breaker state for health reporting.
func (f *KafkaForwarder) State() string {
	return f.breaker.State().String()
}

// Close flushes and closes the writer.
func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
