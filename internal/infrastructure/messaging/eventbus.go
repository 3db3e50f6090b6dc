// Package messaging delivers domain events: an in-process bus for the
// handlers living in this service and a Kafka forwarder for everyone else.
package messaging

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/studyplan/studyplan-pvp/internal/domain/shared"
)

var (
	ErrEventBusClosed = errors.New("event bus is closed")
	ErrHandlerPanic   = errors.New("event handler panicked")
	ErrNilHandler     = errors.New("event handler is nil")
	ErrNilEvent       = errors.New("event is nil")
)

// Observer is told about every publish and every handler run.
// metrics.Recorder implements it.
type Observer interface {
	EventPublished(eventType string)
	EventHandled(eventType string, took time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) EventPublished(string)                     {}
func (nopObserver) EventHandled(string, time.Duration, error) {}

// InMemoryEventBusConfig configures NewInMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers off the publishing goroutine.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent async handlers.
	WorkerPoolSize int

	Logger   *slog.Logger
	Observer Observer
}

// DefaultInMemoryEventBusConfig is what the API and worker use.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 10}
}

// InMemoryEventBus fans events out to subscribed handlers. Handler
// failures are logged and never reach the publisher: by the time an event
// is published the state change behind it is committed.
type InMemoryEventBus struct {
	async    bool
	slots    chan struct{}
	log      *slog.Logger
	stopping chan struct{}
	running  sync.WaitGroup

	mu       sync.RWMutex
	byType   map[shared.EventType][]shared.EventHandler
	wildcard []shared.EventHandler
	observer Observer
	closed   bool
}

func NewInMemoryEventBus(cfg InMemoryEventBusConfig) *InMemoryEventBus {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = DefaultInMemoryEventBusConfig().WorkerPoolSize
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	return &InMemoryEventBus{
		async:    cfg.AsyncMode,
		slots:    make(chan struct{}, cfg.WorkerPoolSize),
		log:      cfg.Logger.With(slog.String("component", "event_bus")),
		stopping: make(chan struct{}),
		byType:   make(map[shared.EventType][]shared.EventHandler),
		observer: cfg.Observer,
	}
}

// SetObserver replaces the observer; nil restores the no-op one.
func (b *InMemoryEventBus) SetObserver(o Observer) {
	if o == nil {
		o = nopObserver{}
	}
	b.mu.Lock()
	b.observer = o
	b.mu.Unlock()
}

func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.add(handler, func() { b.byType[eventType] = append(b.byType[eventType], handler) })
}

// SubscribeAll registers handler for every event type.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.add(handler, func() { b.wildcard = append(b.wildcard, handler) })
}

func (b *InMemoryEventBus) add(handler shared.EventHandler, register func()) error {
	if handler == nil {
		return ErrNilHandler
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrEventBusClosed
	}
	register()
	return nil
}

// Publish delivers event to the handlers of its type, then to the
// wildcard handlers, in subscription order.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return ErrNilEvent
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	typed := b.byType[event.EventType()]
	targets := make([]shared.EventHandler, 0, len(typed)+len(b.wildcard))
	targets = append(append(targets, typed...), b.wildcard...)
	obs := b.observer
	b.mu.RUnlock()

	obs.EventPublished(string(event.EventType()))

	for _, h := range targets {
		if !b.async {
			b.run(obs, event, h)
			continue
		}
		b.running.Add(1)
		go func(h shared.EventHandler) {
			defer b.running.Done()
			select {
			case b.slots <- struct{}{}:
			case <-b.stopping:
				return
			}
			defer func() { <-b.slots }()
			b.run(obs, event, h)
		}(h)
	}
	return nil
}

func (b *InMemoryEventBus) run(obs Observer, event shared.Event, h shared.EventHandler) {
	start := time.Now()
	err := b.call(event, h)
	obs.EventHandled(string(event.EventType()), time.Since(start), err)
	if err != nil {
		b.log.Error("event handler failed",
			slog.String("event_type", string(event.EventType())),
			slog.String("aggregate_id", event.AggregateID()),
			slog.Any("error", err))
	}
}

func (b *InMemoryEventBus) call(event shared.Event, h shared.EventHandler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panic", slog.String("event_type", string(event.EventType())), slog.Any("panic", r))
			err = ErrHandlerPanic
		}
	}()
	return h(event)
}

// Close rejects further events and waits for handlers already running.
// Async deliveries still waiting for a worker slot are dropped.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.stopping)
	b.mu.Unlock()

	b.running.Wait()
	b.log.Info("event bus closed")
	return nil
}
