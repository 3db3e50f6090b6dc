// Package bootstrap wires configuration into storage, messaging and the
// application handlers. The api, worker and pvpctl binaries share it so
// they always agree on backends and engine settings.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/studyplan/studyplan-pvp/config"
	"github.com/studyplan/studyplan-pvp/internal/application/command"
	"github.com/studyplan/studyplan-pvp/internal/application/eventhandler"
	"github.com/studyplan/studyplan-pvp/internal/application/query"
	"github.com/studyplan/studyplan-pvp/internal/domain/leaderboard"
	"github.com/studyplan/studyplan-pvp/internal/domain/match"
	"github.com/studyplan/studyplan-pvp/internal/domain/rating"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/messaging"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/metrics"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/persistence/memory"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/persistence/postgres"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/persistence/redis"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
	"github.com/studyplan/studyplan-pvp/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// STORAGE
// ══════════════════════════════════════════════════════════════════════════════

// Catalog is everything the engine reads about users, seasons and problems.
type Catalog interface {
	match.ProblemSource
	match.SeasonSource
	match.UserDirectory
	match.ProfileSource
}

// Storage holds the persistent repositories. Conn is nil for the
// in-memory backend.
type Storage struct {
	Matches   match.Repository
	Ratings   rating.Repository
	Scores    leaderboard.ScoreRepository
	Snapshots leaderboard.SnapshotRepository
	UoW       match.UnitOfWork
	Catalog   Catalog

	Conn   *postgres.Connection
	Memory *memory.Store
}

// Close releases the database pool.
func (s *Storage) Close() {
	if s.Conn != nil {
		s.Conn.Close()
	}
}

// OpenStorage connects to Postgres when DATABASE_URL is set, and falls
// back to an in-memory store seeded with demo data otherwise.
func OpenStorage(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Storage, error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL is empty, using in-memory storage")
		store := memory.NewStore(memory.Options{InitialRating: cfg.PVP.InitialRating})
		SeedDemo(store, DefaultDemoSize(), 1)
		return &Storage{
			Matches:   store.Matches(),
			Ratings:   store.Ratings(),
			Scores:    store.Scores(),
			Snapshots: store.Snapshots(),
			UoW:       store,
			Catalog:   store.Catalog(),
			Memory:    store,
		}, nil
	}

	conn, err := Connect(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	if cfg.Database.AutoMigrate {
		applied, err := postgres.NewMigrator(conn).Migrate(ctx)
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		if len(applied) > 0 {
			log.Info("migrations applied", slog.Any("versions", applied))
		}
	}

	return PostgresStorage(conn, cfg.PVP.InitialRating), nil
}

// PostgresStorage wraps an open connection.
func PostgresStorage(conn *postgres.Connection, initialRating float64) *Storage {
	store := postgres.NewStore(conn, initialRating)
	return &Storage{
		Matches:   store.Matches(),
		Ratings:   store.Ratings(),
		Scores:    store.Scores(),
		Snapshots: store.Snapshots(),
		UoW:       store,
		Catalog:   store.Catalog(),
		Conn:      conn,
	}
}

// Connect opens the Postgres pool, retrying while the database boots.
func Connect(ctx context.Context, cfg *config.Config, log *slog.Logger) (*postgres.Connection, error) {
	opts := postgres.DefaultPoolOptions()
	if cfg.Database.MaxConns > 0 {
		opts.MaxConns = int32(cfg.Database.MaxConns)
	}
	if cfg.Database.MinConns > 0 {
		opts.MinConns = int32(cfg.Database.MinConns)
	}
	if cfg.Database.ConnMaxLifetime > 0 {
		opts.MaxConnLifetime = cfg.Database.ConnMaxLifetime
	}
	if cfg.Database.ConnMaxIdleTime > 0 {
		opts.MaxConnIdleTime = cfg.Database.ConnMaxIdleTime
	}

	log.Info("connecting to database")
	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.Connect(ctx, cfg.Database.URL, opts)
	}, retry.ConnectPolicy()...)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	log.Info("database connection established")
	return conn, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED STATE (queue + ranking cache)
// ══════════════════════════════════════════════════════════════════════════════

// SharedState is the state every API instance must agree on.
type SharedState struct {
	Queue        match.Queue
	RankingCache leaderboard.RankingCache

	// Redis is nil when the in-memory fallback is used.
	Redis *redis.Cache
}

// Close closes the Redis client.
func (s *SharedState) Close() {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
}

// OpenSharedState connects to Redis unless it is disabled. A Redis that
// cannot be reached is an error: silently falling back to memory would
// split the queue between instances.
func OpenSharedState(ctx context.Context, cfg *config.Config, log *slog.Logger) (*SharedState, error) {
	if cfg.Redis.Disabled {
		log.Warn("Redis disabled, queue and ranking cache are per-process")
		return &SharedState{
			Queue:        memory.NewQueue(cfg.PVP.QueueTTL, nil),
			RankingCache: memory.NewRankingCache(cfg.Leaderboard.CacheTTL, nil),
		}, nil
	}

	opts := redis.DefaultOptions(net.JoinHostPort(cfg.Redis.Host, strconv.Itoa(cfg.Redis.Port)))
	opts.Password = cfg.Redis.Password
	opts.DB = cfg.Redis.DB
	if cfg.Redis.PoolSize > 0 {
		opts.PoolSize = cfg.Redis.PoolSize
	}
	if cfg.Redis.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.Redis.MinIdleConns
	}
	if cfg.Redis.DialTimeout > 0 {
		opts.DialTimeout = cfg.Redis.DialTimeout
	}
	if cfg.Redis.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.Redis.ReadTimeout
	}
	if cfg.Redis.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.Redis.WriteTimeout
	}

	log.Info("connecting to Redis", slog.String("addr", opts.Addr))
	cache, err := retry.DoWithData(ctx, func(ctx context.Context) (*redis.Cache, error) {
		dialCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
		defer cancel()
		return redis.NewCache(dialCtx, opts, redis.DefaultKeyPrefix)
	}, retry.ConnectPolicy()...)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	log.Info("Redis connection established")

	return &SharedState{
		Queue:        redis.NewMatchmakingQueue(cache, cfg.PVP.QueueKey, cfg.PVP.QueueTTL),
		RankingCache: redis.NewRankingCache(cache, cfg.Leaderboard.CacheTTL),
		Redis:        cache,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EVENTS
// ══════════════════════════════════════════════════════════════════════════════

// Events is the in-process bus plus the optional Kafka forwarder.
type Events struct {
	Bus       *messaging.InMemoryEventBus
	Forwarder *messaging.KafkaForwarder
}

// Close drains the bus, then closes the Kafka writer.
func (e *Events) Close() {
	_ = e.Bus.Close()
	if e.Forwarder != nil {
		_ = e.Forwarder.Close()
	}
}

// OpenEvents creates the bus, subscribes the ranking cache invalidator and
// attaches the Kafka forwarder when enabled.
func OpenEvents(cfg *config.Config, cache leaderboard.RankingCache, log *slog.Logger) (*Events, error) {
	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.Logger = log
	busCfg.AsyncMode = true
	bus := messaging.NewInMemoryEventBus(busCfg)

	if err := eventhandler.NewOnMatchResolvedHandler(cache, log).Register(bus); err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("subscribe cache invalidation: %w", err)
	}

	events := &Events{Bus: bus}
	if cfg.Kafka.Enabled && cfg.Features.Enabled(config.FeatureEventsKafkaForwarding) {
		writer := messaging.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.BatchTimeout)
		events.Forwarder = messaging.NewKafkaForwarder(writer, messaging.KafkaForwarderConfig{
			Topic:  cfg.Kafka.Topic,
			Logger: log,
		})
		if err := events.Forwarder.Register(bus); err != nil {
			events.Close()
			return nil, fmt.Errorf("subscribe kafka forwarder: %w", err)
		}
		log.Info("forwarding events to Kafka", slog.String("topic", cfg.Kafka.Topic))
	}
	return events, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine bundles every command and query handler.
type Engine struct {
	Resolver *command.Resolver

	CreateMatch      *command.CreateMatchHandler
	JoinQueue        *command.JoinQueueHandler
	LeaveQueue       *command.LeaveQueueHandler
	SubmitAnswer     *command.SubmitAnswerHandler
	Forfeit          *command.ForfeitHandler
	SweepTimeouts    *command.SweepTimeoutsHandler
	SnapshotRankings *command.SnapshotRankingsHandler

	GetMatch        *query.GetMatchHandler
	GetPvpStats     *query.GetPvpStatsHandler
	GetRankings     *query.GetRankingsHandler
	UserRank        *query.UserRankHandler
	GetScoreHistory *query.GetScoreHistoryHandler
}

// NewEngine builds the handlers. rec may be nil.
func NewEngine(cfg *config.Config, st *Storage, shared *SharedState, events *Events, rec *metrics.Recorder, log *logger.Logger) *Engine {
	var m command.Metrics = command.NopMetrics{}
	if rec != nil {
		m = rec
	}
	pub := events.Bus
	flags := cfg.Features

	resolver := command.NewResolver(st.Matches, st.UoW, st.Catalog, st.Catalog, pub, command.ResolverConfig{
		KFactor:         cfg.PVP.KFactor,
		CompletionBonus: flags.Enabled(config.FeatureScoringCompletionBonus),
	}, m, log, nil)

	create := command.NewCreateMatchHandler(st.Matches, st.Catalog, st.Catalog, st.Catalog, resolver, pub,
		command.CreateMatchHandlerConfig{TimeLimitSeconds: cfg.PVP.TimeLimitSeconds}, m, log, nil, nil)

	loader := query.NewRankingLoader(st.Scores, st.Snapshots, st.Catalog, shared.RankingCache,
		query.RankingLoaderConfig{RankChange: flags.Enabled(config.FeatureLeaderboardRankChange)}, log, nil)

	return &Engine{
		Resolver:      resolver,
		CreateMatch:   create,
		JoinQueue:     command.NewJoinQueueHandler(shared.Queue, create, pub, m, log),
		LeaveQueue:    command.NewLeaveQueueHandler(shared.Queue),
		SubmitAnswer:  command.NewSubmitAnswerHandler(st.Matches, st.Catalog, resolver, pub, m, log, nil),
		Forfeit:       command.NewForfeitHandler(st.Matches, resolver, log),
		SweepTimeouts: command.NewSweepTimeoutsHandler(st.Matches, resolver, m, log, nil),
		SnapshotRankings: command.NewSnapshotRankingsHandler(st.Catalog, st.Scores, st.Snapshots, shared.RankingCache, pub,
			command.SnapshotRankingsHandlerConfig{Retention: cfg.Leaderboard.SnapshotRetention}, log, nil, nil),

		GetMatch:        query.NewGetMatchHandler(st.Matches, st.Catalog, resolver),
		GetPvpStats:     query.NewGetPvpStatsHandler(st.Ratings, cfg.PVP.InitialRating),
		GetRankings:     query.NewGetRankingsHandler(loader),
		UserRank:        query.NewUserRankHandler(loader),
		GetScoreHistory: query.NewGetScoreHistoryHandler(st.Scores, st.Catalog),
	}
}

// RegisterGauges exposes the active match count and queue length.
func RegisterGauges(rec *metrics.Recorder, st *Storage, q match.Queue) {
	rec.RegisterGauge("active_matches", "Matches currently IN_PROGRESS.", func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := st.Matches.CountActive(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	})
	rec.RegisterGauge("queue_size", "Players waiting in the random queue.", func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		n, err := q.Size(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	})
}

// NewLogger builds the structured logger from the observability settings.
func NewLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	opts.Format = cfg.Observability.LogFormat
	if cfg.IsProduction() {
		opts.Format = "json"
	}
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	l := logger.New(opts)
	slog.SetDefault(l.Slog())
	return l
}
