// Package http exposes the PVP engine over a JSON REST API: matches, the
// random queue, answers, ratings and rankings, plus health and metrics
// endpoints.
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/studyplan/studyplan-pvp/config"
	"github.com/studyplan/studyplan-pvp/internal/application/command"
	"github.com/studyplan/studyplan-pvp/internal/application/query"
	"github.com/studyplan/studyplan-pvp/internal/interface/http/handlers"
	"github.com/studyplan/studyplan-pvp/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

type Config struct {
	Host string
	Port int

	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	// MaxBodyBytes caps request bodies under /api/v1.
	MaxBodyBytes int64

	// AllowedOrigins for CORS. Empty disables CORS.
	AllowedOrigins []string

	// UserHeader carries the caller's user ID, set by the auth gateway.
	UserHeader string

	// RateLimit throttles /api/v1 per caller.
	RateLimit RateLimitConfig
}

func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
		MaxBodyBytes:   64 << 10,
		AllowedOrigins: []string{"*"},
		UserHeader:     "X-User-ID",
		RateLimit:      DefaultRateLimitConfig(),
	}
}

func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// HTTPMetrics records request counts and latencies.
type HTTPMetrics interface {
	ObserveHTTP(route, method string, status int, d time.Duration)
}

// Dependencies are the engine handlers the routes call.
type Dependencies struct {
	CreateMatch  *command.CreateMatchHandler
	JoinQueue    *command.JoinQueueHandler
	LeaveQueue   *command.LeaveQueueHandler
	SubmitAnswer *command.SubmitAnswerHandler
	Forfeit      *command.ForfeitHandler

	GetMatch        *query.GetMatchHandler
	GetPvpStats     *query.GetPvpStatsHandler
	GetRankings     *query.GetRankingsHandler
	UserRank        *query.UserRankHandler
	GetScoreHistory *query.GetScoreHistoryHandler

	// Features gates the targeted match and queue endpoints per caller.
	// Nil enables everything.
	Features *config.FeatureFlags

	Logger *logger.Logger

	// HealthChecker backs /health and /ready. Nil reports healthy.
	HealthChecker handlers.HealthChecker

	// Metrics records request metrics. Nil disables them.
	Metrics HTTPMetrics

	// MetricsHandler serves /metrics. Nil leaves the route unregistered.
	MetricsHandler http.Handler
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

type Server struct {
	config     Config
	deps       Dependencies
	httpServer *http.Server
	router     chi.Router
	validate   *validator.Validate
	logger     *logger.Logger

	running atomic.Bool
}

// NewServer fills unset limits with defaults and builds the router.
func NewServer(config Config, deps Dependencies) *Server {
	if config.UserHeader == "" {
		config.UserHeader = "X-User-ID"
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 64 << 10
	}

	s := &Server{
		config:   config,
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   deps.Logger,
	}
	if s.logger == nil {
		s.logger = logger.Default()
	}
	if s.deps.HealthChecker == nil {
		s.deps.HealthChecker = handlers.NewNoopHealthChecker()
	}

	s.router = s.routes()
	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.recoveryMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(securityHeaders)
	if len(s.config.AllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", s.config.UserHeader},
			ExposedHeaders: []string{"X-Request-ID"},
			MaxAge:         300,
		}))
	}

	// ops
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Get("/live", s.handleLive)
	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.metricsMiddleware)
		r.Use(requestSizeLimit(s.config.MaxBodyBytes))
		r.Use(s.identityMiddleware)
		if s.config.RateLimit.RequestsPerMinute > 0 {
			r.Use(s.rateLimitMiddleware(newCallerLimiter(s.config.RateLimit)))
		}

		r.Route("/pvp", func(r chi.Router) {
			r.Post("/matches", s.handleCreateMatch)
			r.Get("/matches/{matchID}", s.handleGetMatch)
			r.Post("/matches/{matchID}/answers", s.handleSubmitAnswer)
			r.Post("/matches/{matchID}/forfeit", s.handleForfeit)

			r.Post("/queue", s.handleJoinQueue)
			r.Delete("/queue", s.handleLeaveQueue)

			r.Get("/stats", s.handleGetOwnStats)
			r.Get("/stats/{userID}", s.handleGetStats)
			r.Get("/leaders", s.handleGetRatingLeaders)
		})

		r.Route("/rankings/{scope}", func(r chi.Router) {
			r.Get("/", s.handleGetRankings)
			r.Get("/me", s.handleGetOwnRank)
			r.Get("/around", s.handleGetAround)
			r.Get("/statistics", s.handleGetStatistics)
		})

		r.Get("/scores/history", s.handleGetScoreHistory)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not_found", "Route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method not allowed")
	})

	return r
}

// Serve listens until Shutdown. ErrServerClosed is not an error.
func (s *Server) Serve() error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("http: server already running")
	}
	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: listen on %s: %w", s.config.Address(), err)
	}
	return nil
}

// StartAsync runs Serve in a goroutine. The channel yields at most one
// error and is closed when Serve returns.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := s.Serve(); err != nil {
			errCh <- err
		}
	}()
	return errCh
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
