// Package main - точка входа HTTP API матчей PVP.
//
// API отвечает за:
// - Создание матчей (прямой вызов и случайная очередь)
// - Приём ответов и завершение матчей
// - Рейтинги сезона, диплома и дня
// - Health checks и метрики Prometheus
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/studyplan/studyplan-pvp/config"
	"github.com/studyplan/studyplan-pvp/internal/bootstrap"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/metrics"
	"github.com/studyplan/studyplan-pvp/internal/infrastructure/scheduler"
	httpserver "github.com/studyplan/studyplan-pvp/internal/interface/http"
	"github.com/studyplan/studyplan-pvp/internal/interface/http/handlers"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	appLog := bootstrap.NewLogger(cfg)
	log := appLog.Slog()
	log.Info("starting PVP API",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"debug", cfg.App.Debug,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ (PostgreSQL или память)
	// ─────────────────────────────────────────────────────────────────────────
	storage, err := bootstrap.OpenStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database connection...")
		storage.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ОЧЕРЕДЬ И КЕШ РЕЙТИНГА (Redis или память)
	// ─────────────────────────────────────────────────────────────────────────
	shared, err := bootstrap.OpenSharedState(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shared.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 5. EVENT BUS И KAFKA
	// ─────────────────────────────────────────────────────────────────────────
	events, err := bootstrap.OpenEvents(cfg, shared.RankingCache, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing event bus...")
		events.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 6. МЕТРИКИ
	// ─────────────────────────────────────────────────────────────────────────
	var recorder *metrics.Recorder
	if cfg.Observability.MetricsEnabled {
		recorder = metrics.NewRecorder()
		bootstrap.RegisterGauges(recorder, storage, shared.Queue)
		events.Bus.SetObserver(recorder)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ОБРАБОТЧИКИ КОМАНД И ЗАПРОСОВ
	// ─────────────────────────────────────────────────────────────────────────
	engine := bootstrap.NewEngine(cfg, storage, shared, events, recorder, appLog)

	// Память не видна отдельному worker, поэтому фоновые задачи идут здесь.
	var sched *scheduler.Scheduler
	if storage.Memory != nil && cfg.Scheduler.Enabled {
		sched, err = bootstrap.NewScheduler(cfg, engine, recorder, log)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		log.Info("running background jobs in-process")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	if storage.Conn != nil {
		health.AddCheck("postgres", handlers.NewPingCheck(storage.Conn))
	}
	if shared.Redis != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(shared.Redis))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 9. HTTP СЕРВЕР
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	if cfg.HTTP.ReadTimeout > 0 {
		serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	}
	if cfg.HTTP.WriteTimeout > 0 {
		serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	}
	if cfg.HTTP.IdleTimeout > 0 {
		serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout
	}
	serverCfg.AllowedOrigins = cfg.HTTP.CORSOrigins
	if cfg.HTTP.UserHeader != "" {
		serverCfg.UserHeader = cfg.HTTP.UserHeader
	}
	serverCfg.RateLimit.RequestsPerMinute = cfg.HTTP.RateLimitPerMinute
	if cfg.HTTP.RateLimitBurst > 0 {
		serverCfg.RateLimit.Burst = cfg.HTTP.RateLimitBurst
	}

	deps := httpserver.Dependencies{
		CreateMatch:     engine.CreateMatch,
		JoinQueue:       engine.JoinQueue,
		LeaveQueue:      engine.LeaveQueue,
		SubmitAnswer:    engine.SubmitAnswer,
		Forfeit:         engine.Forfeit,
		GetMatch:        engine.GetMatch,
		GetPvpStats:     engine.GetPvpStats,
		GetRankings:     engine.GetRankings,
		UserRank:        engine.UserRank,
		GetScoreHistory: engine.GetScoreHistory,
		Features:        cfg.Features,
		Logger:          appLog,
		HealthChecker:   health,
	}
	if recorder != nil {
		deps.Metrics = recorder
		deps.MetricsHandler = recorder.Handler()
	}

	server := httpserver.NewServer(serverCfg, deps)
	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("PVP API is running", "http_address", serverCfg.Address())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			log.Error("HTTP server error", "error", err)
			return err
		}
		log.Warn("HTTP server stopped unexpectedly")
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.HTTP.ShutdownTimeout.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()

	var shutdownErr error

	// 1. Перестаём принимать запросы
	log.Info("stopping HTTP server...")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to stop HTTP server gracefully", "error", err)
		shutdownErr = err
	}

	// 2. Дожидаемся фоновых задач
	if sched != nil {
		if err := bootstrap.StopScheduler(sched, cfg.HTTP.ShutdownTimeout); err != nil {
			log.Error("failed to stop scheduler gracefully", "error", err)
			shutdownErr = err
		}
	}

	// 3. Event bus, Redis и база данных закроются через defer

	if shutdownErr != nil {
		log.Warn("shutdown completed with errors")
	} else {
		log.Info("shutdown completed successfully")
	}
	return nil
}
