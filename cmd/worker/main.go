// Package main - точка входа для фоновых процессов PVP.
//
// Worker отвечает за периодические задачи:
// - Завершение матчей с истёкшим лимитом времени
// - Снимки сезонного рейтинга для индикатора изменения ранга
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/studyplan/studyplan-pvp/config"
	"github.com/studyplan/studyplan-pvp/internal/bootstrap"
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
	log.Info("starting PVP worker",
		"env", cfg.App.Environment,
		"version", cfg.App.Version,
		"timezone", cfg.App.Timezone,
	)

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled by SCHEDULER_ENABLED, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ И РАЗДЕЛЯЕМОЕ СОСТОЯНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	storage, err := bootstrap.OpenStorage(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database connection...")
		storage.Close()
	}()
	if storage.Memory != nil {
		log.Warn("in-memory storage is private to this process, the worker will only see its own demo data")
	}

	shared, err := bootstrap.OpenSharedState(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer shared.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	events, err := bootstrap.OpenEvents(cfg, shared.RankingCache, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing event bus...")
		events.Close()
	}()

	engine := bootstrap.NewEngine(cfg, storage, shared, events, nil, appLog)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := bootstrap.NewScheduler(cfg, engine, nil, log)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, j := range sched.ListJobs() {
		log.Info("job scheduled", "job", j.Name, "every", j.Every.String(), "next_run", j.NextRun)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	if err := bootstrap.StopScheduler(sched, cfg.App.ShutdownTimeout); err != nil {
		return err
	}
	log.Info("shutdown completed successfully")
	return nil
}
