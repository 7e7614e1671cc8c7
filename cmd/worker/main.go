// Package main - точка входа для фоновых процессов (Worker) ядра геймификации.
//
// Worker отвечает за периодические задачи:
// - Еженедельные рекапы за прошедшую неделю (понедельник утром)
// - Ночной пересчёт стриков и вех для недавно активных пользователей
//
// Флаг -run <job> выполняет одну задачу немедленно и завершает процесс:
// удобно для ручного перезапуска батча после сбоя.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/afterhours/nightlife-core/config"
	"github.com/afterhours/nightlife-core/internal/bootstrap"
	"github.com/afterhours/nightlife-core/internal/infrastructure/scheduler"
	"github.com/afterhours/nightlife-core/internal/infrastructure/scheduler/jobs"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	runJob := flag.String("run", "", "run a single job by name and exit (weekly_recap, streak_refresh)")
	flag.Parse()

	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, *runJob); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, runJob string) error {
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
	log := bootstrap.NewLogger(cfg)
	log.Info("starting nightlife worker",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩА, ШИНА, ОБРАБОТЧИКИ
	// Worker также держит схему актуальной: он стартует раньше API.
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{
		Migrate:       true,
		Notifications: true,
	})
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing connections...")
		app.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ИНИЦИАЛИЗАЦИЯ SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	schedulerConfig := scheduler.DefaultSchedulerConfig()
	schedulerConfig.Logger = log
	schedulerConfig.Timezone = cfg.App.Location
	schedulerConfig.MaxHistorySize = cfg.Scheduler.MaxHistorySize

	sched, err := scheduler.NewScheduler(schedulerConfig)
	if err != nil {
		return err
	}
	sched.OnJobError(func(jobName string, err error) {
		log.Error("scheduled job failed", "job", jobName, "error", err)
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 5. РЕГИСТРАЦИЯ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	recapJob := jobs.NewWeeklyRecapJob(app.Commands.GenerateRecaps, log, cfg.Scheduler.JobTimeout)
	if err := sched.Register(recapJob, scheduler.NewCronSchedule(cfg.Scheduler.WeeklyRecapCron)); err != nil {
		return fmt.Errorf("failed to register %s: %w", recapJob.Name(), err)
	}

	streakJob := jobs.NewStreakRefreshJob(app.Repos.Timeline, app.Commands.RefreshStreak, log, jobs.StreakRefreshConfig{
		Lookback: cfg.Scheduler.StreakLookback,
		Timeout:  cfg.Scheduler.JobTimeout,
	})
	if err := sched.Register(streakJob, scheduler.NewCronSchedule(cfg.Scheduler.StreakRefreshCron)); err != nil {
		return fmt.Errorf("failed to register %s: %w", streakJob.Name(), err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. РАЗОВЫЙ ЗАПУСК (-run)
	// ─────────────────────────────────────────────────────────────────────────
	if runJob != "" {
		log.Info("running job once", "job", runJob)
		result, err := sched.RunNow(ctx, runJob)
		if err != nil {
			return err
		}
		// Дожидаемся уведомлений, запущенных задачей.
		app.Bus.Wait()
		if result.Error != nil {
			return fmt.Errorf("job %s failed: %w", runJob, result.Error)
		}
		log.Info("job finished", "job", runJob, "duration", result.Duration.String())
		return nil
	}

	if !cfg.Scheduler.Enabled {
		log.Warn("scheduler disabled by configuration, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК SCHEDULER
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Start(ctx); err != nil {
		return err
	}
	for _, info := range sched.ListJobs() {
		log.Info("job scheduled", "job", info.Name, "schedule", info.Schedule, "next_run", info.NextRun)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
	}

	// Задачи получают отмену контекста; батч рекапов идемпотентен, так что
	// прерванный прогон просто доделается следующим.
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	if err := sched.Stop(); err != nil {
		log.Error("scheduler stop error", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}
