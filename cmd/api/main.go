// Package main - точка входа HTTP API ядра геймификации.
//
// API обслуживает мобильное приложение за шлюзом: XP, достижения, квесты,
// таймлайн, флекс-карточки и еженедельные рекапы. Публичный поиск карточки
// по share_code доступен без авторизации.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afterhours/nightlife-core/config"
	"github.com/afterhours/nightlife-core/internal/bootstrap"
	"github.com/afterhours/nightlife-core/internal/infrastructure/persistence/redis"
	httpserver "github.com/afterhours/nightlife-core/internal/interface/http"
	"github.com/afterhours/nightlife-core/internal/interface/http/handlers"
	"github.com/afterhours/nightlife-core/pkg/logger"
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
	log := bootstrap.NewLogger(cfg)
	log.Info("starting nightlife API",
		"env", cfg.App.Environment,
		"timezone", cfg.App.Timezone,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩА, ШИНА, ОБРАБОТЧИКИ
	// ─────────────────────────────────────────────────────────────────────────
	app, err := bootstrap.New(ctx, cfg, log, bootstrap.Options{Notifications: true})
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing connections...")
		app.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. АВТОРИЗАЦИЯ И ЗАЩИТА
	// ─────────────────────────────────────────────────────────────────────────
	serviceKeys, err := handlers.NewServiceKeyAuth(cfg.Auth.ServiceKeyHashes)
	if err != nil {
		return fmt.Errorf("invalid service key hashes: %w", err)
	}

	var limiter httpserver.RateLimiter
	if app.Cache != nil && cfg.HTTP.RateLimitPerMinute > 0 {
		limiter = redis.NewRateLimiter(app.Cache, cfg.HTTP.RateLimitPerMinute, time.Minute)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HEALTH CHECKS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("postgres", handlers.NewPingCheck(app.DB), true)
	if app.Cache != nil {
		// Без Redis API деградирует, но продолжает работать.
		health.AddCheck("redis", handlers.NewPingCheck(app.Cache), false)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. СОЗДАНИЕ HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverConfig := httpserver.DefaultConfig()
	serverConfig.Host = cfg.HTTP.Host
	serverConfig.Port = cfg.HTTP.Port
	serverConfig.ReadTimeout = cfg.HTTP.ReadTimeout
	serverConfig.WriteTimeout = cfg.HTTP.WriteTimeout
	serverConfig.IdleTimeout = cfg.HTTP.IdleTimeout
	serverConfig.MaxBodyBytes = cfg.HTTP.MaxBodyBytes
	serverConfig.AllowedOrigins = cfg.HTTP.AllowedOrigins
	serverConfig.RateLimitPerMinute = cfg.HTTP.RateLimitPerMinute
	serverConfig.FlexCacheMaxAge = cfg.HTTP.FlexCacheTTL

	c, q := app.Commands, app.Queries
	server := httpserver.NewServer(serverConfig, httpserver.Dependencies{
		AwardXP:              c.AwardXP,
		EvaluateAchievements: c.EvaluateAchievements,
		ClaimQuest:           c.ClaimQuest,
		QuestProgress:        c.QuestProgress,
		Timeline:             c.Timeline,
		RefreshStreak:        c.RefreshStreak,
		GenerateFlexCard:     c.GenerateFlexCard,
		GenerateRecaps:       c.GenerateRecaps,
		PushTokens:           app.Repos.PushTokens,

		GetXP:            q.GetXP,
		ListAchievements: q.ListAchievements,
		ListQuests:       q.ListQuests,
		GetTimeline:      q.GetTimeline,
		ListRecaps:       q.ListRecaps,
		PublicFlexCard:   q.PublicFlexCard,

		Identity:    handlers.NewGatewayIdentity(cfg.Auth.GatewaySecret),
		ServiceKeys: serviceKeys,
		RateLimiter: limiter,

		HealthChecker: health,
		Logger:        logger.FromSlog(log),
		Version:       cfg.App.Version,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 7. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	errCh := server.StartAsync()
	log.Info("nightlife API is running", "address", serverConfig.Address())

	// ─────────────────────────────────────────────────────────────────────────
	// 8. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	// Сначала перестаём принимать запросы; шина и пулы закроются через defer.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", "error", err)
	}

	log.Info("shutdown completed successfully")
	return nil
}
