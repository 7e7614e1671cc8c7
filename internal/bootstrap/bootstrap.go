// Package bootstrap собирает процесс из конфигурации: подключения, репозитории,
// шину событий, обработчики команд и запросов. Им пользуются все точки входа
// (api, worker, recaplambda), чтобы граф зависимостей был один.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/afterhours/nightlife-core/config"
	"github.com/afterhours/nightlife-core/internal/application/command"
	"github.com/afterhours/nightlife-core/internal/application/eventhandler"
	"github.com/afterhours/nightlife-core/internal/application/query"
	"github.com/afterhours/nightlife-core/internal/infrastructure/external/objectstore"
	"github.com/afterhours/nightlife-core/internal/infrastructure/external/onesignal"
	"github.com/afterhours/nightlife-core/internal/infrastructure/messaging"
	"github.com/afterhours/nightlife-core/internal/infrastructure/persistence/catalog"
	"github.com/afterhours/nightlife-core/internal/infrastructure/persistence/postgres"
	"github.com/afterhours/nightlife-core/internal/infrastructure/persistence/redis"
	"github.com/afterhours/nightlife-core/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// APP
// ══════════════════════════════════════════════════════════════════════════════

// Repositories - все postgres-репозитории процесса.
type Repositories struct {
	XP           *postgres.XPRepository
	Achievements *postgres.AchievementRepository
	Quests       *postgres.QuestRepository
	Timeline     *postgres.TimelineRepository
	Streaks      *postgres.StreakRepository
	FlexCards    *postgres.FlexCardRepository
	Recaps       *postgres.RecapRepository
	Activity     *postgres.ActivityRepository
	PushTokens   *postgres.PushTokenRepository
}

// Commands - обработчики команд.
type Commands struct {
	AwardXP              *command.AwardXPHandler
	ClaimQuest           *command.ClaimQuestHandler
	QuestProgress        *command.IncrementQuestProgressHandler
	EvaluateAchievements *command.EvaluateAchievementsHandler
	Timeline             *command.TimelineHandler
	RefreshStreak        *command.RefreshStreakHandler
	GenerateFlexCard     *command.GenerateFlexCardHandler
	GenerateRecaps       *command.GenerateWeeklyRecapsHandler
}

// Queries - обработчики запросов.
type Queries struct {
	GetXP            *query.GetXPHandler
	ListAchievements *query.ListAchievementsHandler
	ListQuests       *query.ListActiveQuestsHandler
	GetTimeline      *query.GetTimelineHandler
	ListRecaps       *query.ListRecapsHandler
	PublicFlexCard   *query.GetPublicFlexCardHandler
}

// App - собранный граф зависимостей.
type App struct {
	Config *config.Config
	Log    *slog.Logger

	DB *postgres.Connection

	// Cache равен nil, если Redis выключен или недоступен: тогда нет
	// блокировки батча, rate limit и кеша флекс-карточек.
	Cache *redis.Cache

	Bus     *messaging.InMemoryEventBus
	Catalog *catalog.AchievementCatalog

	Repos    Repositories
	Commands Commands
	Queries  Queries
}

// Options - то, чем точки входа отличаются друг от друга.
type Options struct {
	// Migrate применяет миграции при старте независимо от конфигурации.
	Migrate bool

	// Notifications подписывает push-уведомления на шину.
	Notifications bool
}

// New подключается к хранилищам и собирает обработчики. При ошибке всё,
// что успело открыться, закрывается.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger, opts Options) (_ *App, err error) {
	app := &App{Config: cfg, Log: log}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// PostgreSQL
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	app.DB, err = postgres.NewConnection(ctx, PostgresConfig(cfg.Database))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.Migrate || cfg.Database.MigrateOnStart {
		applied, err := postgres.NewMigrator(app.DB).Migrate(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date", "applied", applied)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Redis (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	if !cfg.Redis.Disabled {
		cache, err := redis.NewCache(RedisConfig(cfg.Redis))
		if err != nil {
			log.Warn("failed to connect to Redis, running without cache and batch lock", "error", err)
		} else {
			app.Cache = cache
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Репозитории, шина, каталог
	// ─────────────────────────────────────────────────────────────────────────
	loc := cfg.App.Location
	app.Repos = Repositories{
		XP:           postgres.NewXPRepository(app.DB, loc),
		Achievements: postgres.NewAchievementRepository(app.DB),
		Quests:       postgres.NewQuestRepository(app.DB),
		Timeline:     postgres.NewTimelineRepository(app.DB),
		Streaks:      postgres.NewStreakRepository(app.DB),
		FlexCards:    postgres.NewFlexCardRepository(app.DB),
		Recaps:       postgres.NewRecapRepository(app.DB),
		Activity:     postgres.NewActivityRepository(app.DB),
		PushTokens:   postgres.NewPushTokenRepository(app.DB),
	}

	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	app.Bus = messaging.NewInMemoryEventBus(busConfig)

	app.Catalog, err = catalog.NewAchievementCatalog(app.Repos.Achievements, catalog.DefaultTTL, log)
	if err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Внешние сервисы
	// ─────────────────────────────────────────────────────────────────────────
	var exporter command.CardExporter
	if cfg.Storage.Enabled {
		store, err := objectstore.New(ctx, StorageConfig(cfg.Storage), log)
		if err != nil {
			// Экспорт best-effort: карточки создаются и без него.
			log.Warn("object storage unavailable, flex-card export disabled", "error", err)
		} else {
			exporter = store
		}
	}

	var locker command.Locker
	var flexCache query.FlexCardCache
	if app.Cache != nil {
		locker = redis.NewLocker(app.Cache)
		flexCache = redis.NewFlexCardCache(app.Cache)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Application layer
	// ─────────────────────────────────────────────────────────────────────────
	r := app.Repos
	flags := cfg.Features
	stats := command.NewStatsAssembler(r.Timeline, r.Quests, r.XP, r.Activity, loc)
	streaks := command.NewRefreshStreakHandler(r.Timeline, r.Streaks, flags, app.Bus, log, loc, nil)

	app.Commands = Commands{
		AwardXP:              command.NewAwardXPHandler(r.XP, app.Bus, log, nil),
		ClaimQuest:           command.NewClaimQuestHandler(r.Quests, r.XP, app.Bus, log, nil),
		QuestProgress:        command.NewIncrementQuestProgressHandler(r.Quests, log, nil),
		EvaluateAchievements: command.NewEvaluateAchievementsHandler(app.Catalog, r.Achievements, stats, app.Bus, log, nil),
		Timeline:             command.NewTimelineHandler(r.Timeline, streaks, app.Bus, log, nil),
		RefreshStreak:        streaks,
		GenerateFlexCard:     command.NewGenerateFlexCardHandler(r.Timeline, r.FlexCards, exporter, flags, app.Bus, log, loc, nil),
		GenerateRecaps: command.NewGenerateWeeklyRecapsHandler(
			r.Recaps, r.Activity, r.Timeline, r.Streaks, locker, app.Bus, log,
			command.RecapConfig{
				Concurrency: cfg.Recap.Concurrency,
				LockTTL:     cfg.Recap.LockTTL,
				UserTimeout: cfg.Recap.UserTimeout,
				Location:    loc,
			},
			nil,
		),
	}

	app.Queries = Queries{
		GetXP:            query.NewGetXPHandler(r.XP),
		ListAchievements: query.NewListAchievementsHandler(app.Catalog, r.Achievements),
		ListQuests:       query.NewListActiveQuestsHandler(r.Quests),
		GetTimeline:      query.NewGetTimelineHandler(r.Timeline),
		ListRecaps:       query.NewListRecapsHandler(r.Recaps),
		PublicFlexCard:   query.NewGetPublicFlexCardHandler(r.FlexCards, flexCache, cfg.HTTP.FlexCacheTTL, log),
	}

	// ─────────────────────────────────────────────────────────────────────────
	// Event handlers
	// ─────────────────────────────────────────────────────────────────────────
	if err := eventhandler.NewAchievementTrigger(app.Commands.EvaluateAchievements, log).Register(app.Bus); err != nil {
		return nil, fmt.Errorf("failed to register achievement trigger: %w", err)
	}

	if opts.Notifications {
		if err := app.registerNotifications(); err != nil {
			return nil, err
		}
	}

	return app, nil
}

// registerNotifications подписывает push-уведомления. Без настроенного
// провайдера события просто никто не слушает.
func (a *App) registerNotifications() error {
	push := a.Config.Push
	if !push.Enabled {
		a.Log.Info("push notifications disabled")
		return nil
	}

	clientConfig := onesignal.DefaultClientConfig(push.AppID, push.APIKey)
	clientConfig.BaseURL = push.BaseURL
	clientConfig.AndroidChannelID = push.AndroidChannelID
	clientConfig.Timeout = push.Timeout
	clientConfig.Logger = a.Log
	clientConfig.Debug = a.Config.App.Debug

	client, err := onesignal.NewClient(clientConfig)
	if err != nil {
		return fmt.Errorf("failed to create push client: %w", err)
	}

	dispatcher := messaging.NewPushDispatcher(messaging.DispatcherConfig{
		Tokens:    a.Repos.PushTokens,
		Sender:    client,
		Publisher: a.Bus,
		Logger:    a.Log,
	})

	handlers := eventhandler.NewNotificationHandlers(dispatcher, a.Repos.Streaks, a.Config.Features, a.Log)
	if err := handlers.Register(a.Bus); err != nil {
		return fmt.Errorf("failed to register notification handlers: %w", err)
	}
	a.Log.Info("push notifications enabled")
	return nil
}

// Close закрывает шину (дожидаясь обработчиков), Redis и пул postgres.
func (a *App) Close() {
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Log.Warn("failed to close Redis", "error", err)
		}
	}
	if a.DB != nil {
		a.DB.Close()
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LOGGING
// ══════════════════════════════════════════════════════════════════════════════

// NewLogger настраивает slog по конфигурации и делает его логгером по
// умолчанию. JSON - для production и агрегаторов, текст - для разработки.
func NewLogger(cfg *config.Config) *slog.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = logger.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Observability.LogFormat == "json" || cfg.IsProduction() {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler).With("app", cfg.App.Name, "version", cfg.App.Version)
	slog.SetDefault(log)
	return log
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIG MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// PostgresConfig переводит настройки окружения в конфигурацию пула.
func PostgresConfig(c config.DatabaseConfig) postgres.Config {
	pg := postgres.DefaultConfig()
	pg.URL = c.URL
	pg.MaxConns = int32(c.MaxConns)
	pg.MinConns = int32(c.MinConns)
	pg.MaxConnLifetime = c.ConnMaxLifetime
	pg.MaxConnIdleTime = c.ConnMaxIdleTime
	pg.ConnectTimeout = c.ConnectTimeout
	return pg
}

// RedisConfig переводит настройки окружения в конфигурацию клиента.
func RedisConfig(c config.RedisConfig) redis.Config {
	rc := redis.DefaultConfig()
	rc.URL = c.URL
	rc.Host = c.Host
	rc.Port = c.Port
	rc.Password = c.Password
	rc.DB = c.DB
	rc.PoolSize = c.PoolSize
	rc.MinIdleConns = c.MinIdleConns
	rc.DialTimeout = c.DialTimeout
	rc.ReadTimeout = c.ReadTimeout
	rc.WriteTimeout = c.WriteTimeout
	return rc
}

// StorageConfig переводит настройки окружения в конфигурацию бакета.
func StorageConfig(c config.StorageConfig) objectstore.Config {
	return objectstore.Config{
		Bucket:          c.Bucket,
		Region:          c.Region,
		Endpoint:        c.Endpoint,
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		PublicBaseURL:   c.PublicBaseURL,
		Prefix:          "flex",
		UsePathStyle:    c.Endpoint != "",
	}
}
