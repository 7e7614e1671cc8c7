// Package main - загрузка каталога достижений и квестов из TOML-файла.
//
// Использование:
//
//	seed -file seeds/catalog.toml           # проверить и записать
//	seed -file seeds/catalog.toml -dry-run  # только проверить
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/afterhours/nightlife-core/config"
	"github.com/afterhours/nightlife-core/internal/bootstrap"
	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/quest"
	"github.com/afterhours/nightlife-core/internal/infrastructure/persistence/postgres"
)

func main() {
	file := flag.String("file", "seeds/catalog.toml", "path to the TOML seed file")
	dryRun := flag.Bool("dry-run", false, "validate the file without writing")
	flag.Parse()

	if err := run(context.Background(), *file, *dryRun); err != nil {
		fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string, dryRun bool) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЧТЕНИЕ И ПРОВЕРКА ФАЙЛА
	// ─────────────────────────────────────────────────────────────────────────
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	seed, err := Parse(f)
	if err != nil {
		return err
	}

	if dryRun {
		fmt.Printf("%s: %d achievements, %d quests, OK\n", path, len(seed.Achievements), len(seed.Quests))
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ПОДКЛЮЧЕНИЕ И МИГРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := bootstrap.NewLogger(cfg)

	conn, err := postgres.NewConnection(ctx, bootstrap.PostgresConfig(cfg.Database))
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer conn.Close()

	if _, err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ЗАПИСЬ КАТАЛОГА
	// ─────────────────────────────────────────────────────────────────────────
	store := catalogStore{
		achievements: postgres.NewAchievementRepository(conn),
		quests:       postgres.NewQuestRepository(conn),
	}
	achievements, quests, err := seed.Apply(ctx, store)
	if err != nil {
		return err
	}

	log.Info("catalog seeded", "file", path, "achievements", achievements, "quests", quests)
	return nil
}

// catalogStore склеивает два репозитория в Store.
type catalogStore struct {
	achievements achievement.Repository
	quests       quest.Repository
}

func (s catalogStore) UpsertAchievement(ctx context.Context, a achievement.Achievement) error {
	return s.achievements.UpsertAchievement(ctx, a)
}

func (s catalogStore) UpsertQuest(ctx context.Context, q quest.PartyQuest) error {
	return s.quests.UpsertQuest(ctx, q)
}
