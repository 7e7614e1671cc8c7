package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/quest"
)

// SeedFile - содержимое TOML-файла каталога.
type SeedFile struct {
	Achievements []achievement.Achievement `toml:"achievements"`
	Quests       []quest.PartyQuest        `toml:"quests"`
}

// Store - то, куда пишется каталог.
type Store interface {
	UpsertAchievement(ctx context.Context, a achievement.Achievement) error
	UpsertQuest(ctx context.Context, q quest.PartyQuest) error
}

// Parse читает и проверяет seed-файл. Неизвестные ключи - ошибка: опечатка
// в имени поля иначе молча обнулила бы награду.
func Parse(r io.Reader) (*SeedFile, error) {
	var f SeedFile
	err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&f)
	if err != nil {
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, fmt.Errorf("seed: line %d, column %d: %w", row, col, err)
		}
		var strictErr *toml.StrictMissingError
		if errors.As(err, &strictErr) {
			return nil, fmt.Errorf("seed: unknown fields:\n%s", strictErr.String())
		}
		return nil, fmt.Errorf("seed: %w", err)
	}

	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate проверяет каждую запись и уникальность id. Возвращает все
// найденные ошибки сразу.
func (f *SeedFile) Validate() error {
	var errs []string

	seen := make(map[string]bool, len(f.Achievements))
	for i, a := range f.Achievements {
		if err := a.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("achievements[%d] %q: %v", i, a.ID, err))
		}
		if !knownRequirement(a.RequirementType) {
			errs = append(errs, fmt.Sprintf("achievements[%d] %q: unknown requirement_type %q", i, a.ID, a.RequirementType))
		}
		if seen[a.ID] {
			errs = append(errs, fmt.Sprintf("achievements[%d]: duplicate id %q", i, a.ID))
		}
		seen[a.ID] = true
	}

	seen = make(map[string]bool, len(f.Quests))
	for i, q := range f.Quests {
		if err := q.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("quests[%d] %q: %v", i, q.ID, err))
		}
		if seen[q.ID] {
			errs = append(errs, fmt.Sprintf("quests[%d]: duplicate id %q", i, q.ID))
		}
		seen[q.ID] = true
	}

	if len(errs) > 0 {
		return fmt.Errorf("seed validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func knownRequirement(t achievement.RequirementType) bool {
	switch t {
	case achievement.RequirementEventsAttended,
		achievement.RequirementCurrentStreak,
		achievement.RequirementLongestStreak,
		achievement.RequirementCitiesVisited,
		achievement.RequirementFollowers,
		achievement.RequirementTotalRep,
		achievement.RequirementTotalHours,
		achievement.RequirementQuestsCompleted,
		achievement.RequirementLevel:
		return true
	}
	return false
}

// Apply пишет каталог в хранилище. Upsert идемпотентен, так что повторный
// запуск после частичного сбоя безопасен.
func (f *SeedFile) Apply(ctx context.Context, store Store) (achievements, quests int, err error) {
	for _, a := range f.Achievements {
		if err := store.UpsertAchievement(ctx, a); err != nil {
			return achievements, quests, fmt.Errorf("achievement %q: %w", a.ID, err)
		}
		achievements++
	}
	for _, q := range f.Quests {
		if err := store.UpsertQuest(ctx, q); err != nil {
			return achievements, quests, fmt.Errorf("quest %q: %w", q.ID, err)
		}
		quests++
	}
	return achievements, quests, nil
}
