package achievement

import (
	"context"
	"time"
)

// CatalogSource loads the static catalog.
type CatalogSource interface {
	ListAchievements(ctx context.Context) ([]Achievement, error)
}

// Repository stores earned achievements.
type Repository interface {
	CatalogSource

	// UpsertAchievement writes a catalog entry. Used by seeding only.
	UpsertAchievement(ctx context.Context, a Achievement) error

	// ListEarned returns the user's earned achievements.
	ListEarned(ctx context.Context, userID string) ([]UserAchievement, error)

	// Award inserts the (user, achievement) row if absent and, only when
	// inserted, increments the user's XP by XPReward in the same transaction.
	Award(ctx context.Context, userID string, a Achievement, now time.Time) (ua UserAchievement, inserted bool, err error)
}
