// Package achievement defines the static achievement catalog, the per-user
// earned records and the pure evaluation rule that decides which catalog
// entries a user newly qualifies for.
package achievement

import (
	"sort"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG
// ══════════════════════════════════════════════════════════════════════════════

// Category groups achievements for display.
type Category string

const (
	CategoryExplorer  Category = "explorer"
	CategorySocial    Category = "social"
	CategoryLoyalty   Category = "loyalty"
	CategoryPioneer   Category = "pioneer"
	CategoryLegendary Category = "legendary"
)

// IsValid reports whether c is a known category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryExplorer, CategorySocial, CategoryLoyalty, CategoryPioneer, CategoryLegendary:
		return true
	}
	return false
}

// RequirementType names the stat an achievement is measured against.
type RequirementType string

const (
	RequirementEventsAttended  RequirementType = "events_attended"
	RequirementCurrentStreak   RequirementType = "current_streak"
	RequirementLongestStreak   RequirementType = "longest_streak"
	RequirementCitiesVisited   RequirementType = "cities_visited"
	RequirementFollowers       RequirementType = "followers"
	RequirementTotalRep        RequirementType = "total_rep"
	RequirementTotalHours      RequirementType = "total_hours"
	RequirementQuestsCompleted RequirementType = "quests_completed"
	RequirementLevel           RequirementType = "level"
)

// Achievement is a catalog entry. Read-only at runtime.
type Achievement struct {
	ID               string          `json:"id" toml:"id"`
	Name             string          `json:"name" toml:"name"`
	Description      string          `json:"description" toml:"description"`
	Icon             string          `json:"icon" toml:"icon"`
	XPReward         int64           `json:"xp_reward" toml:"xp_reward"`
	Category         Category        `json:"category" toml:"category"`
	RequirementType  RequirementType `json:"requirement_type" toml:"requirement_type"`
	RequirementValue int64           `json:"requirement_value" toml:"requirement_value"`
	IsSecret         bool            `json:"is_secret" toml:"is_secret"`
}

// Validate checks a catalog entry before it is seeded.
func (a Achievement) Validate() error {
	if a.ID == "" || a.Name == "" {
		return shared.NewDomainError("achievement", "Validate", shared.ErrEmptyValue, "id and name are required")
	}
	if a.XPReward < 0 || a.RequirementValue < 0 {
		return shared.NewDomainError("achievement", "Validate", shared.ErrNegativeValue, "reward and requirement must be non-negative")
	}
	if !a.Category.IsValid() {
		return shared.ErrInvalidCategory
	}
	return nil
}

// UserAchievement records that a user earned an achievement. Unique per
// (user_id, achievement_id) and immutable.
type UserAchievement struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	EarnedAt      time.Time `json:"earned_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS & EVALUATION
// ══════════════════════════════════════════════════════════════════════════════

// Stats are the user figures achievements are checked against.
type Stats struct {
	EventsAttended  int64
	CurrentStreak   int64
	LongestStreak   int64
	CitiesVisited   int64
	Followers       int64
	TotalRep        int64
	TotalHours      int64
	QuestsCompleted int64
	Level           int64
}

// Value maps a requirement type to its stat. ok is false for unknown types.
func (s Stats) Value(rt RequirementType) (int64, bool) {
	switch rt {
	case RequirementEventsAttended:
		return s.EventsAttended, true
	case RequirementCurrentStreak:
		return s.CurrentStreak, true
	case RequirementLongestStreak:
		return s.LongestStreak, true
	case RequirementCitiesVisited:
		return s.CitiesVisited, true
	case RequirementFollowers:
		return s.Followers, true
	case RequirementTotalRep:
		return s.TotalRep, true
	case RequirementTotalHours:
		return s.TotalHours, true
	case RequirementQuestsCompleted:
		return s.QuestsCompleted, true
	case RequirementLevel:
		return s.Level, true
	}
	return 0, false
}

// Satisfied reports whether stats meet the achievement requirement.
func (a Achievement) Satisfied(stats Stats) bool {
	v, ok := stats.Value(a.RequirementType)
	return ok && v >= a.RequirementValue
}

// Candidates returns catalog entries that stats satisfy and that are not in
// earned. The result is ordered by requirement value, then id, so repeated
// evaluation awards in a stable order.
func Candidates(catalog []Achievement, stats Stats, earned map[string]bool) []Achievement {
	var out []Achievement
	for _, a := range catalog {
		if earned[a.ID] {
			continue
		}
		if a.Satisfied(stats) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RequirementValue != out[j].RequirementValue {
			return out[i].RequirementValue < out[j].RequirementValue
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPLAY
// ══════════════════════════════════════════════════════════════════════════════

const (
	secretPlaceholder = "???"
	secretLabel       = "Secret"
)

// View is what a user sees for a catalog entry.
type View struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Icon             string     `json:"icon"`
	Category         Category   `json:"category"`
	XPReward         int64      `json:"xp_reward"`
	RequirementType  string     `json:"requirement_type"`
	RequirementValue *int64     `json:"requirement_value,omitempty"`
	IsSecret         bool       `json:"is_secret"`
	Earned           bool       `json:"earned"`
	EarnedAt         *time.Time `json:"earned_at,omitempty"`
}

// ViewFor builds the display view. Secret achievements hide their name,
// description and requirement until earned.
func ViewFor(a Achievement, earned *UserAchievement) View {
	v := View{
		ID:       a.ID,
		Icon:     a.Icon,
		Category: a.Category,
		XPReward: a.XPReward,
		IsSecret: a.IsSecret,
	}
	if earned != nil {
		v.Earned = true
		at := earned.EarnedAt
		v.EarnedAt = &at
	}

	if a.IsSecret && !v.Earned {
		v.Name = secretPlaceholder
		v.Description = secretLabel
		v.RequirementType = secretPlaceholder
		return v
	}

	v.Name = a.Name
	v.Description = a.Description
	v.RequirementType = string(a.RequirementType)
	rv := a.RequirementValue
	v.RequirementValue = &rv
	return v
}
