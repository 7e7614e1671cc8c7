// Package flexcard builds shareable stat cards from timeline statistics.
package flexcard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
)

// CardType selects the card template.
type CardType string

const (
	TypeWeeklyRecap  CardType = "weekly_recap"
	TypeMonthlyStats CardType = "monthly_stats"
	TypeMilestone    CardType = "milestone"
	TypeStreak       CardType = "streak"
)

// ParseCardType validates a card type string.
func ParseCardType(s string) (CardType, error) {
	switch ct := CardType(strings.ToLower(strings.TrimSpace(s))); ct {
	case TypeWeeklyRecap, TypeMonthlyStats, TypeMilestone, TypeStreak:
		return ct, nil
	}
	return "", shared.ErrInvalidCardType
}

// FlexCard is immutable once created, apart from visibility.
type FlexCard struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	CardType  CardType       `json:"card_type"`
	Title     string         `json:"title"`
	Subtitle  string         `json:"subtitle"`
	Stats     map[string]any `json:"stats"`
	ShareCode string         `json:"share_code"`
	IsPublic  bool           `json:"is_public"`
	CreatedAt time.Time      `json:"created_at"`
}

// PublicView strips the owner id from a card served to anonymous callers.
type PublicView struct {
	CardType  CardType       `json:"card_type"`
	Title     string         `json:"title"`
	Subtitle  string         `json:"subtitle"`
	Stats     map[string]any `json:"stats"`
	ShareCode string         `json:"share_code"`
	CreatedAt time.Time      `json:"created_at"`
}

// Public returns the card for public lookup. A private card is reported as
// not found so lookups cannot probe for its existence.
func (c *FlexCard) Public() (PublicView, error) {
	if c == nil || !c.IsPublic {
		return PublicView{}, shared.ErrFlexCardNotFound
	}
	return PublicView{
		CardType:  c.CardType,
		Title:     c.Title,
		Subtitle:  c.Subtitle,
		Stats:     c.Stats,
		ShareCode: c.ShareCode,
		CreatedAt: c.CreatedAt,
	}, nil
}

const (
	maxSlugLength   = 24
	shareCodeSuffix = 8
)

// NewShareCode returns a URL-safe code: the slugged title plus random hex.
func NewShareCode(title string) string {
	base := slug.Make(title)
	if len(base) > maxSlugLength {
		base = strings.TrimRight(base[:maxSlugLength], "-")
	}
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:shareCodeSuffix]
	if base == "" {
		return suffix
	}
	return base + "-" + suffix
}

// Build renders a card of the given type from stats. ID and share code are
// assigned here; the caller persists it.
func Build(userID string, ct CardType, s timeline.Stats, isPublic bool, now time.Time) *FlexCard {
	card := &FlexCard{
		ID:        uuid.NewString(),
		UserID:    userID,
		CardType:  ct,
		IsPublic:  isPublic,
		CreatedAt: now,
	}

	switch ct {
	case TypeWeeklyRecap:
		card.Title = "My Week Out"
		card.Subtitle = fmt.Sprintf("%s and %d rep this week", plural(s.ThisWeek.Nights, "night"), s.ThisWeek.Rep)
		card.Stats = map[string]any{
			"nights":         s.ThisWeek.Nights,
			"rep":            s.ThisWeek.Rep,
			"current_streak": s.CurrentStreak,
		}
	case TypeMonthlyStats:
		card.Title = fmt.Sprintf("%s %d Nightlife", now.Month(), now.Year())
		card.Subtitle = fmt.Sprintf("%s across %s", plural(s.ThisMonth.Nights, "night"), plural(len(s.CitiesVisited), "city"))
		card.Stats = map[string]any{
			"nights":        s.ThisMonth.Nights,
			"rep":           s.ThisMonth.Rep,
			"cities":        len(s.CitiesVisited),
			"favorite_city": s.FavoriteCity,
		}
	case TypeMilestone:
		card.Title = fmt.Sprintf("%s Out", plural(s.TotalNights, "Night"))
		card.Subtitle = fmt.Sprintf("%.1f hours and %d rep all time", s.TotalHours, s.TotalRep)
		card.Stats = map[string]any{
			"total_nights":   s.TotalNights,
			"total_hours":    s.TotalHours,
			"total_rep":      s.TotalRep,
			"cities_visited": len(s.CitiesVisited),
		}
	case TypeStreak:
		card.Title = fmt.Sprintf("%d-Week Streak", s.CurrentStreak)
		card.Subtitle = fmt.Sprintf("Longest run: %s", plural(s.LongestStreak, "week"))
		card.Stats = map[string]any{
			"current_streak": s.CurrentStreak,
			"longest_streak": s.LongestStreak,
		}
	}

	card.ShareCode = NewShareCode(card.Title)
	return card
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	switch {
	case strings.HasSuffix(word, "y"):
		return fmt.Sprintf("%d %sies", n, strings.TrimSuffix(word, "y"))
	default:
		return fmt.Sprintf("%d %ss", n, word)
	}
}

// Repository stores flex cards.
type Repository interface {
	// Create inserts the card. A share code collision returns
	// ErrShareCodeCollision so the caller can regenerate.
	Create(ctx context.Context, c *FlexCard) error

	// GetByShareCode returns the card regardless of visibility.
	GetByShareCode(ctx context.Context, code string) (*FlexCard, error)

	// ListByUser returns the owner's cards, newest first.
	ListByUser(ctx context.Context, userID string) ([]FlexCard, error)
}
