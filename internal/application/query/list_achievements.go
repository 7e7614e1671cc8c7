package query

import (
	"context"

	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ACHIEVEMENTS QUERY
// Каталог достижений со статусом получения. Секретные неполученные
// достижения маскируются.
// ══════════════════════════════════════════════════════════════════════════════

// ListAchievementsQuery содержит параметры запроса.
type ListAchievementsQuery struct {
	UserID string

	// Category - фильтр по категории (пустая = все).
	Category string

	// EarnedOnly - только полученные.
	EarnedOnly bool
}

// ListAchievementsResult содержит результат запроса.
type ListAchievementsResult struct {
	Achievements []achievement.View `json:"achievements"`
	EarnedCount  int                `json:"earned_count"`
	TotalCount   int                `json:"total_count"`
}

// ListAchievementsHandler обрабатывает ListAchievementsQuery.
type ListAchievementsHandler struct {
	catalog achievement.CatalogSource
	repo    achievement.Repository
}

// NewListAchievementsHandler создаёт обработчик. catalog - обычно
// кешированный каталог; nil означает чтение из repo.
func NewListAchievementsHandler(catalog achievement.CatalogSource, repo achievement.Repository) *ListAchievementsHandler {
	if catalog == nil {
		catalog = repo
	}
	return &ListAchievementsHandler{catalog: catalog, repo: repo}
}

// Handle выполняет запрос.
func (h *ListAchievementsHandler) Handle(ctx context.Context, query ListAchievementsQuery) (*ListAchievementsResult, error) {
	if _, err := shared.NewUserID(query.UserID); err != nil {
		return nil, err
	}
	var category achievement.Category
	if query.Category != "" {
		category = achievement.Category(query.Category)
		if !category.IsValid() {
			return nil, shared.ErrInvalidCategory
		}
	}

	catalog, err := h.catalog.ListAchievements(ctx)
	if err != nil {
		return nil, shared.WrapError("query", "ListAchievements", shared.ErrExternalService, "failed to load catalog", err)
	}
	earnedRows, err := h.repo.ListEarned(ctx, query.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "ListAchievements", shared.ErrExternalService, "failed to load earned", err)
	}
	earned := make(map[string]*achievement.UserAchievement, len(earnedRows))
	for i := range earnedRows {
		earned[earnedRows[i].AchievementID] = &earnedRows[i]
	}

	result := &ListAchievementsResult{
		Achievements: make([]achievement.View, 0, len(catalog)),
		TotalCount:   len(catalog),
	}
	for _, a := range catalog {
		ua := earned[a.ID]
		if ua != nil {
			result.EarnedCount++
		}
		if category != "" && a.Category != category {
			continue
		}
		if query.EarnedOnly && ua == nil {
			continue
		}
		result.Achievements = append(result.Achievements, achievement.ViewFor(a, ua))
	}
	return result, nil
}
