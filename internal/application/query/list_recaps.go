package query

import (
	"context"

	"github.com/afterhours/nightlife-core/internal/domain/recap"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

const (
	defaultRecapLimit = 12
	maxRecapLimit     = 52
)

// ListRecapsQuery - недельные отчёты пользователя, новые первыми.
type ListRecapsQuery struct {
	UserID string
	Limit  int
}

// ListRecapsHandler обрабатывает ListRecapsQuery.
type ListRecapsHandler struct {
	repo recap.Repository
}

// NewListRecapsHandler создаёт обработчик.
func NewListRecapsHandler(repo recap.Repository) *ListRecapsHandler {
	return &ListRecapsHandler{repo: repo}
}

// Handle выполняет запрос.
func (h *ListRecapsHandler) Handle(ctx context.Context, query ListRecapsQuery) ([]recap.WeeklyRecap, error) {
	if _, err := shared.NewUserID(query.UserID); err != nil {
		return nil, err
	}
	limit := query.Limit
	if limit <= 0 {
		limit = defaultRecapLimit
	}
	limit = min(limit, maxRecapLimit)

	recaps, err := h.repo.ListByUser(ctx, query.UserID, limit)
	if err != nil {
		return nil, shared.WrapError("query", "ListRecaps", shared.ErrExternalService, "failed to list recaps", err)
	}
	if recaps == nil {
		recaps = []recap.WeeklyRecap{}
	}
	return recaps, nil
}
