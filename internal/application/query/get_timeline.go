package query

import (
	"context"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET TIMELINE QUERY
// Журнал посещений. Владелец видит все записи, остальные - только публичные.
// ══════════════════════════════════════════════════════════════════════════════

// GetTimelineQuery содержит параметры запроса.
type GetTimelineQuery struct {
	Viewer  shared.Actor
	OwnerID string
	Page    shared.Pagination
}

// GetTimelineResult содержит страницу записей.
type GetTimelineResult struct {
	Entries []timeline.Entry `json:"entries"`
	Total   int              `json:"total"`
	HasMore bool             `json:"has_more"`
}

// GetTimelineHandler обрабатывает GetTimelineQuery.
type GetTimelineHandler struct {
	repo timeline.Repository
}

// NewGetTimelineHandler создаёт обработчик.
func NewGetTimelineHandler(repo timeline.Repository) *GetTimelineHandler {
	return &GetTimelineHandler{repo: repo}
}

// Handle выполняет запрос.
func (h *GetTimelineHandler) Handle(ctx context.Context, query GetTimelineQuery) (*GetTimelineResult, error) {
	owner := query.OwnerID
	if owner == "" {
		owner = query.Viewer.UserID.String()
	}
	if _, err := shared.NewUserID(owner); err != nil {
		return nil, err
	}

	entries, err := h.repo.ListByUser(ctx, owner)
	if err != nil {
		return nil, shared.WrapError("query", "GetTimeline", shared.ErrExternalService, "failed to list timeline", err)
	}

	if !query.Viewer.CanActOn(shared.UserID(owner)) {
		visible := entries[:0:0]
		for _, e := range entries {
			if e.IsPublic {
				visible = append(visible, e)
			}
		}
		entries = visible
	}

	total := len(entries)
	start := min(query.Page.Offset(), total)
	end := min(start+query.Page.Limit(), total)

	out := make([]timeline.Entry, end-start)
	copy(out, entries[start:end])
	return &GetTimelineResult{Entries: out, Total: total, HasMore: end < total}, nil
}
