package query

import (
	"context"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/quest"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST ACTIVE QUESTS QUERY
// Неистёкшие квесты с прогрессом пользователя и производным состоянием.
// ══════════════════════════════════════════════════════════════════════════════

// ListActiveQuestsQuery содержит параметры запроса.
type ListActiveQuestsQuery struct {
	UserID string

	// Type - фильтр daily/weekly/special (пустой = все).
	Type string
}

// ListActiveQuestsResult содержит результат запроса.
type ListActiveQuestsResult struct {
	Quests []quest.ActiveQuest `json:"quests"`

	// Claimable - сколько наград можно забрать прямо сейчас.
	Claimable int `json:"claimable"`
}

// ListActiveQuestsHandler обрабатывает ListActiveQuestsQuery.
type ListActiveQuestsHandler struct {
	questRepo quest.Repository
	now       func() time.Time
}

// NewListActiveQuestsHandler создаёт обработчик.
func NewListActiveQuestsHandler(questRepo quest.Repository) *ListActiveQuestsHandler {
	return &ListActiveQuestsHandler{
		questRepo: questRepo,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Handle выполняет запрос.
func (h *ListActiveQuestsHandler) Handle(ctx context.Context, query ListActiveQuestsQuery) (*ListActiveQuestsResult, error) {
	if _, err := shared.NewUserID(query.UserID); err != nil {
		return nil, err
	}
	if query.Type != "" && !quest.Type(query.Type).IsValid() {
		return nil, shared.ErrInvalidQuestType
	}
	now := h.now()

	quests, err := h.questRepo.ListActive(ctx, now)
	if err != nil {
		return nil, shared.WrapError("query", "ListActiveQuests", shared.ErrExternalService, "failed to list quests", err)
	}
	progress, err := h.questRepo.ListProgress(ctx, query.UserID)
	if err != nil {
		return nil, shared.WrapError("query", "ListActiveQuests", shared.ErrExternalService, "failed to list progress", err)
	}

	active := quest.BuildActive(quests, progress, now)
	result := &ListActiveQuestsResult{Quests: make([]quest.ActiveQuest, 0, len(active))}
	for _, aq := range active {
		if query.Type != "" && aq.Quest.QuestType != quest.Type(query.Type) {
			continue
		}
		if aq.State == quest.StateCompleted {
			result.Claimable++
		}
		result.Quests = append(result.Quests, aq)
	}
	return result, nil
}
