// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/xp"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET XP QUERY
// Возвращает XP пользователя, уровень, прогресс до следующего уровня и
// последние начисления. Запись user_xp создаётся лениво при первом чтении.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

// GetXPQuery содержит параметры запроса.
type GetXPQuery struct {
	UserID string

	// HistoryLimit - сколько последних начислений вернуть (0 = по умолчанию).
	HistoryLimit int
}

// Validate проверяет параметры и подставляет значения по умолчанию.
func (q *GetXPQuery) Validate() error {
	if _, err := shared.NewUserID(q.UserID); err != nil {
		return err
	}
	if q.HistoryLimit < 0 {
		return shared.NewDomainError("query", "GetXP", shared.ErrNegativeValue, "history_limit cannot be negative")
	}
	if q.HistoryLimit == 0 {
		q.HistoryLimit = defaultHistoryLimit
	}
	if q.HistoryLimit > maxHistoryLimit {
		q.HistoryLimit = maxHistoryLimit
	}
	return nil
}

// XPDTO - XP пользователя для ответа API.
type XPDTO struct {
	UserID       string `json:"user_id"`
	TotalXP      int64  `json:"total_xp"`
	CurrentLevel int    `json:"current_level"`
	XPThisWeek   int64  `json:"xp_this_week"`
	XPThisMonth  int64  `json:"xp_this_month"`

	// Progress - {current, needed, percentage} до следующего уровня.
	Progress xp.Progress `json:"progress"`

	// NextLevelAt - порог следующего уровня в абсолютных XP.
	NextLevelAt int64 `json:"next_level_at"`
}

// GetXPResult содержит результат запроса.
type GetXPResult struct {
	XP          XPDTO      `json:"xp"`
	History     []xp.Event `json:"history"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// GetXPHandler обрабатывает GetXPQuery.
type GetXPHandler struct {
	xpRepo xp.Repository
}

// NewGetXPHandler создаёт обработчик.
func NewGetXPHandler(xpRepo xp.Repository) *GetXPHandler {
	return &GetXPHandler{xpRepo: xpRepo}
}

// Handle выполняет запрос.
func (h *GetXPHandler) Handle(ctx context.Context, query GetXPQuery) (*GetXPResult, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	userXP, err := h.xpRepo.Get(ctx, query.UserID, now)
	if err != nil {
		return nil, shared.WrapError("query", "GetXP", shared.ErrExternalService, "failed to load xp", err)
	}

	// История не критична: без неё отдаём только баланс.
	history, err := h.xpRepo.History(ctx, query.UserID, query.HistoryLimit)
	if err != nil || history == nil {
		history = []xp.Event{}
	}

	return &GetXPResult{
		XP: XPDTO{
			UserID:       userXP.UserID,
			TotalXP:      userXP.TotalXP,
			CurrentLevel: userXP.CurrentLevel,
			XPThisWeek:   userXP.XPThisWeek,
			XPThisMonth:  userXP.XPThisMonth,
			Progress:     userXP.Progress(),
			NextLevelAt:  xp.Threshold(userXP.CurrentLevel + 1),
		},
		History:     history,
		GeneratedAt: now,
	}, nil
}
