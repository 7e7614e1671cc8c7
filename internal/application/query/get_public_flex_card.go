package query

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PUBLIC FLEX CARD QUERY
// Публичный просмотр карточки по share_code. Приватная и несуществующая
// карточки неразличимы: обе дают ErrFlexCardNotFound.
// ══════════════════════════════════════════════════════════════════════════════

// FlexCardCache кеширует публичные представления карточек.
// Кешируются только публичные карточки; промах кеша - обычный путь.
type FlexCardCache interface {
	GetFlexCard(ctx context.Context, shareCode string) (*flexcard.PublicView, error)
	SetFlexCard(ctx context.Context, view flexcard.PublicView, ttl time.Duration) error
}

// DefaultFlexCardTTL - время жизни записи в кеше.
const DefaultFlexCardTTL = 10 * time.Minute

const maxShareCodeLength = 64

// GetPublicFlexCardHandler обрабатывает поиск карточки.
type GetPublicFlexCardHandler struct {
	repo   flexcard.Repository
	cache  FlexCardCache
	ttl    time.Duration
	logger *slog.Logger
}

// NewGetPublicFlexCardHandler создаёт обработчик. cache может быть nil.
func NewGetPublicFlexCardHandler(repo flexcard.Repository, cache FlexCardCache, ttl time.Duration, logger *slog.Logger) *GetPublicFlexCardHandler {
	if ttl <= 0 {
		ttl = DefaultFlexCardTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GetPublicFlexCardHandler{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

// Handle возвращает публичное представление карточки.
func (h *GetPublicFlexCardHandler) Handle(ctx context.Context, shareCode string) (*flexcard.PublicView, error) {
	shareCode = strings.TrimSpace(shareCode)
	if shareCode == "" || len(shareCode) > maxShareCodeLength {
		return nil, shared.ErrFlexCardNotFound
	}

	if h.cache != nil {
		if view, err := h.cache.GetFlexCard(ctx, shareCode); err == nil && view != nil {
			return view, nil
		} else if err != nil {
			h.logger.Debug("flex card cache miss", "share_code", shareCode, "error", err)
		}
	}

	card, err := h.repo.GetByShareCode(ctx, shareCode)
	if err != nil {
		if shared.IsNotFound(err) {
			return nil, shared.ErrFlexCardNotFound
		}
		return nil, shared.WrapError("query", "GetPublicFlexCard", shared.ErrExternalService, "failed to load card", err)
	}

	view, err := card.Public()
	if err != nil {
		return nil, err
	}

	if h.cache != nil {
		if err := h.cache.SetFlexCard(ctx, view, h.ttl); err != nil {
			h.logger.Warn("failed to cache flex card", "share_code", shareCode, "error", err)
		}
	}
	return &view, nil
}
