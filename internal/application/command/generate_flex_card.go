package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
)

// maxShareCodeAttempts bounds regeneration on share code collisions.
const maxShareCodeAttempts = 3

// GenerateFlexCardCommand requests a card for the actor.
type GenerateFlexCardCommand struct {
	UserID   string
	CardType string
	IsPublic bool
}

// GenerateFlexCardResult is the stored card plus the export URL, if any.
type GenerateFlexCardResult struct {
	Card      *flexcard.FlexCard `json:"card"`
	ExportURL string             `json:"export_url,omitempty"`
}

// GenerateFlexCardHandler builds and stores flex cards.
type GenerateFlexCardHandler struct {
	timelineRepo timeline.Repository
	cardRepo     flexcard.Repository
	exporter     CardExporter
	flags        FlagChecker
	publisher    shared.EventPublisher
	logger       *slog.Logger
	loc          *time.Location
	clock        Clock
}

// NewGenerateFlexCardHandler creates the handler. exporter may be nil.
func NewGenerateFlexCardHandler(
	timelineRepo timeline.Repository,
	cardRepo flexcard.Repository,
	exporter CardExporter,
	flags FlagChecker,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	loc *time.Location,
	clock Clock,
) *GenerateFlexCardHandler {
	if flags == nil {
		flags = allFlagsOn{}
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &GenerateFlexCardHandler{
		timelineRepo: timelineRepo,
		cardRepo:     cardRepo,
		exporter:     exporter,
		flags:        flags,
		publisher:    publisher,
		logger:       logger,
		loc:          loc,
		clock:        clock,
	}
}

// Handle builds the card from current stats and stores it.
func (h *GenerateFlexCardHandler) Handle(ctx context.Context, cmd GenerateFlexCardCommand) (*GenerateFlexCardResult, error) {
	if _, err := shared.NewUserID(cmd.UserID); err != nil {
		return nil, err
	}
	ct, err := flexcard.ParseCardType(cmd.CardType)
	if err != nil {
		return nil, err
	}
	now := h.clock.now()

	entries, err := h.timelineRepo.ListByUser(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("generate_flex_card: failed to list timeline: %w", err)
	}
	stats := timeline.ComputeStats(entries, now, h.loc)

	var card *flexcard.FlexCard
	for attempt := 1; ; attempt++ {
		card = flexcard.Build(cmd.UserID, ct, stats, cmd.IsPublic, now)
		err = h.cardRepo.Create(ctx, card)
		if err == nil {
			break
		}
		if !errors.Is(err, shared.ErrShareCodeCollision) || attempt >= maxShareCodeAttempts {
			return nil, fmt.Errorf("generate_flex_card: %w", err)
		}
		h.logger.Warn("share code collision, regenerating", "share_code", card.ShareCode, "attempt", attempt)
	}

	h.logger.Info("flex card created",
		"user_id", cmd.UserID,
		"card_type", string(ct),
		"share_code", card.ShareCode,
		"is_public", card.IsPublic,
	)
	if err := h.publisher.Publish(ctx, shared.NewFlexCardCreatedEvent(cmd.UserID, card.ID, string(ct), card.ShareCode, card.IsPublic)); err != nil {
		h.logger.Warn("failed to publish flex card event", "user_id", cmd.UserID, "error", err)
	}

	result := &GenerateFlexCardResult{Card: card}
	if card.IsPublic && h.exporter != nil && h.flags.IsEnabledForUser(FeatureFlexCardExport, cmd.UserID) {
		view, _ := card.Public()
		url, err := h.exporter.ExportCard(ctx, view)
		if err != nil {
			h.logger.Warn("flex card export failed", "share_code", card.ShareCode, "error", err)
		} else {
			result.ExportURL = url
		}
	}
	return result, nil
}
