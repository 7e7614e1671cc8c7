package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/xp"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// Grants XP to a target user. Only privileged callers may use it directly;
// quest claims and achievements award XP inside their own transactions.
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPCommand contains the data to award XP.
type AwardXPCommand struct {
	Actor  shared.Actor
	UserID string
	Amount int64
	Reason string
}

// AwardXPResult contains the user's XP after the award.
type AwardXPResult struct {
	XP        *xp.UserXP
	Progress  xp.Progress
	LeveledUp bool
}

// AwardXPHandler handles AwardXPCommand.
type AwardXPHandler struct {
	xpRepo    xp.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
	clock     Clock
}

// NewAwardXPHandler creates a new AwardXPHandler.
func NewAwardXPHandler(xpRepo xp.Repository, publisher shared.EventPublisher, logger *slog.Logger, clock Clock) *AwardXPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &AwardXPHandler{xpRepo: xpRepo, publisher: publisher, logger: logger, clock: clock}
}

// Handle executes the award.
func (h *AwardXPHandler) Handle(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	if !cmd.Actor.IsPrivileged() {
		return nil, shared.NewDomainError("xp", "AddXP", shared.ErrForbidden, "admin role required")
	}

	award := xp.Award{UserID: cmd.UserID, Amount: cmd.Amount, Reason: cmd.Reason}
	if award.Reason == "" {
		award.Reason = xp.ReasonAdmin
	}
	if err := award.Validate(); err != nil {
		return nil, err
	}

	res, err := h.xpRepo.AddXP(ctx, award, h.clock.now())
	if err != nil {
		return nil, fmt.Errorf("award_xp: %w", err)
	}

	h.logger.Info("xp awarded",
		"user_id", cmd.UserID,
		"amount", cmd.Amount,
		"reason", award.Reason,
		"total_xp", res.XP.TotalXP,
		"level", res.XP.CurrentLevel,
	)

	event := shared.NewXPAwardedEvent(cmd.UserID, cmd.Amount, res.XP.TotalXP, award.Reason, res.OldLevel, res.XP.CurrentLevel)
	if err := h.publisher.Publish(ctx, event); err != nil {
		h.logger.Warn("failed to publish xp event", "user_id", cmd.UserID, "error", err)
	}

	return &AwardXPResult{
		XP:        res.XP,
		Progress:  res.XP.Progress(),
		LeveledUp: res.LeveledUp(),
	}, nil
}
