package command

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/afterhours/nightlife-core/internal/domain/quest"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/xp"
)

// ══════════════════════════════════════════════════════════════════════════════
// CLAIM QUEST COMMAND
// Claim-once: the store sets claimed_at and awards xp_reward in a single
// transaction guarded by "claimed_at IS NULL AND progress >= requirement".
// ══════════════════════════════════════════════════════════════════════════════

// ClaimQuestCommand identifies the claim.
type ClaimQuestCommand struct {
	UserID  string
	QuestID string
}

// ClaimQuestResult reports the outcome. Claimed is false whenever no
// mutation happened; the accompanying error says why.
type ClaimQuestResult struct {
	Claimed   bool        `json:"claimed"`
	XPAwarded int64       `json:"xp_awarded"`
	XP        *xp.UserXP  `json:"xp,omitempty"`
	Progress  xp.Progress `json:"progress"`
}

// ClaimQuestHandler handles ClaimQuestCommand.
type ClaimQuestHandler struct {
	questRepo quest.Repository
	xpRepo    xp.Repository
	publisher shared.EventPublisher
	logger    *slog.Logger
	clock     Clock
}

// NewClaimQuestHandler creates a new ClaimQuestHandler.
func NewClaimQuestHandler(questRepo quest.Repository, xpRepo xp.Repository, publisher shared.EventPublisher, logger *slog.Logger, clock Clock) *ClaimQuestHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ClaimQuestHandler{questRepo: questRepo, xpRepo: xpRepo, publisher: publisher, logger: logger, clock: clock}
}

// Handle executes the claim. Precondition failures return Claimed=false with
// one of ErrQuestNotFound, ErrQuestProgressMissing, ErrQuestNotCompleted or
// ErrQuestAlreadyClaimed (benign, see shared.IsAlreadyDone).
func (h *ClaimQuestHandler) Handle(ctx context.Context, cmd ClaimQuestCommand) (*ClaimQuestResult, error) {
	if _, err := shared.NewUserID(cmd.UserID); err != nil {
		return &ClaimQuestResult{}, err
	}
	if cmd.QuestID == "" {
		return &ClaimQuestResult{}, shared.NewDomainError("quest", "Claim", shared.ErrInvalidID, "quest id is required")
	}
	now := h.clock.now()

	q, err := h.questRepo.GetQuest(ctx, cmd.QuestID)
	if err != nil {
		if shared.IsNotFound(err) {
			return &ClaimQuestResult{}, shared.ErrQuestNotFound
		}
		return &ClaimQuestResult{}, fmt.Errorf("claim_quest: failed to get quest: %w", err)
	}

	progress, err := h.questRepo.GetProgress(ctx, cmd.UserID, cmd.QuestID)
	if err != nil && !shared.IsNotFound(err) {
		return &ClaimQuestResult{}, fmt.Errorf("claim_quest: failed to get progress: %w", err)
	}
	if err := quest.CheckClaim(q, progress); err != nil {
		return &ClaimQuestResult{}, err
	}

	claimed, err := h.questRepo.Claim(ctx, cmd.UserID, *q, now)
	if err != nil {
		return &ClaimQuestResult{}, fmt.Errorf("claim_quest: %w", err)
	}
	if !claimed {
		// Lost a race: find out which guard failed.
		progress, err = h.questRepo.GetProgress(ctx, cmd.UserID, cmd.QuestID)
		if err != nil && !shared.IsNotFound(err) {
			return &ClaimQuestResult{}, fmt.Errorf("claim_quest: failed to re-read progress: %w", err)
		}
		if cerr := quest.CheckClaim(q, progress); cerr != nil {
			return &ClaimQuestResult{}, cerr
		}
		return &ClaimQuestResult{}, shared.ErrQuestAlreadyClaimed
	}

	h.logger.Info("quest claimed",
		"user_id", cmd.UserID,
		"quest_id", q.ID,
		"xp_reward", q.XPReward,
	)

	result := &ClaimQuestResult{Claimed: true, XPAwarded: q.XPReward}
	if userXP, err := h.xpRepo.Get(ctx, cmd.UserID, now); err == nil {
		result.XP = userXP
		result.Progress = userXP.Progress()
	} else {
		h.logger.Warn("failed to read xp after claim", "user_id", cmd.UserID, "error", err)
	}

	if err := h.publisher.Publish(ctx, shared.NewQuestClaimedEvent(cmd.UserID, q.ID, q.Title, q.XPReward)); err != nil {
		h.logger.Warn("failed to publish quest event", "user_id", cmd.UserID, "error", err)
	}
	return result, nil
}
