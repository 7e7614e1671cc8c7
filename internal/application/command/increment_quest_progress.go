package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/quest"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// IncrementQuestProgressCommand advances a user's progress. It is issued by
// the booking and RSVP flows through a service identity.
type IncrementQuestProgressCommand struct {
	Actor   shared.Actor
	UserID  string
	QuestID string
	Delta   int64
}

// IncrementQuestProgressResult is the progress after the increment.
type IncrementQuestProgressResult struct {
	Progress      *quest.Progress `json:"progress"`
	State         quest.State     `json:"state"`
	JustCompleted bool            `json:"just_completed"`
}

// IncrementQuestProgressHandler handles IncrementQuestProgressCommand.
type IncrementQuestProgressHandler struct {
	questRepo quest.Repository
	logger    *slog.Logger
	clock     Clock
}

// NewIncrementQuestProgressHandler creates the handler.
func NewIncrementQuestProgressHandler(questRepo quest.Repository, logger *slog.Logger, clock Clock) *IncrementQuestProgressHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &IncrementQuestProgressHandler{questRepo: questRepo, logger: logger, clock: clock}
}

// Handle executes the increment.
func (h *IncrementQuestProgressHandler) Handle(ctx context.Context, cmd IncrementQuestProgressCommand) (*IncrementQuestProgressResult, error) {
	if !cmd.Actor.IsPrivileged() {
		return nil, shared.NewDomainError("quest", "Progress", shared.ErrForbidden, "service role required")
	}
	if _, err := shared.NewUserID(cmd.UserID); err != nil {
		return nil, err
	}
	if cmd.Delta <= 0 {
		return nil, shared.NewDomainError("quest", "Progress", shared.ErrValueOutOfRange, "delta must be positive")
	}
	// Postgres keeps microseconds; truncating lets completed_at compare equal.
	now := h.clock.now().Truncate(time.Microsecond)

	q, err := h.questRepo.GetQuest(ctx, cmd.QuestID)
	if err != nil {
		return nil, err
	}
	if q.IsExpired(now) {
		return nil, shared.ErrQuestExpired
	}

	p, err := h.questRepo.IncrementProgress(ctx, cmd.UserID, *q, cmd.Delta, now)
	if err != nil {
		return nil, fmt.Errorf("increment_quest_progress: %w", err)
	}

	justCompleted := p.CompletedAt != nil && p.CompletedAt.Equal(now)
	if justCompleted {
		h.logger.Info("quest completed", "user_id", cmd.UserID, "quest_id", q.ID)
	}

	return &IncrementQuestProgressResult{
		Progress:      p,
		State:         quest.StateFor(*q, p),
		JustCompleted: justCompleted,
	}, nil
}
