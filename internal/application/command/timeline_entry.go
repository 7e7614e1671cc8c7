package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
)

// ══════════════════════════════════════════════════════════════════════════════
// TIMELINE COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// AddTimelineEntryCommand appends an attendance record for the actor.
type AddTimelineEntryCommand struct {
	Actor shared.Actor
	Entry timeline.Entry
}

// AddTimelineEntryResult returns the stored entry and the recomputed streak.
type AddTimelineEntryResult struct {
	Entry  timeline.Entry       `json:"entry"`
	Streak *RefreshStreakResult `json:"streak,omitempty"`
}

// TimelineHandler handles timeline writes.
type TimelineHandler struct {
	repo      timeline.Repository
	streaks   *RefreshStreakHandler
	publisher shared.EventPublisher
	logger    *slog.Logger
	clock     Clock
}

// NewTimelineHandler creates the handler. streaks may be nil.
func NewTimelineHandler(repo timeline.Repository, streaks *RefreshStreakHandler, publisher shared.EventPublisher, logger *slog.Logger, clock Clock) *TimelineHandler {
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TimelineHandler{repo: repo, streaks: streaks, publisher: publisher, logger: logger, clock: clock}
}

// Add appends the entry and refreshes the streak. A failed refresh is
// logged; the appended entry stays.
func (h *TimelineHandler) Add(ctx context.Context, cmd AddTimelineEntryCommand) (*AddTimelineEntryResult, error) {
	now := h.clock.now()

	e := cmd.Entry
	if e.UserID == "" {
		e.UserID = cmd.Actor.UserID.String()
	}
	if !cmd.Actor.CanActOn(shared.UserID(e.UserID)) {
		return nil, shared.NewDomainError("timeline", "Add", shared.ErrForbidden, "cannot add entries for another user")
	}
	e.EventName = strings.TrimSpace(e.EventName)
	e.EventCity = strings.TrimSpace(e.EventCity)
	if err := e.Validate(now); err != nil {
		return nil, err
	}
	e.ID = uuid.NewString()
	e.CreatedAt = now

	if err := h.repo.Append(ctx, &e); err != nil {
		return nil, fmt.Errorf("add_timeline_entry: %w", err)
	}

	if err := h.publisher.Publish(ctx, shared.NewTimelineEntryAddedEvent(e.UserID, e.ID, e.EventName, e.AttendedDate)); err != nil {
		h.logger.Warn("failed to publish timeline event", "user_id", e.UserID, "error", err)
	}

	result := &AddTimelineEntryResult{Entry: e}
	if h.streaks != nil {
		sr, err := h.streaks.Handle(ctx, e.UserID)
		if err != nil {
			h.logger.Error("streak refresh after timeline append failed", "user_id", e.UserID, "error", err)
		} else {
			result.Streak = sr
		}
	}
	return result, nil
}

// UpdateTimelineEntryCommand edits highlight_moment and is_public.
type UpdateTimelineEntryCommand struct {
	Actor   shared.Actor
	EntryID string
	Patch   timeline.Patch
}

// Update applies an owner edit. Entries owned by someone else are reported
// as not found.
func (h *TimelineHandler) Update(ctx context.Context, cmd UpdateTimelineEntryCommand) (*timeline.Entry, error) {
	if !cmd.Actor.UserID.IsValid() {
		return nil, shared.NewDomainError("timeline", "Update", shared.ErrUnauthorized, "user identity required")
	}
	if err := cmd.Patch.Validate(); err != nil {
		return nil, err
	}
	e, err := h.repo.UpdateOwned(ctx, cmd.Actor.UserID.String(), cmd.EntryID, cmd.Patch)
	if err != nil {
		return nil, err
	}
	return e, nil
}
