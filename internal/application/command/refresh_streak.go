package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/streak"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH STREAK COMMAND
// Recomputes stats from the full timeline, stores the streak snapshot and
// records every milestone the snapshot qualifies for (insert-if-absent).
// ══════════════════════════════════════════════════════════════════════════════

// RefreshStreakResult contains the recomputed state.
type RefreshStreakResult struct {
	Stats         timeline.Stats     `json:"stats"`
	Streak        streak.UserStreak  `json:"streak"`
	NewMilestones []streak.Milestone `json:"new_milestones"`
}

// RefreshStreakHandler recomputes a user's streak.
type RefreshStreakHandler struct {
	timelineRepo timeline.Repository
	streakRepo   streak.Repository
	flags        FlagChecker
	publisher    shared.EventPublisher
	logger       *slog.Logger
	loc          *time.Location
	clock        Clock
}

// NewRefreshStreakHandler creates the handler.
func NewRefreshStreakHandler(
	timelineRepo timeline.Repository,
	streakRepo streak.Repository,
	flags FlagChecker,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	loc *time.Location,
	clock Clock,
) *RefreshStreakHandler {
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
	return &RefreshStreakHandler{
		timelineRepo: timelineRepo,
		streakRepo:   streakRepo,
		flags:        flags,
		publisher:    publisher,
		logger:       logger,
		loc:          loc,
		clock:        clock,
	}
}

// Handle recomputes the streak for userID.
func (h *RefreshStreakHandler) Handle(ctx context.Context, userID string) (*RefreshStreakResult, error) {
	if _, err := shared.NewUserID(userID); err != nil {
		return nil, err
	}
	now := h.clock.now()

	entries, err := h.timelineRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("refresh_streak: failed to list timeline: %w", err)
	}
	stats := timeline.ComputeStats(entries, now, h.loc)
	snapshot := stats.Snapshot(userID, now)

	if err := h.streakRepo.Upsert(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("refresh_streak: failed to save streak: %w", err)
	}

	result := &RefreshStreakResult{Stats: stats, Streak: snapshot, NewMilestones: []streak.Milestone{}}
	nightsOn := h.flags.IsEnabledForUser(FeatureNightsOutMilestones, userID)

	for _, m := range streak.MilestonesFor(snapshot, now) {
		if m.MilestoneType == streak.MilestoneNightsOut && !nightsOn {
			continue
		}
		saved, inserted, err := h.streakRepo.RecordMilestone(ctx, m)
		if err != nil {
			return result, fmt.Errorf("refresh_streak: failed to record milestone: %w", err)
		}
		if !inserted {
			continue
		}
		result.NewMilestones = append(result.NewMilestones, saved)

		h.logger.Info("milestone reached",
			"user_id", userID,
			"milestone_type", saved.MilestoneType,
			"milestone_value", saved.MilestoneValue,
		)
		event := shared.NewStreakMilestoneReachedEvent(userID, saved.ID, saved.MilestoneType, saved.MilestoneValue)
		if err := h.publisher.Publish(ctx, event); err != nil {
			h.logger.Warn("failed to publish milestone event", "user_id", userID, "error", err)
		}
	}

	return result, nil
}
