package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
)

// ══════════════════════════════════════════════════════════════════════════════
// EVALUATE ACHIEVEMENTS COMMAND
// Checks the catalog against the user's stats and records each newly
// satisfied achievement exactly once. Safe to run any number of times.
// ══════════════════════════════════════════════════════════════════════════════

// EvaluateAchievementsCommand contains the evaluation input.
type EvaluateAchievementsCommand struct {
	UserID string
	// Stats overrides the assembled stats when set.
	Stats *achievement.Stats
}

// EarnedAchievement is a newly recorded achievement.
type EarnedAchievement struct {
	Achievement achievement.Achievement     `json:"achievement"`
	Record      achievement.UserAchievement `json:"record"`
}

// EvaluateAchievementsResult lists what this run newly earned.
type EvaluateAchievementsResult struct {
	NewlyEarned []EarnedAchievement `json:"newly_earned"`
	XPAwarded   int64               `json:"xp_awarded"`
	// AlreadyEarned counts candidates a concurrent evaluation recorded first.
	AlreadyEarned int `json:"already_earned"`
}

// StatsSource provides achievement stats for a user.
type StatsSource interface {
	Assemble(ctx context.Context, userID string, now time.Time) (achievement.Stats, timeline.Stats, error)
}

// EvaluateAchievementsHandler handles EvaluateAchievementsCommand.
type EvaluateAchievementsHandler struct {
	catalog   achievement.CatalogSource
	repo      achievement.Repository
	stats     StatsSource
	publisher shared.EventPublisher
	logger    *slog.Logger
	clock     Clock
}

// NewEvaluateAchievementsHandler creates a new handler. catalog is usually the
// cached catalog; repo is used for earned records.
func NewEvaluateAchievementsHandler(
	catalog achievement.CatalogSource,
	repo achievement.Repository,
	stats StatsSource,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	clock Clock,
) *EvaluateAchievementsHandler {
	if catalog == nil {
		catalog = repo
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EvaluateAchievementsHandler{
		catalog:   catalog,
		repo:      repo,
		stats:     stats,
		publisher: publisher,
		logger:    logger,
		clock:     clock,
	}
}

// Handle evaluates and records achievements.
func (h *EvaluateAchievementsHandler) Handle(ctx context.Context, cmd EvaluateAchievementsCommand) (*EvaluateAchievementsResult, error) {
	if _, err := shared.NewUserID(cmd.UserID); err != nil {
		return nil, err
	}
	now := h.clock.now()

	var stats achievement.Stats
	if cmd.Stats != nil {
		stats = *cmd.Stats
	} else {
		if h.stats == nil {
			return nil, errNoStatsSource
		}
		var err error
		stats, _, err = h.stats.Assemble(ctx, cmd.UserID, now)
		if err != nil {
			return nil, fmt.Errorf("evaluate_achievements: %w", err)
		}
	}

	catalog, err := h.catalog.ListAchievements(ctx)
	if err != nil {
		return nil, fmt.Errorf("evaluate_achievements: failed to load catalog: %w", err)
	}
	earnedRows, err := h.repo.ListEarned(ctx, cmd.UserID)
	if err != nil {
		return nil, fmt.Errorf("evaluate_achievements: failed to list earned: %w", err)
	}
	earned := make(map[string]bool, len(earnedRows))
	for _, ua := range earnedRows {
		earned[ua.AchievementID] = true
	}

	result := &EvaluateAchievementsResult{NewlyEarned: []EarnedAchievement{}}
	for _, a := range achievement.Candidates(catalog, stats, earned) {
		ua, inserted, err := h.repo.Award(ctx, cmd.UserID, a, now)
		if err != nil {
			return result, fmt.Errorf("evaluate_achievements: failed to award %s: %w", a.ID, err)
		}
		if !inserted {
			result.AlreadyEarned++
			continue
		}

		result.NewlyEarned = append(result.NewlyEarned, EarnedAchievement{Achievement: a, Record: ua})
		result.XPAwarded += a.XPReward

		h.logger.Info("achievement earned",
			"user_id", cmd.UserID,
			"achievement_id", a.ID,
			"xp_reward", a.XPReward,
		)
		event := shared.NewAchievementEarnedEvent(cmd.UserID, a.ID, a.Name, a.XPReward)
		if err := h.publisher.Publish(ctx, event); err != nil {
			h.logger.Warn("failed to publish achievement event", "user_id", cmd.UserID, "error", err)
		}
	}

	return result, nil
}

// errNoStatsSource guards misconfigured wiring.
var errNoStatsSource = errors.New("evaluate_achievements: no stats source configured")
