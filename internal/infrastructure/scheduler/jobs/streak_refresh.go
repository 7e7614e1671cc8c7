package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/afterhours/nightlife-core/internal/application/command"
)

// ══════════════════════════════════════════════════════════════════════════════
// STREAK REFRESH JOB
// ══════════════════════════════════════════════════════════════════════════════

// ActiveUserLister lists users with recent timeline activity.
type ActiveUserLister interface {
	UsersActiveSince(ctx context.Context, since time.Time) ([]string, error)
}

// StreakRefresher recomputes one user's streak.
type StreakRefresher interface {
	Handle(ctx context.Context, userID string) (*command.RefreshStreakResult, error)
}

// StreakRefreshConfig tunes the job.
type StreakRefreshConfig struct {
	// Lookback selects users with timeline entries newer than now-Lookback.
	// It must cover the streak window so broken streaks get reset too.
	Lookback time.Duration

	// Timeout bounds the whole run.
	Timeout time.Duration
}

// DefaultStreakRefreshConfig returns sensible defaults.
func DefaultStreakRefreshConfig() StreakRefreshConfig {
	return StreakRefreshConfig{
		Lookback: 15 * 24 * time.Hour,
		Timeout:  30 * time.Minute,
	}
}

// StreakRefreshStats contains statistics from a run.
type StreakRefreshStats struct {
	StartedAt     time.Time
	Duration      time.Duration
	Users         int
	Refreshed     int
	Failed        int
	NewMilestones int
}

// StreakRefreshJob recomputes streaks and milestones every night for users
// who were recently active. Streaks of users who stopped going out decay here
// even if they never open the app.
type StreakRefreshJob struct {
	users     ActiveUserLister
	refresher StreakRefresher
	logger    *slog.Logger
	config    StreakRefreshConfig
	now       func() time.Time

	lastStats atomic.Pointer[StreakRefreshStats]
}

// NewStreakRefreshJob creates the job.
func NewStreakRefreshJob(users ActiveUserLister, refresher StreakRefresher, logger *slog.Logger, config StreakRefreshConfig) *StreakRefreshJob {
	def := DefaultStreakRefreshConfig()
	if config.Lookback <= 0 {
		config.Lookback = def.Lookback
	}
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &StreakRefreshJob{
		users:     users,
		refresher: refresher,
		logger:    logger.With("job", "streak_refresh"),
		config:    config,
		now:       time.Now,
	}
}

// Name returns the job name.
func (j *StreakRefreshJob) Name() string {
	return "streak_refresh"
}

// Description returns a human-readable description.
func (j *StreakRefreshJob) Description() string {
	return "Recomputes weekly streaks and milestones for recently active users"
}

// Run executes the refresh. One user's failure does not stop the others.
func (j *StreakRefreshJob) Run(ctx context.Context) error {
	started := j.now()
	stats := &StreakRefreshStats{StartedAt: started}

	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	users, err := j.users.UsersActiveSince(ctx, started.Add(-j.config.Lookback))
	if err != nil {
		return fmt.Errorf("failed to list active users: %w", err)
	}
	stats.Users = len(users)

	for _, userID := range users {
		if ctx.Err() != nil {
			break
		}
		res, err := j.refresher.Handle(ctx, userID)
		if err != nil {
			stats.Failed++
			j.logger.Warn("streak refresh failed", "user_id", userID, "error", err)
			continue
		}
		stats.Refreshed++
		stats.NewMilestones += len(res.NewMilestones)
	}

	stats.Duration = j.now().Sub(started)
	j.lastStats.Store(stats)

	j.logger.Info("streak refresh completed",
		"users", stats.Users,
		"refreshed", stats.Refreshed,
		"failed", stats.Failed,
		"new_milestones", stats.NewMilestones,
		"duration", stats.Duration.String(),
	)

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("streak refresh interrupted after %d of %d users: %w", stats.Refreshed+stats.Failed, stats.Users, err)
	}
	if stats.Failed > 0 {
		return fmt.Errorf("streak refresh completed with %d failed users", stats.Failed)
	}
	return nil
}

// LastStats returns the stats of the last run, or nil.
func (j *StreakRefreshJob) LastStats() *StreakRefreshStats {
	return j.lastStats.Load()
}
