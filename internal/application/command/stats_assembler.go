package command

import (
	"context"
	"fmt"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/quest"
	"github.com/afterhours/nightlife-core/internal/domain/recap"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
	"github.com/afterhours/nightlife-core/internal/domain/xp"
)

// StatsAssembler gathers the figures achievements are evaluated against.
// Everything is read from the store and recomputed on each call.
type StatsAssembler struct {
	timelineRepo timeline.Repository
	questRepo    quest.Repository
	xpRepo       xp.Repository
	activity     recap.ActivityReader
	loc          *time.Location
}

// NewStatsAssembler creates a StatsAssembler.
func NewStatsAssembler(
	timelineRepo timeline.Repository,
	questRepo quest.Repository,
	xpRepo xp.Repository,
	activity recap.ActivityReader,
	loc *time.Location,
) *StatsAssembler {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsAssembler{
		timelineRepo: timelineRepo,
		questRepo:    questRepo,
		xpRepo:       xpRepo,
		activity:     activity,
		loc:          loc,
	}
}

// Assemble returns achievement stats together with the timeline stats they
// were derived from.
func (a *StatsAssembler) Assemble(ctx context.Context, userID string, now time.Time) (achievement.Stats, timeline.Stats, error) {
	entries, err := a.timelineRepo.ListByUser(ctx, userID)
	if err != nil {
		return achievement.Stats{}, timeline.Stats{}, fmt.Errorf("failed to list timeline: %w", err)
	}
	ts := timeline.ComputeStats(entries, now, a.loc)

	followers, err := a.activity.FollowerCount(ctx, userID)
	if err != nil {
		return achievement.Stats{}, ts, fmt.Errorf("failed to count followers: %w", err)
	}
	claimed, err := a.questRepo.CountClaimed(ctx, userID)
	if err != nil {
		return achievement.Stats{}, ts, fmt.Errorf("failed to count quests: %w", err)
	}
	userXP, err := a.xpRepo.Get(ctx, userID, now)
	if err != nil {
		return achievement.Stats{}, ts, fmt.Errorf("failed to get xp: %w", err)
	}

	return achievement.Stats{
		EventsAttended:  int64(ts.TotalNights),
		CurrentStreak:   int64(ts.CurrentStreak),
		LongestStreak:   int64(ts.LongestStreak),
		CitiesVisited:   int64(len(ts.CitiesVisited)),
		Followers:       followers,
		TotalRep:        ts.TotalRep,
		TotalHours:      int64(ts.TotalHours),
		QuestsCompleted: claimed,
		Level:           int64(userXP.CurrentLevel),
	}, ts, nil
}
