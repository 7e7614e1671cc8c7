package streak

import (
	"context"
	"time"
)

// UserStreak is the persisted snapshot of a user's streak. It is always
// recomputed from the timeline and never incremented in place.
type UserStreak struct {
	UserID              string     `json:"user_id"`
	CurrentStreak       int        `json:"current_streak"`
	LongestStreak       int        `json:"longest_streak"`
	LastActivityDate    *time.Time `json:"last_activity_date,omitempty"`
	TotalEventsAttended int        `json:"total_events_attended"`
	EventsThisMonth     int        `json:"events_this_month"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Milestone types.
const (
	MilestoneWeeklyStreak = "weekly_streak"
	MilestoneNightsOut    = "nights_out"
)

// StreakThresholds are the weekly streak milestones.
var StreakThresholds = []int{3, 7, 14, 30, 60, 100}

// NightsThresholds are the total-nights milestones.
var NightsThresholds = []int{1, 10, 25, 50, 100}

// Milestone is unique per (user_id, milestone_type, milestone_value).
type Milestone struct {
	ID             string    `json:"id"`
	UserID         string    `json:"user_id"`
	MilestoneType  string    `json:"milestone_type"`
	MilestoneValue int       `json:"milestone_value"`
	AchievedAt     time.Time `json:"achieved_at"`
	Notified       bool      `json:"notified"`
}

// MilestonesFor lists every milestone the snapshot qualifies for. Both the
// current and the longest streak are checked, so a broken streak still keeps
// what it reached. Insertion is idempotent, so returning already recorded
// milestones is expected.
func MilestonesFor(s UserStreak, now time.Time) []Milestone {
	var out []Milestone
	best := max(s.CurrentStreak, s.LongestStreak)
	for _, t := range StreakThresholds {
		if best >= t {
			out = append(out, Milestone{UserID: s.UserID, MilestoneType: MilestoneWeeklyStreak, MilestoneValue: t, AchievedAt: now})
		}
	}
	for _, t := range NightsThresholds {
		if s.TotalEventsAttended >= t {
			out = append(out, Milestone{UserID: s.UserID, MilestoneType: MilestoneNightsOut, MilestoneValue: t, AchievedAt: now})
		}
	}
	return out
}

// Repository persists streak snapshots and milestones.
type Repository interface {
	// Get returns the stored snapshot, or a zero snapshot if none exists.
	Get(ctx context.Context, userID string) (*UserStreak, error)

	// Upsert replaces the snapshot.
	Upsert(ctx context.Context, s UserStreak) error

	// RecordMilestone inserts m unless the (user, type, value) row exists.
	// A duplicate is not an error: inserted is false.
	RecordMilestone(ctx context.Context, m Milestone) (saved Milestone, inserted bool, err error)

	// ListMilestones returns all milestones of the user.
	ListMilestones(ctx context.Context, userID string) ([]Milestone, error)

	// MarkNotified flags the milestone as pushed to the user.
	MarkNotified(ctx context.Context, milestoneID string) error
}
