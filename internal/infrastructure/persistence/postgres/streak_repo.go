package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/streak"
)

// StreakRepository implements streak.Repository.
type StreakRepository struct {
	conn *Connection
}

// NewStreakRepository creates a new streak repository.
func NewStreakRepository(conn *Connection) *StreakRepository {
	return &StreakRepository{conn: conn}
}

// Get returns the stored snapshot or a zero snapshot.
func (r *StreakRepository) Get(ctx context.Context, userID string) (*streak.UserStreak, error) {
	query := `
		SELECT current_streak, longest_streak, last_activity_date,
			total_events_attended, events_this_month, updated_at
		FROM user_streaks
		WHERE user_id = $1
	`

	s := &streak.UserStreak{UserID: userID}
	err := r.conn.QueryRow(ctx, query, userID).Scan(
		&s.CurrentStreak,
		&s.LongestStreak,
		&s.LastActivityDate,
		&s.TotalEventsAttended,
		&s.EventsThisMonth,
		&s.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return &streak.UserStreak{UserID: userID}, nil
		}
		return nil, fmt.Errorf("failed to get streak: %w", err)
	}
	return s, nil
}

// Upsert replaces the snapshot.
func (r *StreakRepository) Upsert(ctx context.Context, s streak.UserStreak) error {
	query := `
		INSERT INTO user_streaks (user_id, current_streak, longest_streak, last_activity_date,
			total_events_attended, events_this_month, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			longest_streak = EXCLUDED.longest_streak,
			last_activity_date = EXCLUDED.last_activity_date,
			total_events_attended = EXCLUDED.total_events_attended,
			events_this_month = EXCLUDED.events_this_month,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		s.UserID, s.CurrentStreak, s.LongestStreak, s.LastActivityDate,
		s.TotalEventsAttended, s.EventsThisMonth, s.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert streak: %w", err)
	}
	return nil
}

// RecordMilestone inserts m unless it is already recorded.
func (r *StreakRepository) RecordMilestone(ctx context.Context, m streak.Milestone) (streak.Milestone, bool, error) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}

	tag, err := r.conn.Exec(ctx, `
		INSERT INTO user_milestones (id, user_id, milestone_type, milestone_value, achieved_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, milestone_type, milestone_value) DO NOTHING
	`, m.ID, m.UserID, m.MilestoneType, m.MilestoneValue, m.AchievedAt)
	if err != nil {
		return streak.Milestone{}, false, fmt.Errorf("failed to record milestone: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return m, true, nil
	}

	var saved streak.Milestone
	err = r.conn.QueryRow(ctx, `
		SELECT id, user_id, milestone_type, milestone_value, achieved_at, notified
		FROM user_milestones
		WHERE user_id = $1 AND milestone_type = $2 AND milestone_value = $3
	`, m.UserID, m.MilestoneType, m.MilestoneValue).Scan(
		&saved.ID, &saved.UserID, &saved.MilestoneType, &saved.MilestoneValue, &saved.AchievedAt, &saved.Notified,
	)
	if err != nil {
		return streak.Milestone{}, false, fmt.Errorf("failed to load milestone: %w", err)
	}
	return saved, false, nil
}

// ListMilestones returns the user's milestones, oldest first.
func (r *StreakRepository) ListMilestones(ctx context.Context, userID string) ([]streak.Milestone, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, user_id, milestone_type, milestone_value, achieved_at, notified
		FROM user_milestones
		WHERE user_id = $1
		ORDER BY achieved_at, milestone_type, milestone_value
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query milestones: %w", err)
	}
	defer rows.Close()

	var out []streak.Milestone
	for rows.Next() {
		var m streak.Milestone
		if err := rows.Scan(&m.ID, &m.UserID, &m.MilestoneType, &m.MilestoneValue, &m.AchievedAt, &m.Notified); err != nil {
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkNotified flags the milestone as pushed.
func (r *StreakRepository) MarkNotified(ctx context.Context, milestoneID string) error {
	tag, err := r.conn.Exec(ctx, `UPDATE user_milestones SET notified = TRUE WHERE id = $1`, milestoneID)
	if err != nil {
		return fmt.Errorf("failed to mark milestone notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
