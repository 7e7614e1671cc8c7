package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/afterhours/nightlife-core/internal/domain/achievement"
	"github.com/afterhours/nightlife-core/internal/domain/xp"
)

// AchievementRepository implements achievement.Repository.
type AchievementRepository struct {
	conn *Connection
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(conn *Connection) *AchievementRepository {
	return &AchievementRepository{conn: conn}
}

// ListAchievements returns the whole catalog.
func (r *AchievementRepository) ListAchievements(ctx context.Context) ([]achievement.Achievement, error) {
	query := `
		SELECT id, name, description, icon, xp_reward, category,
			requirement_type, requirement_value, is_secret
		FROM achievements
		ORDER BY category, requirement_value, id
	`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query achievements: %w", err)
	}
	defer rows.Close()

	var out []achievement.Achievement
	for rows.Next() {
		var a achievement.Achievement
		if err := rows.Scan(
			&a.ID, &a.Name, &a.Description, &a.Icon, &a.XPReward, &a.Category,
			&a.RequirementType, &a.RequirementValue, &a.IsSecret,
		); err != nil {
			return nil, fmt.Errorf("failed to scan achievement: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// UpsertAchievement writes a catalog entry.
func (r *AchievementRepository) UpsertAchievement(ctx context.Context, a achievement.Achievement) error {
	query := `
		INSERT INTO achievements (id, name, description, icon, xp_reward, category,
			requirement_type, requirement_value, is_secret)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			icon = EXCLUDED.icon,
			xp_reward = EXCLUDED.xp_reward,
			category = EXCLUDED.category,
			requirement_type = EXCLUDED.requirement_type,
			requirement_value = EXCLUDED.requirement_value,
			is_secret = EXCLUDED.is_secret
	`

	_, err := r.conn.Exec(ctx, query,
		a.ID, a.Name, a.Description, a.Icon, a.XPReward, string(a.Category),
		string(a.RequirementType), a.RequirementValue, a.IsSecret,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert achievement %s: %w", a.ID, err)
	}
	return nil
}

// ListEarned returns the user's earned achievements, oldest first.
func (r *AchievementRepository) ListEarned(ctx context.Context, userID string) ([]achievement.UserAchievement, error) {
	query := `
		SELECT id, user_id, achievement_id, earned_at
		FROM user_achievements
		WHERE user_id = $1
		ORDER BY earned_at, achievement_id
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query earned achievements: %w", err)
	}
	defer rows.Close()

	var out []achievement.UserAchievement
	for rows.Next() {
		var ua achievement.UserAchievement
		if err := rows.Scan(&ua.ID, &ua.UserID, &ua.AchievementID, &ua.EarnedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user achievement: %w", err)
		}
		out = append(out, ua)
	}
	return out, rows.Err()
}

// Award inserts the (user, achievement) row if absent. The XP reward is
// granted in the same transaction only when the row was inserted, so two
// concurrent evaluations award the reward exactly once.
func (r *AchievementRepository) Award(ctx context.Context, userID string, a achievement.Achievement, now time.Time) (achievement.UserAchievement, bool, error) {
	ua := achievement.UserAchievement{
		ID:            uuid.NewString(),
		UserID:        userID,
		AchievementID: a.ID,
		EarnedAt:      now,
	}
	inserted := false

	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO user_achievements (id, user_id, achievement_id, earned_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, achievement_id) DO NOTHING
		`, ua.ID, ua.UserID, ua.AchievementID, ua.EarnedAt)
		if err != nil {
			return fmt.Errorf("failed to insert user achievement: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		inserted = true

		if a.XPReward > 0 {
			if _, err := addXP(ctx, tx, userID, a.XPReward, xp.ReasonAchievement+":"+a.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return achievement.UserAchievement{}, false, err
	}
	return ua, inserted, nil
}
