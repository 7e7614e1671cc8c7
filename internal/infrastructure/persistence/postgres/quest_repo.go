package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/afterhours/nightlife-core/internal/domain/quest"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/xp"
)

// QuestRepository implements quest.Repository.
type QuestRepository struct {
	conn *Connection
}

// NewQuestRepository creates a new quest repository.
func NewQuestRepository(conn *Connection) *QuestRepository {
	return &QuestRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Quests
// ─────────────────────────────────────────────────────────────────────────────

const questColumns = `id, title, description, xp_reward, quest_type, requirement_type, requirement_value, expires_at`

// GetQuest returns a quest by id.
func (r *QuestRepository) GetQuest(ctx context.Context, questID string) (*quest.PartyQuest, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+questColumns+` FROM party_quests WHERE id = $1`, questID)
	q, err := scanQuest(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQuestNotFound
		}
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}
	return q, nil
}

// ListActive returns quests that have not expired at now.
func (r *QuestRepository) ListActive(ctx context.Context, now time.Time) ([]quest.PartyQuest, error) {
	query := `
		SELECT ` + questColumns + `
		FROM party_quests
		WHERE expires_at IS NULL OR expires_at > $1
		ORDER BY quest_type, id
	`

	rows, err := r.conn.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query active quests: %w", err)
	}
	defer rows.Close()

	var out []quest.PartyQuest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		out = append(out, *q)
	}
	return out, rows.Err()
}

// UpsertQuest writes a quest definition.
func (r *QuestRepository) UpsertQuest(ctx context.Context, q quest.PartyQuest) error {
	query := `
		INSERT INTO party_quests (` + questColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			xp_reward = EXCLUDED.xp_reward,
			quest_type = EXCLUDED.quest_type,
			requirement_type = EXCLUDED.requirement_type,
			requirement_value = EXCLUDED.requirement_value,
			expires_at = EXCLUDED.expires_at
	`

	_, err := r.conn.Exec(ctx, query,
		q.ID, q.Title, q.Description, q.XPReward, string(q.QuestType),
		q.RequirementType, q.RequirementValue, q.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert quest %s: %w", q.ID, err)
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

const progressColumns = `id, user_id, quest_id, progress, completed_at, claimed_at`

// GetProgress returns the user's progress row for a quest.
func (r *QuestRepository) GetProgress(ctx context.Context, userID, questID string) (*quest.Progress, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+progressColumns+` FROM user_quest_progress WHERE user_id = $1 AND quest_id = $2`,
		userID, questID,
	)
	p, err := scanProgress(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrQuestProgressMissing
		}
		return nil, fmt.Errorf("failed to get quest progress: %w", err)
	}
	return p, nil
}

// ListProgress returns every progress row of the user.
func (r *QuestRepository) ListProgress(ctx context.Context, userID string) ([]quest.Progress, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT `+progressColumns+` FROM user_quest_progress WHERE user_id = $1 ORDER BY quest_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query quest progress: %w", err)
	}
	defer rows.Close()

	var out []quest.Progress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest progress: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// IncrementProgress adds delta in a single upsert. completed_at is set the
// first time progress reaches the requirement and never moves afterwards.
func (r *QuestRepository) IncrementProgress(ctx context.Context, userID string, q quest.PartyQuest, delta int64, now time.Time) (*quest.Progress, error) {
	query := `
		INSERT INTO user_quest_progress (id, user_id, quest_id, progress, completed_at)
		VALUES ($1, $2, $3, $4, CASE WHEN $4 >= $5 THEN $6::timestamptz END)
		ON CONFLICT (user_id, quest_id) DO UPDATE SET
			progress = user_quest_progress.progress + EXCLUDED.progress,
			completed_at = COALESCE(
				user_quest_progress.completed_at,
				CASE WHEN user_quest_progress.progress + EXCLUDED.progress >= $5 THEN $6::timestamptz END
			)
		RETURNING ` + progressColumns

	row := r.conn.QueryRow(ctx, query, uuid.NewString(), userID, q.ID, delta, q.RequirementValue, now)
	p, err := scanProgress(row)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return nil, shared.ErrQuestNotFound
		}
		return nil, fmt.Errorf("failed to increment quest progress: %w", err)
	}
	return p, nil
}

// Claim sets claimed_at with a guarded update and grants the reward in the
// same transaction. Returns false when the guard did not match.
func (r *QuestRepository) Claim(ctx context.Context, userID string, q quest.PartyQuest, now time.Time) (bool, error) {
	claimed := false
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE user_quest_progress
			SET claimed_at = $3
			WHERE user_id = $1 AND quest_id = $2
				AND claimed_at IS NULL
				AND progress >= $4
		`, userID, q.ID, now, q.RequirementValue)
		if err != nil {
			return fmt.Errorf("failed to claim quest: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		claimed = true

		if q.XPReward > 0 {
			if _, err := addXP(ctx, tx, userID, q.XPReward, xp.ReasonQuestClaim+":"+q.ID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return claimed, nil
}

// CountClaimed returns the number of claimed rewards.
func (r *QuestRepository) CountClaimed(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := r.conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM user_quest_progress WHERE user_id = $1 AND claimed_at IS NOT NULL`,
		userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count claimed quests: %w", err)
	}
	return n, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanQuest(row pgx.Row) (*quest.PartyQuest, error) {
	var q quest.PartyQuest
	var questType string
	if err := row.Scan(
		&q.ID, &q.Title, &q.Description, &q.XPReward, &questType,
		&q.RequirementType, &q.RequirementValue, &q.ExpiresAt,
	); err != nil {
		return nil, err
	}
	q.QuestType = quest.Type(questType)
	return &q, nil
}

func scanProgress(row pgx.Row) (*quest.Progress, error) {
	var p quest.Progress
	if err := row.Scan(&p.ID, &p.UserID, &p.QuestID, &p.Progress, &p.CompletedAt, &p.ClaimedAt); err != nil {
		return nil, err
	}
	return &p, nil
}
