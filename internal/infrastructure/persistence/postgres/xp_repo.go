package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/afterhours/nightlife-core/internal/domain/xp"
	"github.com/afterhours/nightlife-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// XP REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// XPRepository implements xp.Repository.
type XPRepository struct {
	conn *Connection
	loc  *time.Location
}

// NewXPRepository creates a repository. loc sets week and month boundaries
// for the derived xp_this_week and xp_this_month sums.
func NewXPRepository(conn *Connection, loc *time.Location) *XPRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &XPRepository{conn: conn, loc: loc}
}

// Get returns the user's XP, creating the row on first read.
func (r *XPRepository) Get(ctx context.Context, userID string, now time.Time) (*xp.UserXP, error) {
	if _, err := r.conn.Exec(ctx,
		`INSERT INTO user_xp (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
		userID,
	); err != nil {
		return nil, fmt.Errorf("failed to ensure user xp: %w", err)
	}

	return r.load(ctx, r.conn, userID, now)
}

// AddXP increments total_xp, recomputes the level and appends the history
// row in one transaction.
func (r *XPRepository) AddXP(ctx context.Context, award xp.Award, now time.Time) (xp.Result, error) {
	var res xp.Result
	err := r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		oldLevel, err := addXP(ctx, tx, award.UserID, award.Amount, award.Reason, now)
		if err != nil {
			return err
		}
		u, err := r.load(ctx, tx, award.UserID, now)
		if err != nil {
			return err
		}
		res = xp.Result{XP: u, OldLevel: oldLevel}
		return nil
	})
	if err != nil {
		return xp.Result{}, err
	}
	return res, nil
}

// History returns the latest awards, newest first.
func (r *XPRepository) History(ctx context.Context, userID string, limit int) ([]xp.Event, error) {
	query := `
		SELECT id, user_id, amount, reason, created_at
		FROM xp_events
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query xp history: %w", err)
	}
	defer rows.Close()

	events := make([]xp.Event, 0, limit)
	for rows.Next() {
		var e xp.Event
		if err := rows.Scan(&e.ID, &e.UserID, &e.Amount, &e.Reason, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan xp event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *XPRepository) load(ctx context.Context, q Querier, userID string, now time.Time) (*xp.UserXP, error) {
	query := `
		SELECT
			u.total_xp,
			u.current_level,
			u.updated_at,
			COALESCE((SELECT SUM(amount) FROM xp_events WHERE user_id = u.user_id AND created_at >= $2), 0),
			COALESCE((SELECT SUM(amount) FROM xp_events WHERE user_id = u.user_id AND created_at >= $3), 0)
		FROM user_xp u
		WHERE u.user_id = $1
	`

	u := xp.NewUserXP(userID)
	err := q.QueryRow(ctx, query,
		userID,
		timeutil.StartOfWeek(now, r.loc),
		timeutil.StartOfMonth(now, r.loc),
	).Scan(&u.TotalXP, &u.CurrentLevel, &u.UpdatedAt, &u.XPThisWeek, &u.XPThisMonth)
	if err != nil {
		if IsNoRows(err) {
			return u, nil
		}
		return nil, fmt.Errorf("failed to get user xp: %w", err)
	}
	return u, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Shared transactional step
// ─────────────────────────────────────────────────────────────────────────────

// incrementXPSQL creates the row on first award and otherwise adds to the
// stored total on the server. RETURNING current_level yields the level
// before this award because the statement leaves it untouched.
const incrementXPSQL = `
INSERT INTO user_xp (user_id, total_xp, current_level, updated_at)
VALUES ($1, $2, 0, $3)
ON CONFLICT (user_id) DO UPDATE
SET total_xp = user_xp.total_xp + EXCLUDED.total_xp,
    updated_at = EXCLUDED.updated_at
RETURNING total_xp, current_level`

// addXP applies amount with an atomic increment, moves current_level to
// match the new total and appends the history row. Used by every path that
// grants XP so rewards stay in the caller's tx.
func addXP(ctx context.Context, tx pgx.Tx, userID string, amount int64, reason string, now time.Time) (oldLevel int, err error) {
	var total int64
	if err := tx.QueryRow(ctx, incrementXPSQL, userID, amount, now).Scan(&total, &oldLevel); err != nil {
		return 0, fmt.Errorf("failed to increment user xp: %w", err)
	}

	// The increment holds the row lock until commit, so the level written
	// here matches the total this transaction produced.
	if newLevel := xp.LevelFor(total); newLevel != oldLevel {
		if _, err := tx.Exec(ctx,
			`UPDATE user_xp SET current_level = $2 WHERE user_id = $1`,
			userID, newLevel,
		); err != nil {
			return 0, fmt.Errorf("failed to update user level: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO xp_events (id, user_id, amount, reason, created_at) VALUES ($1, $2, $3, $4, $5)`,
		uuid.NewString(), userID, amount, reason, now,
	); err != nil {
		return 0, fmt.Errorf("failed to append xp event: %w", err)
	}
	return oldLevel, nil
}
