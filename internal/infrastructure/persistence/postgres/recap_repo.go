package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/afterhours/nightlife-core/internal/domain/recap"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// RecapRepository implements recap.Repository.
type RecapRepository struct {
	conn *Connection
}

// NewRecapRepository creates a new recap repository.
func NewRecapRepository(conn *Connection) *RecapRepository {
	return &RecapRepository{conn: conn}
}

const recapColumns = `id, user_id, week_start, week_end, events_attended, total_rsvps,
	top_venue_id, top_event_type, friends_met, streak_at_week_end, highlights, created_at`

// Exists reports whether a recap for the week is stored.
func (r *RecapRepository) Exists(ctx context.Context, userID string, weekStart time.Time) (bool, error) {
	var exists bool
	err := r.conn.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM weekly_recaps WHERE user_id = $1 AND week_start = $2)`,
		userID, weekStart,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check recap: %w", err)
	}
	return exists, nil
}

// Insert stores the recap. A conflict on (user_id, week_start) is not an
// error: inserted is false.
func (r *RecapRepository) Insert(ctx context.Context, rc *recap.WeeklyRecap) (bool, error) {
	if rc.ID == "" {
		rc.ID = uuid.NewString()
	}
	if rc.Highlights == nil {
		rc.Highlights = []string{}
	}
	highlights, err := json.Marshal(rc.Highlights)
	if err != nil {
		return false, fmt.Errorf("failed to encode highlights: %w", err)
	}

	tag, err := r.conn.Exec(ctx, `
		INSERT INTO weekly_recaps (`+recapColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id, week_start) DO NOTHING
	`,
		rc.ID, rc.UserID, rc.WeekStart, rc.WeekEnd, rc.EventsAttended, rc.TotalRSVPs,
		rc.TopVenueID, rc.TopEventType, rc.FriendsMet, rc.StreakAtWeekEnd, highlights, rc.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert recap: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// GetForWeek returns the recap for the week.
func (r *RecapRepository) GetForWeek(ctx context.Context, userID string, weekStart time.Time) (*recap.WeeklyRecap, error) {
	row := r.conn.QueryRow(ctx,
		`SELECT `+recapColumns+` FROM weekly_recaps WHERE user_id = $1 AND week_start = $2`,
		userID, weekStart,
	)
	rc, err := scanRecap(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get recap: %w", err)
	}
	return rc, nil
}

// ListByUser returns the user's recaps, newest week first.
func (r *RecapRepository) ListByUser(ctx context.Context, userID string, limit int) ([]recap.WeeklyRecap, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+recapColumns+`
		FROM weekly_recaps
		WHERE user_id = $1
		ORDER BY week_start DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recaps: %w", err)
	}
	defer rows.Close()

	out := make([]recap.WeeklyRecap, 0, limit)
	for rows.Next() {
		rc, err := scanRecap(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recap: %w", err)
		}
		out = append(out, *rc)
	}
	return out, rows.Err()
}

func scanRecap(row pgx.Row) (*recap.WeeklyRecap, error) {
	var rc recap.WeeklyRecap
	var highlights []byte
	if err := row.Scan(
		&rc.ID, &rc.UserID, &rc.WeekStart, &rc.WeekEnd, &rc.EventsAttended, &rc.TotalRSVPs,
		&rc.TopVenueID, &rc.TopEventType, &rc.FriendsMet, &rc.StreakAtWeekEnd, &highlights, &rc.CreatedAt,
	); err != nil {
		return nil, err
	}
	rc.Highlights = []string{}
	if len(highlights) > 0 {
		if err := json.Unmarshal(highlights, &rc.Highlights); err != nil {
			return nil, fmt.Errorf("decode highlights: %w", err)
		}
	}
	return &rc, nil
}
