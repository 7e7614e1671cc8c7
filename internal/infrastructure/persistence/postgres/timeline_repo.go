package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
)

// TimelineRepository implements timeline.Repository.
type TimelineRepository struct {
	conn *Connection
}

// NewTimelineRepository creates a new timeline repository.
func NewTimelineRepository(conn *Connection) *TimelineRepository {
	return &TimelineRepository{conn: conn}
}

const timelineColumns = `id, user_id, event_id, event_name, event_city, attended_date,
	duration_hours, rep_earned, highlight_moment, is_public, created_at`

// Append inserts the entry. ID and CreatedAt are filled when empty.
func (r *TimelineRepository) Append(ctx context.Context, e *timeline.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO party_timeline (` + timelineColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.conn.Exec(ctx, query,
		e.ID, e.UserID, e.EventID, e.EventName, e.EventCity, e.AttendedDate,
		e.DurationHours, e.RepEarned, e.HighlightMoment, e.IsPublic, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append timeline entry: %w", err)
	}
	return nil
}

// ListByUser returns every entry of the user, newest first.
func (r *TimelineRepository) ListByUser(ctx context.Context, userID string) ([]timeline.Entry, error) {
	return r.list(ctx, `
		SELECT `+timelineColumns+`
		FROM party_timeline
		WHERE user_id = $1
		ORDER BY attended_date DESC, created_at DESC
	`, userID)
}

// ListBetween returns entries with attended_date in [from, to].
func (r *TimelineRepository) ListBetween(ctx context.Context, userID string, from, to time.Time) ([]timeline.Entry, error) {
	return r.list(ctx, `
		SELECT `+timelineColumns+`
		FROM party_timeline
		WHERE user_id = $1 AND attended_date BETWEEN $2 AND $3
		ORDER BY attended_date DESC, created_at DESC
	`, userID, from, to)
}

// UpdateOwned applies the patch to an entry owned by userID.
func (r *TimelineRepository) UpdateOwned(ctx context.Context, userID, entryID string, p timeline.Patch) (*timeline.Entry, error) {
	query := `
		UPDATE party_timeline SET
			highlight_moment = CASE WHEN $3::boolean THEN $4::varchar ELSE highlight_moment END,
			is_public = COALESCE($5::boolean, is_public)
		WHERE id = $1 AND user_id = $2
		RETURNING ` + timelineColumns

	row := r.conn.QueryRow(ctx, query, entryID, userID, p.HighlightMoment != nil, p.HighlightMoment, p.IsPublic)
	e, err := scanEntry(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrTimelineEntryNotFound
		}
		return nil, fmt.Errorf("failed to update timeline entry: %w", err)
	}
	return e, nil
}

// UsersActiveSince returns users with an entry attended after since.
func (r *TimelineRepository) UsersActiveSince(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT DISTINCT user_id FROM party_timeline WHERE attended_date >= $1 ORDER BY user_id
	`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query active users: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan user id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *TimelineRepository) list(ctx context.Context, query string, args ...any) ([]timeline.Entry, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query timeline: %w", err)
	}
	defer rows.Close()

	var out []timeline.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan timeline entry: %w", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

func scanEntry(row pgx.Row) (*timeline.Entry, error) {
	var e timeline.Entry
	if err := row.Scan(
		&e.ID, &e.UserID, &e.EventID, &e.EventName, &e.EventCity, &e.AttendedDate,
		&e.DurationHours, &e.RepEarned, &e.HighlightMoment, &e.IsPublic, &e.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &e, nil
}
