package postgres

import (
	"context"
	"fmt"

	"github.com/afterhours/nightlife-core/internal/domain/recap"
)

// ActivityRepository reads RSVPs and the follow graph. These tables belong
// to neighbouring services; the core never writes them.
type ActivityRepository struct {
	conn *Connection
}

// NewActivityRepository creates a new ActivityRepository.
func NewActivityRepository(conn *Connection) *ActivityRepository {
	return &ActivityRepository{conn: conn}
}

// ActiveUsers returns users with an RSVP created or an entry attended in the week.
func (r *ActivityRepository) ActiveUsers(ctx context.Context, w recap.Week) ([]string, error) {
	query := `
		SELECT user_id FROM event_rsvps WHERE created_at BETWEEN $1 AND $2
		UNION
		SELECT user_id FROM party_timeline WHERE attended_date BETWEEN $1 AND $2
		ORDER BY user_id
	`

	return r.ids(ctx, query, w.Start, w.End)
}

// RSVPs returns the user's RSVPs created in the week, oldest first.
func (r *ActivityRepository) RSVPs(ctx context.Context, userID string, w recap.Week) ([]recap.RSVP, error) {
	query := `
		SELECT rv.user_id, rv.event_id, e.event_type, e.venue_id, rv.created_at
		FROM event_rsvps rv
		JOIN events e ON e.id = rv.event_id
		WHERE rv.user_id = $1 AND rv.created_at BETWEEN $2 AND $3
		ORDER BY rv.created_at, rv.event_id
	`

	return r.rsvps(ctx, query, userID, w.Start, w.End)
}

// CoAttendees returns other users' RSVPs on the given events.
func (r *ActivityRepository) CoAttendees(ctx context.Context, userID string, eventIDs []string) ([]recap.RSVP, error) {
	if len(eventIDs) == 0 {
		return nil, nil
	}
	query := `
		SELECT rv.user_id, rv.event_id, e.event_type, e.venue_id, rv.created_at
		FROM event_rsvps rv
		JOIN events e ON e.id = rv.event_id
		WHERE rv.event_id = ANY($2) AND rv.user_id <> $1
		ORDER BY rv.created_at
	`

	return r.rsvps(ctx, query, userID, eventIDs)
}

// Following returns who the user follows right now.
func (r *ActivityRepository) Following(ctx context.Context, userID string) ([]string, error) {
	return r.ids(ctx, `SELECT following_id FROM follows WHERE follower_id = $1 ORDER BY following_id`, userID)
}

// FollowerCount returns the number of followers.
func (r *ActivityRepository) FollowerCount(ctx context.Context, userID string) (int64, error) {
	var n int64
	if err := r.conn.QueryRow(ctx, `SELECT COUNT(*) FROM follows WHERE following_id = $1`, userID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count followers: %w", err)
	}
	return n, nil
}

func (r *ActivityRepository) ids(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user ids: %w", err)
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

func (r *ActivityRepository) rsvps(ctx context.Context, query string, args ...any) ([]recap.RSVP, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rsvps: %w", err)
	}
	defer rows.Close()

	var out []recap.RSVP
	for rows.Next() {
		var rv recap.RSVP
		if err := rows.Scan(&rv.UserID, &rv.EventID, &rv.EventType, &rv.VenueID, &rv.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rsvp: %w", err)
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}
