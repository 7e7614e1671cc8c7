package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/notification"
)

// PushTokenRepository implements notification.TokenRepository.
type PushTokenRepository struct {
	conn *Connection
}

// NewPushTokenRepository creates a new push token repository.
func NewPushTokenRepository(conn *Connection) *PushTokenRepository {
	return &PushTokenRepository{conn: conn}
}

// Register adds the token or moves an existing one to the user and
// reactivates it.
func (r *PushTokenRepository) Register(ctx context.Context, t notification.PushToken) error {
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO push_tokens (token, user_id, platform, active, updated_at)
		VALUES ($1, $2, $3, TRUE, $4)
		ON CONFLICT (token) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			platform = EXCLUDED.platform,
			active = TRUE,
			updated_at = EXCLUDED.updated_at
	`, t.Token, t.UserID, string(t.Platform), t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to register push token: %w", err)
	}
	return nil
}

// ActiveTokens returns the user's active tokens.
func (r *PushTokenRepository) ActiveTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT token FROM push_tokens WHERE user_id = $1 AND active ORDER BY updated_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query push tokens: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var tok string
		if err := rows.Scan(&tok); err != nil {
			return nil, fmt.Errorf("failed to scan push token: %w", err)
		}
		out = append(out, tok)
	}
	return out, rows.Err()
}

// Deactivate switches off the given tokens.
func (r *PushTokenRepository) Deactivate(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tag, err := r.conn.Exec(ctx,
		`UPDATE push_tokens SET active = FALSE, updated_at = NOW() WHERE token = ANY($1) AND active`,
		tokens,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate push tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
