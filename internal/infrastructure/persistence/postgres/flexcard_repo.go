package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/afterhours/nightlife-core/internal/domain/flexcard"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// FlexCardRepository implements flexcard.Repository.
type FlexCardRepository struct {
	conn *Connection
}

// NewFlexCardRepository creates a new flex card repository.
func NewFlexCardRepository(conn *Connection) *FlexCardRepository {
	return &FlexCardRepository{conn: conn}
}

const flexCardColumns = `id, user_id, card_type, title, subtitle, stats, share_code, is_public, created_at`

// Create inserts the card. A taken share code maps to ErrShareCodeCollision.
func (r *FlexCardRepository) Create(ctx context.Context, c *flexcard.FlexCard) error {
	stats, err := json.Marshal(c.Stats)
	if err != nil {
		return fmt.Errorf("failed to encode card stats: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO flex_cards (`+flexCardColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.UserID, string(c.CardType), c.Title, c.Subtitle, stats, c.ShareCode, c.IsPublic, c.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.ErrShareCodeCollision
		}
		return fmt.Errorf("failed to create flex card: %w", err)
	}
	return nil
}

// GetByShareCode returns the card regardless of visibility.
func (r *FlexCardRepository) GetByShareCode(ctx context.Context, code string) (*flexcard.FlexCard, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+flexCardColumns+` FROM flex_cards WHERE share_code = $1`, code)
	c, err := scanFlexCard(row)
	if err != nil {
		if IsNoRows(err) {
			return nil, shared.ErrFlexCardNotFound
		}
		return nil, fmt.Errorf("failed to get flex card: %w", err)
	}
	return c, nil
}

// ListByUser returns the owner's cards, newest first.
func (r *FlexCardRepository) ListByUser(ctx context.Context, userID string) ([]flexcard.FlexCard, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT `+flexCardColumns+`
		FROM flex_cards
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query flex cards: %w", err)
	}
	defer rows.Close()

	var out []flexcard.FlexCard
	for rows.Next() {
		c, err := scanFlexCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan flex card: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func scanFlexCard(row pgx.Row) (*flexcard.FlexCard, error) {
	var c flexcard.FlexCard
	var cardType string
	var stats []byte
	if err := row.Scan(&c.ID, &c.UserID, &cardType, &c.Title, &c.Subtitle, &stats, &c.ShareCode, &c.IsPublic, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.CardType = flexcard.CardType(cardType)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &c.Stats); err != nil {
			return nil, fmt.Errorf("decode stats: %w", err)
		}
	}
	return &c, nil
}
