package messaging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/afterhours/nightlife-core/internal/domain/notification"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUSH DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// PushDispatcher implements notification.Dispatcher: it resolves the user's
// active device tokens, hands them to the provider and deactivates every
// token the provider rejected.
type PushDispatcher struct {
	tokens    notification.TokenRepository
	sender    notification.Sender
	publisher shared.EventPublisher
	logger    *slog.Logger
}

var _ notification.Dispatcher = (*PushDispatcher)(nil)

// DispatcherConfig contains the dependencies of the dispatcher.
type DispatcherConfig struct {
	Tokens notification.TokenRepository
	Sender notification.Sender

	// Publisher receives PushTokensDeactivated events. Optional.
	Publisher shared.EventPublisher

	Logger *slog.Logger
}

// NewPushDispatcher creates a new dispatcher.
func NewPushDispatcher(config DispatcherConfig) *PushDispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Publisher == nil {
		config.Publisher = shared.NopPublisher{}
	}
	return &PushDispatcher{
		tokens:    config.Tokens,
		sender:    config.Sender,
		publisher: config.Publisher,
		logger:    config.Logger.With("component", "push_dispatcher"),
	}
}

// Notify sends msg to every active device of the user. A user without
// devices is not an error: the result simply reports zero sent.
func (d *PushDispatcher) Notify(ctx context.Context, userID string, msg notification.Message) (notification.SendResult, error) {
	if userID == "" {
		return notification.SendResult{}, shared.ErrInvalidUserID
	}
	if err := msg.Validate(); err != nil {
		return notification.SendResult{}, err
	}

	tokens, err := d.tokens.ActiveTokens(ctx, userID)
	if err != nil {
		return notification.SendResult{}, fmt.Errorf("failed to load push tokens: %w", err)
	}
	if len(tokens) == 0 {
		d.logger.Debug("no active devices", "user_id", userID, "type", msg.Type)
		return notification.SendResult{}, nil
	}

	result, sendErr := d.sender.Send(ctx, tokens, msg.Title, msg.Body, msg.Data)

	// Rejected tokens are cleaned up even when a later batch failed.
	if len(result.InvalidTokens) > 0 {
		d.deactivate(ctx, userID, result.InvalidTokens)
	}

	if sendErr != nil {
		return result, sendErr
	}

	d.logger.Info("push delivered",
		"user_id", userID,
		"type", msg.Type,
		"devices", len(tokens),
		"sent", result.Sent,
	)
	return result, nil
}

func (d *PushDispatcher) deactivate(ctx context.Context, userID string, invalid []string) {
	n, err := d.tokens.Deactivate(ctx, invalid)
	if err != nil {
		d.logger.Warn("failed to deactivate push tokens", "user_id", userID, "count", len(invalid), "error", err)
		return
	}
	if n == 0 {
		return
	}

	d.logger.Info("push tokens deactivated", "user_id", userID, "count", n)
	if err := d.publisher.Publish(ctx, shared.NewPushTokensDeactivatedEvent(userID, int(n))); err != nil {
		d.logger.Warn("failed to publish tokens deactivated event", "error", err)
	}
}
