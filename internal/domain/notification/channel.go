package notification

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// SENDER
// ══════════════════════════════════════════════════════════════════════════════

// Sender - внешний push-провайдер.
type Sender interface {
	// Send отправляет сообщение на токены. Возвращает число доставленных и
	// токены, которые провайдер отверг. Удаление невалидных токенов -
	// обязанность вызывающего кода.
	Send(ctx context.Context, tokens []string, title, body string, data map[string]string) (SendResult, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// TOKEN REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// TokenRepository хранит push-токены.
type TokenRepository interface {
	// Register добавляет или реактивирует токен.
	Register(ctx context.Context, t PushToken) error

	// ActiveTokens возвращает активные токены пользователя.
	ActiveTokens(ctx context.Context, userID string) ([]string, error)

	// Deactivate выключает токены. Возвращает число изменённых строк.
	Deactivate(ctx context.Context, tokens []string) (int64, error)
}

// Dispatcher доставляет сообщение пользователю. Реализация загружает токены,
// вызывает Sender и деактивирует невалидные токены.
type Dispatcher interface {
	Notify(ctx context.Context, userID string, msg Message) (SendResult, error)
}
