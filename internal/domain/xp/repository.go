package xp

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище XP.
type Repository interface {
	// Get возвращает XP пользователя, создавая запись при первом чтении.
	// xp_this_week / xp_this_month считаются от now по истории начислений.
	Get(ctx context.Context, userID string, now time.Time) (*UserXP, error)

	// AddXP атомарно увеличивает total_xp, пересчитывает уровень и пишет
	// событие в историю в одной транзакции.
	AddXP(ctx context.Context, award Award, now time.Time) (Result, error)

	// History возвращает последние начисления, новые первыми.
	History(ctx context.Context, userID string, limit int) ([]Event, error)
}
