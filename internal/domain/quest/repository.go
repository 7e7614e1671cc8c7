package quest

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище квестов и прогресса.
type Repository interface {
	// GetQuest возвращает квест. ErrQuestNotFound, если его нет.
	GetQuest(ctx context.Context, questID string) (*PartyQuest, error)

	// ListActive возвращает неистёкшие квесты.
	ListActive(ctx context.Context, now time.Time) ([]PartyQuest, error)

	// UpsertQuest пишет квест. Используется только seed.
	UpsertQuest(ctx context.Context, q PartyQuest) error

	// GetProgress возвращает прогресс или ErrQuestProgressMissing.
	GetProgress(ctx context.Context, userID, questID string) (*Progress, error)

	// ListProgress возвращает все строки прогресса пользователя.
	ListProgress(ctx context.Context, userID string) ([]Progress, error)

	// IncrementProgress атомарно выполняет progress = progress + delta
	// (upsert) и ставит completed_at при первом достижении требования.
	IncrementProgress(ctx context.Context, userID string, q PartyQuest, delta int64, now time.Time) (*Progress, error)

	// Claim атомарно устанавливает claimed_at, только если
	// claimed_at IS NULL AND progress >= requirement, и в той же транзакции
	// начисляет xp_reward. false без изменений, если условие не выполнено.
	Claim(ctx context.Context, userID string, q PartyQuest, now time.Time) (bool, error)

	// CountClaimed - число полученных наград, для статистики достижений.
	CountClaimed(ctx context.Context, userID string) (int64, error)
}
