package eventhandler

import (
	"context"
	"log/slog"

	"github.com/afterhours/nightlife-core/internal/application/command"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ═══════════════════════════════════════════════════════════════════════════
// ACHIEVEMENT TRIGGER
// Пересчитывает достижения после событий, меняющих статистику: новая запись
// таймлайна, полученная награда за квест, ручное начисление XP.
// Повторный запуск безопасен: Award - insert-if-absent.
// ═══════════════════════════════════════════════════════════════════════════

// Evaluator - то, что умеет пересчитать достижения пользователя.
type Evaluator interface {
	Handle(ctx context.Context, cmd command.EvaluateAchievementsCommand) (*command.EvaluateAchievementsResult, error)
}

// AchievementTrigger запускает оценку достижений по событиям.
type AchievementTrigger struct {
	evaluator Evaluator
	logger    *slog.Logger
}

// NewAchievementTrigger создаёт обработчик.
func NewAchievementTrigger(evaluator Evaluator, logger *slog.Logger) *AchievementTrigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AchievementTrigger{evaluator: evaluator, logger: logger.With("handler", "achievement_trigger")}
}

// Register подписывает обработчик на шину.
func (t *AchievementTrigger) Register(sub shared.EventSubscriber) error {
	for _, et := range []shared.EventType{
		shared.EventTimelineEntryAdded,
		shared.EventQuestClaimed,
		shared.EventXPAwarded,
	} {
		if err := sub.Subscribe(et, t.Handle); err != nil {
			return err
		}
	}
	return nil
}

// Handle пересчитывает достижения для пользователя из события.
func (t *AchievementTrigger) Handle(ctx context.Context, event shared.Event) error {
	userID := event.AggregateID()
	if userID == "" {
		return nil
	}
	res, err := t.evaluator.Handle(ctx, command.EvaluateAchievementsCommand{UserID: userID})
	if err != nil {
		t.logger.Error("achievement evaluation failed",
			"user_id", userID,
			"trigger", string(event.EventType()),
			"error", err,
		)
		return err
	}
	if len(res.NewlyEarned) > 0 {
		t.logger.Info("achievements unlocked by event",
			"user_id", userID,
			"trigger", string(event.EventType()),
			"count", len(res.NewlyEarned),
			"xp_awarded", res.XPAwarded,
		)
	}
	return nil
}
