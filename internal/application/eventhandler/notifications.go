// Package eventhandler содержит обработчики доменных событий.
// Обработчики - реактивная часть системы: они запускают побочные эффекты
// (push-уведомления, пересчёт достижений) после того, как основное
// изменение уже сохранено. Ошибка обработчика никогда не откатывает его.
package eventhandler

import (
	"context"
	"log/slog"

	"github.com/afterhours/nightlife-core/internal/domain/notification"
	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/streak"
)

// Флаги уведомлений.
const (
	FlagNotifyAchievements = "notify.achievements"
	FlagNotifyMilestones   = "notify.milestones"
	FlagNotifyRecapReady   = "notify.recap_ready"
	FlagNotifyRewards      = "notify.rewards"
)

// FlagChecker решает, включена ли функция для пользователя.
type FlagChecker interface {
	IsEnabledForUser(feature string, userID string) bool
}

// ═══════════════════════════════════════════════════════════════════════════
// NOTIFICATION HANDLERS
// Превращают доменные события в push-уведомления. Доставка best-effort:
// сбой провайдера логируется и уменьшает sent, но не возвращается шине.
// ═══════════════════════════════════════════════════════════════════════════

// NotificationHandlers рассылает уведомления по событиям.
type NotificationHandlers struct {
	dispatcher notification.Dispatcher
	streakRepo streak.Repository
	flags      FlagChecker
	logger     *slog.Logger
}

// NewNotificationHandlers создаёт обработчики. streakRepo нужен, чтобы
// отмечать вехи как отправленные; может быть nil.
func NewNotificationHandlers(
	dispatcher notification.Dispatcher,
	streakRepo streak.Repository,
	flags FlagChecker,
	logger *slog.Logger,
) *NotificationHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &NotificationHandlers{
		dispatcher: dispatcher,
		streakRepo: streakRepo,
		flags:      flags,
		logger:     logger.With("handler", "notifications"),
	}
}

// Register подписывает обработчики на шину.
func (h *NotificationHandlers) Register(sub shared.EventSubscriber) error {
	subs := map[shared.EventType]shared.EventHandler{
		shared.EventAchievementEarned:      h.OnAchievementEarned,
		shared.EventQuestClaimed:           h.OnQuestClaimed,
		shared.EventStreakMilestoneReached: h.OnMilestoneReached,
		shared.EventRecapGenerated:         h.OnRecapGenerated,
		shared.EventXPAwarded:              h.OnXPAwarded,
	}
	for t, fn := range subs {
		if err := sub.Subscribe(t, fn); err != nil {
			return err
		}
	}
	return nil
}

// OnAchievementEarned уведомляет о новом достижении.
func (h *NotificationHandlers) OnAchievementEarned(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.AchievementEarnedEvent)
	if !ok {
		return nil
	}
	if !h.enabled(FlagNotifyAchievements, e.UserID) {
		return nil
	}
	h.notify(ctx, e.UserID, notification.NewAchievementMessage(e.AchievementID, e.AchievementName, e.XPReward))
	return nil
}

// OnQuestClaimed уведомляет о полученной награде.
func (h *NotificationHandlers) OnQuestClaimed(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.QuestClaimedEvent)
	if !ok {
		return nil
	}
	if !h.enabled(FlagNotifyRewards, e.UserID) {
		return nil
	}
	h.notify(ctx, e.UserID, notification.NewQuestClaimedMessage(e.QuestID, e.QuestTitle, e.XPReward))
	return nil
}

// OnXPAwarded уведомляет только о повышении уровня.
func (h *NotificationHandlers) OnXPAwarded(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.XPAwardedEvent)
	if !ok || !e.LeveledUp() {
		return nil
	}
	if !h.enabled(FlagNotifyRewards, e.UserID) {
		return nil
	}
	h.notify(ctx, e.UserID, notification.NewLevelUpMessage(e.NewLevel))
	return nil
}

// OnMilestoneReached уведомляет о вехе и отмечает её как отправленную.
// Веха отмечается, только если хотя бы одно устройство получило push,
// иначе её можно будет показать позже.
func (h *NotificationHandlers) OnMilestoneReached(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.StreakMilestoneReachedEvent)
	if !ok {
		return nil
	}
	if !h.enabled(FlagNotifyMilestones, e.UserID) {
		return nil
	}
	res := h.notify(ctx, e.UserID, notification.NewStreakMilestoneMessage(e.MilestoneType, e.MilestoneValue))
	if res.Sent == 0 || h.streakRepo == nil || e.MilestoneID == "" {
		return nil
	}
	if err := h.streakRepo.MarkNotified(ctx, e.MilestoneID); err != nil {
		h.logger.Warn("failed to mark milestone notified",
			"user_id", e.UserID,
			"milestone_id", e.MilestoneID,
			"error", err,
		)
	}
	return nil
}

// OnRecapGenerated сообщает, что недельный отчёт готов.
func (h *NotificationHandlers) OnRecapGenerated(ctx context.Context, event shared.Event) error {
	e, ok := event.(shared.RecapGeneratedEvent)
	if !ok {
		return nil
	}
	if !h.enabled(FlagNotifyRecapReady, e.UserID) {
		return nil
	}
	h.notify(ctx, e.UserID, notification.NewRecapReadyMessage(e.RecapID, e.WeekStart, e.EventsAttended))
	return nil
}

func (h *NotificationHandlers) enabled(flag, userID string) bool {
	return h.flags == nil || h.flags.IsEnabledForUser(flag, userID)
}

func (h *NotificationHandlers) notify(ctx context.Context, userID string, msg notification.Message) notification.SendResult {
	if h.dispatcher == nil {
		return notification.SendResult{}
	}
	res, err := h.dispatcher.Notify(ctx, userID, msg)
	if err != nil {
		h.logger.Warn("push delivery failed",
			"user_id", userID,
			"type", string(msg.Type),
			"sent", res.Sent,
			"error", err,
		)
		return res
	}
	h.logger.Debug("push delivered",
		"user_id", userID,
		"type", string(msg.Type),
		"sent", res.Sent,
		"invalid_tokens", len(res.InvalidTokens),
	)
	return res
}
