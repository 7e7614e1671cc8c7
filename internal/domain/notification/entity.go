// Package notification содержит модель push-уведомлений геймификации.
// Уведомления - побочный эффект: их отправка никогда не откатывает и не
// блокирует изменение данных, которое их вызвало.
package notification

import (
	"fmt"
	"strings"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION TYPE
// ══════════════════════════════════════════════════════════════════════════════

// Type определяет тип уведомления.
type Type string

const (
	TypeAchievement     Type = "achievement"
	TypeQuestClaimed    Type = "quest_claimed"
	TypeStreakMilestone Type = "streak_milestone"
	TypeLevelUp         Type = "level_up"
	TypeRecapReady      Type = "recap_ready"
)

// Emoji возвращает эмодзи для заголовка.
func (t Type) Emoji() string {
	switch t {
	case TypeAchievement:
		return "🏅"
	case TypeQuestClaimed:
		return "✅"
	case TypeStreakMilestone:
		return "🔥"
	case TypeLevelUp:
		return "⬆️"
	case TypeRecapReady:
		return "📈"
	default:
		return "📬"
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE
// ══════════════════════════════════════════════════════════════════════════════

const (
	maxTitleLength = 65
	maxBodyLength  = 240
)

// Message - содержимое push-уведомления.
type Message struct {
	Type  Type
	Title string
	Body  string
	Data  map[string]string
}

// Validate проверяет сообщение.
func (m Message) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return shared.NewDomainError("notification", "Validate", shared.ErrEmptyValue, "title is required")
	}
	if len(m.Title) > maxTitleLength || len(m.Body) > maxBodyLength {
		return shared.NewDomainError("notification", "Validate", shared.ErrValueOutOfRange, "message too long")
	}
	return nil
}

// NewAchievementMessage - уведомление о новом достижении.
func NewAchievementMessage(achievementID, name string, xp int64) Message {
	return Message{
		Type:  TypeAchievement,
		Title: fmt.Sprintf("%s Achievement unlocked", TypeAchievement.Emoji()),
		Body:  fmt.Sprintf("You earned %q (+%d XP)", name, xp),
		Data:  map[string]string{"type": string(TypeAchievement), "achievement_id": achievementID},
	}
}

// NewQuestClaimedMessage - уведомление о полученной награде за квест.
func NewQuestClaimedMessage(questID, title string, xp int64) Message {
	return Message{
		Type:  TypeQuestClaimed,
		Title: fmt.Sprintf("%s Quest complete", TypeQuestClaimed.Emoji()),
		Body:  fmt.Sprintf("%s: +%d XP", title, xp),
		Data:  map[string]string{"type": string(TypeQuestClaimed), "quest_id": questID},
	}
}

// NewStreakMilestoneMessage - уведомление о вехе.
func NewStreakMilestoneMessage(milestoneType string, value int) Message {
	body := fmt.Sprintf("%d weeks in a row. Keep it going!", value)
	if milestoneType == "nights_out" {
		body = fmt.Sprintf("%d nights out logged!", value)
	}
	return Message{
		Type:  TypeStreakMilestone,
		Title: fmt.Sprintf("%s Milestone reached", TypeStreakMilestone.Emoji()),
		Body:  body,
		Data: map[string]string{
			"type":            string(TypeStreakMilestone),
			"milestone_type":  milestoneType,
			"milestone_value": fmt.Sprint(value),
		},
	}
}

// NewLevelUpMessage - уведомление о новом уровне.
func NewLevelUpMessage(level int) Message {
	return Message{
		Type:  TypeLevelUp,
		Title: fmt.Sprintf("%s Level %d", TypeLevelUp.Emoji(), level),
		Body:  "You levelled up. New quests await.",
		Data:  map[string]string{"type": string(TypeLevelUp), "level": fmt.Sprint(level)},
	}
}

// NewRecapReadyMessage - отчёт за неделю готов.
func NewRecapReadyMessage(recapID string, weekStart time.Time, nights int) Message {
	return Message{
		Type:  TypeRecapReady,
		Title: fmt.Sprintf("%s Your week in review", TypeRecapReady.Emoji()),
		Body:  fmt.Sprintf("%d nights out the week of %s. Tap to see your recap.", nights, weekStart.Format("Jan 2")),
		Data: map[string]string{
			"type":       string(TypeRecapReady),
			"recap_id":   recapID,
			"week_start": weekStart.Format("2006-01-02"),
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// PUSH TOKENS
// ══════════════════════════════════════════════════════════════════════════════

// Platform - платформа устройства.
type Platform string

const (
	PlatformIOS     Platform = "ios"
	PlatformAndroid Platform = "android"
	PlatformWeb     Platform = "web"
)

// PushToken - токен устройства пользователя.
type PushToken struct {
	UserID    string    `json:"user_id"`
	Token     string    `json:"token"`
	Platform  Platform  `json:"platform"`
	Active    bool      `json:"active"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SendResult - результат отправки провайдеру.
type SendResult struct {
	Sent          int      `json:"sent"`
	InvalidTokens []string `json:"invalid_tokens"`
}
