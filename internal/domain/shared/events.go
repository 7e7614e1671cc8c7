package shared

import (
	"context"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Handlers subscribe by type on the event bus.
const (
	EventXPAwarded              EventType = "xp.awarded"
	EventLevelUp                EventType = "xp.level_up"
	EventAchievementEarned      EventType = "achievement.earned"
	EventQuestClaimed           EventType = "quest.claimed"
	EventStreakMilestoneReached EventType = "streak.milestone_reached"
	EventTimelineEntryAdded     EventType = "timeline.entry_added"
	EventFlexCardCreated        EventType = "flexcard.created"
	EventRecapGenerated         EventType = "recap.generated"
	EventRecapBatchCompleted    EventType = "recap.batch_completed"
	EventPushTokensDeactivated  EventType = "notification.tokens_deactivated"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	// For user-scoped events it is the user id.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// XP Events
// ═══════════════════════════════════════════════════════════════════════════

// XPAwardedEvent is emitted after an atomic XP increment.
type XPAwardedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	Amount   int64  `json:"amount"`
	NewTotal int64  `json:"new_total"`
	Reason   string `json:"reason"`
	OldLevel int    `json:"old_level"`
	NewLevel int    `json:"new_level"`
}

// Payload implements Event interface.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"amount":    e.Amount,
		"new_total": e.NewTotal,
		"reason":    e.Reason,
		"old_level": e.OldLevel,
		"new_level": e.NewLevel,
	}
}

// LeveledUp reports whether the award crossed a level threshold.
func (e XPAwardedEvent) LeveledUp() bool {
	return e.NewLevel > e.OldLevel
}

// NewXPAwardedEvent creates a new XPAwardedEvent.
func NewXPAwardedEvent(userID string, amount, newTotal int64, reason string, oldLevel, newLevel int) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent: NewBaseEvent(EventXPAwarded, userID),
		UserID:    userID,
		Amount:    amount,
		NewTotal:  newTotal,
		Reason:    reason,
		OldLevel:  oldLevel,
		NewLevel:  newLevel,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Achievement & Quest Events
// ═══════════════════════════════════════════════════════════════════════════

// AchievementEarnedEvent is emitted once per (user, achievement).
type AchievementEarnedEvent struct {
	BaseEvent
	UserID          string `json:"user_id"`
	AchievementID   string `json:"achievement_id"`
	AchievementName string `json:"achievement_name"`
	XPReward        int64  `json:"xp_reward"`
}

// Payload implements Event interface.
func (e AchievementEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":          e.UserID,
		"achievement_id":   e.AchievementID,
		"achievement_name": e.AchievementName,
		"xp_reward":        e.XPReward,
	}
}

// NewAchievementEarnedEvent creates a new AchievementEarnedEvent.
func NewAchievementEarnedEvent(userID, achievementID, name string, xpReward int64) AchievementEarnedEvent {
	return AchievementEarnedEvent{
		BaseEvent:       NewBaseEvent(EventAchievementEarned, userID),
		UserID:          userID,
		AchievementID:   achievementID,
		AchievementName: name,
		XPReward:        xpReward,
	}
}

// QuestClaimedEvent is emitted after a successful claim.
type QuestClaimedEvent struct {
	BaseEvent
	UserID     string `json:"user_id"`
	QuestID    string `json:"quest_id"`
	QuestTitle string `json:"quest_title"`
	XPReward   int64  `json:"xp_reward"`
}

// Payload implements Event interface.
func (e QuestClaimedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":     e.UserID,
		"quest_id":    e.QuestID,
		"quest_title": e.QuestTitle,
		"xp_reward":   e.XPReward,
	}
}

// NewQuestClaimedEvent creates a new QuestClaimedEvent.
func NewQuestClaimedEvent(userID, questID, title string, xpReward int64) QuestClaimedEvent {
	return QuestClaimedEvent{
		BaseEvent:  NewBaseEvent(EventQuestClaimed, userID),
		UserID:     userID,
		QuestID:    questID,
		QuestTitle: title,
		XPReward:   xpReward,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak & Timeline Events
// ═══════════════════════════════════════════════════════════════════════════

// StreakMilestoneReachedEvent is emitted when a milestone row is newly inserted.
type StreakMilestoneReachedEvent struct {
	BaseEvent
	UserID         string `json:"user_id"`
	MilestoneID    string `json:"milestone_id"`
	MilestoneType  string `json:"milestone_type"`
	MilestoneValue int    `json:"milestone_value"`
}

// Payload implements Event interface.
func (e StreakMilestoneReachedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"milestone_id":    e.MilestoneID,
		"milestone_type":  e.MilestoneType,
		"milestone_value": e.MilestoneValue,
	}
}

// NewStreakMilestoneReachedEvent creates a new StreakMilestoneReachedEvent.
func NewStreakMilestoneReachedEvent(userID, milestoneID, milestoneType string, value int) StreakMilestoneReachedEvent {
	return StreakMilestoneReachedEvent{
		BaseEvent:      NewBaseEvent(EventStreakMilestoneReached, userID),
		UserID:         userID,
		MilestoneID:    milestoneID,
		MilestoneType:  milestoneType,
		MilestoneValue: value,
	}
}

// TimelineEntryAddedEvent is emitted after an entry is appended.
type TimelineEntryAddedEvent struct {
	BaseEvent
	UserID       string    `json:"user_id"`
	EntryID      string    `json:"entry_id"`
	EventName    string    `json:"event_name"`
	AttendedDate time.Time `json:"attended_date"`
}

// Payload implements Event interface.
func (e TimelineEntryAddedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"entry_id":      e.EntryID,
		"event_name":    e.EventName,
		"attended_date": e.AttendedDate.Format("2006-01-02"),
	}
}

// NewTimelineEntryAddedEvent creates a new TimelineEntryAddedEvent.
func NewTimelineEntryAddedEvent(userID, entryID, eventName string, attended time.Time) TimelineEntryAddedEvent {
	return TimelineEntryAddedEvent{
		BaseEvent:    NewBaseEvent(EventTimelineEntryAdded, userID),
		UserID:       userID,
		EntryID:      entryID,
		EventName:    eventName,
		AttendedDate: attended,
	}
}

// FlexCardCreatedEvent is emitted after a flex card is stored.
type FlexCardCreatedEvent struct {
	BaseEvent
	UserID    string `json:"user_id"`
	CardID    string `json:"card_id"`
	CardType  string `json:"card_type"`
	ShareCode string `json:"share_code"`
	IsPublic  bool   `json:"is_public"`
}

// Payload implements Event interface.
func (e FlexCardCreatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":    e.UserID,
		"card_id":    e.CardID,
		"card_type":  e.CardType,
		"share_code": e.ShareCode,
		"is_public":  e.IsPublic,
	}
}

// NewFlexCardCreatedEvent creates a new FlexCardCreatedEvent.
func NewFlexCardCreatedEvent(userID, cardID, cardType, shareCode string, isPublic bool) FlexCardCreatedEvent {
	return FlexCardCreatedEvent{
		BaseEvent: NewBaseEvent(EventFlexCardCreated, userID),
		UserID:    userID,
		CardID:    cardID,
		CardType:  cardType,
		ShareCode: shareCode,
		IsPublic:  isPublic,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Recap Events
// ═══════════════════════════════════════════════════════════════════════════

// RecapGeneratedEvent is emitted for every newly inserted weekly recap.
type RecapGeneratedEvent struct {
	BaseEvent
	UserID         string    `json:"user_id"`
	RecapID        string    `json:"recap_id"`
	WeekStart      time.Time `json:"week_start"`
	EventsAttended int       `json:"events_attended"`
}

// Payload implements Event interface.
func (e RecapGeneratedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":         e.UserID,
		"recap_id":        e.RecapID,
		"week_start":      e.WeekStart.Format("2006-01-02"),
		"events_attended": e.EventsAttended,
	}
}

// NewRecapGeneratedEvent creates a new RecapGeneratedEvent.
func NewRecapGeneratedEvent(userID, recapID string, weekStart time.Time, eventsAttended int) RecapGeneratedEvent {
	return RecapGeneratedEvent{
		BaseEvent:      NewBaseEvent(EventRecapGenerated, userID),
		UserID:         userID,
		RecapID:        recapID,
		WeekStart:      weekStart,
		EventsAttended: eventsAttended,
	}
}

// RecapBatchCompletedEvent summarizes a batch run. AggregateID is "system".
type RecapBatchCompletedEvent struct {
	BaseEvent
	WeekStart  time.Time `json:"week_start"`
	Processed  int       `json:"processed"`
	Successful int       `json:"successful"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
}

// Payload implements Event interface.
func (e RecapBatchCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"week_start": e.WeekStart.Format("2006-01-02"),
		"processed":  e.Processed,
		"successful": e.Successful,
		"skipped":    e.Skipped,
		"failed":     e.Failed,
	}
}

// NewRecapBatchCompletedEvent creates a new RecapBatchCompletedEvent.
func NewRecapBatchCompletedEvent(weekStart time.Time, processed, successful, skipped, failed int) RecapBatchCompletedEvent {
	return RecapBatchCompletedEvent{
		BaseEvent:  NewBaseEvent(EventRecapBatchCompleted, "system"),
		WeekStart:  weekStart,
		Processed:  processed,
		Successful: successful,
		Skipped:    skipped,
		Failed:     failed,
	}
}

// PushTokensDeactivatedEvent is emitted when the provider rejected tokens.
type PushTokensDeactivatedEvent struct {
	BaseEvent
	Count int `json:"count"`
}

// Payload implements Event interface.
func (e PushTokensDeactivatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{"count": e.Count}
}

// NewPushTokensDeactivatedEvent creates a new PushTokensDeactivatedEvent.
func NewPushTokensDeactivatedEvent(userID string, count int) PushTokensDeactivatedEvent {
	return PushTokensDeactivatedEvent{
		BaseEvent: NewBaseEvent(EventPushTokensDeactivated, userID),
		Count:     count,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(ctx context.Context, event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers. Handler failures are not
	// returned to the publisher.
	Publish(ctx context.Context, event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}

// NopPublisher discards events.
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, Event) error { return nil }
