// Package timeline содержит журнал посещений (party timeline) и чистую
// функцию агрегации статистики.
//
// Записи добавляются только в конец. Владелец может менять лишь
// highlight_moment и is_public. Агрегаты нигде не хранятся: статистика
// пересчитывается из полного списка записей при каждом запросе.
package timeline

import (
	"context"
	"strings"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENTRY
// ══════════════════════════════════════════════════════════════════════════════

const (
	maxEventNameLength = 200
	maxHighlightLength = 500
	maxDurationHours   = 48
)

// Entry - запись о посещённом событии.
type Entry struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	EventID         *string   `json:"event_id,omitempty"`
	EventName       string    `json:"event_name"`
	EventCity       string    `json:"event_city"`
	AttendedDate    time.Time `json:"attended_date"`
	DurationHours   *float64  `json:"duration_hours,omitempty"`
	RepEarned       int64     `json:"rep_earned"`
	HighlightMoment *string   `json:"highlight_moment,omitempty"`
	IsPublic        bool      `json:"is_public"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate проверяет запись перед добавлением.
func (e Entry) Validate(now time.Time) error {
	if strings.TrimSpace(e.UserID) == "" {
		return shared.ErrInvalidUserID
	}
	name := strings.TrimSpace(e.EventName)
	if name == "" || len(name) > maxEventNameLength {
		return shared.WrapError("timeline", "Validate", shared.ErrValidation, "event_name is required", shared.ErrInvalidTimelineEntry)
	}
	if e.AttendedDate.IsZero() {
		return shared.WrapError("timeline", "Validate", shared.ErrValidation, "attended_date is required", shared.ErrInvalidTimelineEntry)
	}
	// Допускаем сутки вперёд: события идут за полночь и в другом часовом поясе.
	if e.AttendedDate.After(now.Add(24 * time.Hour)) {
		return shared.WrapError("timeline", "Validate", shared.ErrValueOutOfRange, "attended_date is in the future", shared.ErrInvalidTimelineEntry)
	}
	if e.DurationHours != nil && (*e.DurationHours < 0 || *e.DurationHours > maxDurationHours) {
		return shared.WrapError("timeline", "Validate", shared.ErrValueOutOfRange, "duration_hours out of range", shared.ErrInvalidTimelineEntry)
	}
	if e.RepEarned < 0 {
		return shared.WrapError("timeline", "Validate", shared.ErrNegativeValue, "rep_earned cannot be negative", shared.ErrInvalidTimelineEntry)
	}
	if e.HighlightMoment != nil && len(*e.HighlightMoment) > maxHighlightLength {
		return shared.WrapError("timeline", "Validate", shared.ErrValueOutOfRange, "highlight_moment too long", shared.ErrInvalidTimelineEntry)
	}
	return nil
}

// Patch - изменяемые владельцем поля. nil означает "не менять".
type Patch struct {
	HighlightMoment *string `json:"highlight_moment,omitempty"`
	IsPublic        *bool   `json:"is_public,omitempty"`
}

// IsEmpty - нечего обновлять.
func (p Patch) IsEmpty() bool {
	return p.HighlightMoment == nil && p.IsPublic == nil
}

// Validate проверяет патч.
func (p Patch) Validate() error {
	if p.IsEmpty() {
		return shared.NewDomainError("timeline", "Update", shared.ErrEmptyValue, "nothing to update")
	}
	if p.HighlightMoment != nil && len(*p.HighlightMoment) > maxHighlightLength {
		return shared.NewDomainError("timeline", "Update", shared.ErrValueOutOfRange, "highlight_moment too long")
	}
	return nil
}

// Apply применяет патч к записи.
func (e *Entry) Apply(p Patch) {
	if p.HighlightMoment != nil {
		h := *p.HighlightMoment
		e.HighlightMoment = &h
	}
	if p.IsPublic != nil {
		e.IsPublic = *p.IsPublic
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище записей таймлайна.
type Repository interface {
	// Append добавляет запись.
	Append(ctx context.Context, e *Entry) error

	// ListByUser возвращает все записи пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string) ([]Entry, error)

	// ListBetween возвращает записи с attended_date в [from, to].
	ListBetween(ctx context.Context, userID string, from, to time.Time) ([]Entry, error)

	// UpdateOwned меняет запись, только если она принадлежит userID.
	// Чужая или отсутствующая запись - ErrTimelineEntryNotFound.
	UpdateOwned(ctx context.Context, userID, entryID string, p Patch) (*Entry, error)

	// UsersActiveSince возвращает пользователей с записями после since.
	UsersActiveSince(ctx context.Context, since time.Time) ([]string, error)
}
