// Package recap содержит модель еженедельного отчёта и чистую функцию
// агрегации недели. Пакетная генерация живёт в application/command.
package recap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/timeline"
	"github.com/afterhours/nightlife-core/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEK WINDOW
// ══════════════════════════════════════════════════════════════════════════════

// Week - окно понедельник 00:00:00 .. воскресенье 23:59:59.
type Week struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// PreviousWeek возвращает последнюю завершённую неделю относительно now.
func PreviousWeek(now time.Time, loc *time.Location) Week {
	start, end := timeutil.PreviousWeek(now, loc)
	return Week{Start: start, End: end}
}

// Contains - попадает ли t в окно (границы включительно).
func (w Week) Contains(t time.Time) bool {
	return timeutil.Within(t, w.Start, w.End)
}

// Key - ключ недели для блокировок и логов.
func (w Week) Key() string {
	return w.Start.Format("2006-01-02")
}

// ══════════════════════════════════════════════════════════════════════════════
// ENTITIES
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyRecap - не более одного на (user_id, week_start).
type WeeklyRecap struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	WeekStart       time.Time `json:"week_start"`
	WeekEnd         time.Time `json:"week_end"`
	EventsAttended  int       `json:"events_attended"`
	TotalRSVPs      int       `json:"total_rsvps"`
	TopVenueID      *string   `json:"top_venue_id,omitempty"`
	TopEventType    *string   `json:"top_event_type,omitempty"`
	FriendsMet      int       `json:"friends_met"`
	StreakAtWeekEnd int       `json:"streak_at_week_end"`
	Highlights      []string  `json:"highlights"`
	CreatedAt       time.Time `json:"created_at"`
}

// RSVP - отметка пользователя о событии.
type RSVP struct {
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	VenueID   string    `json:"venue_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Input - всё, что нужно для агрегации одной недели одного пользователя.
type Input struct {
	UserID string
	Week   Week
	// RSVPs - RSVP пользователя за неделю, в порядке создания.
	RSVPs []RSVP
	// Attended - записи таймлайна за неделю.
	Attended []timeline.Entry
	// Following - текущий граф подписок (снимок на момент расчёта).
	Following []string
	// CoAttendees - RSVP других пользователей на события из RSVPs.
	CoAttendees []RSVP
	// StreakAtWeekEnd - текущий стрик из user_streaks.
	StreakAtWeekEnd int
}

// maxHighlights ограничивает список хайлайтов.
const maxHighlights = 5

// Aggregate строит отчёт. ID и CreatedAt заполняет вызывающий код.
func Aggregate(in Input) WeeklyRecap {
	r := WeeklyRecap{
		UserID:          in.UserID,
		WeekStart:       in.Week.Start,
		WeekEnd:         in.Week.End,
		StreakAtWeekEnd: in.StreakAtWeekEnd,
		Highlights:      []string{},
	}

	var rsvps []RSVP
	for _, rv := range in.RSVPs {
		if in.Week.Contains(rv.CreatedAt) {
			rsvps = append(rsvps, rv)
		}
	}
	r.TotalRSVPs = len(rsvps)

	types := make([]string, 0, len(rsvps))
	venues := make([]string, 0, len(rsvps))
	for _, rv := range rsvps {
		types = append(types, rv.EventType)
		venues = append(venues, rv.VenueID)
	}
	r.TopEventType = Mode(types)
	r.TopVenueID = Mode(venues)

	r.FriendsMet = FriendsMet(in.UserID, rsvps, in.Following, in.CoAttendees)

	var attended []timeline.Entry
	for _, e := range in.Attended {
		if in.Week.Contains(e.AttendedDate) {
			attended = append(attended, e)
		}
	}
	r.EventsAttended = len(attended)
	r.Highlights = Highlights(attended, in.StreakAtWeekEnd)
	return r
}

// Mode возвращает самое частое непустое значение. При равенстве побеждает
// значение, встреченное первым. nil, если значений нет.
func Mode(values []string) *string {
	counts := make(map[string]int, len(values))
	var order []string
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, ok := counts[v]; !ok {
			order = append(order, v)
		}
		counts[v]++
	}
	var best string
	bestCount := 0
	for _, v := range order {
		if counts[v] > bestCount {
			best, bestCount = v, counts[v]
		}
	}
	if bestCount == 0 {
		return nil
	}
	return &best
}

// FriendsMet считает различных пользователей, на которых подписан userID и
// которые сделали RSVP хотя бы на одно событие из rsvps.
func FriendsMet(userID string, rsvps []RSVP, following []string, coAttendees []RSVP) int {
	if len(rsvps) == 0 || len(following) == 0 {
		return 0
	}
	events := make(map[string]struct{}, len(rsvps))
	for _, rv := range rsvps {
		events[rv.EventID] = struct{}{}
	}
	follows := make(map[string]struct{}, len(following))
	for _, f := range following {
		follows[f] = struct{}{}
	}

	met := make(map[string]struct{})
	for _, co := range coAttendees {
		if co.UserID == userID {
			continue
		}
		if _, ok := events[co.EventID]; !ok {
			continue
		}
		if _, ok := follows[co.UserID]; ok {
			met[co.UserID] = struct{}{}
		}
	}
	return len(met)
}

// Highlights собирает короткие строки для карточки недели.
func Highlights(attended []timeline.Entry, streak int) []string {
	out := []string{}
	cities := make([]string, 0, len(attended))
	for _, e := range attended {
		if e.HighlightMoment != nil {
			if h := strings.TrimSpace(*e.HighlightMoment); h != "" && len(out) < maxHighlights-2 {
				out = append(out, h)
			}
		}
		cities = append(cities, strings.TrimSpace(e.EventCity))
	}
	if city := Mode(cities); city != nil && len(attended) > 1 {
		out = append(out, fmt.Sprintf("Most nights in %s", *city))
	}
	if streak >= 2 {
		out = append(out, fmt.Sprintf("%d-week streak going", streak))
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository - хранилище отчётов.
type Repository interface {
	// Exists проверяет наличие отчёта за неделю.
	Exists(ctx context.Context, userID string, weekStart time.Time) (bool, error)

	// Insert добавляет отчёт. Уникальный индекс - страховка: при конфликте
	// inserted = false без ошибки.
	Insert(ctx context.Context, r *WeeklyRecap) (inserted bool, err error)

	// GetForWeek возвращает отчёт или ErrNotFound.
	GetForWeek(ctx context.Context, userID string, weekStart time.Time) (*WeeklyRecap, error)

	// ListByUser возвращает отчёты пользователя, новые первыми.
	ListByUser(ctx context.Context, userID string, limit int) ([]WeeklyRecap, error)
}

// ActivityReader читает данные соседних подсистем (RSVP, подписки),
// которыми ядро не владеет.
type ActivityReader interface {
	// ActiveUsers - пользователи с RSVP или посещениями в окне.
	ActiveUsers(ctx context.Context, w Week) ([]string, error)

	// RSVPs - RSVP пользователя, созданные в окне.
	RSVPs(ctx context.Context, userID string, w Week) ([]RSVP, error)

	// CoAttendees - RSVP других пользователей на указанные события.
	CoAttendees(ctx context.Context, userID string, eventIDs []string) ([]RSVP, error)

	// Following - на кого подписан пользователь сейчас.
	Following(ctx context.Context, userID string) ([]string, error)

	// FollowerCount - число подписчиков, для достижений.
	FollowerCount(ctx context.Context, userID string) (int64, error)
}
