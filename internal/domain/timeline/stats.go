package timeline

import (
	"sort"
	"strings"
	"time"

	"github.com/afterhours/nightlife-core/internal/domain/streak"
	"github.com/afterhours/nightlife-core/pkg/timeutil"
)

// PeriodStats - агрегаты за неделю или месяц.
type PeriodStats struct {
	Nights int   `json:"nights"`
	Rep    int64 `json:"rep"`
}

// Stats - полная статистика пользователя.
type Stats struct {
	TotalNights      int         `json:"total_nights"`
	TotalHours       float64     `json:"total_hours"`
	TotalRep         int64       `json:"total_rep"`
	CitiesVisited    []string    `json:"cities_visited"`
	CurrentStreak    int         `json:"current_streak"`
	LongestStreak    int         `json:"longest_streak"`
	FavoriteCity     string      `json:"favorite_city,omitempty"`
	ThisWeek         PeriodStats `json:"this_week"`
	ThisMonth        PeriodStats `json:"this_month"`
	LastActivityDate *time.Time  `json:"last_activity_date,omitempty"`
}

// ComputeStats пересчитывает статистику из полного списка записей.
// Детерминирована: записи упорядочиваются по attended_date (новые первыми),
// при равенстве сохраняется входной порядок. "Первым встреченным" городом
// при равной частоте считается город из более свежей записи.
func ComputeStats(entries []Entry, now time.Time, loc *time.Location) Stats {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].AttendedDate.After(sorted[j].AttendedDate)
	})

	weekStart, weekEnd := timeutil.StartOfWeek(now, loc), timeutil.EndOfWeek(now, loc)
	monthStart, monthEnd := timeutil.StartOfMonth(now, loc), timeutil.EndOfMonth(now, loc)

	stats := Stats{
		TotalNights:   len(sorted),
		CitiesVisited: []string{},
	}

	cityCount := make(map[string]int)
	var cityOrder []string
	dates := make([]time.Time, 0, len(sorted))

	for _, e := range sorted {
		if e.DurationHours != nil {
			stats.TotalHours += *e.DurationHours
		}
		stats.TotalRep += e.RepEarned
		dates = append(dates, e.AttendedDate)

		if city := strings.TrimSpace(e.EventCity); city != "" {
			if _, ok := cityCount[city]; !ok {
				cityOrder = append(cityOrder, city)
			}
			cityCount[city]++
		}

		if timeutil.Within(e.AttendedDate, weekStart, weekEnd) {
			stats.ThisWeek.Nights++
			stats.ThisWeek.Rep += e.RepEarned
		}
		if timeutil.Within(e.AttendedDate, monthStart, monthEnd) {
			stats.ThisMonth.Nights++
			stats.ThisMonth.Rep += e.RepEarned
		}
	}

	stats.CitiesVisited = append(stats.CitiesVisited, cityOrder...)
	best := 0
	for _, city := range cityOrder {
		if cityCount[city] > best {
			best = cityCount[city]
			stats.FavoriteCity = city
		}
	}

	sr := streak.Compute(dates, now, loc)
	stats.CurrentStreak = sr.Current
	stats.LongestStreak = sr.Longest
	stats.LastActivityDate = sr.LastActivityDate
	return stats
}

// Snapshot переводит статистику в сохраняемый снимок стрика.
func (s Stats) Snapshot(userID string, now time.Time) streak.UserStreak {
	return streak.UserStreak{
		UserID:              userID,
		CurrentStreak:       s.CurrentStreak,
		LongestStreak:       s.LongestStreak,
		LastActivityDate:    s.LastActivityDate,
		TotalEventsAttended: s.TotalNights,
		EventsThisMonth:     s.ThisMonth.Nights,
		UpdatedAt:           now,
	}
}
