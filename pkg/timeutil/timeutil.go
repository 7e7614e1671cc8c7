// Package timeutil provides calendar helpers for week and month windows.
// Weeks start on Monday. All helpers take an explicit location so that the
// API, the worker and the Lambda entrypoint agree on boundaries.
package timeutil

import "time"

// Day is the length of a calendar day without DST adjustment.
const Day = 24 * time.Hour

// StartOfDay returns 00:00:00 of t's day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// EndOfDay returns 23:59:59.999999999 of t's day in loc.
func EndOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-1), loc)
}

// StartOfWeek returns Monday 00:00:00 of the week containing t.
func StartOfWeek(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return StartOfDay(t.AddDate(0, 0, -(weekday - 1)), loc)
}

// EndOfWeek returns Sunday 23:59:59 of the week containing t.
func EndOfWeek(t time.Time, loc *time.Location) time.Time {
	return EndOfDay(StartOfWeek(t, loc).AddDate(0, 0, 6), loc)
}

// PreviousWeek returns the Monday..Sunday window of the last completed week
// relative to now.
func PreviousWeek(now time.Time, loc *time.Location) (start, end time.Time) {
	thisWeek := StartOfWeek(now, loc)
	start = thisWeek.AddDate(0, 0, -7)
	end = EndOfDay(start.AddDate(0, 0, 6), loc)
	return start, end
}

// StartOfMonth returns the first day of t's month at 00:00:00.
func StartOfMonth(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, loc)
}

// EndOfMonth returns the last instant of t's month.
func EndOfMonth(t time.Time, loc *time.Location) time.Time {
	return EndOfDay(StartOfMonth(t, loc).AddDate(0, 1, -1), loc)
}

// Within reports whether t lies in the closed interval [from, to].
func Within(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

// DaysBetween returns the number of calendar days from a to b.
// The result is negative when b is before a.
func DaysBetween(a, b time.Time, loc *time.Location) int {
	da := StartOfDay(a, loc)
	db := StartOfDay(b, loc)
	// Compare calendar dates in UTC so DST shifts do not produce 23h days.
	ua := time.Date(da.Year(), da.Month(), da.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(db.Year(), db.Month(), db.Day(), 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua) / Day)
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return DaysBetween(a, b, loc) == 0
}

// LoadLocation resolves name, falling back to UTC.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
