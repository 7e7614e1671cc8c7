package timeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func hours(h float64) *float64 { return &h }

func TestComputeStats(t *testing.T) {
	// 2024-01-22 is a Monday.
	now := time.Date(2024, 1, 24, 12, 0, 0, 0, time.UTC)
	entries := []Entry{
		{EventName: "A", EventCity: "Berlin", AttendedDate: day("2024-01-01"), DurationHours: hours(4), RepEarned: 10},
		{EventName: "B", EventCity: "Lisbon", AttendedDate: day("2024-01-06"), RepEarned: 5},
		{EventName: "C", EventCity: "Berlin", AttendedDate: day("2024-01-20"), DurationHours: hours(2.5), RepEarned: 7},
		{EventName: "D", EventCity: "Lisbon", AttendedDate: day("2024-01-23"), DurationHours: hours(3), RepEarned: 3},
	}

	s := ComputeStats(entries, now, time.UTC)

	assert.Equal(t, 4, s.TotalNights)
	assert.InDelta(t, 9.5, s.TotalHours, 1e-9)
	assert.Equal(t, int64(25), s.TotalRep)
	assert.Equal(t, []string{"Lisbon", "Berlin"}, s.CitiesVisited)
	// Tie 2:2, Lisbon appears first in newest-first order.
	assert.Equal(t, "Lisbon", s.FavoriteCity)
	assert.Equal(t, PeriodStats{Nights: 1, Rep: 3}, s.ThisWeek)
	assert.Equal(t, PeriodStats{Nights: 4, Rep: 25}, s.ThisMonth)
	assert.Equal(t, 2, s.CurrentStreak)
	assert.Equal(t, 2, s.LongestStreak)
	require.NotNil(t, s.LastActivityDate)
	assert.Equal(t, day("2024-01-23"), *s.LastActivityDate)
}

func TestComputeStats_Empty(t *testing.T) {
	s := ComputeStats(nil, time.Now(), time.UTC)
	assert.Equal(t, 0, s.TotalNights)
	assert.Empty(t, s.CitiesVisited)
	assert.NotNil(t, s.CitiesVisited)
	assert.Equal(t, "", s.FavoriteCity)
	assert.Nil(t, s.LastActivityDate)
}

func TestComputeStats_Deterministic(t *testing.T) {
	now := day("2024-02-10")
	entries := []Entry{
		{EventCity: "Oslo", AttendedDate: day("2024-02-01")},
		{EventCity: "Rome", AttendedDate: day("2024-02-05")},
		{EventCity: "Oslo", AttendedDate: day("2024-02-08")},
	}
	a := ComputeStats(entries, now, time.UTC)
	b := ComputeStats([]Entry{entries[2], entries[0], entries[1]}, now, time.UTC)
	assert.Equal(t, a, b)
	assert.Equal(t, "Oslo", a.FavoriteCity)
}

func TestStats_Snapshot(t *testing.T) {
	now := day("2024-02-10")
	s := Stats{TotalNights: 9, CurrentStreak: 2, LongestStreak: 5, ThisMonth: PeriodStats{Nights: 3}}
	snap := s.Snapshot("u1", now)

	assert.Equal(t, "u1", snap.UserID)
	assert.Equal(t, 9, snap.TotalEventsAttended)
	assert.Equal(t, 3, snap.EventsThisMonth)
	assert.GreaterOrEqual(t, snap.LongestStreak, snap.CurrentStreak)
}

func TestEntry_Validate(t *testing.T) {
	now := day("2024-02-10")
	ok := Entry{UserID: "u1", EventName: "Warehouse", AttendedDate: day("2024-02-09")}
	assert.NoError(t, ok.Validate(now))

	bad := ok
	bad.EventName = " "
	assert.True(t, shared.IsValidation(bad.Validate(now)))

	bad = ok
	bad.AttendedDate = day("2024-03-01")
	assert.Error(t, bad.Validate(now))

	bad = ok
	bad.DurationHours = hours(-1)
	assert.Error(t, bad.Validate(now))
}

func TestPatch(t *testing.T) {
	assert.Error(t, Patch{}.Validate())

	h := "met the DJ"
	pub := true
	e := Entry{}
	e.Apply(Patch{HighlightMoment: &h, IsPublic: &pub})

	require.NotNil(t, e.HighlightMoment)
	assert.Equal(t, h, *e.HighlightMoment)
	assert.True(t, e.IsPublic)
}
