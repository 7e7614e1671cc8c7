package recap

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterhours/nightlife-core/internal/domain/timeline"
)

func week() Week {
	return PreviousWeek(time.Date(2024, 1, 17, 9, 0, 0, 0, time.UTC), time.UTC)
}

func at(day int, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestPreviousWeek(t *testing.T) {
	w := week()
	assert.Equal(t, "2024-01-08", w.Key())
	assert.True(t, w.Contains(at(14, 23)))
	assert.False(t, w.Contains(at(15, 0)))
	assert.False(t, w.Contains(at(7, 23)))
}

func TestMode_TiesGoToFirstSeen(t *testing.T) {
	got := Mode([]string{"club", "bar", "bar", "club", ""})
	require.NotNil(t, got)
	assert.Equal(t, "club", *got)

	assert.Nil(t, Mode(nil))
	assert.Nil(t, Mode([]string{"", ""}))
}

func TestFriendsMet(t *testing.T) {
	rsvps := []RSVP{{UserID: "me", EventID: "e1"}, {UserID: "me", EventID: "e2"}}
	following := []string{"alice", "bob", "carol"}
	co := []RSVP{
		{UserID: "alice", EventID: "e1"},
		{UserID: "alice", EventID: "e2"},
		{UserID: "bob", EventID: "e9"},
		{UserID: "dave", EventID: "e1"},
		{UserID: "carol", EventID: "e2"},
		{UserID: "me", EventID: "e1"},
	}
	assert.Equal(t, 2, FriendsMet("me", rsvps, following, co))
	assert.Equal(t, 0, FriendsMet("me", nil, following, co))
}

func TestAggregate(t *testing.T) {
	h := "closing set was unreal"
	in := Input{
		UserID: "me",
		Week:   week(),
		RSVPs: []RSVP{
			{UserID: "me", EventID: "e1", EventType: "techno", VenueID: "v1", CreatedAt: at(8, 10)},
			{UserID: "me", EventID: "e2", EventType: "house", VenueID: "v2", CreatedAt: at(10, 10)},
			{UserID: "me", EventID: "e3", EventType: "house", VenueID: "v2", CreatedAt: at(12, 10)},
			{UserID: "me", EventID: "e4", EventType: "jazz", VenueID: "v3", CreatedAt: at(16, 10)},
		},
		Attended: []timeline.Entry{
			{EventCity: "Berlin", AttendedDate: at(9, 0), HighlightMoment: &h},
			{EventCity: "Berlin", AttendedDate: at(13, 0)},
			{EventCity: "Paris", AttendedDate: at(20, 0)},
		},
		Following:       []string{"alice"},
		CoAttendees:     []RSVP{{UserID: "alice", EventID: "e2"}, {UserID: "alice", EventID: "e4"}},
		StreakAtWeekEnd: 4,
	}

	r := Aggregate(in)

	assert.Equal(t, 3, r.TotalRSVPs)
	assert.Equal(t, 2, r.EventsAttended)
	require.NotNil(t, r.TopEventType)
	assert.Equal(t, "house", *r.TopEventType)
	require.NotNil(t, r.TopVenueID)
	assert.Equal(t, "v2", *r.TopVenueID)
	assert.Equal(t, 1, r.FriendsMet)
	assert.Equal(t, 4, r.StreakAtWeekEnd)
	assert.Equal(t, []string{h, "Most nights in Berlin", "4-week streak going"}, r.Highlights)
	assert.Equal(t, in.Week.Start, r.WeekStart)
}

func TestAggregate_EmptyWeek(t *testing.T) {
	r := Aggregate(Input{UserID: "me", Week: week()})
	assert.Zero(t, r.TotalRSVPs)
	assert.Nil(t, r.TopEventType)
	assert.NotNil(t, r.Highlights)
}
