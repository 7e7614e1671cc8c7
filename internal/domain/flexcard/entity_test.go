package flexcard

import (
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/afterhours/nightlife-core/internal/domain/shared"
	"github.com/afterhours/nightlife-core/internal/domain/timeline"
)

var urlSafe = regexp.MustCompile(`^[a-z0-9-]+$`)

func TestNewShareCode_URLSafeAndUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		code := NewShareCode("Ünïcode Night: Berlin × Lisbon!!! Extra long title that goes on")
		assert.Regexp(t, urlSafe, code)
		assert.Equal(t, code, url.PathEscape(code))
		assert.False(t, seen[code])
		seen[code] = true
	}
	assert.Regexp(t, urlSafe, NewShareCode(""))
}

func TestBuild_AllTypes(t *testing.T) {
	now := time.Date(2024, 3, 15, 20, 0, 0, 0, time.UTC)
	s := timeline.Stats{
		TotalNights:   12,
		TotalHours:    40.5,
		TotalRep:      300,
		CitiesVisited: []string{"Berlin", "Paris"},
		CurrentStreak: 3,
		LongestStreak: 6,
		FavoriteCity:  "Berlin",
		ThisWeek:      timeline.PeriodStats{Nights: 1, Rep: 20},
		ThisMonth:     timeline.PeriodStats{Nights: 4, Rep: 90},
	}

	weekly := Build("u1", TypeWeeklyRecap, s, true, now)
	assert.Equal(t, "My Week Out", weekly.Title)
	assert.Equal(t, "1 night and 20 rep this week", weekly.Subtitle)
	assert.Equal(t, 1, weekly.Stats["nights"])

	monthly := Build("u1", TypeMonthlyStats, s, true, now)
	assert.Equal(t, "March 2024 Nightlife", monthly.Title)
	assert.Equal(t, "4 nights across 2 cities", monthly.Subtitle)

	milestone := Build("u1", TypeMilestone, s, false, now)
	assert.Equal(t, "12 Nights Out", milestone.Title)
	assert.False(t, milestone.IsPublic)

	streak := Build("u1", TypeStreak, s, true, now)
	assert.Equal(t, "3-Week Streak", streak.Title)
	assert.Equal(t, "Longest run: 6 weeks", streak.Subtitle)
	assert.Regexp(t, `^3-week-streak-[0-9a-f]{8}$`, streak.ShareCode)
}

func TestPublic_PrivateCardIsNotFound(t *testing.T) {
	card := &FlexCard{ShareCode: "abc", IsPublic: false, UserID: "u1"}
	_, err := card.Public()
	assert.True(t, shared.IsNotFound(err))
	assert.False(t, shared.IsForbidden(err))

	card.IsPublic = true
	v, err := card.Public()
	require.NoError(t, err)
	assert.Equal(t, "abc", v.ShareCode)
}

func TestParseCardType(t *testing.T) {
	ct, err := ParseCardType(" Streak ")
	require.NoError(t, err)
	assert.Equal(t, TypeStreak, ct)

	_, err = ParseCardType("yearly")
	assert.True(t, shared.IsValidation(err))
}
