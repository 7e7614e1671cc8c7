package streak

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func dates(ss ...string) []time.Time {
	out := make([]time.Time, len(ss))
	for i, s := range ss {
		out[i] = d(s)
	}
	return out
}

func TestCompute_BrokenRunAnchorsOnLatest(t *testing.T) {
	res := Compute(dates("2024-01-01", "2024-01-06", "2024-01-20"), d("2024-01-22"), time.UTC)

	assert.Equal(t, 2, res.Longest)
	assert.Equal(t, 1, res.Current)
	require.NotNil(t, res.LastActivityDate)
	assert.Equal(t, d("2024-01-20"), *res.LastActivityDate)
}

func TestCompute_StaleStreakIsZero(t *testing.T) {
	res := Compute(dates("2024-01-01", "2024-01-06", "2024-01-12"), d("2024-01-20"), time.UTC)

	assert.Equal(t, 3, res.Longest)
	assert.Equal(t, 0, res.Current)
}

func TestCompute_ExactlySevenDaysContinues(t *testing.T) {
	res := Compute(dates("2024-01-01", "2024-01-08", "2024-01-15"), d("2024-01-22"), time.UTC)

	assert.Equal(t, 3, res.Longest)
	assert.Equal(t, 3, res.Current)
}

func TestCompute_EightDayGapBreaks(t *testing.T) {
	res := Compute(dates("2024-01-01", "2024-01-09"), d("2024-01-09"), time.UTC)

	assert.Equal(t, 1, res.Longest)
	assert.Equal(t, 1, res.Current)
}

func TestCompute_DuplicateDaysCollapse(t *testing.T) {
	in := []time.Time{
		time.Date(2024, 1, 1, 21, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 5, 22, 0, 0, 0, time.UTC),
	}
	res := Compute(in, d("2024-01-06"), time.UTC)

	assert.Equal(t, 2, res.Longest)
	assert.Equal(t, 2, res.Current)
}

func TestCompute_Empty(t *testing.T) {
	res := Compute(nil, d("2024-01-06"), time.UTC)
	assert.Equal(t, Result{}, res)
}

func TestCompute_InputOrderIrrelevant(t *testing.T) {
	a := Compute(dates("2024-03-01", "2024-02-01", "2024-03-05", "2024-02-06"), d("2024-03-06"), time.UTC)
	b := Compute(dates("2024-02-06", "2024-03-05", "2024-02-01", "2024-03-01"), d("2024-03-06"), time.UTC)
	assert.Equal(t, a, b)
	assert.Equal(t, 2, a.Current)
	assert.Equal(t, 2, a.Longest)
}

func TestCompute_LongestAlwaysAtLeastCurrent(t *testing.T) {
	base := d("2024-01-01")
	var in []time.Time
	for i := 0; i < 60; i++ {
		if i%5 == 0 {
			continue
		}
		in = append(in, base.AddDate(0, 0, i*3+i%4))
		res := Compute(in, in[len(in)-1].AddDate(0, 0, i%9), time.UTC)
		assert.GreaterOrEqual(t, res.Longest, res.Current)
	}
}

func TestMilestonesFor(t *testing.T) {
	now := d("2024-02-01")
	ms := MilestonesFor(UserStreak{UserID: "u1", CurrentStreak: 0, LongestStreak: 8, TotalEventsAttended: 12}, now)

	var streakValues, nightValues []int
	for _, m := range ms {
		assert.Equal(t, "u1", m.UserID)
		switch m.MilestoneType {
		case MilestoneWeeklyStreak:
			streakValues = append(streakValues, m.MilestoneValue)
		case MilestoneNightsOut:
			nightValues = append(nightValues, m.MilestoneValue)
		}
	}
	assert.Equal(t, []int{3, 7}, streakValues)
	assert.Equal(t, []int{1, 10}, nightValues)
}
