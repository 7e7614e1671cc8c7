// Package streak computes rolling weekly attendance streaks.
//
// Two attendance dates belong to the same run when they are at most
// MaxGapDays calendar days apart. The current streak is the run that contains
// the most recent date, and it only counts while that date is within
// MaxGapDays of now. Otherwise the current streak is 0 and the longest streak
// is kept.
package streak

import (
	"sort"
	"time"

	"github.com/afterhours/nightlife-core/pkg/timeutil"
)

// MaxGapDays is the largest gap between attendances that keeps a run alive.
const MaxGapDays = 7

// Result of a streak computation.
type Result struct {
	Current          int        `json:"current_streak"`
	Longest          int        `json:"longest_streak"`
	LastActivityDate *time.Time `json:"last_activity_date,omitempty"`
}

// DistinctDays collapses timestamps to calendar days in loc and returns them
// sorted newest first.
func DistinctDays(dates []time.Time, loc *time.Location) []time.Time {
	seen := make(map[time.Time]struct{}, len(dates))
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		day := timeutil.StartOfDay(d, loc)
		if _, ok := seen[day]; ok {
			continue
		}
		seen[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].After(out[j]) })
	return out
}

// Compute walks the distinct attendance days newest first.
func Compute(dates []time.Time, now time.Time, loc *time.Location) Result {
	days := DistinctDays(dates, loc)
	if len(days) == 0 {
		return Result{}
	}

	latest := days[0]
	res := Result{LastActivityDate: &latest}

	run := 1
	firstRun := 0
	for i := 1; i < len(days); i++ {
		if timeutil.DaysBetween(days[i], days[i-1], loc) <= MaxGapDays {
			run++
			continue
		}
		if firstRun == 0 {
			firstRun = run
		}
		res.Longest = max(res.Longest, run)
		run = 1
	}
	if firstRun == 0 {
		firstRun = run
	}
	res.Longest = max(res.Longest, run)

	if timeutil.DaysBetween(latest, now, loc) <= MaxGapDays {
		res.Current = firstRun
	}
	return res
}
