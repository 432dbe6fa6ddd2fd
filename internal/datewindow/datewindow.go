// Package datewindow computes the start marker and billing-period
// sequence for a synchronization task. Markers are pure calendar values:
// time-of-day and timezone are always zeroed, so recomputing from an
// already-truncated input yields the same marker.
package datewindow

import (
	"fmt"
	"time"

	perrors "github.com/cloudforet-io/plugin-aws-hyperbilling-cost-datasource/pkg/errors"
)

// Granularity selects the marker layout.
type Granularity int

const (
	Monthly Granularity = iota
	Daily
)

const (
	MonthlyLayout = "2006-01"
	DailyLayout   = "2006-01-02"

	// DefaultResyncDays is the lookback applied to last_synchronized_at
	// when the data source does not configure one.
	DefaultResyncDays = 10

	// defaultBackfillDays bounds the first sync when neither an explicit
	// start nor a last-synchronized timestamp exists.
	defaultBackfillDays = 365

	// dailyWindowDays is the window step in the daily-granularity variant.
	dailyWindowDays = 31
)

// Layout returns the time layout for the granularity.
func (g Granularity) Layout() string {
	if g == Daily {
		return DailyLayout
	}
	return MonthlyLayout
}

// ComputeStart resolves the start marker for one planning pass.
//
// Precedence: an explicit start wins and is parsed with the fixed
// calendar layout; otherwise last_synchronized_at minus the resync
// lookback, truncated to the first day of its month; otherwise
// defaultBackfillDays before now, truncated the same way.
func ComputeStart(explicit string, lastSynced *time.Time, resyncDays int, now time.Time, g Granularity) (string, error) {
	if resyncDays <= 0 {
		resyncDays = DefaultResyncDays
	}

	var start time.Time
	switch {
	case explicit != "":
		parsed, err := time.Parse(g.Layout(), explicit)
		if err != nil {
			return "", perrors.NewInvalidParameter("start", fmt.Sprintf("start must match format %s", g.Layout()))
		}
		start = parsed
	case lastSynced != nil:
		start = lastSynced.AddDate(0, 0, -resyncDays)
		start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		start = now.UTC().AddDate(0, 0, -defaultBackfillDays)
		start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	}

	start = time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)

	return start.Format(g.Layout()), nil
}

// ExpandMonths expands a monthly start marker into the ordered sequence
// of billing periods from the marker through the current month,
// inclusive. The sequence is contiguous, monotonically increasing and
// stateless: expanding the same marker twice yields the same periods.
func ExpandMonths(start string, now time.Time) ([]string, error) {
	startTime, err := time.Parse(MonthlyLayout, start)
	if err != nil {
		return nil, perrors.NewInvalidParameter("start", fmt.Sprintf("start must match format %s", MonthlyLayout))
	}

	now = now.UTC()
	last := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var months []string
	for m := startTime; !m.After(last); m = m.AddDate(0, 1, 0) {
		months = append(months, m.Format(MonthlyLayout))
	}

	return months, nil
}

// Window is a single [Start, End) date range in the daily variant.
type Window struct {
	Start time.Time
	End   time.Time
}

// ExpandDailyWindows expands a daily start marker into contiguous
// 31-day windows, with the final window clipped to now.
func ExpandDailyWindows(start string, now time.Time) ([]Window, error) {
	startTime, err := time.Parse(DailyLayout, start)
	if err != nil {
		return nil, perrors.NewInvalidParameter("start", fmt.Sprintf("start must match format %s", DailyLayout))
	}

	now = now.UTC()
	var windows []Window
	for s := startTime; s.Before(now); {
		e := s.AddDate(0, 0, dailyWindowDays)
		if e.After(now) {
			e = now
		}
		windows = append(windows, Window{Start: s, End: e})
		s = e
	}

	return windows, nil
}
