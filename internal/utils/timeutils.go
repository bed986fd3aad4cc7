package utils

import (
	"fmt"
	"time"

	"github.com/crashstack/crash-radar/internal/models"
)

// ParseRFC3339 returns a time from the provided string or an error.
func ParseRFC3339(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time value")
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time: %w", err)
	}
	return t, nil
}

// DayWindow returns the [00:00, 24:00) range of the given calendar day in
// loc, expressed in UTC.
func DayWindow(day time.Time, loc *time.Location) models.TimeRange {
	if loc == nil {
		loc = time.UTC
	}
	local := day.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return models.TimeRange{
		Start: start.UTC(),
		End:   start.AddDate(0, 0, 1).UTC(),
	}
}

// WeekWindow returns the seven full days ending with the given calendar day
// in loc, expressed in UTC.
func WeekWindow(lastDay time.Time, loc *time.Location) models.TimeRange {
	day := DayWindow(lastDay, loc)
	return models.TimeRange{
		Start: day.End.AddDate(0, 0, -7),
		End:   day.End,
	}
}

// PriorWindows returns n contiguous, non-overlapping windows immediately
// preceding w, each the same duration as w, most-recent-first.
func PriorWindows(w models.TimeRange, n int) []models.TimeRange {
	if n <= 0 {
		return nil
	}
	span := w.Duration()
	windows := make([]models.TimeRange, 0, n)
	end := w.Start
	for i := 0; i < n; i++ {
		start := end.Add(-span)
		windows = append(windows, models.TimeRange{Start: start, End: end})
		end = start
	}
	return windows
}
