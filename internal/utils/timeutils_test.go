package utils

import (
	"testing"
	"time"

	"github.com/crashstack/crash-radar/internal/models"
)

func TestDayWindowLocalMidnights(t *testing.T) {
	seoul, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	day := time.Date(2024, 5, 1, 15, 30, 0, 0, seoul)
	w := DayWindow(day, seoul)

	// KST midnight is 15:00 UTC the previous day.
	wantStart := time.Date(2024, 4, 30, 15, 0, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", w.Start, wantStart)
	}
	if w.Duration() != 24*time.Hour {
		t.Errorf("duration = %v, want 24h", w.Duration())
	}
	if w.Start.Location() != time.UTC {
		t.Errorf("window must be expressed in UTC")
	}
}

func TestWeekWindowCoversSevenDays(t *testing.T) {
	lastDay := time.Date(2024, 5, 7, 12, 0, 0, 0, time.UTC)
	w := WeekWindow(lastDay, time.UTC)

	if w.Duration() != 7*24*time.Hour {
		t.Errorf("duration = %v, want 168h", w.Duration())
	}
	wantEnd := time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC)
	if !w.End.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", w.End, wantEnd)
	}
}

func TestPriorWindowsContiguity(t *testing.T) {
	w := models.TimeRange{
		Start: time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC),
	}

	windows := PriorWindows(w, 7)
	if len(windows) != 7 {
		t.Fatalf("got %d windows, want 7", len(windows))
	}
	if !windows[0].End.Equal(w.Start) {
		t.Errorf("first prior window must end at the current window start")
	}
	for i, pw := range windows {
		if pw.Duration() != w.Duration() {
			t.Errorf("window %d duration = %v, want %v", i, pw.Duration(), w.Duration())
		}
		if i > 0 && !windows[i].End.Equal(windows[i-1].Start) {
			t.Errorf("window %d not contiguous with window %d", i, i-1)
		}
	}

	if got := PriorWindows(w, 0); got != nil {
		t.Errorf("zero depth should yield nil, got %v", got)
	}
}

func TestTimeRangeContainsHalfOpen(t *testing.T) {
	w := models.TimeRange{
		Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
	if !w.Contains(w.Start) {
		t.Errorf("start is inside the half-open range")
	}
	if w.Contains(w.End) {
		t.Errorf("end is outside the half-open range")
	}
}

func TestParseRFC3339(t *testing.T) {
	if _, err := ParseRFC3339(""); err == nil {
		t.Errorf("empty value should error")
	}
	got, err := ParseRFC3339("2024-05-01T10:00:00Z")
	if err != nil {
		t.Fatalf("ParseRFC3339: %v", err)
	}
	if got.Hour() != 10 {
		t.Errorf("parsed hour = %d", got.Hour())
	}
}
