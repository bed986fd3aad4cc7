package models

import (
	"strings"
	"time"
)

// Level is the upstream severity of an issue.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelFatal   Level = "fatal"
)

// ParseLevel normalises an upstream level string. Unknown values map to info
// so that a malformed record degrades to "not a crash" instead of failing.
func ParseLevel(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "warning":
		return LevelWarning
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// IsCrash reports whether the level counts toward crash statistics.
func (l Level) IsCrash() bool {
	return l == LevelError || l == LevelFatal
}

// IssueSnapshot is one issue's observed state within a single time window.
// Snapshots are created per report run and never mutated.
type IssueSnapshot struct {
	IssueID    string    `json:"issue_id"`
	Title      string    `json:"title"`
	Level      Level     `json:"level"`
	EventCount int       `json:"event_count"`
	UserCount  int       `json:"user_count"`
	FirstSeen  time.Time `json:"first_seen"`
	LastSeen   time.Time `json:"last_seen"`
	Link       string    `json:"link,omitempty"`
}

// TimeRange bounds an aggregation window as [Start, End).
type TimeRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the half-open range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration returns the window length.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// IsZero reports whether the range is unset.
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// WindowFilter restricts a window fetch to an environment and/or release.
type WindowFilter struct {
	Environment string `json:"environment,omitempty"`
	Release     string `json:"release,omitempty"`
}
