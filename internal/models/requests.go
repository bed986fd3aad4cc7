package models

import "fmt"

// Granularity selects the report cadence, which controls the classification
// profile (baseline depth and spike floor) applied to the window.
type Granularity string

const (
	GranularityDaily  Granularity = "daily"
	GranularityWeekly Granularity = "weekly"
)

// ParseGranularity validates a granularity string, defaulting empty to daily.
func ParseGranularity(s string) (Granularity, error) {
	switch Granularity(s) {
	case "":
		return GranularityDaily, nil
	case GranularityDaily, GranularityWeekly:
		return Granularity(s), nil
	default:
		return "", fmt.Errorf("unknown granularity %q", s)
	}
}

// ReportRequest describes one report run. The window is caller-supplied;
// the pipeline does not compute calendar boundaries itself.
type ReportRequest struct {
	Granularity Granularity  `json:"granularity"`
	Window      TimeRange    `json:"window"`
	Filter      WindowFilter `json:"filter"`
	DryRun      bool         `json:"dry_run"`
}
