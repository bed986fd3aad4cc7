package models

import "time"

// Category is a classification bucket an issue can fall into. An issue may
// carry several categories at once.
type Category string

const (
	CategoryNew          Category = "new"
	CategoryHighPriority Category = "high_priority"
	CategorySpike        Category = "spike"
)

// SpikeReason names the statistical rule that flagged an issue as a spike.
type SpikeReason string

const (
	SpikeReasonGrowth   SpikeReason = "growth"
	SpikeReasonZScore   SpikeReason = "zscore"
	SpikeReasonMADScore SpikeReason = "madscore"
	SpikeReasonNewBurst SpikeReason = "new_burst"
)

// ClassificationResult is the classifier output for one issue. Score fields
// are nil when the corresponding ratio is mathematically undefined (zero
// baseline dispersion) or the rule was disabled for the run.
type ClassificationResult struct {
	IssueID        string        `json:"issue_id"`
	Title          string        `json:"title"`
	Level          Level         `json:"level"`
	EventCount     int           `json:"event_count"`
	UserCount      int           `json:"user_count"`
	Link           string        `json:"link,omitempty"`
	Categories     []Category    `json:"categories"`
	SpikeReasons   []SpikeReason `json:"spike_reasons,omitempty"`
	DayBeforeCount int           `json:"day_before_count"`

	GrowthMultiplier *float64 `json:"growth_multiplier,omitempty"`
	ZScore           *float64 `json:"zscore,omitempty"`
	MADScore         *float64 `json:"mad_score,omitempty"`

	BaselineMean     float64 `json:"baseline_mean"`
	BaselineStdDev   float64 `json:"baseline_std"`
	BaselineMedian   float64 `json:"baseline_median"`
	BaselineMAD      float64 `json:"baseline_mad"`
	BaselineCounts   []int   `json:"baseline_counts,omitempty"`
	BaselineDegraded bool    `json:"baseline_degraded,omitempty"`
}

// HasCategory reports whether the result carries the given category.
func (r ClassificationResult) HasCategory(c Category) bool {
	for _, have := range r.Categories {
		if have == c {
			return true
		}
	}
	return false
}

// HasReason reports whether the spike classification cited the given rule.
func (r ClassificationResult) HasReason(reason SpikeReason) bool {
	for _, have := range r.SpikeReasons {
		if have == reason {
			return true
		}
	}
	return false
}

// WindowAggregate summarises a whole window. Comparison, when present, is
// the immediately preceding period and is used only for delta display.
type WindowAggregate struct {
	TotalEvents      int              `json:"total_events"`
	FatalEvents      int              `json:"fatal_events"`
	UniqueIssueCount int              `json:"unique_issue_count"`
	AffectedUsers    int              `json:"affected_users"`
	PeriodStart      time.Time        `json:"period_start"`
	PeriodEnd        time.Time        `json:"period_end"`
	Comparison       *WindowAggregate `json:"comparison,omitempty"`
}

// DimensionLevel is one threshold-ladder evaluation.
type DimensionLevel struct {
	Level  int    `json:"level"`
	Status string `json:"status"`
	Value  int    `json:"value"`
}

// AlertLevel is the whole-report severity: the maximum across the four
// independent dimensions, never an average.
type AlertLevel struct {
	Overall    int                       `json:"overall_level"`
	Dimensions map[string]DimensionLevel `json:"per_dimension"`
}

// CrashFreeRate carries upstream-reported crash-free percentages. Values
// are nil when the sessions API had no data for the window.
type CrashFreeRate struct {
	Sessions *float64 `json:"sessions,omitempty"`
	Users    *float64 `json:"users,omitempty"`
}

// Report is the full output of one report run.
type Report struct {
	Granularity             Granularity            `json:"granularity"`
	Window                  TimeRange              `json:"window"`
	Aggregate               WindowAggregate        `json:"aggregate"`
	Results                 []ClassificationResult `json:"results"`
	Alert                   AlertLevel             `json:"alert"`
	CrashFree               *CrashFreeRate         `json:"crash_free,omitempty"`
	Recommendations         []string               `json:"recommendations,omitempty"`
	Advice                  *Advice                `json:"advice,omitempty"`
	DegradedBaselinePeriods int                    `json:"degraded_baseline_periods"`
	GeneratedAt             time.Time              `json:"generated_at"`
}

// ByCategory returns the results carrying the given category, preserving
// the classifier's display order.
func (r Report) ByCategory(c Category) []ClassificationResult {
	var out []ClassificationResult
	for _, res := range r.Results {
		if res.HasCategory(c) {
			out = append(out, res)
		}
	}
	return out
}

// TopIssues returns up to n results in display order.
func (r Report) TopIssues(n int) []ClassificationResult {
	if n <= 0 || n > len(r.Results) {
		n = len(r.Results)
	}
	return r.Results[:n]
}
