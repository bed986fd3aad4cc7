package baseline

import (
	"context"
	"log/slog"

	"github.com/crashstack/crash-radar/internal/metrics"
	"github.com/crashstack/crash-radar/internal/models"
	"github.com/crashstack/crash-radar/internal/utils"
)

// Fetcher is the window data source the sampler draws baselines from.
type Fetcher interface {
	FetchIssueWindow(ctx context.Context, window models.TimeRange, filter models.WindowFilter) ([]models.IssueSnapshot, error)
}

// Sample is the result of one baseline pass: per-issue series over the
// historical periods plus the raw period data for the caller's own use
// (the most recent period doubles as the day-before comparison).
type Sample struct {
	// Series maps issue ID to its baseline, one entry per current-window
	// issue, each with exactly depth counts, most-recent-first.
	Series map[string]models.BaselineSeries
	// Periods are the historical windows, most-recent-first.
	Periods []models.TimeRange
	// PeriodIssues holds the fetched snapshots per period; nil for a
	// period whose fetch failed.
	PeriodIssues [][]models.IssueSnapshot
	// Degraded marks periods that were zero-filled after a failed fetch.
	Degraded []bool
}

// DegradedCount returns how many periods were zero-filled.
func (s Sample) DegradedCount() int {
	n := 0
	for _, d := range s.Degraded {
		if d {
			n++
		}
	}
	return n
}

// Sampler builds per-issue baseline series by fetching each historical
// comparison period from the upstream source.
type Sampler struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewSampler constructs a Sampler.
func NewSampler(fetcher Fetcher, logger *slog.Logger) *Sampler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{fetcher: fetcher, logger: logger}
}

// Sample fetches depth contiguous periods immediately preceding window and
// indexes each issue's event count per period. Issues absent from a period
// are recorded as zero, not dropped. A failed period fetch degrades that
// period to all-zero counts: the run continues, the period is flagged, and
// a warning distinguishes "fetch failed, assumed zero" from a genuinely
// quiet period. Only context cancellation aborts the pass.
func (s *Sampler) Sample(ctx context.Context, issues []models.IssueSnapshot, window models.TimeRange, filter models.WindowFilter, depth int) (Sample, error) {
	periods := utils.PriorWindows(window, depth)

	sample := Sample{
		Series:       make(map[string]models.BaselineSeries, len(issues)),
		Periods:      periods,
		PeriodIssues: make([][]models.IssueSnapshot, len(periods)),
		Degraded:     make([]bool, len(periods)),
	}

	periodCounts := make([]map[string]int, len(periods))
	for i, period := range periods {
		if err := ctx.Err(); err != nil {
			return Sample{}, err
		}

		snapshots, err := s.fetcher.FetchIssueWindow(ctx, period, filter)
		if err != nil {
			s.logger.Warn("baseline period fetch failed, assuming zero counts",
				slog.Time("period_start", period.Start),
				slog.Time("period_end", period.End),
				slog.Any("error", err))
			metrics.ObserveDegradedBaselinePeriod()
			sample.Degraded[i] = true
			periodCounts[i] = map[string]int{}
			continue
		}

		counts := make(map[string]int, len(snapshots))
		for _, snap := range snapshots {
			counts[snap.IssueID] = snap.EventCount
		}
		periodCounts[i] = counts
		sample.PeriodIssues[i] = snapshots
	}

	for _, issue := range issues {
		if _, ok := sample.Series[issue.IssueID]; ok {
			continue
		}
		series := models.BaselineSeries{
			IssueID:  issue.IssueID,
			Counts:   make([]int, len(periods)),
			Degraded: append([]bool(nil), sample.Degraded...),
		}
		for i, counts := range periodCounts {
			series.Counts[i] = counts[issue.IssueID]
		}
		sample.Series[issue.IssueID] = series
	}

	return sample, nil
}

// DayBefore builds the day-over-day comparison map from the most recent
// baseline period. It returns nil when that period's fetch failed, which
// disables the growth rule rather than feeding it zeros.
func (s Sample) DayBefore() map[string]int {
	if len(s.Periods) == 0 || s.Degraded[0] {
		return nil
	}
	counts := make(map[string]int, len(s.PeriodIssues[0]))
	for _, snap := range s.PeriodIssues[0] {
		counts[snap.IssueID] = snap.EventCount
	}
	return counts
}
