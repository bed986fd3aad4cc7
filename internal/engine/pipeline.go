package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crashstack/crash-radar/internal/baseline"
	"github.com/crashstack/crash-radar/internal/classify"
	"github.com/crashstack/crash-radar/internal/models"
	"github.com/crashstack/crash-radar/internal/severity"
)

// WindowFetcher is the upstream data source the pipeline reads from.
type WindowFetcher interface {
	FetchIssueWindow(ctx context.Context, window models.TimeRange, filter models.WindowFilter) ([]models.IssueSnapshot, error)
	FetchCrashFreeRate(ctx context.Context, window models.TimeRange, filter models.WindowFilter) (models.CrashFreeRate, error)
}

// Annotator adds LLM-generated advice to a finished report.
type Annotator interface {
	Annotate(ctx context.Context, report models.Report) (*models.Advice, error)
}

// Pipeline orchestrates one report run: fetch the current window, sample
// baselines, classify, aggregate, and level. All inputs are materialized
// before classification begins; the pipeline holds no mutable state across
// runs and is deterministic given the fetched data.
type Pipeline struct {
	logger    *slog.Logger
	fetcher   WindowFetcher
	sampler   *baseline.Sampler
	annotator Annotator
	rules     *RuleEngine

	daily   classify.Config
	weekly  classify.Config
	ladders severity.Ladders
}

// NewPipeline constructs a Pipeline. annotator and rules may be nil.
func NewPipeline(
	logger *slog.Logger,
	fetcher WindowFetcher,
	sampler *baseline.Sampler,
	annotator Annotator,
	rules *RuleEngine,
	daily, weekly classify.Config,
	ladders severity.Ladders,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		logger:    logger,
		fetcher:   fetcher,
		sampler:   sampler,
		annotator: annotator,
		rules:     rules,
		daily:     daily,
		weekly:    weekly,
		ladders:   ladders,
	}
}

// Run executes a report for the requested window. A current-window fetch
// failure aborts the run; baseline failures degrade to zero-filled periods
// and only weaken spike confidence.
func (p *Pipeline) Run(ctx context.Context, req models.ReportRequest) (models.Report, error) {
	if p.fetcher == nil {
		return models.Report{}, fmt.Errorf("window fetcher not configured")
	}

	cfg := p.daily
	if req.Granularity == models.GranularityWeekly {
		cfg = p.weekly
	}

	issues, err := p.fetcher.FetchIssueWindow(ctx, req.Window, req.Filter)
	if err != nil {
		return models.Report{}, fmt.Errorf("fetch current window: %w", err)
	}

	sample, err := p.sampler.Sample(ctx, issues, req.Window, req.Filter, cfg.BaselineDepth)
	if err != nil {
		return models.Report{}, fmt.Errorf("sample baselines: %w", err)
	}

	dayBefore := sample.DayBefore()
	if dayBefore == nil {
		p.logger.Warn("previous period unavailable, growth rule disabled for this run")
	}

	results := classify.Classify(issues, sample.Series, dayBefore, req.Window, cfg)

	aggregate := aggregateWindow(issues, req.Window)
	if len(sample.Periods) > 0 && !sample.Degraded[0] {
		comparison := aggregateWindow(sample.PeriodIssues[0], sample.Periods[0])
		aggregate.Comparison = &comparison
	}

	alert := severity.Evaluate(severity.Input{
		TotalEvents:          aggregate.TotalEvents,
		FatalEvents:          aggregate.FatalEvents,
		AffectedUsers:        aggregate.AffectedUsers,
		MaxSingleIssueEvents: maxEventCount(issues),
	}, p.ladders)

	report := models.Report{
		Granularity:             req.Granularity,
		Window:                  req.Window,
		Aggregate:               aggregate,
		Results:                 results,
		Alert:                   alert,
		DegradedBaselinePeriods: sample.DegradedCount(),
		GeneratedAt:             time.Now().UTC(),
	}

	if rate, err := p.fetcher.FetchCrashFreeRate(ctx, req.Window, req.Filter); err != nil {
		p.logger.Warn("crash-free rate unavailable", slog.Any("error", err))
	} else if rate.Sessions != nil || rate.Users != nil {
		report.CrashFree = &rate
	}

	report.Recommendations = p.recommendations(report)

	if p.annotator != nil {
		advice, err := p.annotator.Annotate(ctx, report)
		if err != nil {
			p.logger.Warn("report annotation failed", slog.Any("error", err))
		} else {
			report.Advice = advice
		}
	}

	return report, nil
}

func (p *Pipeline) recommendations(report models.Report) []string {
	if p.rules != nil {
		if recs := p.rules.Recommend(report); len(recs) > 0 {
			return recs
		}
	}
	return defaultRecommendations(report)
}

// aggregateWindow sums crash events and affected users over a window.
// Issues below error level or with zero events do not count toward the
// unique issue tally.
func aggregateWindow(issues []models.IssueSnapshot, window models.TimeRange) models.WindowAggregate {
	agg := models.WindowAggregate{
		PeriodStart: window.Start,
		PeriodEnd:   window.End,
	}
	for _, issue := range issues {
		if !issue.Level.IsCrash() {
			continue
		}
		agg.TotalEvents += issue.EventCount
		agg.AffectedUsers += issue.UserCount
		if issue.Level == models.LevelFatal {
			agg.FatalEvents += issue.EventCount
		}
		if issue.EventCount > 0 {
			agg.UniqueIssueCount++
		}
	}
	return agg
}

func maxEventCount(issues []models.IssueSnapshot) int {
	max := 0
	for _, issue := range issues {
		if issue.Level.IsCrash() && issue.EventCount > max {
			max = issue.EventCount
		}
	}
	return max
}
