package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/crashstack/crash-radar/internal/baseline"
	"github.com/crashstack/crash-radar/internal/classify"
	"github.com/crashstack/crash-radar/internal/models"
	"github.com/crashstack/crash-radar/internal/severity"
)

var runWindow = models.TimeRange{
	Start: time.Date(2024, 5, 8, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC),
}

// fakeFetcher serves the current window and all baseline periods from
// in-memory data keyed by window start.
type fakeFetcher struct {
	current   []models.IssueSnapshot
	prior     map[time.Time][]models.IssueSnapshot
	priorErr  map[time.Time]error
	crashFree models.CrashFreeRate
	rateErr   error
}

func (f *fakeFetcher) FetchIssueWindow(_ context.Context, window models.TimeRange, _ models.WindowFilter) ([]models.IssueSnapshot, error) {
	if window.Start.Equal(runWindow.Start) {
		return f.current, nil
	}
	if err := f.priorErr[window.Start]; err != nil {
		return nil, err
	}
	return f.prior[window.Start], nil
}

func (f *fakeFetcher) FetchCrashFreeRate(_ context.Context, _ models.TimeRange, _ models.WindowFilter) (models.CrashFreeRate, error) {
	if f.rateErr != nil {
		return models.CrashFreeRate{}, f.rateErr
	}
	return f.crashFree, nil
}

type fakeAnnotator struct {
	advice *models.Advice
	err    error
	called bool
}

func (f *fakeAnnotator) Annotate(_ context.Context, _ models.Report) (*models.Advice, error) {
	f.called = true
	return f.advice, f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestPipeline(fetcher *fakeFetcher, annotator Annotator) *Pipeline {
	logger := quietLogger()
	return NewPipeline(
		logger,
		fetcher,
		baseline.NewSampler(fetcher, logger),
		annotator,
		nil,
		classify.DefaultDaily(),
		classify.DefaultWeekly(),
		severity.DefaultLadders(),
	)
}

func dailyRequest() models.ReportRequest {
	return models.ReportRequest{
		Granularity: models.GranularityDaily,
		Window:      runWindow,
	}
}

func TestPipelineRunEndToEnd(t *testing.T) {
	prior := make(map[time.Time][]models.IssueSnapshot)
	for i := 1; i <= 7; i++ {
		start := runWindow.Start.AddDate(0, 0, -i)
		prior[start] = []models.IssueSnapshot{
			{IssueID: "spiky", Level: models.LevelError, EventCount: 10},
		}
	}

	sessions := 99.5
	fetcher := &fakeFetcher{
		current: []models.IssueSnapshot{
			{IssueID: "spiky", Title: "NPE", Level: models.LevelError, EventCount: 80, UserCount: 12,
				FirstSeen: runWindow.Start.AddDate(0, 0, -30)},
			{IssueID: "fatal", Title: "OOM", Level: models.LevelFatal, EventCount: 25, UserCount: 5,
				FirstSeen: runWindow.Start.AddDate(0, 0, -3)},
			{IssueID: "noise", Title: "deprecation", Level: models.LevelWarning, EventCount: 900,
				FirstSeen: runWindow.Start.Add(time.Hour)},
		},
		prior:     prior,
		crashFree: models.CrashFreeRate{Sessions: &sessions},
	}

	pipeline := newTestPipeline(fetcher, nil)
	report, err := pipeline.Run(context.Background(), dailyRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Warning-level noise is excluded everywhere.
	if len(report.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(report.Results))
	}
	if report.Aggregate.TotalEvents != 105 {
		t.Errorf("total events = %d, want 105", report.Aggregate.TotalEvents)
	}
	if report.Aggregate.FatalEvents != 25 {
		t.Errorf("fatal events = %d, want 25", report.Aggregate.FatalEvents)
	}
	if report.Aggregate.UniqueIssueCount != 2 {
		t.Errorf("unique issues = %d, want 2", report.Aggregate.UniqueIssueCount)
	}

	spiky := report.Results[0]
	if spiky.IssueID != "spiky" {
		t.Fatalf("results not ordered by event count, got %s first", spiky.IssueID)
	}
	if !spiky.HasCategory(models.CategorySpike) {
		t.Errorf("8x growth over a stable baseline should spike, got %v", spiky.Categories)
	}
	if !spiky.HasReason(models.SpikeReasonGrowth) {
		t.Errorf("expected growth reason, got %v", spiky.SpikeReasons)
	}
	if spiky.DayBeforeCount != 10 {
		t.Errorf("day before count = %d, want 10", spiky.DayBeforeCount)
	}

	if report.Aggregate.Comparison == nil {
		t.Fatalf("expected comparison aggregate from the previous period")
	}
	if report.Aggregate.Comparison.TotalEvents != 10 {
		t.Errorf("comparison total = %d, want 10", report.Aggregate.Comparison.TotalEvents)
	}

	// 80-event single issue reaches notice; 25 fatal events reach caution.
	if report.Alert.Overall != 2 {
		t.Errorf("alert level = %d, want 2", report.Alert.Overall)
	}

	if report.CrashFree == nil || report.CrashFree.Sessions == nil || *report.CrashFree.Sessions != 99.5 {
		t.Errorf("crash free = %+v", report.CrashFree)
	}
	if len(report.Recommendations) == 0 {
		t.Errorf("expected default recommendations")
	}
	if report.DegradedBaselinePeriods != 0 {
		t.Errorf("degraded periods = %d, want 0", report.DegradedBaselinePeriods)
	}
}

func TestPipelineCurrentWindowFailureAborts(t *testing.T) {
	pipeline := newTestPipeline(&fakeFetcher{}, nil)
	pipeline.fetcher = &failingFetcher{err: errors.New("upstream down")}

	if _, err := pipeline.Run(context.Background(), dailyRequest()); err == nil {
		t.Fatalf("expected error when the current window fetch fails")
	}
}

type failingFetcher struct{ err error }

func (f *failingFetcher) FetchIssueWindow(context.Context, models.TimeRange, models.WindowFilter) ([]models.IssueSnapshot, error) {
	return nil, f.err
}

func (f *failingFetcher) FetchCrashFreeRate(context.Context, models.TimeRange, models.WindowFilter) (models.CrashFreeRate, error) {
	return models.CrashFreeRate{}, f.err
}

func TestPipelineDegradedFirstPeriodDisablesGrowthAndComparison(t *testing.T) {
	prior := make(map[time.Time][]models.IssueSnapshot)
	priorErr := map[time.Time]error{
		runWindow.Start.AddDate(0, 0, -1): errors.New("503"),
	}
	for i := 2; i <= 7; i++ {
		prior[runWindow.Start.AddDate(0, 0, -i)] = []models.IssueSnapshot{
			{IssueID: "a", Level: models.LevelError, EventCount: 10},
		}
	}

	fetcher := &fakeFetcher{
		current: []models.IssueSnapshot{
			{IssueID: "a", Level: models.LevelError, EventCount: 80, UserCount: 1,
				FirstSeen: runWindow.Start.AddDate(0, 0, -30)},
		},
		prior:    prior,
		priorErr: priorErr,
	}

	pipeline := newTestPipeline(fetcher, nil)
	report, err := pipeline.Run(context.Background(), dailyRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	res := report.Results[0]
	if res.GrowthMultiplier != nil {
		t.Errorf("growth must be disabled when the previous period is degraded")
	}
	if report.Aggregate.Comparison != nil {
		t.Errorf("comparison must be omitted when the previous period is degraded")
	}
	if report.DegradedBaselinePeriods != 1 {
		t.Errorf("degraded periods = %d, want 1", report.DegradedBaselinePeriods)
	}
	if !res.HasReason(models.SpikeReasonZScore) && !res.HasReason(models.SpikeReasonMADScore) {
		t.Errorf("statistical rules should still fire, got %v", res.SpikeReasons)
	}
}

func TestPipelineCrashFreeFailureIsNonFatal(t *testing.T) {
	fetcher := &fakeFetcher{
		current: []models.IssueSnapshot{
			{IssueID: "a", Level: models.LevelError, EventCount: 5,
				FirstSeen: runWindow.Start.AddDate(0, 0, -3)},
		},
		rateErr: errors.New("sessions api down"),
	}

	pipeline := newTestPipeline(fetcher, nil)
	report, err := pipeline.Run(context.Background(), dailyRequest())
	if err != nil {
		t.Fatalf("crash-free failure must not abort the run: %v", err)
	}
	if report.CrashFree != nil {
		t.Errorf("report should omit crash-free rates on failure")
	}
}

func TestPipelineAnnotatorFailureIsNonFatal(t *testing.T) {
	fetcher := &fakeFetcher{
		current: []models.IssueSnapshot{
			{IssueID: "a", Level: models.LevelError, EventCount: 5,
				FirstSeen: runWindow.Start.AddDate(0, 0, -3)},
		},
	}
	annotator := &fakeAnnotator{err: errors.New("llm quota exhausted")}

	pipeline := newTestPipeline(fetcher, annotator)
	report, err := pipeline.Run(context.Background(), dailyRequest())
	if err != nil {
		t.Fatalf("annotator failure must not abort the run: %v", err)
	}
	if !annotator.called {
		t.Errorf("annotator should have been invoked")
	}
	if report.Advice != nil {
		t.Errorf("report should omit advice on failure")
	}
}

func TestPipelineAnnotatorAdviceAttached(t *testing.T) {
	fetcher := &fakeFetcher{
		current: []models.IssueSnapshot{
			{IssueID: "a", Level: models.LevelError, EventCount: 5,
				FirstSeen: runWindow.Start.AddDate(0, 0, -3)},
		},
	}
	annotator := &fakeAnnotator{advice: &models.Advice{Monitoring: []string{"watch a"}}}

	pipeline := newTestPipeline(fetcher, annotator)
	report, err := pipeline.Run(context.Background(), dailyRequest())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Advice == nil || len(report.Advice.Monitoring) != 1 {
		t.Errorf("advice not attached: %+v", report.Advice)
	}
}

func TestPipelineWeeklyUsesWeeklyProfile(t *testing.T) {
	// 40 events clears the daily floor (30) but not the weekly one (50):
	// the same data must not spike at weekly granularity.
	build := func() *fakeFetcher {
		prior := make(map[time.Time][]models.IssueSnapshot)
		return &fakeFetcher{
			current: []models.IssueSnapshot{
				{IssueID: "a", Level: models.LevelError, EventCount: 40, UserCount: 1,
					FirstSeen: runWindow.Start.AddDate(0, 0, -30)},
			},
			prior: prior,
		}
	}

	daily, err := newTestPipeline(build(), nil).Run(context.Background(), dailyRequest())
	if err != nil {
		t.Fatalf("daily run: %v", err)
	}
	weeklyReq := dailyRequest()
	weeklyReq.Granularity = models.GranularityWeekly
	weekly, err := newTestPipeline(build(), nil).Run(context.Background(), weeklyReq)
	if err != nil {
		t.Fatalf("weekly run: %v", err)
	}

	if !daily.Results[0].HasCategory(models.CategorySpike) {
		t.Errorf("daily profile should spike at 40 events over an all-zero baseline")
	}
	if weekly.Results[0].HasCategory(models.CategorySpike) {
		t.Errorf("weekly profile must hold the higher floor")
	}
}
