package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/crashstack/crash-radar/internal/baseline"
	"github.com/crashstack/crash-radar/internal/classify"
	"github.com/crashstack/crash-radar/internal/engine"
	"github.com/crashstack/crash-radar/internal/models"
	"github.com/crashstack/crash-radar/internal/render"
	"github.com/crashstack/crash-radar/internal/severity"
	"github.com/crashstack/crash-radar/internal/utils"
)

type stubFetcher struct {
	issues []models.IssueSnapshot
	err    error
}

func (f *stubFetcher) FetchIssueWindow(_ context.Context, _ models.TimeRange, _ models.WindowFilter) ([]models.IssueSnapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.issues, nil
}

func (f *stubFetcher) FetchCrashFreeRate(_ context.Context, _ models.TimeRange, _ models.WindowFilter) (models.CrashFreeRate, error) {
	return models.CrashFreeRate{}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newService(t *testing.T, fetcher *stubFetcher, webhookURL string) *ReportService {
	t.Helper()
	logger := quietLogger()
	pipeline := engine.NewPipeline(
		logger,
		fetcher,
		baseline.NewSampler(fetcher, logger),
		nil,
		nil,
		classify.DefaultDaily(),
		classify.DefaultWeekly(),
		severity.DefaultLadders(),
	)
	return NewReportService(logger, pipeline, render.NewRenderer(time.UTC), render.NewNotifier(webhookURL, time.Second, logger))
}

func dailyRequest(dryRun bool) models.ReportRequest {
	day := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	return models.ReportRequest{
		Granularity: models.GranularityDaily,
		Window:      utils.DayWindow(day, time.UTC),
		DryRun:      dryRun,
	}
}

func TestRunDeliversToWebhook(t *testing.T) {
	var posted struct {
		Text   string           `json:"text"`
		Blocks []map[string]any `json:"blocks"`
	}
	calls := 0
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &posted); err != nil {
			t.Errorf("decode webhook payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	fetcher := &stubFetcher{issues: []models.IssueSnapshot{
		{IssueID: "1", Title: "NPE in checkout", Level: models.LevelError, EventCount: 12, UserCount: 4},
	}}
	svc := newService(t, fetcher, webhook.URL)

	report, err := svc.Run(context.Background(), dailyRequest(false))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("webhook calls = %d, want 1", calls)
	}
	if posted.Text == "" || len(posted.Blocks) == 0 {
		t.Errorf("webhook payload missing text or blocks: %+v", posted)
	}
	if report.Aggregate.TotalEvents != 12 {
		t.Errorf("total events = %d", report.Aggregate.TotalEvents)
	}
}

func TestRunDryRunSkipsDelivery(t *testing.T) {
	calls := 0
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	fetcher := &stubFetcher{issues: []models.IssueSnapshot{
		{IssueID: "1", Title: "NPE", Level: models.LevelError, EventCount: 3},
	}}
	svc := newService(t, fetcher, webhook.URL)

	if _, err := svc.Run(context.Background(), dailyRequest(true)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if calls != 0 {
		t.Errorf("dry run posted %d times", calls)
	}
}

func TestRunFailureNotifiesWebhook(t *testing.T) {
	var bodies []string
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.WriteHeader(http.StatusOK)
	}))
	defer webhook.Close()

	fetcher := &stubFetcher{err: errors.New("sentry down")}
	svc := newService(t, fetcher, webhook.URL)

	_, err := svc.Run(context.Background(), dailyRequest(false))
	if err == nil {
		t.Fatalf("expected run error")
	}
	if len(bodies) != 1 {
		t.Fatalf("failure notifications = %d, want 1", len(bodies))
	}
	if !strings.Contains(bodies[0], "could not be generated") {
		t.Errorf("failure payload = %s", bodies[0])
	}
}

func TestRunFailureDryRunStaysQuiet(t *testing.T) {
	calls := 0
	webhook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
	}))
	defer webhook.Close()

	svc := newService(t, &stubFetcher{err: errors.New("sentry down")}, webhook.URL)
	if _, err := svc.Run(context.Background(), dailyRequest(true)); err == nil {
		t.Fatalf("expected run error")
	}
	if calls != 0 {
		t.Errorf("dry run failure posted %d times", calls)
	}
}

func TestRunWithoutWebhookStillReturnsReport(t *testing.T) {
	fetcher := &stubFetcher{issues: []models.IssueSnapshot{
		{IssueID: "1", Title: "NPE", Level: models.LevelError, EventCount: 3},
	}}
	svc := newService(t, fetcher, "")

	report, err := svc.Run(context.Background(), dailyRequest(false))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Aggregate.UniqueIssueCount != 1 {
		t.Errorf("unique issues = %d", report.Aggregate.UniqueIssueCount)
	}
}

func TestRunWithoutPipeline(t *testing.T) {
	svc := NewReportService(quietLogger(), nil, nil, nil)
	if _, err := svc.Run(context.Background(), dailyRequest(false)); err == nil {
		t.Fatalf("expected error when pipeline missing")
	}
}
