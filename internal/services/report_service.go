package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crashstack/crash-radar/internal/engine"
	"github.com/crashstack/crash-radar/internal/metrics"
	"github.com/crashstack/crash-radar/internal/models"
	"github.com/crashstack/crash-radar/internal/render"
	"github.com/crashstack/crash-radar/internal/utils"
)

// ReportService runs the report pipeline and delivers the result to Slack.
// It is the unit both the HTTP handlers and the one-shot CLI mode call into.
type ReportService struct {
	logger    *slog.Logger
	pipeline  *engine.Pipeline
	renderer  *render.Renderer
	notifier  *render.Notifier
	latencies *utils.LatencyTracker
}

// NewReportService constructs the report service facade.
func NewReportService(logger *slog.Logger, pipeline *engine.Pipeline, renderer *render.Renderer, notifier *render.Notifier) *ReportService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportService{
		logger:    logger,
		pipeline:  pipeline,
		renderer:  renderer,
		notifier:  notifier,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Run executes one report and, unless the request is a dry run, posts it
// to the configured webhook. Pipeline failures also notify the channel so
// a broken morning report does not fail silently.
func (s *ReportService) Run(ctx context.Context, req models.ReportRequest) (models.Report, error) {
	if s.pipeline == nil {
		return models.Report{}, fmt.Errorf("pipeline not configured")
	}

	s.logger.Info("report run started",
		slog.String("granularity", string(req.Granularity)),
		slog.Time("window_start", req.Window.Start),
		slog.Time("window_end", req.Window.End),
		slog.Bool("dry_run", req.DryRun))

	start := time.Now()
	report, err := s.pipeline.Run(ctx, req)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveReport(duration, metrics.OutcomeError)
		s.logger.Error("report run failed", slog.Any("error", err))
		s.notifyFailure(ctx, req, err)
		return models.Report{}, fmt.Errorf("report run: %w", err)
	}

	s.latencies.Observe(duration)
	metrics.ObserveReport(duration, metrics.OutcomeSuccess)
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		p95 := s.latencies.Percentile(95)
		s.logger.Info("report latency", slog.Duration("p95", p95), slog.Int("samples", count))
	}

	if !req.DryRun {
		if err := s.deliver(ctx, report); err != nil {
			s.logger.Error("slack delivery failed", slog.Any("error", err))
		}
	}

	s.logger.Info("report run finished",
		slog.Int("results", len(report.Results)),
		slog.Int("alert_level", report.Alert.Overall),
		slog.Duration("duration", duration))
	return report, nil
}

func (s *ReportService) deliver(ctx context.Context, report models.Report) error {
	if s.renderer == nil || s.notifier == nil || !s.notifier.Enabled() {
		return nil
	}
	blocks := s.renderer.Render(report)
	return s.notifier.Post(ctx, s.renderer.FallbackText(report), blocks)
}

// notifyFailure posts the "could not generate report" message. Delivery
// errors here are logged and swallowed: the run error is what matters.
func (s *ReportService) notifyFailure(ctx context.Context, req models.ReportRequest, runErr error) {
	if req.DryRun || s.renderer == nil || s.notifier == nil || !s.notifier.Enabled() {
		return
	}
	blocks := s.renderer.RenderFailure(req.Granularity, req.Window, runErr)
	fallback := fmt.Sprintf("Crash report could not be generated (%s)", req.Granularity)
	if err := s.notifier.Post(ctx, fallback, blocks); err != nil {
		s.logger.Error("failure notification failed", slog.Any("error", err))
	}
}

// LatencyP95 returns the current p95 report latency.
func (s *ReportService) LatencyP95() time.Duration {
	if s.latencies == nil {
		return 0
	}
	return s.latencies.Percentile(95)
}
