package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crashstack/crash-radar/internal/annotate"
	"github.com/crashstack/crash-radar/internal/api"
	"github.com/crashstack/crash-radar/internal/baseline"
	"github.com/crashstack/crash-radar/internal/cache"
	"github.com/crashstack/crash-radar/internal/config"
	"github.com/crashstack/crash-radar/internal/engine"
	"github.com/crashstack/crash-radar/internal/metrics"
	"github.com/crashstack/crash-radar/internal/models"
	"github.com/crashstack/crash-radar/internal/render"
	"github.com/crashstack/crash-radar/internal/repo"
	"github.com/crashstack/crash-radar/internal/services"
	"github.com/crashstack/crash-radar/internal/utils"
)

func main() {
	var (
		configPath string
		runOnce    string
		runDate    string
		dryRun     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&runOnce, "run", "", "Run one report (daily|weekly) and exit instead of serving")
	flag.StringVar(&runDate, "date", "", "Report date YYYY-MM-DD in the configured timezone (default: yesterday)")
	flag.BoolVar(&dryRun, "dry-run", false, "Skip the Slack post for a one-shot run")
	flag.Parse()

	// Conventional env file for local runs; absence is not an error.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting crash-radar", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("redis cache unavailable", slog.Any("error", err))
		} else {
			cacheProvider = provider
			defer provider.Close()
		}
	}

	sentryClient := repo.NewSentryClient(repo.SentryConfig{
		BaseURL:   cfg.Sentry.BaseURL,
		Token:     cfg.Sentry.Token,
		Org:       cfg.Sentry.Org,
		ProjectID: cfg.Sentry.ProjectID,
		PerPage:   cfg.Sentry.PerPage,
		MaxPages:  cfg.Sentry.MaxPages,
		Timeout:   cfg.Sentry.Timeout,
	}, logger, cacheProvider, cfg.Sentry.WindowTTL)

	sampler := baseline.NewSampler(sentryClient, logger)

	var annotator engine.Annotator
	if cfg.LLM.Enabled && cfg.LLM.APIKey != "" {
		advisor, err := annotate.NewAdvisor(annotate.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			MaxIssues:   cfg.LLM.MaxIssues,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
		if err != nil {
			logger.Warn("advice annotation disabled", slog.Any("error", err))
		} else {
			annotator = advisor
		}
	}

	ruleEngine, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	pipeline := engine.NewPipeline(
		logger,
		sentryClient,
		sampler,
		annotator,
		ruleEngine,
		cfg.Classifier.Daily,
		cfg.Classifier.Weekly,
		cfg.Ladders,
	)

	loc := cfg.Location()
	renderer := render.NewRenderer(loc)
	notifier := render.NewNotifier(cfg.Slack.WebhookURL, cfg.Slack.Timeout, logger)
	reportService := services.NewReportService(logger, pipeline, renderer, notifier)

	if runOnce != "" {
		os.Exit(runSingleReport(reportService, cfg, loc, runOnce, runDate, dryRun, logger))
	}

	serve(reportService, cfg, loc, logger)
}

// runSingleReport executes one report and prints it as JSON, for cron and
// CI invocations.
func runSingleReport(svc *services.ReportService, cfg *config.Config, loc *time.Location, granStr, dateStr string, dryRun bool, logger *slog.Logger) int {
	granularity, err := models.ParseGranularity(granStr)
	if err != nil {
		logger.Error("invalid -run value", slog.Any("error", err))
		return 2
	}

	day := time.Now().In(loc).AddDate(0, 0, -1)
	if dateStr != "" {
		parsed, err := time.ParseInLocation("2006-01-02", dateStr, loc)
		if err != nil {
			logger.Error("invalid -date value, want YYYY-MM-DD", slog.Any("error", err))
			return 2
		}
		day = parsed
	}

	window := utils.DayWindow(day, loc)
	if granularity == models.GranularityWeekly {
		window = utils.WeekWindow(day, loc)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := svc.Run(ctx, models.ReportRequest{
		Granularity: granularity,
		Window:      window,
		Filter:      models.WindowFilter{Environment: cfg.Sentry.Environment},
		DryRun:      dryRun,
	})
	if err != nil {
		return 1
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		logger.Error("failed to encode report", slog.Any("error", err))
		return 1
	}
	fmt.Println(string(out))
	return 0
}

func serve(svc *services.ReportService, cfg *config.Config, loc *time.Location, logger *slog.Logger) {
	server, err := api.NewServer(cfg.Server, svc, loc, cfg.Sentry.Environment)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("http server listening", slog.String("address", server.Address()))
		if serveErr := server.Start(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("shutdown complete")
}
