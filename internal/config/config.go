package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/crashstack/crash-radar/internal/classify"
	"github.com/crashstack/crash-radar/internal/severity"
)

// Config captures the settings required to boot the crash-radar service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Sentry     SentryConfig     `yaml:"sentry"`
	Slack      SlackConfig      `yaml:"slack"`
	LLM        LLMConfig        `yaml:"llm"`
	Report     ReportConfig     `yaml:"report"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Ladders    severity.Ladders `yaml:"ladders"`
	Rules      RulesConfig      `yaml:"rules"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// SentryConfig configures access to the Sentry REST API.
type SentryConfig struct {
	BaseURL     string        `yaml:"baseURL"`
	Token       string        `yaml:"token"`
	Org         string        `yaml:"org"`
	ProjectID   int           `yaml:"projectID"`
	Environment string        `yaml:"environment"`
	PerPage     int           `yaml:"perPage"`
	MaxPages    int           `yaml:"maxPages"`
	Timeout     time.Duration `yaml:"timeout"`
	WindowTTL   time.Duration `yaml:"windowTTL"`
}

// SlackConfig configures report delivery via incoming webhook.
type SlackConfig struct {
	WebhookURL string        `yaml:"webhookURL"`
	Timeout    time.Duration `yaml:"timeout"`
}

// LLMConfig configures the optional advice annotation pass.
type LLMConfig struct {
	Enabled     bool          `yaml:"enabled"`
	APIKey      string        `yaml:"apiKey"`
	BaseURL     string        `yaml:"baseURL"`
	Model       string        `yaml:"model"`
	MaxIssues   int           `yaml:"maxIssues"`
	MaxTokens   int           `yaml:"maxTokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// ReportConfig controls report windows and presentation.
type ReportConfig struct {
	Timezone string `yaml:"timezone"`
}

// ClassifierConfig holds the per-granularity classification profiles.
type ClassifierConfig struct {
	Daily  classify.Config `yaml:"daily"`
	Weekly classify.Config `yaml:"weekly"`
}

// RulesConfig controls rule-pack loading for the recommender.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls Redis-backed caching of closed-window fetches.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CRASH_RADAR_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that would silently misclassify.
func (c *Config) Validate() error {
	if err := c.Classifier.Daily.Validate(); err != nil {
		return fmt.Errorf("classifier.daily: %w", err)
	}
	if err := c.Classifier.Weekly.Validate(); err != nil {
		return fmt.Errorf("classifier.weekly: %w", err)
	}
	if err := c.Ladders.Validate(); err != nil {
		return fmt.Errorf("ladders: %w", err)
	}
	if _, err := time.LoadLocation(c.Report.Timezone); err != nil {
		return fmt.Errorf("report.timezone: %w", err)
	}
	return nil
}

// Location returns the configured report timezone. Validate guarantees
// it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Report.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Sentry: SentryConfig{
			BaseURL:   "https://sentry.io/api/0",
			PerPage:   100,
			MaxPages:  10,
			Timeout:   30 * time.Second,
			WindowTTL: 6 * time.Hour,
		},
		Slack: SlackConfig{Timeout: 15 * time.Second},
		LLM: LLMConfig{
			Model:       "gpt-4o-mini",
			MaxIssues:   5,
			MaxTokens:   1500,
			Temperature: 0.2,
			Timeout:     60 * time.Second,
		},
		Report: ReportConfig{Timezone: "UTC"},
		Classifier: ClassifierConfig{
			Daily:  classify.DefaultDaily(),
			Weekly: classify.DefaultWeekly(),
		},
		Ladders: severity.DefaultLadders(),
		Rules:   RulesConfig{},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CRASH_RADAR_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("CRASH_RADAR_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SENTRY_API_BASE"); v != "" {
		cfg.Sentry.BaseURL = v
	}
	if v := os.Getenv("SENTRY_AUTH_TOKEN"); v != "" {
		cfg.Sentry.Token = v
	}
	if v := os.Getenv("SENTRY_ORG_SLUG"); v != "" {
		cfg.Sentry.Org = v
	}
	if v := os.Getenv("SENTRY_PROJECT_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.Sentry.ProjectID = id
		}
	}
	if v := os.Getenv("SENTRY_ENVIRONMENT"); v != "" {
		cfg.Sentry.Environment = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Slack.WebhookURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Enabled = true
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.LLM.Model = v
	}
	if v := os.Getenv("CRASH_RADAR_TIMEZONE"); v != "" {
		cfg.Report.Timezone = v
	}
	if v := os.Getenv("CRASH_RADAR_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("CRASH_RADAR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CRASH_RADAR_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("CRASH_RADAR_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("CRASH_RADAR_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
	}
	if v := os.Getenv("CRASH_RADAR_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("CRASH_RADAR_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("CRASH_RADAR_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("CRASH_RADAR_CACHE_TLS"); strings.EqualFold(v, "true") || strings.EqualFold(v, "1") {
		cfg.Cache.TLS = true
	}
}
