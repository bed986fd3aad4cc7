package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/crashstack/crash-radar/internal/models"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxIssues = 5
	defaultMaxTokens = 1500
)

// Config holds the settings for the LLM annotation pass.
type Config struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	MaxIssues   int           `yaml:"max_issues"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
	Temperature float64       `yaml:"temperature"`
}

// Advisor asks an OpenAI-compatible model for structured operational advice
// about a finished crash report. It is optional: when no API key is
// configured the pipeline runs without annotation.
type Advisor struct {
	client    openai.Client
	model     string
	maxIssues int
	maxTokens int
	timeout   time.Duration
	temp      float64
	logger    *slog.Logger
}

// NewAdvisor builds an Advisor. An empty API key is an error so callers can
// decide up front whether to wire annotation at all.
func NewAdvisor(cfg Config, logger *slog.Logger) (*Advisor, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	maxIssues := cfg.MaxIssues
	if maxIssues <= 0 {
		maxIssues = defaultMaxIssues
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	temp := cfg.Temperature
	if temp <= 0 {
		temp = 0.2
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Advisor{
		client:    openai.NewClient(opts...),
		model:     model,
		maxIssues: maxIssues,
		maxTokens: maxTokens,
		timeout:   cfg.Timeout,
		temp:      temp,
		logger:    logger,
	}, nil
}

const systemPrompt = "You are a senior mobile crash and SRE engineer. " +
	"Given a summarized crash report, respond with concise, action-oriented " +
	"advice as JSON matching the provided schema. Keep every item short and " +
	"concrete; never invent issue titles that are not in the input."

// Annotate summarizes the report for the model and decodes its structured
// advice. Failures are returned to the caller, who treats annotation as
// best effort.
func (a *Advisor) Annotate(ctx context.Context, report models.Report) (*models.Advice, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(a.summarize(report))
	if err != nil {
		return nil, fmt.Errorf("marshal report summary: %w", err)
	}

	schemaParam := openai.ResponseFormatJSONSchemaJSONSchemaParam{
		Name:        "crash_report_advice",
		Description: openai.String("Structured advice for a crash report"),
		Schema:      adviceSchema(),
		Strict:      openai.Bool(true),
	}

	params := openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(string(payload)),
		},
		MaxTokens:   openai.Int(int64(a.maxTokens)),
		Temperature: openai.Float(a.temp),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: schemaParam,
			},
		},
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	a.logger.Debug("advice chat completed",
		"model", a.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	var advice models.Advice
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &advice); err != nil {
		return nil, fmt.Errorf("unmarshal advice: %w", err)
	}
	return &advice, nil
}

// reportSummary is the trimmed view of the report sent to the model.
type reportSummary struct {
	Granularity    string             `json:"granularity"`
	PeriodStart    string             `json:"period_start"`
	PeriodEnd      string             `json:"period_end"`
	TotalEvents    int                `json:"total_events"`
	FatalEvents    int                `json:"fatal_events"`
	AffectedUsers  int                `json:"affected_users"`
	AlertOverall   int                `json:"alert_level"`
	AlertStatus    map[string]string  `json:"alert_dimensions"`
	NewIssues      []issueSummary     `json:"new_issues"`
	SpikeIssues    []issueSummary     `json:"spike_issues"`
	HighPriority   []issueSummary     `json:"high_priority_issues"`
	CrashFreeRates map[string]float64 `json:"crash_free_rates,omitempty"`
}

type issueSummary struct {
	Title      string   `json:"title"`
	Level      string   `json:"level"`
	EventCount int      `json:"event_count"`
	UserCount  int      `json:"user_count"`
	Reasons    []string `json:"reasons,omitempty"`
}

func (a *Advisor) summarize(report models.Report) reportSummary {
	dims := make(map[string]string, len(report.Alert.Dimensions))
	for name, dim := range report.Alert.Dimensions {
		dims[name] = dim.Status
	}

	s := reportSummary{
		Granularity:   string(report.Granularity),
		PeriodStart:   report.Window.Start.Format(time.RFC3339),
		PeriodEnd:     report.Window.End.Format(time.RFC3339),
		TotalEvents:   report.Aggregate.TotalEvents,
		FatalEvents:   report.Aggregate.FatalEvents,
		AffectedUsers: report.Aggregate.AffectedUsers,
		AlertOverall:  report.Alert.Overall,
		AlertStatus:   dims,
		NewIssues:     a.issueSummaries(report.ByCategory(models.CategoryNew)),
		SpikeIssues:   a.issueSummaries(report.ByCategory(models.CategorySpike)),
		HighPriority:  a.issueSummaries(report.ByCategory(models.CategoryHighPriority)),
	}

	if report.CrashFree != nil {
		s.CrashFreeRates = make(map[string]float64, 2)
		if report.CrashFree.Sessions != nil {
			s.CrashFreeRates["sessions"] = *report.CrashFree.Sessions
		}
		if report.CrashFree.Users != nil {
			s.CrashFreeRates["users"] = *report.CrashFree.Users
		}
	}
	return s
}

func (a *Advisor) issueSummaries(results []models.ClassificationResult) []issueSummary {
	out := make([]issueSummary, 0, a.maxIssues)
	for _, res := range results {
		if len(out) >= a.maxIssues {
			break
		}
		reasons := make([]string, 0, len(res.SpikeReasons))
		for _, r := range res.SpikeReasons {
			reasons = append(reasons, string(r))
		}
		out = append(out, issueSummary{
			Title:      res.Title,
			Level:      string(res.Level),
			EventCount: res.EventCount,
			UserCount:  res.UserCount,
			Reasons:    reasons,
		})
	}
	return out
}

func adviceSchema() any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v models.Advice
	return reflector.Reflect(v)
}
