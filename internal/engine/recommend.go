package engine

import (
	"errors"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crashstack/crash-radar/internal/models"
)

// RuleEngine applies rule-based recommendations loaded from a YAML pack,
// letting teams attach playbook steps to recurring crash signatures.
type RuleEngine struct {
	rules  []Rule
	logger *slog.Logger
}

// Rule represents a single recommendation rule.
type Rule struct {
	ID              string    `yaml:"id"`
	Match           RuleMatch `yaml:"match"`
	Recommendations []string  `yaml:"recommendations"`
}

// RuleMatch defines optional attributes for rule matching. Empty fields
// match everything.
type RuleMatch struct {
	Category      string   `yaml:"category"`
	MinAlertLevel int      `yaml:"min_alert_level"`
	TitleContains []string `yaml:"title_contains"`
}

// RuleConfigFile is the YAML root structure.
type RuleConfigFile struct {
	Rules []Rule `yaml:"rules"`
}

// NewRuleEngine loads rules from the provided path. If path is empty or
// the file does not exist, returns a nil engine.
func NewRuleEngine(path string, logger *slog.Logger) (*RuleEngine, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var cfg RuleConfigFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleEngine{rules: cfg.Rules, logger: logger}, nil
}

// Recommend produces rule-based recommendations for the report.
func (e *RuleEngine) Recommend(report models.Report) []string {
	if e == nil {
		return nil
	}

	matched := make([]string, 0)
	for _, rule := range e.rules {
		if rule.Match.MinAlertLevel > 0 && report.Alert.Overall < rule.Match.MinAlertLevel {
			continue
		}
		if rule.Match.Category != "" && len(report.ByCategory(models.Category(rule.Match.Category))) == 0 {
			continue
		}
		if len(rule.Match.TitleContains) > 0 && !titlesContain(rule.Match.TitleContains, report.Results) {
			continue
		}
		matched = appendUnique(matched, rule.Recommendations...)
	}
	return matched
}

// defaultRecommendations derives playbook steps from the alert level and
// report composition when no rule pack matched.
func defaultRecommendations(report models.Report) []string {
	var recs []string

	switch {
	case report.Alert.Overall >= 4:
		recs = append(recs,
			"Consider an immediate rollback or hotfix",
			"Triage the top crash issues before anything else",
			"Confirm the blast radius of affected users")
	case report.Alert.Overall == 3:
		recs = append(recs,
			"Tighten crash monitoring and prepare a hotfix",
			"Re-run this report within the hour to confirm the trend")
	case report.Alert.Overall == 2:
		recs = append(recs,
			"Keep watching the flagged issues",
			"File tracking tickets for the top offenders")
	default:
		recs = append(recs,
			"Crash volume is in the normal range",
			"Continue routine monitoring")
	}

	if report.Aggregate.FatalEvents > 0 {
		recs = append(recs, "Prioritise fatal-level issues over errors")
	}
	if len(report.ByCategory(models.CategoryNew)) > 0 {
		recs = append(recs, "Review newly introduced issues against recent releases")
	}
	if report.DegradedBaselinePeriods > 0 {
		recs = append(recs, "Treat spike signals with caution: some baseline periods were unavailable")
	}

	return recs
}

func titlesContain(keywords []string, results []models.ClassificationResult) bool {
	for _, res := range results {
		title := strings.ToLower(res.Title)
		for _, kw := range keywords {
			if kw != "" && strings.Contains(title, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		exists := false
		for _, have := range dst {
			if have == v {
				exists = true
				break
			}
		}
		if !exists {
			dst = append(dst, v)
		}
	}
	return dst
}
