package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/crashstack/crash-radar/internal/models"
)

func TestRuleEngineRecommend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(`rules:
  - id: oom
    match:
      category: "spike"
      title_contains: ["OutOfMemory"]
    recommendations: ["Check recent memory-related changes"]
  - id: page
    match:
      min_alert_level: 4
    recommendations: ["Page the on-call engineer"]
`), 0644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	ruleEngine, err := NewRuleEngine(path, quietLogger())
	if err != nil {
		t.Fatalf("new rule engine: %v", err)
	}

	report := models.Report{
		Alert: models.AlertLevel{Overall: 2},
		Results: []models.ClassificationResult{
			{
				IssueID:    "1",
				Title:      "OutOfMemoryError in ImageLoader",
				Categories: []models.Category{models.CategorySpike},
			},
		},
	}

	recs := ruleEngine.Recommend(report)
	if len(recs) != 1 {
		t.Fatalf("got %d recommendations, want 1: %v", len(recs), recs)
	}
	if recs[0] != "Check recent memory-related changes" {
		t.Errorf("unexpected recommendation %q", recs[0])
	}

	report.Alert.Overall = 4
	recs = ruleEngine.Recommend(report)
	if len(recs) != 2 {
		t.Errorf("alert level 4 should also match the paging rule, got %v", recs)
	}
}

func TestRuleEngineNoFile(t *testing.T) {
	ruleEngine, err := NewRuleEngine("non-existent", nil)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if ruleEngine != nil {
		t.Fatalf("expected nil engine when file missing")
	}
	if recs := ruleEngine.Recommend(models.Report{}); recs != nil {
		t.Fatalf("nil engine must return nil recommendations")
	}
}

func TestDefaultRecommendationsByAlertLevel(t *testing.T) {
	quiet := defaultRecommendations(models.Report{})
	if len(quiet) == 0 {
		t.Fatalf("even a quiet report gets baseline guidance")
	}

	severe := defaultRecommendations(models.Report{
		Alert:     models.AlertLevel{Overall: 5},
		Aggregate: models.WindowAggregate{FatalEvents: 40},
	})
	if len(severe) <= len(quiet) {
		t.Errorf("severe report should carry more guidance: %v", severe)
	}

	foundRollback := false
	for _, rec := range severe {
		if rec == "Consider an immediate rollback or hotfix" {
			foundRollback = true
		}
	}
	if !foundRollback {
		t.Errorf("level 5 should suggest a rollback, got %v", severe)
	}
}

func TestDefaultRecommendationsDegradedBaseline(t *testing.T) {
	recs := defaultRecommendations(models.Report{DegradedBaselinePeriods: 2})
	found := false
	for _, rec := range recs {
		if rec == "Treat spike signals with caution: some baseline periods were unavailable" {
			found = true
		}
	}
	if !found {
		t.Errorf("degraded baselines should be called out, got %v", recs)
	}
}
