package severity

import "testing"

func TestLevelForPicksHighestReachedRung(t *testing.T) {
	ladder := DefaultLadders().CrashVolume

	cases := []struct {
		value      int
		wantLevel  int
		wantStatus string
	}{
		{0, 0, "normal"},
		{49, 0, "normal"},
		{50, 1, "notice"},
		{75, 1, "notice"},
		{150, 2, "caution"},
		{399, 2, "caution"},
		{400, 3, "warning"},
		{1500, 5, "critical"},
		{999999, 5, "critical"},
	}
	for _, tc := range cases {
		got := LevelFor(tc.value, ladder)
		if got.Level != tc.wantLevel || got.Status != tc.wantStatus {
			t.Errorf("LevelFor(%d) = (%d, %s), want (%d, %s)",
				tc.value, got.Level, got.Status, tc.wantLevel, tc.wantStatus)
		}
		if got.Value != tc.value {
			t.Errorf("LevelFor(%d) echoed value %d", tc.value, got.Value)
		}
	}
}

func TestLevelForCustomLadder(t *testing.T) {
	ladder := Ladder{
		{Threshold: 20, Level: 1, Status: "notice"},
		{Threshold: 50, Level: 2, Status: "caution"},
		{Threshold: 100, Level: 3, Status: "warning"},
	}
	if got := LevelFor(75, ladder); got.Level != 2 || got.Status != "caution" {
		t.Errorf("LevelFor(75) = (%d, %s), want (2, caution)", got.Level, got.Status)
	}
	if got := LevelFor(19, ladder); got.Level != 0 {
		t.Errorf("LevelFor(19) = %d, want 0", got.Level)
	}
	if got := LevelFor(100, ladder); got.Level != 3 {
		t.Errorf("LevelFor(100) = %d, want 3", got.Level)
	}
}

func TestEvaluateOverallIsMax(t *testing.T) {
	// Crash volume is quiet but fatal volume reaches warning: the overall
	// level must follow the worst dimension.
	alert := Evaluate(Input{
		TotalEvents:          40,
		FatalEvents:          60,
		AffectedUsers:        10,
		MaxSingleIssueEvents: 25,
	}, DefaultLadders())

	if alert.Overall != 3 {
		t.Errorf("overall = %d, want 3", alert.Overall)
	}
	if got := alert.Dimensions[DimFatalVolume]; got.Level != 3 || got.Status != "warning" {
		t.Errorf("fatal dimension = %+v, want level 3 warning", got)
	}
	if got := alert.Dimensions[DimCrashVolume]; got.Level != 0 {
		t.Errorf("crash dimension = %+v, want level 0", got)
	}
	if len(alert.Dimensions) != 4 {
		t.Errorf("got %d dimensions, want 4", len(alert.Dimensions))
	}
}

func TestEvaluateAllQuiet(t *testing.T) {
	alert := Evaluate(Input{}, DefaultLadders())
	if alert.Overall != 0 {
		t.Errorf("overall = %d, want 0", alert.Overall)
	}
	for name, dim := range alert.Dimensions {
		if dim.Status != StatusNormal {
			t.Errorf("dimension %s status = %s, want normal", name, dim.Status)
		}
	}
}

func TestLadderValidate(t *testing.T) {
	if err := DefaultLadders().Validate(); err != nil {
		t.Fatalf("default ladders should validate: %v", err)
	}

	nonAscending := Ladder{
		{Threshold: 100, Level: 1, Status: "notice"},
		{Threshold: 50, Level: 2, Status: "caution"},
	}
	if err := nonAscending.Validate(); err == nil {
		t.Errorf("non-ascending thresholds should be rejected")
	}

	repeatedLevel := Ladder{
		{Threshold: 50, Level: 2, Status: "caution"},
		{Threshold: 100, Level: 2, Status: "caution"},
	}
	if err := repeatedLevel.Validate(); err == nil {
		t.Errorf("non-ascending levels should be rejected")
	}

	outOfRange := Ladder{{Threshold: 10, Level: 6, Status: "x"}}
	if err := outOfRange.Validate(); err == nil {
		t.Errorf("level above 5 should be rejected")
	}

	missingStatus := Ladder{{Threshold: 10, Level: 1}}
	if err := missingStatus.Validate(); err == nil {
		t.Errorf("empty status should be rejected")
	}
}
