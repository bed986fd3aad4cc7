package severity

import (
	"fmt"

	"github.com/crashstack/crash-radar/internal/models"
)

// StatusNormal labels a value below every rung of its ladder.
const StatusNormal = "normal"

// Dimension names used in AlertLevel.Dimensions.
const (
	DimCrashVolume       = "crash_volume"
	DimFatalVolume       = "fatal_volume"
	DimUserImpact        = "user_impact"
	DimSingleIssueVolume = "single_issue_volume"
)

// Rung is one step of a threshold ladder.
type Rung struct {
	Threshold int    `yaml:"threshold"`
	Level     int    `yaml:"level"`
	Status    string `yaml:"status"`
}

// Ladder is an ascending list of rungs. A value maps to the highest rung
// whose threshold it reaches, or level 0 when below every rung.
type Ladder []Rung

// Validate checks that thresholds and levels ascend and levels stay in 1..5.
func (l Ladder) Validate() error {
	for i, rung := range l {
		if rung.Level < 1 || rung.Level > 5 {
			return fmt.Errorf("rung %d: level %d out of range 1..5", i, rung.Level)
		}
		if rung.Status == "" {
			return fmt.Errorf("rung %d: status label is required", i)
		}
		if i > 0 {
			if rung.Threshold <= l[i-1].Threshold {
				return fmt.Errorf("rung %d: threshold %d not above previous %d", i, rung.Threshold, l[i-1].Threshold)
			}
			if rung.Level <= l[i-1].Level {
				return fmt.Errorf("rung %d: level %d not above previous %d", i, rung.Level, l[i-1].Level)
			}
		}
	}
	return nil
}

// LeveledResult is the outcome of evaluating one value against one ladder.
type LeveledResult struct {
	Level  int
	Status string
	Value  int
}

// LevelFor returns the highest rung whose threshold is <= value. Values
// below every rung map to level 0, "normal". Pure function.
func LevelFor(value int, ladder Ladder) LeveledResult {
	result := LeveledResult{Level: 0, Status: StatusNormal, Value: value}
	for _, rung := range ladder {
		if value >= rung.Threshold {
			result.Level = rung.Level
			result.Status = rung.Status
		}
	}
	return result
}

// Ladders groups the four independent per-dimension ladders.
type Ladders struct {
	CrashVolume       Ladder `yaml:"crashVolume"`
	FatalVolume       Ladder `yaml:"fatalVolume"`
	UserImpact        Ladder `yaml:"userImpact"`
	SingleIssueVolume Ladder `yaml:"singleIssueVolume"`
}

// Validate checks every ladder.
func (l Ladders) Validate() error {
	for name, ladder := range map[string]Ladder{
		DimCrashVolume:       l.CrashVolume,
		DimFatalVolume:       l.FatalVolume,
		DimUserImpact:        l.UserImpact,
		DimSingleIssueVolume: l.SingleIssueVolume,
	} {
		if err := ladder.Validate(); err != nil {
			return fmt.Errorf("ladder %s: %w", name, err)
		}
	}
	return nil
}

// DefaultLadders returns the built-in alerting thresholds.
func DefaultLadders() Ladders {
	return Ladders{
		CrashVolume: Ladder{
			{Threshold: 50, Level: 1, Status: "notice"},
			{Threshold: 150, Level: 2, Status: "caution"},
			{Threshold: 400, Level: 3, Status: "warning"},
			{Threshold: 800, Level: 4, Status: "danger"},
			{Threshold: 1500, Level: 5, Status: "critical"},
		},
		FatalVolume: Ladder{
			{Threshold: 5, Level: 1, Status: "notice"},
			{Threshold: 20, Level: 2, Status: "caution"},
			{Threshold: 50, Level: 3, Status: "warning"},
			{Threshold: 100, Level: 4, Status: "danger"},
			{Threshold: 200, Level: 5, Status: "critical"},
		},
		UserImpact: Ladder{
			{Threshold: 20, Level: 1, Status: "notice"},
			{Threshold: 50, Level: 2, Status: "caution"},
			{Threshold: 100, Level: 3, Status: "warning"},
			{Threshold: 300, Level: 4, Status: "danger"},
			{Threshold: 1000, Level: 5, Status: "critical"},
		},
		SingleIssueVolume: Ladder{
			{Threshold: 30, Level: 1, Status: "notice"},
			{Threshold: 100, Level: 2, Status: "caution"},
			{Threshold: 300, Level: 3, Status: "warning"},
			{Threshold: 600, Level: 4, Status: "danger"},
			{Threshold: 1200, Level: 5, Status: "critical"},
		},
	}
}

// Input carries the aggregate metrics fed through the ladders. The single
// issue dimension applies to the largest per-issue event count in the
// window, not the aggregate.
type Input struct {
	TotalEvents          int
	FatalEvents          int
	AffectedUsers        int
	MaxSingleIssueEvents int
}

// Evaluate runs all four ladders and takes the maximum as the overall
// level. Dimensions are never averaged or combined multiplicatively: the
// report is only as healthy as its worst dimension.
func Evaluate(in Input, ladders Ladders) models.AlertLevel {
	dims := map[string]LeveledResult{
		DimCrashVolume:       LevelFor(in.TotalEvents, ladders.CrashVolume),
		DimFatalVolume:       LevelFor(in.FatalEvents, ladders.FatalVolume),
		DimUserImpact:        LevelFor(in.AffectedUsers, ladders.UserImpact),
		DimSingleIssueVolume: LevelFor(in.MaxSingleIssueEvents, ladders.SingleIssueVolume),
	}

	alert := models.AlertLevel{Dimensions: make(map[string]models.DimensionLevel, len(dims))}
	for name, res := range dims {
		alert.Dimensions[name] = models.DimensionLevel{
			Level:  res.Level,
			Status: res.Status,
			Value:  res.Value,
		}
		if res.Level > alert.Overall {
			alert.Overall = res.Level
		}
	}
	return alert
}
