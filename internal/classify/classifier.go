package classify

import (
	"fmt"
	"sort"

	"github.com/crashstack/crash-radar/internal/models"
)

// madScale is the normal-consistency scale factor for the median absolute
// deviation (1 / Phi^-1(3/4)).
const madScale = 1.4826

// Config holds the classification thresholds. It is immutable over a run
// and passed explicitly by the caller; the classifier keeps no state.
type Config struct {
	HighPriorityMinEvents int     `yaml:"highPriorityMinEvents"`
	HighPriorityMinUsers  int     `yaml:"highPriorityMinUsers"`
	GrowthMultiplier      float64 `yaml:"growthMultiplier"`
	ZThreshold            float64 `yaml:"zThreshold"`
	MADThreshold          float64 `yaml:"madThreshold"`
	MinAbsoluteCount      int     `yaml:"minAbsoluteCount"`
	NewBurstMin           int     `yaml:"newBurstMin"`
	BaselineDepth         int     `yaml:"baselineDepth"`
}

// DefaultDaily returns the daily-granularity thresholds.
func DefaultDaily() Config {
	return Config{
		HighPriorityMinEvents: 10,
		HighPriorityMinUsers:  10,
		GrowthMultiplier:      2.0,
		ZThreshold:            2.0,
		MADThreshold:          3.5,
		MinAbsoluteCount:      30,
		NewBurstMin:           15,
		BaselineDepth:         7,
	}
}

// DefaultWeekly returns the weekly-granularity thresholds. Weekly windows
// aggregate more events, so the absolute spike floor is higher and the
// baseline is four weekly buckets.
func DefaultWeekly() Config {
	cfg := DefaultDaily()
	cfg.MinAbsoluteCount = 50
	cfg.BaselineDepth = 4
	return cfg
}

// Validate rejects configurations that would disable or invert the rules.
func (c Config) Validate() error {
	if c.HighPriorityMinEvents <= 0 {
		return fmt.Errorf("highPriorityMinEvents must be positive, got %d", c.HighPriorityMinEvents)
	}
	if c.HighPriorityMinUsers <= 0 {
		return fmt.Errorf("highPriorityMinUsers must be positive, got %d", c.HighPriorityMinUsers)
	}
	if c.GrowthMultiplier <= 1 {
		return fmt.Errorf("growthMultiplier must exceed 1, got %g", c.GrowthMultiplier)
	}
	if c.ZThreshold <= 0 {
		return fmt.Errorf("zThreshold must be positive, got %g", c.ZThreshold)
	}
	if c.MADThreshold <= 0 {
		return fmt.Errorf("madThreshold must be positive, got %g", c.MADThreshold)
	}
	if c.MinAbsoluteCount <= 0 {
		return fmt.Errorf("minAbsoluteCount must be positive, got %d", c.MinAbsoluteCount)
	}
	if c.NewBurstMin <= 0 {
		return fmt.Errorf("newBurstMin must be positive, got %d", c.NewBurstMin)
	}
	if c.BaselineDepth <= 0 {
		return fmt.Errorf("baselineDepth must be positive, got %d", c.BaselineDepth)
	}
	return nil
}

// Classify evaluates every crash-level issue in the current window against
// the baselines and returns one result per issue, ordered by event count
// descending with ties broken by issue ID for determinism.
//
// dayBefore maps issue IDs to their event count in the immediately
// preceding period; a nil map disables the growth sub-rule only, the other
// spike rules still apply. Issues whose level is below error are never
// classified, and an issue with zero events in the window is excluded from
// new/spike consideration.
func Classify(
	issues []models.IssueSnapshot,
	baselines map[string]models.BaselineSeries,
	dayBefore map[string]int,
	window models.TimeRange,
	cfg Config,
) []models.ClassificationResult {
	results := make([]models.ClassificationResult, 0, len(issues))

	for _, issue := range issues {
		if !issue.Level.IsCrash() {
			continue
		}

		baseline := baselines[issue.IssueID]
		result := models.ClassificationResult{
			IssueID:          issue.IssueID,
			Title:            issue.Title,
			Level:            issue.Level,
			EventCount:       issue.EventCount,
			UserCount:        issue.UserCount,
			Link:             issue.Link,
			Categories:       []models.Category{},
			BaselineMean:     baseline.Mean(),
			BaselineStdDev:   baseline.StdDev(),
			BaselineMedian:   baseline.Median(),
			BaselineMAD:      baseline.MAD(),
			BaselineCounts:   baseline.Counts,
			BaselineDegraded: baseline.AnyDegraded(),
		}
		if dayBefore != nil {
			result.DayBeforeCount = dayBefore[issue.IssueID]
		}

		if issue.EventCount > 0 && window.Contains(issue.FirstSeen) {
			result.Categories = append(result.Categories, models.CategoryNew)
		}

		if issue.EventCount >= cfg.HighPriorityMinEvents || issue.UserCount >= cfg.HighPriorityMinUsers {
			result.Categories = append(result.Categories, models.CategoryHighPriority)
		}

		applySpikeRules(&result, baseline, dayBefore, cfg)

		results = append(results, result)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].EventCount != results[j].EventCount {
			return results[i].EventCount > results[j].EventCount
		}
		return results[i].IssueID < results[j].IssueID
	})

	return results
}

// applySpikeRules evaluates the four independent spike conditions. The
// absolute floor gates every sub-rule: an issue below MinAbsoluteCount is
// never a spike no matter how large its relative growth, which keeps
// low-volume issues with high relative variance out of the report.
func applySpikeRules(result *models.ClassificationResult, baseline models.BaselineSeries, dayBefore map[string]int, cfg Config) {
	cur := result.EventCount

	if dayBefore != nil {
		growth := float64(cur) / float64(maxInt(dayBefore[result.IssueID], 1))
		result.GrowthMultiplier = &growth
	}

	mean := baseline.Mean()
	std := baseline.StdDev()
	median := baseline.Median()
	mad := baseline.MAD()

	// Zero dispersion makes the ratio undefined: collapse to "triggered"
	// when the current count exceeds the center, otherwise score zero. The
	// score field stays nil in the undefined case.
	zTriggered := false
	switch {
	case std > 0:
		z := (float64(cur) - mean) / std
		result.ZScore = &z
		zTriggered = z >= cfg.ZThreshold
	case float64(cur) > mean:
		zTriggered = true
	default:
		zero := 0.0
		result.ZScore = &zero
	}

	madTriggered := false
	switch {
	case mad > 0:
		score := (float64(cur) - median) / (madScale * mad)
		result.MADScore = &score
		madTriggered = score >= cfg.MADThreshold
	case float64(cur) > median:
		madTriggered = true
	default:
		zero := 0.0
		result.MADScore = &zero
	}

	if cur < cfg.MinAbsoluteCount {
		return
	}

	if result.GrowthMultiplier != nil && *result.GrowthMultiplier >= cfg.GrowthMultiplier {
		result.SpikeReasons = append(result.SpikeReasons, models.SpikeReasonGrowth)
	}
	if zTriggered {
		result.SpikeReasons = append(result.SpikeReasons, models.SpikeReasonZScore)
	}
	if madTriggered {
		result.SpikeReasons = append(result.SpikeReasons, models.SpikeReasonMADScore)
	}
	if baseline.AllZero() && len(baseline.Counts) > 0 && cur >= maxInt(cfg.NewBurstMin, cfg.MinAbsoluteCount) {
		result.SpikeReasons = append(result.SpikeReasons, models.SpikeReasonNewBurst)
	}

	if len(result.SpikeReasons) > 0 {
		result.Categories = append(result.Categories, models.CategorySpike)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
