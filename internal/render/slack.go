package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/crashstack/crash-radar/internal/models"
)

const (
	maxTitleLen   = 90
	maxTopIssues  = 5
	maxNewIssues  = 5
	maxSpikes     = 10
	dateLayout    = "2006-01-02"
	displayLayout = "2006-01-02 15:04"
)

// Block is one Slack Block Kit block. The payload is schemaless on the
// Slack side, so a loose map keeps the builder simple.
type Block map[string]any

// Renderer turns a finished report into Slack Block Kit blocks.
type Renderer struct {
	loc *time.Location
}

// NewRenderer builds a Renderer that formats window timestamps in loc.
// A nil loc falls back to UTC.
func NewRenderer(loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.UTC
	}
	return &Renderer{loc: loc}
}

// Render builds the full Block Kit message for a report.
func (r *Renderer) Render(report models.Report) []Block {
	blocks := []Block{
		headerBlock(r.title(report)),
		sectionMrkdwn(r.aggregateText(report)),
		contextMrkdwn(fmt.Sprintf("*Window*: %s", r.windowLabel(report.Window))),
		divider(),
	}

	if report.CrashFree != nil {
		blocks = append(blocks, sectionMrkdwn(crashFreeText(report.CrashFree)), divider())
	}

	if advBlocks := adviceBlocks(report.Advice); len(advBlocks) > 0 {
		blocks = append(blocks, advBlocks...)
	}

	if top := report.TopIssues(maxTopIssues); len(top) > 0 {
		lines := make([]string, 0, len(top))
		for _, res := range top {
			lines = append(lines, issueLine(res))
		}
		blocks = append(blocks,
			sectionMrkdwn("*:sports_medal: Top issues*"),
			sectionMrkdwn(strings.Join(lines, "\n")),
			divider())
	}

	if newIssues := report.ByCategory(models.CategoryNew); len(newIssues) > 0 {
		if len(newIssues) > maxNewIssues {
			newIssues = newIssues[:maxNewIssues]
		}
		lines := make([]string, 0, len(newIssues))
		for _, res := range newIssues {
			lines = append(lines, issueLine(res))
		}
		blocks = append(blocks,
			sectionMrkdwn("*:new: New issues*"),
			sectionMrkdwn(strings.Join(lines, "\n")),
			divider())
	}

	if spikes := report.ByCategory(models.CategorySpike); len(spikes) > 0 {
		if len(spikes) > maxSpikes {
			spikes = spikes[:maxSpikes]
		}
		lines := make([]string, 0, len(spikes))
		for _, res := range spikes {
			lines = append(lines, spikeLine(res))
		}
		blocks = append(blocks,
			sectionMrkdwn("*:chart_with_upwards_trend: Spiking issues*"),
			sectionMrkdwn(strings.Join(lines, "\n")),
			divider())
	}

	if len(report.Recommendations) > 0 {
		lines := make([]string, 0, len(report.Recommendations))
		for _, rec := range report.Recommendations {
			lines = append(lines, "• "+rec)
		}
		blocks = append(blocks,
			sectionMrkdwn("*:clipboard: Recommendations*\n"+strings.Join(lines, "\n")),
			divider())
	}

	blocks = append(blocks, contextMrkdwn(alertFooter(report)))
	return blocks
}

// RenderFailure builds the message posted when a report run fails, so
// the channel still hears something on broken days.
func (r *Renderer) RenderFailure(granularity models.Granularity, window models.TimeRange, runErr error) []Block {
	title := fmt.Sprintf(":warning: Crash report could not be generated (%s)", granularity)
	body := fmt.Sprintf("*Window*: %s\n*Reason*: %s", r.windowLabel(window), truncate(runErr.Error(), 300))
	return []Block{
		headerBlock(title),
		sectionMrkdwn(body),
		contextMrkdwn("Upstream data was unavailable. The report will be retried on the next run."),
	}
}

// FallbackText is the plain-text summary used as the notification preview.
func (r *Renderer) FallbackText(report models.Report) string {
	return fmt.Sprintf("Crash report %s: %d events, %d users affected, alert level %d",
		report.Window.Start.In(r.loc).Format(dateLayout),
		report.Aggregate.TotalEvents,
		report.Aggregate.AffectedUsers,
		report.Alert.Overall)
}

func (r *Renderer) title(report models.Report) string {
	day := report.Window.Start.In(r.loc).Format(dateLayout)
	if report.Granularity == models.GranularityWeekly {
		lastDay := report.Window.End.In(r.loc).Add(-time.Second).Format(dateLayout)
		return fmt.Sprintf(":bar_chart: Weekly crash report %s ~ %s", day, lastDay)
	}
	return fmt.Sprintf(":bar_chart: Daily crash report %s", day)
}

func (r *Renderer) windowLabel(w models.TimeRange) string {
	return fmt.Sprintf("%s ~ %s (%s)",
		w.Start.In(r.loc).Format(displayLayout),
		w.End.In(r.loc).Format(displayLayout),
		r.loc.String())
}

func (r *Renderer) aggregateText(report models.Report) string {
	agg := report.Aggregate
	var b strings.Builder

	if prev := agg.Comparison; prev != nil {
		fmt.Fprintf(&b, "*Crash events*: %d %s\n", agg.TotalEvents, deltaText(agg.TotalEvents, prev.TotalEvents))
		fmt.Fprintf(&b, "*Fatal events*: %d %s\n", agg.FatalEvents, deltaText(agg.FatalEvents, prev.FatalEvents))
		fmt.Fprintf(&b, "*Affected users*: %d %s\n", agg.AffectedUsers, deltaText(agg.AffectedUsers, prev.AffectedUsers))
	} else {
		fmt.Fprintf(&b, "*Crash events*: %d\n", agg.TotalEvents)
		fmt.Fprintf(&b, "*Fatal events*: %d\n", agg.FatalEvents)
		fmt.Fprintf(&b, "*Affected users*: %d\n", agg.AffectedUsers)
	}
	fmt.Fprintf(&b, "*Unique issues*: %d", agg.UniqueIssueCount)

	if report.DegradedBaselinePeriods > 0 {
		fmt.Fprintf(&b, "\n_:warning: %d baseline period(s) unavailable, spike detection degraded_",
			report.DegradedBaselinePeriods)
	}
	return b.String()
}

// deltaText formats a period-over-period change with a trend emoji.
func deltaText(current, previous int) string {
	switch {
	case current == 0 && previous == 0:
		return "(no change :arrow_right:)"
	case current == 0:
		return "(fully resolved :tada:)"
	case previous == 0:
		return "(new :rotating_light:)"
	}
	pct := (float64(current-previous) / float64(previous)) * 100
	sign := ""
	if pct > 0 {
		sign = "+"
	}
	return fmt.Sprintf("(%s%.1f%% %s)", sign, pct, trendEmoji(pct))
}

func trendEmoji(changePct float64) string {
	switch {
	case changePct <= -50:
		return ":chart_with_downwards_trend:"
	case changePct <= -10:
		return ":arrow_lower_right:"
	case changePct >= 50:
		return ":chart_with_upwards_trend:"
	case changePct >= 10:
		return ":arrow_upper_right:"
	default:
		return ":arrow_right:"
	}
}

func crashFreeText(cf *models.CrashFreeRate) string {
	return fmt.Sprintf("*Crash-free sessions*: %s\n*Crash-free users*: %s",
		formatRate(cf.Sessions), formatRate(cf.Users))
}

func formatRate(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.2f%%", *v)
}

func issueLine(res models.ClassificationResult) string {
	title := truncate(res.Title, maxTitleLen)
	if title == "" {
		title = "(untitled)"
	}
	head := title
	if res.Link != "" {
		head = fmt.Sprintf("<%s|%s>", res.Link, title)
	}
	line := fmt.Sprintf("• %s · %d events", head, res.EventCount)
	if res.Level == models.LevelFatal {
		line += " · fatal"
	}
	if res.UserCount > 0 {
		line += fmt.Sprintf(" · %d users", res.UserCount)
	}
	return line
}

func spikeLine(res models.ClassificationResult) string {
	return issueLine(res) + "\n  ↳ " + fmt.Sprintf("day before %d → now %d. %s",
		res.DayBeforeCount, res.EventCount, reasonText(res))
}

// reasonText explains why the spike rules fired, quoting the scores
// that are defined.
func reasonText(res models.ClassificationResult) string {
	parts := make([]string, 0, len(res.SpikeReasons))
	for _, reason := range res.SpikeReasons {
		switch reason {
		case models.SpikeReasonGrowth:
			if res.GrowthMultiplier != nil {
				parts = append(parts, fmt.Sprintf("%.1fx day-over-day growth", *res.GrowthMultiplier))
			} else {
				parts = append(parts, "day-over-day growth")
			}
		case models.SpikeReasonZScore:
			if res.ZScore != nil {
				parts = append(parts, fmt.Sprintf("z-score %.1f vs baseline", *res.ZScore))
			} else {
				parts = append(parts, "above a flat baseline")
			}
		case models.SpikeReasonMADScore:
			if res.MADScore != nil {
				parts = append(parts, fmt.Sprintf("MAD score %.1f vs baseline", *res.MADScore))
			} else {
				parts = append(parts, "above the baseline median")
			}
		case models.SpikeReasonNewBurst:
			parts = append(parts, "burst with no prior history")
		}
	}
	if len(parts) == 0 {
		return "spike rules triggered"
	}
	return "Basis: " + strings.Join(parts, ", ")
}

func alertFooter(report models.Report) string {
	label := statusLabel(report.Alert)
	return fmt.Sprintf("*Alert level*: %d (%s)  ·  generated %s",
		report.Alert.Overall, label,
		report.GeneratedAt.UTC().Format(time.RFC3339))
}

func statusLabel(alert models.AlertLevel) string {
	for _, dim := range alert.Dimensions {
		if dim.Level == alert.Overall {
			return dim.Status
		}
	}
	return "normal"
}

func adviceBlocks(advice *models.Advice) []Block {
	if advice == nil {
		return nil
	}
	blocks := []Block{sectionMrkdwn("*:brain: AI analysis*")}

	if len(advice.TodayActions) > 0 {
		lines := make([]string, 0, len(advice.TodayActions))
		for _, action := range advice.TodayActions {
			line := fmt.Sprintf("• *%s* — %s", action.Title, action.Suggestion)
			var extra []string
			if action.OwnerRole != "" {
				extra = append(extra, "owner: "+action.OwnerRole)
			}
			if action.Why != "" {
				extra = append(extra, "why: "+action.Why)
			}
			if len(extra) > 0 {
				line += fmt.Sprintf(" _(%s)_", strings.Join(extra, ", "))
			}
			lines = append(lines, line)
		}
		blocks = append(blocks, sectionMrkdwn("*Today's actions*\n"+strings.Join(lines, "\n")))
	}

	if len(advice.Monitoring) > 0 {
		blocks = append(blocks, sectionMrkdwn("*Watch*\n• "+strings.Join(advice.Monitoring, "\n• ")))
	}

	blocks = append(blocks, divider())
	return blocks
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}

func headerBlock(text string) Block {
	return Block{
		"type": "header",
		"text": map[string]any{"type": "plain_text", "text": text, "emoji": true},
	}
}

func sectionMrkdwn(text string) Block {
	return Block{
		"type": "section",
		"text": map[string]any{"type": "mrkdwn", "text": text},
	}
}

func contextMrkdwn(text string) Block {
	return Block{
		"type": "context",
		"elements": []map[string]any{
			{"type": "mrkdwn", "text": text},
		},
	}
}

func divider() Block {
	return Block{"type": "divider"}
}
