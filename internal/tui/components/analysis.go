package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/ryo246912/gh-actions-scan/internal/models"
)

// RenderAnalysis renders a security analysis as plain scrollable lines.
// Issues are listed most severe first.
func RenderAnalysis(styles Styles, resp *models.AnalysisResponse) string {
	if resp == nil || resp.Analysis == nil {
		return styles.GetHelp().Render("No analysis available")
	}
	result := resp.Analysis

	var b strings.Builder
	b.WriteString(styles.GetSubtitle().Render("Overall risk: "))
	b.WriteString(styles.RiskStyle(result.OverallRisk).Render(strings.ToUpper(string(result.OverallRisk))))
	b.WriteString("\n")

	source := "fresh analysis " + humanize.Time(result.Timestamp)
	if result.Cached {
		source = "cached analysis from " + humanize.Time(result.Timestamp)
	}
	b.WriteString(styles.GetHelp().Render(source))
	b.WriteString("\n")

	if resp.Snapshot != nil {
		if wf, ok := resp.Snapshot.FirstWorkflowWithRuns(); ok {
			b.WriteString(styles.GetHelp().Render("workflow: " + wf.Path))
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")

	if result.Summary != "" {
		b.WriteString(result.Summary)
		b.WriteString("\n\n")
	}

	counts := result.IssueCounts()
	levels := []models.RiskLevel{models.RiskCritical, models.RiskHigh, models.RiskMedium, models.RiskLow}
	parts := make([]string, 0, len(levels))
	for _, level := range levels {
		parts = append(parts, styles.RiskStyle(level).Render(fmt.Sprintf("%s: %d", level, counts[level])))
	}
	b.WriteString(strings.Join(parts, "  "))
	b.WriteString("\n")

	if len(result.Issues) == 0 {
		b.WriteString("\n")
		b.WriteString(styles.StatusStyle("success").Render("✓ No issues found"))
		return b.String()
	}

	issues := append([]models.SecurityIssue(nil), result.Issues...)
	sort.SliceStable(issues, func(i, j int) bool {
		return issues[i].Severity.Rank() > issues[j].Severity.Rank()
	})

	for i, issue := range issues {
		b.WriteString("\n")
		fmt.Fprintf(&b, "%d. %s %s\n", i+1,
			styles.RiskStyle(issue.Severity).Render("["+strings.ToUpper(string(issue.Severity))+"]"),
			issue.Title)
		fmt.Fprintf(&b, "   category: %s\n", issue.Category)
		if issue.Location != "" {
			fmt.Fprintf(&b, "   location: %s\n", issue.Location)
		}
		for _, line := range strings.Split(issue.Description, "\n") {
			b.WriteString("   " + line + "\n")
		}
		fmt.Fprintf(&b, "   fix: %s\n", issue.Recommendation)
		if issue.SuggestedFix != "" {
			for _, line := range strings.Split(issue.SuggestedFix, "\n") {
				b.WriteString("     " + styles.GetHelp().Render(line) + "\n")
			}
		}
	}
	return strings.TrimSuffix(b.String(), "\n")
}
