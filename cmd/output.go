package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ryo246912/gh-actions-scan/internal/models"
	"github.com/ryo246912/gh-actions-scan/internal/tui"
	"github.com/ryo246912/gh-actions-scan/internal/tui/components"
)

var (
	styles     = tui.DefaultStyles()
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef4444")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	boldStyle  = lipgloss.NewStyle().Bold(true)
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func statusLabel(status, conclusion string) string {
	s := components.DisplayStatus(status, conclusion)
	return styles.StatusStyle(s).Render(components.StatusIcon(s) + " " + s)
}

func printSnapshot(w io.Writer, snap *models.PipelineSnapshot) {
	repo := snap.Repository
	fmt.Fprintf(w, "%s %s\n",
		boldStyle.Render(repo.FullName),
		dimStyle.Render(fmt.Sprintf("(%s, id %d, fetched %s)", repo.Provider, repo.ID, humanize.Time(snap.FetchedAt))))

	summary := fmt.Sprintf("%d workflows • %d runs", snap.Summary.TotalWorkflows, snap.Summary.TotalRuns)
	if snap.Summary.LatestRunStatus != "" {
		summary += " • latest run " + snap.Summary.LatestRunStatus
	}
	fmt.Fprintln(w, summary)

	for _, wf := range snap.Workflows {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%s %s %s\n", boldStyle.Render(wf.Name), dimStyle.Render(wf.Path), dimStyle.Render("["+wf.State+"]"))
		if len(wf.RecentRuns) == 0 {
			fmt.Fprintln(w, dimStyle.Render("  no runs"))
			continue
		}
		for _, run := range wf.RecentRuns {
			sha := run.CommitSHA
			if len(sha) > 7 {
				sha = sha[:7]
			}
			fmt.Fprintf(w, "  #%-6d %-24s %-20s %-7s %-14s %-6s %s %s\n",
				run.RunNumber,
				statusLabel(run.Status, run.Conclusion),
				run.Branch,
				sha,
				run.Event,
				components.FormatDuration(components.RunDuration(run)),
				humanize.Time(run.TriggeredAt),
				dimStyle.Render(fmt.Sprintf("%d jobs", len(run.Jobs))))
		}
	}
}

func printGraph(w io.Writer, g *models.WorkflowGraph) {
	title := g.WorkflowName
	if title == "" {
		title = "run"
	}
	fmt.Fprintf(w, "%s %s on %s  %s\n",
		boldStyle.Render(title),
		dimStyle.Render(fmt.Sprintf("#%d", g.RunID)),
		g.Branch,
		statusLabel(g.Status, g.Conclusion))

	if g.TotalDuration != nil {
		fmt.Fprintf(w, "total %s\n", components.FormatDuration(*g.TotalDuration))
	} else {
		fmt.Fprintln(w, dimStyle.Render("total time unknown"))
	}
	if len(g.Cycles) > 0 {
		fmt.Fprintln(w, errorStyle.Render("dependency cycle involving: "+strings.Join(g.Cycles, ", ")))
	}

	fmt.Fprintln(w)
	for i, name := range g.ExecutionOrder {
		node, ok := g.Node(name)
		if !ok {
			continue
		}
		line := fmt.Sprintf("%3d. %-40s %s", i+1, node.Name, statusLabel(node.Status, node.Conclusion))
		if len(node.Dependencies) > 0 {
			line += dimStyle.Render("  needs " + strings.Join(node.Dependencies, ", "))
		}
		fmt.Fprintln(w, line)
	}
}

func printAnalysis(w io.Writer, resp *models.AnalysisResponse) {
	if resp.Snapshot != nil {
		fmt.Fprintln(w, boldStyle.Render(resp.Snapshot.Repository.FullName))
	}
	fmt.Fprintln(w, components.RenderAnalysis(styles, resp))
}
