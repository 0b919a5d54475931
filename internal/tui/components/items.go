package components

import (
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/ryo246912/gh-actions-scan/internal/models"
)

// Styles interface for avoiding circular dependency
type Styles interface {
	StatusStyle(status string) lipgloss.Style
	RiskStyle(risk models.RiskLevel) lipgloss.Style
	ListItem() lipgloss.Style
	SelectedItem() lipgloss.Style
	GetTitle() lipgloss.Style
	GetSubtitle() lipgloss.Style
	GetHelp() lipgloss.Style
	GetContent() lipgloss.Style
	GetStatusInProgress() lipgloss.Style
}

// StatusIcon returns an appropriate icon for a status
func StatusIcon(status string) string {
	switch status {
	case "success", "completed", "active":
		return "✓"
	case "failure", "failed", "timed_out", "startup_failure":
		return "✗"
	case "pending", "queued", "waiting", "action_required":
		return "⏳"
	case "in_progress", "running":
		return "⏵"
	case "skipped", "cancelled", "neutral":
		return "⊘"
	default:
		return "○"
	}
}

// DisplayStatus prefers the conclusion once one is reported
func DisplayStatus(status, conclusion string) string {
	if conclusion != "" {
		return conclusion
	}
	if status == "" {
		return "unknown"
	}
	return status
}

// FormatDuration renders d as 42s, 7m or 1.5h
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Minute:
		return fmt.Sprintf("%.0fs", d.Seconds())
	case d < time.Hour:
		return fmt.Sprintf("%.0fm", d.Minutes())
	default:
		return fmt.Sprintf("%.1fh", d.Hours())
	}
}

// RunDuration returns the run's wall-clock time, or zero while it is still running
func RunDuration(run models.WorkflowRun) time.Duration {
	if run.CompletedAt == nil {
		return 0
	}
	return run.CompletedAt.Sub(run.TriggeredAt)
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

// WorkflowItem represents a workflow in the list
type WorkflowItem struct {
	Workflow models.Workflow
}

// FilterValue returns the value to filter on
func (w WorkflowItem) FilterValue() string {
	return w.Workflow.Name
}

// WorkflowItemDelegate renders workflows with their latest run status
type WorkflowItemDelegate struct {
	styles Styles
}

func NewWorkflowItemDelegate(styles Styles) *WorkflowItemDelegate {
	return &WorkflowItemDelegate{styles: styles}
}

func (d *WorkflowItemDelegate) Height() int                             { return 1 }
func (d *WorkflowItemDelegate) Spacing() int                            { return 0 }
func (d *WorkflowItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render renders the workflow item
func (d *WorkflowItemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(WorkflowItem)
	if !ok {
		return
	}
	workflow := item.Workflow

	status := workflow.State
	if len(workflow.RecentRuns) > 0 {
		latest := workflow.RecentRuns[0]
		status = DisplayStatus(latest.Status, latest.Conclusion)
	}
	statusText := fmt.Sprintf("%s %-10s", StatusIcon(status), status)

	name := fmt.Sprintf("%-32s", truncate(workflow.Name, 32))
	file := fmt.Sprintf("%-28s", truncate(path.Base(workflow.Path), 28))
	runs := fmt.Sprintf("%d runs", len(workflow.RecentRuns))

	var line string
	if index == m.Index() {
		line = d.styles.SelectedItem().Render(strings.Join([]string{statusText, name, file, runs}, " "))
	} else {
		parts := []string{d.styles.StatusStyle(status).Render(statusText), name, file, runs}
		line = d.styles.ListItem().Render(strings.Join(parts, " "))
	}
	_, _ = fmt.Fprint(w, line)
}

// RunItem represents a workflow run in the list
type RunItem struct {
	Run models.WorkflowRun
}

func (r RunItem) FilterValue() string {
	return fmt.Sprintf("#%d %s", r.Run.RunNumber, r.Run.Branch)
}

// RunItemDelegate renders runs in table format
type RunItemDelegate struct {
	styles Styles
}

func NewRunItemDelegate(styles Styles) *RunItemDelegate {
	return &RunItemDelegate{styles: styles}
}

func (d *RunItemDelegate) Height() int                             { return 1 }
func (d *RunItemDelegate) Spacing() int                            { return 0 }
func (d *RunItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

// Render renders the run item as a table row
func (d *RunItemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(RunItem)
	if !ok {
		return
	}
	run := item.Run

	status := DisplayStatus(run.Status, run.Conclusion)
	number := fmt.Sprintf("#%-6d", run.RunNumber)
	statusText := fmt.Sprintf("%s %-10s", StatusIcon(status), status)
	branch := fmt.Sprintf("%-18s", truncate(run.Branch, 18))
	sha := fmt.Sprintf("%-7s", shortSHA(run.CommitSHA))
	event := fmt.Sprintf("%-14s", truncate(run.Event, 14))
	duration := fmt.Sprintf("%-6s", FormatDuration(RunDuration(run)))
	ago := humanize.Time(run.TriggeredAt)

	var line string
	if index == m.Index() {
		line = d.styles.SelectedItem().Render(strings.Join([]string{number, statusText, branch, sha, event, duration, ago}, " "))
	} else {
		parts := []string{number, d.styles.StatusStyle(status).Render(statusText), branch, sha, event, duration, ago}
		line = d.styles.ListItem().Render(strings.Join(parts, " "))
	}
	_, _ = fmt.Fprint(w, line)
}

// NodeItem is a job in a run graph, listed in execution order
type NodeItem struct {
	Position int
	Node     *models.GraphNode
}

func (n NodeItem) FilterValue() string {
	return n.Node.Name
}

// NodeItemDelegate renders graph nodes with their dependencies
type NodeItemDelegate struct {
	styles Styles
}

func NewNodeItemDelegate(styles Styles) *NodeItemDelegate {
	return &NodeItemDelegate{styles: styles}
}

func (d *NodeItemDelegate) Height() int                             { return 1 }
func (d *NodeItemDelegate) Spacing() int                            { return 0 }
func (d *NodeItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d *NodeItemDelegate) Render(w io.Writer, m list.Model, index int, listItem list.Item) {
	item, ok := listItem.(NodeItem)
	if !ok || item.Node == nil {
		return
	}
	node := item.Node

	status := DisplayStatus(node.Status, node.Conclusion)
	statusText := fmt.Sprintf("%s %-10s", StatusIcon(status), status)
	name := fmt.Sprintf("%2d. %-30s", item.Position+1, truncate(node.Name, 30))
	needs := ""
	if len(node.Dependencies) > 0 {
		needs = "← " + strings.Join(node.Dependencies, ", ")
	}

	var line string
	if index == m.Index() {
		line = d.styles.SelectedItem().Render(strings.Join([]string{name, statusText, needs}, " "))
	} else {
		parts := []string{name, d.styles.StatusStyle(status).Render(statusText), d.styles.GetHelp().Render(needs)}
		line = d.styles.ListItem().Render(strings.Join(parts, " "))
	}
	_, _ = fmt.Fprint(w, line)
}
