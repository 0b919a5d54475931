package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ryo246912/gh-actions-scan/internal/logs"
	"github.com/ryo246912/gh-actions-scan/internal/models"
)

// PreviewPanel renders the detail pane next to a list
type PreviewPanel struct {
	styles Styles
	width  int
	height int
}

// NewPreviewPanel creates a new preview panel
func NewPreviewPanel(styles Styles) *PreviewPanel {
	return &PreviewPanel{styles: styles}
}

// SetSize sets the size of the preview panel
func (p *PreviewPanel) SetSize(width, height int) {
	p.width = width
	p.height = height
}

func (p *PreviewPanel) field(b *strings.Builder, label, value string) {
	b.WriteString(p.styles.GetSubtitle().Render(label + ": "))
	b.WriteString(value)
	b.WriteString("\n")
}

func (p *PreviewPanel) box(content string) string {
	return p.styles.GetContent().Width(p.width - 2).Height(p.height - 2).Render(content)
}

// RenderWorkflowPreview renders a workflow and its latest run
func (p *PreviewPanel) RenderWorkflowPreview(workflow *models.Workflow) string {
	if workflow == nil {
		return p.renderEmpty()
	}

	var b strings.Builder
	b.WriteString(p.styles.GetTitle().Render(workflow.Name))
	b.WriteString("\n\n")

	p.field(&b, "File", workflow.Path)
	p.field(&b, "State", p.styles.StatusStyle(workflow.State).Render(workflow.State))
	p.field(&b, "Runs", fmt.Sprintf("%d", len(workflow.RecentRuns)))
	p.field(&b, "Definition", humanize.Bytes(uint64(len(workflow.Content))))

	if len(workflow.RecentRuns) > 0 {
		latest := workflow.RecentRuns[0]
		status := DisplayStatus(latest.Status, latest.Conclusion)
		b.WriteString("\n")
		p.field(&b, "Latest", fmt.Sprintf("#%d %s %s",
			latest.RunNumber,
			p.styles.StatusStyle(status).Render(StatusIcon(status)+" "+status),
			humanize.Time(latest.TriggeredAt)))
		p.field(&b, "Branch", latest.Branch)
	}

	b.WriteString("\n")
	b.WriteString(p.styles.GetHelp().Render("Enter: view recent runs"))
	return p.box(b.String())
}

// RenderRunPreview renders a run with its jobs and steps
func (p *PreviewPanel) RenderRunPreview(run *models.WorkflowRun) string {
	if run == nil {
		return p.renderEmpty()
	}

	var b strings.Builder
	b.WriteString(p.styles.GetTitle().Render(fmt.Sprintf("Run #%d", run.RunNumber)))
	b.WriteString("\n\n")

	p.field(&b, "Branch", run.Branch)
	p.field(&b, "Commit", shortSHA(run.CommitSHA)+" "+truncate(firstLine(run.CommitMessage), p.width-20))
	p.field(&b, "Event", run.Event)
	p.field(&b, "Triggered", humanize.Time(run.TriggeredAt))
	if d := RunDuration(*run); d > 0 {
		p.field(&b, "Duration", FormatDuration(d))
	}
	b.WriteString("\n")

	if len(run.Jobs) == 0 {
		b.WriteString(p.styles.GetHelp().Render("No jobs reported"))
	} else {
		b.WriteString(p.styles.GetTitle().Render("Jobs & Steps"))
		b.WriteString("\n\n")
		for i, job := range run.Jobs {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(p.renderJob(job.Name, job.Status, job.Conclusion, job.Duration(), job.Steps))
		}
	}
	return p.box(b.String())
}

// RenderNodePreview renders a graph node and the errors found in its job logs
func (p *PreviewPanel) RenderNodePreview(node *models.GraphNode, job *models.Job) string {
	if node == nil {
		return p.renderEmpty()
	}

	var b strings.Builder
	var duration time.Duration
	if node.StartedAt != nil && node.CompletedAt != nil {
		duration = node.CompletedAt.Sub(*node.StartedAt)
	}
	b.WriteString(p.renderJob(node.Name, node.Status, node.Conclusion, duration, node.Steps))
	b.WriteString("\n")

	needs := "none"
	if len(node.Dependencies) > 0 {
		needs = strings.Join(node.Dependencies, ", ")
	}
	p.field(&b, "Needs", needs)

	if job != nil {
		p.field(&b, "Logs", humanize.Bytes(uint64(len(job.Logs))))
		if errs := logs.Errors(job.Logs); len(errs) > 0 {
			b.WriteString("\n")
			b.WriteString(p.styles.StatusStyle("failure").Render("Errors"))
			b.WriteString("\n")
			for _, e := range errs {
				b.WriteString("  " + truncate(e, p.width-8) + "\n")
			}
		}
		b.WriteString("\n")
		b.WriteString(p.styles.GetHelp().Render("Enter: view job logs"))
	}
	return p.box(b.String())
}

func (p *PreviewPanel) renderJob(name, status, conclusion string, duration time.Duration, steps []models.Step) string {
	var b strings.Builder

	jobStatus := DisplayStatus(status, conclusion)
	available := p.width - 6
	if available < 10 {
		available = 10
	}
	b.WriteString(p.styles.StatusStyle(jobStatus).Render(fmt.Sprintf("%s %s", StatusIcon(jobStatus), truncate(name, available))))
	b.WriteString("\n")
	if duration > 0 {
		b.WriteString(p.styles.GetHelp().Render("Duration: " + FormatDuration(duration)))
		b.WriteString("\n")
	}

	stepWidth := p.width - 8
	if stepWidth < 10 {
		stepWidth = 10
	}
	for _, step := range steps {
		stepStatus := DisplayStatus(step.Status, step.Conclusion)
		fmt.Fprintf(&b, "  %s %s\n", p.styles.StatusStyle(stepStatus).Render(StatusIcon(stepStatus)), truncate(step.Name, stepWidth))
	}
	return b.String()
}

func (p *PreviewPanel) renderEmpty() string {
	return p.box(p.styles.GetHelp().Render("Select an item to see details"))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
