package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/ryo246912/gh-actions-scan/internal/models"
)

// Styles defines the styling for the dashboard
type Styles struct {
	Base     lipgloss.Style
	Title    lipgloss.Style
	Subtitle lipgloss.Style

	listItem     lipgloss.Style
	selectedItem lipgloss.Style

	StatusSuccess    lipgloss.Style
	StatusFailure    lipgloss.Style
	StatusPending    lipgloss.Style
	StatusInProgress lipgloss.Style
	StatusSkipped    lipgloss.Style

	RiskCritical lipgloss.Style
	RiskHigh     lipgloss.Style
	RiskMedium   lipgloss.Style
	RiskLow      lipgloss.Style

	Content lipgloss.Style
	Help    lipgloss.Style
}

// ListItem returns the list item style
func (s Styles) ListItem() lipgloss.Style {
	return s.listItem
}

// SelectedItem returns the selected item style
func (s Styles) SelectedItem() lipgloss.Style {
	return s.selectedItem
}

func (s Styles) GetTitle() lipgloss.Style {
	return s.Title
}

func (s Styles) GetSubtitle() lipgloss.Style {
	return s.Subtitle
}

func (s Styles) GetHelp() lipgloss.Style {
	return s.Help
}

func (s Styles) GetContent() lipgloss.Style {
	return s.Content
}

func (s Styles) GetStatusInProgress() lipgloss.Style {
	return s.StatusInProgress
}

// DefaultStyles returns default styling
func DefaultStyles() Styles {
	var (
		primaryColor  = lipgloss.Color("#7c3aed")
		successColor  = lipgloss.Color("#22c55e")
		failureColor  = lipgloss.Color("#ef4444")
		warningColor  = lipgloss.Color("#f59e0b")
		infoColor     = lipgloss.Color("#3b82f6")
		mutedColor    = lipgloss.Color("#6b7280")
		borderColor   = lipgloss.Color("#374151")
		criticalColor = lipgloss.Color("#dc2626")

		baseBorder = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(borderColor)
	)

	return Styles{
		Base: lipgloss.NewStyle().
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Foreground(primaryColor).
			Bold(true).
			Padding(0, 1),

		Subtitle: lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 1),

		listItem: lipgloss.NewStyle().
			Padding(0, 1),

		selectedItem: lipgloss.NewStyle().
			Foreground(primaryColor).
			Background(lipgloss.Color("#1e1b4b")).
			Padding(0, 1),

		StatusSuccess:    lipgloss.NewStyle().Foreground(successColor).Bold(true),
		StatusFailure:    lipgloss.NewStyle().Foreground(failureColor).Bold(true),
		StatusPending:    lipgloss.NewStyle().Foreground(warningColor).Bold(true),
		StatusInProgress: lipgloss.NewStyle().Foreground(infoColor).Bold(true),
		StatusSkipped:    lipgloss.NewStyle().Foreground(mutedColor).Bold(true),

		RiskCritical: lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Background(criticalColor).Bold(true),
		RiskHigh:     lipgloss.NewStyle().Foreground(failureColor).Bold(true),
		RiskMedium:   lipgloss.NewStyle().Foreground(warningColor).Bold(true),
		RiskLow:      lipgloss.NewStyle().Foreground(infoColor),

		Content: baseBorder.
			Padding(1, 2).
			AlignHorizontal(lipgloss.Left),

		Help: lipgloss.NewStyle().
			Foreground(mutedColor).
			Padding(0, 2),
	}
}

// StatusStyle returns the appropriate style for a run, job or step status
func (s Styles) StatusStyle(status string) lipgloss.Style {
	switch status {
	case "success", "completed", "active":
		return s.StatusSuccess
	case "failure", "failed", "timed_out", "startup_failure":
		return s.StatusFailure
	case "pending", "queued", "waiting", "action_required":
		return s.StatusPending
	case "in_progress", "running":
		return s.StatusInProgress
	case "skipped", "cancelled", "neutral", "disabled_manually", "disabled_inactivity":
		return s.StatusSkipped
	default:
		return s.Base
	}
}

// RiskStyle returns the style for a risk level
func (s Styles) RiskStyle(risk models.RiskLevel) lipgloss.Style {
	switch risk {
	case models.RiskCritical:
		return s.RiskCritical
	case models.RiskHigh:
		return s.RiskHigh
	case models.RiskMedium:
		return s.RiskMedium
	case models.RiskLow:
		return s.RiskLow
	default:
		return s.Base
	}
}
