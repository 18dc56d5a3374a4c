package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/labelflow/internal/job"
	"github.com/Iron-Ham/labelflow/internal/ranking"
)

var (
	primaryColor   = lipgloss.Color("#A78BFA") // Purple
	secondaryColor = lipgloss.Color("#10B981") // Green
	warningColor   = lipgloss.Color("#F59E0B") // Amber
	errorColor     = lipgloss.Color("#F87171") // Red
	mutedColor     = lipgloss.Color("#9CA3AF") // Gray

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(primaryColor)
	labelStyle   = lipgloss.NewStyle().Foreground(mutedColor).Width(20)
	mutedStyle   = lipgloss.NewStyle().Foreground(mutedColor)
	successStyle = lipgloss.NewStyle().Foreground(secondaryColor)
	warningStyle = lipgloss.NewStyle().Foreground(warningColor)
	errorStyle   = lipgloss.NewStyle().Foreground(errorColor)
	keyStyle     = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).Width(3)
)

// agreementStyle colors a ranking record by how its label compares to the
// prediction.
func agreementStyle(a ranking.Agreement) lipgloss.Style {
	switch a {
	case ranking.AgreementYes:
		return successStyle
	case ranking.AgreementNo:
		return errorStyle
	default:
		return mutedStyle
	}
}

// jobStatusStyle colors a job status.
func jobStatusStyle(s job.Status) lipgloss.Style {
	switch s {
	case job.StatusSucceeded:
		return successStyle
	case job.StatusFailed:
		return errorStyle
	case job.StatusRunning:
		return warningStyle
	default:
		return mutedStyle
	}
}

// field renders one "label  value" line of a status listing.
func field(label, value string) string {
	return labelStyle.Render(label) + " " + value
}
