package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/fatih/color"

	"github.com/specdriven/specflow/pkg/models"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	idStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))

	statusStyles = map[models.SpecTaskStatus]lipgloss.Style{
		models.SpecTaskStatusSpecGeneration:       lipgloss.NewStyle().Foreground(lipgloss.Color("33")),
		models.SpecTaskStatusSpecReview:           lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		models.SpecTaskStatusSpecApproved:         lipgloss.NewStyle().Foreground(lipgloss.Color("36")),
		models.SpecTaskStatusSpecChangesRequested: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		models.SpecTaskStatusImplementationStart:  lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		models.SpecTaskStatusImplementation:       lipgloss.NewStyle().Foreground(lipgloss.Color("75")),
		models.SpecTaskStatusValidation:           lipgloss.NewStyle().Foreground(lipgloss.Color("135")),
		models.SpecTaskStatusCompleted:            lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.SpecTaskStatusFailed:               lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.SpecTaskStatusCancelled:            lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	}

	sessionStatusStyles = map[models.WorkSessionStatus]lipgloss.Style{
		models.WorkSessionStatusPending:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		models.WorkSessionStatusActive:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		models.WorkSessionStatusBlocked:   lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		models.WorkSessionStatusCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("36")),
		models.WorkSessionStatusFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		models.WorkSessionStatusCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
	}
)

func renderStatus(s models.SpecTaskStatus) string {
	if style, ok := statusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

func renderSessionStatus(s models.WorkSessionStatus) string {
	if style, ok := sessionStatusStyles[s]; ok {
		return style.Render(string(s))
	}
	return string(s)
}

// printOK and printWarn give create/approve/handoff their one-line verdicts.
func printOK(format string, args ...interface{}) {
	color.New(color.FgGreen).Printf("✓ ")
	color.New().Printf(format+"\n", args...)
}

func printWarn(format string, args ...interface{}) {
	color.New(color.FgYellow).Printf("⚠ ")
	color.New().Printf(format+"\n", args...)
}
