// Package ui holds the view models of the activity browser: filter controls,
// badges, detail views and error alerts. They derive display strings and emit
// change intents; rendering is left to the terminal UI and the CLI printers.
package ui

import "github.com/charmbracelet/lipgloss"

var (
	Primary     = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#6b7280")
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Destructive = lipgloss.Color("#e53935")
	Accent      = lipgloss.Color("#4db6ac")

	TitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(Primary)
	LabelStyle    = lipgloss.NewStyle().Foreground(Muted)
	SelectedStyle = lipgloss.NewStyle().Bold(true).Reverse(true)
	LinkStyle     = lipgloss.NewStyle().Foreground(Accent).Underline(true)
	BannerStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#101F38")).Background(Success).Padding(0, 1)
)
