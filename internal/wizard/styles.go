package wizard

import (
	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary = lipgloss.Color("86")  // cyan
	colorSuccess = lipgloss.Color("42")  // green
	colorError   = lipgloss.Color("196") // red
	colorInfo    = lipgloss.Color("75")  // blue
	colorMuted   = lipgloss.Color("240") // gray
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(colorPrimary).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	successStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(colorError).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(colorInfo)

	selectedStyle = lipgloss.NewStyle().
			Foreground(colorSuccess).
			Bold(true)

	unselectedStyle = lipgloss.NewStyle().
			Foreground(colorMuted)

	borderStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(1, 2)

	tipStyle = lipgloss.NewStyle().
			Foreground(colorInfo).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorInfo).
			Padding(0, 1).
			MarginTop(1)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(colorMuted).
			Italic(true).
			MarginTop(1)
)

const (
	iconHeader  = "🗃"
	iconSection = "📦"
	iconCheck   = "✓"
	iconCross   = "✗"
	iconTip     = "💡"
	iconSpinner = "⏳"
	iconArrow   = "►"
)

func renderHeader(text string) string {
	return headerStyle.Render(iconHeader + " " + text)
}

func renderSection(text string) string {
	return sectionStyle.Render(iconSection + " " + text)
}

func renderSuccess(text string) string {
	return successStyle.Render(iconCheck + " " + text)
}

func renderError(text string) string {
	return errorStyle.Render(iconCross + " " + text)
}

func renderInfo(text string) string {
	return tipStyle.Render(iconTip + " " + text)
}

func renderOption(selected bool, text string) string {
	if selected {
		return selectedStyle.Render(iconArrow + " " + text)
	}
	return unselectedStyle.Render("  " + text)
}

func renderStatusBar(text string) string {
	return statusBarStyle.Render(text)
}
