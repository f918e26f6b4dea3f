package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabecho/internal/analyzer"
)

// ListWidthPct is the percentage of terminal width used for the list pane
// when the detail pane is open.
const ListWidthPct = 55

func renderNavbar(stats analyzer.Stats, shown int, query string, width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	countStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	queryStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	statsStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	left := " " + titleStyle.Render("TabEcho")
	if query != "" {
		left += countStyle.Render(fmt.Sprintf("  %d of %d", shown, stats.Total))
		left += "  " + queryStyle.Render("/"+query)
	} else {
		left += countStyle.Render(fmt.Sprintf("  %d archived", stats.Total))
	}

	right := statsStyle.Render(fmt.Sprintf("%d domains · %d projects · %d screenshots",
		stats.Domains, stats.Projects, stats.WithScreenshots))
	gap := width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	padding := lipgloss.NewStyle().Width(gap)

	return left + padding.Render("") + right + " "
}
