package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabecho/internal/export"
	"github.com/lotas/tabecho/internal/types"
)

// DetailModel shows information about the selected record.
type DetailModel struct {
	Width      int
	Height     int
	Scroll     int // scroll offset
	ContentLen int // total lines in content
}

// ScrollUp adjusts the scroll offset upward.
func (m *DetailModel) ScrollUp() {
	if m.Scroll > 0 {
		m.Scroll--
	}
}

// ScrollDown adjusts the scroll offset downward.
func (m *DetailModel) ScrollDown() {
	if m.Scroll < m.ContentLen-m.Height {
		m.Scroll++
	}
	if m.Scroll < 0 {
		m.Scroll = 0
	}
}

// ResetScroll resets the scroll offset to 0.
func (m *DetailModel) ResetScroll() {
	m.Scroll = 0
}

// ViewRecord renders one archived record.
func (m DetailModel) ViewRecord(rec *types.ArchivedTab, now time.Time) string {
	if rec == nil {
		return ""
	}

	labelStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("245"))
	valueStyle := lipgloss.NewStyle()
	tagStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("135"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	width := m.Width - 2
	if width < 10 {
		width = 10
	}

	var b strings.Builder

	b.WriteString(labelStyle.Render("Title") + "\n")
	b.WriteString(valueStyle.Render(truncate(rec.Title, width)) + "\n\n")

	b.WriteString(labelStyle.Render("URL") + "\n")
	url := rec.URL
	// Wrap long URLs
	for len(url) > width {
		b.WriteString(valueStyle.Render(url[:width]) + "\n")
		url = url[width:]
	}
	b.WriteString(valueStyle.Render(url) + "\n\n")

	b.WriteString(labelStyle.Render("Archived") + "\n")
	b.WriteString(valueStyle.Render(fmt.Sprintf("%s (%s)",
		rec.Timestamp.Local().Format("2006-01-02 15:04"), export.RelativeTime(rec.Timestamp, now))) + "\n\n")

	b.WriteString(labelStyle.Render("Idle for") + "\n")
	b.WriteString(valueStyle.Render(rec.IdleDuration.Round(time.Second).String()) + "\n\n")

	if rec.Project != "" {
		b.WriteString(labelStyle.Render("Project") + "\n")
		b.WriteString(valueStyle.Render(rec.Project) + "\n\n")
	}
	if len(rec.Tags) > 0 {
		b.WriteString(labelStyle.Render("Tags") + "\n")
		for _, tag := range rec.Tags {
			b.WriteString(tagStyle.Render("#"+tag) + " ")
		}
		b.WriteString("\n\n")
	}

	if len(rec.Screenshot) > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf("Screenshot: %d KB", (len(rec.Screenshot)+1023)/1024)) + "\n")
	} else {
		b.WriteString(dimStyle.Render("No screenshot") + "\n")
	}
	b.WriteString(dimStyle.Render("ID: "+rec.ID) + "\n")

	return b.String()
}

// ViewScrolled applies scroll offset and height truncation to the content string.
func (m *DetailModel) ViewScrolled(content string) string {
	if content == "" {
		return content
	}

	lines := strings.Split(content, "\n")
	m.ContentLen = len(lines)

	maxScroll := m.ContentLen - m.Height
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.Scroll > maxScroll {
		m.Scroll = maxScroll
	}
	if m.Scroll < 0 {
		m.Scroll = 0
	}

	end := m.Scroll + m.Height
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[m.Scroll:end], "\n")
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 0 {
		return ""
	}
	if width == 1 {
		return string(r[:width])
	}
	return string(r[:width-1]) + "…"
}
