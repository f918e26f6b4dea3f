// Package tui is the terminal archive browser.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/lotas/tabecho/internal/analyzer"
	"github.com/lotas/tabecho/internal/export"
	"github.com/lotas/tabecho/internal/types"
)

// Archive is the part of the archive store the browser reads and edits.
type Archive interface {
	List(ctx context.Context, limit, offset int) ([]types.ArchivedTab, error)
	Search(ctx context.Context, query string) ([]types.ArchivedTab, error)
	Delete(ctx context.Context, id string) error
}

// --- Messages ---

type recordsLoadedMsg struct {
	records []types.ArchivedTab
	all     bool // unfiltered listing
	err     error
}

type deletedMsg struct {
	id  string
	err error
}

type copiedMsg struct {
	url string
	err error
}

// --- Commands ---

func loadRecords(archive Archive, query string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		if query == "" {
			recs, err := archive.List(ctx, 0, 0)
			return recordsLoadedMsg{records: recs, all: true, err: err}
		}
		recs, err := archive.Search(ctx, query)
		return recordsLoadedMsg{records: recs, err: err}
	}
}

func deleteRecord(archive Archive, id string) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{id: id, err: archive.Delete(context.Background(), id)}
	}
}

func copyURL(write func(string) error, url string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{url: url, err: write(url)}
	}
}

// --- Model ---

type Model struct {
	archive Archive
	clip    func(string) error
	now     func() time.Time

	// Data
	records []types.ArchivedTab
	stats   analyzer.Stats
	query   string

	// UI state
	cursor     int
	offset     int
	search     textinput.Model
	searching  bool
	showDetail bool
	confirmDel bool
	detail     DetailModel
	status     string
	loading    bool
	err        error
	width      int
	height     int
}

// NewModel returns a browser over archive.
func NewModel(archive Archive) Model {
	ti := textinput.New()
	ti.Placeholder = "search title, url, domain, tags..."
	ti.Prompt = "/"
	ti.CharLimit = 200
	ti.Width = 40

	return Model{
		archive: archive,
		clip:    clipboard.WriteAll,
		now:     time.Now,
		search:  ti,
		loading: true,
	}
}

func (m Model) Init() tea.Cmd {
	return loadRecords(m.archive, "")
}

// Selected returns the record under the cursor, or nil.
func (m Model) Selected() *types.ArchivedTab {
	if m.cursor < 0 || m.cursor >= len(m.records) {
		return nil
	}
	return &m.records[m.cursor]
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.detail.Width = m.width - m.width*ListWidthPct/100 - 3 // borders
		m.detail.Height = m.listHeight()
		m.search.Width = m.width - 4
		return m, nil

	case recordsLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.records = msg.records
		if msg.all {
			m.stats = analyzer.ComputeStats(msg.records)
		}
		m.clampCursor()
		m.detail.ResetScroll()
		return m, nil

	case deletedMsg:
		if msg.err != nil {
			m.status = "delete failed: " + msg.err.Error()
			return m, nil
		}
		m.status = "deleted"
		m.stats.Total--
		for i := range m.records {
			if m.records[i].ID == msg.id {
				m.records = append(m.records[:i], m.records[i+1:]...)
				break
			}
		}
		m.clampCursor()
		return m, nil

	case copiedMsg:
		if msg.err != nil {
			m.status = "copy failed: " + msg.err.Error()
		} else {
			m.status = "copied " + msg.url
		}
		return m, nil

	case tea.KeyMsg:
		if m.searching {
			return m.updateSearch(msg)
		}
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m Model) updateSearch(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searching = false
		m.search.Blur()
		m.query = strings.TrimSpace(m.search.Value())
		m.cursor, m.offset = 0, 0
		m.loading = true
		return m, loadRecords(m.archive, m.query)
	case "esc":
		m.searching = false
		m.search.Blur()
		m.search.SetValue(m.query)
		return m, nil
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()
	if m.confirmDel {
		m.confirmDel = false
		m.status = ""
		if key == "y" || key == "d" {
			if rec := m.Selected(); rec != nil {
				return m, deleteRecord(m.archive, rec.ID)
			}
		}
		return m, nil
	}

	m.status = ""
	switch key {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
			m.detail.ResetScroll()
		}
	case "down", "j":
		if m.cursor < len(m.records)-1 {
			m.cursor++
			m.detail.ResetScroll()
		}
	case "home", "g":
		m.cursor = 0
	case "end", "G":
		m.cursor = len(m.records) - 1
		m.clampCursor()
	case "pgup", "K":
		m.detail.ScrollUp()
	case "pgdown", "J":
		m.detail.ScrollDown()
	case "/":
		m.searching = true
		m.search.SetValue(m.query)
		m.search.CursorEnd()
		return m, m.search.Focus()
	case "esc":
		if m.showDetail {
			m.showDetail = false
			return m, nil
		}
		if m.query != "" {
			m.query = ""
			m.search.SetValue("")
			m.cursor, m.offset = 0, 0
			m.loading = true
			return m, loadRecords(m.archive, "")
		}
	case "enter":
		m.showDetail = !m.showDetail
		m.detail.ResetScroll()
	case "d":
		if rec := m.Selected(); rec != nil {
			m.confirmDel = true
			m.status = fmt.Sprintf("delete %q? (y/n)", truncate(rec.Title, 40))
		}
	case "y":
		if rec := m.Selected(); rec != nil {
			return m, copyURL(m.clip, rec.URL)
		}
	case "r":
		m.loading = true
		return m, loadRecords(m.archive, m.query)
	}
	m.clampCursor()
	return m, nil
}

func (m *Model) clampCursor() {
	if m.cursor >= len(m.records) {
		m.cursor = len(m.records) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	h := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if h > 0 && m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
}

func (m Model) listHeight() int {
	h := m.height - 5 // top bar + bottom bar + borders
	if h < 1 {
		h = 1
	}
	return h
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	topBar := renderNavbar(m.stats, len(m.records), m.query, m.width)

	listWidth := m.width - 2
	if m.showDetail {
		listWidth = m.width*ListWidthPct/100 - 2
	}
	listBorder := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Width(listWidth).
		Height(m.listHeight())

	var body string
	switch {
	case m.err != nil:
		body = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("Error: " + m.err.Error())
	case m.loading:
		body = "Loading..."
	case len(m.records) == 0 && m.query != "":
		body = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("No matches for " + m.query)
	case len(m.records) == 0:
		body = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Render("The archive is empty.")
	default:
		body = m.renderList(listWidth)
	}
	panes := listBorder.Render(body)

	if m.showDetail {
		detailBorder := lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Width(m.detail.Width).
			Height(m.listHeight())
		content := m.detail.ViewRecord(m.Selected(), m.now())
		panes = lipgloss.JoinHorizontal(lipgloss.Top, panes, detailBorder.Render(m.detail.ViewScrolled(content)))
	}

	bottomBarStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Padding(0, 1)
	var bottomBar string
	switch {
	case m.searching:
		bottomBar = " " + m.search.View()
	case m.status != "":
		bottomBar = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Padding(0, 1).Render(m.status)
	default:
		bottomBar = bottomBarStyle.Render("j/k move · / search · enter detail · y copy url · d delete · r reload · q quit")
	}

	return lipgloss.JoinVertical(lipgloss.Left, topBar, panes, bottomBar)
}

func (m Model) renderList(width int) string {
	selStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("62"))
	domainStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	ageStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	now := m.now()
	end := m.offset + m.listHeight()
	if end > len(m.records) {
		end = len(m.records)
	}

	var lines []string
	for i := m.offset; i < end; i++ {
		rec := m.records[i]
		age := export.RelativeTime(rec.Timestamp, now)
		meta := " " + rec.Domain + " · " + age
		titleWidth := width - lipgloss.Width(meta) - 2
		title := truncate(rec.Title, titleWidth)
		if i == m.cursor {
			lines = append(lines, selStyle.Render("> "+title+meta))
			continue
		}
		lines = append(lines, "  "+title+domainStyle.Render(" "+rec.Domain)+ageStyle.Render(" · "+age))
	}
	return strings.Join(lines, "\n")
}
