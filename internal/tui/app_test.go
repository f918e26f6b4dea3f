package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lotas/tabecho/internal/types"
)

type memArchive struct {
	recs    []types.ArchivedTab
	deleted []string
}

func (a *memArchive) List(ctx context.Context, limit, offset int) ([]types.ArchivedTab, error) {
	return append([]types.ArchivedTab(nil), a.recs...), nil
}

func (a *memArchive) Search(ctx context.Context, query string) ([]types.ArchivedTab, error) {
	var out []types.ArchivedTab
	for _, r := range a.recs {
		if strings.Contains(strings.ToLower(r.Title), strings.ToLower(query)) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (a *memArchive) Delete(ctx context.Context, id string) error {
	a.deleted = append(a.deleted, id)
	for i, r := range a.recs {
		if r.ID == id {
			a.recs = append(a.recs[:i], a.recs[i+1:]...)
			break
		}
	}
	return nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEscape}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send applies msg and feeds the messages of any resulting commands back in.
// Commands that do not answer promptly, such as cursor blinks, are dropped.
func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	for cmd != nil {
		out := run(cmd)
		switch out.(type) {
		case recordsLoadedMsg, deletedMsg, copiedMsg:
		default:
			return m
		}
		next, cmd = m.Update(out)
		m = next.(Model)
	}
	return m
}

func run(cmd tea.Cmd) tea.Msg {
	ch := make(chan tea.Msg, 1)
	go func() { ch <- cmd() }()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

func newTestModel(t *testing.T) (Model, *memArchive) {
	t.Helper()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	archive := &memArchive{recs: []types.ArchivedTab{
		{ID: "a", Title: "Go blog", URL: "https://go.dev/blog", Domain: "go.dev", Timestamp: now.Add(-time.Hour)},
		{ID: "b", Title: "Rust book", URL: "https://doc.rust-lang.org/book", Domain: "doc.rust-lang.org", Timestamp: now.Add(-2 * time.Hour), Project: "reading"},
		{ID: "c", Title: "Go spec", URL: "https://go.dev/ref/spec", Domain: "go.dev", Timestamp: now.Add(-3 * time.Hour), Tags: []string{"ref"}},
	}}
	m := NewModel(archive)
	m.now = func() time.Time { return now }
	m = send(t, m, tea.WindowSizeMsg{Width: 120, Height: 30})
	m = send(t, m, run(m.Init()))
	return m, archive
}

func TestLoadsNewestFirst(t *testing.T) {
	m, _ := newTestModel(t)
	if len(m.records) != 3 || m.stats.Total != 3 || m.stats.Domains != 2 {
		t.Fatalf("records=%d stats=%+v", len(m.records), m.stats)
	}
	if m.Selected().ID != "a" {
		t.Errorf("selected %q, want a", m.Selected().ID)
	}
	view := m.View()
	if !strings.Contains(view, "Go blog") || !strings.Contains(view, "3 archived") {
		t.Errorf("view missing content:\n%s", view)
	}
}

func TestSearchFiltersAndEscClears(t *testing.T) {
	m, _ := newTestModel(t)
	m = send(t, m, key("/"))
	if !m.searching {
		t.Fatal("expected search mode")
	}
	for _, r := range "go" {
		m = send(t, m, key(string(r)))
	}
	m = send(t, m, key("enter"))
	if m.searching || m.query != "go" {
		t.Fatalf("searching=%v query=%q", m.searching, m.query)
	}
	if len(m.records) != 2 {
		t.Errorf("got %d matches, want 2", len(m.records))
	}
	if !strings.Contains(m.View(), "2 of 3") {
		t.Errorf("navbar should show filtered count:\n%s", m.View())
	}

	m = send(t, m, key("esc"))
	if m.query != "" || len(m.records) != 3 {
		t.Errorf("esc should clear search: query=%q records=%d", m.query, len(m.records))
	}
}

func TestDeleteAsksForConfirmation(t *testing.T) {
	m, archive := newTestModel(t)
	m = send(t, m, key("j"))
	m = send(t, m, key("d"))
	if !m.confirmDel || len(archive.deleted) != 0 {
		t.Fatal("delete should wait for confirmation")
	}
	m = send(t, m, key("n"))
	if len(archive.deleted) != 0 {
		t.Fatal("declined delete still ran")
	}

	m = send(t, m, key("d"))
	m = send(t, m, key("y"))
	if len(archive.deleted) != 1 || archive.deleted[0] != "b" {
		t.Fatalf("deleted = %v, want [b]", archive.deleted)
	}
	if len(m.records) != 2 || m.stats.Total != 2 {
		t.Errorf("records=%d total=%d", len(m.records), m.stats.Total)
	}
	if m.Selected().ID != "c" {
		t.Errorf("cursor on %q, want c", m.Selected().ID)
	}
}

func TestCopyURL(t *testing.T) {
	m, _ := newTestModel(t)
	var copied string
	m.clip = func(s string) error { copied = s; return nil }
	m = send(t, m, key("y"))
	if copied != "https://go.dev/blog" {
		t.Errorf("copied %q", copied)
	}
	if !strings.Contains(m.status, "copied") {
		t.Errorf("status = %q", m.status)
	}

	m.clip = func(string) error { return errors.New("no clipboard") }
	m = send(t, m, key("y"))
	if !strings.Contains(m.status, "copy failed") {
		t.Errorf("status = %q", m.status)
	}
}

func TestDetailPane(t *testing.T) {
	m, _ := newTestModel(t)
	m = send(t, m, key("G"))
	m = send(t, m, key("enter"))
	if !m.showDetail {
		t.Fatal("enter should open the detail pane")
	}
	view := m.View()
	if !strings.Contains(view, "#ref") || !strings.Contains(view, "No screenshot") {
		t.Errorf("detail pane missing fields:\n%s", view)
	}
	m = send(t, m, key("esc"))
	if m.showDetail {
		t.Error("esc should close the detail pane")
	}
}

func TestQuit(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
