package export

import (
	"strings"
	"testing"
	"time"

	"github.com/lotas/tabecho/internal/types"
)

func TestMarkdownGroupsByDomain(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := append(sampleRecords(now), types.ArchivedTab{
		ID:        "r3",
		URL:       "https://go.dev/blog",
		Title:     "",
		Timestamp: now.Add(-10 * time.Minute),
	})

	md := Markdown(recs, now)

	if !strings.HasPrefix(md, "# TabEcho archive (3 tabs)\n") {
		t.Errorf("unexpected header:\n%s", md)
	}
	goIdx := strings.Index(md, "## go.dev (2 tabs)")
	exIdx := strings.Index(md, "## example.com (1 tab)")
	if goIdx < 0 || exIdx < 0 || goIdx > exIdx {
		t.Errorf("groups missing or out of order:\n%s", md)
	}
	if !strings.Contains(md, "- [https://go.dev/blog](https://go.dev/blog) — archived 10m ago\n") {
		t.Errorf("untitled record should use its URL:\n%s", md)
	}
	if !strings.Contains(md, "archived 3d ago · learning #go #docs") {
		t.Errorf("project and tags missing:\n%s", md)
	}
	// Newest first within a domain.
	if strings.Index(md, "go.dev/blog") > strings.Index(md, "go.dev/doc") {
		t.Errorf("records not newest first:\n%s", md)
	}
}

func TestMarkdownEmpty(t *testing.T) {
	md := Markdown(nil, time.Now())
	if !strings.HasPrefix(md, "# TabEcho archive (0 tabs)") {
		t.Errorf("got %q", md)
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Now()
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{3 * time.Hour, "3h ago"},
		{50 * time.Hour, "2d ago"},
	}
	for _, tt := range tests {
		if got := relativeTime(now.Add(-tt.ago), now); got != tt.want {
			t.Errorf("relativeTime(-%s) = %q, want %q", tt.ago, got, tt.want)
		}
	}
}
