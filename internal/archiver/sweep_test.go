package archiver

import (
	"context"
	"testing"
	"time"

	"github.com/lotas/tabecho/internal/browser/browsertest"
	"github.com/lotas/tabecho/internal/firefox"
	"github.com/lotas/tabecho/internal/settings"
	"github.com/lotas/tabecho/internal/types"
)

func sessionTab(id int, url string, idle time.Duration) firefox.SessionTab {
	return firefox.SessionTab{TrackedTab: types.TrackedTab{
		TabID:        id,
		URL:          url,
		Title:        "tab " + url,
		LastActiveAt: t0.Add(-idle),
	}}
}

func sweepTabs() []firefox.SessionTab {
	grouped := sessionTab(1, "https://example.com/a", 2*time.Hour)
	grouped.Group = "Work"
	selected := sessionTab(5, "https://selected.com/", 3*time.Hour)
	selected.Selected = true
	return []firefox.SessionTab{
		grouped,
		sessionTab(2, "https://example.com/a", 3*time.Hour), // same URL again
		sessionTab(3, "https://fresh.com/", 5*time.Minute),
		sessionTab(4, "https://mail.example.org/inbox", 4*time.Hour),
		selected,
		sessionTab(6, "about:config", 5*time.Hour),
	}
}

func TestSweepArchivesIdleSessionTabs(t *testing.T) {
	store := testStore(t)
	a := New(browsertest.New(), store).WithClock(func() time.Time { return t0 })
	cfg := settings.Defaults()
	cfg.ExcludedDomains = []string{"mail.example.org"}

	res, err := a.Sweep(context.Background(), sweepTabs(), cfg, false)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Scanned != 6 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if len(res.Archived) != 1 {
		t.Fatalf("archived %d, want 1: %+v", len(res.Archived), res.Archived)
	}
	rec := res.Archived[0]
	if rec.URL != "https://example.com/a" || rec.Project != "Work" || rec.IdleDuration != 2*time.Hour {
		t.Errorf("record = %+v", rec)
	}
	if len(rec.Screenshot) != 0 {
		t.Error("sweep must not capture screenshots")
	}

	n, err := store.Count(context.Background())
	if err != nil || n != 1 {
		t.Errorf("stored %d records (err %v), want 1", n, err)
	}
}

func TestSweepDryRunStoresNothing(t *testing.T) {
	store := testStore(t)
	a := New(browsertest.New(), store).WithClock(func() time.Time { return t0 })

	res, err := a.Sweep(context.Background(), sweepTabs(), settings.Defaults(), true)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	// example.com and mail.example.org qualify without exclusions.
	if len(res.Archived) != 2 {
		t.Errorf("archived %d, want 2", len(res.Archived))
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Errorf("dry run stored %d records", n)
	}
}
