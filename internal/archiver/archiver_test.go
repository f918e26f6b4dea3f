package archiver

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/lotas/tabecho/internal/browser/browsertest"
	"github.com/lotas/tabecho/internal/settings"
	"github.com/lotas/tabecho/internal/storage"
	"github.com/lotas/tabecho/internal/tracker"
	"github.com/lotas/tabecho/internal/types"
)

var t0 = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time          { return c.now }
func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func testStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func pngOfWidth(t *testing.T, w int) []byte {
	t.Helper()
	img := imaging.New(w, 10, color.NRGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func proSettings() settings.Settings {
	return settings.Defaults().Apply(settings.ProPatch())
}

func TestArchiveSavesFreshTabData(t *testing.T) {
	store := testStore(t)
	fake := browsertest.New()
	fake.Open(types.TabInfo{ID: 7, WindowID: 1, URL: "https://Go.dev/doc", Title: "Fresh title", FaviconURL: "https://go.dev/favicon.ico"})
	clock := &fakeClock{now: t0}
	a := New(fake, store).WithClock(clock.Now)

	tracked := types.TrackedTab{TabID: 7, URL: "https://go.dev/doc", Title: "Stale title"}
	rec, err := a.Archive(context.Background(), tracked, 65*time.Second, settings.Defaults())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if rec.Title != "Fresh title" || rec.Domain != "go.dev" || rec.FaviconURL == "" {
		t.Errorf("record = %+v", rec)
	}
	if rec.IdleDuration != 65*time.Second || !rec.Timestamp.Equal(t0) {
		t.Errorf("idle/timestamp = %v/%v", rec.IdleDuration, rec.Timestamp)
	}
	if len(rec.ID) != 36 {
		t.Errorf("ID %q is not a UUID", rec.ID)
	}
	if rec.Screenshot != nil {
		t.Error("free account got a screenshot")
	}
	if fake.Captures != 0 {
		t.Errorf("captured %d times on a free account", fake.Captures)
	}
	if len(fake.Notifications) != 1 || fake.Notifications[0] != "Archived idle tab: Fresh title" {
		t.Errorf("notifications = %v", fake.Notifications)
	}
	if len(fake.Closed) != 0 {
		t.Errorf("closed %v with auto-close off", fake.Closed)
	}

	stored, err := store.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if stored.URL != "https://Go.dev/doc" {
		t.Errorf("stored URL = %q", stored.URL)
	}
}

func TestArchiveTabGoneIsVoid(t *testing.T) {
	store := testStore(t)
	fake := browsertest.New()
	a := New(fake, store)

	_, err := a.Archive(context.Background(), types.TrackedTab{TabID: 99}, time.Hour, settings.Defaults())
	if !errors.Is(err, ErrTabGone) {
		t.Fatalf("err = %v, want ErrTabGone", err)
	}
	if n, _ := store.Count(context.Background()); n != 0 {
		t.Errorf("Count = %d, want 0", n)
	}
	if len(fake.Notifications) != 0 {
		t.Errorf("notified for a void archival: %v", fake.Notifications)
	}
}

func TestArchiveAutoCloseFailureKeepsRecord(t *testing.T) {
	store := testStore(t)
	fake := browsertest.New()
	fake.Open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://a.com", Title: "A"})
	fake.CloseErr = errors.New("tab is pinned")
	fake.NotifyErr = errors.New("notifications blocked")
	a := New(fake, store)

	cfg := settings.Defaults()
	cfg.AutoCloseArchivedTabs = true
	rec, err := a.Archive(context.Background(), types.TrackedTab{TabID: 1}, time.Hour, cfg)
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(fake.Closed) != 1 {
		t.Errorf("close attempts = %v, want one", fake.Closed)
	}
	if _, err := store.Get(context.Background(), rec.ID); err != nil {
		t.Errorf("record missing after close failure: %v", err)
	}
}

func TestArchiveAutoClose(t *testing.T) {
	fake := browsertest.New()
	fake.Open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://a.com", Title: "A"})
	a := New(fake, testStore(t))

	cfg := settings.Defaults()
	cfg.AutoCloseArchivedTabs = true
	if _, err := a.Archive(context.Background(), types.TrackedTab{TabID: 1}, time.Hour, cfg); err != nil {
		t.Fatal(err)
	}
	if _, err := fake.GetTab(context.Background(), 1); err == nil {
		t.Error("tab still open after auto-close")
	}
}

func TestArchiveScreenshotRestoresFocus(t *testing.T) {
	fake := browsertest.New()
	fake.Open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://active.com", Active: true})
	fake.Open(types.TabInfo{ID: 2, WindowID: 1, URL: "https://idle.com", Title: "Idle"})
	fake.Screenshot = pngOfWidth(t, 2560)
	a := New(fake, testStore(t)).WithSettleDelay(0)

	rec, err := a.Archive(context.Background(), types.TrackedTab{TabID: 2}, time.Hour, proSettings())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(fake.ActiveAtCapture) != 1 || fake.ActiveAtCapture[0] != 2 {
		t.Errorf("active at capture = %v, want [2]", fake.ActiveAtCapture)
	}
	if got := fake.Active(1); got != 1 {
		t.Errorf("active tab after capture = %d, want 1", got)
	}
	if rec.Screenshot == nil {
		t.Fatal("no screenshot saved")
	}
	img, _, err := image.Decode(bytes.NewReader(rec.Screenshot))
	if err != nil {
		t.Fatalf("decode screenshot: %v", err)
	}
	if w := img.Bounds().Dx(); w != MaxScreenshotWidth {
		t.Errorf("screenshot width = %d, want %d", w, MaxScreenshotWidth)
	}
}

func TestArchiveScreenshotFailureDegrades(t *testing.T) {
	store := testStore(t)
	fake := browsertest.New()
	fake.Open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://active.com", Active: true})
	fake.Open(types.TabInfo{ID: 2, WindowID: 1, URL: "https://idle.com"})
	fake.CaptureErr = errors.New("permission denied")
	a := New(fake, store).WithSettleDelay(0)

	rec, err := a.Archive(context.Background(), types.TrackedTab{TabID: 2}, time.Hour, proSettings())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if rec.Screenshot != nil {
		t.Error("screenshot attached despite capture failure")
	}
	if got := fake.Active(1); got != 1 {
		t.Errorf("focus not restored after failure: active = %d", got)
	}
	if rec.Title != "Untitled" {
		t.Errorf("Title = %q, want Untitled", rec.Title)
	}
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestArchiveActiveTabLookupFailureKeepsFocus(t *testing.T) {
	store := testStore(t)
	fake := browsertest.New()
	fake.Open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://active.com", Active: true})
	fake.Open(types.TabInfo{ID: 2, WindowID: 1, URL: "https://idle.com"})
	fake.Screenshot = pngOfWidth(t, 100)
	fake.ActiveErr = context.DeadlineExceeded
	a := New(fake, store).WithSettleDelay(0)

	rec, err := a.Archive(context.Background(), types.TrackedTab{TabID: 2}, time.Hour, proSettings())
	if err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if len(fake.Activations) != 0 {
		t.Errorf("activations = %v, want none", fake.Activations)
	}
	if got := fake.Active(1); got != 1 {
		t.Errorf("active tab = %d, want 1", got)
	}
	if fake.Captures != 0 || rec.Screenshot != nil {
		t.Error("captured without knowing which tab to restore")
	}
	if n, _ := store.Count(context.Background()); n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestArchiveJPEGScreenshotStoredAsPNG(t *testing.T) {
	fake := browsertest.New()
	fake.Open(types.TabInfo{ID: 3, WindowID: 2, URL: "https://only.com", Active: true})
	var jpg bytes.Buffer
	if err := imaging.Encode(&jpg, imaging.New(800, 10, color.NRGBA{B: 200, A: 255}), imaging.JPEG); err != nil {
		t.Fatal(err)
	}
	fake.Screenshot = jpg.Bytes()
	a := New(fake, testStore(t)).WithSettleDelay(0)

	rec, err := a.Archive(context.Background(), types.TrackedTab{TabID: 3}, time.Hour, proSettings())
	if err != nil {
		t.Fatal(err)
	}
	_, format, err := image.Decode(bytes.NewReader(rec.Screenshot))
	if err != nil {
		t.Fatalf("decode screenshot: %v", err)
	}
	if format != "png" {
		t.Errorf("stored format = %q, want png", format)
	}
}

func TestArchiveAlreadyActiveTabSkipsSwitch(t *testing.T) {
	fake := browsertest.New()
	fake.Open(types.TabInfo{ID: 3, WindowID: 2, URL: "https://only.com", Active: true})
	fake.Screenshot = pngOfWidth(t, 100)
	a := New(fake, testStore(t)).WithSettleDelay(0)

	rec, err := a.Archive(context.Background(), types.TrackedTab{TabID: 3}, time.Hour, proSettings())
	if err != nil {
		t.Fatal(err)
	}
	if len(fake.Activations) != 0 {
		t.Errorf("activations = %v, want none", fake.Activations)
	}
	if !bytes.Equal(rec.Screenshot, fake.Screenshot) {
		t.Error("small screenshot should be kept as captured")
	}
}

func TestScreenshotsNeedPro(t *testing.T) {
	fake := browsertest.New()
	fake.Open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://a.com"})
	a := New(fake, testStore(t)).WithSettleDelay(0)

	cfg := settings.Defaults()
	cfg.EnableScreenshots = true
	if _, err := a.Archive(context.Background(), types.TrackedTab{TabID: 1}, time.Hour, cfg); err != nil {
		t.Fatal(err)
	}
	if fake.Captures != 0 {
		t.Error("captured on a free account")
	}
}

// scanFixture wires a scanner over a fake browser and a temp store.
type scanFixture struct {
	clock    *fakeClock
	tracker  *tracker.Tracker
	browser  *browsertest.Fake
	store    *storage.Store
	settings *settings.MemoryProvider
	scanner  *Scanner
}

func newScanFixture(t *testing.T, cfg settings.Settings) *scanFixture {
	t.Helper()
	f := &scanFixture{
		clock:    &fakeClock{now: t0},
		browser:  browsertest.New(),
		store:    testStore(t),
		settings: settings.NewMemoryProvider(cfg),
	}
	f.tracker = tracker.NewWithClock(f.clock.Now)
	a := New(f.browser, f.store).WithClock(f.clock.Now).WithSettleDelay(0)
	r := NewRetention(f.store).WithClock(f.clock.Now)
	f.scanner = NewScanner(f.tracker, f.browser, f.settings, a, r).WithClock(f.clock.Now)
	return f
}

func (f *scanFixture) open(tab types.TabInfo) {
	f.browser.Open(tab)
	f.tracker.Created(tab)
}

func oneMinute() settings.Settings {
	cfg := settings.Defaults()
	cfg.IdleThreshold = 1
	return cfg
}

func TestScanArchivesOncePerEpisode(t *testing.T) {
	f := newScanFixture(t, oneMinute())
	ctx := context.Background()
	f.open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://a.com", Title: "A"})

	f.clock.Advance(65 * time.Second)
	res, err := f.scanner.Scan(ctx)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Archived != 1 || res.Tracked != 1 {
		t.Fatalf("first scan = %+v", res)
	}
	recs, _ := f.store.List(ctx, 0, 0)
	if len(recs) != 1 || recs[0].IdleDuration != 65*time.Second {
		t.Fatalf("records = %+v", recs)
	}

	f.clock.Advance(65 * time.Second)
	res, err = f.scanner.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Archived != 0 {
		t.Errorf("second scan archived %d, want 0", res.Archived)
	}

	// Reactivation starts a new episode.
	f.tracker.Activated(1, nil)
	f.clock.Advance(61 * time.Second)
	res, _ = f.scanner.Scan(ctx)
	if res.Archived != 1 {
		t.Errorf("scan after reactivation archived %d, want 1", res.Archived)
	}
}

func TestScanBelowThreshold(t *testing.T) {
	f := newScanFixture(t, oneMinute())
	f.open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://a.com"})
	f.clock.Advance(59 * time.Second)
	res, err := f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Archived != 0 {
		t.Errorf("archived %d below threshold", res.Archived)
	}
}

func TestScanSkipsExcludedDomain(t *testing.T) {
	cfg := oneMinute()
	cfg.ExcludedDomains = []string{"excluded.com"}
	f := newScanFixture(t, cfg)
	ctx := context.Background()
	f.open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://excluded.com/inbox", Title: "A"})
	f.open(types.TabInfo{ID: 2, WindowID: 1, URL: "https://other.com/", Title: "B"})

	f.clock.Advance(2 * time.Minute)
	res, err := f.scanner.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Archived != 1 || res.Skipped != 1 {
		t.Fatalf("scan = %+v", res)
	}
	recs, _ := f.store.List(ctx, 0, 0)
	if len(recs) != 1 || recs[0].Domain != "other.com" {
		t.Errorf("records = %+v", recs)
	}
	excluded, ok := f.tracker.Get(1)
	if !ok || excluded.Idle {
		t.Errorf("excluded tab should stay tracked and not idle: %+v", excluded)
	}
}

func TestScanDisabled(t *testing.T) {
	cfg := oneMinute()
	cfg.AutoArchive = false
	f := newScanFixture(t, cfg)
	f.open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://a.com"})
	f.browser.Close(1)
	f.clock.Advance(time.Hour)

	res, err := f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Archived != 0 || res.Reconciled != 0 || res.Tracked != 1 {
		t.Errorf("disabled scan had side effects: %+v", res)
	}
}

func TestScanReconcilesClosedTabs(t *testing.T) {
	f := newScanFixture(t, oneMinute())
	f.open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://a.com"})
	f.open(types.TabInfo{ID: 2, WindowID: 1, URL: "https://b.com"})
	f.browser.Close(2)

	res, err := f.scanner.Scan(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Reconciled != 1 || res.Tracked != 1 {
		t.Errorf("scan = %+v", res)
	}
}

// failingStore fails the first n writes.
type failingStore struct {
	*storage.Store
	fails int
}

func (s *failingStore) Add(ctx context.Context, rec types.ArchivedTab) error {
	if s.fails > 0 {
		s.fails--
		return errors.New("disk full")
	}
	return s.Store.Add(ctx, rec)
}

func TestScanRetriesFailedArchive(t *testing.T) {
	f := newScanFixture(t, oneMinute())
	ctx := context.Background()
	store := &failingStore{Store: f.store, fails: 1}
	a := New(f.browser, store).WithClock(f.clock.Now).WithSettleDelay(0)
	f.scanner = NewScanner(f.tracker, f.browser, f.settings, a, NewRetention(store)).WithClock(f.clock.Now)

	f.open(types.TabInfo{ID: 1, WindowID: 1, URL: "https://a.com"})
	f.open(types.TabInfo{ID: 2, WindowID: 1, URL: "https://b.com"})
	f.clock.Advance(2 * time.Minute)

	res, err := f.scanner.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Failed != 1 || res.Archived != 1 {
		t.Fatalf("first scan = %+v", res)
	}
	first, _ := f.tracker.Get(1)
	if first.Idle {
		t.Error("failed tab left marked idle")
	}

	res, _ = f.scanner.Scan(ctx)
	if res.Archived != 1 || res.Failed != 0 {
		t.Errorf("retry scan = %+v", res)
	}
}

func TestScanAppliesRetentionForFreeAccounts(t *testing.T) {
	cfg := oneMinute()
	cfg.RetentionLimit = 2
	f := newScanFixture(t, cfg)
	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		f.open(types.TabInfo{ID: i, WindowID: 1, URL: "https://a.com/" + string(rune('a'+i))})
	}
	f.clock.Advance(2 * time.Minute)
	res, err := f.scanner.Scan(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Archived != 3 {
		t.Fatalf("scan = %+v", res)
	}
	if n, _ := f.store.Count(ctx); n != 2 {
		t.Errorf("Count = %d, want 2 after retention", n)
	}
}

func TestScanSettingsErrorAborts(t *testing.T) {
	f := newScanFixture(t, oneMinute())
	f.scanner.settings = errProvider{}
	if _, err := f.scanner.Scan(context.Background()); err == nil {
		t.Fatal("expected error when settings are unavailable")
	}
}

type errProvider struct{}

func (errProvider) Get(context.Context) (settings.Settings, error) {
	return settings.Settings{}, errors.New("settings unavailable")
}

func (errProvider) Update(context.Context, settings.Patch) error { return nil }
