// Package archiver turns idle tracked tabs into archive records and keeps the
// archive within the free-tier retention limits.
package archiver

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lotas/tabecho/internal/analyzer"
	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/browser"
	"github.com/lotas/tabecho/internal/settings"
	"github.com/lotas/tabecho/internal/types"
)

// ErrTabGone is returned when the tab closed (or lost its URL) before it
// could be archived. The attempt is void rather than failed.
var ErrTabGone = errors.New("tab gone")

// NotificationTitle is the title of the notification shown after archival.
const NotificationTitle = "TabEcho"

// DefaultSettleDelay is how long a freshly activated tab is given to render
// before it is captured.
const DefaultSettleDelay = 250 * time.Millisecond

// Store is the part of the archive store the archiver writes to.
type Store interface {
	Add(ctx context.Context, rec types.ArchivedTab) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int, error)
	TrimToNewest(ctx context.Context, n int) (int, error)
}

// Archiver runs the archive operation for one tab at a time.
type Archiver struct {
	browser browser.Browser
	store   Store
	settle  time.Duration
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	newID   func() (string, error)

	capturing atomic.Int32
}

// New returns an archiver using the default settle delay.
func New(b browser.Browser, store Store) *Archiver {
	return &Archiver{
		browser: b,
		store:   store,
		settle:  DefaultSettleDelay,
		now:     time.Now,
		sleep:   sleepCtx,
		newID:   newID,
	}
}

// WithSettleDelay overrides the delay between activating a tab and capturing it.
func (a *Archiver) WithSettleDelay(d time.Duration) *Archiver {
	a.settle = d
	return a
}

// WithClock overrides the clock used for record timestamps.
func (a *Archiver) WithClock(now func() time.Time) *Archiver {
	a.now = now
	return a
}

// Archive persists tab as a record. The live tab is re-read first so the
// record carries its freshest title and favicon. Screenshot, auto-close and
// notification failures are logged and never fail the operation; only a
// failed write does.
func (a *Archiver) Archive(ctx context.Context, tab types.TrackedTab, idleFor time.Duration, s settings.Settings) (types.ArchivedTab, error) {
	live, err := a.browser.GetTab(ctx, tab.TabID)
	if errors.Is(err, browser.ErrTabNotFound) {
		return types.ArchivedTab{}, ErrTabGone
	}
	if err != nil {
		return types.ArchivedTab{}, fmt.Errorf("get tab %d: %w", tab.TabID, err)
	}
	if live.URL == "" {
		return types.ArchivedTab{}, ErrTabGone
	}

	id, err := a.newID()
	if err != nil {
		return types.ArchivedTab{}, fmt.Errorf("generate id: %w", err)
	}
	title := live.Title
	if title == "" {
		title = "Untitled"
	}
	rec := types.ArchivedTab{
		ID:           id,
		URL:          live.URL,
		Title:        title,
		FaviconURL:   live.FaviconURL,
		Domain:       analyzer.Domain(live.URL),
		Timestamp:    a.now().Truncate(time.Millisecond),
		IdleDuration: idleFor.Truncate(time.Millisecond),
		Archived:     true,
	}

	if s.ScreenshotsEnabled() {
		png, err := a.capture(ctx, live)
		if err != nil {
			applog.Warn("archive.screenshot", err, "tab", live.ID, "url", live.URL)
		} else {
			rec.Screenshot = png
		}
	}

	if err := a.store.Add(ctx, rec); err != nil {
		return types.ArchivedTab{}, fmt.Errorf("save tab %d: %w", live.ID, err)
	}
	applog.Info("archive.saved", "id", rec.ID, "tab", live.ID, "domain", rec.Domain,
		"idle_ms", rec.IdleDuration.Milliseconds(), "screenshot", len(rec.Screenshot) > 0)

	if s.AutoCloseArchivedTabs {
		if err := a.browser.CloseTab(ctx, live.ID); err != nil {
			applog.Warn("archive.close", err, "tab", live.ID)
		}
	}
	if err := a.browser.Notify(ctx, NotificationTitle, "Archived idle tab: "+rec.Title); err != nil {
		applog.Warn("archive.notify", err, "tab", live.ID)
	}
	return rec, nil
}

// Capturing reports whether a screenshot is in progress, during which the
// archiver itself is switching tabs.
func (a *Archiver) Capturing() bool {
	return a.capturing.Load() > 0
}

// newID returns a UUIDv7: a millisecond timestamp prefix followed by random bits.
func newID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
