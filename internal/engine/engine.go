// Package engine is the daemon core. It routes browser events to the tab
// tracker, runs idle scans and answers protocol requests, holding a single
// writer lock across scans and every request that mutates state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/archiver"
	"github.com/lotas/tabecho/internal/browser"
	"github.com/lotas/tabecho/internal/settings"
	"github.com/lotas/tabecho/internal/storage"
	"github.com/lotas/tabecho/internal/tracker"
	"github.com/lotas/tabecho/internal/types"
)

// Engine owns the tracker and serializes writers to it and the store.
type Engine struct {
	mu sync.Mutex // held by scans and mutating requests

	tracker   *tracker.Tracker
	store     *storage.Store
	settings  settings.Provider
	browser   browser.Browser
	archiver  *archiver.Archiver
	scanner   *archiver.Scanner
	retention *archiver.Retention

	alarmMu sync.Mutex
	onAlarm func(reason string) bool
}

// New wires an engine.
func New(t *tracker.Tracker, store *storage.Store, p settings.Provider, b browser.Browser, a *archiver.Archiver, r *archiver.Retention) *Engine {
	return &Engine{
		tracker:   t,
		store:     store,
		settings:  p,
		browser:   b,
		archiver:  a,
		scanner:   archiver.NewScanner(t, b, p, a, r),
		retention: r,
	}
}

// WithScanner replaces the scanner, for tests that need a custom clock.
func (e *Engine) WithScanner(s *archiver.Scanner) *Engine {
	e.scanner = s
	return e
}

// SetAlarm registers the function an AlarmFired event triggers.
func (e *Engine) SetAlarm(trigger func(reason string) bool) {
	e.alarmMu.Lock()
	defer e.alarmMu.Unlock()
	e.onAlarm = trigger
}

// Tracker returns the engine's tab tracker.
func (e *Engine) Tracker() *tracker.Tracker {
	return e.tracker
}

// Scan runs one idle scan under the writer lock. It is the scheduler's job.
func (e *Engine) Scan(ctx context.Context) error {
	_, err := e.scan(ctx)
	return err
}

func (e *Engine) scan(ctx context.Context) (archiver.ScanResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scanner.Scan(ctx)
}

// Startup applies retention once for free accounts.
func (e *Engine) Startup(ctx context.Context) error {
	cfg, err := e.settings.Get(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if cfg.IsPro {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	res, err := e.retention.Enforce(ctx, cfg)
	if err != nil {
		return err
	}
	applog.Info("engine.startup_cleanup", "by_age", res.ByAge, "by_count", res.ByCount)
	return nil
}

// SyncOpenTabs starts tracking every open tab the tracker does not know yet.
// Called when the extension (re)connects; known tabs keep their idle clocks.
func (e *Engine) SyncOpenTabs(ctx context.Context) error {
	ids, err := e.browser.OpenTabIDs(ctx)
	if err != nil {
		return fmt.Errorf("list open tabs: %w", err)
	}
	added := 0
	for _, id := range ids {
		if _, ok := e.tracker.Get(id); ok {
			continue
		}
		tab, err := e.browser.GetTab(ctx, id)
		if err != nil {
			applog.Warn("engine.sync_tab", err, "tab", id)
			continue
		}
		e.tracker.Created(tab)
		added++
	}
	removed := e.tracker.Reconcile(ids)
	applog.Info("engine.synced", "open", len(ids), "added", added, "removed", removed)
	return nil
}

// HandleEvent routes one browser event. Events only touch the tracker, which
// locks itself, so they are not held up by a running scan.
func (e *Engine) HandleEvent(ctx context.Context, ev browser.Event) {
	switch ev := ev.(type) {
	case browser.TabCreated:
		e.tracker.Created(ev.Tab)
	case browser.TabActivated:
		if e.archiver.Capturing() {
			applog.Debug("event.ignored", "kind", "tabActivated", "tab", ev.TabID)
			return
		}
		e.activate(ctx, ev.TabID)
	case browser.TabUpdated:
		tab := ev.Tab
		tab.ID = ev.TabID
		e.tracker.Updated(tab)
	case browser.TabRemoved:
		e.tracker.Removed(ev.TabID)
	case browser.WindowFocusChanged:
		if ev.WindowID == browser.WindowNone || e.archiver.Capturing() {
			return
		}
		tab, err := e.browser.ActiveTab(ctx, ev.WindowID)
		if err != nil {
			applog.Debug("event.focus", "window", ev.WindowID, "err", err.Error())
			return
		}
		e.tracker.Activated(tab.ID, &tab)
	case browser.AlarmFired:
		e.alarmMu.Lock()
		trigger := e.onAlarm
		e.alarmMu.Unlock()
		if trigger != nil {
			trigger("extension:" + ev.Name)
		}
	default:
		applog.Warn("event.unknown", fmt.Errorf("unhandled event %T", ev))
	}
}

func (e *Engine) activate(ctx context.Context, tabID int) {
	var info *types.TabInfo
	tab, err := e.browser.GetTab(ctx, tabID)
	switch {
	case err == nil:
		info = &tab
	case errors.Is(err, browser.ErrTabNotFound):
		e.tracker.Removed(tabID)
		return
	default:
		applog.Debug("event.activate", "tab", tabID, "err", err.Error())
	}
	e.tracker.Activated(tabID, info)
}

// recoverPanic turns a panic in a handler into a failure.
func recoverPanic(action string, err *error) {
	if r := recover(); r != nil {
		applog.Error("message.panic", fmt.Errorf("%v", r), "action", action, "stack", string(debug.Stack()))
		*err = fmt.Errorf("internal error: %v", r)
	}
}
