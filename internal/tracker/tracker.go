// Package tracker keeps the live view of open tabs and when each was last used.
package tracker

import (
	"sync"
	"time"

	"github.com/lotas/tabecho/internal/analyzer"
	"github.com/lotas/tabecho/internal/types"
)

// Tracker maps open tab IDs to their last-active time. Iteration follows
// insertion order. All methods are safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	tabs  map[int]*types.TrackedTab
	order []int
	now   func() time.Time
}

// New creates an empty tracker using the wall clock.
func New() *Tracker {
	return NewWithClock(time.Now)
}

// NewWithClock creates an empty tracker that reads time from now.
func NewWithClock(now func() time.Time) *Tracker {
	return &Tracker{
		tabs: make(map[int]*types.TrackedTab),
		now:  now,
	}
}

// Created starts tracking a new tab, even before it has a URL. A repeated
// creation event overwrites the existing entry.
func (t *Tracker) Created(tab types.TabInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if analyzer.IsInternalURL(tab.URL) {
		t.remove(tab.ID)
		return
	}
	t.put(fresh(tab, t.now()))
}

// Activated refreshes the tab's last-active time and clears its idle flag.
// An untracked tab is inserted; info may be nil when only the ID is known.
func (t *Tracker) Activated(tabID int, info *types.TabInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if info != nil && analyzer.IsInternalURL(info.URL) {
		t.remove(tabID)
		return
	}
	now := t.now()
	if entry, ok := t.tabs[tabID]; ok {
		entry.LastActiveAt = now
		entry.Idle = false
		if info != nil {
			entry.WindowID = info.WindowID
			if info.URL != "" {
				entry.URL = info.URL
				entry.Title = titleOrPlaceholder(info.Title)
				entry.FaviconURL = info.FaviconURL
			}
		}
		return
	}
	tab := types.TabInfo{ID: tabID}
	if info != nil {
		tab = *info
		tab.ID = tabID
	}
	t.put(fresh(tab, now))
}

// StatusComplete is the load status of a tab that finished navigating.
const StatusComplete = "complete"

// Updated records a completed navigation or URL change. Internal pages are
// dropped from tracking. Updates without a URL, and title, favicon or
// loading changes at the tracked URL, leave the entry untouched.
func (t *Tracker) Updated(tab types.TabInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if analyzer.IsInternalURL(tab.URL) {
		t.remove(tab.ID)
		return
	}
	if tab.URL == "" {
		return
	}
	if entry, ok := t.tabs[tab.ID]; ok && tab.Status != StatusComplete && tab.URL == entry.URL {
		return
	}
	t.put(fresh(tab, t.now()))
}

// Removed stops tracking a closed tab. It reports whether the tab was tracked.
func (t *Tracker) Removed(tabID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remove(tabID)
}

// Reconcile drops every tracked tab that is not in open, covering missed
// removal events. It returns the number of entries dropped.
func (t *Tracker) Reconcile(open []int) int {
	alive := make(map[int]bool, len(open))
	for _, id := range open {
		alive[id] = true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := t.order[:0]
	dropped := 0
	for _, id := range t.order {
		if alive[id] {
			kept = append(kept, id)
			continue
		}
		delete(t.tabs, id)
		dropped++
	}
	t.order = kept
	return dropped
}

// Snapshot returns copies of all tracked tabs in insertion order.
func (t *Tracker) Snapshot() []types.TrackedTab {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]types.TrackedTab, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.tabs[id])
	}
	return out
}

// Get returns a copy of one tracked tab.
func (t *Tracker) Get(tabID int) (types.TrackedTab, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.tabs[tabID]
	if !ok {
		return types.TrackedTab{}, false
	}
	return *entry, true
}

// MarkIdleSince flags the idle episode that started at lastActiveAt as
// archived. It reports false if the tab is gone, was already flagged, or was
// activated or updated since then.
func (t *Tracker) MarkIdleSince(tabID int, lastActiveAt time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	entry, ok := t.tabs[tabID]
	if !ok || entry.Idle || !entry.LastActiveAt.Equal(lastActiveAt) {
		return false
	}
	entry.Idle = true
	return true
}

// ClearIdle unflags the tab so the next scan retries it.
func (t *Tracker) ClearIdle(tabID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if entry, ok := t.tabs[tabID]; ok {
		entry.Idle = false
	}
}

// Len returns the number of tracked tabs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.order)
}

// Clear forgets every tracked tab.
func (t *Tracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tabs = make(map[int]*types.TrackedTab)
	t.order = nil
}

// put inserts or overwrites an entry, keeping the original position.
func (t *Tracker) put(entry *types.TrackedTab) {
	if _, ok := t.tabs[entry.TabID]; !ok {
		t.order = append(t.order, entry.TabID)
	}
	t.tabs[entry.TabID] = entry
}

func (t *Tracker) remove(tabID int) bool {
	if _, ok := t.tabs[tabID]; !ok {
		return false
	}
	delete(t.tabs, tabID)
	for i, id := range t.order {
		if id == tabID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

func fresh(tab types.TabInfo, now time.Time) *types.TrackedTab {
	return &types.TrackedTab{
		TabID:        tab.ID,
		WindowID:     tab.WindowID,
		URL:          tab.URL,
		Title:        titleOrPlaceholder(tab.Title),
		FaviconURL:   tab.FaviconURL,
		LastActiveAt: now,
	}
}

func titleOrPlaceholder(title string) string {
	if title == "" {
		return types.PlaceholderTitle
	}
	return title
}
