// Package browsertest provides an in-memory Browser for tests.
package browsertest

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/lotas/tabecho/internal/browser"
	"github.com/lotas/tabecho/internal/types"
)

// Fake is a scriptable in-memory browser. The zero value is not usable; call New.
type Fake struct {
	mu     sync.Mutex
	tabs   map[int]types.TabInfo
	order  []int
	active map[int]int // windowID -> tabID

	// Screenshot is returned by CaptureVisible.
	Screenshot []byte

	ActiveErr   error
	CaptureErr  error
	ActivateErr error
	CloseErr    error
	NotifyErr   error
	OpenErr     error

	// Calls made through the Browser interface, in order.
	Activations   []int
	Closed        []int
	Created       []string
	Notifications []string
	Captures      int
	// ActiveAtCapture records which tab was active when each capture ran.
	ActiveAtCapture []int
}

var _ browser.Browser = (*Fake)(nil)

// New returns a fake with no open tabs.
func New() *Fake {
	return &Fake{
		tabs:   make(map[int]types.TabInfo),
		active: make(map[int]int),
	}
}

// Open adds (or replaces) a tab. An Active tab becomes the active tab of its window.
func (f *Fake) Open(tab types.TabInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tabs[tab.ID]; !ok {
		f.order = append(f.order, tab.ID)
	}
	f.tabs[tab.ID] = tab
	if tab.Active {
		f.setActive(tab.WindowID, tab.ID)
	}
}

// Close removes a tab without recording a call.
func (f *Fake) Close(tabID int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remove(tabID)
}

// Active returns the active tab id of a window, or 0.
func (f *Fake) Active(windowID int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[windowID]
}

func (f *Fake) OpenTabIDs(ctx context.Context) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.OpenErr != nil {
		return nil, f.OpenErr
	}
	return slices.Clone(f.order), nil
}

func (f *Fake) GetTab(ctx context.Context, tabID int) (types.TabInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tab, ok := f.tabs[tabID]
	if !ok {
		return types.TabInfo{}, fmt.Errorf("tab %d: %w", tabID, browser.ErrTabNotFound)
	}
	return tab, nil
}

func (f *Fake) ActiveTab(ctx context.Context, windowID int) (types.TabInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ActiveErr != nil {
		return types.TabInfo{}, f.ActiveErr
	}
	id, ok := f.active[windowID]
	if !ok {
		return types.TabInfo{}, fmt.Errorf("window %d: %w", windowID, browser.ErrTabNotFound)
	}
	return f.tabs[id], nil
}

func (f *Fake) ActivateTab(ctx context.Context, tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Activations = append(f.Activations, tabID)
	if f.ActivateErr != nil {
		return f.ActivateErr
	}
	tab, ok := f.tabs[tabID]
	if !ok {
		return fmt.Errorf("tab %d: %w", tabID, browser.ErrTabNotFound)
	}
	f.setActive(tab.WindowID, tabID)
	return nil
}

func (f *Fake) CaptureVisible(ctx context.Context, windowID int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Captures++
	f.ActiveAtCapture = append(f.ActiveAtCapture, f.active[windowID])
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	return slices.Clone(f.Screenshot), nil
}

func (f *Fake) CloseTab(ctx context.Context, tabID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = append(f.Closed, tabID)
	if f.CloseErr != nil {
		return f.CloseErr
	}
	if _, ok := f.tabs[tabID]; !ok {
		return fmt.Errorf("tab %d: %w", tabID, browser.ErrTabNotFound)
	}
	f.remove(tabID)
	return nil
}

func (f *Fake) CreateTab(ctx context.Context, url string, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, url)
	return nil
}

func (f *Fake) Notify(ctx context.Context, title, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Notifications = append(f.Notifications, message)
	return f.NotifyErr
}

func (f *Fake) setActive(windowID, tabID int) {
	if prev, ok := f.active[windowID]; ok && prev != tabID {
		t := f.tabs[prev]
		t.Active = false
		f.tabs[prev] = t
	}
	t := f.tabs[tabID]
	t.Active = true
	f.tabs[tabID] = t
	f.active[windowID] = tabID
}

func (f *Fake) remove(tabID int) {
	tab, ok := f.tabs[tabID]
	if !ok {
		return
	}
	delete(f.tabs, tabID)
	f.order = slices.DeleteFunc(f.order, func(id int) bool { return id == tabID })
	if f.active[tab.WindowID] == tabID {
		delete(f.active, tab.WindowID)
	}
}
