// Package browser describes the host browser as the daemon sees it: the
// calls it can make into the extension and the lifecycle events it receives.
package browser

import (
	"context"
	"errors"

	"github.com/lotas/tabecho/internal/types"
)

// WindowNone is the window id reported when no browser window has focus.
const WindowNone = -1

// ErrTabNotFound is returned when a tab id no longer refers to an open tab.
var ErrTabNotFound = errors.New("tab not found")

// Browser is the host API used by the archiver and engine.
type Browser interface {
	OpenTabIDs(ctx context.Context) ([]int, error)
	GetTab(ctx context.Context, tabID int) (types.TabInfo, error)
	// ActiveTab returns the active tab of a window. Returns ErrTabNotFound
	// when the window has none.
	ActiveTab(ctx context.Context, windowID int) (types.TabInfo, error)
	ActivateTab(ctx context.Context, tabID int) error
	// CaptureVisible returns a PNG of the visible area of the window.
	CaptureVisible(ctx context.Context, windowID int) ([]byte, error)
	CloseTab(ctx context.Context, tabID int) error
	CreateTab(ctx context.Context, url string, active bool) error
	Notify(ctx context.Context, title, message string) error
}

// Event is a tab lifecycle event. The set of implementations is closed.
type Event interface {
	event()
}

// TabCreated is sent when a tab opens.
type TabCreated struct {
	Tab types.TabInfo
}

// TabActivated is sent when a tab becomes the active one in its window.
type TabActivated struct {
	TabID    int
	WindowID int
}

// TabUpdated is sent when a tab finishes loading or changes URL.
type TabUpdated struct {
	TabID int
	Tab   types.TabInfo
}

// TabRemoved is sent when a tab closes.
type TabRemoved struct {
	TabID int
}

// WindowFocusChanged is sent when focus moves between windows. WindowID is
// WindowNone when the browser loses focus.
type WindowFocusChanged struct {
	WindowID int
}

// AlarmFired is sent when the extension's own periodic alarm wakes it.
type AlarmFired struct {
	Name string
}

func (TabCreated) event()         {}
func (TabActivated) event()       {}
func (TabUpdated) event()         {}
func (TabRemoved) event()         {}
func (WindowFocusChanged) event() {}
func (AlarmFired) event()         {}
