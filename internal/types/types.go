package types

import "time"

// PlaceholderTitle is used for tabs that have not finished loading.
const PlaceholderTitle = "New Tab"

// TabInfo is a live browser tab as reported by the extension.
type TabInfo struct {
	ID         int
	WindowID   int
	URL        string
	Title      string
	FaviconURL string
	Active     bool
	Status     string // "loading" or "complete"
}

// TrackedTab is the tracker's view of one open tab. It is never persisted.
type TrackedTab struct {
	TabID        int
	WindowID     int
	URL          string
	Title        string
	FaviconURL   string
	LastActiveAt time.Time
	Idle         bool // archival already triggered for this idle episode
}

// IdleFor returns how long the tab has been idle at now.
func (t TrackedTab) IdleFor(now time.Time) time.Duration {
	return now.Sub(t.LastActiveAt)
}

// ArchivedTab is a persisted archive record.
type ArchivedTab struct {
	ID           string
	URL          string
	Title        string
	FaviconURL   string
	Domain       string // derived from URL, never set directly
	Timestamp    time.Time
	IdleDuration time.Duration
	Tags         []string
	Project      string
	Screenshot   []byte // PNG, pro accounts only
	Archived     bool
}

// UpdateFields is a partial update for an archived tab. Nil fields are left unchanged.
type UpdateFields struct {
	Tags    *[]string
	Project *string
	Title   *string
}

// Empty reports whether the update changes nothing.
func (u UpdateFields) Empty() bool {
	return u.Tags == nil && u.Project == nil && u.Title == nil
}
