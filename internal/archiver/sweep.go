package archiver

import (
	"context"
	"fmt"
	"time"

	"github.com/lotas/tabecho/internal/analyzer"
	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/firefox"
	"github.com/lotas/tabecho/internal/settings"
	"github.com/lotas/tabecho/internal/types"
)

// SweepResult is the outcome of an offline sweep.
type SweepResult struct {
	Scanned  int
	Archived []types.ArchivedTab
	Failed   int
}

// Sweep archives tabs read from a Firefox session file that have been idle
// past the threshold. Nothing is captured or closed since the browser is not
// attached. Each URL is archived at most once per sweep, and the active tab
// of every window is left alone. A tab's Firefox group becomes its project.
// With dryRun set the qualifying records are returned without being stored.
func (a *Archiver) Sweep(ctx context.Context, tabs []firefox.SessionTab, s settings.Settings, dryRun bool) (SweepResult, error) {
	res := SweepResult{Scanned: len(tabs)}
	now := a.now()

	groups := make(map[int]string, len(tabs))
	tracked := make([]types.TrackedTab, 0, len(tabs))
	for _, t := range tabs {
		if t.Selected {
			continue
		}
		groups[t.TabID] = t.Group
		tracked = append(tracked, t.TrackedTab)
	}

	for _, c := range analyzer.AnalyzeIdle(tracked, now, s.Threshold(), analyzer.DomainSet(s.ExcludedDomains)) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		id, err := a.newID()
		if err != nil {
			return res, fmt.Errorf("generate id: %w", err)
		}
		title := c.Tab.Title
		if title == "" {
			title = "Untitled"
		}
		rec := types.ArchivedTab{
			ID:           id,
			URL:          c.Tab.URL,
			Title:        title,
			FaviconURL:   c.Tab.FaviconURL,
			Domain:       analyzer.Domain(c.Tab.URL),
			Timestamp:    now.Truncate(time.Millisecond),
			IdleDuration: c.IdleFor.Truncate(time.Millisecond),
			Project:      groups[c.Tab.TabID],
			Archived:     true,
		}
		if !dryRun {
			if err := a.store.Add(ctx, rec); err != nil {
				res.Failed++
				applog.Error("sweep.save", err, "url", rec.URL)
				continue
			}
		}
		res.Archived = append(res.Archived, rec)
	}

	applog.Info("sweep.done", "scanned", res.Scanned, "archived", len(res.Archived),
		"failed", res.Failed, "dry_run", dryRun)
	return res, nil
}
