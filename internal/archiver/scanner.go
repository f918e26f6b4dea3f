package archiver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lotas/tabecho/internal/analyzer"
	"github.com/lotas/tabecho/internal/applog"
	"github.com/lotas/tabecho/internal/browser"
	"github.com/lotas/tabecho/internal/settings"
	"github.com/lotas/tabecho/internal/tracker"
)

// ScanResult summarizes one pass of the idle scanner.
type ScanResult struct {
	Tracked    int // tracked tabs after reconciliation
	Archived   int
	Skipped    int // excluded domains and tabs that closed mid-scan
	Failed     int // archive attempts that will be retried next tick
	Reconciled int // entries dropped because their tab is no longer open
}

// Scanner finds idle tabs and archives them.
type Scanner struct {
	tracker   *tracker.Tracker
	browser   browser.Browser
	settings  settings.Provider
	archiver  *Archiver
	retention *Retention
	now       func() time.Time
}

// NewScanner wires a scanner. Callers serialize Scan with any other writer.
func NewScanner(t *tracker.Tracker, b browser.Browser, p settings.Provider, a *Archiver, r *Retention) *Scanner {
	return &Scanner{
		tracker:   t,
		browser:   b,
		settings:  p,
		archiver:  a,
		retention: r,
		now:       time.Now,
	}
}

// WithClock overrides the clock used to measure idle time.
func (s *Scanner) WithClock(now func() time.Time) *Scanner {
	s.now = now
	return s
}

// Scan runs one pass: reconcile the tracker with the open tabs, archive every
// tab idle past the threshold whose domain is not excluded, then apply
// retention for free accounts. A per-tab failure never aborts the pass.
func (s *Scanner) Scan(ctx context.Context) (ScanResult, error) {
	var res ScanResult
	cfg, err := s.settings.Get(ctx)
	if err != nil {
		return res, fmt.Errorf("load settings: %w", err)
	}
	if !cfg.AutoArchive {
		res.Tracked = s.tracker.Len()
		applog.Debug("scan.disabled", "tracked", res.Tracked)
		return res, nil
	}

	open, err := s.browser.OpenTabIDs(ctx)
	if err != nil {
		return res, fmt.Errorf("list open tabs: %w", err)
	}
	res.Reconciled = s.tracker.Reconcile(open)

	now := s.now()
	threshold := cfg.Threshold()
	excluded := analyzer.DomainSet(cfg.ExcludedDomains)

	for _, tab := range s.tracker.Snapshot() {
		switch analyzer.Check(tab, now, threshold, excluded) {
		case analyzer.Excluded:
			res.Skipped++
			continue
		case analyzer.Qualifies:
		default:
			continue
		}
		// Claim the episode seen in the snapshot. An activation since then
		// started a new one and the tab is no longer idle.
		if !s.tracker.MarkIdleSince(tab.TabID, tab.LastActiveAt) {
			continue
		}
		idleFor := tab.IdleFor(now)
		_, err := s.archiver.Archive(ctx, tab, idleFor, cfg)
		switch {
		case err == nil:
			res.Archived++
		case errors.Is(err, ErrTabGone):
			res.Skipped++
			applog.Debug("scan.tab_gone", "tab", tab.TabID)
		default:
			res.Failed++
			s.tracker.ClearIdle(tab.TabID)
			applog.Error("scan.archive", err, "tab", tab.TabID, "url", tab.URL)
		}
	}
	res.Tracked = s.tracker.Len()

	if !cfg.IsPro && s.retention != nil {
		if _, err := s.retention.Enforce(ctx, cfg); err != nil {
			applog.Error("scan.retention", err)
		}
	}

	applog.Info("scan.done", "tracked", res.Tracked, "archived", res.Archived,
		"skipped", res.Skipped, "failed", res.Failed, "reconciled", res.Reconciled)
	return res, nil
}
