package analyzer

import (
	"time"

	"github.com/lotas/tabecho/internal/types"
)

// Verdict is the outcome of checking one tracked tab against the idle rules.
type Verdict int

const (
	Active      Verdict = iota // idle for less than the threshold
	AlreadyIdle                // archival already triggered this episode
	Excluded                   // idle, but its domain is excluded
	Qualifies                  // should be archived now
)

func (v Verdict) String() string {
	switch v {
	case AlreadyIdle:
		return "already-idle"
	case Excluded:
		return "excluded"
	case Qualifies:
		return "qualifies"
	default:
		return "active"
	}
}

// Check decides whether tab should be archived at now. A tab qualifies once it
// has been idle for at least threshold and its domain is not in excluded.
func Check(tab types.TrackedTab, now time.Time, threshold time.Duration, excluded map[string]bool) Verdict {
	if tab.Idle {
		return AlreadyIdle
	}
	if tab.IdleFor(now) < threshold {
		return Active
	}
	if excluded[Domain(tab.URL)] {
		return Excluded
	}
	return Qualifies
}

// IdleCandidate is a tab that qualified in AnalyzeIdle.
type IdleCandidate struct {
	Tab     types.TrackedTab
	IdleFor time.Duration
}

// AnalyzeIdle returns the tabs in order that qualify for archival at now,
// skipping internal pages and repeated URLs.
func AnalyzeIdle(tabs []types.TrackedTab, now time.Time, threshold time.Duration, excluded map[string]bool) []IdleCandidate {
	seen := make(map[string]bool)
	var out []IdleCandidate
	for _, tab := range tabs {
		if tab.URL == "" || IsInternalURL(tab.URL) {
			continue
		}
		if Check(tab, now, threshold, excluded) != Qualifies {
			continue
		}
		key := NormalizeURL(tab.URL)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, IdleCandidate{Tab: tab, IdleFor: tab.IdleFor(now)})
	}
	return out
}
