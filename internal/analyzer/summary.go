package analyzer

import (
	"sort"
	"time"

	"github.com/lotas/tabecho/internal/types"
)

// DomainCount is the number of archived records for one domain.
type DomainCount struct {
	Domain string
	Count  int
}

// Stats summarizes the archive.
type Stats struct {
	Total           int
	WithScreenshots int
	Domains         int
	Projects        int
	Tagged          int
	Oldest          time.Time
	Newest          time.Time
	TotalIdle       time.Duration
	TopDomains      []DomainCount // at most topDomains, largest first
}

const topDomains = 5

// ComputeStats summarizes records.
func ComputeStats(records []types.ArchivedTab) Stats {
	stats := Stats{Total: len(records)}
	domains := make(map[string]int)
	projects := make(map[string]bool)

	for _, rec := range records {
		if len(rec.Screenshot) > 0 {
			stats.WithScreenshots++
		}
		if len(rec.Tags) > 0 {
			stats.Tagged++
		}
		if rec.Project != "" {
			projects[rec.Project] = true
		}
		domain := rec.Domain
		if domain == "" {
			domain = Domain(rec.URL)
		}
		domains[domain]++
		stats.TotalIdle += rec.IdleDuration

		if stats.Oldest.IsZero() || rec.Timestamp.Before(stats.Oldest) {
			stats.Oldest = rec.Timestamp
		}
		if rec.Timestamp.After(stats.Newest) {
			stats.Newest = rec.Timestamp
		}
	}

	stats.Domains = len(domains)
	stats.Projects = len(projects)
	for d, n := range domains {
		stats.TopDomains = append(stats.TopDomains, DomainCount{Domain: d, Count: n})
	}
	sort.Slice(stats.TopDomains, func(i, j int) bool {
		a, b := stats.TopDomains[i], stats.TopDomains[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Domain < b.Domain
	})
	if len(stats.TopDomains) > topDomains {
		stats.TopDomains = stats.TopDomains[:topDomains]
	}
	return stats
}
