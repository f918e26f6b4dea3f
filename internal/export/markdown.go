package export

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lotas/tabecho/internal/analyzer"
	"github.com/lotas/tabecho/internal/types"
)

// Markdown lists records grouped by domain. Larger groups come first and
// records within a group are newest first.
func Markdown(records []types.ArchivedTab, now time.Time) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# TabEcho archive (%d %s)\n", len(records), plural(len(records), "tab"))
	fmt.Fprintf(&b, "> Exported %s\n", now.Format("2006-01-02 15:04"))

	groups := make(map[string][]types.ArchivedTab)
	for _, rec := range records {
		domain := rec.Domain
		if domain == "" {
			domain = analyzer.Domain(rec.URL)
		}
		if domain == "" {
			domain = "(no domain)"
		}
		groups[domain] = append(groups[domain], rec)
	}

	domains := make([]string, 0, len(groups))
	for d := range groups {
		domains = append(domains, d)
	}
	sort.Slice(domains, func(i, j int) bool {
		if len(groups[domains[i]]) != len(groups[domains[j]]) {
			return len(groups[domains[i]]) > len(groups[domains[j]])
		}
		return domains[i] < domains[j]
	})

	for _, domain := range domains {
		recs := groups[domain]
		sort.SliceStable(recs, func(i, j int) bool {
			return recs[i].Timestamp.After(recs[j].Timestamp)
		})
		fmt.Fprintf(&b, "\n## %s (%d %s)\n\n", domain, len(recs), plural(len(recs), "tab"))

		for _, rec := range recs {
			title := rec.Title
			if title == "" {
				title = rec.URL
			}
			fmt.Fprintf(&b, "- [%s](%s) — archived %s", title, rec.URL, relativeTime(rec.Timestamp, now))
			if rec.Project != "" {
				fmt.Fprintf(&b, " · %s", rec.Project)
			}
			for _, tag := range rec.Tags {
				fmt.Fprintf(&b, " #%s", tag)
			}
			b.WriteByte('\n')
		}
	}

	return b.String()
}

func plural(n int, noun string) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

// RelativeTime is relativeTime for other packages.
func RelativeTime(t, now time.Time) string {
	return relativeTime(t, now)
}

func relativeTime(t, now time.Time) string {
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}
