package analyzer

import (
	"net/url"
	"sort"
	"strings"
)

// internalPrefixes are browser-owned pages that are never tracked or archived.
var internalPrefixes = []string{
	"chrome:", "chrome-extension:", "moz-extension:", "about:", "edge:",
	"brave:", "view-source:", "devtools:", "resource:",
}

// IsInternalURL reports whether rawURL belongs to the browser or an extension.
// An empty URL is not internal; it belongs to a tab that has not loaded yet.
func IsInternalURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	for _, prefix := range internalPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Domain returns the lowercased hostname of rawURL, or "" if it has none.
func Domain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// DomainSet builds a lookup set from a list of excluded hostnames.
func DomainSet(domains []string) map[string]bool {
	set := make(map[string]bool, len(domains))
	for _, d := range domains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			set[d] = true
		}
	}
	return set
}

// NormalizeURL strips the fragment, sorts query values and drops a trailing
// slash so that the same page opened twice compares equal.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.Fragment = ""
	params := u.Query()
	for k := range params {
		sort.Strings(params[k])
	}
	u.RawQuery = params.Encode()
	result := u.String()
	if strings.HasSuffix(result, "/") && result != u.Scheme+"://"+u.Host+"/" {
		result = strings.TrimRight(result, "/")
	}
	return result
}
