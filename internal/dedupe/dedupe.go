// Package dedupe collapses search result URLs to one per domain and drops
// candidates that belong to competitors.
package dedupe

import (
	"net/url"
	"strings"
)

// Candidate is a URL selected for contact extraction.
type Candidate struct {
	URL    string `json:"url"`
	Domain string `json:"domain"`
}

// Domain returns the lowercased host of rawURL, or "" when it has none.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// Deduplicate keeps the first URL seen for each domain, in first-seen order,
// and truncates the result to max entries (max <= 0 means no limit). URLs
// with no parsable host are keyed by the URL itself.
func Deduplicate(urls []string, max int) []Candidate {
	seen := make(map[string]struct{}, len(urls))
	var out []Candidate
	for _, u := range urls {
		key := Domain(u)
		if key == "" {
			key = u
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, Candidate{URL: u, Domain: Domain(u)})
		if max > 0 && len(out) == max {
			break
		}
	}
	return out
}

// CompetitorFilter flags domains containing any configured substring.
// Matching is case-insensitive and literal, so "tile" also excludes
// "reptile.com".
type CompetitorFilter struct {
	substrings []string
}

// NewCompetitorFilter builds a filter from substrings, ignoring blanks.
func NewCompetitorFilter(substrings []string) *CompetitorFilter {
	f := &CompetitorFilter{}
	for _, s := range substrings {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			f.substrings = append(f.substrings, s)
		}
	}
	return f
}

// IsCompetitor reports whether domain matches any competitor substring.
func (f *CompetitorFilter) IsCompetitor(domain string) bool {
	d := strings.ToLower(domain)
	for _, s := range f.substrings {
		if strings.Contains(d, s) {
			return true
		}
	}
	return false
}

// Plan is the outcome of deduplication and filtering for one search run.
type Plan struct {
	Candidates []Candidate
	Skipped    []Candidate
}

// BuildPlan deduplicates urls to at most max domains and then separates
// competitor domains. Filtering happens after truncation, so a run may
// yield fewer than max candidates.
func BuildPlan(urls []string, max int, filter *CompetitorFilter) Plan {
	var p Plan
	for _, c := range Deduplicate(urls, max) {
		if filter != nil && filter.IsCompetitor(c.Domain) {
			p.Skipped = append(p.Skipped, c)
			continue
		}
		p.Candidates = append(p.Candidates, c)
	}
	return p
}
