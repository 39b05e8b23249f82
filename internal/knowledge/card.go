package knowledge

import (
	"fmt"
	"regexp"
	"sort"
	"time"
)

// SiteType classifies a domain's rendering model.
type SiteType string

const (
	SiteSPA     SiteType = "spa"
	SiteSSR     SiteType = "ssr"
	SiteUnknown SiteType = "unknown"
)

// Card is the per-domain knowledge bundle persisted to disk.
type Card struct {
	Domain        string    `json:"domain"`
	Version       int       `json:"version"`
	Patterns      []Pattern `json:"patterns"`
	SiteType      SiteType  `json:"siteType"`
	RequiresLogin bool      `json:"requiresLogin"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IndexEntry is the lightweight in-memory summary kept for every known
// domain, independent of whether its full card is cached.
type IndexEntry struct {
	Domain     string    `json:"domain"`
	Version    int       `json:"version"`
	PatternCnt int       `json:"patternCount"`
	LastUsedAt time.Time `json:"lastUsedAt"`
}

// domainPattern blocks path traversal: lowercase alnum, dots and hyphens
// only, no leading dot, no "..".
var domainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9.-]{0,251})[a-z0-9]$`)

// ValidateDomain rejects anything that is not a plausible bare hostname.
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("domain must not be empty")
	}
	if !domainPattern.MatchString(domain) {
		return fmt.Errorf("domain %q is not a valid hostname", domain)
	}
	if containsDotDot(domain) {
		return fmt.Errorf("domain %q contains a path traversal sequence", domain)
	}
	return nil
}

func containsDotDot(s string) bool {
	for i := 0; i+1 < len(s); i++ {
		if s[i] == '.' && s[i+1] == '.' {
			return true
		}
	}
	return false
}

// rankByEffectiveConfidence sorts patterns descending and caps the slice
// at maxPatterns.
func rankByEffectiveConfidence(patterns []Pattern, now time.Time, maxPatterns int) []Pattern {
	sorted := make([]Pattern, len(patterns))
	copy(sorted, patterns)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EffectiveConfidence(now) > sorted[j].EffectiveConfidence(now)
	})
	if len(sorted) > maxPatterns {
		sorted = sorted[:maxPatterns]
	}
	return sorted
}

// symmetricDiffRatio computes the symmetric set difference over pattern
// values divided by the larger set's size.
func symmetricDiffRatio(a, b []Pattern) float64 {
	setA := map[string]bool{}
	for _, p := range a {
		setA[p.Value] = true
	}
	setB := map[string]bool{}
	for _, p := range b {
		setB[p.Value] = true
	}
	diff := 0
	for v := range setA {
		if !setB[v] {
			diff++
		}
	}
	for v := range setB {
		if !setA[v] {
			diff++
		}
	}
	maxSize := len(setA)
	if len(setB) > maxSize {
		maxSize = len(setB)
	}
	if maxSize == 0 {
		return 0
	}
	return float64(diff) / float64(maxSize)
}
