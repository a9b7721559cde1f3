package analysis

import (
	"net/url"
	"sort"
	"strings"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

type publisherInfo struct {
	Name        string
	Credibility float64
	Bias        string
}

var knownPublishers = map[string]publisherInfo{
	"reuters.com":        {"Reuters", 0.95, "center"},
	"ap.org":             {"Associated Press", 0.95, "center"},
	"apnews.com":         {"Associated Press", 0.95, "center"},
	"bbc.com":            {"BBC", 0.90, "center-left"},
	"bbc.co.uk":          {"BBC", 0.90, "center-left"},
	"npr.org":            {"NPR", 0.88, "center-left"},
	"pbs.org":            {"PBS", 0.88, "center"},
	"wsj.com":            {"Wall Street Journal", 0.85, "center-right"},
	"nytimes.com":        {"New York Times", 0.82, "center-left"},
	"washingtonpost.com": {"Washington Post", 0.82, "center-left"},
	"economist.com":      {"The Economist", 0.85, "center"},
	"cnn.com":            {"CNN", 0.75, "left"},
	"factcheck.org":      {"FactCheck.org", 0.92, "center"},
	"snopes.com":         {"Snopes", 0.90, "center"},
	"politifact.com":     {"PolitiFact", 0.88, "center-left"},
}

var highCredibilitySuffixes = []string{".edu", ".gov", ".org"}

var lowCredibilityIndicators = []string{
	"fake", "hoax", "conspiracy", "truth", "patriot", "freedom", "real", "insider",
}

var factCheckDomains = []string{"snopes.com", "politifact.com", "factcheck.org", "fullfact.org"}

// Domain returns the lowercased host of rawURL without a leading www.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// PublisherName maps a URL to a display name, falling back to a title-cased
// form of the domain.
func PublisherName(rawURL string) string {
	domain := Domain(rawURL)
	if domain == "" {
		return ""
	}
	if p, ok := knownPublishers[domain]; ok {
		return p.Name
	}

	base := strings.TrimSuffix(strings.TrimSuffix(domain, ".com"), ".org")
	parts := strings.Split(base, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, ".")
}

// PublisherCredibility scores a domain: known publishers use their table
// score, then public-interest suffixes, then low-credibility name markers.
func PublisherCredibility(rawURL string) float64 {
	domain := Domain(rawURL)
	if p, ok := knownPublishers[domain]; ok {
		return p.Credibility
	}
	for _, suffix := range highCredibilitySuffixes {
		if strings.HasSuffix(domain, suffix) {
			return 0.85
		}
	}
	for _, marker := range lowCredibilityIndicators {
		if strings.Contains(domain, marker) {
			return 0.2
		}
	}
	return 0.5
}

func PublisherBias(rawURL string) string {
	if p, ok := knownPublishers[Domain(rawURL)]; ok {
		return p.Bias
	}
	return "unknown"
}

func hitPriority(h SearchHit) int {
	domain := Domain(h.URL)
	for _, d := range factCheckDomains {
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return 1
		}
	}
	if strings.Contains(h.URL, "/fact-check") {
		return 1
	}
	switch h.SearchType {
	case models.SearchFactCheck:
		return 1
	case models.SearchNews:
		return 2
	case models.SearchAcademic:
		return 3
	}
	if _, ok := knownPublishers[domain]; ok {
		return 2
	}
	if strings.HasSuffix(domain, ".edu") || strings.HasSuffix(domain, ".gov") {
		return 3
	}
	return 4
}

// PrioritizeHits orders hits fact-check first, then news, then academic,
// then everything else. The order within a tier is preserved.
func PrioritizeHits(hits []SearchHit) []SearchHit {
	out := make([]SearchHit, len(hits))
	copy(out, hits)
	sort.SliceStable(out, func(i, j int) bool {
		return hitPriority(out[i]) < hitPriority(out[j])
	})
	return out
}
