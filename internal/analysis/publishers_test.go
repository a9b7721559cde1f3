package analysis

import (
	"testing"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

func TestPublisherLookup(t *testing.T) {
	tests := []struct {
		url         string
		name        string
		credibility float64
	}{
		{"https://www.reuters.com/world/x", "Reuters", 0.95},
		{"https://apnews.com/article/1", "Associated Press", 0.95},
		{"https://cs.stanford.edu/paper", "Cs.Stanford.Edu", 0.85},
		{"https://realtruthnews.com/post", "Realtruthnews", 0.2},
		{"https://example.com/", "Example", 0.5},
	}
	for _, tt := range tests {
		if got := PublisherName(tt.url); got != tt.name {
			t.Errorf("PublisherName(%s) = %q, want %q", tt.url, got, tt.name)
		}
		if got := PublisherCredibility(tt.url); got != tt.credibility {
			t.Errorf("PublisherCredibility(%s) = %v, want %v", tt.url, got, tt.credibility)
		}
	}
}

func TestPrioritizeHits(t *testing.T) {
	hits := []SearchHit{
		{URL: "https://blog.example.com/a"},
		{URL: "https://mit.edu/b"},
		{URL: "https://www.bbc.com/news/c"},
		{URL: "https://www.politifact.com/d"},
		{URL: "https://other.com/e", SearchType: models.SearchNews},
	}
	got := PrioritizeHits(hits)

	want := []string{
		"https://www.politifact.com/d",
		"https://www.bbc.com/news/c",
		"https://other.com/e",
		"https://mit.edu/b",
		"https://blog.example.com/a",
	}
	for i, u := range want {
		if got[i].URL != u {
			t.Errorf("PrioritizeHits()[%d] = %s, want %s", i, got[i].URL, u)
		}
	}
	if hits[0].URL != "https://blog.example.com/a" {
		t.Error("PrioritizeHits modified its input")
	}
}

func TestExtractKeywords(t *testing.T) {
	got := ExtractKeywords("NASA confirmed that the Apollo 11 mission landed on the Moon in July 1969.", 5)
	if len(got) == 0 || len(got) > 5 {
		t.Fatalf("ExtractKeywords() = %v", got)
	}
	seen := map[string]bool{}
	for _, k := range got {
		if seen[k] {
			t.Errorf("duplicate keyword %q", k)
		}
		seen[k] = true
	}

	if got := ExtractKeywords("   ", 5); got != nil {
		t.Errorf("ExtractKeywords(blank) = %v, want nil", got)
	}
}
