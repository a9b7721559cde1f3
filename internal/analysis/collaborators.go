package analysis

import (
	"context"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

// Citation is a URL a web-search collaborator cited, with the span of the
// answer text it supports.
type Citation struct {
	URL        string `json:"url"`
	Title      string `json:"title"`
	StartIndex int    `json:"start_index"`
	EndIndex   int    `json:"end_index"`
}

// Reply is what every reasoning collaborator returns. Prompt and Kind are
// recorded in the interaction log.
type Reply struct {
	Text       string
	Citations  []Citation
	Kind       string
	Prompt     string
	Model      string
	TokensUsed int
}

type SearchHit struct {
	URL        string            `json:"url"`
	Title      string            `json:"title"`
	Snippet    string            `json:"snippet"`
	Publisher  string            `json:"publisher"`
	Query      string            `json:"query"`
	SearchType models.SearchType `json:"search_type"`
}

type Page struct {
	URL         string
	Title       string
	Publisher   string
	PublishDate string
	Summary     string
	Text        string
}

// SourceDigest is the compact view of a Source handed to the evaluator.
type SourceDigest struct {
	URL            string `json:"url"`
	Title          string `json:"title"`
	Publisher      string `json:"publisher"`
	ContentSummary string `json:"content_summary"`
}

// ClaimAnalyst backs the traditional variant.
type ClaimAnalyst interface {
	AnalyzeClaim(ctx context.Context, claim string, image []byte) (*Reply, error)
	EvaluateSources(ctx context.Context, claim string, sources []SourceDigest) (*Reply, error)
	GenerateVerdict(ctx context.Context, claim string, evidence any) (*Reply, error)
}

// WebAnalyst backs the search-augmented variant. Every reply may carry
// citations.
type WebAnalyst interface {
	InitialSearch(ctx context.Context, claim string, image []byte) (*Reply, error)
	DeeperExploration(ctx context.Context, claim string, initial any) (*Reply, error)
	EvaluateCitedSources(ctx context.Context, claim string, citations []Citation, findings any) (*Reply, error)
	FinalConclusion(ctx context.Context, claim string, findings any) (*Reply, error)
}

type Researcher interface {
	UnderstandRequest(ctx context.Context, request string, image []byte) (*Reply, error)
	GeneralResearch(ctx context.Context, request string, understanding any) (*Reply, error)
	SpecificResearch(ctx context.Context, request string, findings any) (*Reply, error)
	WriteReport(ctx context.Context, request string, findings any) (*Reply, error)
}

// Summarizer turns a step payload into one sentence.
type Summarizer interface {
	SummarizeStep(ctx context.Context, stepNumber int, payload any) (string, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, searchType models.SearchType, limit int) ([]SearchHit, error)
}

// Crawler fetches pages. Failures that are not transport errors wrap
// ErrPageSkipped.
type Crawler interface {
	Crawl(ctx context.Context, url string) (*Page, error)
	Close() error
}

type CrawlerFactory interface {
	NewCrawler(ctx context.Context) (Crawler, error)
}

type Collaborators struct {
	Claims     ClaimAnalyst
	Web        WebAnalyst
	Research   Researcher
	Summarizer Summarizer
	Search     Searcher
	Crawlers   CrawlerFactory
}

// Event is a push notification about a session.
type Event struct {
	Type      string     `json:"type"`
	SessionID string     `json:"session_id"`
	Step      *StepBrief `json:"step,omitempty"`
	Progress  *Progress  `json:"progress,omitempty"`
	Result    *Outcome   `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	Timestamp int64      `json:"timestamp"`
}

const (
	EventStepUpdate       = "step_update"
	EventProgressUpdate   = "progress_update"
	EventAnalysisComplete = "analysis_complete"
	EventAnalysisError    = "analysis_error"
)

// Notifier publishes events fire-and-forget.
type Notifier interface {
	Publish(sessionID string, event Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, Event) {}
