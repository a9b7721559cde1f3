package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/metrics"
	"github.com/BroWo1/factcheck-backend/internal/storage/models"
	"github.com/BroWo1/factcheck-backend/pkg/utils"
)

const (
	maxGeneratedQueries  = 5
	crawlSummaryChars    = 1000
	digestSummaryChars   = 500
	traditionalConfident = 0.5
)

var traditionalSearchTypes = []models.SearchType{
	models.SearchGeneral,
	models.SearchNews,
	models.SearchFactCheck,
}

type traditionalWorkflow struct{}

func (traditionalWorkflow) Variant() models.Variant { return models.VariantTraditional }

func (traditionalWorkflow) ExpectedSteps() int { return 5 }

func (traditionalWorkflow) Execute(ctx context.Context, r *run) (*workflowResult, error) {
	claim := r.session.Input
	claims := r.o.collab.Claims
	if claims == nil {
		return nil, external("claim analysis", errors.New("no claim analyst configured"))
	}

	topic, err := runStep(ctx, r, models.StepTopicAnalysis, "Analyzing claim and identifying key topics",
		func(ctx context.Context, n int) (TopicAnalysis, string, error) {
			reply, err := r.ask(ctx, string(models.StepTopicAnalysis), func(ctx context.Context) (*Reply, error) {
				return claims.AnalyzeClaim(ctx, claim, r.imageBytes())
			})
			if err != nil {
				return TopicAnalysis{}, "", err
			}
			v, summary := finishReply[TopicAnalysis](ctx, r, n, reply, fallbackTopicAnalysis(claim))
			return v, summary, nil
		})
	if err != nil {
		return nil, err
	}

	queries := BuildSearchQueries(claim, topic, maxGeneratedQueries)
	search, err := runStep(ctx, r, models.StepSourceSearch, "Searching for relevant sources",
		func(ctx context.Context, n int) (SourceSearch, string, error) {
			return r.searchSources(ctx, n, queries)
		})
	if err != nil {
		return nil, err
	}

	if _, err := runStep(ctx, r, models.StepContentExtraction, "Extracting content from sources",
		func(ctx context.Context, n int) (ContentExtraction, string, error) {
			return r.extractContent(ctx, n, search.Results)
		}); err != nil {
		return nil, err
	}

	var sources []models.Source
	evaluation, err := runStep(ctx, r, models.StepSourceEvaluation, "Evaluating source credibility and relevance",
		func(ctx context.Context, n int) (SourceEvaluation, string, error) {
			var (
				v       SourceEvaluation
				summary string
				err     error
			)
			v, sources, summary, err = r.evaluateSources(ctx, n, claim)
			return v, summary, err
		})
	if err != nil {
		return nil, err
	}

	verdict, err := runStep(ctx, r, models.StepFinalVerdict, "Generating final verdict",
		func(ctx context.Context, n int) (Verdict, string, error) {
			evidence := map[string]any{
				"initial_analysis":  topic,
				"search_queries":    search.Queries,
				"sources":           sources,
				"source_evaluation": evaluation,
			}
			reply, err := r.ask(ctx, string(models.StepFinalVerdict), func(ctx context.Context) (*Reply, error) {
				return claims.GenerateVerdict(ctx, claim, evidence)
			})
			if err != nil {
				return Verdict{}, "", err
			}
			v, summary := finishReply[Verdict](ctx, r, n, reply, fallbackVerdict)
			v.Verdict = NormalizeVerdict(v.Verdict)
			return v, summary, nil
		})
	if err != nil {
		return nil, err
	}

	summary := verdict.Summary
	if summary == "" {
		summary = verdict.Reasoning
	}
	return &workflowResult{
		Verdict:    verdict.Verdict,
		Confidence: clampConfidence(verdict.ConfidenceScore, traditionalConfident),
		Summary:    summary,
	}, nil
}

// BuildSearchQueries derives up to limit queries from the topic analysis:
// the main topic, then factual claims, then keywords. The claim itself is
// used when nothing else is available.
func BuildSearchQueries(claim string, topic TopicAnalysis, limit int) []string {
	candidates := []string{topic.MainTopic}
	candidates = append(candidates, firstN(topic.FactualClaims, 3)...)
	candidates = append(candidates, firstN(topic.SearchKeywords, 2)...)

	seen := make(map[string]struct{})
	var queries []string
	for _, q := range candidates {
		q = strings.TrimSpace(q)
		key := strings.ToLower(q)
		if q == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		queries = append(queries, q)
		if len(queries) == limit {
			break
		}
	}

	if len(queries) == 0 {
		queries = append(queries, utils.Truncate(claim, 200))
	}
	return queries
}

type searchJob struct {
	Query string
	Type  models.SearchType
}

func (r *run) searchSources(ctx context.Context, number int, queries []string) (SourceSearch, string, error) {
	used := firstN(queries, r.o.cfg.MaxQueries)
	result := SourceSearch{Queries: used}
	result.Step = number

	searcher := r.o.collab.Search
	if searcher == nil {
		return SourceSearch{}, "", fmt.Errorf("web search is not configured: %w", ErrNoSources)
	}

	var jobs []searchJob
	for _, q := range used {
		for _, t := range traditionalSearchTypes {
			jobs = append(jobs, searchJob{Query: q, Type: t})
		}
	}

	outcomes := FanOut(ctx, jobs, r.o.cfg.FanOutLimit, func(ctx context.Context, job searchJob) ([]SearchHit, error) {
		return searcher.Search(ctx, job.Query, job.Type, r.o.cfg.ResultsPerQuery)
	})

	var (
		firstErr error
		hits     []SearchHit
		seen     = make(map[string]struct{})
	)
	for i, out := range outcomes {
		job := jobs[i]
		record := &models.SearchQuery{
			SessionID:    r.session.ID,
			Query:        job.Query,
			Type:         job.Type,
			ResultsCount: len(out.Value),
			Successful:   out.Err == nil,
			CreatedAt:    time.Now(),
		}
		if out.Err != nil {
			record.ErrorMessage = out.Err.Error()
			result.FailedSearches++
			if firstErr == nil {
				firstErr = out.Err
			}
			metrics.SearchQueries.WithLabelValues(string(job.Type), "error").Inc()
		} else {
			metrics.SearchQueries.WithLabelValues(string(job.Type), "success").Inc()
		}
		if err := r.o.store.InsertSearchQuery(r.persist, record); err != nil {
			r.log.Warn("Failed to record search query", zap.String("query", job.Query), zap.Error(err))
		}

		for _, hit := range out.Value {
			if hit.URL == "" {
				continue
			}
			if _, ok := seen[hit.URL]; ok {
				continue
			}
			seen[hit.URL] = struct{}{}
			if hit.Query == "" {
				hit.Query = job.Query
			}
			if hit.SearchType == "" {
				hit.SearchType = job.Type
			}
			if hit.Publisher == "" {
				hit.Publisher = PublisherName(hit.URL)
			}
			hits = append(hits, hit)
		}
	}

	if len(jobs) > 0 && result.FailedSearches == len(jobs) {
		return SourceSearch{}, "", external("search", firstErr)
	}

	if len(hits) == 0 {
		return SourceSearch{}, "", ErrNoSources
	}

	result.TotalFound = len(hits)
	result.Results = firstN(hits, r.o.cfg.MaxSearchResults)
	result.Summary = fmt.Sprintf("Found %d unique sources across %d searches.", result.TotalFound, len(jobs)-result.FailedSearches)
	return result, result.Summary, nil
}

func (r *run) extractContent(ctx context.Context, number int, hits []SearchHit) (ContentExtraction, string, error) {
	targets := firstN(PrioritizeHits(hits), r.o.cfg.MaxCrawlPages)
	result := ContentExtraction{Attempted: len(targets)}
	result.Step = number

	if len(targets) == 0 {
		return ContentExtraction{}, "", ErrNoSources
	}

	crawler, err := r.acquireCrawler(ctx)
	if err != nil {
		return ContentExtraction{}, "", err
	}

	outcomes := FanOut(ctx, targets, r.o.cfg.FanOutLimit, func(ctx context.Context, hit SearchHit) (*Page, error) {
		return crawler.Crawl(ctx, hit.URL)
	})

	var (
		transportErrs int
		extracted     int
		firstErr      error
	)
	for i, out := range outcomes {
		hit := targets[i]
		if out.Err != nil {
			if errors.Is(out.Err, ErrPageSkipped) {
				result.Skipped++
				metrics.CrawlResults.WithLabelValues("skipped").Inc()
			} else {
				transportErrs++
				if firstErr == nil {
					firstErr = out.Err
				}
				metrics.CrawlResults.WithLabelValues("error").Inc()
			}
			r.log.Debug("Crawl produced no content", zap.String("url", hit.URL), zap.Error(out.Err))
			continue
		}
		if out.Value == nil {
			result.Skipped++
			continue
		}
		metrics.CrawlResults.WithLabelValues("success").Inc()
		extracted++

		src := crawledSource(r.session.ID, hit, out.Value)
		inserted, err := r.o.store.InsertSourceIfAbsent(r.persist, &src)
		if err != nil {
			return ContentExtraction{}, "", fmt.Errorf("failed to store source: %w", err)
		}
		if inserted {
			result.CrawledCount++
			result.Sources = append(result.Sources, ExtractedSource{
				URL:       src.URL,
				Title:     src.Title,
				Publisher: src.Publisher,
			})
		}
	}

	if result.CrawledCount == 0 && transportErrs == len(targets) {
		return ContentExtraction{}, "", external("crawl", firstErr)
	}
	if extracted == 0 {
		return ContentExtraction{}, "", ErrNoContent
	}

	result.Summary = fmt.Sprintf("Extracted content from %d of %d sources.", result.CrawledCount, result.Attempted)
	return result, result.Summary, nil
}

func crawledSource(sessionID string, hit SearchHit, page *Page) models.Source {
	url := hit.URL
	title := page.Title
	if title == "" {
		title = hit.Title
	}
	publisher := hit.Publisher
	if publisher == "" {
		publisher = page.Publisher
	}
	if publisher == "" {
		publisher = PublisherName(url)
	}
	summary := page.Summary
	if summary == "" {
		summary = page.Text
	}
	if summary == "" {
		summary = hit.Snippet
	}

	return models.Source{
		SessionID:        sessionID,
		URL:              url,
		Title:            utils.Truncate(title, 500),
		Publisher:        publisher,
		PublishDate:      page.PublishDate,
		CredibilityScore: PublisherCredibility(url),
		ContentSummary:   utils.Truncate(summary, crawlSummaryChars),
		AccessedAt:       time.Now(),
	}
}

func (r *run) evaluateSources(ctx context.Context, number int, claim string) (SourceEvaluation, []models.Source, string, error) {
	sources, err := r.o.store.ListSources(ctx, r.session.ID)
	if err != nil {
		return SourceEvaluation{}, nil, "", fmt.Errorf("failed to load sources: %w", err)
	}

	if len(sources) == 0 {
		v := SourceEvaluation{OverallAssessment: "No sources found"}
		v.Step = number
		v.Summary = "No sources found to evaluate."
		return v, sources, v.Summary, nil
	}

	digests := make([]SourceDigest, 0, len(sources))
	for _, s := range sources {
		digests = append(digests, SourceDigest{
			URL:            s.URL,
			Title:          s.Title,
			Publisher:      s.Publisher,
			ContentSummary: utils.Truncate(s.ContentSummary, digestSummaryChars),
		})
	}

	reply, err := r.ask(ctx, string(models.StepSourceEvaluation), func(ctx context.Context) (*Reply, error) {
		return r.o.collab.Claims.EvaluateSources(ctx, claim, digests)
	})
	if err != nil {
		return SourceEvaluation{}, nil, "", err
	}

	v, summary := finishReply[SourceEvaluation](ctx, r, number, reply, fallbackSourceEvaluation)
	if v.ParsingError {
		return v, sources, summary, nil
	}

	known := make(map[string]int, len(sources))
	for i, s := range sources {
		known[s.URL] = i
	}
	for _, score := range v.SourceEvaluations {
		idx, ok := known[strings.TrimSpace(score.URL)]
		if !ok {
			continue
		}
		eval := models.SourceEvaluation{
			CredibilityScore: clampConfidence(score.CredibilityScore, 0.5),
			RelevanceScore:   clampConfidence(score.RelevanceScore, 0.5),
			SupportsClaim:    score.SupportsClaim,
		}
		if err := r.o.store.UpdateSourceEvaluation(r.persist, r.session.ID, sources[idx].URL, eval); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return SourceEvaluation{}, nil, "", fmt.Errorf("failed to store source evaluation: %w", err)
		}
		sources[idx].CredibilityScore = eval.CredibilityScore
		sources[idx].RelevanceScore = eval.RelevanceScore
		sources[idx].SupportsClaim = eval.SupportsClaim
	}

	return v, sources, summary, nil
}

func firstN[T any](items []T, n int) []T {
	if n < 0 || len(items) <= n {
		return items
	}
	return items[:n]
}
