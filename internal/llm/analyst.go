package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/analysis"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

// Analyst adapts the client to the analysis collaborator interfaces. Claim
// analysis uses chat completions; the web-search and research variants use
// the Responses API with web search.
type Analyst struct {
	client *Client
}

var (
	_ analysis.ClaimAnalyst = (*Analyst)(nil)
	_ analysis.WebAnalyst   = (*Analyst)(nil)
	_ analysis.Researcher   = (*Analyst)(nil)
	_ analysis.Summarizer   = (*Analyst)(nil)
)

func NewAnalyst(client *Client) *Analyst {
	return &Analyst{client: client}
}

func (a *Analyst) AnalyzeClaim(ctx context.Context, claim string, image []byte) (*analysis.Reply, error) {
	return a.complete(ctx, CompletionRequest{
		SystemPrompt: factCheckerSystem,
		UserPrompt:   analyzeClaimPrompt(claim),
		Image:        image,
		MaxTokens:    1000,
	})
}

func (a *Analyst) EvaluateSources(ctx context.Context, claim string, sources []analysis.SourceDigest) (*analysis.Reply, error) {
	return a.complete(ctx, CompletionRequest{
		SystemPrompt: factCheckerSystem,
		UserPrompt:   evaluateSourcesPrompt(claim, sources),
		MaxTokens:    1500,
	})
}

func (a *Analyst) GenerateVerdict(ctx context.Context, claim string, evidence any) (*analysis.Reply, error) {
	return a.complete(ctx, CompletionRequest{
		SystemPrompt: factCheckerSystem,
		UserPrompt:   verdictPrompt(claim, evidence),
		MaxTokens:    2000,
	})
}

func (a *Analyst) InitialSearch(ctx context.Context, claim string, image []byte) (*analysis.Reply, error) {
	return a.search(ctx, initialSearchPrompt(claim), image)
}

func (a *Analyst) DeeperExploration(ctx context.Context, claim string, initial any) (*analysis.Reply, error) {
	return a.search(ctx, deeperExplorationPrompt(claim, initial), nil)
}

func (a *Analyst) EvaluateCitedSources(ctx context.Context, claim string, citations []analysis.Citation, findings any) (*analysis.Reply, error) {
	return a.search(ctx, evaluateCitedPrompt(claim, citations, findings), nil)
}

func (a *Analyst) FinalConclusion(ctx context.Context, claim string, findings any) (*analysis.Reply, error) {
	return a.search(ctx, finalConclusionPrompt(claim, findings), nil)
}

func (a *Analyst) UnderstandRequest(ctx context.Context, request string, image []byte) (*analysis.Reply, error) {
	return a.search(ctx, understandRequestPrompt(request), image)
}

func (a *Analyst) GeneralResearch(ctx context.Context, request string, understanding any) (*analysis.Reply, error) {
	return a.search(ctx, generalResearchPrompt(request, understanding), nil)
}

func (a *Analyst) SpecificResearch(ctx context.Context, request string, findings any) (*analysis.Reply, error) {
	return a.search(ctx, specificResearchPrompt(request, findings), nil)
}

func (a *Analyst) WriteReport(ctx context.Context, request string, findings any) (*analysis.Reply, error) {
	return a.search(ctx, reportPrompt(request, findings), nil)
}

// SummarizeStep produces a one-sentence, user-facing summary of a step
// payload with the summary model.
func (a *Analyst) SummarizeStep(ctx context.Context, stepNumber int, payload any) (string, error) {
	resp, err := a.client.Complete(ctx, CompletionRequest{
		UserPrompt:  stepSummaryPrompt(stepNumber, summaryInput(payload)),
		Model:       a.client.summaryModel,
		Temperature: 0.5,
		MaxTokens:   100,
	})
	if err != nil {
		return "", fmt.Errorf("failed to summarize step %d: %w", stepNumber, err)
	}

	summary := strings.Trim(strings.TrimSpace(resp.Content), `"`)
	logger.Debug("Step summary generated", zap.Int("step_number", stepNumber), zap.String("summary", summary))
	return summary, nil
}

func (a *Analyst) complete(ctx context.Context, req CompletionRequest) (*analysis.Reply, error) {
	resp, err := a.client.Complete(ctx, req)
	if err != nil {
		return nil, err
	}
	return &analysis.Reply{
		Text:       resp.Content,
		Prompt:     req.UserPrompt,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

func (a *Analyst) search(ctx context.Context, prompt string, image []byte) (*analysis.Reply, error) {
	resp, err := a.client.WebSearch(ctx, prompt, image)
	if err != nil {
		return nil, err
	}
	return &analysis.Reply{
		Text:       resp.Content,
		Citations:  resp.Citations,
		Prompt:     prompt,
		Model:      resp.Model,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// summaryInput drops bookkeeping fields the summary model does not need.
func summaryInput(payload any) any {
	data, err := json.Marshal(payload)
	if err != nil {
		return payload
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return payload
	}
	for _, k := range []string{"citations", "step", "parsing_error", "summary"} {
		delete(m, k)
	}
	return m
}
