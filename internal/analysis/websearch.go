package analysis

import (
	"context"
	"errors"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

type webSearchWorkflow struct{}

func (webSearchWorkflow) Variant() models.Variant { return models.VariantSearchAugmented }

func (webSearchWorkflow) ExpectedSteps() int { return 4 }

func (webSearchWorkflow) Execute(ctx context.Context, r *run) (*workflowResult, error) {
	claim := r.session.Input
	web := r.o.collab.Web
	if web == nil {
		return nil, external("web search analysis", errors.New("no web analyst configured"))
	}

	initial, err := runStep(ctx, r, models.StepInitialWebSearch, "Initial search for credible sources and general summary",
		func(ctx context.Context, n int) (InitialSearch, string, error) {
			reply, err := r.ask(ctx, string(models.StepInitialWebSearch), func(ctx context.Context) (*Reply, error) {
				return web.InitialSearch(ctx, claim, r.imageBytes())
			})
			if err != nil {
				return InitialSearch{}, "", err
			}
			v, summary := finishReply[InitialSearch](ctx, r, n, reply, fallbackInitialSearch)
			return v, summary, nil
		})
	if err != nil {
		return nil, err
	}

	deeper, err := runStep(ctx, r, models.StepDeeperExploration, "Deeper exploration and refined searches for specific content",
		func(ctx context.Context, n int) (DeeperExploration, string, error) {
			reply, err := r.ask(ctx, string(models.StepDeeperExploration), func(ctx context.Context) (*Reply, error) {
				return web.DeeperExploration(ctx, claim, initial)
			})
			if err != nil {
				return DeeperExploration{}, "", err
			}
			v, summary := finishReply[DeeperExploration](ctx, r, n, reply, fallbackDeeperExploration)
			return v, summary, nil
		})
	if err != nil {
		return nil, err
	}

	findings := map[string]any{
		"initial_search":     initial,
		"deeper_exploration": deeper,
	}

	credibility, err := runStep(ctx, r, models.StepSourceCredibilityEvaluation, "Evaluate cited sources and their credibility",
		func(ctx context.Context, n int) (CredibilityEvaluation, string, error) {
			cited := DedupCitations(r.allCitations()...)
			reply, err := r.ask(ctx, string(models.StepSourceCredibilityEvaluation), func(ctx context.Context) (*Reply, error) {
				return web.EvaluateCitedSources(ctx, claim, cited, findings)
			})
			if err != nil {
				return CredibilityEvaluation{}, "", err
			}
			v, summary := finishReply[CredibilityEvaluation](ctx, r, n, reply, fallbackCredibilityEvaluation)
			return v, summary, nil
		})
	if err != nil {
		return nil, err
	}
	findings["source_credibility_evaluation"] = credibility

	conclusion, err := runStep(ctx, r, models.StepFinalConclusion, "Summarize findings and provide final conclusion",
		func(ctx context.Context, n int) (FinalConclusion, string, error) {
			reply, err := r.ask(ctx, string(models.StepFinalConclusion), func(ctx context.Context) (*Reply, error) {
				return web.FinalConclusion(ctx, claim, findings)
			})
			if err != nil {
				return FinalConclusion{}, "", err
			}
			v, summary := finishReply[FinalConclusion](ctx, r, n, reply, fallbackFinalConclusion)
			v.Verdict.Classification = NormalizeVerdict(v.Verdict.Classification)
			return v, summary, nil
		})
	if err != nil {
		return nil, err
	}

	summary := conclusion.Verdict.Summary
	if summary == "" {
		summary = conclusion.Summary
	}
	return &workflowResult{
		Verdict:    conclusion.Verdict.Classification,
		Confidence: clampConfidence(conclusion.Verdict.ConfidenceScore, 0.5),
		Summary:    summary,
	}, nil
}
