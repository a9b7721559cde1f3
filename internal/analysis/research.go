package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

const researchConfidence = 0.9

type researchWorkflow struct{}

func (researchWorkflow) Variant() models.Variant { return models.VariantResearch }

// ExpectedSteps counts the numbered steps only. The report is produced after
// the last step and is not tracked in the ledger.
func (researchWorkflow) ExpectedSteps() int { return 3 }

func (researchWorkflow) Execute(ctx context.Context, r *run) (*workflowResult, error) {
	request := r.session.Input
	researcher := r.o.collab.Research
	if researcher == nil {
		return nil, external("research", errors.New("no researcher configured"))
	}

	understanding, err := runStep(ctx, r, models.StepResearchUnderstanding, "Understanding and clarifying the research request",
		func(ctx context.Context, n int) (ResearchUnderstanding, string, error) {
			reply, err := r.ask(ctx, string(models.StepResearchUnderstanding), func(ctx context.Context) (*Reply, error) {
				return researcher.UnderstandRequest(ctx, request, r.imageBytes())
			})
			if err != nil {
				return ResearchUnderstanding{}, "", err
			}
			v, summary := finishReply[ResearchUnderstanding](ctx, r, n, reply, fallbackUnderstanding)
			return v, summary, nil
		})
	if err != nil {
		return nil, err
	}

	general, err := runStep(ctx, r, models.StepGeneralResearch, "Conducting general research on the topic",
		func(ctx context.Context, n int) (GeneralResearch, string, error) {
			reply, err := r.ask(ctx, string(models.StepGeneralResearch), func(ctx context.Context) (*Reply, error) {
				return researcher.GeneralResearch(ctx, request, understanding)
			})
			if err != nil {
				return GeneralResearch{}, "", err
			}
			v, summary := finishReply[GeneralResearch](ctx, r, n, reply, fallbackGeneralResearch)
			return v, summary, nil
		})
	if err != nil {
		return nil, err
	}

	findings := map[string]any{
		"understanding":    understanding,
		"general_research": general,
	}

	specific, err := runStep(ctx, r, models.StepSpecificResearch, "Conducting specific detailed research",
		func(ctx context.Context, n int) (SpecificResearch, string, error) {
			reply, err := r.ask(ctx, string(models.StepSpecificResearch), func(ctx context.Context) (*Reply, error) {
				return researcher.SpecificResearch(ctx, request, findings)
			})
			if err != nil {
				return SpecificResearch{}, "", err
			}
			v, summary := finishReply[SpecificResearch](ctx, r, n, reply, fallbackSpecificResearch)
			return v, summary, nil
		})
	if err != nil {
		return nil, err
	}
	findings["specific_research"] = specific

	reportCtx, cancel := r.stepContext(ctx)
	defer cancel()

	reply, err := r.ask(reportCtx, "research_report", func(ctx context.Context) (*Reply, error) {
		return researcher.WriteReport(ctx, request, findings)
	})
	if err != nil {
		return nil, err
	}
	if len(reply.Citations) > 0 {
		r.addCitations(reply.Citations)
	}

	markdown := strings.TrimSpace(reply.Text)
	if markdown == "" {
		r.log.Warn("Research report was empty, assembling from step summaries")
		markdown = fallbackReport(request, understanding.Summary, general.Summary, specific.Summary)
	}

	r.log.Info("Research report ready", zap.Int("report_chars", len(markdown)))
	return &workflowResult{
		Verdict:    VerdictCompleted,
		Confidence: researchConfidence,
		Summary:    markdown,
	}, nil
}

func fallbackReport(request string, summaries ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Research Report\n\n**Research request:** %s\n\n", request)
	fmt.Fprintf(&b, "*Generated %s*\n\n## Findings\n\n", time.Now().UTC().Format("January 2, 2006"))
	n := 0
	for _, s := range summaries {
		if strings.TrimSpace(s) == "" {
			continue
		}
		n++
		fmt.Fprintf(&b, "%d. %s\n", n, s)
	}
	return b.String()
}
