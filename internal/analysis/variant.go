package analysis

import (
	"context"
	"fmt"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

// workflowResult is what a successful workflow hands back to the
// orchestrator for the session's terminal fields.
type workflowResult struct {
	Verdict    string
	Confidence float64
	Summary    string
}

// workflow is one variant of the analysis pipeline.
type workflow interface {
	Variant() models.Variant
	ExpectedSteps() int
	Execute(ctx context.Context, r *run) (*workflowResult, error)
}

func workflowFor(v models.Variant) (workflow, error) {
	switch v {
	case models.VariantTraditional:
		return traditionalWorkflow{}, nil
	case models.VariantSearchAugmented:
		return webSearchWorkflow{}, nil
	case models.VariantResearch:
		return researchWorkflow{}, nil
	default:
		return nil, fmt.Errorf("unknown workflow variant %q", v)
	}
}

// ExpectedSteps is the number of numbered steps a variant creates.
func ExpectedSteps(v models.Variant) int {
	wf, err := workflowFor(v)
	if err != nil {
		return 0
	}
	return wf.ExpectedSteps()
}
