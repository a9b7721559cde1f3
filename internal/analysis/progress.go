package analysis

import (
	"math"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

type CurrentStep struct {
	Number      int             `json:"step_number"`
	Type        models.StepType `json:"step_type"`
	Description string          `json:"description"`
}

type StepBrief struct {
	Number      int               `json:"step_number"`
	Type        models.StepType   `json:"step_type"`
	Description string            `json:"description"`
	Status      models.StepStatus `json:"status"`
	Summary     string            `json:"summary,omitempty"`
	Error       string            `json:"error_message,omitempty"`
}

type Progress struct {
	CompletedSteps     int          `json:"completed_steps"`
	FailedSteps        int          `json:"failed_steps"`
	TotalStepsCreated  int          `json:"total_steps_created"`
	ExpectedSteps      int          `json:"expected_steps"`
	ProgressPercentage float64      `json:"progress_percentage"`
	CurrentStep        *CurrentStep `json:"current_step"`
}

// StatusView is the polled and pushed representation of a session.
type StatusView struct {
	SessionID string               `json:"session_id"`
	Status    models.SessionStatus `json:"status"`
	Variant   models.Variant       `json:"variant"`
	Progress
	Verdict    string      `json:"verdict,omitempty"`
	Confidence *float64    `json:"confidence_score,omitempty"`
	Error      string      `json:"error_message,omitempty"`
	Steps      []StepBrief `json:"steps"`
}

// CalculateProgress derives progress from the ordered steps of a session.
func CalculateProgress(steps []models.Step, expected int) Progress {
	p := Progress{
		TotalStepsCreated: len(steps),
		ExpectedSteps:     expected,
	}

	for _, st := range steps {
		switch st.Status {
		case models.StepCompleted:
			p.CompletedSteps++
		case models.StepFailed:
			p.FailedSteps++
		case models.StepInProgress:
			if p.CurrentStep == nil {
				p.CurrentStep = &CurrentStep{
					Number:      st.Number,
					Type:        st.Type,
					Description: st.Description,
				}
			}
		}
	}

	if expected > 0 {
		pct := float64(p.CompletedSteps) / float64(expected) * 100
		p.ProgressPercentage = math.Min(100, math.Round(pct*100)/100)
	}

	return p
}

// BuildStatusView assembles the status view from a session and its steps.
func BuildStatusView(session *models.Session, steps []models.Step) StatusView {
	briefs := make([]StepBrief, 0, len(steps))
	for _, st := range steps {
		briefs = append(briefs, StepBrief{
			Number:      st.Number,
			Type:        st.Type,
			Description: st.Description,
			Status:      st.Status,
			Summary:     st.Summary,
			Error:       st.ErrorMessage,
		})
	}

	return StatusView{
		SessionID:  session.ID,
		Status:     session.Status,
		Variant:    session.Variant,
		Progress:   CalculateProgress(steps, ExpectedSteps(session.Variant)),
		Verdict:    session.Verdict,
		Confidence: session.Confidence,
		Error:      session.ErrorMessage,
		Steps:      briefs,
	}
}
