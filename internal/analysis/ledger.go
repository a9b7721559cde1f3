package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

type StepStore interface {
	CreateStep(ctx context.Context, step *models.Step) error
	UpdateStep(ctx context.Context, step *models.Step) error
}

// StepHandle is an in-progress step. It must be finalized exactly once with
// Ledger.Complete or Ledger.Fail.
type StepHandle struct {
	mu        sync.Mutex
	step      models.Step
	finalized bool
}

func (h *StepHandle) Number() int {
	return h.step.Number
}

func (h *StepHandle) Type() models.StepType {
	return h.step.Type
}

func (h *StepHandle) Finalized() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.finalized
}

// Snapshot returns a copy of the step as last written.
func (h *StepHandle) Snapshot() models.Step {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.step
}

// Ledger persists the begin and finalize transitions of analysis steps.
type Ledger struct {
	store    StepStore
	onChange func(models.Step)
}

func NewLedger(store StepStore, onChange func(models.Step)) *Ledger {
	return &Ledger{store: store, onChange: onChange}
}

func (l *Ledger) Begin(ctx context.Context, sessionID string, number int, stepType models.StepType, description string) (*StepHandle, error) {
	step := models.Step{
		SessionID:   sessionID,
		Number:      number,
		Type:        stepType,
		Description: description,
		Status:      models.StepInProgress,
		StartedAt:   time.Now(),
	}

	if err := l.store.CreateStep(ctx, &step); err != nil {
		return nil, fmt.Errorf("failed to begin step %d: %w", number, err)
	}

	logger.Info("Step started",
		zap.String("session_id", sessionID),
		zap.Int("step_number", number),
		zap.String("step_type", string(stepType)),
	)

	h := &StepHandle{step: step}
	l.notify(step)
	return h, nil
}

func (l *Ledger) Complete(ctx context.Context, h *StepHandle, result any, summary string) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode step %d result: %w", h.step.Number, err)
	}

	return l.finalize(ctx, h, func(step *models.Step) {
		step.Status = models.StepCompleted
		step.Result = payload
		step.Summary = summary
	})
}

func (l *Ledger) Fail(ctx context.Context, h *StepHandle, message string) error {
	return l.finalize(ctx, h, func(step *models.Step) {
		step.Status = models.StepFailed
		step.ErrorMessage = message
	})
}

func (l *Ledger) finalize(ctx context.Context, h *StepHandle, apply func(*models.Step)) error {
	h.mu.Lock()
	if h.finalized {
		h.mu.Unlock()
		return fmt.Errorf("step %d: %w", h.step.Number, ErrStepFinalized)
	}

	step := h.step
	apply(&step)
	now := time.Now()
	step.CompletedAt = &now

	if err := l.store.UpdateStep(ctx, &step); err != nil {
		h.mu.Unlock()
		return fmt.Errorf("failed to finalize step %d: %w", step.Number, err)
	}

	h.step = step
	h.finalized = true
	h.mu.Unlock()

	logger.Info("Step finalized",
		zap.String("session_id", step.SessionID),
		zap.Int("step_number", step.Number),
		zap.String("status", string(step.Status)),
	)

	l.notify(step)
	return nil
}

func (l *Ledger) notify(step models.Step) {
	if l.onChange != nil {
		l.onChange(step)
	}
}
