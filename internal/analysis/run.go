package analysis

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/metrics"
	"github.com/BroWo1/factcheck-backend/internal/storage/models"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

// run is the state of one orchestrator execution of a session. It hands out
// contiguous step numbers and allows a single open step at a time.
type run struct {
	o       *Orchestrator
	session *models.Session
	ledger  *Ledger
	log     *zap.Logger

	// persist outlives cancellation of the run context so that steps and
	// the session can always be finalized.
	persist context.Context

	mu        sync.Mutex
	next      int
	open      *StepHandle
	steps     []models.Step
	citations [][]Citation

	crawler     Crawler
	imageLoaded bool
	image       []byte
}

func newRun(ctx context.Context, o *Orchestrator, session *models.Session) *run {
	r := &run{
		o:       o,
		session: session,
		log:     logger.ForSession(session.ID),
		persist: context.WithoutCancel(ctx),
		next:    1,
	}
	r.ledger = NewLedger(o.store, r.onStepChange)
	return r
}

func (r *run) begin(ctx context.Context, stepType models.StepType, description string) (*StepHandle, error) {
	r.mu.Lock()
	if r.open != nil && !r.open.Finalized() {
		r.mu.Unlock()
		return nil, fmt.Errorf("cannot begin %s: %w", stepType, ErrStepOpen)
	}
	number := r.next
	r.mu.Unlock()

	h, err := r.ledger.Begin(ctx, r.session.ID, number, stepType, description)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.next++
	r.open = h
	r.mu.Unlock()
	return h, nil
}

// abortOpenStep fails the open step, if any, with the run error.
func (r *run) abortOpenStep(err error) {
	r.mu.Lock()
	h := r.open
	r.mu.Unlock()

	if h == nil || h.Finalized() {
		return
	}
	if ferr := r.ledger.Fail(r.persist, h, err.Error()); ferr != nil {
		r.log.Error("Failed to mark step failed", zap.Int("step_number", h.Number()), zap.Error(ferr))
	}
}

func (r *run) onStepChange(step models.Step) {
	r.mu.Lock()
	replaced := false
	for i := range r.steps {
		if r.steps[i].Number == step.Number {
			r.steps[i] = step
			replaced = true
			break
		}
	}
	if !replaced {
		r.steps = append(r.steps, step)
	}
	progress := CalculateProgress(r.steps, ExpectedSteps(r.session.Variant))
	r.mu.Unlock()

	now := time.Now().Unix()
	brief := StepBrief{
		Number:      step.Number,
		Type:        step.Type,
		Description: step.Description,
		Status:      step.Status,
		Summary:     step.Summary,
		Error:       step.ErrorMessage,
	}
	r.o.notifier.Publish(r.session.ID, Event{
		Type:      EventStepUpdate,
		SessionID: r.session.ID,
		Step:      &brief,
		Timestamp: now,
	})
	r.o.notifier.Publish(r.session.ID, Event{
		Type:      EventProgressUpdate,
		SessionID: r.session.ID,
		Progress:  &progress,
		Timestamp: now,
	})
}

func (r *run) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.o.cfg.StepTimeout > 0 {
		return context.WithTimeout(ctx, r.o.cfg.StepTimeout)
	}
	return context.WithCancel(ctx)
}

// runStep begins a step, runs fn, and finalizes the step exactly once with
// fn's result or error.
func runStep[T any](ctx context.Context, r *run, stepType models.StepType, description string,
	fn func(ctx context.Context, number int) (T, string, error)) (value T, err error) {

	h, err := r.begin(ctx, stepType, description)
	if err != nil {
		return value, err
	}

	start := time.Now()
	defer func() {
		metrics.StepDuration.WithLabelValues(string(stepType)).Observe(time.Since(start).Seconds())
	}()

	defer func() {
		if p := recover(); p != nil {
			r.abortOpenStep(fmt.Errorf("step %d panicked: %v", h.Number(), p))
			panic(p)
		}
	}()

	stepCtx, cancel := r.stepContext(ctx)
	defer cancel()

	value, summary, err := fn(stepCtx, h.Number())
	if err != nil {
		metrics.StepOutcomes.WithLabelValues(string(stepType), "failed").Inc()
		r.log.Error("Step failed",
			zap.Int("step_number", h.Number()),
			zap.String("step_type", string(stepType)),
			zap.Error(err),
		)
		if ferr := r.ledger.Fail(r.persist, h, err.Error()); ferr != nil {
			r.log.Error("Failed to mark step failed", zap.Int("step_number", h.Number()), zap.Error(ferr))
		}
		var zero T
		return zero, err
	}

	outcome := "completed"
	if p, ok := any(&value).(payload); ok && p.meta().ParsingError {
		outcome = "fallback"
	}
	metrics.StepOutcomes.WithLabelValues(string(stepType), outcome).Inc()

	if err := r.ledger.Complete(r.persist, h, value, summary); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// ask performs one collaborator call. Any error is an ExternalCallError;
// successful replies are recorded in the interaction log.
func (r *run) ask(ctx context.Context, kind string, call func(ctx context.Context) (*Reply, error)) (*Reply, error) {
	reply, err := call(ctx)
	if err != nil {
		return nil, external(kind, err)
	}
	if reply == nil {
		return nil, external(kind, fmt.Errorf("empty reply"))
	}
	if reply.Kind == "" {
		reply.Kind = kind
	}

	if reply.TokensUsed > 0 {
		metrics.LLMTokensUsed.WithLabelValues(reply.Model, kind).Add(float64(reply.TokensUsed))
	}

	err = r.o.store.InsertInteraction(r.persist, &models.Interaction{
		SessionID:  r.session.ID,
		Type:       reply.Kind,
		Prompt:     reply.Prompt,
		Response:   reply.Text,
		Model:      reply.Model,
		TokensUsed: reply.TokensUsed,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		r.log.Warn("Failed to record collaborator interaction", zap.String("kind", kind), zap.Error(err))
	}

	return reply, nil
}

// finishReply decodes a reply into a step payload, falling back on parse
// failure, collects its citations and settles the step summary.
func finishReply[T any, P payloadPtr[T]](ctx context.Context, r *run, number int, reply *Reply, fallback func(raw string) T) (T, string) {
	v, perr := decodePayload[T, P](number, reply.Text, fallback)
	m := P(&v).meta()
	if len(reply.Citations) > 0 {
		m.Citations = reply.Citations
		r.addCitations(reply.Citations)
	}

	if perr != nil {
		r.log.Warn("Using fallback result", zap.Int("step_number", number), zap.Error(perr))
		return v, m.Summary
	}

	if m.Summary == "" {
		m.Summary = r.summarize(ctx, number, &v)
	}
	return v, m.Summary
}

func (r *run) summarize(ctx context.Context, number int, result any) string {
	if r.o.collab.Summarizer == nil {
		return defaultSummary(number)
	}
	summary, err := r.o.collab.Summarizer.SummarizeStep(ctx, number, result)
	if err != nil || summary == "" {
		if err != nil {
			r.log.Warn("Step summary unavailable", zap.Int("step_number", number), zap.Error(err))
		}
		return defaultSummary(number)
	}
	return summary
}

func (r *run) addCitations(c []Citation) {
	r.mu.Lock()
	r.citations = append(r.citations, c)
	r.mu.Unlock()
}

func (r *run) allCitations() [][]Citation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]Citation, len(r.citations))
	copy(out, r.citations)
	return out
}

// acquireCrawler opens the run's crawler on first use.
func (r *run) acquireCrawler(ctx context.Context) (Crawler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.crawler != nil {
		return r.crawler, nil
	}
	if r.o.collab.Crawlers == nil {
		return nil, external("crawler acquisition", fmt.Errorf("no crawler configured"))
	}

	c, err := r.o.collab.Crawlers.NewCrawler(ctx)
	if err != nil {
		return nil, external("crawler acquisition", err)
	}
	r.crawler = c
	return c, nil
}

// release closes resources held by the run. Failures are logged only.
func (r *run) release() {
	r.mu.Lock()
	c := r.crawler
	r.crawler = nil
	r.mu.Unlock()

	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		cleanupErr := &ResourceCleanupError{Resource: "crawler", Err: err}
		r.log.Warn("Resource cleanup failed", zap.Error(cleanupErr))
	}
}

// imageBytes loads the session image once. A missing or unreadable image
// is logged and treated as absent.
func (r *run) imageBytes() []byte {
	if r.imageLoaded || r.session.ImagePath == "" {
		return r.image
	}
	r.imageLoaded = true

	data, err := os.ReadFile(r.session.ImagePath)
	if err != nil {
		r.log.Warn("Session image unavailable", zap.String("path", r.session.ImagePath), zap.Error(err))
		return nil
	}
	r.image = data
	return r.image
}
