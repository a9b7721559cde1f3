package analysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/metrics"
	"github.com/BroWo1/factcheck-backend/internal/storage/models"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

// Store is the persistence the orchestrator needs.
type Store interface {
	StepStore
	SourceStore
	GetSession(ctx context.Context, id string) (*models.Session, error)
	TransitionSession(ctx context.Context, id string, from, to models.SessionStatus) error
	FinishSession(ctx context.Context, s *models.Session) error
	ListSteps(ctx context.Context, sessionID string) ([]models.Step, error)
	ListSources(ctx context.Context, sessionID string) ([]models.Source, error)
	UpdateSourceEvaluation(ctx context.Context, sessionID, url string, eval models.SourceEvaluation) error
	InsertSearchQuery(ctx context.Context, q *models.SearchQuery) error
	InsertInteraction(ctx context.Context, in *models.Interaction) error
}

type Config struct {
	FanOutLimit      int
	StepTimeout      time.Duration
	ResultsPerQuery  int
	MaxQueries       int
	MaxSearchResults int
	MaxCrawlPages    int
}

func DefaultConfig() Config {
	return Config{
		FanOutLimit:      3,
		StepTimeout:      5 * time.Minute,
		ResultsPerQuery:  5,
		MaxQueries:       3,
		MaxSearchResults: 10,
		MaxCrawlPages:    10,
	}
}

// Outcome is the terminal result of a run.
type Outcome struct {
	SessionID  string               `json:"session_id"`
	Status     models.SessionStatus `json:"status"`
	Verdict    string               `json:"verdict,omitempty"`
	Confidence *float64             `json:"confidence_score,omitempty"`
	Summary    string               `json:"summary,omitempty"`
	Error      string               `json:"error,omitempty"`
	Sources    int                  `json:"sources_count"`
}

type Orchestrator struct {
	store    Store
	collab   Collaborators
	cfg      Config
	notifier Notifier
	guard    SessionGuard
	merger   *Merger
}

type Option func(*Orchestrator)

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) {
		if n != nil {
			o.notifier = n
		}
	}
}

// WithGuard replaces the default in-process guard. Pass a chain that
// includes a LocalGuard to keep in-process exclusion.
func WithGuard(g SessionGuard) Option {
	return func(o *Orchestrator) {
		if g != nil {
			o.guard = g
		}
	}
}

func NewOrchestrator(store Store, collab Collaborators, cfg Config, opts ...Option) *Orchestrator {
	def := DefaultConfig()
	if cfg.FanOutLimit <= 0 {
		cfg.FanOutLimit = def.FanOutLimit
	}
	if cfg.ResultsPerQuery <= 0 {
		cfg.ResultsPerQuery = def.ResultsPerQuery
	}
	if cfg.MaxQueries <= 0 {
		cfg.MaxQueries = def.MaxQueries
	}
	if cfg.MaxSearchResults <= 0 {
		cfg.MaxSearchResults = def.MaxSearchResults
	}
	if cfg.MaxCrawlPages <= 0 {
		cfg.MaxCrawlPages = def.MaxCrawlPages
	}

	o := &Orchestrator{
		store:    store,
		collab:   collab,
		cfg:      cfg,
		notifier: nopNotifier{},
		guard:    NewLocalGuard(),
		merger:   NewMerger(store),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives a pending session to a terminal state. Pipeline failures are
// recorded on the session and reported through the returned Outcome; the
// error is non-nil only when the run could not start or its outcome could
// not be stored.
func (o *Orchestrator) Run(ctx context.Context, sessionID string) (*Outcome, error) {
	release, err := o.guard.Acquire(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.Status != models.SessionPending {
		return nil, fmt.Errorf("session %s is %s: %w", sessionID, session.Status, ErrInvalidTransition)
	}

	if err := o.store.TransitionSession(ctx, sessionID, models.SessionPending, models.SessionAnalyzing); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("session %s: %w", sessionID, ErrInvalidTransition)
		}
		return nil, err
	}
	session.Status = models.SessionAnalyzing

	metrics.ActiveRuns.Inc()
	defer metrics.ActiveRuns.Dec()

	log := logger.ForSession(sessionID)
	log.Info("Analysis started", zap.String("variant", string(session.Variant)))
	started := time.Now()

	r := newRun(ctx, o, session)
	result, runErr := o.execute(ctx, r)

	now := time.Now()
	session.CompletedAt = &now
	outcome := &Outcome{SessionID: sessionID}

	if runErr != nil {
		session.Status = models.SessionFailed
		session.ErrorMessage = runErr.Error()
		outcome.Status = models.SessionFailed
		outcome.Error = session.ErrorMessage
		log.Error("Analysis failed", zap.Error(runErr), zap.Duration("elapsed", time.Since(started)))
	} else {
		confidence := result.Confidence
		session.Status = models.SessionCompleted
		session.Verdict = result.Verdict
		session.Confidence = &confidence
		session.Summary = result.Summary
		outcome.Status = models.SessionCompleted
		outcome.Verdict = result.Verdict
		outcome.Confidence = &confidence
		outcome.Summary = result.Summary
		metrics.ConfidenceScore.Observe(confidence)
		log.Info("Analysis completed",
			zap.String("verdict", result.Verdict),
			zap.Float64("confidence", confidence),
			zap.Duration("elapsed", time.Since(started)),
		)
	}

	if sources, err := o.store.ListSources(r.persist, sessionID); err == nil {
		outcome.Sources = len(sources)
	}

	finishErr := o.store.FinishSession(r.persist, session)
	metrics.SessionsTotal.WithLabelValues(string(session.Variant), string(session.Status)).Inc()

	o.publishOutcome(outcome)

	if finishErr != nil {
		return outcome, fmt.Errorf("failed to record session outcome: %w", finishErr)
	}
	return outcome, nil
}

// execute runs the workflow, merges citations, and releases the run's
// resources on every path.
func (o *Orchestrator) execute(ctx context.Context, r *run) (result *workflowResult, err error) {
	defer r.release()
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("analysis panicked: %v", p)
			result = nil
			r.abortOpenStep(err)
		}
	}()

	wf, err := workflowFor(r.session.Variant)
	if err != nil {
		return nil, err
	}

	result, err = wf.Execute(ctx, r)
	if err != nil {
		r.abortOpenStep(err)
		return nil, err
	}

	if _, err := o.merger.Merge(r.persist, r.session.ID, r.allCitations()...); err != nil {
		return nil, err
	}
	return result, nil
}

func (o *Orchestrator) publishOutcome(outcome *Outcome) {
	event := Event{
		SessionID: outcome.SessionID,
		Result:    outcome,
		Timestamp: time.Now().Unix(),
	}
	if outcome.Status == models.SessionCompleted {
		event.Type = EventAnalysisComplete
	} else {
		event.Type = EventAnalysisError
		event.Error = outcome.Error
	}
	o.notifier.Publish(outcome.SessionID, event)
}

// GetProgress reads the session and its steps without side effects.
func (o *Orchestrator) GetProgress(ctx context.Context, sessionID string) (*StatusView, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	steps, err := o.store.ListSteps(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}

	view := BuildStatusView(session, steps)
	return &view, nil
}
