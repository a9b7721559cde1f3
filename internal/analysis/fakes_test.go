package analysis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

type memStore struct {
	mu           sync.Mutex
	sessions     map[string]models.Session
	steps        map[string][]models.Step
	sources      map[string][]models.Source
	queries      []models.SearchQuery
	interactions []models.Interaction
	nextID       int64

	failFinish error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]models.Session),
		steps:    make(map[string][]models.Step),
		sources:  make(map[string][]models.Source),
	}
}

func (m *memStore) addSession(s *models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = *s
}

func (m *memStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	}
	return &s, nil
}

func (m *memStore) TransitionSession(_ context.Context, id string, from, to models.SessionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return models.ErrNotFound
	}
	if s.Status != from {
		return models.ErrConflict
	}
	s.Status = to
	m.sessions[id] = s
	return nil
}

func (m *memStore) FinishSession(_ context.Context, s *models.Session) error {
	if m.failFinish != nil {
		return m.failFinish
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.sessions[s.ID]
	if !ok {
		return models.ErrNotFound
	}
	if cur.Status != models.SessionAnalyzing || !s.Status.Terminal() {
		return models.ErrConflict
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *memStore) CreateStep(_ context.Context, step *models.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, st := range m.steps[step.SessionID] {
		if st.Number == step.Number {
			return models.ErrConflict
		}
	}
	m.nextID++
	step.ID = m.nextID
	m.steps[step.SessionID] = append(m.steps[step.SessionID], *step)
	return nil
}

func (m *memStore) UpdateStep(_ context.Context, step *models.Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := m.steps[step.SessionID]
	for i := range steps {
		if steps[i].Number != step.Number {
			continue
		}
		if steps[i].Status != models.StepInProgress {
			return models.ErrConflict
		}
		steps[i] = *step
		return nil
	}
	return models.ErrNotFound
}

func (m *memStore) ListSteps(_ context.Context, sessionID string) ([]models.Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.Step(nil), m.steps[sessionID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (m *memStore) InsertSourceIfAbsent(_ context.Context, src *models.Source) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sources[src.SessionID] {
		if s.URL == src.URL {
			return false, nil
		}
	}
	m.nextID++
	src.ID = m.nextID
	m.sources[src.SessionID] = append(m.sources[src.SessionID], *src)
	return true, nil
}

func (m *memStore) ListSources(_ context.Context, sessionID string) ([]models.Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Source(nil), m.sources[sessionID]...), nil
}

func (m *memStore) UpdateSourceEvaluation(_ context.Context, sessionID, url string, eval models.SourceEvaluation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sources := m.sources[sessionID]
	for i := range sources {
		if sources[i].URL == url {
			sources[i].CredibilityScore = eval.CredibilityScore
			sources[i].RelevanceScore = eval.RelevanceScore
			sources[i].SupportsClaim = eval.SupportsClaim
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *memStore) InsertSearchQuery(_ context.Context, q *models.SearchQuery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, *q)
	return nil
}

func (m *memStore) InsertInteraction(_ context.Context, in *models.Interaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.interactions = append(m.interactions, *in)
	return nil
}

func (m *memStore) stepsOf(id string) []models.Step {
	steps, _ := m.ListSteps(context.Background(), id)
	return steps
}

func (m *memStore) sourcesOf(id string) []models.Source {
	sources, _ := m.ListSources(context.Background(), id)
	return sources
}

// replyFunc lets each test script a collaborator call.
type replyFunc func(ctx context.Context) (*Reply, error)

func text(s string, citations ...Citation) replyFunc {
	return func(context.Context) (*Reply, error) {
		return &Reply{Text: s, Citations: citations, Model: "test-model", TokensUsed: 10}, nil
	}
}

func fail(err error) replyFunc {
	return func(context.Context) (*Reply, error) { return nil, err }
}

type scriptedClaims struct {
	mu    sync.Mutex
	calls []string

	analyze  replyFunc
	evaluate replyFunc
	verdict  replyFunc
}

func (s *scriptedClaims) record(name string) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
}

func (s *scriptedClaims) AnalyzeClaim(ctx context.Context, _ string, _ []byte) (*Reply, error) {
	s.record("analyze")
	return s.analyze(ctx)
}

func (s *scriptedClaims) EvaluateSources(ctx context.Context, _ string, _ []SourceDigest) (*Reply, error) {
	s.record("evaluate")
	return s.evaluate(ctx)
}

func (s *scriptedClaims) GenerateVerdict(ctx context.Context, _ string, _ any) (*Reply, error) {
	s.record("verdict")
	return s.verdict(ctx)
}

type scriptedWeb struct {
	initial, deeper, evaluate, conclusion replyFunc
	cited                                 []Citation
}

func (s *scriptedWeb) InitialSearch(ctx context.Context, _ string, _ []byte) (*Reply, error) {
	return s.initial(ctx)
}

func (s *scriptedWeb) DeeperExploration(ctx context.Context, _ string, _ any) (*Reply, error) {
	return s.deeper(ctx)
}

func (s *scriptedWeb) EvaluateCitedSources(ctx context.Context, _ string, citations []Citation, _ any) (*Reply, error) {
	s.cited = citations
	return s.evaluate(ctx)
}

func (s *scriptedWeb) FinalConclusion(ctx context.Context, _ string, _ any) (*Reply, error) {
	return s.conclusion(ctx)
}

type scriptedResearch struct {
	understand, general, specific, report replyFunc
}

func (s *scriptedResearch) UnderstandRequest(ctx context.Context, _ string, _ []byte) (*Reply, error) {
	return s.understand(ctx)
}

func (s *scriptedResearch) GeneralResearch(ctx context.Context, _ string, _ any) (*Reply, error) {
	return s.general(ctx)
}

func (s *scriptedResearch) SpecificResearch(ctx context.Context, _ string, _ any) (*Reply, error) {
	return s.specific(ctx)
}

func (s *scriptedResearch) WriteReport(ctx context.Context, _ string, _ any) (*Reply, error) {
	return s.report(ctx)
}

type staticSearcher struct {
	hits []SearchHit
	err  error
}

func (s *staticSearcher) Search(_ context.Context, query string, _ models.SearchType, limit int) ([]SearchHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	return firstN(s.hits, limit), nil
}

type fakeCrawler struct {
	pages    map[string]*Page
	err      error
	closeErr error

	mu     sync.Mutex
	closed int
}

func (c *fakeCrawler) Crawl(_ context.Context, url string) (*Page, error) {
	if c.err != nil {
		return nil, c.err
	}
	if p, ok := c.pages[url]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("status 404 for %s: %w", url, ErrPageSkipped)
}

func (c *fakeCrawler) Close() error {
	c.mu.Lock()
	c.closed++
	c.mu.Unlock()
	return c.closeErr
}

func (c *fakeCrawler) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeCrawlerFactory struct {
	crawler *fakeCrawler
	err     error
	opened  int
}

func (f *fakeCrawlerFactory) NewCrawler(context.Context) (Crawler, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.opened++
	return f.crawler, nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(_ string, e Event) {
	n.mu.Lock()
	n.events = append(n.events, e)
	n.mu.Unlock()
}

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == eventType {
			c++
		}
	}
	return c
}

func (n *recordingNotifier) progress() []Progress {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Progress
	for _, e := range n.events {
		if e.Type == EventProgressUpdate && e.Progress != nil {
			out = append(out, *e.Progress)
		}
	}
	return out
}

var errConnRefused = errors.New("dial tcp 10.0.0.1:443: connect: connection refused")
