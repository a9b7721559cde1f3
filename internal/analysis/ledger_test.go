package analysis

import (
	"context"
	"errors"
	"testing"

	"github.com/BroWo1/factcheck-backend/internal/storage/models"
)

type flakyStepStore struct {
	*memStore
	failUpdates int
}

func (s *flakyStepStore) UpdateStep(ctx context.Context, step *models.Step) error {
	if s.failUpdates > 0 {
		s.failUpdates--
		return errors.New("database is locked")
	}
	return s.memStore.UpdateStep(ctx, step)
}

func TestLedgerFinalizesOnce(t *testing.T) {
	store := newMemStore()
	var changes []models.Step
	ledger := NewLedger(store, func(st models.Step) { changes = append(changes, st) })
	ctx := context.Background()

	h, err := ledger.Begin(ctx, "s1", 1, models.StepTopicAnalysis, "Analyzing")
	if err != nil {
		t.Fatal(err)
	}
	if h.Finalized() || h.Snapshot().Status != models.StepInProgress {
		t.Fatalf("new handle = %+v", h.Snapshot())
	}

	if err := ledger.Complete(ctx, h, map[string]string{"main_topic": "x"}, "done"); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if err := ledger.Fail(ctx, h, "late failure"); !errors.Is(err, ErrStepFinalized) {
		t.Errorf("Fail() after Complete error = %v, want ErrStepFinalized", err)
	}
	if err := ledger.Complete(ctx, h, nil, "again"); !errors.Is(err, ErrStepFinalized) {
		t.Errorf("second Complete() error = %v, want ErrStepFinalized", err)
	}

	steps := store.stepsOf("s1")
	if len(steps) != 1 || steps[0].Status != models.StepCompleted || steps[0].Summary != "done" {
		t.Fatalf("stored steps = %+v", steps)
	}
	if steps[0].CompletedAt == nil {
		t.Error("completed_at not set")
	}
	if string(steps[0].Result) != `{"main_topic":"x"}` {
		t.Errorf("result = %s", steps[0].Result)
	}
	if len(changes) != 2 {
		t.Errorf("onChange called %d times, want 2", len(changes))
	}
}

func TestLedgerFailRecordsMessage(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, nil)
	ctx := context.Background()

	h, err := ledger.Begin(ctx, "s1", 1, models.StepSourceSearch, "Searching")
	if err != nil {
		t.Fatal(err)
	}
	if err := ledger.Fail(ctx, h, "search failed"); err != nil {
		t.Fatal(err)
	}

	st := store.stepsOf("s1")[0]
	if st.Status != models.StepFailed || st.ErrorMessage != "search failed" {
		t.Errorf("stored step = %s %q", st.Status, st.ErrorMessage)
	}
}

func TestLedgerStoreFailureLeavesStepOpen(t *testing.T) {
	store := &flakyStepStore{memStore: newMemStore(), failUpdates: 1}
	ledger := NewLedger(store, nil)
	ctx := context.Background()

	h, err := ledger.Begin(ctx, "s1", 1, models.StepSourceSearch, "Searching")
	if err != nil {
		t.Fatal(err)
	}
	if err := ledger.Complete(ctx, h, nil, "done"); err == nil {
		t.Fatal("Complete() error = nil, want the store failure")
	}
	if h.Finalized() {
		t.Fatal("handle finalized although the write failed")
	}
	if err := ledger.Fail(ctx, h, "retry as failure"); err != nil {
		t.Fatalf("Fail() after store error = %v", err)
	}
}

func TestLedgerRejectsDuplicateNumbers(t *testing.T) {
	store := newMemStore()
	ledger := NewLedger(store, nil)
	ctx := context.Background()

	if _, err := ledger.Begin(ctx, "s1", 1, models.StepTopicAnalysis, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := ledger.Begin(ctx, "s1", 1, models.StepTopicAnalysis, ""); err == nil {
		t.Error("Begin() with a duplicate number succeeded")
	}
}

func TestRunBeginRefusesWhileStepOpen(t *testing.T) {
	f := newFixture(t, NewSessionRequest{})
	f.build(Collaborators{})
	r := newRun(context.Background(), f.orch, f.session)

	h, err := r.begin(context.Background(), models.StepTopicAnalysis, "first")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.begin(context.Background(), models.StepSourceSearch, "second"); !errors.Is(err, ErrStepOpen) {
		t.Fatalf("begin() with open step error = %v, want ErrStepOpen", err)
	}

	if err := r.ledger.Complete(context.Background(), h, nil, "ok"); err != nil {
		t.Fatal(err)
	}
	h2, err := r.begin(context.Background(), models.StepSourceSearch, "second")
	if err != nil {
		t.Fatal(err)
	}
	if h2.Number() != 2 {
		t.Errorf("second step number = %d, want 2", h2.Number())
	}
}
