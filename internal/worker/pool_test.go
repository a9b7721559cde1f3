package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPoolRunsSubmittedSessions(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}
	p := NewPool(2, 10, func(ctx context.Context, id string) error {
		mu.Lock()
		seen[id] = true
		mu.Unlock()
		if id == "bad" {
			return errors.New("boom")
		}
		return nil
	})
	p.Start()

	for _, id := range []string{"a", "b", "bad", "c"} {
		if err := p.Submit(id); err != nil {
			t.Fatalf("Submit(%s) error = %v", id, err)
		}
	}
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}

	if len(seen) != 4 {
		t.Errorf("ran %d sessions, want 4: %v", len(seen), seen)
	}
	if err := p.Submit("late"); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Submit after Shutdown error = %v", err)
	}
}

func TestSubmitFailsFastWhenQueueIsFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	p := NewPool(1, 1, func(ctx context.Context, id string) error {
		started <- struct{}{}
		<-release
		return nil
	})
	p.Start()

	if err := p.Submit("running"); err != nil {
		t.Fatal(err)
	}
	<-started
	if err := p.Submit("queued"); err != nil {
		t.Fatal(err)
	}
	if err := p.Submit("overflow"); !errors.Is(err, ErrQueueFull) {
		t.Errorf("Submit() error = %v, want ErrQueueFull", err)
	}

	close(release)
	if err := p.Shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestShutdownDeadlineCancelsRuns(t *testing.T) {
	var cancelled int32
	started := make(chan struct{})
	p := NewPool(1, 1, func(ctx context.Context, id string) error {
		close(started)
		<-ctx.Done()
		atomic.StoreInt32(&cancelled, 1)
		return ctx.Err()
	})
	p.Start()
	if err := p.Submit("slow"); err != nil {
		t.Fatal(err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := p.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want DeadlineExceeded", err)
	}
	if atomic.LoadInt32(&cancelled) != 1 {
		t.Error("in-flight run was not cancelled")
	}
}

func TestPanickingRunDoesNotKillWorker(t *testing.T) {
	var ran int32
	p := NewPool(1, 4, func(ctx context.Context, id string) error {
		if id == "panic" {
			panic("bad run")
		}
		atomic.AddInt32(&ran, 1)
		return nil
	})
	p.Start()
	p.Submit("panic")
	p.Submit("ok")
	p.Shutdown(context.Background())

	if ran != 1 {
		t.Errorf("ran = %d, want 1", ran)
	}
}
