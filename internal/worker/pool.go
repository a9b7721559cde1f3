package worker

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/BroWo1/factcheck-backend/internal/metrics"
	"github.com/BroWo1/factcheck-backend/pkg/logger"
)

var (
	ErrQueueFull  = errors.New("analysis queue is full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

// RunFunc executes one session.
type RunFunc func(ctx context.Context, sessionID string) error

// Pool runs queued sessions on a fixed number of workers.
type Pool struct {
	workers int
	run     RunFunc
	queue   chan string

	mu     sync.Mutex
	closed bool

	wg         sync.WaitGroup
	ctx        context.Context
	cancelFunc context.CancelFunc
}

func NewPool(workers, queueSize int, run RunFunc) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = workers * 2
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:    workers,
		run:        run,
		queue:      make(chan string, queueSize),
		ctx:        ctx,
		cancelFunc: cancel,
	}
}

func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	logger.Info("Worker pool started", zap.Int("workers", p.workers), zap.Int("queue_size", cap(p.queue)))
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for sessionID := range p.queue {
		metrics.QueueDepth.Dec()
		if p.ctx.Err() != nil {
			logger.Warn("Dropping queued session on shutdown", zap.String("session_id", sessionID))
			continue
		}
		p.execute(id, sessionID)
	}
}

func (p *Pool) execute(id int, sessionID string) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Session run panicked",
				zap.String("session_id", sessionID),
				zap.Any("panic", r),
			)
		}
	}()

	if err := p.run(p.ctx, sessionID); err != nil {
		logger.Error("Session run failed",
			zap.Int("worker", id),
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
	}
}

// Submit queues a session without blocking.
func (p *Pool) Submit(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.queue <- sessionID:
		metrics.QueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Shutdown stops intake and waits for queued sessions to finish. When ctx
// expires first, in-flight runs are cancelled and queued ones are dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancelFunc()
		return nil
	case <-ctx.Done():
		p.cancelFunc()
		<-done
		return ctx.Err()
	}
}
