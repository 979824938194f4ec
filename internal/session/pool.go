package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hubenschmidt/session-analyzer/internal/metrics"
)

var (
	// ErrQueueFull rejects a job when every worker is busy and the queue is full.
	ErrQueueFull = errors.New("analysis queue is full")
	// ErrPoolClosed rejects a job after Shutdown.
	ErrPoolClosed = errors.New("analysis pool is shut down")
)

// Runner analyzes one job.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// Pool runs jobs on a fixed number of workers behind a bounded queue.
type Pool struct {
	runner Runner
	jobs   chan Job
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewPool starts workers goroutines serving a queue of queueSize jobs.
func NewPool(r Runner, workers, queueSize int) *Pool {
	workers = max(workers, 1)
	queueSize = max(queueSize, 0)
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		runner: r,
		jobs:   make(chan Job, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.wg.Add(workers)
	for range workers {
		go p.work()
	}
	return p
}

func (p *Pool) work() {
	defer p.wg.Done()
	for job := range p.jobs {
		metrics.QueueDepth.Set(float64(len(p.jobs)))
		// Run persists its own failure; the error is only logged here.
		if err := p.runner.Run(p.ctx, job); err != nil {
			slog.Debug("job finished with error", "session_id", job.SessionID, "error", err)
		}
	}
}

// Submit enqueues job without blocking.
func (p *Pool) Submit(job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- job:
		metrics.QueueDepth.Set(float64(len(p.jobs)))
		return nil
	default:
		metrics.QueueRejected.Inc()
		return ErrQueueFull
	}
}

// Shutdown stops admission and waits for queued and running jobs. When ctx
// expires first, running jobs are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.jobs)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
