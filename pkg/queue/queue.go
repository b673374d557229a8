package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"SignalForge/pkg/logger"
)

var (
	ErrPoolClosed = errors.New("queue: pool closed")
	ErrQueueFull  = errors.New("queue: queue full")
)

// Task is a unit of work executed by a pool worker.
type Task func(ctx context.Context)

// PoolConfig contains the configuration for the worker pool.
type PoolConfig struct {
	Workers   int // number of workers
	QueueSize int // size of the pending queue
}

// Pool is a bounded in-process worker pool. Concurrency is capped by the
// worker count and backpressure by the queue size, so a burst of enrichment
// requests cannot spawn unbounded goroutines.
type Pool struct {
	tasks   chan Task
	wg      sync.WaitGroup
	closed  atomic.Bool
	pending atomic.Int64
	log     *logger.Logger
}

// NewPool creates and starts a worker pool.
func NewPool(cfg PoolConfig, log *logger.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	p := &Pool{
		tasks: make(chan Task, cfg.QueueSize),
		log:   log,
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	return p
}

// Submit enqueues a task. It returns ErrQueueFull immediately when the queue
// is at capacity rather than blocking the caller.
func (p *Pool) Submit(task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		p.pending.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait enqueues a task, blocking until there is room in the queue or
// the context is done.
func (p *Pool) SubmitWait(ctx context.Context, task Task) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}

	select {
	case p.tasks <- task:
		p.pending.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	return int(p.pending.Load())
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for task := range p.tasks {
		p.pending.Add(-1)
		p.runTask(id, task)
	}
}

func (p *Pool) runTask(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			if p.log != nil {
				p.log.Error("worker recovered from panic",
					logger.Int("worker", id),
					logger.Any("panic", r),
				)
			}
		}
	}()

	task(context.Background())
}

// Close stops accepting tasks and waits for in-flight tasks to finish.
func (p *Pool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.tasks)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(30 * time.Second):
		return errors.New("queue: close timed out waiting for workers")
	}
}
