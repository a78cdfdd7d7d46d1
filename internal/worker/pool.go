// Package worker runs detached background tasks on a bounded pool.
//
// A task never reports back to whoever submitted it. Errors and panics are
// caught at the task edge, logged, counted and handed to the OnFailure hook;
// tasks are never retried.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"tangled.org/studyhub.social/warden/internal/metrics"
)

// Task is a unit of detached work. The context carries the pool's lifetime
// and the per-task timeout, never the submitter's request.
type Task func(ctx context.Context) error

// ErrPanic wraps a value recovered from a panicking task.
var ErrPanic = errors.New("task panicked")

// Options configures a Pool.
type Options struct {
	// Workers is the number of concurrent tasks. Defaults to 4.
	Workers int

	// QueueSize bounds the number of waiting tasks. Defaults to 256.
	QueueSize int

	// TaskTimeout bounds each task. Zero means no timeout.
	TaskTimeout time.Duration

	// OnFailure is called with the task name and error of every failed task.
	OnFailure func(name string, err error)
}

type job struct {
	name string
	task Task
}

// Pool is a fixed set of workers draining a bounded queue.
type Pool struct {
	opts   Options
	queue  chan job
	group  errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// NewPool starts the workers. Call Close to drain the queue and stop them.
func NewPool(opts Options) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		opts:   opts,
		queue:  make(chan job, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < opts.Workers; i++ {
		p.group.Go(func() error {
			for j := range p.queue {
				p.run(j)
			}
			return nil
		})
	}

	log.Info().
		Int("workers", opts.Workers).
		Int("queue_size", opts.QueueSize).
		Dur("task_timeout", opts.TaskTimeout).
		Msg("Worker pool started")

	return p
}

// Submit enqueues a task without blocking. It returns false when the queue is
// full or the pool is closed; the task is then dropped.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		metrics.WorkerTasksTotal.WithLabelValues("dropped").Inc()
		log.Warn().Str("task", name).Msg("Worker pool closed, dropping task")
		return false
	}

	select {
	case p.queue <- job{name: name, task: task}:
		return true
	default:
		metrics.WorkerTasksTotal.WithLabelValues("dropped").Inc()
		log.Warn().Str("task", name).Int("queue_size", p.opts.QueueSize).Msg("Worker queue full, dropping task")
		return false
	}
}

// QueueDepth returns the number of tasks waiting to run.
func (p *Pool) QueueDepth() int {
	return len(p.queue)
}

// Close stops accepting tasks, waits for queued tasks to finish and then
// cancels the pool context.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	err := p.group.Wait()
	p.cancel()
	log.Info().Msg("Worker pool stopped")
	return err
}

// run executes one task inside the swallow-all boundary.
func (p *Pool) run(j job) {
	ctx := p.ctx
	if p.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.TaskTimeout)
		defer cancel()
	}

	start := time.Now()
	err := safeCall(ctx, j.task)
	elapsed := time.Since(start)

	if err == nil {
		metrics.WorkerTasksTotal.WithLabelValues("ok").Inc()
		log.Debug().Str("task", j.name).Dur("elapsed", elapsed).Msg("Task finished")
		return
	}

	result := "error"
	if errors.Is(err, ErrPanic) {
		result = "panic"
	}
	metrics.WorkerTasksTotal.WithLabelValues(result).Inc()
	log.Error().Err(err).Str("task", j.name).Dur("elapsed", elapsed).Msg("Detached task failed")

	if p.opts.OnFailure != nil {
		p.opts.OnFailure(j.name, err)
	}
}

func safeCall(ctx context.Context, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return task(ctx)
}
