// Package scheduler implements the background worker pool and periodic
// task runner of SPEC_FULL.md §4.11/§5: a bounded pool of goroutines
// that executes background work (the document-count verifier, the
// cache-eviction flusher) off the synchronous request path. The pool
// itself is adapted near-verbatim from a worker_pool.go pattern, with
// zerolog logging wired into what was previously a silently-ignored
// task error.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/mnohosten/laura-search/pkg/termdict"
)

// Task is a unit of background work.
type Task interface {
	Execute() error
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// Config configures a Pool.
type Config struct {
	NumWorkers int
	QueueSize  int
}

// DefaultConfig: 4 workers, a 100-task buffer.
func DefaultConfig() Config {
	return Config{NumWorkers: 4, QueueSize: 100}
}

// Pool runs submitted Tasks on a fixed set of worker goroutines.
type Pool struct {
	numWorkers int
	taskQueue  chan Task
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	logger     zerolog.Logger

	tasksTotal  atomic.Int64
	tasksActive atomic.Int64
	tasksDone   atomic.Int64
	closeOnce   sync.Once
}

// NewPool starts cfg.NumWorkers worker goroutines (at least one).
func NewPool(cfg Config, logger *zerolog.Logger) *Pool {
	if cfg.NumWorkers < 1 {
		cfg.NumWorkers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}

	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		numWorkers: cfg.NumWorkers,
		taskQueue:  make(chan Task, cfg.QueueSize),
		ctx:        ctx,
		cancel:     cancel,
		logger:     lg,
	}
	for i := 0; i < cfg.NumWorkers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
	return p
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.tasksActive.Add(1)
			if err := task.Execute(); err != nil {
				p.logger.Error().Err(err).Int("worker", id).Msg("scheduler: task failed")
			}
			p.tasksActive.Add(-1)
			p.tasksDone.Add(1)
		}
	}
}

// Submit enqueues task without blocking. Returns false if the pool is
// shutting down or the queue is full.
func (p *Pool) Submit(task Task) bool {
	if p.IsShuttingDown() {
		return false
	}
	select {
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return true
	default:
		return false
	}
}

// SubmitFunc submits fn as a Task.
func (p *Pool) SubmitFunc(fn func() error) bool {
	return p.Submit(TaskFunc(fn))
}

// SubmitBlocking submits task, blocking until it is queued or the pool
// shuts down.
func (p *Pool) SubmitBlocking(task Task) bool {
	select {
	case <-p.ctx.Done():
		return false
	case p.taskQueue <- task:
		p.tasksTotal.Add(1)
		return true
	}
}

// Shutdown stops accepting work and waits for in-flight tasks; queued
// but not yet started tasks are discarded.
func (p *Pool) Shutdown() {
	p.cancel()
	p.closeOnce.Do(func() { close(p.taskQueue) })
	p.wg.Wait()
}

// ShutdownAndDrain waits for every queued task to run before stopping.
func (p *Pool) ShutdownAndDrain() {
	p.closeOnce.Do(func() { close(p.taskQueue) })
	p.wg.Wait()
	p.cancel()
}

// Stats reports a snapshot of pool activity.
type Stats struct {
	NumWorkers  int
	TasksTotal  int64
	TasksActive int64
	TasksDone   int64
	QueuedTasks int64
}

func (p *Pool) Stats() Stats {
	return Stats{
		NumWorkers:  p.numWorkers,
		TasksTotal:  p.tasksTotal.Load(),
		TasksActive: p.tasksActive.Load(),
		TasksDone:   p.tasksDone.Load(),
		QueuedTasks: int64(len(p.taskQueue)),
	}
}

func (p *Pool) IsFull() bool { return len(p.taskQueue) >= cap(p.taskQueue) }

func (p *Pool) IsShuttingDown() bool {
	select {
	case <-p.ctx.Done():
		return true
	default:
		return false
	}
}

// Scheduler drives periodic and drain-style background tasks on top of
// a Pool, per SPEC_FULL.md §4.11's document-count verifier and cache
// flusher.
type Scheduler struct {
	pool   *Pool
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// New wraps pool. A nil logger disables scheduler-level log lines.
func New(pool *Pool, logger *zerolog.Logger) *Scheduler {
	lg := zerolog.Nop()
	if logger != nil {
		lg = *logger
	}
	return &Scheduler{pool: pool, logger: lg}
}

// RunEvery submits fn to the pool on every tick of interval until ctx
// is cancelled. Used for the hourly document-count verifier.
func (s *Scheduler) RunEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				submitted := s.pool.SubmitFunc(func() error {
					if err := fn(ctx); err != nil {
						s.logger.Error().Err(err).Str("task", name).Msg("scheduler: periodic task failed")
					}
					return nil
				})
				if !submitted {
					s.logger.Warn().Str("task", name).Msg("scheduler: pool full, dropped tick")
				}
			}
		}
	}()
}

// RunNow submits fn immediately and then on every subsequent tick of
// interval, rather than waiting out the first interval before the
// first run.
func (s *Scheduler) RunNow(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	s.pool.SubmitFunc(func() error {
		if err := fn(ctx); err != nil {
			s.logger.Error().Err(err).Str("task", name).Msg("scheduler: initial run failed")
		}
		return nil
	})
	s.RunEvery(ctx, name, interval, fn)
}

// RunCacheFlusher drains dict's eviction channel and persists each
// evicted posting list on the pool, off the write path, until ctx is
// cancelled — SPEC_FULL.md §4.11's "second periodic task."
func (s *Scheduler) RunCacheFlusher(ctx context.Context, dict *termdict.Dictionary) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-dict.Evictions():
				if !ok {
					return
				}
				submitted := s.pool.SubmitFunc(func() error {
					return dict.FlushEvicted(ctx, ev)
				})
				if !submitted {
					// Pool saturated; flush inline so the evicted list is
					// never silently dropped.
					if err := dict.FlushEvicted(ctx, ev); err != nil {
						s.logger.Error().Err(err).Str("term", ev.Key).Msg("scheduler: cache flush failed")
					}
				}
			}
		}
	}()
}

// Wait blocks until every goroutine started by RunEvery/RunNow/
// RunCacheFlusher has returned (i.e. their context was cancelled).
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
