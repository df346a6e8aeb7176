// Package taskqueue runs fire-and-forget work off the request path.
//
// Producers call Enqueue after their transaction commits. Enqueue never
// blocks: when the buffer is full the task is dropped and logged. A fixed
// pool of workers drains the buffer until Run's context is cancelled, after
// which queued tasks are still drained before Run returns.
package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"flock/internal/platform/metrics"
)

const (
	defaultCapacity    = 256
	defaultWorkers     = 4
	defaultTaskTimeout = 10 * time.Second
)

// Task is one unit of post-commit work.
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

type Queue struct {
	tasks       chan Task
	workers     int
	taskTimeout time.Duration
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(q *Queue) {
		q.metrics = m
	}
}

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithCapacity(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.tasks = make(chan Task, n)
		}
	}
}

func WithTaskTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.taskTimeout = d
		}
	}
}

func New(opts ...Option) *Queue {
	q := &Queue{
		tasks:       make(chan Task, defaultCapacity),
		workers:     defaultWorkers,
		taskTimeout: defaultTaskTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue hands t to the worker pool. It reports false when the task was
// dropped because the queue is full or already shut down.
func (q *Queue) Enqueue(t Task) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("task dropped: queue closed", "task", t.Name)
		q.observeDropped(t.Name)
		return false
	}
	select {
	case q.tasks <- t:
		q.observeDepth()
		return true
	default:
		q.logger.Warn("task dropped: queue full", "task", t.Name, "capacity", cap(q.tasks))
		q.observeDropped(t.Name)
		return false
	}
}

// Run starts the workers and blocks until ctx is cancelled and every queued
// task has finished.
func (q *Queue) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	for range q.workers {
		g.Go(func() error {
			for t := range q.tasks {
				q.execute(ctx, t)
			}
			return nil
		})
	}
	<-ctx.Done()
	q.close()
	return g.Wait()
}

func (q *Queue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.tasks)
	}
}

// execute runs one task detached from Run's cancellation so that queued work
// still completes during shutdown.
func (q *Queue) execute(ctx context.Context, t Task) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), q.taskTimeout)
	defer cancel()
	defer func() {
		if p := recover(); p != nil {
			q.logger.Error("task panicked", "task", t.Name, "panic", fmt.Sprint(p))
			q.observeResult(t.Name, "panic")
		}
	}()

	start := time.Now()
	if err := t.Run(ctx); err != nil {
		q.logger.ErrorContext(ctx, "task failed", "task", t.Name, "error", err)
		q.observeResult(t.Name, "error")
		return
	}
	q.logger.DebugContext(ctx, "task completed", "task", t.Name, "duration", time.Since(start))
	q.observeResult(t.Name, "ok")
	q.observeDepth()
}

func (q *Queue) observeDropped(name string) {
	if q.metrics != nil {
		q.metrics.IncrementTasksDropped(name)
	}
}

func (q *Queue) observeResult(name, result string) {
	if q.metrics != nil {
		q.metrics.IncrementTasksProcessed(name, result)
	}
}

func (q *Queue) observeDepth() {
	if q.metrics != nil {
		q.metrics.SetTaskQueueDepth(len(q.tasks))
	}
}
