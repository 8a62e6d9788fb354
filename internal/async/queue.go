// Package async runs imports in the background for callers that do not want
// to hold a stream open.
package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/property-importer/internal/pipeline"
)

// ErrClosed is returned by Enqueue once Shutdown has started.
var ErrClosed = errors.New("import queue is shutting down")

// Job is one queued import.
type Job struct {
	RunID       string
	Request     pipeline.Request
	SubmittedAt time.Time
}

// Runner is the slice of pipeline.Orchestrator the queue drives.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) <-chan pipeline.Event
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) (string, error)
	Shutdown(ctx context.Context)
}

type ProcessorQueue struct {
	runner  Runner
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *ProcessorQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewProcessorQueue(runner Runner, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		runner:  runner,
		logger:  logger,
		workers: 4,
		timeout: 10 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *ProcessorQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("queue.worker.started", "worker_id", workerID)
				for job := range q.ch {
					q.process(workerID, job)
				}
				q.logger.Info("queue.worker.stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *ProcessorQueue) process(workerID int, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	var last pipeline.Event
	for ev := range q.runner.Run(ctx, job.Request) {
		if ev.Type == pipeline.EventStatus {
			q.logger.Debug("queue.job.step", "worker_id", workerID, "run_id", job.RunID, "step", ev.Step)
		}
		last = ev
	}
	waited := time.Since(job.SubmittedAt).Milliseconds()
	switch last.Type {
	case pipeline.EventResult:
		q.logger.Info("queue.job.done", "worker_id", workerID, "run_id", job.RunID, "property_id", last.PropertyID, "elapsed_ms", waited)
	case pipeline.EventError:
		q.logger.Error("queue.job.failed", "worker_id", workerID, "run_id", job.RunID, "code", last.Code, "error", last.Message, "elapsed_ms", waited)
	default:
		q.logger.Error("queue.job.incomplete", "worker_id", workerID, "run_id", job.RunID)
	}
}

// Enqueue schedules an import and returns its run ID. A full queue blocks
// the caller until a worker frees a slot or ctx ends.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) (string, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		q.logger.Warn("queue.enqueue.closed", "tenant_id", job.Request.TenantID)
		return "", ErrClosed
	}
	if job.RunID == "" {
		job.RunID = job.Request.RunID
	}
	if job.RunID == "" {
		job.RunID = pipeline.NewRunID()
	}
	job.Request.RunID = job.RunID
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}

	select {
	case q.ch <- job:
	default:
		q.logger.Warn("queue.full", "run_id", job.RunID)
		select {
		case q.ch <- job:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	q.logger.Info("queue.enqueued", "run_id", job.RunID, "tenant_id", job.Request.TenantID, "kind", job.Request.Source.Kind)
	return job.RunID, nil
}

// Shutdown stops accepting jobs and waits for the queued ones to drain.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("queue.shutdown.interrupted")
	case <-done:
		q.logger.Info("queue.shutdown.complete")
	}
}
