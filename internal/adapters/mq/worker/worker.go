// Package worker runs evidence-verification jobs off the queue.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/festrank/internal/adapters/mq/queue"
	"github.com/okian/festrank/pkg/logger"
	"github.com/okian/festrank/pkg/metrics"
)

const (
	defaultWorkerCount  = 4
	defaultJobTimeout   = 30 * time.Second
	poolShutdownTimeout = 30 * time.Second
)

// Handler processes one job. Errors are logged and counted, never retried.
type Handler interface {
	Handle(ctx context.Context, j queue.Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j queue.Job) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, j queue.Job) error { return f(ctx, j) }

// Source is where workers read jobs from.
type Source interface {
	Dequeue() <-chan queue.Job
}

// Worker processes jobs until its source closes or it is stopped.
type Worker struct {
	name    string
	source  Source
	handler Handler
	timeout time.Duration
	active  *atomic.Int64
	logger  logger.Logger

	done chan struct{}
}

func newWorker(name string, source Source, handler Handler, timeout time.Duration, active *atomic.Int64, log logger.Logger) *Worker {
	return &Worker{
		name:    name,
		source:  source,
		handler: handler,
		timeout: timeout,
		active:  active,
		logger:  log.Named(name),
		done:    make(chan struct{}),
	}
}

// Run processes jobs until the source channel closes or ctx is done.
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			metrics.RecordQueueProcessingLatency(float64(time.Since(j.EnqueuedAt).Milliseconds()))
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "verification job failed",
					logger.String("submission_id", j.SubmissionID),
					logger.Error(err),
				)
			}
		}
	}
}

func (w *Worker) process(ctx context.Context, j queue.Job) error { //nolint:gocritic // hugeParam: jobs are values
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	jctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	if err := w.handler.Handle(jctx, j); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "handler_error")
		return fmt.Errorf("handle %s: %w", j.SubmissionID, err)
	}
	return nil
}

// Pool manages a fixed set of workers sharing one source.
type Pool struct {
	workers []*Worker
	source  Source
	active  atomic.Int64
	logger  logger.Logger
	once    sync.Once
}

// NewPool creates a worker pool. It does not start the workers.
func NewPool(source Source, handler Handler, opts ...Option) *Pool {
	cfg := &poolConfig{count: defaultWorkerCount, timeout: defaultJobTimeout, logger: logger.Get().Named("worker-pool")}
	for _, opt := range opts {
		opt(cfg)
	}

	p := &Pool{
		workers: make([]*Worker, cfg.count),
		source:  source,
		logger:  cfg.logger,
	}
	for i := range p.workers {
		p.workers[i] = newWorker("worker-"+strconv.Itoa(i), source, handler, cfg.timeout, &p.active, cfg.logger)
	}
	metrics.UpdateWorkerCount(cfg.count)
	metrics.UpdateWorkerActiveCount(0)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the source when it supports it and waits for workers to
// drain the remaining jobs.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.once.Do(func() {
		if closer, ok := p.source.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(err))
			}
		}
	})

	sctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-sctx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker shutdown: %w", sctx.Err())
		}
	}
	return nil
}
