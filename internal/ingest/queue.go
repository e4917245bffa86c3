package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Processor runs the full pipeline for one source file.
type Processor interface {
	ProcessMedia(ctx context.Context, sourcePath string) *Outcome
}

// Job is one unit of queued work: a media file discovered on disk.
type Job struct {
	SourcePath string
	Force      bool // reprocess even if already ingested
}

// Queue fans discovered media files out to a fixed pool of workers, each
// running the orchestrator with a per-item timeout. Shutdown drains queued
// work before returning.
type Queue struct {
	proc    Processor
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*Queue)

func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewQueue(proc Processor, logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 30 * time.Minute,
		ch:      make(chan Job, 256),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					out := q.proc.ProcessMedia(ctx, job.SourcePath)
					cancel()

					if out.Failed() {
						q.logger.Error("ingestion failed",
							"worker_id", workerID, "path", job.SourcePath,
							"status", string(out.Status), "stage", string(out.Stage),
						)
					} else {
						q.logger.Info("ingested media",
							"worker_id", workerID, "path", job.SourcePath,
							"media_id", out.MediaID, "status", string(out.Status),
						)
					}
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) Enqueue(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "path", job.SourcePath)
		return nil
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued media for ingestion", "path", job.SourcePath, "force", job.Force)
	default:
		q.logger.Warn("queue full, applying backpressure", "path", job.SourcePath)
		q.ch <- job
	}
	return nil
}

func (q *Queue) Shutdown(ctx context.Context) {
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
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
