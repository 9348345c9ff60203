package async

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/rxverify/internal/entity"
)

var ErrQueueClosed = errors.New("queue is shutting down")

// Verifier is the part of the pipeline the workers drive.
type Verifier interface {
	Verify(ctx context.Context, image []byte) entity.VerificationVerdict
}

// ResultHandler receives every finished job. It is called from worker
// goroutines and must be safe for concurrent use.
type ResultHandler func(job Job, v entity.VerificationVerdict)

type ProcessorQueue struct {
	proc    Verifier
	logger  *slog.Logger
	workers int
	timeout time.Duration
	onDone  ResultHandler

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
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
func WithResultHandler(h ResultHandler) Option {
	return func(q *ProcessorQueue) {
		if h != nil {
			q.onDone = h
		}
	}
}

func NewProcessorQueue(proc Verifier, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		proc:    proc,
		logger:  logger,
		workers: 4,
		timeout: 3 * time.Minute,
		onDone:  func(Job, entity.VerificationVerdict) {},
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
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					v := q.proc.Verify(ctx, job.Image)
					cancel()

					q.logger.Info("verified",
						"worker_id", workerID,
						"job", job.Name,
						"status", v.Status,
						"confidence", v.ConfidenceScore,
						"elapsed", time.Since(job.SubmittedAt),
					)
					q.onDone(job, v)
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

// Enqueue blocks when the buffer is full until a worker frees a slot or ctx
// is done.
func (q *ProcessorQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "job", job.Name)
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued image for verification", "job", job.Name)
		return nil
	default:
	}
	q.logger.Warn("queue full, applying backpressure", "job", job.Name)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

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
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
