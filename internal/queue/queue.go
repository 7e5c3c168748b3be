// Package queue runs export jobs on a fixed pool of workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

var (
	ErrClosed = errors.New("queue is shutting down")
	ErrFull   = errors.New("export queue is full")
)

// Handler processes one job. workerID identifies the worker so the job row
// can record who claimed it.
type Handler func(ctx context.Context, jobID, workerID string)

type Queue struct {
	handler  Handler
	workers  int
	timeout  time.Duration
	instance string

	ch   chan string
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex
	closed bool
}

type Option func(*Queue)

// WithWorkers sets the number of workers
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

// WithQueueSize sets how many jobs may wait for a worker
func WithQueueSize(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan string, n)
		}
	}
}

// WithProcessTimeout bounds how long one job may run
func WithProcessTimeout(d time.Duration) Option {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// New starts the workers right away.
func New(handler Handler, opts ...Option) *Queue {
	q := &Queue{
		handler:  handler,
		workers:  2,
		timeout:  10 * time.Minute,
		instance: uuid.NewString()[:8],
		ch:       make(chan string, 64),
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
			go func(workerID string) {
				defer q.wg.Done()
				logger := log.WithField("worker_id", workerID)
				logger.Info("export worker started")

				for jobID := range q.ch {
					q.run(logger, jobID, workerID)
				}

				logger.Info("export worker stopped")
			}(fmt.Sprintf("%s-%d", q.instance, i+1))
		}
	})
}

func (q *Queue) run(logger *log.Entry, jobID, workerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.WithField("job_id", jobID).Errorf("export handler panicked: %v", r)
		}
	}()
	q.handler(ctx, jobID, workerID)
}

// Dispatch queues a job without waiting. A full buffer returns ErrFull; the
// job stays unclaimed and the recovery sweep hands it out again later.
func (q *Queue) Dispatch(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	select {
	case q.ch <- jobID:
		log.WithField("job_id", jobID).Debug("export job queued")
		return nil
	default:
		log.WithField("job_id", jobID).Warn("export queue full")
		return ErrFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to drain.
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
		log.Warn("export queue shutdown interrupted")
	case <-done:
		log.Info("export queue drained")
	}
}
