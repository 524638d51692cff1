package queue

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/raffleworks/raffle-engine/internal/models"
	"github.com/raffleworks/raffle-engine/pkg/utils"
)

// Queue is the durable job sink watchers emit allocation work into. Delivery
// is at-least-once; the consumer must stay idempotent on the job's
// transaction reference.
type Queue interface {
	Enqueue(ctx context.Context, name string, job *models.AllocationJob) error
	Close() error
}

// MemoryQueue is the in-process Queue used by the engine. Watchers append
// only; the allocation worker is the sole consumer.
type MemoryQueue struct {
	jobs   chan *models.AllocationJob
	logger *logrus.Logger

	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue creates a bounded in-process queue.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1024
	}
	return &MemoryQueue{
		jobs:   make(chan *models.AllocationJob, size),
		logger: utils.GetLogger(),
	}
}

// Enqueue appends a job, blocking when the queue is full until space frees
// up or the context is cancelled.
func (q *MemoryQueue) Enqueue(ctx context.Context, name string, job *models.AllocationJob) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return utils.NewAppError(utils.ErrCodeProcessing, "Queue is closed", name)
	}
	q.mu.Unlock()

	select {
	case q.jobs <- job:
		q.logger.WithFields(logrus.Fields{
			"job":    name,
			"kind":   job.Kind,
			"tx_ref": job.TxRef,
		}).Debug("Job enqueued")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Jobs exposes the consumer side of the queue.
func (q *MemoryQueue) Jobs() <-chan *models.AllocationJob {
	return q.jobs
}

// Close stops the queue; pending jobs remain readable until drained.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.jobs)
	}
	return nil
}
