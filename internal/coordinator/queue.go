package coordinator

import (
	"sync"

	"github.com/mstrand/trainfleet/internal/models"
)

// JobQueue holds pending jobs in FIFO order plus the append-only completed
// log. An empty queue is a normal condition signaled by the comma-ok form of
// Lease, never an error.
type JobQueue struct {
	mu        sync.Mutex
	pending   []*models.Job
	completed []*models.JobResult
}

// NewJobQueue creates an empty queue
func NewJobQueue() *JobQueue {
	return &JobQueue{}
}

// Enqueue appends a job to the tail of the pending queue.
func (q *JobQueue) Enqueue(job *models.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, job)
}

// Lease pops the head of the pending queue. The second return value is false
// when the queue is empty.
func (q *JobQueue) Lease() (*models.Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil, false
	}

	job := q.pending[0]
	q.pending = q.pending[1:]
	return job, true
}

// pushFront returns a job to the head of the queue. Used only to undo a lease
// whose assignment could not be completed, preserving FIFO order.
func (q *JobQueue) pushFront(job *models.Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append([]*models.Job{job}, q.pending...)
}

// RecordCompletion appends a result to the completed log. The log grows
// without bound; compaction is out of scope.
func (q *JobQueue) RecordCompletion(result *models.JobResult) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.completed = append(q.completed, result)
}

// PendingCount returns the number of queued jobs
func (q *JobQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// CompletedCount returns the number of recorded results
func (q *JobQueue) CompletedCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.completed)
}

// Pending returns a copy of the pending queue in lease order.
func (q *JobQueue) Pending() []*models.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]*models.Job, len(q.pending))
	copy(snapshot, q.pending)
	return snapshot
}

// Completed returns a copy of the completed log in completion order.
func (q *JobQueue) Completed() []*models.JobResult {
	q.mu.Lock()
	defer q.mu.Unlock()

	snapshot := make([]*models.JobResult, len(q.completed))
	copy(snapshot, q.completed)
	return snapshot
}
